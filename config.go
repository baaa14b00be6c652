package sealdrop

import (
	"log/slog"
	"os"
)

// Config configures a Sealdrop instance.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used;
	// the record table and blob store live under it.
	Paths []string
	// MinimumFreeGB is the free-space floor below which uploads are
	// refused. Zero disables the check.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr logger
	// is used.
	Logger *slog.Logger
	// Origin is the base the share locator is built against, e.g.
	// "https://drop.example.org".
	Origin string
	// APIPort serves the backend HTTP API when non-zero.
	APIPort uint16
	// DefaultTTL applies to uploads that do not set their own. Zero
	// selects 24 hours.
	DefaultTTL uint // hours
}

func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}
