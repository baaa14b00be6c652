// Package logging constructs the structured loggers used across
// sealdrop.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options controls logger construction.
type Options struct {
	// Level is the minimum level to emit. Defaults to Info.
	Level slog.Level
	// NoColor disables ANSI colors, for non-terminal output.
	NoColor bool
	// Output defaults to stderr.
	Output io.Writer
}

// New returns a tinted slog logger.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handler := tint.NewHandler(out, &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	})
	return slog.New(handler)
}

// ParseLevel maps a config-file level string to a slog.Level. Unknown
// strings map to Info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
