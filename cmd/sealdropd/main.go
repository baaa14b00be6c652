package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sealdrop/sealdrop"
	"github.com/sealdrop/sealdrop/internal/config"
	"github.com/sealdrop/sealdrop/pkg/logging"
)

func main() {
	configPath := flag.String("config", "sealdrop.yaml", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Options{
		Level: logging.ParseLevel(cfg.LogLevel),
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("sealdropd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	sd, err := sealdrop.New(sealdrop.Config{
		Paths:         []string{cfg.DataDir},
		MinimumFreeGB: cfg.MinimumFreeGB,
		Logger:        logger,
		Origin:        cfg.Origin,
		APIPort:       cfg.APIPort,
		DefaultTTL:    cfg.DefaultTTL,
	})
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sd.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("sealdropd running", "data", cfg.DataDir, "port", cfg.APIPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := sd.Close(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
