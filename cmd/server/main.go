// Package main is the entry point for the issuedesk API server.
//
// main only reads configuration, builds the logger and starts the server.
// All wiring lives in internal/server.
//
// Configuration comes from the environment (see internal/config), e.g.
//
//	JWT_SECRET=$(openssl rand -hex 32) \
//	ISSUEDESK_ADMIN_PASSWORD=changeme \
//	go run ./cmd/server
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/issuedesk/internal/config"
	sqliteRepo "github.com/sakif/issuedesk/internal/repository/sqlite"
	"github.com/sakif/issuedesk/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)

	if cfg.Database.Path != sqliteRepo.MemoryPath {
		dbDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if cfg.Bootstrap.AdminPassword == "" {
		logger.Debug("ISSUEDESK_ADMIN_PASSWORD not set, skipping administrator bootstrap")
	}

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
