package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/admin"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/eventlog"
	"github.com/saturnino-fabrica-de-software/presenca/internal/face"
	"github.com/saturnino-fabrica-de-software/presenca/internal/matcher"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
	"github.com/saturnino-fabrica-de-software/presenca/internal/station"
	"github.com/saturnino-fabrica-de-software/presenca/internal/verify"
)

const sessionDuration = 15 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting attendance kiosk",
		slog.String("environment", cfg.Environment),
		slog.String("provider", cfg.FaceProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	faceProvider, err := face.NewFaceProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create face provider: %w", err)
	}

	roster := registry.NewRosterStore(cfg.RosterFile)
	cache := registry.NewEmbeddingCache(cfg.EmbeddingFile)

	reg, err := registry.NewLoader(cfg, faceProvider, roster, cache, logger).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	recorder, err := eventlog.Open(cfg.AttendanceLog, cfg.AnomalyLog)
	if err != nil {
		return fmt.Errorf("failed to open event logs: %w", err)
	}
	defer recorder.Close()

	sessions := admin.NewSessionService(cfg.SessionSecret, "presenca", sessionDuration)
	auditLogger := audit.NewSlogLogger(logger)

	verifier := verify.New(
		reg,
		matcher.New(reg, faceProvider, cfg.MatchThreshold),
		station.NewTerminalPinReader(os.Stdin, os.Stdout),
		recorder,
		sessions,
		auditLogger,
		verify.Config{
			AdminName:        cfg.AdminName,
			LockoutThreshold: cfg.LockoutThreshold,
			PinTimeout:       cfg.PinTimeout,
			ProviderName:     cfg.FaceProvider,
		},
	)

	frames, err := station.NewSpoolSource(cfg.SpoolDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}
	defer frames.Close()

	console := station.NewTokenConsole(cfg.SessionFile, logger)

	kiosk := station.New(frames, faceProvider, verifier, console, logger)
	if err := kiosk.Run(ctx); err != nil {
		return fmt.Errorf("station error: %w", err)
	}

	logger.Info("kiosk stopped")
	return nil
}
