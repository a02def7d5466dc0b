package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/admin"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/enroll"
	"github.com/saturnino-fabrica-de-software/presenca/internal/face"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		name    = flag.String("name", "", "display name of the person to enroll")
		pin     = flag.String("pin", "", "PIN for the person to enroll")
		photo   = flag.String("photo", "", "path to the reference photo")
		session = flag.String("session", "", "admin session token (default: read from the session file)")
	)
	flag.Parse()

	if *name == "" || *pin == "" || *photo == "" {
		flag.Usage()
		return fmt.Errorf("-name, -pin and -photo are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	ctx := context.Background()

	// In production the admin verifies at the kiosk first; the granted
	// session authorizes the enrollment.
	if cfg.IsProduction() {
		if err := requireAdminSession(cfg, *session); err != nil {
			return err
		}
	}

	faceProvider, err := face.NewFaceProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create face provider: %w", err)
	}

	roster := registry.NewRosterStore(cfg.RosterFile)
	cache := registry.NewEmbeddingCache(cfg.EmbeddingFile)

	// Load the current roster so duplicates are caught before any write.
	reg, err := registry.NewLoader(cfg, faceProvider, roster, cache, logger).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	imageBytes, err := os.ReadFile(*photo)
	if err != nil {
		return fmt.Errorf("failed to read photo %s: %w", *photo, err)
	}

	service := enroll.NewService(reg, faceProvider, roster, cache, cfg.PhotosDir, audit.NewSlogLogger(logger), logger)

	identity, err := service.Enroll(ctx, *name, *pin, imageBytes)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	fmt.Printf("enrolled %s (photo: %s)\n", identity.Name, identity.PhotoPath)
	return nil
}

func requireAdminSession(cfg *config.Config, token string) error {
	if token == "" {
		data, err := os.ReadFile(cfg.SessionFile)
		if err != nil {
			return fmt.Errorf("no admin session: verify as %s at the kiosk first (%w)", cfg.AdminName, err)
		}
		token = strings.TrimSpace(string(data))
	}

	sessions := admin.NewSessionService(cfg.SessionSecret, "presenca", 15*time.Minute)
	claims, err := sessions.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("invalid admin session: %w", err)
	}

	if !strings.EqualFold(claims.Name, cfg.AdminName) {
		return fmt.Errorf("session belongs to %s, not the administrator", claims.Name)
	}

	return nil
}
