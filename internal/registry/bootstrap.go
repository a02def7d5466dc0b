package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

// Loader builds the registry at process start: bootstrap identities from
// the environment first, then previously enrolled identities from the
// roster file. Bad records are warned and skipped, never fatal; an
// unattended station should come up with whatever loads cleanly.
type Loader struct {
	cfg      *config.Config
	provider provider.FaceProvider
	roster   *RosterStore
	cache    *EmbeddingCache
	logger   *slog.Logger
}

func NewLoader(cfg *config.Config, faceProvider provider.FaceProvider, roster *RosterStore, cache *EmbeddingCache, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:      cfg,
		provider: faceProvider,
		roster:   roster,
		cache:    cache,
		logger:   logger.With(slog.String("component", "registry")),
	}
}

// Load returns a populated registry.
func (l *Loader) Load(ctx context.Context) (*Registry, error) {
	reg := New()

	cached, err := l.cache.Load()
	if err != nil {
		l.logger.Warn("embedding cache unreadable, re-encoding photos", slog.Any("error", err))
		cached = map[string][]float64{}
	}

	l.loadBootstrap(ctx, reg, cached)
	if err := l.loadRoster(ctx, reg, cached); err != nil {
		return nil, err
	}

	l.logger.Info("registry loaded", slog.Int("identities", reg.Len()))
	return reg, nil
}

func (l *Loader) loadBootstrap(ctx context.Context, reg *Registry, cached map[string][]float64) {
	for _, name := range l.cfg.BootstrapIdentities {
		key := config.BootstrapKey(name)

		pin := os.Getenv(key + "_PIN")
		photo := os.Getenv(key + "_PHOTO")
		if pin == "" || photo == "" {
			l.logger.Warn("skipping bootstrap identity with incomplete configuration",
				slog.String("name", name),
				slog.Bool("has_pin", pin != ""),
				slog.Bool("has_photo", photo != ""),
			)
			continue
		}

		if err := l.add(ctx, reg, cached, name, pin, photo); err != nil {
			l.logger.Warn("skipping bootstrap identity",
				slog.String("name", name),
				slog.Any("error", err),
			)
		}
	}
}

func (l *Loader) loadRoster(ctx context.Context, reg *Registry, cached map[string][]float64) error {
	records, malformed, err := l.roster.Load()
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	for _, line := range malformed {
		l.logger.Warn("skipping malformed roster line", slog.String("line", line))
	}

	for _, rec := range records {
		if err := l.add(ctx, reg, cached, rec.Name, rec.Pin, rec.PhotoPath); err != nil {
			l.logger.Warn("skipping roster identity",
				slog.String("name", rec.Name),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

func (l *Loader) add(ctx context.Context, reg *Registry, cached map[string][]float64, name, pin, photoPath string) error {
	identity, err := BuildIdentity(ctx, l.provider, cached, name, pin, photoPath)
	if err != nil {
		return err
	}

	return reg.Enroll(identity)
}

// BuildIdentity resolves an identity's embedding, preferring the cache and
// falling back to encoding the photo through the provider.
func BuildIdentity(ctx context.Context, faceProvider provider.FaceProvider, cached map[string][]float64, name, pin, photoPath string) (*domain.Identity, error) {
	embedding := cached[strings.ToLower(name)]
	if embedding == nil {
		image, err := os.ReadFile(photoPath)
		if err != nil {
			return nil, fmt.Errorf("read photo %s: %w", photoPath, err)
		}

		embedding, err = faceProvider.Embed(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("encode photo %s: %w", photoPath, err)
		}
	}

	return &domain.Identity{
		Name:      name,
		Embedding: embedding,
		Pin:       pin,
		PhotoPath: photoPath,
	}, nil
}
