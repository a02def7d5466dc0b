package enroll

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

// IdentityStore is the slice of the registry enrollment needs.
type IdentityStore interface {
	Enroll(identity *domain.Identity) error
	Discard(name string)
}

// Service registers new identities: one face per photo, an embedding, a
// PIN, and durable persistence before the enrollment is acknowledged.
type Service struct {
	registry  IdentityStore
	provider  provider.FaceProvider
	roster    *registry.RosterStore
	cache     *registry.EmbeddingCache
	photosDir string
	audit     audit.Logger
	logger    *slog.Logger
}

func NewService(store IdentityStore, faceProvider provider.FaceProvider, roster *registry.RosterStore, cache *registry.EmbeddingCache, photosDir string, auditLogger audit.Logger, logger *slog.Logger) *Service {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}

	return &Service{
		registry:  store,
		provider:  faceProvider,
		roster:    roster,
		cache:     cache,
		photosDir: photosDir,
		audit:     auditLogger,
		logger:    logger,
	}
}

// Enroll registers a new identity from a reference photo. The registry is
// only mutated after the photo copy, the roster line and the embedding
// cache line are all durably written; a persistence failure rolls the
// in-memory enrollment back and reports ErrPersistence.
func (s *Service) Enroll(ctx context.Context, name, pin string, imageBytes []byte) (*domain.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" || pin == "" || len(imageBytes) == 0 {
		return nil, domain.ErrIncompleteEnrollment
	}

	// The roster file is comma-separated, one record per line.
	if strings.ContainsAny(name, ",\n") || strings.ContainsAny(pin, ",\n") {
		return nil, domain.ErrIncompleteEnrollment.WithError(fmt.Errorf("name and pin must not contain commas or newlines"))
	}

	detectedFaces, err := s.provider.DetectFaces(ctx, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("detect faces for %s: %w", name, err)
	}

	if len(detectedFaces) == 0 {
		return nil, domain.ErrNoFaceDetected
	}

	if len(detectedFaces) > 1 {
		return nil, domain.ErrMultipleFaces
	}

	embedding, err := s.provider.Embed(ctx, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("embed face for %s: %w", name, err)
	}

	identity := &domain.Identity{
		Name:      name,
		Pin:       pin,
		Embedding: embedding,
		PhotoPath: s.photoPath(name),
	}

	if err := s.registry.Enroll(identity); err != nil {
		return nil, err
	}

	if err := s.persist(identity, imageBytes); err != nil {
		s.registry.Discard(name)
		s.logAudit(ctx, audit.EventIdentityEnrolled, name, false, err)
		return nil, domain.ErrPersistence.WithError(err)
	}

	s.logAudit(ctx, audit.EventIdentityEnrolled, name, true, nil)
	if s.logger != nil {
		s.logger.Info("identity enrolled",
			slog.String("name", name),
			slog.Float64("quality", detectedFaces[0].QualityScore))
	}

	return identity, nil
}

func (s *Service) persist(identity *domain.Identity, imageBytes []byte) error {
	if err := os.MkdirAll(s.photosDir, 0o700); err != nil {
		return fmt.Errorf("create photos dir: %w", err)
	}

	if err := os.WriteFile(identity.PhotoPath, imageBytes, 0o600); err != nil {
		return fmt.Errorf("write photo: %w", err)
	}

	if err := s.roster.Append(registry.RosterRecord{
		Name:      identity.Name,
		Pin:       identity.Pin,
		PhotoPath: identity.PhotoPath,
	}); err != nil {
		return err
	}

	return s.cache.Append(identity.Name, identity.Embedding)
}

func (s *Service) photoPath(name string) string {
	base := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	return filepath.Join(s.photosDir, base+".jpg")
}

func (s *Service) logAudit(ctx context.Context, eventType audit.EventType, name string, success bool, err error) {
	event := audit.Event{
		AttemptID: uuid.New(),
		EventType: eventType,
		Identity:  name,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	_ = s.audit.Log(ctx, event)
}
