package matcher

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

// Matcher resolves a probe embedding to an enrolled identity. The scan is
// linear over registration order and the FIRST identity whose similarity
// clears the threshold wins. Known limitation: if two enrollments are
// visual near-duplicates the earlier-registered one always wins; there is
// no ranking by confidence.
type Matcher struct {
	registry  *registry.Registry
	provider  provider.FaceProvider
	threshold float64
}

func New(reg *registry.Registry, faceProvider provider.FaceProvider, threshold float64) *Matcher {
	return &Matcher{
		registry:  reg,
		provider:  faceProvider,
		threshold: threshold,
	}
}

// Match returns the first enrolled identity similar to the probe, or the
// zero MatchResult when nobody matches. The registry is never mutated here.
func (m *Matcher) Match(ctx context.Context, probe []float64) (domain.MatchResult, error) {
	for _, entry := range m.registry.Snapshot() {
		similarity, err := m.provider.Similarity(ctx, probe, entry.Embedding)
		if err != nil {
			return domain.MatchResult{}, fmt.Errorf("compare probe with %s: %w", entry.Name, err)
		}

		if similarity >= m.threshold {
			return domain.MatchResult{
				Name:       entry.Name,
				Confidence: similarity,
			}, nil
		}
	}

	return domain.MatchResult{}, nil
}
