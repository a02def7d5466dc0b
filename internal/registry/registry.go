package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Entry is one (name, embedding) pair in registration order, consumed by
// the matcher's linear scan.
type Entry struct {
	Name      string
	Embedding []float64
}

// Registry is the single source of truth for enrolled identities and their
// failed-PIN counters. All mutation happens under one mutex so concurrent
// verification pipelines never lose counter increments.
type Registry struct {
	mu      sync.Mutex
	ordered []*domain.Identity
	byKey   map[string]*domain.Identity
}

func New() *Registry {
	return &Registry{
		byKey: make(map[string]*domain.Identity),
	}
}

// Enroll inserts a new identity with a zeroed failure counter. The name is
// compared case-insensitively against existing identities; the original
// casing is preserved for display and log lines.
func (r *Registry) Enroll(identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identity.Key()
	if _, exists := r.byKey[key]; exists {
		return domain.ErrDuplicateIdentity
	}

	stored := *identity
	stored.FailedAttempts = 0
	if stored.EnrolledAt.IsZero() {
		stored.EnrolledAt = time.Now()
	}

	r.ordered = append(r.ordered, &stored)
	r.byKey[key] = &stored

	return nil
}

// Discard removes an identity again. Only used to roll back an enrollment
// whose durable persistence failed; identities are never deleted otherwise.
func (r *Registry) Discard(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := r.byKey[key]; !exists {
		return
	}

	delete(r.byKey, key)
	for i, id := range r.ordered {
		if id.Key() == key {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
}

// LookupByName returns a copy of the identity, or domain.ErrUnknownIdentity.
func (r *Registry) LookupByName(name string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.byKey[strings.ToLower(name)]
	if !exists {
		return nil, domain.ErrUnknownIdentity
	}

	copied := *id
	return &copied, nil
}

// Snapshot returns the (name, embedding) pairs in registration order:
// bootstrap identities first, then enrollments in enrollment order. The
// matcher's first-match-wins tie-break depends on this ordering.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.ordered))
	for _, id := range r.ordered {
		entries = append(entries, Entry{
			Name:      id.Name,
			Embedding: id.Embedding,
		})
	}

	return entries
}

// IncrementFailure adds one to the named identity's failed-PIN counter.
func (r *Registry) IncrementFailure(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.byKey[strings.ToLower(name)]
	if !exists {
		return domain.ErrUnknownIdentity
	}

	id.FailedAttempts++
	return nil
}

// ResetFailure zeroes the named identity's failed-PIN counter.
func (r *Registry) ResetFailure(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.byKey[strings.ToLower(name)]
	if !exists {
		return domain.ErrUnknownIdentity
	}

	id.FailedAttempts = 0
	return nil
}

// Len returns how many identities are enrolled.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.ordered)
}
