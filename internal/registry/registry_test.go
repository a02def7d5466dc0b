package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

func TestRegistry_Enroll(t *testing.T) {
	reg := New()

	err := reg.Enroll(&domain.Identity{Name: "Ada", Pin: "4321", Embedding: []float64{1, 0}})
	require.NoError(t, err)

	id, err := reg.LookupByName("ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", id.Name, "display casing is preserved")
	assert.Equal(t, 0, id.FailedAttempts)
	assert.False(t, id.EnrolledAt.IsZero())
}

func TestRegistry_Enroll_DuplicateCaseInsensitive(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Enroll(&domain.Identity{Name: "Ada", Pin: "4321"}))

	err := reg.Enroll(&domain.Identity{Name: "ADA", Pin: "0000"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Enroll_ZeroesCounter(t *testing.T) {
	reg := New()

	// Counter state on the input value must not leak into the registry
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "ada", Pin: "4321", FailedAttempts: 7}))

	id, err := reg.LookupByName("ada")
	require.NoError(t, err)
	assert.Equal(t, 0, id.FailedAttempts)
}

func TestRegistry_LookupByName_Unknown(t *testing.T) {
	reg := New()

	_, err := reg.LookupByName("nobody")
	assert.ErrorIs(t, err, domain.ErrUnknownIdentity)
}

func TestRegistry_LookupByName_ReturnsCopy(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "ada", Pin: "4321"}))

	id, err := reg.LookupByName("ada")
	require.NoError(t, err)
	id.FailedAttempts = 99

	fresh, err := reg.LookupByName("ada")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.FailedAttempts, "mutating the returned value must not touch the registry")
}

func TestRegistry_Snapshot_PreservesRegistrationOrder(t *testing.T) {
	reg := New()

	names := []string{"jobs", "mahinda", "sadmona", "tesla"}
	for i, name := range names {
		require.NoError(t, reg.Enroll(&domain.Identity{
			Name:      name,
			Pin:       "1111",
			Embedding: []float64{float64(i)},
		}))
	}

	entries := reg.Snapshot()
	require.Len(t, entries, len(names))
	for i, e := range entries {
		assert.Equal(t, names[i], e.Name)
		assert.Equal(t, []float64{float64(i)}, e.Embedding)
	}
}

func TestRegistry_Counters(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "Ada", Pin: "4321"}))

	// Counter lookups are case-insensitive
	require.NoError(t, reg.IncrementFailure("ADA"))
	require.NoError(t, reg.IncrementFailure("ada"))

	id, err := reg.LookupByName("ada")
	require.NoError(t, err)
	assert.Equal(t, 2, id.FailedAttempts)

	require.NoError(t, reg.ResetFailure("Ada"))

	id, err = reg.LookupByName("ada")
	require.NoError(t, err)
	assert.Equal(t, 0, id.FailedAttempts)
}

func TestRegistry_Counters_UnknownIdentity(t *testing.T) {
	reg := New()

	assert.ErrorIs(t, reg.IncrementFailure("ghost"), domain.ErrUnknownIdentity)
	assert.ErrorIs(t, reg.ResetFailure("ghost"), domain.ErrUnknownIdentity)
}

func TestRegistry_ConcurrentIncrements(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "ada", Pin: "4321"}))

	const workers = 50
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = reg.IncrementFailure("ada")
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}

	id, err := reg.LookupByName("ada")
	require.NoError(t, err)
	assert.Equal(t, workers, id.FailedAttempts, "no increment may be lost")
}

func TestRegistry_Discard(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "ada", Pin: "4321"}))
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "grace", Pin: "1111"}))

	reg.Discard("ADA")

	_, err := reg.LookupByName("ada")
	assert.ErrorIs(t, err, domain.ErrUnknownIdentity)
	assert.Equal(t, 1, reg.Len())

	entries := reg.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "grace", entries[0].Name)

	// Discarding an absent name is a no-op
	reg.Discard("nobody")
	assert.Equal(t, 1, reg.Len())
}
