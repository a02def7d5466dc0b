package domain

import (
	"strings"
	"time"
)

// Identity representa uma pessoa cadastrada na estação
type Identity struct {
	Name           string    `json:"name"`
	Embedding      []float64 `json:"-"`
	Pin            string    `json:"-"` // never serialized or logged
	PhotoPath      string    `json:"photo_path,omitempty"`
	FailedAttempts int       `json:"failed_attempts"`
	EnrolledAt     time.Time `json:"enrolled_at"`
}

// Key is the case-insensitive registry key for counter and duplicate
// lookups. Display name keeps its original casing.
func (i *Identity) Key() string {
	return strings.ToLower(i.Name)
}

// LockedOut reports whether the identity reached the failed-PIN threshold.
func (i *Identity) LockedOut(threshold int) bool {
	return i.FailedAttempts >= threshold
}
