// Package storage provides abstractions for persistent local state.
package storage

import (
	"context"
	"errors"
)

// KeyActiveGroup records the group an identity last selected.
const KeyActiveGroup = "activeGroup"

// ErrNotFound is returned when a preference has never been set.
var ErrNotFound = errors.New("preference not found")

// Store persists client-local preferences. Projected contract state is never
// stored; the contracts stay the only source of truth for it.
type Store interface {
	// GetPreference returns the value stored for (owner, key), or ErrNotFound.
	GetPreference(ctx context.Context, owner, key string) (string, error)

	// SetPreference creates or replaces the value for (owner, key).
	SetPreference(ctx context.Context, owner, key, value string) error

	// DeletePreference removes the value for (owner, key). Deleting a missing
	// preference is not an error.
	DeletePreference(ctx context.Context, owner, key string) error

	// Close releases any resources held by the store.
	Close() error
}
