package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when a site has no persisted state yet.
var ErrNotFound = errors.New("run state not found")

// Store persists RunState records across process invocations.
//
// Implementations must make Save atomic: a crash mid-save never leaves a
// partially written record visible to the next Load.
type Store interface {
	// Load returns the persisted state for a site, or ErrNotFound.
	Load(ctx context.Context, site string) (RunState, error)
	// Save durably replaces the state for state.Site.
	Save(ctx context.Context, state RunState) error
	// List returns the sites that have persisted state.
	List(ctx context.Context) ([]string, error)
	// Close releases any underlying resources.
	Close() error
}
