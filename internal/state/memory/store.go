// Package memory stores run state in-memory for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

// Store keeps run state in a map. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	sites map[string]state.RunState
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{sites: make(map[string]state.RunState)}
}

// Load returns a deep copy of the stored state or state.ErrNotFound.
func (s *Store) Load(_ context.Context, site string) (state.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sites[site]
	if !ok {
		return state.RunState{}, state.ErrNotFound
	}
	return st.Clone(), nil
}

// Save stores a deep copy of the state.
func (s *Store) Save(_ context.Context, st state.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[st.Site] = st.Clone()
	return nil
}

// List returns the stored site keys.
func (s *Store) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sites))
	for site := range s.sites {
		out = append(out, site)
	}
	return out, nil
}

// Close implements state.Store.
func (s *Store) Close() error {
	return nil
}
