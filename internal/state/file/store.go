// Package file implements a local filesystem run-state store. Each site is
// one JSON file under the base directory, written via temp-file-and-rename so
// a killed process never corrupts the record.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

const stateFileSuffix = ".state.json"

// Store persists run state as one JSON file per site.
type Store struct {
	baseDir string
}

// New creates a file-backed store rooted at baseDir, creating it if needed.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Load reads and decodes the site's state file.
func (s *Store) Load(_ context.Context, site string) (state.RunState, error) {
	data, err := os.ReadFile(s.path(site))
	if err != nil {
		if os.IsNotExist(err) {
			return state.RunState{}, state.ErrNotFound
		}
		return state.RunState{}, fmt.Errorf("read run state: %w", err)
	}
	var st state.RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return state.RunState{}, fmt.Errorf("decode run state for %s: %w", site, err)
	}
	if st.Resources == nil {
		st.Resources = make(map[string]state.ResourceRecord)
	}
	return st, nil
}

// Save writes the state atomically via temp file + rename.
func (s *Store) Save(_ context.Context, st state.RunState) error {
	if st.Site == "" {
		return fmt.Errorf("run state has no site")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	target := s.path(st.Site)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("commit run state: %w", err)
	}
	return nil
}

// List returns the sites with a state file in the base directory.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list state directory: %w", err)
	}
	var sites []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), stateFileSuffix) {
			continue
		}
		sites = append(sites, strings.TrimSuffix(e.Name(), stateFileSuffix))
	}
	return sites, nil
}

// Close implements state.Store; the file store holds no resources.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(site string) string {
	return filepath.Join(s.baseDir, site+stateFileSuffix)
}
