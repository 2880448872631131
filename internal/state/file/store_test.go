package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

func TestLoadMissingSiteReturnsNotFound(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "example.com")
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	st := state.NewRunState("example.com")
	st.LastRunAt = time.Unix(1700000000, 0).UTC()
	st.Resources["https://example.com/about"] = state.ResourceRecord{
		Identifier:         "https://example.com/about",
		Slug:               "about",
		ContentFingerprint: "abc",
		Status:             state.StatusActive,
	}
	st.InFlight = &state.InFlightJob{
		Handle:      "job-1",
		BatchKey:    "deadbeefdeadbeef",
		Identifiers: []string{"https://example.com/about"},
		SubmittedAt: time.Unix(1700000100, 0).UTC(),
	}
	require.NoError(t, store.Save(context.Background(), st))

	loaded, err := store.Load(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, st, loaded)
}

func TestSaveIsAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	st := state.NewRunState("example.com")
	require.NoError(t, store.Save(context.Background(), st))

	// No temp file left behind after a successful commit.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "example.com.state.json", entries[0].Name())
}

func TestLoadCorruptStateSurfacesError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "example.com.state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err = store.Load(context.Background(), "example.com")
	require.Error(t, err)
	require.NotErrorIs(t, err, state.ErrNotFound)
}

func TestListReturnsPersistedSites(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), state.NewRunState("a.example.com")))
	require.NoError(t, store.Save(context.Background(), state.NewRunState("b.example.com")))

	sites, err := store.List(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, sites)
}
