package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirag2653/website-to-skill-folder/internal/slug"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

func stateWith(records ...state.ResourceRecord) state.RunState {
	st := state.NewRunState("example.com")
	for _, rec := range records {
		st.Resources[rec.Identifier] = rec
	}
	return st
}

func TestClassifyPartitionsAreDisjoint(t *testing.T) {
	st := stateWith(
		state.ResourceRecord{
			Identifier:         "https://example.com/docs",
			ContentFingerprint: "abc",
			DiscoverySignal:    "2026-01-01",
			Status:             state.StatusActive,
		},
		state.ResourceRecord{
			Identifier: "https://example.com/blog",
			Status:     state.StatusActive,
		},
		state.ResourceRecord{
			Identifier:         "https://example.com/gone",
			ContentFingerprint: "def",
			Status:             state.StatusActive,
		},
	)
	discovered := []Discovered{
		{URL: "https://example.com/docs", Signal: "2026-01-01"},
		{URL: "https://example.com/blog"},
		{URL: "https://example.com/about"},
	}

	c, err := Classify(discovered, st, false, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/about"}, c.New)
	assert.Equal(t, []string{"https://example.com/docs"}, c.Unchanged)
	assert.Equal(t, []string{"https://example.com/blog"}, c.PossiblyChanged)
	assert.Equal(t, []string{"https://example.com/gone"}, c.Missing)

	total := len(c.New) + len(c.Unchanged) + len(c.PossiblyChanged)
	assert.Equal(t, len(discovered), total)
}

func TestClassifyBareListingKeepsFetchedResources(t *testing.T) {
	// The map discovery endpoint lists plain URLs with no freshness hints.
	// Resources that already hold a fetch fingerprint must not be
	// resubmitted just because the listing is bare, or every repeat run
	// would re-scrape the whole site.
	st := stateWith(
		state.ResourceRecord{
			Identifier:         "https://example.com/a",
			ContentFingerprint: "abc",
			Status:             state.StatusActive,
		},
		state.ResourceRecord{
			Identifier:         "https://example.com/c",
			ContentFingerprint: "def",
			DiscoverySignal:    "2026-01-01",
			Status:             state.StatusActive,
		},
	)
	discovered := []Discovered{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/c"},
	}

	c, err := Classify(discovered, st, false, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://example.com/a", "https://example.com/c"}, c.Unchanged)
	assert.Empty(t, c.PossiblyChanged)
	assert.Empty(t, c.FetchSet())
}

func TestClassifyRefetchesWithoutFingerprintOrOnSignalChange(t *testing.T) {
	st := stateWith(
		// Signal matches but no prior fetch fingerprint exists.
		state.ResourceRecord{
			Identifier:      "https://example.com/b",
			DiscoverySignal: "2026-01-01",
			Status:          state.StatusActive,
		},
		// Signal changed since the last fetch.
		state.ResourceRecord{
			Identifier:         "https://example.com/c",
			ContentFingerprint: "abc",
			DiscoverySignal:    "2026-01-01",
			Status:             state.StatusActive,
		},
		// Discovery now carries a signal the record never saw.
		state.ResourceRecord{
			Identifier:         "https://example.com/d",
			ContentFingerprint: "def",
			Status:             state.StatusActive,
		},
	)
	discovered := []Discovered{
		{URL: "https://example.com/b", Signal: "2026-01-01"},
		{URL: "https://example.com/c", Signal: "2026-02-15"},
		{URL: "https://example.com/d", Signal: "2026-02-15"},
	}

	c, err := Classify(discovered, st, false, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Unchanged)
	assert.Len(t, c.PossiblyChanged, 3)
}

func TestClassifyForceRefresh(t *testing.T) {
	st := stateWith(state.ResourceRecord{
		Identifier:         "https://example.com/docs",
		ContentFingerprint: "abc",
		DiscoverySignal:    "2026-01-01",
		Status:             state.StatusActive,
	})
	discovered := []Discovered{{URL: "https://example.com/docs", Signal: "2026-01-01"}}

	c, err := Classify(discovered, st, true, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Unchanged)
	assert.Equal(t, []string{"https://example.com/docs"}, c.PossiblyChanged)
}

func TestClassifyDeletedRecordRediscoveredIsNew(t *testing.T) {
	st := stateWith(state.ResourceRecord{
		Identifier: "https://example.com/old",
		Status:     state.StatusDeleted,
	})

	c, err := Classify([]Discovered{{URL: "https://example.com/old"}}, st, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/old"}, c.New)
	assert.Empty(t, c.Missing)
}

func TestClassifyDeduplicatesDiscovery(t *testing.T) {
	c, err := Classify([]Discovered{
		{URL: "https://example.com/docs", Signal: "first"},
		{URL: "https://example.com/docs", Signal: "second"},
		{URL: ""},
	}, state.NewRunState("example.com"), false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/docs"}, c.New)
	assert.Len(t, c.Slugs, 1)
}

func TestClassifySlugCollisionIsFatal(t *testing.T) {
	_, err := Classify([]Discovered{
		{URL: "https://example.com/a/b"},
		{URL: "https://example.com/a--b"},
	}, state.NewRunState("example.com"), false, 0)

	var collision *slug.CollisionError
	require.ErrorAs(t, err, &collision)
}

func TestClassifyHonorsSlugMaxLen(t *testing.T) {
	url := "https://example.com/guides/a-very-long-path-that-would-normally-produce-a-long-slug"

	c, err := Classify([]Discovered{{URL: url}}, state.NewRunState("example.com"), false, 24)
	require.NoError(t, err)
	assert.Equal(t, slug.FromURL(url, 24), c.Slugs[url])
	// The bound actually reached slug assignment: the default-length slug
	// for this URL is a different, untruncated name.
	assert.NotEqual(t, slug.FromURL(url, 0), c.Slugs[url])
}

func TestFetchSetOrdering(t *testing.T) {
	c := Classification{
		New:             []string{"n1", "n2"},
		PossiblyChanged: []string{"p1"},
	}
	assert.Equal(t, []string{"n1", "n2", "p1"}, c.FetchSet())
}
