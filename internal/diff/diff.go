// Package diff classifies freshly discovered resources against the persisted
// run state. It is read-only: classification never mutates state, all
// mutation happens during reconciliation.
package diff

import (
	"sort"

	"github.com/chirag2653/website-to-skill-folder/internal/slug"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

// Discovered is one resource returned by the discovery endpoint. Signal is an
// optional freshness hint (last-modified or similar); discovery does not
// always carry one.
type Discovered struct {
	URL    string
	Signal string
}

// Classification partitions identifiers into four disjoint subsets.
type Classification struct {
	// New resources have no record yet.
	New []string
	// Unchanged resources hold a fingerprint from a prior fetch and no
	// discovery signal contradicts it, so re-fetching is unnecessary.
	Unchanged []string
	// PossiblyChanged resources are known but were never fully fetched, or
	// their discovery signal no longer matches the recorded one.
	PossiblyChanged []string
	// Missing resources are known but absent from the latest discovery.
	Missing []string
	// Slugs maps every discovered identifier to its document slug.
	Slugs map[string]string
}

// FetchSet returns the identifiers that need a remote fetch, new first, in a
// deterministic order.
func (c Classification) FetchSet() []string {
	out := make([]string, 0, len(c.New)+len(c.PossiblyChanged))
	out = append(out, c.New...)
	out = append(out, c.PossiblyChanged...)
	return out
}

// Classify compares discovered resources against st. forceRefresh moves every
// would-be Unchanged identifier into PossiblyChanged for the whole run.
// slugMaxLen bounds generated slugs; zero means slug.DefaultMaxLen.
//
// Discovery results are a full replacement set: any known identifier absent
// from discovered is Missing. Duplicate identifiers in discovered are
// collapsed, keeping the first occurrence's signal. A slug collision between
// two distinct discovered identifiers is fatal for the run.
func Classify(discovered []Discovered, st state.RunState, forceRefresh bool, slugMaxLen int) (Classification, error) {
	if slugMaxLen <= 0 {
		slugMaxLen = slug.DefaultMaxLen
	}
	seen := make(map[string]Discovered, len(discovered))
	identifiers := make([]string, 0, len(discovered))
	for _, d := range discovered {
		if d.URL == "" {
			continue
		}
		if _, ok := seen[d.URL]; ok {
			continue
		}
		seen[d.URL] = d
		identifiers = append(identifiers, d.URL)
	}

	slugs, err := slug.Assign(identifiers, slugMaxLen)
	if err != nil {
		return Classification{}, err
	}

	out := Classification{Slugs: slugs}
	for _, id := range identifiers {
		rec, known := st.Resources[id]
		if !known || rec.Status == state.StatusDeleted {
			out.New = append(out.New, id)
			continue
		}
		if !forceRefresh && unchanged(rec, seen[id]) {
			out.Unchanged = append(out.Unchanged, id)
			continue
		}
		out.PossiblyChanged = append(out.PossiblyChanged, id)
	}

	for id, rec := range st.Resources {
		if rec.Status == state.StatusDeleted {
			continue
		}
		if _, present := seen[id]; !present {
			out.Missing = append(out.Missing, id)
		}
	}
	sort.Strings(out.Missing)
	return out, nil
}

// unchanged requires a fingerprint from a completed prior fetch. Discovery
// that lists bare identifiers offers no per-resource freshness evidence, so
// presence in the listing is taken as unchanged; a signal, when discovery
// does carry one, must match the one recorded at that fetch.
func unchanged(rec state.ResourceRecord, d Discovered) bool {
	if rec.ContentFingerprint == "" {
		return false
	}
	if d.Signal != "" && d.Signal != rec.DiscoverySignal {
		return false
	}
	return true
}
