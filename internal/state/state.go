// Package state defines the durable per-site run state and the Store
// interface its providers implement. The run state is the sole source of
// truth for incremental decisions: which resources exist, how fresh they are,
// and whether a remote batch job is still in flight from an interrupted run.
package state

import (
	"time"
)

// SchemaVersion is stamped on every persisted RunState so future readers can
// migrate old records.
const SchemaVersion = 1

// ResourceStatus tracks a resource through its lifecycle.
type ResourceStatus string

// Resource lifecycle states.
const (
	StatusActive        ResourceStatus = "active"
	StatusPendingDelete ResourceStatus = "pending_delete"
	StatusDeleted       ResourceStatus = "deleted"
)

// ResourceRecord is the persisted record for one discovered content item.
type ResourceRecord struct {
	// Identifier is the canonical source URL, unique within a site.
	Identifier string `json:"identifier"`
	// Slug is the filesystem-safe document name, a pure function of Identifier.
	Slug string `json:"slug"`
	// ContentFingerprint hashes the rendered document content from the last
	// successful fetch. An empty fingerprint forces a re-fetch.
	ContentFingerprint string `json:"content_fingerprint,omitempty"`
	// DiscoverySignal is the freshness hint the discovery listing carried for
	// this identifier, when it carried one.
	DiscoverySignal string `json:"discovery_signal,omitempty"`
	// ConsecutiveMisses counts discovery runs in a row that omitted this
	// identifier. It resets to zero the moment the identifier reappears and is
	// never touched by a failed discovery call.
	ConsecutiveMisses int `json:"consecutive_misses"`
	// Status is the lifecycle state; deleted records are dropped from the map.
	Status ResourceStatus `json:"status"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InFlightJob records a submitted-but-not-yet-reconciled remote batch job.
// Its presence in RunState means the previous run was interrupted after
// submission: the next run must resume polling this handle, never resubmit.
type InFlightJob struct {
	// Handle is the opaque job id returned by the batch submission endpoint.
	Handle string `json:"handle"`
	// BatchKey is a deterministic digest of the submitted identifier set.
	BatchKey string `json:"batch_key"`
	// Identifiers is the exact set submitted with this job.
	Identifiers []string  `json:"identifiers"`
	SubmittedAt time.Time `json:"submitted_at"`
	// Cursor is the last-seen pagination URL while collecting results.
	Cursor string `json:"cursor,omitempty"`
}

// RunState is the durable record for one site.
type RunState struct {
	Version int    `json:"version"`
	Site    string `json:"site"`
	// Resources maps identifier to its record.
	Resources map[string]ResourceRecord `json:"resources"`
	// SiteDescription is the last extracted one-line description, kept so
	// cache-only runs can re-render the index document without scraping.
	SiteDescription string     `json:"site_description,omitempty"`
	LastRunAt       time.Time  `json:"last_run_at"`
	InFlight        *InFlightJob `json:"in_flight_job,omitempty"`
}

// NewRunState returns an empty state for a site.
func NewRunState(site string) RunState {
	return RunState{
		Version:   SchemaVersion,
		Site:      site,
		Resources: make(map[string]ResourceRecord),
	}
}

// ActiveIdentifiers returns the identifiers of all active records.
func (s RunState) ActiveIdentifiers() []string {
	out := make([]string, 0, len(s.Resources))
	for id, rec := range s.Resources {
		if rec.Status == StatusActive {
			out = append(out, id)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate freely before committing.
func (s RunState) Clone() RunState {
	out := s
	out.Resources = make(map[string]ResourceRecord, len(s.Resources))
	for id, rec := range s.Resources {
		out.Resources[id] = rec
	}
	if s.InFlight != nil {
		job := *s.InFlight
		job.Identifiers = append([]string(nil), s.InFlight.Identifiers...)
		out.InFlight = &job
	}
	return out
}
