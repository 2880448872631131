// Package reconcile applies batch job results and discovery misses to the
// run state and the document store. It owns the deletion hysteresis: a
// document is removed only after its identifier has been absent from
// discovery several runs in a row.
package reconcile

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/document"
	"github.com/chirag2653/website-to-skill-folder/internal/firecrawl"
	"github.com/chirag2653/website-to-skill-folder/internal/slug"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
	"github.com/chirag2653/website-to-skill-folder/internal/storage"
)

// PagesDir is the directory within the skill folder holding per-resource
// documents.
const PagesDir = "pages"

// DefaultMissThreshold is how many consecutive absent discoveries it takes
// before a resource is considered gone and its document removed.
const DefaultMissThreshold = 3

// Hasher fingerprints rendered document content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Op describes a document mutation for progress reporting.
type Op string

// Document operations.
const (
	OpWrite  Op = "write"
	OpDelete Op = "delete"
)

// NotifyFunc reports individual document mutations.
type NotifyFunc func(op Op, identifier string)

// Config tunes the reconciler.
type Config struct {
	// MissThreshold is the deletion hysteresis (default 3).
	MissThreshold int
	// SlugMaxLen bounds slugs derived for results that arrived without an
	// assigned one (default slug.DefaultMaxLen).
	SlugMaxLen int
}

// Request carries everything one reconciliation pass needs. State is mutated
// in place; the caller persists it once afterwards, which is the single
// logical commit for the whole batch.
type Request struct {
	State *state.RunState
	// Pages holds batch results keyed by identifier.
	Pages map[string]firecrawl.Page
	// Slugs maps discovered identifiers to document slugs.
	Slugs map[string]string
	// Signals maps discovered identifiers to their freshness hints.
	Signals map[string]string
	// Unchanged identifiers were discovered but not re-fetched.
	Unchanged []string
	// Missing identifiers were absent from this run's discovery.
	Missing []string
	// Failed identifiers were submitted but produced no result this run
	// (timeout, abandoned job). They keep their prior document and record.
	Failed []string
	// Now stamps record updates.
	Now time.Time
	// Notify is optional.
	Notify NotifyFunc
}

// Report summarizes one reconciliation pass. Identifiers appear in exactly
// one list.
type Report struct {
	Created   []string
	Updated   []string
	Unchanged []string
	Deleted   []string
	// Failed identifiers stay in their pre-run state and are retried on
	// the next run.
	Failed []string
}

// Reconciler applies results to state and storage.
type Reconciler struct {
	store  storage.Store
	hasher Hasher
	cfg    Config
	logger *zap.Logger
}

// New builds a Reconciler. A nil logger is replaced with a no-op.
func New(store storage.Store, hasher Hasher, cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = DefaultMissThreshold
	}
	if cfg.SlugMaxLen <= 0 {
		cfg.SlugMaxLen = slug.DefaultMaxLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, hasher: hasher, cfg: cfg, logger: logger}
}

// Apply runs one reconciliation pass. Each resource is handled atomically
// and in isolation: a write failure for one identifier is logged and
// reported, never aborting the rest of the batch. Replaying the same request
// produces the same end state, which is what makes crash recovery safe.
func (r *Reconciler) Apply(ctx context.Context, req Request) Report {
	notify := req.Notify
	if notify == nil {
		notify = func(Op, string) {}
	}
	report := Report{}

	for _, id := range sortedKeys(req.Pages) {
		r.applyResult(ctx, req, id, &report, notify)
	}

	for _, id := range req.Unchanged {
		rec, ok := req.State.Resources[id]
		if !ok {
			continue
		}
		rec.ConsecutiveMisses = 0
		rec.Status = state.StatusActive
		if sig := req.Signals[id]; sig != "" {
			rec.DiscoverySignal = sig
		}
		rec.UpdatedAt = req.Now
		req.State.Resources[id] = rec
		report.Unchanged = append(report.Unchanged, id)
	}

	for _, id := range req.Missing {
		r.applyMiss(ctx, req, id, &report, notify)
	}

	for _, id := range req.Failed {
		report.Failed = append(report.Failed, id)
	}
	return report
}

// applyResult writes one fetched document and advances its record.
func (r *Reconciler) applyResult(ctx context.Context, req Request, id string, report *Report, notify NotifyFunc) {
	slugName := req.Slugs[id]
	if slugName == "" {
		slugName = slug.FromURL(id, r.cfg.SlugMaxLen)
	}

	doc, ok := document.FromPage(req.Pages[id], slugName)
	if !ok {
		r.logger.Warn("batch result has no usable content, leaving prior state",
			zap.String("identifier", id))
		report.Failed = append(report.Failed, id)
		return
	}
	data, err := doc.Render()
	if err != nil {
		r.logger.Error("render document failed", zap.String("identifier", id), zap.Error(err))
		report.Failed = append(report.Failed, id)
		return
	}

	name := PagesDir + "/" + doc.Filename()
	if err := r.put(ctx, name, data); err != nil {
		r.logger.Error("document write failed, will retry next run",
			zap.String("identifier", id), zap.Error(err))
		report.Failed = append(report.Failed, id)
		return
	}
	notify(OpWrite, id)

	fingerprint, err := r.hasher.Hash(data)
	if err != nil {
		r.logger.Error("fingerprint document failed", zap.String("identifier", id), zap.Error(err))
		report.Failed = append(report.Failed, id)
		return
	}

	rec, existed := req.State.Resources[id]
	if !existed {
		rec = state.ResourceRecord{Identifier: id, FirstSeenAt: req.Now}
	}
	rec.Slug = slugName
	rec.ContentFingerprint = fingerprint
	rec.DiscoverySignal = req.Signals[id]
	rec.ConsecutiveMisses = 0
	rec.Status = state.StatusActive
	rec.UpdatedAt = req.Now
	req.State.Resources[id] = rec

	if existed {
		report.Updated = append(report.Updated, id)
	} else {
		report.Created = append(report.Created, id)
	}
}

// applyMiss advances the hysteresis counter and deletes at the threshold.
func (r *Reconciler) applyMiss(ctx context.Context, req Request, id string, report *Report, notify NotifyFunc) {
	rec, ok := req.State.Resources[id]
	if !ok {
		return
	}
	rec.ConsecutiveMisses++
	rec.UpdatedAt = req.Now

	if rec.ConsecutiveMisses < r.cfg.MissThreshold {
		// Presumed transiently absent from discovery, not actually gone.
		req.State.Resources[id] = rec
		return
	}

	name := PagesDir + "/" + rec.Slug + ".md"
	if err := r.delete(ctx, name); err != nil {
		// Keep the record so the next run retries the removal.
		r.logger.Error("document delete failed, will retry next run",
			zap.String("identifier", id), zap.Error(err))
		rec.Status = state.StatusPendingDelete
		req.State.Resources[id] = rec
		report.Failed = append(report.Failed, id)
		return
	}
	notify(OpDelete, id)
	delete(req.State.Resources, id)
	report.Deleted = append(report.Deleted, id)
	r.logger.Info("resource deleted after repeated discovery misses",
		zap.String("identifier", id),
		zap.Int("misses", rec.ConsecutiveMisses))
}

// put retries a failed write once immediately before giving up.
func (r *Reconciler) put(ctx context.Context, name string, data []byte) error {
	if err := r.store.Put(ctx, name, data); err != nil {
		r.logger.Warn("document write failed, retrying once", zap.String("name", name), zap.Error(err))
		return r.store.Put(ctx, name, data)
	}
	return nil
}

func (r *Reconciler) delete(ctx context.Context, name string) error {
	if err := r.store.Delete(ctx, name); err != nil {
		r.logger.Warn("document delete failed, retrying once", zap.String("name", name), zap.Error(err))
		return r.store.Delete(ctx, name)
	}
	return nil
}

func sortedKeys(pages map[string]firecrawl.Page) []string {
	keys := make([]string, 0, len(pages))
	for id := range pages {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}
