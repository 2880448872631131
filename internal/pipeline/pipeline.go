// Package pipeline wires discovery, diffing, batch orchestration,
// reconciliation, and index assembly into the single run entry point.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/assemble"
	"github.com/chirag2653/website-to-skill-folder/internal/diff"
	"github.com/chirag2653/website-to-skill-folder/internal/orchestrator"
	"github.com/chirag2653/website-to-skill-folder/internal/progress"
	"github.com/chirag2653/website-to-skill-folder/internal/publisher"
	"github.com/chirag2653/website-to-skill-folder/internal/reconcile"
	"github.com/chirag2653/website-to-skill-folder/internal/site"
	"github.com/chirag2653/website-to-skill-folder/internal/slug"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
	"github.com/chirag2653/website-to-skill-folder/internal/storage"
)

// ErrRunInProgress is returned when a second run for the same site starts
// while one is still executing in this process.
var ErrRunInProgress = errors.New("a run for this site is already in progress")

// DiscoveryError means the remote listing was unreachable or malformed. The
// run aborts before any state mutation, so retrying later is always safe.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover site resources: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Status is the final disposition of one run.
type Status string

// Run outcomes.
const (
	// StatusSucceeded means every classified resource reached its target state.
	StatusSucceeded Status = "succeeded"
	// StatusPartial means the run committed what it could; some resources
	// stay in their pre-run state and will be retried next run.
	StatusPartial Status = "partial"
	// StatusFailed means the run aborted; a resumable job may be recorded.
	StatusFailed Status = "failed"
)

// Options tune one run.
type Options struct {
	// ForceRefresh re-fetches resources the diff would consider unchanged
	// and asks discovery to bypass its caches.
	ForceRefresh bool
	// SkipRemote re-renders the index document from persisted state and
	// the documents already on disk, without any remote calls.
	SkipRemote bool
	// MaxPages caps how many resources are fetched this run. Zero means
	// no cap beyond the orchestrator's batch limit.
	MaxPages int
	// Description overrides the derived one-line site description.
	Description string
}

// Report summarizes one run.
type Report struct {
	RunID  string
	Site   string
	Status Status

	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	Failed    int
	// Deferred resources exceeded this run's caps and were left for the
	// next run.
	Deferred int

	CreditsUsed int
	// ResumeHandle is set when an in-flight job survives this run.
	ResumeHandle string
	// OutputDir names the local skill folder when the document store is
	// directory-backed, and is empty otherwise.
	OutputDir string
}

// Discoverer lists a site's current resources.
type Discoverer interface {
	Map(ctx context.Context, rootURL string, limit int, ignoreCache bool) ([]string, error)
}

// BatchRunner drives one remote batch job to a terminal state.
type BatchRunner interface {
	Execute(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// IDGenerator mints run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Config tunes the pipeline.
type Config struct {
	// DiscoveryLimit caps the map request (default 100000).
	DiscoveryLimit int
	// EventTopic is where run events are published (default "skill-folder-runs").
	EventTopic string
	// OutputDir, when set, is echoed in every report so callers can point
	// users at the folder that was written.
	OutputDir string
	// SlugMaxLen bounds generated document slugs (default slug.DefaultMaxLen).
	SlugMaxLen int
}

// Runner executes site runs. Runs for different sites are independent; runs
// for the same site are serialized by an in-process lock.
type Runner struct {
	states     state.Store
	docs       storage.Store
	discoverer Discoverer
	batch      BatchRunner
	reconciler *reconcile.Reconciler
	clock      orchestrator.Clock
	ids        IDGenerator
	events     publisher.Publisher
	emitter    progress.Emitter
	cfg        Config
	logger     *zap.Logger

	locks *siteLocks
}

// New builds a Runner. events and emitter may be nil.
func New(
	states state.Store,
	docs storage.Store,
	discoverer Discoverer,
	batch BatchRunner,
	reconciler *reconcile.Reconciler,
	clock orchestrator.Clock,
	ids IDGenerator,
	events publisher.Publisher,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.DiscoveryLimit <= 0 {
		cfg.DiscoveryLimit = 100000
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = "skill-folder-runs"
	}
	if cfg.SlugMaxLen <= 0 {
		cfg.SlugMaxLen = slug.DefaultMaxLen
	}
	if events == nil {
		events = publisher.NoOp{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		states:     states,
		docs:       docs,
		discoverer: discoverer,
		batch:      batch,
		reconciler: reconciler,
		clock:      clock,
		ids:        ids,
		events:     events,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
		locks:      newSiteLocks(),
	}
}

// Run executes the full discovery, diff, fetch, reconcile, assemble sequence
// for one site and returns its report. rawSite accepts anything the site
// resolver does: bare domains, full URLs, www-prefixed hosts.
func (r *Runner) Run(ctx context.Context, rawSite string, opts Options) (Report, error) {
	s, err := site.Resolve(rawSite)
	if err != nil {
		return Report{Status: StatusFailed}, err
	}
	if !r.locks.acquire(s.Domain) {
		return Report{Site: s.Domain, Status: StatusFailed}, ErrRunInProgress
	}
	defer r.locks.release(s.Domain)

	runID, err := r.ids.NewID()
	if err != nil {
		return Report{Site: s.Domain, Status: StatusFailed}, fmt.Errorf("mint run id: %w", err)
	}
	started := r.clock.Now()
	r.emit(progress.Event{RunID: runID, TS: started, Site: s.Domain, Stage: progress.StageRunStart})

	report, runErr := r.execute(ctx, runID, s, opts)
	report.RunID = runID
	report.Site = s.Domain
	report.OutputDir = r.cfg.OutputDir

	dur := r.clock.Now().Sub(started)
	if runErr != nil {
		r.emit(progress.Event{
			RunID: runID, TS: r.clock.Now(), Site: s.Domain,
			Stage: progress.StageRunError, Dur: dur, Note: runErr.Error(),
		})
	} else {
		r.emit(progress.Event{
			RunID: runID, TS: r.clock.Now(), Site: s.Domain,
			Stage: progress.StageRunDone, Dur: dur,
		})
	}
	r.publishEvent(ctx, report, started)
	return report, runErr
}

func (r *Runner) execute(ctx context.Context, runID string, s site.Site, opts Options) (Report, error) {
	st, err := r.loadState(ctx, s)
	if err != nil {
		return Report{Status: StatusFailed}, err
	}

	if opts.SkipRemote {
		return r.refreshIndexOnly(ctx, s, &st, opts)
	}

	var cls diff.Classification
	fetch := []string(nil)
	signals := map[string]string{}

	resume := st.InFlight
	if resume == nil {
		links, err := r.discoverer.Map(ctx, s.RootURL, r.cfg.DiscoveryLimit, opts.ForceRefresh)
		if err != nil {
			return Report{Status: StatusFailed}, &DiscoveryError{Err: err}
		}
		discovered := make([]diff.Discovered, 0, len(links))
		for _, link := range links {
			discovered = append(discovered, diff.Discovered{URL: link})
		}
		cls, err = diff.Classify(discovered, st, opts.ForceRefresh, r.cfg.SlugMaxLen)
		if err != nil {
			return Report{Status: StatusFailed}, err
		}
		for _, d := range discovered {
			if d.Signal != "" {
				signals[d.URL] = d.Signal
			}
		}
		r.emit(progress.Event{
			RunID: runID, TS: r.clock.Now(), Site: s.Domain,
			Stage: progress.StageDiscoveryDone, Total: len(discovered),
		})
		fetch = cls.FetchSet()
	} else {
		// An interrupted run left a submitted job behind. Resume it before
		// doing anything else; this run's discovery is skipped so the
		// original classification's miss accounting is not double-applied.
		slugs, err := slug.Assign(resume.Identifiers, r.cfg.SlugMaxLen)
		if err != nil {
			return Report{Status: StatusFailed}, err
		}
		cls = diff.Classification{Slugs: slugs}
		r.emit(progress.Event{
			RunID: runID, TS: r.clock.Now(), Site: s.Domain,
			Stage: progress.StageJobResumed, Total: len(resume.Identifiers),
		})
	}

	capped := 0
	if opts.MaxPages > 0 && len(fetch) > opts.MaxPages {
		capped = len(fetch) - opts.MaxPages
		fetch = fetch[:opts.MaxPages]
	}

	report := Report{Deferred: capped}
	res, batchErr := r.runBatch(ctx, runID, s, &st, fetch, resume, cls)
	report.Deferred += len(res.Deferred)
	report.CreditsUsed = res.CreditsUsed

	switch {
	case batchErr != nil && isAbort(batchErr, res.State):
		return r.failBatch(ctx, &st, res, batchErr, report)
	case res.State == orchestrator.StateTimedOut:
		r.logger.Warn("batch job timed out, affected resources keep prior documents",
			zap.String("handle", res.Job.Handle))
	}

	// Identifiers submitted this run (or resumed) that produced no result
	// keep their prior record and document; they are retried next run.
	failed := unresolved(res, fetch, resume)

	now := r.clock.Now()
	rep := r.reconciler.Apply(ctx, reconcile.Request{
		State:     &st,
		Pages:     res.Pages,
		Slugs:     cls.Slugs,
		Signals:   signals,
		Unchanged: cls.Unchanged,
		Missing:   cls.Missing,
		Failed:    failed,
		Now:       now,
		Notify: func(op reconcile.Op, id string) {
			stage := progress.StageDocWritten
			if op == reconcile.OpDelete {
				stage = progress.StageDocDeleted
			}
			r.emit(progress.Event{
				RunID: runID, TS: r.clock.Now(), Site: s.Domain,
				Stage: stage, Identifier: id,
			})
		},
	})

	description := assemble.DescribeSite(res.Pages, s, firstNonEmpty(opts.Description, st.SiteDescription))
	if err := assemble.Write(ctx, r.docs, s, description); err != nil {
		return Report{Status: StatusFailed}, err
	}

	// The single logical commit for the whole batch: document writes are
	// done, so the advanced state and the cleared in-flight record land
	// together. A crash before this point leaves the previous state plus
	// the in-flight job, and the next run re-polls and re-applies.
	st.SiteDescription = description
	st.InFlight = nil
	st.LastRunAt = now
	if err := r.states.Save(ctx, st); err != nil {
		return Report{Status: StatusFailed}, fmt.Errorf("commit run state: %w", err)
	}

	report.Created = len(rep.Created)
	report.Updated = len(rep.Updated)
	report.Unchanged = len(rep.Unchanged)
	report.Deleted = len(rep.Deleted)
	report.Failed = len(rep.Failed)
	report.Status = StatusSucceeded
	if report.Failed > 0 || res.State == orchestrator.StateTimedOut {
		report.Status = StatusPartial
	}
	return report, nil
}

// runBatch executes the remote job when there is anything to fetch.
func (r *Runner) runBatch(
	ctx context.Context,
	runID string,
	s site.Site,
	st *state.RunState,
	fetch []string,
	resume *state.InFlightJob,
	cls diff.Classification,
) (orchestrator.Result, error) {
	if resume == nil && len(fetch) == 0 {
		return orchestrator.Result{State: orchestrator.StateCompleted}, nil
	}
	return r.batch.Execute(ctx, orchestrator.Request{
		Identifiers: fetch,
		Resume:      resume,
		Persist: func(job *state.InFlightJob) error {
			st.InFlight = job
			if err := r.states.Save(ctx, *st); err != nil {
				return fmt.Errorf("persist in-flight job: %w", err)
			}
			return nil
		},
		Notify: func(m orchestrator.Milestone) {
			stage := progress.StageJobPoll
			if m.Kind == orchestrator.MilestoneSubmitted {
				stage = progress.StageJobSubmitted
			}
			if m.Kind == orchestrator.MilestoneResumed {
				return // already emitted by the caller
			}
			r.emit(progress.Event{
				RunID: runID, TS: r.clock.Now(), Site: s.Domain,
				Stage: stage, Completed: m.Completed, Total: m.Total,
			})
		},
	})
}

// isAbort reports whether the batch outcome stops this run before
// reconciliation. A timeout is not an abort: the run continues with partial
// progress.
func isAbort(err error, jobState orchestrator.JobState) bool {
	return err != nil && jobState != orchestrator.StateTimedOut
}

// failBatch finishes a run whose batch step aborted. A remotely failed job
// is cleared so the next run submits fresh; any other failure keeps the
// in-flight record for resumption.
func (r *Runner) failBatch(ctx context.Context, st *state.RunState, res orchestrator.Result, batchErr error, report Report) (Report, error) {
	report.Status = StatusFailed

	var jobFailed *JobFailedError
	if errors.As(batchErr, &jobFailed) {
		st.InFlight = nil
		if err := r.states.Save(ctx, *st); err != nil {
			r.logger.Error("clear failed job record", zap.Error(err))
		}
		return report, batchErr
	}
	if res.Job != nil {
		report.ResumeHandle = res.Job.Handle
	}
	return report, batchErr
}

// JobFailedError aliases the orchestrator's type for callers of this package.
type JobFailedError = orchestrator.JobFailedError

// refreshIndexOnly re-renders SKILL.md from persisted state. The documents
// already in the store are the cache; nothing remote is touched.
func (r *Runner) refreshIndexOnly(ctx context.Context, s site.Site, st *state.RunState, opts Options) (Report, error) {
	description := firstNonEmpty(opts.Description, st.SiteDescription, "a website at "+s.Domain)
	if err := assemble.Write(ctx, r.docs, s, description); err != nil {
		return Report{Status: StatusFailed}, err
	}
	if description != st.SiteDescription {
		st.SiteDescription = description
		if err := r.states.Save(ctx, *st); err != nil {
			return Report{Status: StatusFailed}, fmt.Errorf("commit run state: %w", err)
		}
	}
	return Report{Status: StatusSucceeded, Unchanged: len(st.Resources)}, nil
}

func (r *Runner) loadState(ctx context.Context, s site.Site) (state.RunState, error) {
	st, err := r.states.Load(ctx, s.Domain)
	if errors.Is(err, state.ErrNotFound) {
		return state.NewRunState(s.Domain), nil
	}
	if err != nil {
		return state.RunState{}, fmt.Errorf("load run state: %w", err)
	}
	return st, nil
}

// unresolved lists identifiers that were part of the job but have no result.
func unresolved(res orchestrator.Result, fetch []string, resume *state.InFlightJob) []string {
	submitted := fetch
	if resume != nil {
		submitted = resume.Identifiers
	} else if res.Job != nil {
		submitted = res.Job.Identifiers
	}
	var out []string
	for _, id := range submitted {
		if _, ok := res.Pages[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// RunEvent is the payload published after every run.
type RunEvent struct {
	RunID       string    `json:"run_id"`
	Site        string    `json:"site"`
	Status      Status    `json:"status"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Unchanged   int       `json:"unchanged"`
	Deleted     int       `json:"deleted"`
	Failed      int       `json:"failed"`
	CreditsUsed int       `json:"credits_used"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (r *Runner) publishEvent(ctx context.Context, report Report, started time.Time) {
	_, err := r.events.Publish(ctx, r.cfg.EventTopic, RunEvent{
		RunID:       report.RunID,
		Site:        report.Site,
		Status:      report.Status,
		Created:     report.Created,
		Updated:     report.Updated,
		Unchanged:   report.Unchanged,
		Deleted:     report.Deleted,
		Failed:      report.Failed,
		CreditsUsed: report.CreditsUsed,
		StartedAt:   started,
		FinishedAt:  r.clock.Now(),
	})
	if err != nil {
		r.logger.Warn("publish run event failed", zap.Error(err))
	}
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// siteLocks serializes runs per site within this process.
type siteLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newSiteLocks() *siteLocks {
	return &siteLocks{held: make(map[string]bool)}
}

func (l *siteLocks) acquire(site string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[site] {
		return false
	}
	l.held[site] = true
	return true
}

func (l *siteLocks) release(site string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, site)
}
