// Package orchestrator drives one remote batch job from submission to a
// terminal state. It owns the poll loop, pagination, and the in-flight job
// bookkeeping that makes interrupted runs resumable.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/firecrawl"
	"github.com/chirag2653/website-to-skill-folder/internal/hash/sha256"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

// JobState is the orchestrator's position in the batch job lifecycle.
type JobState string

// Lifecycle states. NotSubmitted through Polling are transient; the rest are
// terminal for one invocation.
const (
	StateNotSubmitted JobState = "NOT_SUBMITTED"
	StateSubmitted    JobState = "SUBMITTED"
	StatePolling      JobState = "POLLING"
	StateCompleted    JobState = "COMPLETED"
	StateFailed       JobState = "FAILED"
	StateTimedOut     JobState = "TIMED_OUT"
)

// Client is the remote batch API surface the orchestrator needs. The
// concrete client retries transient errors internally, so a returned error
// means the retry ceiling was already exhausted.
type Client interface {
	SubmitBatch(ctx context.Context, urls []string) (string, error)
	BatchStatus(ctx context.Context, handle string) (firecrawl.BatchStatus, error)
	BatchPage(ctx context.Context, pageURL string) (firecrawl.BatchPage, error)
}

// Clock abstracts time so the poll loop is testable without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Config bounds the poll loop.
type Config struct {
	// PollInterval is the fixed delay between status polls (default 5s).
	PollInterval time.Duration
	// PollBudget is the wall-clock ceiling for one job; exceeding it
	// abandons the job as timed out (default 10m).
	PollBudget time.Duration
	// MaxBatchItems caps how many identifiers one job may carry. Extra
	// identifiers are deferred to the next run, not dropped (default 100).
	MaxBatchItems int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollBudget <= 0 {
		c.PollBudget = 10 * time.Minute
	}
	if c.MaxBatchItems <= 0 {
		c.MaxBatchItems = 100
	}
	return c
}

// PersistFunc durably records the in-flight job. It is called with the job
// handle before the first poll, and again as the pagination cursor advances.
type PersistFunc func(job *state.InFlightJob) error

// NotifyFunc reports poll-loop milestones to the caller's progress stream.
type NotifyFunc func(milestone Milestone)

// Milestone is one observable step of the job lifecycle.
type Milestone struct {
	Kind      MilestoneKind
	Completed int
	Total     int
}

// MilestoneKind enumerates the notifications Execute emits.
type MilestoneKind string

// Notification kinds.
const (
	MilestoneSubmitted MilestoneKind = "submitted"
	MilestoneResumed   MilestoneKind = "resumed"
	MilestonePoll      MilestoneKind = "poll"
)

// Request describes one Execute invocation.
type Request struct {
	// Identifiers to submit. Ignored when Resume is set.
	Identifiers []string
	// Resume, when non-nil, skips submission and polls this existing job.
	Resume *state.InFlightJob
	// Persist durably records in-flight bookkeeping. Required.
	Persist PersistFunc
	// Notify is optional.
	Notify NotifyFunc
}

// Result is the terminal outcome of one Execute invocation.
type Result struct {
	State JobState
	// Job is the in-flight record as last persisted. For non-terminal
	// failures it must stay in the run state so the next run resumes it.
	Job *state.InFlightJob
	// Pages holds the accumulated job results keyed by submitted
	// identifier. Duplicate delivery across pages is tolerated: the last
	// result for an identifier wins.
	Pages map[string]firecrawl.Page
	// Deferred are identifiers that exceeded the batch cap and were not
	// submitted this run.
	Deferred []string
	// CreditsUsed is the provider's reported cost, when reported.
	CreditsUsed int
}

// SubmissionError means the job could not be created. Nothing was persisted,
// so the run aborts with no partial state.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit batch job: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// JobFailedError means the remote job itself reached a terminal failure
// state. Resuming it is pointless; the caller should clear the in-flight
// record and retry with a fresh submission next run.
type JobFailedError struct {
	Handle string
	Status string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("batch job %s terminated remotely with status %q", e.Handle, e.Status)
}

// Orchestrator executes batch jobs.
type Orchestrator struct {
	client Client
	clock  Clock
	cfg    Config
	logger *zap.Logger
}

// New builds an Orchestrator. A nil logger is replaced with a no-op.
func New(client Client, clock Clock, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client: client,
		clock:  clock,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Execute drives one job to a terminal state.
//
// Crash safety: the job handle and the exact submitted identifier set are
// persisted before the first poll. If the process dies at any later point,
// the next run resumes the same handle instead of resubmitting, which avoids
// duplicate remote work and duplicate cost. Cancellation mid-poll leaves the
// persisted record intact for the same reason.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Persist == nil {
		return Result{State: StateNotSubmitted}, fmt.Errorf("persist func is required")
	}
	notify := req.Notify
	if notify == nil {
		notify = func(Milestone) {}
	}

	job := req.Resume
	if job != nil && job.BatchKey != "" && job.BatchKey != sha256.BatchKey(job.Identifiers) {
		// The persisted record does not describe the identifier set it
		// claims to: the handle cannot be trusted to return results for
		// these identifiers. Submit them fresh instead.
		o.logger.Warn("persisted job key does not match its identifier set, resubmitting",
			zap.String("handle", job.Handle),
			zap.String("stored_key", job.BatchKey))
		req.Identifiers = job.Identifiers
		job = nil
	}
	var deferred []string
	if job == nil {
		ids := req.Identifiers
		if len(ids) == 0 {
			return Result{State: StateCompleted, Pages: map[string]firecrawl.Page{}}, nil
		}
		if len(ids) > o.cfg.MaxBatchItems {
			deferred = ids[o.cfg.MaxBatchItems:]
			ids = ids[:o.cfg.MaxBatchItems]
		}
		handle, err := o.client.SubmitBatch(ctx, ids)
		if err != nil {
			return Result{State: StateNotSubmitted, Deferred: deferred}, &SubmissionError{Err: err}
		}
		job = &state.InFlightJob{
			Handle:      handle,
			BatchKey:    sha256.BatchKey(ids),
			Identifiers: ids,
			SubmittedAt: o.clock.Now(),
		}
		if err := req.Persist(job); err != nil {
			return Result{State: StateSubmitted, Job: job, Deferred: deferred},
				fmt.Errorf("persist in-flight job %s: %w", handle, err)
		}
		o.logger.Info("batch job submitted",
			zap.String("handle", handle),
			zap.Int("items", len(ids)),
			zap.Int("deferred", len(deferred)))
		notify(Milestone{Kind: MilestoneSubmitted, Total: len(ids)})
	} else {
		o.logger.Info("resuming in-flight batch job",
			zap.String("handle", job.Handle),
			zap.Time("submitted_at", job.SubmittedAt))
		notify(Milestone{Kind: MilestoneResumed, Total: len(job.Identifiers)})
	}

	res, err := o.poll(ctx, job, req.Persist, notify)
	res.Deferred = deferred
	return res, err
}

func (o *Orchestrator) poll(ctx context.Context, job *state.InFlightJob, persist PersistFunc, notify NotifyFunc) (Result, error) {
	deadline := o.clock.Now().Add(o.cfg.PollBudget)
	pages := make(map[string]firecrawl.Page)

	for {
		if o.clock.Now().After(deadline) {
			o.logger.Warn("batch job exceeded poll budget, abandoning",
				zap.String("handle", job.Handle),
				zap.Duration("budget", o.cfg.PollBudget))
			return Result{State: StateTimedOut, Job: job, Pages: pages}, nil
		}

		status, err := o.client.BatchStatus(ctx, job.Handle)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-run. The in-flight record stays
				// persisted so the next run resumes here.
				return Result{State: StatePolling, Job: job, Pages: pages}, ctx.Err()
			}
			return Result{State: StateFailed, Job: job, Pages: pages},
				fmt.Errorf("poll job %s: %w", job.Handle, err)
		}
		notify(Milestone{Kind: MilestonePoll, Completed: status.Completed, Total: status.Total})

		switch status.Status {
		case firecrawl.JobStatusCompleted:
			accumulate(pages, status.Data, o.logger)
			res := Result{State: StateCompleted, Job: job, Pages: pages, CreditsUsed: status.CreditsUsed}
			if err := o.collectPages(ctx, job, persist, status.Next, pages); err != nil {
				if ctx.Err() != nil {
					return Result{State: StatePolling, Job: job, Pages: pages}, ctx.Err()
				}
				return Result{State: StateFailed, Job: job, Pages: pages}, err
			}
			return res, nil
		case firecrawl.JobStatusFailed, firecrawl.JobStatusCancelled:
			return Result{State: StateFailed, Job: job, Pages: pages},
				&JobFailedError{Handle: job.Handle, Status: status.Status}
		}

		if err := o.clock.Sleep(ctx, o.cfg.PollInterval); err != nil {
			return Result{State: StatePolling, Job: job, Pages: pages}, err
		}
	}
}

// collectPages follows continuation pointers until the provider signals no
// more pages. The last-seen cursor is persisted as it advances; that is
// bookkeeping for operators inspecting an interrupted run, since a resumed
// run re-collects from the beginning to rebuild the full result set.
func (o *Orchestrator) collectPages(ctx context.Context, job *state.InFlightJob, persist PersistFunc, next string, pages map[string]firecrawl.Page) error {
	for next != "" {
		page, err := o.client.BatchPage(ctx, next)
		if err != nil {
			return fmt.Errorf("collect results for job %s: %w", job.Handle, err)
		}
		accumulate(pages, page.Data, o.logger)
		job.Cursor = next
		if err := persist(job); err != nil {
			o.logger.Warn("persist pagination cursor failed",
				zap.String("handle", job.Handle), zap.Error(err))
		}
		next = page.Next
	}
	return nil
}

// accumulate merges one result page into the identifier-keyed map. Results
// are keyed by their submitted source URL, not page order, so reordered or
// duplicate delivery across pages is harmless.
func accumulate(pages map[string]firecrawl.Page, data []firecrawl.Page, logger *zap.Logger) {
	for _, p := range data {
		id := p.Metadata.SourceURL
		if id == "" {
			logger.Warn("dropping batch result without source url")
			continue
		}
		pages[id] = p
	}
}
