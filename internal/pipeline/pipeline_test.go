package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirag2653/website-to-skill-folder/internal/firecrawl"
	"github.com/chirag2653/website-to-skill-folder/internal/hash/sha256"
	"github.com/chirag2653/website-to-skill-folder/internal/orchestrator"
	"github.com/chirag2653/website-to-skill-folder/internal/publisher/memory"
	"github.com/chirag2653/website-to-skill-folder/internal/reconcile"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
	statemem "github.com/chirag2653/website-to-skill-folder/internal/state/memory"
	storagemem "github.com/chirag2653/website-to-skill-folder/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

type fakeIDs struct{ n int }

func (f *fakeIDs) NewID() (string, error) {
	f.n++
	return "run-" + string(rune('0'+f.n)), nil
}

type fakeDiscoverer struct {
	links []string
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeDiscoverer) Map(context.Context, string, int, bool) ([]string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.links, nil
}

type fakeBatch struct {
	fn    func(req orchestrator.Request) (orchestrator.Result, error)
	calls []orchestrator.Request
}

func (f *fakeBatch) Execute(_ context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	f.calls = append(f.calls, req)
	return f.fn(req)
}

func pageFor(url string) firecrawl.Page {
	return firecrawl.Page{
		Markdown: "# Page at " + url,
		JSON: firecrawl.Extract{
			Title:       "Title",
			Description: "Description",
			Summary:     "Summary of the page.",
		},
		Metadata: firecrawl.PageMetadata{SourceURL: url},
	}
}

// completingBatch simulates a healthy remote job: persist, then return a
// result page for every submitted identifier.
func completingBatch() *fakeBatch {
	b := &fakeBatch{}
	b.fn = func(req orchestrator.Request) (orchestrator.Result, error) {
		ids := req.Identifiers
		if req.Resume != nil {
			ids = req.Resume.Identifiers
		}
		if len(ids) == 0 {
			return orchestrator.Result{State: orchestrator.StateCompleted, Pages: map[string]firecrawl.Page{}}, nil
		}
		job := req.Resume
		if job == nil {
			job = &state.InFlightJob{Handle: "job-1", Identifiers: ids, SubmittedAt: time.Now()}
			if err := req.Persist(job); err != nil {
				return orchestrator.Result{}, err
			}
		}
		pages := make(map[string]firecrawl.Page, len(ids))
		for _, id := range ids {
			pages[id] = pageFor(id)
		}
		return orchestrator.Result{State: orchestrator.StateCompleted, Job: job, Pages: pages, CreditsUsed: len(ids) * 5}, nil
	}
	return b
}

type env struct {
	runner *Runner
	states *statemem.Store
	docs   *storagemem.Store
	disc   *fakeDiscoverer
	batch  *fakeBatch
	events *memory.Publisher
}

func newEnv(t *testing.T, disc *fakeDiscoverer, batch *fakeBatch) *env {
	t.Helper()
	states := statemem.New()
	docs := storagemem.New()
	events := memory.New()
	rec := reconcile.New(docs, sha256.New(), reconcile.Config{MissThreshold: 3}, nil)
	runner := New(states, docs, disc, batch, rec, newFakeClock(), &fakeIDs{}, events, nil, Config{}, nil)
	return &env{runner: runner, states: states, docs: docs, disc: disc, batch: batch, events: events}
}

func TestRunFirstSync(t *testing.T) {
	e := newEnv(t,
		&fakeDiscoverer{links: []string{"https://example.com/", "https://example.com/docs"}},
		completingBatch(),
	)

	report, err := e.runner.Run(context.Background(), "example.com", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, report.Status)
	assert.Equal(t, 2, report.Created)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 10, report.CreditsUsed)
	assert.NotEmpty(t, report.RunID)

	_, ok := e.docs.Get("pages/index.md")
	assert.True(t, ok)
	_, ok = e.docs.Get("pages/docs.md")
	assert.True(t, ok)
	_, ok = e.docs.Get("SKILL.md")
	assert.True(t, ok)

	st, err := e.states.Load(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Len(t, st.Resources, 2)
	assert.Nil(t, st.InFlight)
	assert.False(t, st.LastRunAt.IsZero())

	msgs := e.events.Messages()
	require.Len(t, msgs, 1)
	evt, ok := msgs[0].Payload.(RunEvent)
	require.True(t, ok)
	assert.Equal(t, "example.com", evt.Site)
	assert.Equal(t, StatusSucceeded, evt.Status)
}

func TestRunSecondSyncSkipsUnchangedResources(t *testing.T) {
	e := newEnv(t,
		&fakeDiscoverer{links: []string{"https://example.com/", "https://example.com/docs"}},
		completingBatch(),
	)
	ctx := context.Background()

	_, err := e.runner.Run(ctx, "example.com", Options{})
	require.NoError(t, err)
	require.Len(t, e.batch.calls, 1)

	// Discovery lists the same bare URLs again. Fetched resources hold
	// fingerprints, so the run submits no remote job at all.
	report, err := e.runner.Run(ctx, "example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unchanged)
	assert.Zero(t, report.Created)
	assert.Zero(t, report.Updated)
	assert.Zero(t, report.CreditsUsed)
	assert.Equal(t, StatusSucceeded, report.Status)
	assert.Len(t, e.batch.calls, 1)
}

func TestRunForceRefreshResubmitsFetchedResources(t *testing.T) {
	e := newEnv(t,
		&fakeDiscoverer{links: []string{"https://example.com/"}},
		completingBatch(),
	)
	ctx := context.Background()

	_, err := e.runner.Run(ctx, "example.com", Options{})
	require.NoError(t, err)

	report, err := e.runner.Run(ctx, "example.com", Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Zero(t, report.Unchanged)
	assert.Len(t, e.batch.calls, 2)
}

func TestRunDeletionHysteresis(t *testing.T) {
	disc := &fakeDiscoverer{links: []string{"https://example.com/", "https://example.com/gone"}}
	e := newEnv(t, disc, completingBatch())
	ctx := context.Background()

	_, err := e.runner.Run(ctx, "example.com", Options{})
	require.NoError(t, err)
	_, ok := e.docs.Get("pages/gone.md")
	require.True(t, ok)

	// The page disappears from discovery. Two misses keep the document.
	disc.links = []string{"https://example.com/"}
	for i := 0; i < 2; i++ {
		report, err := e.runner.Run(ctx, "example.com", Options{})
		require.NoError(t, err)
		assert.Zero(t, report.Deleted)
		_, ok = e.docs.Get("pages/gone.md")
		assert.True(t, ok)
	}

	// The third consecutive miss crosses the threshold.
	report, err := e.runner.Run(ctx, "example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	_, ok = e.docs.Get("pages/gone.md")
	assert.False(t, ok)

	st, err := e.states.Load(ctx, "example.com")
	require.NoError(t, err)
	_, exists := st.Resources["https://example.com/gone"]
	assert.False(t, exists)
}

func TestRunResumesInFlightJob(t *testing.T) {
	e := newEnv(t, &fakeDiscoverer{links: []string{"https://example.com/ignored"}}, completingBatch())
	ctx := context.Background()

	st := state.NewRunState("example.com")
	st.InFlight = &state.InFlightJob{
		Handle:      "job-9",
		Identifiers: []string{"https://example.com/pending"},
		SubmittedAt: time.Now(),
	}
	require.NoError(t, e.states.Save(ctx, st))

	report, err := e.runner.Run(ctx, "example.com", Options{})
	require.NoError(t, err)

	// Discovery is skipped entirely while a job is in flight.
	assert.Zero(t, e.disc.calls.Load())
	require.Len(t, e.batch.calls, 1)
	require.NotNil(t, e.batch.calls[0].Resume)
	assert.Equal(t, "job-9", e.batch.calls[0].Resume.Handle)

	assert.Equal(t, 1, report.Created)
	_, ok := e.docs.Get("pages/pending.md")
	assert.True(t, ok)

	saved, err := e.states.Load(ctx, "example.com")
	require.NoError(t, err)
	assert.Nil(t, saved.InFlight)
}

func TestRunDiscoveryFailureAbortsCleanly(t *testing.T) {
	e := newEnv(t, &fakeDiscoverer{err: errors.New("listing unreachable")}, completingBatch())

	report, err := e.runner.Run(context.Background(), "example.com", Options{})

	var discErr *DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, StatusFailed, report.Status)

	// Nothing was persisted: retrying later starts from scratch.
	_, err = e.states.Load(context.Background(), "example.com")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.Empty(t, e.docs.Names())
}

func TestRunSubmissionFailureLeavesNoPartialState(t *testing.T) {
	batch := &fakeBatch{fn: func(orchestrator.Request) (orchestrator.Result, error) {
		return orchestrator.Result{State: orchestrator.StateNotSubmitted},
			&orchestrator.SubmissionError{Err: errors.New("quota exceeded")}
	}}
	e := newEnv(t, &fakeDiscoverer{links: []string{"https://example.com/"}}, batch)

	report, err := e.runner.Run(context.Background(), "example.com", Options{})

	var subErr *orchestrator.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Empty(t, report.ResumeHandle)

	_, err = e.states.Load(context.Background(), "example.com")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestRunPollFailureKeepsResumableJob(t *testing.T) {
	batch := &fakeBatch{fn: func(req orchestrator.Request) (orchestrator.Result, error) {
		job := &state.InFlightJob{Handle: "job-3", Identifiers: req.Identifiers}
		if err := req.Persist(job); err != nil {
			return orchestrator.Result{}, err
		}
		return orchestrator.Result{State: orchestrator.StateFailed, Job: job},
			errors.New("poll retries exhausted")
	}}
	e := newEnv(t, &fakeDiscoverer{links: []string{"https://example.com/"}}, batch)

	report, err := e.runner.Run(context.Background(), "example.com", Options{})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, "job-3", report.ResumeHandle)

	st, err := e.states.Load(context.Background(), "example.com")
	require.NoError(t, err)
	require.NotNil(t, st.InFlight)
	assert.Equal(t, "job-3", st.InFlight.Handle)
}

func TestRunTimeoutCommitsPartialProgress(t *testing.T) {
	batch := &fakeBatch{fn: func(req orchestrator.Request) (orchestrator.Result, error) {
		job := &state.InFlightJob{Handle: "job-4", Identifiers: req.Identifiers}
		if err := req.Persist(job); err != nil {
			return orchestrator.Result{}, err
		}
		return orchestrator.Result{State: orchestrator.StateTimedOut, Job: job, Pages: map[string]firecrawl.Page{}}, nil
	}}
	e := newEnv(t, &fakeDiscoverer{links: []string{"https://example.com/"}}, batch)

	report, err := e.runner.Run(context.Background(), "example.com", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, report.Status)
	assert.Equal(t, 1, report.Failed)

	// The abandoned job is cleared; affected resources keep prior state.
	st, err := e.states.Load(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Nil(t, st.InFlight)
	assert.Empty(t, st.Resources)
}

func TestRunMaxPagesCapsFetchSet(t *testing.T) {
	e := newEnv(t,
		&fakeDiscoverer{links: []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}},
		completingBatch(),
	)

	report, err := e.runner.Run(context.Background(), "example.com", Options{MaxPages: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Deferred)
	require.Len(t, e.batch.calls, 1)
	assert.Len(t, e.batch.calls[0].Identifiers, 2)
}

func TestRunSkipRemoteRendersIndexOnly(t *testing.T) {
	e := newEnv(t, &fakeDiscoverer{}, &fakeBatch{})
	ctx := context.Background()

	st := state.NewRunState("example.com")
	st.SiteDescription = "Persisted description."
	require.NoError(t, e.states.Save(ctx, st))

	report, err := e.runner.Run(ctx, "example.com", Options{SkipRemote: true})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, report.Status)
	assert.Zero(t, e.disc.calls.Load())
	assert.Empty(t, e.batch.calls)

	data, ok := e.docs.Get("SKILL.md")
	require.True(t, ok)
	assert.Contains(t, string(data), "Persisted description.")
}

func TestRunRejectsConcurrentRunsForSameSite(t *testing.T) {
	disc := &fakeDiscoverer{links: []string{"https://example.com/"}, gate: make(chan struct{})}
	e := newEnv(t, disc, completingBatch())

	done := make(chan error, 1)
	go func() {
		_, err := e.runner.Run(context.Background(), "example.com", Options{})
		done <- err
	}()

	// Wait until the first run holds the lock inside discovery.
	require.Eventually(t, func() bool { return disc.calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	_, err := e.runner.Run(context.Background(), "example.com", Options{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(disc.gate)
	require.NoError(t, <-done)
}

func TestRunInvalidSite(t *testing.T) {
	e := newEnv(t, &fakeDiscoverer{}, &fakeBatch{})
	_, err := e.runner.Run(context.Background(), "not a url", Options{})
	assert.Error(t, err)
}
