package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirag2653/website-to-skill-folder/internal/pipeline"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
	statemem "github.com/chirag2653/website-to-skill-folder/internal/state/memory"
)

type fakeRunner struct {
	mu    sync.Mutex
	sites []string
	opts  []pipeline.Options
	err   error
	done  chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, rawSite string, opts pipeline.Options) (pipeline.Report, error) {
	f.mu.Lock()
	f.sites = append(f.sites, rawSite)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return pipeline.Report{RunID: "run-1", Site: rawSite, Status: pipeline.StatusSucceeded}, f.err
}

func newTestServer(t *testing.T, states state.Store, runner Runner, cfg Config) *httptest.Server {
	t.Helper()
	srv := NewServer(states, runner, prometheus.NewRegistry(), cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, statemem.New(), &fakeRunner{}, Config{})

	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/readyz", &body))
	assert.Equal(t, "ready", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, statemem.New(), &fakeRunner{}, Config{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListSites(t *testing.T) {
	states := statemem.New()
	for _, site := range []string{"b.example.com", "a.example.com"} {
		require.NoError(t, states.Save(context.Background(), state.NewRunState(site)))
	}
	ts := newTestServer(t, states, &fakeRunner{}, Config{})

	var body struct {
		Sites []string `json:"sites"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sites", &body))
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, body.Sites)
}

func TestGetSiteSummary(t *testing.T) {
	states := statemem.New()
	st := state.NewRunState("example.com")
	st.SiteDescription = "An example site."
	st.LastRunAt = time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)
	st.Resources["https://example.com/a"] = state.ResourceRecord{
		Identifier: "https://example.com/a", Slug: "a", Status: state.StatusActive,
	}
	st.Resources["https://example.com/b"] = state.ResourceRecord{
		Identifier: "https://example.com/b", Slug: "b",
		Status: state.StatusActive, ConsecutiveMisses: 2,
	}
	st.InFlight = &state.InFlightJob{
		Handle:      "job-7",
		Identifiers: []string{"https://example.com/a"},
		SubmittedAt: time.Date(2026, 8, 19, 12, 5, 0, 0, time.UTC),
	}
	require.NoError(t, states.Save(context.Background(), st))
	ts := newTestServer(t, states, &fakeRunner{}, Config{})

	var body struct {
		Site siteSummary `json:"site"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sites/example.com", &body))
	assert.Equal(t, "example.com", body.Site.Site)
	assert.Equal(t, "example-com-website-search-skill", body.Site.SkillName)
	assert.Equal(t, "An example site.", body.Site.Description)
	assert.Equal(t, 2, body.Site.Resources)
	assert.Equal(t, 1, body.Site.PendingDeletions)
	require.NotNil(t, body.Site.InFlight)
	assert.Equal(t, "job-7", body.Site.InFlight.Handle)
	assert.Equal(t, 1, body.Site.InFlight.Pages)
	require.NotNil(t, body.Site.LastRunAt)
}

func TestGetSiteNotFound(t *testing.T) {
	ts := newTestServer(t, statemem.New(), &fakeRunner{}, Config{})
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/sites/unknown.example.com", nil))
}

func TestGetSiteBadLocator(t *testing.T) {
	ts := newTestServer(t, statemem.New(), &fakeRunner{}, Config{})
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/sites/nodomain", nil))
}

func TestStartRunAccepted(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{})}
	ts := newTestServer(t, statemem.New(), runner, Config{})

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"site":"https://example.com/docs","force_refresh":true,"max_pages":5}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "example.com", body["site"])

	select {
	case <-runner.done:
	case <-time.After(time.Second):
		t.Fatal("runner was never invoked")
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.sites, 1)
	assert.Equal(t, "example.com", runner.sites[0])
	assert.True(t, runner.opts[0].ForceRefresh)
	assert.Equal(t, 5, runner.opts[0].MaxPages)
}

func TestStartRunRejectsBadSite(t *testing.T) {
	runner := &fakeRunner{}
	ts := newTestServer(t, statemem.New(), runner, Config{})

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"site":"not a url"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.sites)
}

func TestStartRunRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t, statemem.New(), &fakeRunner{}, Config{})
	resp, err := http.Post(ts.URL+"/api/runs", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t, statemem.New(), &fakeRunner{}, Config{APIKey: "secret"})

	assert.Equal(t, http.StatusForbidden, getJSON(t, ts.URL+"/api/sites", nil))
	// Health stays open for probes.
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", nil))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sites", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, statemem.New(), &fakeRunner{}, Config{})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
