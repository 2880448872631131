package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/pipeline"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

// siteSummary is the JSON shape of GET /api/sites/{site}.
type siteSummary struct {
	Site             string       `json:"site"`
	SkillName        string       `json:"skill_name"`
	Description      string       `json:"description,omitempty"`
	Resources        int          `json:"resources"`
	PendingDeletions int          `json:"pending_deletions"`
	LastRunAt        *time.Time   `json:"last_run_at,omitempty"`
	InFlight         *inFlightDTO `json:"in_flight_job,omitempty"`
}

type inFlightDTO struct {
	Handle      string    `json:"handle"`
	Pages       int       `json:"pages"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type runRequest struct {
	Site         string `json:"site"`
	ForceRefresh bool   `json:"force_refresh"`
	MaxPages     int    `json:"max_pages"`
	Description  string `json:"description"`
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.states.List(r.Context())
	if err != nil {
		s.logger.Error("list sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	sort.Strings(sites)
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	resolved, err := resolveSiteParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.states.Load(r.Context(), resolved.Domain)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "site has never been synced")
			return
		}
		s.logger.Error("load site state failed", zap.String("site", resolved.Domain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load site state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"site": toSummary(st, resolved.SkillName)})
}

// startRun kicks off a sync in the background and returns immediately. A
// batch job can spend minutes polling, which is far beyond any sane request
// timeout. Run outcomes land in the state store, the published run event,
// and the metrics, all of which are queryable afterwards.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	opts := pipeline.Options{
		ForceRefresh: req.ForceRefresh,
		MaxPages:     req.MaxPages,
		Description:  req.Description,
	}
	// Resolve up front so a bad locator fails the request, not the
	// detached run.
	resolved, err := resolveFromRaw(req.Site)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	go func() {
		report, err := s.runner.Run(context.Background(), resolved, opts)
		if err != nil {
			if errors.Is(err, pipeline.ErrRunInProgress) {
				s.logger.Warn("run skipped, already in progress", zap.String("site", resolved))
				return
			}
			s.logger.Error("run failed",
				zap.String("site", resolved),
				zap.String("run_id", report.RunID),
				zap.Error(err))
			return
		}
		s.logger.Info("run finished",
			zap.String("site", resolved),
			zap.String("run_id", report.RunID),
			zap.String("status", string(report.Status)))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"site": resolved, "status": "started"})
}

func toSummary(st state.RunState, skillName string) siteSummary {
	out := siteSummary{
		Site:        st.Site,
		SkillName:   skillName,
		Description: st.SiteDescription,
		Resources:   len(st.Resources),
	}
	for _, rec := range st.Resources {
		if rec.ConsecutiveMisses > 0 || rec.Status == state.StatusPendingDelete {
			out.PendingDeletions++
		}
	}
	if !st.LastRunAt.IsZero() {
		t := st.LastRunAt
		out.LastRunAt = &t
	}
	if st.InFlight != nil {
		out.InFlight = &inFlightDTO{
			Handle:      st.InFlight.Handle,
			Pages:       len(st.InFlight.Identifiers),
			SubmittedAt: st.InFlight.SubmittedAt,
		}
	}
	return out
}
