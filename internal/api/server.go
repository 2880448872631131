// Package api exposes the HTTP interface for the sync service: health
// probes, Prometheus metrics, and read-mostly endpoints over persisted run
// state, plus an endpoint to kick off a sync run.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/pipeline"
	"github.com/chirag2653/website-to-skill-folder/internal/site"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

const stateTimeout = 3 * time.Second

// Runner starts sync runs. *pipeline.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, rawSite string, opts pipeline.Options) (pipeline.Report, error)
}

// Config carries the server's tunables.
type Config struct {
	// APIKey, when non-empty, is required in the X-API-Key header on
	// /api routes. Health and metrics stay open.
	APIKey string
	// RequestTimeout bounds handler execution. Zero means 60s.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the state store and the pipeline runner.
type Server struct {
	router chi.Router
	states state.Store
	runner Runner
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. registry may be
// nil, in which case /metrics serves the default registry.
func NewServer(states state.Store, runner Runner, registry *prometheus.Registry, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{states: states, runner: runner, logger: logger}

	var metrics http.Handler
	if registry != nil {
		metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	} else {
		metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		r.Get("/sites", s.listSites)
		r.Get("/sites/{site}", s.getSite)
		r.Post("/runs", s.startRun)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stateTimeout)
	defer cancel()
	if _, err := s.states.List(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolveSiteParam validates the {site} path parameter.
func resolveSiteParam(r *http.Request) (site.Site, error) {
	return site.Resolve(chi.URLParam(r, "site"))
}

// resolveFromRaw normalizes a request-body site locator to its domain.
func resolveFromRaw(raw string) (string, error) {
	s, err := site.Resolve(raw)
	if err != nil {
		return "", err
	}
	return s.Domain, nil
}
