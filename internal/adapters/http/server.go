// Package http exposes the engine over a JSON API. Handlers are a thin
// renderer: they forward payloads, return the generic step envelope and map
// structured error codes to HTTP statuses, never branching on step identity.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intakehq/intake/pkg/domain"
)

// Engine is the interpreter surface the API serves.
type Engine interface {
	StartSession(ctx context.Context, sourceRoot, sourcePath string) (*domain.Envelope, error)
	State(ctx context.Context, sessionID string) (*domain.Envelope, error)
	Sessions(ctx context.Context) ([]string, error)
	Submit(ctx context.Context, sessionID, stepID string, payload map[string]any) (*domain.Envelope, error)
	Finalize(ctx context.Context, sessionID string, confirm bool) (*domain.JobRequestBatch, error)
}

// Server routes API requests to the engine.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	metrics *metrics
}

type metrics struct {
	registry         *prometheus.Registry
	sessionsStarted  prometheus.Counter
	stepSubmissions  *prometheus.CounterVec
	sessionsFinished prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_started_total",
			Help: "Sessions created.",
		}),
		stepSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_step_submissions_total",
			Help: "Step submissions by result.",
		}, []string{"result"}),
		sessionsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_finalized_total",
			Help: "Sessions finalized into job batches.",
		}),
	}
	m.registry.MustRegister(m.sessionsStarted, m.stepSubmissions, m.sessionsFinished)
	return m
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, logger *slog.Logger) http.Handler {
	s := &Server{engine: engine, logger: logger, metrics: newMetrics()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/sessions", s.startSession)
	r.Get("/sessions", s.listSessions)
	r.Get("/sessions/{sessionID}", s.sessionState)
	r.Post("/sessions/{sessionID}/steps/{stepID}", s.submitStep)
	r.Post("/sessions/{sessionID}/finalize", s.finalize)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return r
}

type startRequest struct {
	SourceRoot string `json:"source_root"`
	SourcePath string `json:"source_path"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.Validation("invalid request body", domain.Detail{Path: "body", Reason: err.Error()}))
		return
	}

	env, err := s.engine.StartSession(r.Context(), body.SourceRoot, body.SourcePath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.sessionsStarted.Inc()
	s.writeJSON(w, http.StatusCreated, env)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Sessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	env, err := s.engine.State(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, env)
}

func (s *Server) submitStep(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, domain.Validation("invalid request body", domain.Detail{Path: "body", Reason: err.Error()}))
			return
		}
	}

	env, err := s.engine.Submit(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "stepID"), payload)
	if err != nil {
		s.metrics.stepSubmissions.WithLabelValues("rejected").Inc()
		s.writeError(w, err)
		return
	}
	s.metrics.stepSubmissions.WithLabelValues("accepted").Inc()
	s.writeJSON(w, http.StatusOK, env)
}

type finalizeRequest struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	var body finalizeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, domain.Validation("invalid request body", domain.Detail{Path: "body", Reason: err.Error()}))
			return
		}
	}

	batch, err := s.engine.Finalize(r.Context(), chi.URLParam(r, "sessionID"), body.Confirm)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.sessionsFinished.Inc()
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	structured := domain.AsError(err)
	if structured.Code == domain.CodeInternal {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, statusFor(structured.Code), map[string]any{"error": structured})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvariant, domain.CodeConflictsUnresolved:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
