// Package httpapi is the operational HTTP surface of SPEC_FULL.md §6:
// /healthz reports bus/store connectivity, /statsz reports the last batch's
// stage timings and record counts. Grounded on the teacher's chi-based
// plugin API routing (plugins/nvr-core-api), trimmed to the two read-only
// diagnostic routes this pipeline needs.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/camfusion/pipeline/internal/telemetry"
)

// HealthChecker reports connectivity for one ambient dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the operational HTTP surface.
type Server struct {
	router   chi.Router
	bus      healthPinger
	store    HealthChecker
	recorder *telemetry.Recorder
	logs     *telemetry.LogRing
}

// healthPinger matches bus.Bus.Health's zero-arg signature; kept distinct
// from HealthChecker since the bus has no context-bound operations.
type healthPinger interface {
	Health() error
}

// NewServer builds the /healthz + /statsz router.
func NewServer(bus healthPinger, store HealthChecker, recorder *telemetry.Recorder, logs *telemetry.LogRing) *Server {
	s := &Server{bus: bus, store: store, recorder: recorder, logs: logs}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/statsz", s.handleStatsz)
	s.router = r

	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthStatus struct {
	Bus   string `json:"bus"`
	Store string `json:"store"`
	OK    bool   `json:"ok"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := healthStatus{Bus: "ok", Store: "ok", OK: true}

	if err := s.bus.Health(); err != nil {
		status.Bus = err.Error()
		status.OK = false
	}
	if err := s.store.Health(ctx); err != nil {
		status.Store = err.Error()
		status.OK = false
	}

	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, status)
}

type statszResponse struct {
	Batch *telemetry.BatchStats `json:"batch,omitempty"`
	Logs  []telemetry.LogEntry  `json:"recent_logs"`
}

func (s *Server) handleStatsz(w http.ResponseWriter, r *http.Request) {
	resp := statszResponse{Logs: s.logs.Recent(50)}
	if latest, ok := s.recorder.Latest(); ok {
		resp.Batch = &latest
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
