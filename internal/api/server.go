// Package api serves the agent's read-only HTTP surface and manual run triggers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"pair-agent/internal/domain"
	"pair-agent/internal/logging"
	"pair-agent/internal/observability"
	"pair-agent/internal/orchestrator"
)

// Scheduler is the run coordinator behind /status and the trigger endpoints.
type Scheduler interface {
	Status() orchestrator.Status
	TriggerCycle(ctx context.Context) (*orchestrator.CycleReport, error)
	TriggerExitChecks(ctx context.Context) (orchestrator.ExitReport, error)
}

// Positions is the read side of the position ledger.
type Positions interface {
	Get(id string) (*domain.Position, bool)
	All() []*domain.Position
	OpenPositions() []*domain.Position
	ClosedPositions() []*domain.Position
}

// Performance computes a live performance snapshot.
type Performance interface {
	Compute() *domain.PerformanceSnapshot
}

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server exposes health, metrics, status, positions and performance.
type Server struct {
	router      *mux.Router
	server      *http.Server
	scheduler   Scheduler
	positions   Positions
	performance Performance
	log         *logrus.Entry
	startedAt   time.Time
}

// NewServer creates a server and registers its routes. Call ListenAndServe to start it.
func NewServer(cfg Config, scheduler Scheduler, positions Positions, performance Performance, logger logrus.FieldLogger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		scheduler:   scheduler,
		positions:   positions,
		performance: performance,
		log:         logging.Component(logger, "http"),
		startedAt:   time.Now(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	s.router.HandleFunc("/positions/{id}", s.handlePosition).Methods(http.MethodGet)
	s.router.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/cycle", s.handleTriggerCycle).Methods(http.MethodPost)
	s.router.HandleFunc("/runs/exits", s.handleTriggerExits).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.server.Addr).Info("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.log.WithFields(logrus.Fields{
			"request_id":  w.Header().Get("X-Request-ID"),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.scheduler.Status()
	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
		Running:       st.Running,
		CurrentKind:   st.CurrentKind,
		Cycles:        st.Cycles,
		ExitPasses:    st.ExitPasses,
		LastCycleErr:  st.LastCycleErr,
		OpenPositions: len(s.positions.OpenPositions()),
	}
	if !st.LastCycleAt.IsZero() {
		t := st.LastCycleAt
		resp.LastCycleAt = &t
	}
	if !st.LastExitAt.IsZero() {
		t := st.LastExitAt
		resp.LastExitAt = &t
	}
	if st.LastCycle != nil {
		resp.LastCycle = newCycleView(st.LastCycle)
	}
	if st.LastExit != nil {
		v := exitView(*st.LastExit)
		resp.LastExit = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePositions lists positions; ?status=open|closed filters, default is all.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	var positions []*domain.Position
	switch r.URL.Query().Get("status") {
	case "", "all":
		positions = s.positions.All()
	case string(domain.PositionOpen):
		positions = s.positions.OpenPositions()
	case string(domain.PositionClosed):
		positions = s.positions.ClosedPositions()
	default:
		writeError(w, http.StatusBadRequest, "status must be open, closed or all")
		return
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, NewPositionView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	p, ok := s.positions.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, NewPositionView(p))
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewPerformanceView(s.performance.Compute()))
}

func (s *Server) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	report, err := s.scheduler.TriggerCycle(r.Context())
	if s.triggerFailed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, newCycleView(report))
}

func (s *Server) handleTriggerExits(w http.ResponseWriter, r *http.Request) {
	report, err := s.scheduler.TriggerExitChecks(r.Context())
	if s.triggerFailed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, exitView(report))
}

func (s *Server) triggerFailed(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, orchestrator.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.WithError(err).Error("manual run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
