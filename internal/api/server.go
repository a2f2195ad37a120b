// Package api serves a read-only HTTP view of the monitor.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/user/connwatch/internal/aggregate"
	"github.com/user/connwatch/internal/logger"
	"github.com/user/connwatch/internal/monitor"
	"github.com/user/connwatch/internal/store"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 500
	shutdownTimeout   = 5 * time.Second
)

// Backend is what the handlers read from. *monitor.Monitor implements it.
type Backend interface {
	Summarize(ctx context.Context) (*aggregate.Summary, error)
	Status() *monitor.Status
	RecentAlerts(ctx context.Context, limit int) ([]store.Alert, error)
}

// Server is the HTTP API server.
type Server struct {
	backend     Backend
	metrics     http.Handler
	metricsPath string
	server      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
	}
}

// NewServer creates a server listening on addr.
func NewServer(addr string, backend Backend, opts ...Option) *Server {
	s := &Server{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/summary", s.summaryHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/status", s.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/alerts", s.alertsHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics).Methods(http.MethodGet)
	}
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	logger.SafeGo("apiServer", func() {
		defer close(errCh)
		logger.Info("API server starting on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("API server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server forced to shutdown: %w", err)
	}
	logger.Info("API server exited")
	return nil
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.backend.Summarize(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to summarize connections: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.backend.Status())
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit: %q", v), http.StatusBadRequest)
			return
		}
		limit = min(n, maxAlertLimit)
	}

	alerts, err := s.backend.RecentAlerts(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query alerts: %v", err), http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	writeJSON(w, alerts)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
