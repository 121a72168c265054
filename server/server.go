// Package server exposes the host's pool status and Prometheus metrics over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PoolStats is the read-only view of a pool the status endpoint reports.
// *gwpool.ThreadPool satisfies it.
type PoolStats interface {
	Running() bool
	WorkerCount() int
	LiveWorkers() int
	Pending() int
	Finished() int
}

// StatusResponse structure for the status endpoint
type StatusResponse struct {
	Running     bool      `json:"running"`
	Workers     int       `json:"workers"`
	LiveWorkers int       `json:"live_workers"`
	Pending     int       `json:"pending"`
	Finished    int       `json:"finished"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorResponse structure for error cases
type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	srv    *http.Server
	pool   PoolStats
	logger *zap.Logger
}

// New builds a server on addr. Metrics are served from gatherer; pass
// prometheus.DefaultGatherer when collectors are on the default registry.
func New(addr string, pool PoolStats, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{pool: pool, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", s.indexHandler)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// statusHandler handles the GET /status endpoint
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error: "Method not allowed. Use GET.",
		})
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Running:     s.pool.Running(),
		Workers:     s.pool.WorkerCount(),
		LiveWorkers: s.pool.LiveWorkers(),
		Pending:     s.pool.Pending(),
		Finished:    s.pool.Finished(),
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "gwpool host",
		"description": "Status of the script host's worker pool",
		"endpoints": map[string]string{
			"GET /status":  "Pool state: workers, queue depths",
			"GET /metrics": "Prometheus metrics",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
