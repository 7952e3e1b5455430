// Package status serves run health, progress and metrics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/okian/sieve/pkg/logger"
	"github.com/okian/sieve/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// ProgressProvider returns a JSON-encodable snapshot of the current run.
type ProgressProvider interface {
	Progress() any
}

// ProgressFunc adapts a function to ProgressProvider.
type ProgressFunc func() any

// Progress calls f.
func (f ProgressFunc) Progress() any { return f() }

// Server exposes /healthz, /progress and /metrics.
type Server struct {
	addr     string
	progress ProgressProvider
	log      logger.Logger
	srv      *http.Server
	ln       net.Listener
	done     chan struct{}
}

// New creates a status server for addr. A nil progress provider serves an empty object.
func New(addr string, progress ProgressProvider, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		progress: progress,
		log:      logger.Get().Named("status"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", metricsMiddleware(s.handleHealth, "healthz"))
	mux.HandleFunc("/progress", metricsMiddleware(s.handleProgress, "progress"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.done = make(chan struct{})
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		defer close(s.done)
		s.log.Info(ctx, "status server listening", logger.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(ctx, "status server failed", logger.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	<-s.done
	return nil
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	var snap any = struct{}{}
	if s.progress != nil {
		snap = s.progress.Progress()
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
