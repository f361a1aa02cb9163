// Package http serves the fleet REST API, health probes and prometheus metrics.
package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/landmark"
	"github.com/autopeer-io/agvfleet/internal/pkg/metrics"
	"github.com/autopeer-io/agvfleet/pkg/log"
	"github.com/autopeer-io/agvfleet/pkg/options"
)

// Fleet is what the API needs from the fleet.
type Fleet interface {
	Vehicles() []agv.Snapshot
	Vehicle(id uint16) (agv.Snapshot, error)
	Submit(id uint16, cmd agv.Command) (agv.Result, error)
	PassTraffic(id uint16, lm landmark.ID) (agv.Result, error)
	Landmarks() *landmark.Registry
	Ready() bool
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	fleet   Fleet
	logger  log.Logger
}

// NewServer builds the router. events, when not nil, is mounted at /api/v1/ws.
func NewServer(opts *options.HttpOptions, fleet Fleet, events http.Handler) *Server {
	s := &Server{
		options: opts,
		fleet:   fleet,
		logger:  log.WithName("http"),
	}

	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Readiness: every client-role vehicle has been dialled and the acceptor is up.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.fleet.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if opts.EnableMetrics {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/vehicles", s.listVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id:[0-9]+}", s.getVehicle).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id:[0-9]+}/commands", s.postCommand).Methods(http.MethodPost)
	api.HandleFunc("/landmarks", s.listLandmarks).Methods(http.MethodGet)
	api.HandleFunc("/landmarks/{id:[0-9]+}", s.getLandmark).Methods(http.MethodGet)
	api.HandleFunc("/landmarks/{id:[0-9]+}/{op}", s.postLandmark).Methods(http.MethodPost)
	if events != nil {
		api.Handle("/ws", events).Methods(http.MethodGet)
	}
	r.Use(s.logRequests)

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: opts.Timeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.code,
			"duration", time.Since(start),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	code int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.code = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Hijack is required by the websocket upgrade.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
