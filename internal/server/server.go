// Package server exposes the forwarder and the target registry over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/majorcontext/portico/internal/log"
	"github.com/majorcontext/portico/internal/metrics"
	"github.com/majorcontext/portico/internal/proxy"
	"github.com/majorcontext/portico/internal/target"
)

// ProxyPrefix is the path under which requests are forwarded to targets.
const ProxyPrefix = "/proxy/"

// Options tunes the forwarder behind the server.
type Options struct {
	// UpstreamTimeout bounds the wait for upstream response headers. Zero means no limit.
	UpstreamTimeout time.Duration
	// TokenTimeout bounds each token endpoint call. Zero uses proxy.DefaultTokenTimeout.
	TokenTimeout time.Duration
	// SingleFlight collapses concurrent token fetches per target.
	SingleFlight bool
}

// Server serves the registry API, the proxy entry point, health and metrics.
type Server struct {
	registry  *target.Registry
	tokens    *proxy.TokenCache
	forwarder *proxy.Forwarder
	metrics   *metrics.Metrics
	router    chi.Router

	server    *http.Server
	listener  net.Listener
	startedAt time.Time
}

// New wires a server around registry.
func New(registry *target.Registry, opts Options) *Server {
	s := &Server{
		registry:  registry,
		metrics:   metrics.New(registry.Len),
		startedAt: time.Now(),
	}

	s.tokens = proxy.NewTokenCache(proxy.TokenCacheOptions{
		Timeout:      opts.TokenTimeout,
		SingleFlight: opts.SingleFlight,
		OnFetch:      s.metrics.ObserveTokenFetch,
	})
	s.forwarder = proxy.NewForwarder(registry, proxy.Options{
		Client:     proxy.NewUpstreamClient(opts.UpstreamTimeout),
		Tokens:     s.tokens,
		PathPrefix: ProxyPrefix,
		Logger: func(d proxy.RequestLogData) {
			s.metrics.ObserveRequest(d.Target, d.StatusCode, d.Duration)
		},
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Mount("/applications", s.applicationsRouter())
	r.Handle(ProxyPrefix+"*", s.forwarder)
	s.router = r

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
	}
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start listens on host:port and serves in the background. Port 0 picks a
// free port; see Port.
func (s *Server) Start(host string, port int) error {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "error", err)
		}
	}()
	log.Info("portico listening", "addr", listener.Addr().String(), "targets", s.registry.Len())
	return nil
}

// Addr returns the listening address (host:port), or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the listening port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Stop gracefully shuts down the server. In-flight requests get until ctx
// is done to finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
