// Package api exposes the conversational agent over HTTP: session
// lifecycle, per-session chat, schema introspection and Prometheus
// metrics on a separate listener.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DachengChen/paiViz/agent"
	"github.com/DachengChen/paiViz/config"
)

const shutdownTimeout = 10 * time.Second

// Server serves the chat API. One agent, many sessions.
type Server struct {
	agent    *agent.Agent
	sessions *sessionManager
	cfg      config.ServerConfig
	log      *slog.Logger

	httpSrv    *http.Server
	metricsSrv *http.Server
}

func NewServer(ag *agent.Agent, cfg config.ServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		agent:    ag,
		sessions: newSessionManager(cfg.SessionTTL),
		cfg:      cfg,
		log:      log,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/schema", s.handleSchema)
	r.Post("/api/reload", s.handleReload)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleSessionHistory)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/chat", s.handleChat)
		})
	})

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully. The
// metrics listener is separate so scrapes never compete with chat
// requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
		go func() {
			s.log.Info("metrics listening", "addr", s.cfg.MetricsAddr)
			if err := s.metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	go func() {
		s.log.Info("api listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	s.shutdown()
	return runErr
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.metricsSrv != nil {
		_ = s.metricsSrv.Shutdown(ctx)
	}
	_ = s.httpSrv.Shutdown(ctx)
	s.sessions.stop()
	s.log.Info("server stopped")
}
