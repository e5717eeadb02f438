// Package api exposes the tracker to the browser shim over a local HTTP API.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/settings"
	"github.com/goodtune/snsdetox/internal/tracker"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr      string
	DefaultOverride time.Duration
}

// Server is the API HTTP server.
type Server struct {
	config   Config
	tracker  *tracker.Tracker
	settings *settings.Store
	outbox   *Outbox
	router   *mux.Router
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, t *tracker.Tracker, settingsStore *settings.Store, outbox *Outbox, logger zerolog.Logger) *Server {
	if cfg.DefaultOverride <= 0 {
		cfg.DefaultOverride = 10 * time.Minute
	}

	s := &Server{
		config:   cfg,
		tracker:  t,
		settings: settingsStore,
		outbox:   outbox,
		router:   mux.NewRouter(),
		logger:   logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/events", s.handleEvent).Methods("POST")
	v1.HandleFunc("/messages", s.handleMessage).Methods("POST")
	v1.HandleFunc("/tabs/{tabId:[0-9]+}/messages", s.handleTabMessages).Methods("GET")
	v1.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	v1.HandleFunc("/settings", s.handlePutSettings).Methods("PUT")
	v1.HandleFunc("/sites", s.handleSites).Methods("GET")
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
