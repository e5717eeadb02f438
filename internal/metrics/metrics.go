package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracking metrics
	ActiveSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snsdetox_active_seconds_total",
			Help: "Foreground time accrued to the ledger",
		},
		[]string{"domain"},
	)

	TrackedTabs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snsdetox_tracked_tabs",
			Help: "Number of tab sessions on monitored domains",
		},
	)

	// Restriction metrics
	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snsdetox_status_transitions_total",
			Help: "Effective status changes delivered to tabs",
		},
		[]string{"domain", "status"},
	)

	OverridesArmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snsdetox_overrides_armed_total",
			Help: "Hard locks armed by the user",
		},
		[]string{"domain"},
	)

	// Messaging metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snsdetox_notifications_total",
			Help: "Background to page notifications by outcome",
		},
		[]string{"type", "result"},
	)

	// Ledger metrics
	RolloversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snsdetox_rollovers_total",
			Help: "Usage records reset by the daily rollover",
		},
	)

	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snsdetox_storage_errors_total",
			Help: "Failed storage operations",
		},
		[]string{"op"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ActiveSeconds,
		TrackedTabs,
		StatusTransitions,
		OverridesArmed,
		NotificationsTotal,
		RolloversTotal,
		StorageErrors,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
