package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/snsdetox/internal/api"
	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/config"
	"github.com/goodtune/snsdetox/internal/ledger"
	"github.com/goodtune/snsdetox/internal/metrics"
	"github.com/goodtune/snsdetox/internal/override"
	"github.com/goodtune/snsdetox/internal/settings"
	"github.com/goodtune/snsdetox/internal/storage"
	"github.com/goodtune/snsdetox/internal/storage/bolt"
	"github.com/goodtune/snsdetox/internal/storage/redis"
	"github.com/goodtune/snsdetox/internal/systemd"
	"github.com/goodtune/snsdetox/internal/tracker"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the snsdetox daemon",
	Long:  `Start the snsdetox daemon serving the extension API and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting snsdetox")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	ctx := context.Background()
	clk := clock.Real{}

	settingsStore := settings.NewStore(store.Synced(), logger)
	current, err := settingsStore.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load settings, using defaults")
	}
	logger.Info().
		Strs("sites", current.Domains()).
		Msg("Settings loaded")

	usageLedger := ledger.New(store.Local(), clk, logger)

	sweeper := ledger.NewSweeper(
		usageLedger,
		config.ParseDuration(cfg.Tracking.RolloverSweepInterval, time.Hour),
		clk,
		logger,
	)
	sweeper.Start()

	overrides := override.NewManager(usageLedger, clk, logger)
	outbox := api.NewOutbox(cfg.Tracking.MailboxSize, logger)

	tabTracker := tracker.New(
		settingsStore,
		usageLedger,
		overrides,
		outbox,
		clk,
		tracker.Config{
			TickInterval: config.ParseDuration(cfg.Tracking.TickInterval, tracker.DefaultTickInterval),
			ArmingDelay:  config.ParseDuration(cfg.Tracking.ArmingDelay, tracker.DefaultArmingDelay),
		},
		logger,
	)

	apiConfig := api.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
		DefaultOverride: time.Duration(cfg.Tracking.DefaultOverrideMinutes) * time.Minute,
	}
	apiServer := api.NewServer(apiConfig, tabTracker, settingsStore, outbox, logger)

	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		sweeper.Stop()
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	logger.Info().
		Str("addr", apiConfig.ListenAddr).
		Msg("API Server started")

	// A zero metrics port disables the endpoint unless systemd hands us a socket
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || (sdListeners.Activated && sdListeners.Metrics != nil) {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			_ = apiServer.Stop()
			sweeper.Stop()
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}

		logger.Info().
			Str("addr", metricsAddr).
			Msg("Metrics Server started")
	}

	logger.Info().Msg("snsdetox startup complete")

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	var watchdog clock.Timer
	if interval := systemd.WatchdogInterval(); interval > 0 {
		watchdog = clk.Every(interval, func() {
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		})
		logger.Debug().Dur("interval", interval).Msg("systemd watchdog enabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, reloading settings...")
			reloadSettings(ctx, settingsStore, tabTracker, logger)
			continue
		}

		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if watchdog != nil {
		watchdog.Stop()
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	// Flush pending foreground time before the store closes
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	tabTracker.Shutdown(shutdownCtx)
	cancel()

	sweeper.Stop()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("snsdetox stopped")

	return nil
}

// reloadSettings re-reads the synced settings document and applies it to all
// open tabs.
func reloadSettings(ctx context.Context, store *settings.Store, t *tracker.Tracker, logger zerolog.Logger) {
	if err := systemd.NotifyReloading(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd reloading notification")
	}
	defer func() {
		if err := systemd.NotifyReady(); err != nil {
			logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
		}
	}()

	next, err := store.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload settings")
		return
	}
	if err := t.SettingsUpdated(ctx, next); err != nil {
		logger.Error().Err(err).Msg("Failed to apply settings")
		return
	}
	logger.Info().
		Strs("sites", next.Domains()).
		Msg("Settings reloaded successfully")
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", storageType)
	}
}
