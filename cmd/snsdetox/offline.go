package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/config"
	"github.com/goodtune/snsdetox/internal/ledger"
	"github.com/goodtune/snsdetox/internal/settings"
	"github.com/goodtune/snsdetox/internal/storage"
)

// offlineTimeout bounds each maintenance command.
const offlineTimeout = 30 * time.Second

// offline bundles the stores a maintenance command works against. With the
// bolt backend the daemon must be stopped first since it holds the file lock.
type offline struct {
	store    storage.Store
	settings *settings.Store
	ledger   *ledger.Ledger
	logger   zerolog.Logger
}

func openOffline() (*offline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Maintenance commands only log problems
	logCfg := cfg.Logging
	if logCfg.Level == "" || logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	logCfg.Format = "text"
	logger := setupLogger(logCfg)

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return &offline{
		store:    store,
		settings: settings.NewStore(store.Synced(), logger),
		ledger:   ledger.New(store.Local(), clock.Real{}, logger),
		logger:   logger,
	}, nil
}

func (o *offline) Close() {
	if err := o.store.Close(); err != nil {
		o.logger.Error().Err(err).Msg("Failed to close storage")
	}
}

func offlineContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), offlineTimeout)
}
