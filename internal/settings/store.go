package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/restriction"
	"github.com/goodtune/snsdetox/internal/storage"
)

// Key is the synced-scope key holding the settings document.
const Key = "settings"

const thresholdCacheSize = 256

// Store is the in-memory settings holder. Contents change only through Load
// and Replace.
type Store struct {
	bucket storage.Bucket
	logger zerolog.Logger

	mu      sync.RWMutex
	current Settings
	cache   *lru.Cache[string, restriction.Thresholds]
}

// NewStore creates a store holding the built-in defaults until Load runs.
func NewStore(bucket storage.Bucket, logger zerolog.Logger) *Store {
	cache, _ := lru.New[string, restriction.Thresholds](thresholdCacheSize)
	return &Store{
		bucket:  bucket,
		logger:  logger.With().Str("component", "settings").Logger(),
		current: Defaults(),
		cache:   cache,
	}
}

// Load fetches the document from the synced scope. On first run the defaults
// are persisted. If storage fails or the stored document is invalid the
// in-memory settings are left untouched, so before any successful load that
// means the defaults, and afterwards the last good document.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	data, err := s.bucket.Get(ctx, Key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		defaults := Defaults()
		if err := s.Save(ctx, defaults); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist default settings")
		}
		s.swap(defaults)
		return defaults, nil
	case err != nil:
		s.logger.Error().Err(err).Msg("Failed to load settings, keeping current")
		return s.Current(), fmt.Errorf("load settings: %w", err)
	}

	loaded, err := Decode(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stored settings are invalid, keeping current")
		return s.Current(), err
	}
	s.swap(loaded)
	return loaded, nil
}

// Save validates and persists a document without changing the in-memory copy.
func (s *Store) Save(ctx context.Context, next Settings) error {
	if err := Validate(next); err != nil {
		return err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.bucket.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Replace validates next and swaps it in, rebuilding the threshold cache.
func (s *Store) Replace(next Settings) error {
	if err := Validate(next); err != nil {
		return err
	}
	s.swap(next)
	s.logger.Info().Int("sites", len(next.Sites)).Msg("Settings replaced")
	return nil
}

func (s *Store) swap(next Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next.Clone()
	s.cache.Purge()
}

// Current returns a copy of the active settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// MatchSite returns the configured entry covering d.
func (s *Store) MatchSite(d string) (SiteConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.MatchSite(d)
}

// IsMonitored reports whether d matches a configured site.
func (s *Store) IsMonitored(d string) bool {
	_, ok := s.MatchSite(d)
	return ok
}

// ThresholdsFor resolves thresholds for d through the cache.
func (s *Store) ThresholdsFor(d string) restriction.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if th, ok := s.cache.Get(d); ok {
		return th
	}
	th := s.current.ThresholdsFor(d)
	s.cache.Add(d, th)
	return th
}
