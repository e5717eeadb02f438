package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/snsdetox/internal/config"
	"github.com/goodtune/snsdetox/internal/storage"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key written by this store.
const keyPrefix = "snsdetox"

// Store implements the storage.Store interface using Redis
type Store struct {
	client *redis.Client
	synced *bucketStore
	local  *bucketStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client: client,
		synced: newBucketStore(client, storage.ScopeSynced),
		local:  newBucketStore(client, storage.ScopeLocal),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Synced returns the synced configuration scope
func (s *Store) Synced() storage.Bucket {
	return s.synced
}

// Local returns the local runtime data scope
func (s *Store) Local() storage.Bucket {
	return s.local
}
