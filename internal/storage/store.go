package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Scope names used by every backend.
const (
	ScopeSynced = "synced"
	ScopeLocal  = "local"
)

// Store represents the root storage interface. It exposes two independent
// key-value scopes: synced configuration and local runtime data.
type Store interface {
	Close() error
	Synced() Bucket
	Local() Bucket
}

// Bucket is a flat key-value namespace holding opaque documents.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// GetJSON reads key and decodes it into a T.
func GetJSON[T any](ctx context.Context, b Bucket, key string) (*T, error) {
	data, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &item, nil
}

// PutJSON encodes value and stores it under key.
func PutJSON(ctx context.Context, b Bucket, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Put(ctx, key, data)
}
