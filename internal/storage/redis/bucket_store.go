package redis

import (
	"context"
	"errors"

	"github.com/goodtune/snsdetox/internal/storage"
	"github.com/redis/go-redis/v9"
)

type bucketStore struct {
	client    *redis.Client
	docPrefix string
	indexKey  string
	put       *redis.Script
	del       *redis.Script
	clear     *redis.Script
}

func newBucketStore(client *redis.Client, scope string) *bucketStore {
	return &bucketStore{
		client:    client,
		docPrefix: keyPrefix + ":" + scope + ":doc:",
		indexKey:  keyPrefix + ":" + scope + ":index",
		put:       redis.NewScript(putKeyScript),
		del:       redis.NewScript(deleteKeyScript),
		clear:     redis.NewScript(clearScopeScript),
	}
}

// Get retrieves a document by name
func (s *bucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.docPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores a document and indexes its name
func (s *bucketStore) Put(ctx context.Context, key string, value []byte) error {
	keys := []string{s.docPrefix + key, s.indexKey}
	return s.put.Run(ctx, s.client, keys, key, value).Err()
}

// Delete removes a document and its index entry
func (s *bucketStore) Delete(ctx context.Context, key string) error {
	keys := []string{s.docPrefix + key, s.indexKey}
	return s.del.Run(ctx, s.client, keys, key).Err()
}

// Keys lists every document name in the scope
func (s *bucketStore) Keys(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey).Result()
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Clear removes every document in the scope
func (s *bucketStore) Clear(ctx context.Context) error {
	return s.clear.Run(ctx, s.client, []string{s.indexKey}, s.docPrefix).Err()
}
