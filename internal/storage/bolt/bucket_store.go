package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/snsdetox/internal/storage"
	"go.etcd.io/bbolt"
)

type bucketStore struct {
	db   *bbolt.DB
	name []byte
}

func (s *bucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket(s.name)
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(key))
		if value == nil {
			return storage.ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		out = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *bucketStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket(s.name)
		if b == nil {
			return fmt.Errorf("bucket missing: %s", s.name)
		}
		return b.Put([]byte(key), value)
	})
}

func (s *bucketStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket(s.name)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *bucketStore) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	return keys, s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.name)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			keys = append(keys, string(k))
			return nil
		})
	})
}

func (s *bucketStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tx.Bucket(s.name) != nil {
			if err := tx.DeleteBucket(s.name); err != nil {
				return fmt.Errorf("delete bucket %s: %w", s.name, err)
			}
		}
		if _, err := tx.CreateBucket(s.name); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.name, err)
		}
		return nil
	})
}
