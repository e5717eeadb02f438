package bolt

import (
	"fmt"
	"time"

	"github.com/goodtune/snsdetox/internal/storage"
	"go.etcd.io/bbolt"
)

// Store implements the storage.Store interface using bbolt. Each scope is a
// top-level bucket keyed by document name.
type Store struct {
	db     *bbolt.DB
	synced *bucketStore
	local  *bucketStore
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := storage.EnsureParentDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{
		db:     db,
		synced: &bucketStore{db: db, name: []byte(storage.ScopeSynced)},
		local:  &bucketStore{db: db, name: []byte(storage.ScopeLocal)},
	}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{s.synced.name, s.local.name} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Synced returns the synced configuration scope.
func (s *Store) Synced() storage.Bucket { return s.synced }

// Local returns the local runtime data scope.
func (s *Store) Local() storage.Bucket { return s.local }
