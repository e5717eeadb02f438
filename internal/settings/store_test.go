package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodtune/snsdetox/internal/storage"
	"github.com/goodtune/snsdetox/internal/storage/bolt"
)

func openBucket(t *testing.T) storage.Bucket {
	t.Helper()
	store, err := bolt.Open(t.TempDir() + "/settings.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store.Synced()
}

func TestStoreLoadPersistsDefaultsOnFirstRun(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	s := NewStore(bucket, zerolog.Nop())

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), loaded)

	data, err := bucket.Get(ctx, Key)
	require.NoError(t, err)
	persisted, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), persisted)
}

func TestStoreLoadReadsSavedDocument(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	custom := Settings{
		Sites:                   []SiteConfig{{Domain: "reddit.com", GrayscaleMinutes: 5, BlockMinutes: 10}},
		DefaultGrayscaleMinutes: 15,
		DefaultBlockMinutes:     45,
	}
	require.NoError(t, NewStore(bucket, zerolog.Nop()).Save(ctx, custom))

	s := NewStore(bucket, zerolog.Nop())
	_, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsMonitored("reddit.com"))
	assert.False(t, s.IsMonitored("facebook.com"))
}

func TestStoreReplaceRebuildsCache(t *testing.T) {
	s := NewStore(openBucket(t), zerolog.Nop())

	assert.Equal(t, 15*time.Minute, s.ThresholdsFor("facebook.com").Grayscale)

	next := Defaults()
	next.Sites[0].GrayscaleMinutes = 2
	require.NoError(t, s.Replace(next))

	assert.Equal(t, 2*time.Minute, s.ThresholdsFor("facebook.com").Grayscale)
}

func TestStoreReplaceRejectsInvalid(t *testing.T) {
	s := NewStore(openBucket(t), zerolog.Nop())

	bad := Defaults()
	bad.Sites[0].BlockMinutes = 1
	require.ErrorIs(t, s.Replace(bad), ErrInvalid)

	assert.Equal(t, Defaults(), s.Current())
}

type failingBucket struct {
	storage.Bucket
	fail bool
}

func (b *failingBucket) Get(ctx context.Context, key string) ([]byte, error) {
	if b.fail || b.Bucket == nil {
		return nil, errors.New("disk on fire")
	}
	return b.Bucket.Get(ctx, key)
}

func TestStoreLoadFallsBackOnStorageFailure(t *testing.T) {
	s := NewStore(&failingBucket{}, zerolog.Nop())

	loaded, err := s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, Defaults(), loaded)
	assert.True(t, s.IsMonitored("instagram.com"))
}

func TestStoreLoadKeepsLastGoodDocumentOnFailure(t *testing.T) {
	ctx := context.Background()
	bucket := &failingBucket{Bucket: openBucket(t)}
	s := NewStore(bucket, zerolog.Nop())

	custom := Settings{
		Sites:                   []SiteConfig{{Domain: "reddit.com", GrayscaleMinutes: 5, BlockMinutes: 10}},
		DefaultGrayscaleMinutes: 15,
		DefaultBlockMinutes:     45,
	}
	require.NoError(t, s.Save(ctx, custom))
	_, err := s.Load(ctx)
	require.NoError(t, err)

	bucket.fail = true
	loaded, err := s.Load(ctx)
	require.Error(t, err)
	assert.Equal(t, custom, loaded)
	assert.True(t, s.IsMonitored("reddit.com"))
	assert.False(t, s.IsMonitored("facebook.com"))
}

func TestStoreLoadKeepsCurrentOnInvalidDocument(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	s := NewStore(bucket, zerolog.Nop())

	custom := Settings{
		Sites:                   []SiteConfig{{Domain: "reddit.com", GrayscaleMinutes: 5, BlockMinutes: 10}},
		DefaultGrayscaleMinutes: 15,
		DefaultBlockMinutes:     45,
	}
	require.NoError(t, s.Replace(custom))
	require.NoError(t, bucket.Put(ctx, Key, []byte(`{"sites":[{"domain":"x.com","grayscaleTime":50,"blockTime":10}]}`)))

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, custom, s.Current())
}
