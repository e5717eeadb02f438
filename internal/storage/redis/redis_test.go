package redis

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/snsdetox/internal/config"
	"github.com/goodtune/snsdetox/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestBucket_PutGet(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if err := store.Local().Put(ctx, "instagram.com", []byte(`{"totalActiveMs":900}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, err := store.Local().Get(ctx, "instagram.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != `{"totalActiveMs":900}` {
		t.Errorf("Unexpected value %s", value)
	}

	if !mr.Exists("snsdetox:local:doc:instagram.com") {
		t.Error("Expected namespaced document key in Redis")
	}
	members, err := mr.SMembers("snsdetox:local:index")
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	if len(members) != 1 || members[0] != "instagram.com" {
		t.Errorf("Unexpected index members %v", members)
	}
}

func TestBucket_GetMissing(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	_, err := store.Synced().Get(context.Background(), "settings")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestBucket_DeleteAndKeys(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	local := store.Local()

	for _, key := range []string{"a.com", "b.com", "b.com_restriction"} {
		if err := local.Put(ctx, key, []byte("{}")); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	if err := local.Delete(ctx, "b.com_restriction"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	keys, err := local.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a.com" || keys[1] != "b.com" {
		t.Errorf("Unexpected keys %v", keys)
	}
}

func TestBucket_ClearOnlyTouchesScope(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if err := store.Synced().Put(ctx, "settings", []byte(`{"sites":[]}`)); err != nil {
		t.Fatalf("Put synced failed: %v", err)
	}
	if err := store.Local().Put(ctx, "a.com", []byte("{}")); err != nil {
		t.Fatalf("Put local failed: %v", err)
	}

	if err := store.Local().Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	keys, err := store.Local().Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected empty local scope, got %v", keys)
	}
	if mr.Exists("snsdetox:local:doc:a.com") {
		t.Error("Expected local document to be removed")
	}
	if _, err := store.Synced().Get(ctx, "settings"); err != nil {
		t.Errorf("Synced scope should survive a local clear: %v", err)
	}
}
