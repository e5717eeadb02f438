package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestPutKeyScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "usage record", key: "facebook.com", value: `{"totalActiveMs":60000}`},
		{name: "override record", key: "facebook.com_restriction", value: `{"expiresAt":"2024-01-01T00:10:00Z"}`},
		{name: "overwrite usage record", key: "facebook.com", value: `{"totalActiveMs":120000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valueKey := "snsdetox:local:doc:" + tt.key
			indexKey := "snsdetox:local:index"

			if err := client.Eval(ctx, putKeyScript, []string{valueKey, indexKey}, tt.key, tt.value).Err(); err != nil {
				t.Fatalf("Script execution failed: %v", err)
			}

			got, err := mr.Get(valueKey)
			if err != nil {
				t.Fatalf("Value not stored: %v", err)
			}
			if got != tt.value {
				t.Errorf("Expected %s, got %s", tt.value, got)
			}

			isMember, err := mr.SIsMember(indexKey, tt.key)
			if err != nil {
				t.Fatalf("SIsMember failed: %v", err)
			}
			if !isMember {
				t.Errorf("Expected %s in index", tt.key)
			}
		})
	}

	members, _ := mr.SMembers("snsdetox:local:index")
	if len(members) != 2 {
		t.Errorf("Expected 2 distinct index members, got %v", members)
	}
}

func TestDeleteKeyScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	_ = mr.Set("snsdetox:local:doc:a.com", "{}")
	_, _ = mr.SAdd("snsdetox:local:index", "a.com", "b.com")

	err := client.Eval(ctx, deleteKeyScript,
		[]string{"snsdetox:local:doc:a.com", "snsdetox:local:index"}, "a.com").Err()
	if err != nil {
		t.Fatalf("Script execution failed: %v", err)
	}

	if mr.Exists("snsdetox:local:doc:a.com") {
		t.Error("Expected document to be deleted")
	}
	members, _ := mr.SMembers("snsdetox:local:index")
	if len(members) != 1 || members[0] != "b.com" {
		t.Errorf("Unexpected index after delete: %v", members)
	}
}

func TestClearScopeScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	for _, name := range []string{"a.com", "b.com", "b.com_restriction"} {
		_ = mr.Set("snsdetox:local:doc:"+name, "{}")
		_, _ = mr.SAdd("snsdetox:local:index", name)
	}
	_ = mr.Set("snsdetox:synced:doc:settings", "{}")

	cleared, err := client.Eval(ctx, clearScopeScript,
		[]string{"snsdetox:local:index"}, "snsdetox:local:doc:").Int()
	if err != nil {
		t.Fatalf("Script execution failed: %v", err)
	}
	if cleared != 3 {
		t.Errorf("Expected 3 cleared documents, got %d", cleared)
	}

	for _, name := range []string{"a.com", "b.com", "b.com_restriction"} {
		if mr.Exists("snsdetox:local:doc:" + name) {
			t.Errorf("Expected %s to be cleared", name)
		}
	}
	if mr.Exists("snsdetox:local:index") {
		t.Error("Expected index to be removed")
	}
	if !mr.Exists("snsdetox:synced:doc:settings") {
		t.Error("Synced document must survive a local clear")
	}
}
