package store

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// testOlricConfig returns a single-node config on test ports. Each test
// uses unique ports to avoid conflicts.
func testOlricConfig(port, memberlistPort int) *OlricConfig {
	cfg := NewDefaultOlricConfig()
	cfg.BindAddr = "127.0.0.1"
	cfg.BindPort = port
	cfg.MemberlistBindPort = memberlistPort
	cfg.PartitionCount = 23 // Smaller for tests
	cfg.LogLevel = "ERROR"  // Reduce noise in tests
	cfg.DMapName = "test-vault"
	return cfg
}

func TestOlricStoreSingleNode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded store test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := NewOlricStore(ctx, testOlricConfig(13330, 17330), zap.NewNop())
	if err != nil {
		t.Fatalf("NewOlricStore() error = %v", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	t.Run("put and get", func(t *testing.T) {
		if err := store.Put(ctx, "vault:owner", "admin", 0); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		value, err := store.Get(ctx, "vault:owner")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if value != "admin" {
			t.Errorf("Get() = %v, want admin", value)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "lock:nobody")
		if err == nil {
			t.Fatal("Get() on missing key should fail")
		}
		if err.Error() != "key not found" {
			t.Errorf("Get() error = %q, want \"key not found\"", err.Error())
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := store.Put(ctx, "lock:alice", "entry", 0); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := store.Delete(ctx, "lock:alice"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := store.Delete(ctx, "lock:alice"); err != nil {
			t.Errorf("Delete() on missing key error = %v", err)
		}
	})

	t.Run("ttl expires", func(t *testing.T) {
		if err := store.Put(ctx, "ephemeral", "value", 500*time.Millisecond); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		time.Sleep(time.Second)

		if _, err := store.Get(ctx, "ephemeral"); err == nil {
			t.Error("Get() should fail after the TTL has passed")
		}
	})

	t.Run("scan by prefix", func(t *testing.T) {
		for _, key := range []string{"lock:carol", "lock:dave", "custody:native"} {
			if err := store.Put(ctx, key, "entry", 0); err != nil {
				t.Fatalf("Put(%s) error = %v", key, err)
			}
		}

		keys, err := store.Scan(ctx, "^lock:")
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}

		found := map[string]bool{}
		for _, key := range keys {
			found[key] = true
		}
		if !found["lock:carol"] || !found["lock:dave"] {
			t.Errorf("Scan() keys = %v, want lock:carol and lock:dave", keys)
		}
		if found["custody:native"] {
			t.Errorf("Scan() keys = %v, should not match custody keys", keys)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.ClusterMembers != 1 {
			t.Errorf("ClusterMembers = %d, want 1", stats.ClusterMembers)
		}
	})
}
