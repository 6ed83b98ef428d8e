package throttle

import (
	"context"
	"testing"
	"time"

	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/storage"

	"go.uber.org/zap"
)

func TestThrottleSlidingWindow(t *testing.T) {
	store, _ := storage.New(storage.DriverSQLite, ":memory:")
	defer store.Close()
	_ = store.Migrate()
	auditLogger := audit.NewLogger(store, zap.NewNop())

	now := time.Unix(1_700_000_000, 0)
	module := New(Config{Actions: 2, WindowSeconds: 10}, auditLogger)
	module.now = func() time.Time { return now }
	ctx := context.Background()

	if !module.Allow(ctx, "g1", "u1") || !module.Allow(ctx, "g1", "u1") {
		t.Fatalf("first two actions must pass")
	}
	if module.Allow(ctx, "g1", "u1") {
		t.Fatalf("expected third action to be throttled")
	}
	if !module.Allow(ctx, "g1", "u2") {
		t.Fatalf("other users are not affected")
	}

	logs, err := store.ListAuditLogs(ctx, "g1", time.Time{})
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Event != audit.EventThrottled {
		t.Fatalf("expected one throttle audit entry, got %+v", logs)
	}

	now = now.Add(11 * time.Second)
	if !module.Allow(ctx, "g1", "u1") {
		t.Fatalf("window should have expired")
	}
	now = now.Add(time.Minute)
	if dropped := module.Prune(); dropped != 2 {
		t.Fatalf("expected 2 idle windows dropped, got %d", dropped)
	}
}

func TestThrottleDisabled(t *testing.T) {
	module := New(Config{}, nil)
	for i := 0; i < 100; i++ {
		if !module.Allow(context.Background(), "g", "u") {
			t.Fatalf("disabled throttle must allow everything")
		}
	}
}
