package genstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisSnapshotAndBump(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	s := NewRedis(rdb, "fs")

	if got, err := s.Snapshot(ctx, "wipe"); err != nil || got != 0 {
		t.Fatalf("snapshot missing: got=%d err=%v", got, err)
	}
	if got, err := s.Bump(ctx, "wipe"); err != nil || got != 1 {
		t.Fatalf("bump: got=%d err=%v", got, err)
	}
	// A second store on the same namespace observes the same epoch.
	other := NewRedis(rdb, "fs")
	if got, _ := other.Snapshot(ctx, "wipe"); got != 1 {
		t.Fatalf("shared epoch: got=%d want 1", got)
	}
}

func TestRedisBumpWithTTLSetsExpiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	s := NewRedisWithTTL(rdb, "fs", time.Minute)

	if _, err := s.Bump(ctx, "wipe"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("fs:epoch:wipe"); ttl != time.Minute {
		t.Fatalf("ttl=%v want 1m", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if got, _ := s.Snapshot(ctx, "wipe"); got != 0 {
		t.Fatalf("expired epoch: got=%d want 0", got)
	}
}

func TestRedisSnapshotRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	if err := mr.Set("fs:epoch:wipe", "not-a-number"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRedis(rdb, "fs").Snapshot(ctx, "wipe"); err == nil {
		t.Fatal("expected parse error")
	}
}
