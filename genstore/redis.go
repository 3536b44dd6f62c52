package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares epochs across processes and survives restarts.
// With a TTL, an expired epoch reads as 0; in-flight fetches that
// snapshotted a higher value are then discarded once, which is harmless.
type Redis struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration // 0 disables expiry
}

var _ Store = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

// NewRedisWithTTL refreshes ttl on every Bump. ttl <= 0 disables expiry.
func NewRedisWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key(name string) string { return s.ns + ":epoch:" + name }

func (s *Redis) Snapshot(ctx context.Context, name string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis epoch parse: %w", err)
	}
	return u, nil
}

// Bump pipelines INCR + EXPIRE in one round-trip when a TTL is set.
func (s *Redis) Bump(ctx context.Context, name string) (uint64, error) {
	k := s.key(name)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Close is a no-op; the client belongs to the caller.
func (s *Redis) Close(context.Context) error { return nil }
