package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots under {prefix}:snapshot:* keys.
// Safe for concurrent use.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
//
// Parameters:
//   - ctx: Context for the initial ping
//   - opts: Redis connection options (address, password, DB)
//   - prefix: Key namespace; must not be empty
//
// Returns:
//   - *RedisStore: Connected store
//   - error: If prefix is empty or Redis is unreachable
func NewRedisStore(ctx context.Context, opts *redis.Options, prefix string) (*RedisStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("redis key prefix cannot be empty")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":snapshot:" + name
}

// Save writes both blobs and the metadata hash atomically.
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(groupsKey), snap.Groups, 0)
		pipe.Set(ctx, s.key(cuesKey), snap.Cues, 0)
		pipe.HSet(ctx, s.key("meta"),
			"format_version", snap.FormatVersion,
			"saved_at", savedAt.UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving snapshot to redis: %w", err)
	}
	return nil
}

// Load returns the saved snapshot, or ErrNoSnapshot if there is none.
func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	groups, err := s.rdb.Get(ctx, s.key(groupsKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading groups snapshot: %w", err)
	}

	cues, err := s.rdb.Get(ctx, s.key(cuesKey)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("loading cues snapshot: %w", err)
	}

	meta, err := s.rdb.HGetAll(ctx, s.key("meta")).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading snapshot metadata: %w", err)
	}

	snap := Snapshot{Groups: groups, Cues: cues}
	snap.FormatVersion, _ = strconv.Atoi(meta["format_version"])     //nolint:errcheck // written by Save
	snap.SavedAt, _ = time.Parse(time.RFC3339Nano, meta["saved_at"]) //nolint:errcheck // written by Save
	return snap, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
