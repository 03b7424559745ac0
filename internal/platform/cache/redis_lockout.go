package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockoutPrefix = "hms:lockout:"

	// staleTTL clears failure counters that never reached the threshold.
	staleTTL = 24 * time.Hour
	// lockedGrace keeps a lock record around a little past its window.
	lockedGrace = 30 * time.Minute
)

// RedisLockoutStore keeps failed-login counters in Redis hashes so that every
// server instance sees the same lockout state.
type RedisLockoutStore struct {
	client *redis.Client
}

func NewRedisLockoutStore(client *redis.Client) *RedisLockoutStore {
	return &RedisLockoutStore{client: client}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (s *RedisLockoutStore) Get(ctx context.Context, key string) (LockoutState, error) {
	data, err := s.client.HGetAll(ctx, lockoutPrefix+key).Result()
	if err != nil {
		return LockoutState{}, err
	}
	if len(data) == 0 {
		return LockoutState{}, nil
	}

	var state LockoutState
	if raw, ok := data["failed_count"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			state.FailedCount = n
		}
	}
	if raw, ok := data["locked_until"]; ok && raw != "" {
		if unix, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil && unix > 0 {
			t := time.Unix(unix, 0).UTC()
			state.LockedUntil = &t
		}
	}
	return state, nil
}

func (s *RedisLockoutStore) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, window time.Duration) (LockoutState, error) {
	redisKey := lockoutPrefix + key

	count, err := s.client.HIncrBy(ctx, redisKey, "failed_count", 1).Result()
	if err != nil {
		return LockoutState{}, err
	}

	state := LockoutState{FailedCount: int(count)}
	if int(count) < threshold {
		if err := s.client.Expire(ctx, redisKey, staleTTL).Err(); err != nil {
			return LockoutState{}, err
		}
		return state, nil
	}

	until := now.Add(window).UTC()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisKey, "locked_until", until.Unix())
		p.Expire(ctx, redisKey, window+lockedGrace)
		return nil
	})
	if err != nil {
		return LockoutState{}, err
	}
	state.LockedUntil = &until
	return state, nil
}

func (s *RedisLockoutStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockoutPrefix+key).Err()
}
