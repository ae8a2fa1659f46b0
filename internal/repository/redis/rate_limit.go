package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/tolibear/evolving-site-sub001/internal/core/port"
)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
}

// slidingWindowScript trims, counts and conditionally records in one round trip.
// Scores are unix milliseconds.
var slidingWindowScript = red.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[5])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, ARGV[1], ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, ARGV[2])
local oldest = tonumber(ARGV[1])
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RateLimitRepository persists rate-limit attempts in Redis sorted sets.
type RateLimitRepository struct {
	client *red.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *red.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Acquire records an attempt when the window still has room.
func (r *RateLimitRepository) Acquire(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (port.RateLimitWindow, error) {
	if window <= 0 {
		return port.RateLimitWindow{}, errors.New("window must be positive")
	}
	if limit <= 0 {
		return port.RateLimitWindow{}, errors.New("limit must be positive")
	}

	nowMillis := at.UnixMilli()
	values, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.key(identifier)},
		nowMillis,
		window.Milliseconds(),
		limit,
		fmt.Sprintf("%d-%s", nowMillis, uuid.NewString()),
		nowMillis-window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return port.RateLimitWindow{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(values) != 3 {
		return port.RateLimitWindow{}, fmt.Errorf("redis sliding window: unexpected reply length %d", len(values))
	}

	return port.RateLimitWindow{
		Allowed: values[0] == 1,
		Count:   int(values[1]),
		Oldest:  time.UnixMilli(values[2]).UTC(),
	}, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
