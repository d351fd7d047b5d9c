package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const ipLimitPrefix = "fraudhunter:ratelimit:ip:"

// RateLimitResult is the outcome of one limiter check.
type RateLimitResult struct {
	Allowed bool
	// Remaining is how many more requests would pass right now.
	Remaining  int64
	RetryAfter time.Duration
}

// gcraScript stores the theoretical arrival time (TAT) of the next request
// in milliseconds. A request passes when it is no earlier than
// TAT - burst*interval + interval.
var gcraScript = redis.NewScript(`
local interval = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tat = tonumber(redis.call('GET', KEYS[1])) or now
if tat < now then
	tat = now
end

local diff = now - (tat + interval - burst * interval)
if diff < 0 then
	return {0, -diff, 0}
end

local next_tat = tat + interval
redis.call('SET', KEYS[1], next_tat, 'PX', next_tat - now)
return {1, 0, math.floor(diff / interval)}
`)

// CheckIPRateLimit admits up to burst requests at once from ip, refilled
// at ratePerSecond. A non-positive rate admits everything.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}
	interval := max(int64(1000/ratePerSecond), 1)
	burst = max(burst, 1)

	res, err := gcraScript.Run(ctx, c.client, []string{ipLimitPrefix + ipKey(ip)},
		interval, burst, time.Now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
	}, nil
}

// ipKey keeps raw client addresses out of Redis.
func ipKey(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}
