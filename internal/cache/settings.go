package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	settingsKey = "settings:current"

	// DefaultSettingsTTL bounds how long a cached settings snapshot is
	// served before the store is read again.
	DefaultSettingsTTL = 5 * time.Minute
)

// ErrCacheMiss is returned when the key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// GetSettings returns the cached settings payload or ErrCacheMiss.
func (c *Cache) GetSettings(ctx context.Context) ([]byte, error) {
	data, err := c.client.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get settings: %w", err)
	}
	return data, nil
}

// SetSettings caches the settings payload for ttl.
func (c *Cache) SetSettings(ctx context.Context, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	if err := c.client.Set(ctx, settingsKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set settings: %w", err)
	}
	return nil
}

// InvalidateSettings drops the cached settings.
func (c *Cache) InvalidateSettings(ctx context.Context) error {
	if err := c.client.Del(ctx, settingsKey).Err(); err != nil {
		return fmt.Errorf("redis del settings: %w", err)
	}
	return nil
}
