package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/jassnet/Fraudhunter/internal/cache"
)

// Store persists setting values as JSON keyed by setting name.
type Store interface {
	LoadSettings(ctx context.Context) (map[string]json.RawMessage, error)
	SaveSettings(ctx context.Context, values map[string]json.RawMessage) error
}

// Cache holds a serialized settings snapshot.
type Cache interface {
	GetSettings(ctx context.Context) ([]byte, error)
	SetSettings(ctx context.Context, payload []byte, ttl time.Duration) error
	InvalidateSettings(ctx context.Context) error
}

// UpdateResult reports the outcome of an update.
type UpdateResult struct {
	Settings  Settings `json:"settings"`
	Persisted bool     `json:"persisted"`
	Warning   string   `json:"warning,omitempty"`
}

// Service resolves the effective settings: stored values over the
// environment defaults.
type Service struct {
	store    Store
	cache    Cache
	defaults Settings
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(store Store, c Cache, defaults Settings, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		cache:    c,
		defaults: defaults,
		ttl:      cache.DefaultSettingsTTL,
		logger:   logger.With("component", "settings"),
	}
}

// Defaults returns the environment defaults.
func (s *Service) Defaults() Settings {
	return s.defaults
}

// Get returns the effective settings. When the store cannot be read the
// defaults are returned and the failure is logged.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	stored, err := s.store.LoadSettings(ctx)
	if err != nil {
		s.logger.Warn("settings store unavailable, using defaults", "error", err)
		return s.defaults, nil
	}

	current := s.overlay(stored)
	s.toCache(ctx, current)
	return current, nil
}

// Update validates values against the current settings and persists the
// result. A store failure does not fail the update: the result carries
// Persisted=false and a warning, and the values stay cached.
func (s *Service) Update(ctx context.Context, values map[string]json.RawMessage) (*UpdateResult, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	next, err := current.Merge(values)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{Settings: next, Persisted: true}
	if err := s.store.SaveSettings(ctx, next.ToMap()); err != nil {
		s.logger.Warn("failed to persist settings", "error", err)
		result.Persisted = false
		result.Warning = "settings applied but not persisted: " + err.Error()
		s.toCache(ctx, next)
		return result, nil
	}

	if s.cache != nil {
		if err := s.cache.InvalidateSettings(ctx); err != nil {
			s.logger.Warn("failed to invalidate settings cache", "error", err)
		}
	}
	s.logger.Info("settings updated", "keys", sortedKeys(values))
	return result, nil
}

// overlay applies the stored values as one set. When that set is invalid
// the keys are applied one by one, retrying rejected keys while any key
// still lands, so a bad row does not discard the rest and dependent pairs
// such as min/max gaps are not order sensitive.
func (s *Service) overlay(stored map[string]json.RawMessage) Settings {
	if merged, err := s.defaults.Merge(stored); err == nil {
		return merged
	}

	current := s.defaults
	pending := sortedKeys(stored)
	for progress := true; progress && len(pending) > 0; {
		progress = false
		var rejected []string
		for _, key := range pending {
			next, err := current.Merge(map[string]json.RawMessage{key: stored[key]})
			if err != nil {
				rejected = append(rejected, key)
				continue
			}
			current = next
			progress = true
		}
		pending = rejected
	}

	for _, key := range pending {
		_, err := current.Merge(map[string]json.RawMessage{key: stored[key]})
		s.logger.Warn("ignoring stored setting", "key", key, "error", err)
	}
	return current
}

func (s *Service) fromCache(ctx context.Context) (Settings, bool) {
	if s.cache == nil {
		return Settings{}, false
	}
	data, err := s.cache.GetSettings(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("settings cache read failed", "error", err)
		}
		return Settings{}, false
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("discarding malformed cached settings", "error", err)
		return Settings{}, false
	}
	return out, true
}

func (s *Service) toCache(ctx context.Context, v Settings) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("encode settings for cache", "error", err)
		return
	}
	if err := s.cache.SetSettings(ctx, data, s.ttl); err != nil {
		s.logger.Warn("settings cache write failed", "error", err)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
