// Package config loads application configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/jassnet/Fraudhunter/internal/settings"
	"github.com/jassnet/Fraudhunter/internal/source"
)

// Config holds all application configuration.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// DatabaseURL selects PostgreSQL. The API requires it; the CLI falls
	// back to SQLite at DBPath without it.
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`
	DBPath         string `env:"FRAUD_DB_PATH" envDefault:"fraudhunter.db"`

	// RedisURL backs the job guard, the settings cache and rate limiting.
	RedisURL string `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// MetricsBackend is "prometheus", "memory" or "none".
	MetricsBackend string `env:"METRICS_BACKEND" envDefault:"prometheus"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Comma-separated dashboard origins.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`
	MaxRequestBodySize int64  `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// AdminTokenHash is the argon2id hash guarding mutating routes. Empty
	// leaves them open.
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`

	// Per-IP limit on mutating routes; zero disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"1"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	JobLockTTL time.Duration `env:"JOB_LOCK_TTL" envDefault:"2h"`

	Source SourceConfig

	PageSize int    `env:"FRAUD_PAGE_SIZE" envDefault:"500"`
	StoreRaw bool   `env:"FRAUD_STORE_RAW" envDefault:"true"`
	Timezone string `env:"FRAUD_TIMEZONE" envDefault:"Asia/Tokyo"`

	// Detection holds the environment defaults of the tunable settings.
	Detection settings.Settings `envPrefix:"FRAUD_"`
}

// SourceConfig configures the ACS log source.
type SourceConfig struct {
	BaseURL            string        `env:"ACS_BASE_URL"`
	AccessKey          string        `env:"ACS_ACCESS_KEY"`
	SecretKey          string        `env:"ACS_SECRET_KEY"`
	Token              string        `env:"ACS_TOKEN"`
	ClickEndpoint      string        `env:"ACS_LOG_ENDPOINT" envDefault:"track_log/search"`
	ConversionEndpoint string        `env:"ACS_CONVERSION_ENDPOINT" envDefault:"action_log_raw/search"`
	RateLimitRPS       float64       `env:"ACS_RATE_LIMIT_RPS" envDefault:"0"`
	HTTPTimeout        time.Duration `env:"ACS_HTTP_TIMEOUT" envDefault:"30s"`
}

// Configured reports whether any source setting is present.
func (s SourceConfig) Configured() bool {
	return s.BaseURL != "" || s.Token != "" || s.AccessKey != ""
}

// credentials returns the access and secret keys, split from Token when
// the separate keys are unset.
func (s SourceConfig) credentials() (string, string, error) {
	if s.AccessKey != "" && s.SecretKey != "" {
		return s.AccessKey, s.SecretKey, nil
	}
	if s.Token == "" {
		return "", "", errors.New("ACS_ACCESS_KEY and ACS_SECRET_KEY, or ACS_TOKEN, are required")
	}
	access, secret, ok := strings.Cut(s.Token, ":")
	if !ok || access == "" || secret == "" {
		return "", "", errors.New("ACS_TOKEN must be access:secret")
	}
	return access, secret, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// GetCORSAllowedOrigins parses the comma-separated origins.
func (c *Config) GetCORSAllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Location loads the source timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid FRAUD_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SourceClientConfig builds the source client configuration.
func (c *Config) SourceClientConfig() (source.Config, error) {
	u, err := url.Parse(c.Source.BaseURL)
	if c.Source.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return source.Config{}, fmt.Errorf("ACS_BASE_URL must be an http(s) URL, got %q", c.Source.BaseURL)
	}
	access, secret, err := c.Source.credentials()
	if err != nil {
		return source.Config{}, err
	}
	loc, err := c.Location()
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{
		BaseURL:            c.Source.BaseURL,
		AccessKey:          access,
		SecretKey:          secret,
		ClickEndpoint:      c.Source.ClickEndpoint,
		ConversionEndpoint: c.Source.ConversionEndpoint,
		Timeout:            c.Source.HTTPTimeout,
		RateLimit:          c.Source.RateLimitRPS,
		Location:           loc,
	}, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("FRAUD_PAGE_SIZE must be positive, got %d", c.PageSize))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateAPI additionally checks what the API server needs.
func (c *Config) ValidateAPI() error {
	errs := []error{c.Validate()}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	switch c.MetricsBackend {
	case "prometheus", "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("METRICS_BACKEND must be prometheus, memory or none, got %q", c.MetricsBackend))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must not be negative"))
	}
	return errors.Join(errs...)
}

// Load parses environment variables into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
