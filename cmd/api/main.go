// Package main is the entrypoint for the Fraudhunter API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jassnet/Fraudhunter/internal/auth"
	"github.com/jassnet/Fraudhunter/internal/cache"
	"github.com/jassnet/Fraudhunter/internal/config"
	"github.com/jassnet/Fraudhunter/internal/handler"
	"github.com/jassnet/Fraudhunter/internal/jobs"
	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/middleware"
	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/repository"
	"github.com/jassnet/Fraudhunter/internal/server"
	"github.com/jassnet/Fraudhunter/internal/service"
	"github.com/jassnet/Fraudhunter/internal/settings"
	"github.com/jassnet/Fraudhunter/internal/source"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateAPI(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return errors.New("database unavailable")
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return errors.New("redis unavailable")
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder, metricsHandler := initMetrics(cfg)

	var src service.Source
	srcInfo := handler.SourceInfo{BaseURL: cfg.Source.BaseURL, Configured: cfg.Source.Configured()}
	srcCfg, err := cfg.SourceClientConfig()
	if err == nil {
		src, err = source.New(srcCfg, logger, source.WithMetrics(recorder))
	}
	if err != nil {
		logger.Warn("log source not configured; ingestion jobs will fail", "error", err)
		srcInfo.Err = err
		src = source.Unconfigured{Err: err}
	}

	reports := repository.NewReportRepository(repo)
	settingsSvc := settings.NewService(repository.NewSettingsRepository(repo), cacheClient, cfg.Detection, logger)
	pipeline := service.NewPipeline(src, service.Stores{
		Clicks:      repository.NewClickRepository(repo),
		Conversions: repository.NewConversionRepository(repo),
		Masters:     repository.NewMasterRepository(repo),
		Dates:       reports,
	}, settingsSvc, service.Options{
		PageSize: cfg.PageSize,
		StoreRaw: cfg.StoreRaw,
		Location: loc,
	}, logger.With("component", "pipeline"), recorder)

	runner := jobs.NewRunner(jobs.NewGuard(cacheClient.Client(), cfg.JobLockTTL), repository.NewJobStatusRepository(repo), logger, recorder)
	jobService := service.NewJobs(pipeline, runner)

	var verifier middleware.TokenVerifier
	if cfg.AdminTokenHash != "" {
		v, err := auth.NewVerifier(cfg.AdminTokenHash)
		if err != nil {
			return errors.New("ADMIN_TOKEN_HASH is not a valid argon2id hash")
		}
		verifier = v
	} else {
		logger.Warn("ADMIN_TOKEN_HASH not set; mutating endpoints are unauthenticated")
	}

	r := handler.NewRouter(handler.RouterConfig{
		Logger: logger,
		Health: handler.NewHealthHandler(map[string]handler.HealthChecker{
			"database": repo,
			"redis":    cacheClient,
		}, dataProbe{dates: reports, masters: pipeline}, srcInfo),
		Reports:  handler.NewReportHandler(service.NewReports(reports, settingsSvc), pipeline, logger),
		Jobs:     handler.NewJobHandler(jobService, runner, pipeline, logger),
		Settings: handler.NewSettingsHandler(settingsSvc, logger),
		Metrics:  metricsHandler,
		Auth:     middleware.AuthConfig{Logger: logger, Verifier: verifier},
		RateLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Limiter: cacheClient,
			RPS:     cfg.RateLimitRPS,
			Burst:   cfg.RateLimitBurst,
		},
		CORS:          middleware.DefaultCORSConfig(cfg.GetCORSAllowedOrigins()),
		IsDevelopment: cfg.IsDevelopment(),
		MaxBodySize:   cfg.MaxRequestBodySize,
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.OnShutdown("jobs", runner.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"timezone", loc.String(),
		"metrics", cfg.MetricsBackend,
	)
	return srv.Run(ctx)
}

// dataProbe feeds the dashboard health check.
type dataProbe struct {
	dates   service.DateStore
	masters *service.Pipeline
}

func (p dataProbe) LatestDate(ctx context.Context, unit model.EventUnit) (time.Time, bool, error) {
	return p.dates.LatestDate(ctx, unit)
}

func (p dataProbe) MasterStatus(ctx context.Context) (*model.MasterCounts, error) {
	return p.masters.MasterStatus(ctx)
}

// initMetrics returns the recorder and the /metrics handler, which is nil
// when metrics are off.
func initMetrics(cfg *config.Config) (metrics.Recorder, http.Handler) {
	switch cfg.MetricsBackend {
	case "memory":
		rec := metrics.NewInMemory()
		return rec, handler.NewMetricsHandler(rec)
	case "none":
		return metrics.NewNoop(), nil
	default:
		rec := metrics.NewPrometheus()
		return rec, rec.Handler()
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// redactURL drops the password from a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// sanitizeError replaces each secret in err's text with its redacted form.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
