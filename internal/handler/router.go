package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jassnet/Fraudhunter/internal/middleware"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Logger   *slog.Logger
	Health   *HealthHandler
	Reports  *ReportHandler
	Jobs     *JobHandler
	Settings *SettingsHandler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
	CORS      middleware.CORSConfig

	IsDevelopment bool
	MaxBodySize   int64
}

// NewRouter builds the chi router. Read endpoints are public; every
// endpoint that starts work or changes state sits behind the admin token
// and the per-IP rate limit.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.IsDevelopment))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.MaxBodySize(cfg.MaxBodySize))

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", cfg.Health.Health)
		r.Get("/summary", cfg.Reports.Summary)
		r.Get("/stats/daily", cfg.Reports.DailyStats)
		r.Get("/dates", cfg.Reports.Dates)
		r.Get("/suspicious/clicks", cfg.Reports.SuspiciousClicks)
		r.Get("/suspicious/conversions", cfg.Reports.SuspiciousConversions)
		r.Get("/job/status", cfg.Jobs.Status)
		r.Get("/masters/status", cfg.Jobs.MasterStatus)
		r.Get("/settings", cfg.Settings.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.Auth))
			r.Use(middleware.RateLimitIP(cfg.RateLimit))

			r.Post("/ingest/clicks", cfg.Jobs.IngestClicks)
			r.Post("/ingest/conversions", cfg.Jobs.IngestConversions)
			r.Post("/refresh", cfg.Jobs.Refresh)
			r.Post("/sync/masters", cfg.Jobs.SyncMasters)
			r.Post("/settings", cfg.Settings.Update)
		})
	})

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
