package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jassnet/Fraudhunter/internal/handler/dto"
	"github.com/jassnet/Fraudhunter/internal/model"
)

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// DataProbe answers the data questions of the dashboard health check.
type DataProbe interface {
	LatestDate(ctx context.Context, unit model.EventUnit) (time.Time, bool, error)
	MasterStatus(ctx context.Context) (*model.MasterCounts, error)
}

// SourceInfo describes the log source configuration without secrets.
type SourceInfo struct {
	BaseURL    string
	Configured bool
	// Err is the configuration problem, if any.
	Err error
}

// HealthHandler serves the probes and the dashboard health check.
type HealthHandler struct {
	checks map[string]HealthChecker
	probe  DataProbe
	source SourceInfo
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// to its checker; nil checkers are reported as not configured.
func NewHealthHandler(checks map[string]HealthChecker, probe DataProbe, src SourceInfo) *HealthHandler {
	return &HealthHandler{checks: checks, probe: probe, source: src}
}

// Healthz is the liveness probe; it never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// Readyz pings every dependency and returns 503 if any fails.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for name, c := range h.checks {
		if c == nil {
			checks[name] = "not configured"
			continue
		}
		if err := c.Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, dto.HealthResponse{Status: status, Checks: checks})
}

// Health reports configuration problems and missing data for the
// dashboard. It always answers 200; the status field carries the verdict.
//
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var issues []dto.HealthIssue
	if h.source.Err != nil {
		issues = append(issues, dto.HealthIssue{
			Type:    "error",
			Field:   "ACS_BASE_URL / ACS_TOKEN",
			Message: h.source.Err.Error(),
			Hint:    "Set ACS_BASE_URL and ACS_TOKEN, or ACS_ACCESS_KEY and ACS_SECRET_KEY",
		})
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if c := h.checks[name]; c != nil {
			if err := c.Ping(ctx); err != nil {
				issues = append(issues, dto.HealthIssue{Type: "error", Field: name, Message: "unreachable: " + err.Error()})
			}
		}
	}

	errorCount := len(issues)
	if h.probe != nil {
		issues = append(issues, h.dataWarnings(ctx)...)
	}

	status := "ok"
	switch {
	case errorCount > 0:
		status = "error"
	case len(issues) > 0:
		status = "warning"
	}

	auth := "(not set)"
	if h.source.Configured && h.source.Err == nil {
		auth = "configured"
	}
	baseURL := h.source.BaseURL
	if baseURL == "" {
		baseURL = "(not set)"
	}

	if issues == nil {
		issues = []dto.HealthIssue{}
	}
	writeJSON(w, http.StatusOK, dto.DiagnosticsResponse{
		Status: status,
		Issues: issues,
		Config: map[string]string{"acs_base_url": baseURL, "acs_auth": auth},
	})
}

func (h *HealthHandler) dataWarnings(ctx context.Context) []dto.HealthIssue {
	var out []dto.HealthIssue
	if _, ok, err := h.probe.LatestDate(ctx, model.UnitClicks); err == nil && !ok {
		out = append(out, dto.HealthIssue{
			Type:    "warning",
			Field:   "click_data",
			Message: "No click logs have been ingested",
			Hint:    "Run a click ingestion or a refresh",
		})
	}
	if counts, err := h.probe.MasterStatus(ctx); err == nil && counts.Media == 0 {
		out = append(out, dto.HealthIssue{
			Type:    "warning",
			Field:   "master_data",
			Message: "Master data has not been synced",
			Hint:    "Run a master sync",
		})
	}
	return out
}
