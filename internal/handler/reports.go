package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jassnet/Fraudhunter/internal/handler/dto"
	"github.com/jassnet/Fraudhunter/internal/middleware"
	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/service"
)

// ReportService answers the dashboard read queries.
type ReportService interface {
	Summary(ctx context.Context, date string) (*model.Summary, error)
	DailyStats(ctx context.Context, days int) ([]model.DailyStat, error)
	Dates(ctx context.Context) ([]string, error)
}

// SuspiciousService lists findings.
type SuspiciousService interface {
	Suspicious(ctx context.Context, in service.SuspiciousInput) (*service.SuspiciousPage, error)
}

// ReportHandler serves summary, trend and findings endpoints.
type ReportHandler struct {
	reports    ReportService
	suspicious SuspiciousService
	logger     *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports ReportService, suspicious SuspiciousService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, suspicious: suspicious, logger: logger}
}

// Summary returns the dashboard overview.
// GET /api/summary?date=YYYY-MM-DD
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if err := middleware.ValidateDate(date); err != nil {
		badRequest(w, "INVALID_DATE", err)
		return
	}

	summary, err := h.reports.Summary(r.Context(), date)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "NO_DATA", "No data available")
		return
	}
	writeJSON(w, http.StatusOK, dto.SummaryResponse{Date: summary.Date, Stats: summary})
}

// DailyStats returns the trend series, newest last.
// GET /api/stats/daily?limit=30
func (h *ReportHandler) DailyStats(w http.ResponseWriter, r *http.Request) {
	days, err := middleware.ParseInt(r.URL.Query().Get("limit"), service.DefaultStatsDays)
	if err != nil {
		badRequest(w, "INVALID_LIMIT", err)
		return
	}

	stats, err := h.reports.DailyStats(r.Context(), days)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.DailyStatsResponse{Data: stats})
}

// Dates lists the dates that have data, newest first.
// GET /api/dates
func (h *ReportHandler) Dates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.reports.Dates(r.Context())
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.DatesResponse{Dates: dates})
}

// SuspiciousClicks lists click-based findings.
// GET /api/suspicious/clicks
func (h *ReportHandler) SuspiciousClicks(w http.ResponseWriter, r *http.Request) {
	h.listSuspicious(w, r, model.UnitClicks)
}

// SuspiciousConversions lists conversion-based findings.
// GET /api/suspicious/conversions
func (h *ReportHandler) SuspiciousConversions(w http.ResponseWriter, r *http.Request) {
	h.listSuspicious(w, r, model.UnitConversions)
}

func (h *ReportHandler) listSuspicious(w http.ResponseWriter, r *http.Request, unit model.EventUnit) {
	in, code, err := parseSuspiciousQuery(r, unit)
	if err != nil {
		badRequest(w, code, err)
		return
	}

	page, err := h.suspicious.Suspicious(r.Context(), in)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSuspiciousResponse(page, unit))
}

func parseSuspiciousQuery(r *http.Request, unit model.EventUnit) (service.SuspiciousInput, string, error) {
	q := r.URL.Query()
	in := service.SuspiciousInput{Unit: unit, Date: q.Get("date")}

	if err := middleware.ValidateDate(in.Date); err != nil {
		return in, "INVALID_DATE", err
	}
	var err error
	if in.Limit, err = middleware.ParseInt(q.Get("limit"), service.DefaultSuspiciousLimit); err != nil {
		return in, "INVALID_LIMIT", err
	}
	if in.Offset, err = middleware.ParseInt(q.Get("offset"), 0); err != nil {
		return in, "INVALID_OFFSET", err
	}
	if in.Search, err = middleware.NormalizeSearch(q.Get("search")); err != nil {
		return in, "INVALID_SEARCH", err
	}
	if in.IncludeNames, err = middleware.ParseBool(q.Get("include_names"), true); err != nil {
		return in, "INVALID_PARAMETER", err
	}
	return in, "", nil
}
