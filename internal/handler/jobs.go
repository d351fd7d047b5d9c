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

// JobService starts background jobs.
type JobService interface {
	IngestClicks(ctx context.Context, date string) (*service.JobAccepted, error)
	IngestConversions(ctx context.Context, date string) (*service.JobAccepted, error)
	Refresh(ctx context.Context, in service.RefreshInput) (*service.JobAccepted, error)
	SyncMasters(ctx context.Context) (*service.JobAccepted, error)
}

// JobStatusReader reports the job slot.
type JobStatusReader interface {
	Status(ctx context.Context) (*model.JobStatus, error)
}

// MasterStatusReader reports master table counts.
type MasterStatusReader interface {
	MasterStatus(ctx context.Context) (*model.MasterCounts, error)
}

// JobHandler serves the job endpoints.
type JobHandler struct {
	jobs    JobService
	status  JobStatusReader
	masters MasterStatusReader
	logger  *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobs JobService, status JobStatusReader, masters MasterStatusReader, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, status: status, masters: masters, logger: logger}
}

// IngestClicks starts click ingestion for one day.
// POST /api/ingest/clicks
func (h *JobHandler) IngestClicks(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, h.jobs.IngestClicks)
}

// IngestConversions starts conversion ingestion for one day.
// POST /api/ingest/conversions
func (h *JobHandler) IngestConversions(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, h.jobs.IngestConversions)
}

func (h *JobHandler) ingest(w http.ResponseWriter, r *http.Request, start func(context.Context, string) (*service.JobAccepted, error)) {
	var req dto.IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "INVALID_JSON", err)
		return
	}
	if req.Date == "" {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "date is required")
		return
	}
	if err := middleware.ValidateDate(req.Date); err != nil {
		badRequest(w, "INVALID_DATE", err)
		return
	}

	job, err := start(r.Context(), req.Date)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	accepted(w, job)
}

// Refresh starts an incremental refresh.
// POST /api/refresh
func (h *JobHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "INVALID_JSON", err)
		return
	}

	job, err := h.jobs.Refresh(r.Context(), req.ToInput())
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	accepted(w, job)
}

// SyncMasters starts a master data sync.
// POST /api/sync/masters
func (h *JobHandler) SyncMasters(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.SyncMasters(r.Context())
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	accepted(w, job)
}

// Status returns the job slot.
// GET /api/job/status
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Status(r.Context())
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// MasterStatus returns master table counts.
// GET /api/masters/status
func (h *JobHandler) MasterStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.masters.MasterStatus(r.Context())
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func accepted(w http.ResponseWriter, job *service.JobAccepted) {
	writeJSON(w, http.StatusAccepted, dto.JobAcceptedResponse{
		Success: true,
		Message: job.Message,
		Details: map[string]any{"job_id": job.JobID},
	})
}
