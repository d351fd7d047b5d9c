package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// JobStatusRepository persists the single background job status row.
type JobStatusRepository struct {
	repo *Repository
}

// NewJobStatusRepository creates a new JobStatusRepository.
func NewJobStatusRepository(repo *Repository) *JobStatusRepository {
	return &JobStatusRepository{repo: repo}
}

// GetJobStatus returns the stored status, or an idle status when none exists.
func (r *JobStatusRepository) GetJobStatus(ctx context.Context) (*model.JobStatus, error) {
	var s model.JobStatus
	var jobID *string
	var result []byte
	err := r.repo.pool.QueryRow(ctx, `
		SELECT status, job_id, message, started_at, completed_at, result_json
		FROM job_status WHERE id = 1
	`).Scan(&s.Status, &jobID, &s.Message, &s.StartedAt, &s.CompletedAt, &result)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.JobStatus{Status: model.JobIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query job status: %w", err)
	}
	if jobID != nil {
		s.JobID = *jobID
	}
	s.Result = result
	return &s, nil
}

// SaveJobStatus overwrites the stored status.
func (r *JobStatusRepository) SaveJobStatus(ctx context.Context, s *model.JobStatus) error {
	_, err := r.repo.pool.Exec(ctx, `
		INSERT INTO job_status (id, status, job_id, message, started_at, completed_at, result_json)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			job_id = EXCLUDED.job_id,
			message = EXCLUDED.message,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			result_json = EXCLUDED.result_json
	`, string(s.Status), nullableString(s.JobID), s.Message, s.StartedAt, s.CompletedAt, nullableJSON(s.Result))
	if err != nil {
		return fmt.Errorf("save job status: %w", err)
	}
	return nil
}
