package model

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle state of the background job slot.
type JobState string

// Job states.
const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus describes the most recent (or current) background job.
type JobStatus struct {
	Status      JobState        `json:"status"`
	JobID       string          `json:"job_id,omitempty"`
	Message     string          `json:"message"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// IsRunning reports whether a job currently holds the slot.
func (s *JobStatus) IsRunning() bool {
	return s.Status == JobRunning
}
