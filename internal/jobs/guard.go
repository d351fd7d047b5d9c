// Package jobs runs at most one background job at a time across every
// API instance, using a Redis lock as the single-flight guard.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jassnet/Fraudhunter/internal/model"
)

const (
	lockKey   = "jobs:lock"
	statusKey = "jobs:status"

	// DefaultLockTTL bounds how long a crashed job can hold the slot.
	DefaultLockTTL = 2 * time.Hour
)

var (
	// ErrConflict is returned when another job holds the slot.
	ErrConflict = errors.New("another job is already running")
	// ErrShuttingDown is returned by Enqueue once Shutdown has begun.
	ErrShuttingDown = errors.New("job runner is shutting down")
)

// releaseScript deletes the lock only when jobID still holds it.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Guard is the Redis-backed job slot plus the last job's status.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewGuard creates a Guard. A non-positive ttl uses DefaultLockTTL.
func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Guard{client: client, ttl: ttl, now: time.Now}
}

// TryStart claims the slot for jobID. Exactly one concurrent caller wins;
// the others get false.
func (g *Guard) TryStart(ctx context.Context, jobID, message string) (bool, error) {
	ok, err := g.client.SetNX(ctx, lockKey, jobID, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	started := g.now().UTC()
	if err := g.writeStatus(ctx, &model.JobStatus{
		Status:    model.JobRunning,
		JobID:     jobID,
		Message:   message,
		StartedAt: &started,
	}); err != nil {
		_ = g.release(ctx, jobID)
		return false, err
	}
	return true, nil
}

// Complete records success and frees the slot.
func (g *Guard) Complete(ctx context.Context, jobID, message string, result json.RawMessage) error {
	return g.finish(ctx, jobID, model.JobCompleted, message, result)
}

// Fail records failure and frees the slot.
func (g *Guard) Fail(ctx context.Context, jobID, message string) error {
	return g.finish(ctx, jobID, model.JobFailed, message, nil)
}

// Status returns the current or last job status. A running job whose lock
// has expired is reported as failed.
func (g *Guard) Status(ctx context.Context) (*model.JobStatus, error) {
	fields, err := g.client.HGetAll(ctx, statusKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read job status: %w", err)
	}
	if len(fields) == 0 {
		return &model.JobStatus{Status: model.JobIdle}, nil
	}

	st := &model.JobStatus{
		Status:      model.JobState(fields["status"]),
		JobID:       fields["job_id"],
		Message:     fields["message"],
		StartedAt:   parseStamp(fields["started_at"]),
		CompletedAt: parseStamp(fields["completed_at"]),
	}
	if r := fields["result"]; r != "" {
		st.Result = json.RawMessage(r)
	}

	if st.IsRunning() {
		holder, err := g.client.Get(ctx, lockKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read job lock: %w", err)
		}
		if holder != st.JobID {
			st.Status = model.JobFailed
			st.Message = "job lock expired before the job finished"
		}
	}
	return st, nil
}

func (g *Guard) finish(ctx context.Context, jobID string, state model.JobState, message string, result json.RawMessage) error {
	current, err := g.Status(ctx)
	if err != nil {
		return err
	}
	done := g.now().UTC()
	st := &model.JobStatus{
		Status:      state,
		JobID:       jobID,
		Message:     message,
		StartedAt:   current.StartedAt,
		CompletedAt: &done,
		Result:      result,
	}
	if current.JobID != jobID {
		st.StartedAt = nil
	}
	if err := g.writeStatus(ctx, st); err != nil {
		return err
	}
	return g.release(ctx, jobID)
}

func (g *Guard) writeStatus(ctx context.Context, st *model.JobStatus) error {
	fields := map[string]any{
		"status":  string(st.Status),
		"job_id":  st.JobID,
		"message": st.Message,
	}
	if st.StartedAt != nil {
		fields["started_at"] = st.StartedAt.Format(time.RFC3339Nano)
	}
	if st.CompletedAt != nil {
		fields["completed_at"] = st.CompletedAt.Format(time.RFC3339Nano)
	}
	if len(st.Result) > 0 {
		fields["result"] = string(st.Result)
	}

	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, statusKey)
		pipe.HSet(ctx, statusKey, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write job status: %w", err)
	}
	return nil
}

func (g *Guard) release(ctx context.Context, jobID string) error {
	if err := releaseScript.Run(ctx, g.client, []string{lockKey}, jobID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release job lock: %w", err)
	}
	return nil
}

func parseStamp(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}
