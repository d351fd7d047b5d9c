package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
)

// Func is the body of a job. It returns a completion message and an
// optional result that is stored as JSON with the status.
type Func func(ctx context.Context) (message string, result any, err error)

// StatusStore durably records job status next to the Redis copy.
type StatusStore interface {
	SaveJobStatus(ctx context.Context, s *model.JobStatus) error
	GetJobStatus(ctx context.Context) (*model.JobStatus, error)
}

// Runner starts jobs in the background behind a Guard.
type Runner struct {
	guard   *Guard
	store   StatusStore
	logger  *slog.Logger
	metrics metrics.Recorder
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in Enqueue before wg.Wait in Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. store may be nil.
func NewRunner(guard *Guard, store StatusStore, logger *slog.Logger, recorder metrics.Recorder) *Runner {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		guard:   guard,
		store:   store,
		logger:  logger.With("component", "jobs.runner"),
		metrics: recorder,
		timeout: guard.ttl,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue claims the job slot and runs fn in the background. It returns
// the new job id, ErrConflict when another job is running, or
// ErrShuttingDown after Shutdown.
func (r *Runner) Enqueue(ctx context.Context, kind, message string, fn Func) (string, error) {
	if r.isClosed() {
		return "", ErrShuttingDown
	}
	jobID := kind + "-" + ulid.Make().String()

	ok, err := r.guard.TryStart(ctx, jobID, message)
	if err != nil {
		return "", err
	}
	if !ok {
		r.metrics.IncJob(kind, "conflict")
		return "", ErrConflict
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if err := r.guard.Fail(ctx, jobID, ErrShuttingDown.Error()); err != nil {
			r.logger.Error("release job slot", "job_id", jobID, "error", err)
		}
		return "", ErrShuttingDown
	}
	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.IncJob(kind, "started")
	r.persist(ctx, jobID)
	go r.run(kind, jobID, fn)

	r.logger.Info("job started", "job_id", jobID, "kind", kind, "message", message)
	return jobID, nil
}

// Status returns the Redis status, falling back to the durable store when
// Redis has none.
func (r *Runner) Status(ctx context.Context) (*model.JobStatus, error) {
	st, err := r.guard.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st.Status == model.JobIdle && r.store != nil {
		stored, err := r.store.GetJobStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("load stored job status: %w", err)
		}
		if stored.IsRunning() {
			// Nothing holds the slot, so the stored run was interrupted.
			stored.Status = model.JobFailed
			stored.Message = "job interrupted"
		}
		return stored, nil
	}
	return st, nil
}

// Shutdown waits for the running job. When ctx ends first the job's
// context is cancelled and Shutdown waits for it to return.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Runner) run(kind, jobID string, fn Func) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	start := time.Now()
	message, result, err := safeCall(ctx, fn)

	// Status writes must outlive a cancelled job context.
	writeCtx, writeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer writeCancel()

	if err != nil {
		r.metrics.IncJob(kind, "failed")
		r.logger.Error("job failed", "job_id", jobID, "kind", kind, "error", err, "duration_ms", time.Since(start).Milliseconds())
		if ferr := r.guard.Fail(writeCtx, jobID, err.Error()); ferr != nil {
			r.logger.Error("record job failure", "job_id", jobID, "error", ferr)
		}
		r.persist(writeCtx, jobID)
		return
	}

	var raw json.RawMessage
	if result != nil {
		raw, err = json.Marshal(result)
		if err != nil {
			r.logger.Warn("encode job result", "job_id", jobID, "error", err)
			raw = nil
		}
	}

	r.metrics.IncJob(kind, "completed")
	r.logger.Info("job completed", "job_id", jobID, "kind", kind, "message", message, "duration_ms", time.Since(start).Milliseconds())
	if cerr := r.guard.Complete(writeCtx, jobID, message, raw); cerr != nil {
		r.logger.Error("record job completion", "job_id", jobID, "error", cerr)
	}
	r.persist(writeCtx, jobID)
}

// persist copies the Redis status of jobID to the durable store.
func (r *Runner) persist(ctx context.Context, jobID string) {
	if r.store == nil {
		return
	}
	st, err := r.guard.Status(ctx)
	if err != nil || st.JobID != jobID {
		return
	}
	if err := r.store.SaveJobStatus(ctx, st); err != nil {
		r.logger.Warn("persist job status", "job_id", jobID, "error", err)
	}
}

func safeCall(ctx context.Context, fn Func) (message string, result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx)
}
