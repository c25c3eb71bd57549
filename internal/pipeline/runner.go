package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/extraction"
	"github.com/fyrsmithlabs/insightverse/internal/generation"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/jobs"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("runner is closed")

// JobRunner executes one job to completion.
type JobRunner interface {
	Run(ctx context.Context, jobID string, p ingest.Payload) (generation.Result, error)
}

// Recorder persists a job's terminal state.
type Recorder interface {
	Complete(ctx context.Context, id string, result jobs.Result) error
	Fail(ctx context.Context, id string, detail string) error
}

// Runner executes jobs in the background, at most workers at a time.
// Each job is owned by exactly one task, which records its outcome.
type Runner struct {
	runner   JobRunner
	recorder Recorder
	sem      *semaphore.Weighted
	logger   *logging.Logger

	// base outlives the submitting request; Close cancels it only when
	// draining runs out of time.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending map[string]chan struct{}
	wg      sync.WaitGroup
}

// NewRunner creates a Runner with the given pool size.
func NewRunner(runner JobRunner, recorder Recorder, workers int, logger *logging.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		runner:   runner,
		recorder: recorder,
		sem:      semaphore.NewWeighted(int64(workers)),
		logger:   logger.Named("runner"),
		base:     base,
		cancel:   cancel,
		pending:  make(map[string]chan struct{}),
	}
}

// Submit schedules jobID and returns immediately. Submitting a job that
// is already pending is a no-op.
func (r *Runner) Submit(jobID string, p ingest.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.pending[jobID]; ok {
		return nil
	}

	done := make(chan struct{})
	r.pending[jobID] = done
	r.wg.Add(1)
	jobsQueued.Inc()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.pending, jobID)
			r.mu.Unlock()
			close(done)
		}()
		r.execute(jobID, p)
	}()
	return nil
}

// Wait blocks until jobID's task finishes or ctx is done. It returns
// immediately for jobs that are not pending.
func (r *Runner) Wait(ctx context.Context, jobID string) error {
	r.mu.Lock()
	done, ok := r.pending[jobID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of jobs queued or running.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close stops accepting jobs and waits for running ones. If ctx ends
// first, in-flight jobs are cancelled and ctx.Err() is returned.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-drained
		return ctx.Err()
	}
}

func (r *Runner) execute(jobID string, p ingest.Payload) {
	ctx := logging.WithJobID(r.base, jobID)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		jobsQueued.Dec()
		r.record(ctx, jobID, nil, fmt.Errorf("job not started: %w", err))
		return
	}
	defer r.sem.Release(1)
	jobsQueued.Dec()
	jobsRunning.Inc()
	defer jobsRunning.Dec()

	start := time.Now()
	result, err := r.run(ctx, jobID, p)
	r.record(ctx, jobID, result, err)

	status := jobs.StatusCompleted
	if err != nil {
		status = jobs.StatusError
	}
	jobDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
}

// run converts a panic in any stage into a job failure.
func (r *Runner) run(ctx context.Context, jobID string, p ingest.Payload) (result generation.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("internal error: %v", rec)
		}
	}()
	return r.runner.Run(ctx, jobID, p)
}

func (r *Runner) record(ctx context.Context, jobID string, result generation.Result, runErr error) {
	// Recording must succeed even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)

	if runErr != nil {
		jobFailures.WithLabelValues(failureKind(runErr)).Inc()
		r.logger.Error(ctx, "job failed", zap.Error(runErr))
		if err := r.recorder.Fail(ctx, jobID, extraction.Detail(runErr)); err != nil {
			r.logger.Warn(ctx, "failed to record job failure", zap.Error(err))
		}
		return
	}

	if result == nil {
		result = generation.Result{}
	}
	if err := r.recorder.Complete(ctx, jobID, jobs.Result(result)); err != nil {
		r.logger.Warn(ctx, "failed to record job result", zap.Error(err))
		return
	}
	r.logger.Info(ctx, "job completed", zap.Int("services", len(result)))
}

func failureKind(err error) string {
	var e *extraction.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Cancelled"
	}
	return "Internal"
}
