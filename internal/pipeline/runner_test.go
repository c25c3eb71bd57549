package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/extraction"
	"github.com/fyrsmithlabs/insightverse/internal/generation"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/jobs"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type runFunc func(ctx context.Context, jobID string, p ingest.Payload) (generation.Result, error)

func (f runFunc) Run(ctx context.Context, jobID string, p ingest.Payload) (generation.Result, error) {
	return f(ctx, jobID, p)
}

func newJob(t *testing.T, m *jobs.Manager, n int) (string, ingest.Payload) {
	t.Helper()
	p := ingest.Payload{
		Kind: ingest.KindFile,
		File: &ingest.FileSource{FileType: "application/pdf", FileURL: fmt.Sprintf("s3://pdfs/%d.pdf", n)},
	}
	id, isNew, err := m.CreateOrReuse(context.Background(), p)
	require.NoError(t, err)
	require.True(t, isNew)
	return id, p
}

func waitFor(t *testing.T, r *pipeline.Runner, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx, id))
}

func TestRunner_RecordsOutcome(t *testing.T) {
	m := jobs.NewManager(jobs.NewMemoryStore(), nil, nil)
	logger := logging.NewTestLogger()

	r := pipeline.NewRunner(runFunc(func(_ context.Context, jobID string, p ingest.Payload) (generation.Result, error) {
		if p.File.FileURL == "s3://pdfs/2.pdf" {
			return nil, &extraction.Error{Kind: extraction.KindInsufficientContent, Detail: "PDF contains no readable text"}
		}
		return generation.Result{"flashcards": []generation.Flashcard{{Note: "F = m a"}}}, nil
	}), m, 2, logger.Logger)

	okID, okPayload := newJob(t, m, 1)
	failID, failPayload := newJob(t, m, 2)
	require.NoError(t, r.Submit(okID, okPayload))
	require.NoError(t, r.Submit(failID, failPayload))
	waitFor(t, r, okID)
	waitFor(t, r, failID)

	ok, err := m.Get(context.Background(), okID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, ok.Status)
	assert.Contains(t, ok.Result, "flashcards")

	failed, err := m.Get(context.Background(), failID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, failed.Status)
	assert.Equal(t, "PDF contains no readable text", failed.Error)

	logger.AssertLogged(t, zapcore.ErrorLevel, "job failed")
	require.NoError(t, r.Close(context.Background()))
}

func TestRunner_PanicFailsJob(t *testing.T) {
	m := jobs.NewManager(jobs.NewMemoryStore(), nil, nil)
	r := pipeline.NewRunner(runFunc(func(context.Context, string, ingest.Payload) (generation.Result, error) {
		panic("boom")
	}), m, 1, nil)

	id, p := newJob(t, m, 1)
	require.NoError(t, r.Submit(id, p))
	waitFor(t, r, id)

	v, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, v.Status)
	assert.Equal(t, "internal error: boom", v.Error)
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	m := jobs.NewManager(jobs.NewMemoryStore(), nil, nil)

	var running, peak int32
	release := make(chan struct{})
	r := pipeline.NewRunner(runFunc(func(context.Context, string, ingest.Payload) (generation.Result, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return generation.Result{}, nil
	}), m, 2, nil)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, p := newJob(t, m, i)
		require.NoError(t, r.Submit(id, p))
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, r.Pending())
	close(release)

	for _, id := range ids {
		waitFor(t, r, id)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Zero(t, r.Pending())
}

func TestRunner_SubmitIsNonBlockingAndIdempotent(t *testing.T) {
	m := jobs.NewManager(jobs.NewMemoryStore(), nil, nil)

	var calls int32
	release := make(chan struct{})
	r := pipeline.NewRunner(runFunc(func(context.Context, string, ingest.Payload) (generation.Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return generation.Result{}, nil
	}), m, 1, nil)

	id, p := newJob(t, m, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, r.Submit(id, p))
		assert.NoError(t, r.Submit(id, p))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a running job")
	}

	close(release)
	waitFor(t, r, id)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunner_WaitUnknownJob(t *testing.T) {
	r := pipeline.NewRunner(runFunc(nil), jobs.NewManager(jobs.NewMemoryStore(), nil, nil), 1, nil)
	assert.NoError(t, r.Wait(context.Background(), "missing"))
}

func TestRunner_CloseRejectsNewJobs(t *testing.T) {
	m := jobs.NewManager(jobs.NewMemoryStore(), nil, nil)
	r := pipeline.NewRunner(runFunc(func(context.Context, string, ingest.Payload) (generation.Result, error) {
		return generation.Result{}, nil
	}), m, 1, nil)

	require.NoError(t, r.Close(context.Background()))
	id, p := newJob(t, m, 1)
	assert.ErrorIs(t, r.Submit(id, p), pipeline.ErrClosed)
}

func TestRunner_CloseDeadlineCancelsJobs(t *testing.T) {
	m := jobs.NewManager(jobs.NewMemoryStore(), nil, nil)

	var once sync.Once
	started := make(chan struct{})
	r := pipeline.NewRunner(runFunc(func(ctx context.Context, _ string, _ ingest.Payload) (generation.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}), m, 1, nil)

	id, p := newJob(t, m, 1)
	require.NoError(t, r.Submit(id, p))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)

	v, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, v.Status)
	assert.Equal(t, "context canceled", v.Error)
}
