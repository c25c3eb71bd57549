package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager creates, deduplicates and finishes jobs.
type Manager struct {
	store  Store
	events EventPublisher
	logger *logging.Logger
	clock  func() time.Time
}

// NewManager creates a Manager. A nil events publisher disables events.
func NewManager(store Store, events EventPublisher, logger *logging.Logger) *Manager {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		store:  store,
		events: events,
		logger: logger.Named("jobs"),
		clock:  time.Now,
	}
}

// CreateOrReuse returns the job for p's fingerprint, creating a PROCESSING
// job if none exists. isNew is true only for the call that created it.
func (m *Manager) CreateOrReuse(ctx context.Context, p ingest.Payload) (jobID string, isNew bool, err error) {
	fp, err := ingest.Fingerprint(p)
	if err != nil {
		return "", false, fmt.Errorf("fingerprint payload: %w", err)
	}

	now := m.clock().UTC()
	stored, created, err := m.store.Insert(ctx, &Job{
		ID:          uuid.New().String(),
		Status:      StatusProcessing,
		Payload:     p,
		Fingerprint: fp,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return "", false, fmt.Errorf("insert job: %w", err)
	}

	if !created {
		jobsDeduplicated.Inc()
		m.logger.Debug(ctx, "reusing job for duplicate submission", zap.String("job.id", stored.ID))
		return stored.ID, false, nil
	}

	jobsCreated.Inc()
	m.logger.Info(ctx, "job created",
		zap.String("job.id", stored.ID),
		zap.String("source_type", string(p.Kind)),
	)
	m.publish(ctx, Event{JobID: stored.ID, Type: EventCreated, Status: StatusProcessing, Timestamp: now})
	return stored.ID, true, nil
}

// Complete records result and moves the job to COMPLETED.
func (m *Manager) Complete(ctx context.Context, id string, result Result) error {
	return m.finish(ctx, id, StatusCompleted, result, "")
}

// Fail records detail and moves the job to ERROR.
func (m *Manager) Fail(ctx context.Context, id string, detail string) error {
	return m.finish(ctx, id, StatusError, nil, detail)
}

func (m *Manager) finish(ctx context.Context, id string, to Status, result Result, detail string) error {
	if err := m.store.Transition(ctx, id, to, result, detail); err != nil {
		return fmt.Errorf("transition job %s to %s: %w", id, to, err)
	}
	jobsFinished.WithLabelValues(string(to)).Inc()

	ev := Event{JobID: id, Status: to, Error: detail, Timestamp: m.clock().UTC()}
	if to == StatusCompleted {
		ev.Type = EventCompleted
	} else {
		ev.Type = EventFailed
	}
	if job, err := m.store.Get(ctx, id); err == nil {
		ev.DurationMS = job.UpdatedAt.Sub(job.CreatedAt).Milliseconds()
	}

	m.logger.Info(ctx, "job finished", zap.String("job.id", id), zap.String("status", string(to)))
	m.publish(ctx, ev)
	return nil
}

// Get returns a snapshot of the job. A job with no record is reported as
// PROCESSING, which absorbs the race between submission and the first
// status poll.
func (m *Manager) Get(ctx context.Context, id string) (View, error) {
	job, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return View{JobID: id, Status: StatusProcessing}, nil
	}
	if err != nil {
		return View{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return viewOf(job), nil
}

func (m *Manager) publish(ctx context.Context, ev Event) {
	if err := m.events.Publish(ctx, ev); err != nil {
		m.logger.Warn(ctx, "failed to publish job event",
			zap.String("job.id", ev.JobID),
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
	}
}
