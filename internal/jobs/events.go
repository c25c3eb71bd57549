package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventCreated   EventType = "created"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is published on every lifecycle transition.
type Event struct {
	JobID      string    `json:"jobId"`
	Type       EventType `json:"type"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventPublisher delivers lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events as JSON to
//
//	{prefix}.{job_id}.{created|completed|failed}
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on an established connection.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject for a job event.
func (p *NATSPublisher) Subject(jobID string, t EventType) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, jobID, t)
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if err := p.nc.Publish(p.Subject(ev.JobID, ev.Type), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}
