// Package jobs tracks ingestion jobs from submission to a terminal state.
//
// A job is created once per distinct payload fingerprint and moves from
// PROCESSING to exactly one of COMPLETED or ERROR. Stores enforce both
// rules atomically so concurrent submissions and late writers cannot
// create duplicates or reverse a terminal state.
package jobs

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
)

var (
	// ErrNotFound is returned when no job has the requested id.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when a transition targets a job that already
	// left PROCESSING.
	ErrTerminal = errors.New("job already in a terminal state")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
)

// Terminal reports whether s is COMPLETED or ERROR.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Result maps a generation service name to its artifact.
type Result map[string]any

// Job is the persisted record of one submission.
type Job struct {
	ID          string
	Status      Status
	Payload     ingest.Payload
	Fingerprint string
	Result      Result // set only when COMPLETED
	Error       string // set only when ERROR
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (j *Job) clone() *Job {
	c := *j
	if j.Result != nil {
		c.Result = make(Result, len(j.Result))
		for k, v := range j.Result {
			c.Result[k] = v
		}
	}
	return &c
}

// View is the read-only snapshot returned to status callers.
type View struct {
	JobID     string          `json:"jobId,omitempty"`
	Status    Status          `json:"status"`
	Payload   *ingest.Payload `json:"payload,omitempty"`
	Result    Result          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

func viewOf(j *Job) View {
	payload := j.Payload
	created, updated := j.CreatedAt, j.UpdatedAt
	return View{
		JobID:     j.ID,
		Status:    j.Status,
		Payload:   &payload,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: &created,
		UpdatedAt: &updated,
	}
}
