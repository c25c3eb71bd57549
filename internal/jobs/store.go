package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists jobs.
type Store interface {
	// Insert stores job unless a job with the same fingerprint exists, in
	// which case that job is returned with created=false. The check and the
	// write are one atomic step.
	Insert(ctx context.Context, job *Job) (existing *Job, created bool, err error)

	// Transition moves a PROCESSING job to a terminal status. It returns
	// ErrNotFound for unknown ids and ErrTerminal when the job already left
	// PROCESSING.
	Transition(ctx context.Context, id string, to Status, result Result, detail string) error

	// Get returns a snapshot of the job or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Job
	byFP  map[string]string
	clock func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Job),
		byFP:  make(map[string]string),
		clock: time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, job *Job) (*Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byFP[job.Fingerprint]; ok {
		return s.byID[id].clone(), false, nil
	}

	stored := job.clone()
	s.byID[stored.ID] = stored
	s.byFP[stored.Fingerprint] = stored.ID
	return stored.clone(), true, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, to Status, result Result, detail string) error {
	if !to.Terminal() {
		return fmt.Errorf("invalid target status %q", to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusProcessing {
		return ErrTerminal
	}

	job.Status = to
	job.UpdatedAt = s.clock().UTC()
	switch to {
	case StatusCompleted:
		job.Result = result
	case StatusError:
		job.Error = detail
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.clone(), nil
}
