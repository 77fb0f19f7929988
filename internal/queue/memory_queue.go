package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// MemoryQueue is a process-local Queue for tests and single-process runs.
// Jobs do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	opts    Options
	jobs    map[string]*Job
	ready   []string
	delayed map[string]time.Time
	dead    []string
	doneAt  map[string]time.Time
	wake    chan struct{}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:    opts.withDefaults(),
		jobs:    make(map[string]*Job),
		delayed: make(map[string]time.Time),
		doneAt:  make(map[string]time.Time),
		wake:    make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, payload domain.TriageJob) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", apperrors.NewValidationError("invalid triage job", map[string]any{"reason": err.Error()})
	}
	now := time.Now()
	job := &Job{
		ID:          uuid.NewString(),
		Payload:     payload,
		State:       domain.JobStateQueued,
		MaxAttempts: q.opts.MaxAttempts,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}

	q.mu.Lock()
	q.pruneDoneLocked(now)
	q.jobs[job.ID] = job
	q.ready = append(q.ready, job.ID)
	q.mu.Unlock()

	q.signal()
	return job.ID, nil
}

func (q *MemoryQueue) Reserve(ctx context.Context, wait time.Duration) (*Job, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		now := time.Now()
		q.promoteLocked(now)
		if len(q.ready) > 0 {
			id := q.ready[0]
			q.ready = q.ready[1:]
			job := q.jobs[id]
			job.Attempts++
			job.State = domain.JobStateRunning
			job.UpdatedAt = now
			out := *job
			q.mu.Unlock()
			return &out, nil
		}
		var (
			due   <-chan time.Time
			timer *time.Timer
		)
		if next, ok := q.nextDueLocked(); ok {
			timer = time.NewTimer(next.Sub(now))
			due = timer.C
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		case <-deadline.C:
			stopTimer(timer)
			return nil, ErrNoJob
		case <-q.wake:
		case <-due:
		}
		stopTimer(timer)
	}
}

func (q *MemoryQueue) Ack(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored, ok := q.jobs[job.ID]
	if !ok || stored.State != domain.JobStateRunning {
		return ErrJobNotFound
	}
	now := time.Now()
	stored.State = domain.JobStateDone
	stored.LastError = ""
	stored.UpdatedAt = now
	q.doneAt[job.ID] = now
	*job = *stored
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job *Job, cause error) (domain.JobState, error) {
	q.mu.Lock()
	stored, ok := q.jobs[job.ID]
	if !ok || stored.State != domain.JobStateRunning {
		q.mu.Unlock()
		return "", ErrJobNotFound
	}
	now := time.Now()
	state := nextState(stored, cause)
	stored.State = state
	stored.LastError = errorText(cause)
	stored.UpdatedAt = now
	if state == domain.JobStateDead {
		q.dead = append(q.dead, stored.ID)
	} else {
		q.delayed[stored.ID] = now.Add(Backoff(q.opts.BackoffBase, stored.Attempts))
	}
	*job = *stored
	q.mu.Unlock()

	q.signal()
	return state, nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := *job
	return &out, nil
}

// DeadLetters lists dead jobs, most recent first.
func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []Job{}
	for i := len(q.dead) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, *q.jobs[q.dead[i]])
	}
	return out, nil
}

func (q *MemoryQueue) Requeue(_ context.Context, id string) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrJobNotFound
	}
	if job.State != domain.JobStateDead {
		q.mu.Unlock()
		return ErrNotDead
	}
	for i, deadID := range q.dead {
		if deadID == id {
			q.dead = append(q.dead[:i], q.dead[i+1:]...)
			break
		}
	}
	job.State = domain.JobStateQueued
	job.Attempts = 0
	job.UpdatedAt = time.Now()
	q.ready = append(q.ready, id)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *MemoryQueue) RecoverInFlight(_ context.Context) (int, error) {
	q.mu.Lock()
	n := 0
	for id, job := range q.jobs {
		if job.State == domain.JobStateRunning {
			job.State = domain.JobStateQueued
			q.ready = append(q.ready, id)
			n++
		}
	}
	q.mu.Unlock()
	if n > 0 {
		q.signal()
	}
	return n, nil
}

func (q *MemoryQueue) Stats(_ context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Stats
	for _, job := range q.jobs {
		if job.State == domain.JobStateRunning {
			s.Running++
		}
	}
	s.Ready = int64(len(q.ready))
	s.Delayed = int64(len(q.delayed))
	s.Dead = int64(len(q.dead))
	return s, nil
}

func (q *MemoryQueue) promoteLocked(now time.Time) {
	for id, at := range q.delayed {
		if !at.After(now) {
			delete(q.delayed, id)
			q.jobs[id].State = domain.JobStateQueued
			q.ready = append(q.ready, id)
		}
	}
}

func (q *MemoryQueue) nextDueLocked() (time.Time, bool) {
	var next time.Time
	for _, at := range q.delayed {
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next, !next.IsZero()
}

func (q *MemoryQueue) pruneDoneLocked(now time.Time) {
	for id, at := range q.doneAt {
		if now.Sub(at) > q.opts.DoneRetention {
			delete(q.doneAt, id)
			delete(q.jobs, id)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
