// Package queue is the durable triage job queue. Jobs carry a TriageJob
// payload, are retried with exponential backoff and end in a dead-letter
// list once their attempts are exhausted.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/domain"
)

var (
	// ErrNoJob is returned by Reserve when nothing became ready within the wait.
	ErrNoJob = errors.New("queue: no job ready")
	// ErrJobNotFound is returned for unknown or expired job ids.
	ErrJobNotFound = errors.New("queue: job not found")
	// ErrNotDead is returned by Requeue for a job that is not dead-lettered.
	ErrNotDead = errors.New("queue: job is not dead")
)

// Job is one queued unit of triage work.
type Job struct {
	ID          string           `json:"id"`
	Payload     domain.TriageJob `json:"payload"`
	State       domain.JobState  `json:"state"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"maxAttempts"`
	LastError   string           `json:"lastError,omitempty"`
	EnqueuedAt  time.Time        `json:"enqueuedAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Stats counts jobs per list.
type Stats struct {
	Ready   int64 `json:"ready"`
	Running int64 `json:"running"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

// Queue is implemented by the Redis and in-memory queues.
type Queue interface {
	// Enqueue validates and stores a job, returning its id.
	Enqueue(ctx context.Context, payload domain.TriageJob) (string, error)
	// Reserve blocks up to wait for a ready job and marks it running. It
	// returns ErrNoJob when the wait elapses.
	Reserve(ctx context.Context, wait time.Duration) (*Job, error)
	// Ack marks a reserved job done.
	Ack(ctx context.Context, job *Job) error
	// Fail records a failed attempt and returns the state the job moved to:
	// failed (scheduled for retry) or dead.
	Fail(ctx context.Context, job *Job, cause error) (domain.JobState, error)
	Get(ctx context.Context, id string) (*Job, error)
	DeadLetters(ctx context.Context, limit int) ([]Job, error)
	// Requeue moves a dead job back to ready with its attempts reset.
	Requeue(ctx context.Context, id string) error
	// RecoverInFlight returns jobs left running by a crashed worker to ready.
	RecoverInFlight(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// Options tunes retry behavior.
type Options struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	DoneRetention time.Duration
}

// OptionsFromConfig maps queue config to Options.
func OptionsFromConfig(cfg config.QueueConfig) Options {
	return Options{
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase(),
		DoneRetention: cfg.DoneRetention(),
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.DoneRetention <= 0 {
		o.DoneRetention = 24 * time.Hour
	}
	return o
}

// Backoff is the delay before retrying after the given attempt (1-based):
// base, 2*base, 4*base and so on.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20
	}
	return base << (attempt - 1)
}

// nextState decides where a failed attempt goes.
func nextState(job *Job, cause error) domain.JobState {
	if IsPermanent(cause) || job.Attempts >= job.MaxAttempts {
		return domain.JobStateDead
	}
	return domain.JobStateFailed
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job is dead-lettered at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
