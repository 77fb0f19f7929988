// Package worker drains the triage queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/queue"
)

// Job outcomes recorded in metrics.
const (
	OutcomeDone    = "done"
	OutcomeRetried = "retried"
	OutcomeDead    = "dead"
)

// Handler processes one triage job payload.
type Handler interface {
	Handle(ctx context.Context, job domain.TriageJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job domain.TriageJob) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job domain.TriageJob) error { return f(ctx, job) }

// TriageWorker reserves one job at a time and settles it with Ack or Fail.
type TriageWorker struct {
	queue   queue.Queue
	handler Handler
	wait    time.Duration
	locks   *keyedMutex
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Run loops until ctx is cancelled. A job already reserved when ctx ends is
// still processed and settled before Run returns.
func (w *TriageWorker) Run(ctx context.Context) error {
	w.logger.Info("triage worker started")
	defer w.logger.Info("triage worker stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("queue error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.wait):
			}
		}
	}
}

// ProcessOne waits for a job and handles it. It reports false when no job
// became ready within the poll wait.
func (w *TriageWorker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Reserve(ctx, w.wait)
	if errors.Is(err, queue.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// The reserved job is finished even if shutdown starts meanwhile.
	jobCtx := context.WithoutCancel(ctx)
	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("ticket_id", job.Payload.TicketID),
		zap.String("trace_id", job.Payload.TraceID),
		zap.Int("attempt", job.Attempts),
	)

	if w.locks != nil {
		unlock := w.locks.Lock(job.Payload.TicketID)
		defer unlock()
	}

	start := time.Now()
	handleErr := w.safeHandle(jobCtx, job.Payload)
	w.metrics.ObserveStep("job", time.Since(start))

	if handleErr == nil {
		if err := w.queue.Ack(jobCtx, job); err != nil {
			return true, fmt.Errorf("ack job %s: %w", job.ID, err)
		}
		w.metrics.RecordJob(OutcomeDone)
		log.Info("triage job done", zap.Duration("duration", time.Since(start)))
		return true, nil
	}

	state, err := w.queue.Fail(jobCtx, job, handleErr)
	if err != nil {
		return true, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if state == domain.JobStateDead {
		w.metrics.RecordJob(OutcomeDead)
		log.Error("triage job dead-lettered", zap.Error(handleErr))
	} else {
		w.metrics.RecordJob(OutcomeRetried)
		log.Warn("triage job failed; will retry", zap.Error(handleErr))
	}
	return true, nil
}

func (w *TriageWorker) safeHandle(ctx context.Context, job domain.TriageJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in triage handler: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}
