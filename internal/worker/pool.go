package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/queue"
)

// PoolOptions configures a worker pool.
type PoolOptions struct {
	Concurrency int
	PollWait    time.Duration
	// SerializePerTicket makes workers in this process take turns on the
	// same ticket.
	SerializePerTicket bool
	// RecoverOnStart returns running jobs to ready before the workers start.
	// Only one process should do this.
	RecoverOnStart bool
}

// PoolOptionsFromConfig maps worker and queue config to PoolOptions.
func PoolOptionsFromConfig(w config.WorkerConfig, q config.QueueConfig) PoolOptions {
	return PoolOptions{
		Concurrency:        w.Concurrency,
		PollWait:           q.PollWait(),
		SerializePerTicket: w.SerializePerTicket,
	}
}

// Pool runs a fixed number of triage workers against one queue.
type Pool struct {
	queue   queue.Queue
	handler Handler
	opts    PoolOptions
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewPool creates a pool.
func NewPool(q queue.Queue, handler Handler, opts PoolOptions, metrics *observability.Metrics, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollWait <= 0 {
		opts.PollWait = time.Second
	}
	return &Pool{queue: q, handler: handler, opts: opts, metrics: metrics, logger: logger}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has settled its current job.
func (p *Pool) Run(ctx context.Context) error {
	if p.opts.RecoverOnStart {
		n, err := p.queue.RecoverInFlight(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			p.logger.Warn("recovered in-flight triage jobs", zap.Int("count", n))
		}
	}

	var locks *keyedMutex
	if p.opts.SerializePerTicket && p.opts.Concurrency > 1 {
		locks = newKeyedMutex()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Concurrency; i++ {
		w := &TriageWorker{
			queue:   p.queue,
			handler: p.handler,
			wait:    p.opts.PollWait,
			locks:   locks,
			metrics: p.metrics,
			logger:  p.logger.With(zap.Int("worker", i)),
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

// keyedMutex hands out one lock per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
