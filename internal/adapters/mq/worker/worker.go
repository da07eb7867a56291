// Package worker runs cache warming jobs taken from a queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/mq/queue"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/normalize"
	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
	"github.com/darylmathison/dividend-stock-analysis/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount = 2
)

// Job outcomes, also used as the metrics label.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Loader loads a dividend window through the cache.
type Loader interface {
	Dividends(ctx context.Context, symbol string, start, end time.Time) (model.DividendTable, model.FetchResult, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Result reports one finished job.
type Result struct {
	Job       queue.Job
	Payments  int
	Complete  bool
	FromCache bool
	Err       error
	Took      time.Duration
}

// Outcome classifies the result.
func (r Result) Outcome() string {
	switch {
	case errors.Is(r.Err, normalize.ErrEmptyResult):
		return OutcomeEmpty
	case r.Err != nil:
		return OutcomeError
	case !r.Complete:
		return OutcomePartial
	default:
		return OutcomeOK
	}
}

// Worker processes warming jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for jobs from an in-process queue.
type InMemoryWorker struct {
	queue   Queue
	loader  Loader
	name    string
	results chan<- Result

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, loader Loader, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		loader:   loader,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			res := w.process(ctx, j)
			if w.results == nil {
				continue
			}
			select {
			case w.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// process loads one window and reports how it went.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) Result {
	start := time.Now()
	win := j.Window
	table, res, err := w.loader.Dividends(ctx, win.Symbol, win.Start, win.End)

	r := Result{
		Job:       j,
		Payments:  len(table),
		Complete:  res.Complete,
		FromCache: res.FromCache,
		Err:       err,
		Took:      time.Since(start),
	}
	outcome := r.Outcome()
	metrics.RecordWarmJob(outcome, float64(r.Took.Milliseconds()))

	fields := []logger.Field{
		logger.String("job_id", j.ID),
		logger.String("window", win.String()),
		logger.String("outcome", outcome),
		logger.Int("payments", r.Payments),
		logger.Bool("fromCache", r.FromCache),
		logger.Duration("waited", start.Sub(j.Enqueued)),
		logger.Duration("took", r.Took),
	}
	if outcome == OutcomeError {
		w.logger.Error(ctx, "warming job failed", append(fields, logger.Error(err))...)
	} else {
		w.logger.Debug(ctx, "warming job done", fields...)
	}
	return r
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a worker pool. opts apply to every worker; a count below
// one falls back to the default.
func NewPool(workerCount int, q Queue, loader Loader, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	base := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(base)
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  base.logger.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, loader, workerOpts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWarmWorkers(len(p.workers))
}

// Wait blocks until every worker has exited, which happens once the queue
// is closed and drained, or until ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for workers: %w", ctx.Err())
		}
	}
	metrics.UpdateWarmWorkers(0)
	return nil
}

// Shutdown closes the queue, stops every worker after its current job and
// waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	for _, w := range p.workers {
		w.stop()
	}

	var errs []error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, err)
		}
	}
	metrics.UpdateWarmWorkers(0)
	return errors.Join(errs...)
}
