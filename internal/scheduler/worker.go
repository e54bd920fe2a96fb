package scheduler

import (
	"context"
	"time"

	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// HandlerFunc runs one claimed job
type HandlerFunc func(ctx context.Context, job *Job) error

// Worker polls a RedisScheduler and dispatches due jobs to registered handlers
type Worker struct {
	store        *RedisScheduler
	handlers     map[string]HandlerFunc
	pollInterval time.Duration
	batchSize    int64
	concurrency  int
	logger       *zap.Logger
}

// NewWorker creates a Worker
func NewWorker(store *RedisScheduler, pollInterval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		store:        store,
		handlers:     make(map[string]HandlerFunc),
		pollInterval: pollInterval,
		batchSize:    100,
		concurrency:  8,
		logger:       logger.Named("scheduler"),
	}
}

// Handle registers fn for event. Must be called before Run.
func (w *Worker) Handle(event string, fn HandlerFunc) {
	w.handlers[event] = fn
}

// Run polls until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("Scheduler worker started", zap.Duration("poll_interval", w.pollInterval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Scheduler worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("Scheduler poll failed", zap.Error(err))
			}
		}
	}
}

// RunOnce claims and runs the jobs due now. It returns how many ran.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.store.Due(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, ok, err := w.store.Claim(ctx, id)
		if err != nil {
			w.logger.Warn("Failed to claim job", zap.String("job_id", id), zap.Error(err))
			continue
		}
		if ok {
			jobs = append(jobs, job)
		}
	}

	p := pool.New().WithMaxGoroutines(w.concurrency)
	for _, job := range jobs {
		p.Go(func() { w.dispatch(ctx, job) })
	}
	p.Wait()
	return len(jobs), nil
}

// dispatch never retries: a failed job is logged and dropped
func (w *Worker) dispatch(ctx context.Context, job *Job) {
	fn, ok := w.handlers[job.Event]
	if !ok {
		metrics.SchedulerJobs.WithLabelValues(job.Event, "unknown").Inc()
		w.logger.Warn("No handler for scheduled event", zap.String("event", job.Event), zap.String("job_id", job.ID))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.SchedulerJobs.WithLabelValues(job.Event, "panic").Inc()
			w.logger.Error("Scheduled job panicked", zap.String("event", job.Event), zap.Any("panic", r))
		}
	}()

	if err := fn(ctx, job); err != nil {
		metrics.SchedulerJobs.WithLabelValues(job.Event, "error").Inc()
		w.logger.Warn("Scheduled job failed",
			zap.String("event", job.Event),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	metrics.SchedulerJobs.WithLabelValues(job.Event, "ok").Inc()
}

// Noop drops every event. Used when Redis is not configured.
type Noop struct {
	Logger *zap.Logger
}

func (n Noop) Schedule(_ context.Context, event string, _ any, delay time.Duration) error {
	if n.Logger != nil {
		n.Logger.Debug("Scheduler disabled, dropping event", zap.String("event", event), zap.Duration("delay", delay))
	}
	return nil
}
