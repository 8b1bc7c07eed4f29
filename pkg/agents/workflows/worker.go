package workflows

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

// Handler processes one job.
type Handler func(ctx context.Context, job *Job) error

// WorkerConfig configures a worker
type WorkerConfig struct {
	// JobQueue is the queue to poll for jobs
	JobQueue JobQueue

	// Handler runs each job
	Handler Handler

	// MaxConcurrentJobs is the maximum number of jobs to process concurrently
	MaxConcurrentJobs int

	// PollInterval is how long Run waits after finding the queue empty
	PollInterval time.Duration

	// MaxRetries bounds how often a failed job is pushed again
	MaxRetries int

	// BaseDelay is the first retry delay
	BaseDelay time.Duration

	// BackoffStrategy defines how to handle backoff for retries
	BackoffStrategy func(attempt int, baseDelay time.Duration) time.Duration

	// Retryable decides whether a failed job is pushed again. The default
	// retries everything except context errors.
	Retryable func(err error) bool

	// ErrorHandler is called when a job fails for good
	ErrorHandler func(ctx context.Context, job *Job, err error)

	// Logger is the logger to use for worker events
	Logger *slog.Logger
}

// Worker pulls jobs from a queue and runs them.
type Worker struct {
	config WorkerConfig
}

// NewWorker creates a new worker for processing jobs
func NewWorker(config WorkerConfig) *Worker {
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.BackoffStrategy == nil {
		config.BackoffStrategy = DefaultBackoffStrategy
	}
	if config.Retryable == nil {
		config.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Worker{config: config}
}

// DefaultBackoffStrategy provides exponential backoff with jitter
func DefaultBackoffStrategy(attempt int, baseDelay time.Duration) time.Duration {
	backoff := float64(baseDelay.Nanoseconds()) * math.Pow(2, float64(attempt-1))
	jitter := rand.Float64() * 0.5 * backoff
	return time.Duration(backoff + jitter)
}

// Drain processes jobs until the queue is empty and every in-flight job has
// finished, then returns.
func (w *Worker) Drain(ctx context.Context) error {
	return w.loop(ctx, true)
}

// Run processes jobs until ctx is cancelled, polling while the queue is
// empty. Cancellation is a clean shutdown and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	err := w.loop(ctx, false)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context, drain bool) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i := 0; i < w.config.MaxConcurrentJobs; i++ {
		p.Go(func(ctx context.Context) error {
			for {
				job, err := w.config.JobQueue.Pop(ctx)
				if err != nil {
					return err
				}
				if job == nil {
					if drain {
						return nil
					}
					if err := sleep(ctx, w.config.PollInterval); err != nil {
						return err
					}
					continue
				}
				if err := w.process(ctx, job); err != nil {
					return err
				}
			}
		})
	}
	return p.Wait()
}

// process runs one job. Only queue failures and cancellation are returned;
// handler failures are retried or reported.
func (w *Worker) process(ctx context.Context, job *Job) error {
	logger := w.config.Logger.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempt)
	logger.Debug("processing job")

	jobErr := w.config.Handler(ctx, job)
	if jobErr == nil {
		return w.config.JobQueue.Done(ctx, job, nil)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	job.LastError = jobErr.Error()
	if job.Attempt < w.config.MaxRetries && w.config.Retryable(jobErr) {
		job.Attempt++
		backoff := w.config.BackoffStrategy(job.Attempt, w.config.BaseDelay)
		logger.Warn("retrying job", "error", jobErr, "backoff", backoff)
		if err := w.config.JobQueue.Done(ctx, job, nil); err != nil {
			return err
		}
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		return w.config.JobQueue.Push(ctx, job)
	}

	logger.Error("job failed", "error", jobErr)
	if w.config.ErrorHandler != nil {
		w.config.ErrorHandler(ctx, job, jobErr)
	}
	return w.config.JobQueue.Done(ctx, job, jobErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
