package bench

import (
	"context"
	"log/slog"
	"time"

	"github.com/scottdavis/metatool/pkg/agents"
	"github.com/scottdavis/metatool/pkg/agents/workflows"
	"github.com/scottdavis/metatool/pkg/errors"
)

// JobType marks queue jobs carrying a Case.
const JobType = "medcalc_case"

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Workers is the number of cases evaluated concurrently.
	Workers int
	// MaxRetries bounds reruns of a case after a backend failure.
	MaxRetries int
	// RetryDelay is the first backoff delay.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Runner evaluates cases through a job queue, so a run can be split across
// processes that share the queue and the sink.
type Runner struct {
	agent  agents.Agent
	queue  workflows.JobQueue
	sink   Sink
	config RunnerConfig
	now    func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(agent agents.Agent, queue workflows.JobQueue, sink Sink, config RunnerConfig) *Runner {
	if config.Workers <= 0 {
		config.Workers = 3
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{agent: agent, queue: queue, sink: sink, config: config, now: time.Now}
}

// Enqueue pushes every case the sink has no record for and returns how many
// were pushed.
func (r *Runner) Enqueue(ctx context.Context, cases []Case) (int, error) {
	existing, err := r.sink.Records(ctx)
	if err != nil {
		return 0, err
	}
	done := make(map[string]bool, len(existing))
	for _, rec := range existing {
		done[rec.Key()] = true
	}

	pushed := 0
	for _, c := range cases {
		if done[c.Key()] {
			continue
		}
		done[c.Key()] = true
		job, err := workflows.NewJob(JobType, c)
		if err != nil {
			return pushed, errors.Wrap(err, errors.InvalidInput, "failed to encode case")
		}
		if err := r.queue.Push(ctx, job); err != nil {
			return pushed, err
		}
		pushed++
	}
	r.config.Logger.Info("cases enqueued", "pushed", pushed, "skipped", len(cases)-pushed)
	return pushed, nil
}

// Work evaluates queued cases. With drain it returns once the queue is
// empty; otherwise it serves the queue until ctx is cancelled.
func (r *Runner) Work(ctx context.Context, drain bool) error {
	w := workflows.NewWorker(workflows.WorkerConfig{
		JobQueue:          r.queue,
		Handler:           r.handle,
		MaxConcurrentJobs: r.config.Workers,
		MaxRetries:        r.config.MaxRetries,
		BaseDelay:         r.config.RetryDelay,
		Retryable: func(err error) bool {
			return errors.CodeOf(err) == errors.LLMGenerationFailed
		},
		ErrorHandler: r.recordFailure,
		Logger:       r.config.Logger,
	})
	if drain {
		return w.Drain(ctx)
	}
	return w.Run(ctx)
}

// Evaluate enqueues cases, drains the queue and summarizes every record in
// the sink.
func (r *Runner) Evaluate(ctx context.Context, cases []Case) (*Stats, error) {
	if _, err := r.Enqueue(ctx, cases); err != nil {
		return nil, err
	}
	if err := r.Work(ctx, true); err != nil {
		return nil, err
	}
	records, err := r.sink.Records(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeStats(records), nil
}

func (r *Runner) handle(ctx context.Context, job *workflows.Job) error {
	if job.Type != JobType {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "unexpected job type"),
			errors.Fields{"type": job.Type})
	}
	var c Case
	if err := job.Decode(&c); err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to decode case")
	}

	start := r.now()
	result, err := r.agent.Run(ctx, c.Question, c.PatientNote)
	if err != nil {
		if errors.CodeOf(err) == errors.LLMGenerationFailed || ctx.Err() != nil {
			return err
		}
		// Pipeline failures are wrong answers, not job failures.
		return r.sink.Append(ctx, r.record(c, nil, err, start))
	}
	rec := r.record(c, result, nil, start)
	r.config.Logger.Debug("case evaluated", "case", c.Key(), "tool", rec.Tool, "answer", rec.Answer, "correct", rec.Correct)
	return r.sink.Append(ctx, rec)
}

// recordFailure stores cases whose job failed for good.
func (r *Runner) recordFailure(ctx context.Context, job *workflows.Job, err error) {
	var c Case
	if decodeErr := job.Decode(&c); decodeErr != nil {
		return
	}
	if appendErr := r.sink.Append(ctx, r.record(c, nil, err, r.now())); appendErr != nil {
		r.config.Logger.Error("failed to record case failure", "case", c.Key(), "error", appendErr)
	}
}

func (r *Runner) record(c Case, result *agents.Result, err error, start time.Time) Record {
	rec := Record{
		CalculatorID: c.CalculatorID,
		NoteID:       c.NoteID,
		Category:     c.Category,
		Expected:     c.CalculatorName,
		GroundTruth:  c.GroundTruth,
		DurationMS:   r.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
		rec.Answer = "N/A"
		return rec
	}
	rec.Tool = result.Resolution.Name
	rec.Answer = FormatAnswer(result.Value)
	rec.Correct = Check(c, rec.Answer)
	return rec
}
