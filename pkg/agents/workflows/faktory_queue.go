package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	faktory "github.com/contribsys/faktory/client"
)

// FaktoryQueue implements JobQueue using Faktory. Our Job travels as the
// single string argument of a Faktory job with the same ID.
type FaktoryQueue struct {
	// a Faktory connection is not safe for concurrent use
	mu     sync.Mutex
	client *faktory.Client
	config *JobQueueConfig
}

var _ JobQueue = (*FaktoryQueue)(nil)

// NewFaktoryQueue creates a new Faktory-backed job queue
func NewFaktoryQueue(faktoryURL string, config *JobQueueConfig) (*FaktoryQueue, error) {
	if config == nil {
		config = DefaultJobQueueConfig()
	}
	server := &faktory.Server{
		Network: "tcp",
		Address: faktoryURL,
		Timeout: 5 * time.Second,
	}

	// Handle auth if provided in URL (format: faktory:password@localhost:7419)
	if strings.Contains(faktoryURL, "@") {
		parts := strings.SplitN(faktoryURL, "@", 2)
		if authParts := strings.SplitN(parts[0], ":", 2); len(authParts) == 2 {
			server.Password = authParts[1]
		}
		server.Address = parts[1]
	}

	client, err := server.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Faktory: %w", err)
	}

	return &FaktoryQueue{
		client: client,
		config: config,
	}, nil
}

// Push adds a job to the Faktory queue
func (q *FaktoryQueue) Push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	fj := faktory.NewJob(job.Type, string(data))
	fj.Jid = job.ID
	fj.Queue = q.config.QueueName
	fj.ReserveFor = q.config.JobTimeout
	// retries are handled by the worker
	retry := 0
	fj.Retry = &retry

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.client.Push(fj); err != nil {
		return fmt.Errorf("failed to push job to Faktory: %w", err)
	}
	return nil
}

// Pop fetches the next job. Faktory blocks for a short while when the queue
// is empty and then returns no job.
func (q *FaktoryQueue) Pop(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	fj, err := q.client.Fetch(q.config.QueueName)
	q.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job from Faktory: %w", err)
	}
	if fj == nil {
		return nil, nil
	}
	if len(fj.Args) != 1 {
		return nil, fmt.Errorf("faktory job %s has %d arguments, want 1", fj.Jid, len(fj.Args))
	}
	raw, ok := fj.Args[0].(string)
	if !ok {
		return nil, fmt.Errorf("faktory job %s argument is %T, want string", fj.Jid, fj.Args[0])
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to deserialize job: %w", err)
	}
	job.ID = fj.Jid
	return &job, nil
}

// Done acknowledges or fails the job on the server.
func (q *FaktoryQueue) Done(ctx context.Context, job *Job, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		return q.client.Fail(job.ID, err, nil)
	}
	return q.client.Ack(job.ID)
}

// Close releases Faktory connection
func (q *FaktoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.client.Close()
}

// Ping verifies the server connection
func (q *FaktoryQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.client.Info()
	return err
}
