// Package workflows runs agent jobs from a queue with a bounded pool of
// workers. Queues can be in-process, Redis lists or a Faktory server, so
// several worker processes can share one evaluation.
package workflows

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job represents a unit of work in the queue
type Job struct {
	// ID is the unique identifier for this job
	ID string `json:"id"`

	// Type names the handler the job is meant for
	Type string `json:"type"`

	// Payload contains all data needed to process the job
	Payload json.RawMessage `json:"payload"`

	// Attempt counts failed runs so far
	Attempt int `json:"attempt"`

	// EnqueuedAt is when this job was pushed to the queue
	EnqueuedAt time.Time `json:"enqueued_at"`

	// LastError contains the last error message if the job failed
	LastError string `json:"last_error,omitempty"`
}

// NewJob marshals payload into a job of the given type.
func NewJob(jobType string, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into dst.
func (j *Job) Decode(dst any) error {
	return json.Unmarshal(j.Payload, dst)
}

// JobQueue represents a backend for job processing
type JobQueue interface {
	// Push adds a job to the queue
	Push(ctx context.Context, job *Job) error

	// Pop retrieves the next job. It returns nil, nil when the queue is
	// empty.
	Pop(ctx context.Context) (*Job, error)

	// Done reports the final outcome of a popped job. err is nil on
	// success or after the job was pushed again for a retry.
	Done(ctx context.Context, job *Job, err error) error

	// Close releases any resources used by the queue
	Close() error

	// Ping verifies connectivity to the queue backend
	Ping(ctx context.Context) error
}

// JobQueueConfig holds common configuration for job queues
type JobQueueConfig struct {
	// QueueName is the name of the queue to use
	QueueName string

	// JobTimeout is the time in seconds a popped job stays reserved
	JobTimeout int
}

// DefaultJobQueueConfig returns the configuration used when none is given.
func DefaultJobQueueConfig() *JobQueueConfig {
	return &JobQueueConfig{QueueName: "metatool", JobTimeout: 600}
}
