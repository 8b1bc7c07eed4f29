package workflows

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	N int `json:"n"`
}

func pushAll(t *testing.T, q JobQueue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		job, err := NewJob("square", payload{N: i})
		require.NoError(t, err)
		require.NoError(t, q.Push(context.Background(), job))
	}
}

func noBackoff(int, time.Duration) time.Duration { return 0 }

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	pushAll(t, q, 2)
	assert.Equal(t, 2, q.Len())

	job, err = q.Pop(ctx)
	require.NoError(t, err)
	var p payload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, 0, p.N, "first in, first out")
	assert.Equal(t, "square", job.Type)
	assert.NotEmpty(t, job.ID)
}

func TestWorkerDrain(t *testing.T) {
	q := NewMemoryQueue()
	pushAll(t, q, 20)

	var mu sync.Mutex
	results := map[int]int{}
	var inFlight, maxInFlight atomic.Int32

	w := NewWorker(WorkerConfig{
		JobQueue:          q,
		MaxConcurrentJobs: 4,
		Handler: func(ctx context.Context, job *Job) error {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				prev := maxInFlight.Load()
				if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)

			var p payload
			if err := job.Decode(&p); err != nil {
				return err
			}
			mu.Lock()
			results[p.N] = p.N * p.N
			mu.Unlock()
			return nil
		},
	})

	require.NoError(t, w.Drain(context.Background()))
	assert.Len(t, results, 20)
	assert.Equal(t, 361, results[19])
	assert.LessOrEqual(t, maxInFlight.Load(), int32(4))
	assert.Zero(t, q.Len())
}

func TestWorkerRetries(t *testing.T) {
	q := NewMemoryQueue()
	pushAll(t, q, 1)

	var calls atomic.Int32
	w := NewWorker(WorkerConfig{
		JobQueue:        q,
		MaxRetries:      2,
		BackoffStrategy: noBackoff,
		Handler: func(ctx context.Context, job *Job) error {
			if calls.Add(1) < 3 {
				return fmt.Errorf("transient")
			}
			assert.Equal(t, 2, job.Attempt)
			assert.Equal(t, "transient", job.LastError)
			return nil
		},
	})

	require.NoError(t, w.Drain(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorkerReportsFinalFailure(t *testing.T) {
	q := NewMemoryQueue()
	pushAll(t, q, 3)

	var failed []string
	var mu sync.Mutex
	w := NewWorker(WorkerConfig{
		JobQueue:        q,
		MaxRetries:      1,
		BackoffStrategy: noBackoff,
		Retryable:       func(err error) bool { return err.Error() != "permanent" },
		Handler: func(ctx context.Context, job *Job) error {
			var p payload
			assert.NoError(t, job.Decode(&p))
			switch p.N {
			case 1:
				return fmt.Errorf("permanent")
			case 2:
				return fmt.Errorf("flaky")
			}
			return nil
		},
		ErrorHandler: func(ctx context.Context, job *Job, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, fmt.Sprintf("%s@%d", err, job.Attempt))
		},
	})

	require.NoError(t, w.Drain(context.Background()))
	assert.ElementsMatch(t, []string{"permanent@0", "flaky@1"}, failed)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())

	var handled atomic.Int32
	w := NewWorker(WorkerConfig{
		JobQueue:     q,
		PollInterval: 5 * time.Millisecond,
		Handler: func(ctx context.Context, job *Job) error {
			handled.Add(1)
			return nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	pushAll(t, q, 3)
	assert.Eventually(t, func() bool { return handled.Load() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestDefaultBackoffStrategy(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 4; attempt++ {
		d := DefaultBackoffStrategy(attempt, base)
		floor := base * time.Duration(1<<(attempt-1))
		assert.GreaterOrEqual(t, d, floor)
		assert.LessOrEqual(t, d, floor*3/2)
	}
}
