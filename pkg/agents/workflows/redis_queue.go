package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements JobQueue using a Redis list
type RedisQueue struct {
	client    *redis.Client
	config    *JobQueueConfig
	namespace string
}

var _ JobQueue = (*RedisQueue)(nil)

// NewRedisQueue creates a new Redis-backed job queue
func NewRedisQueue(redisAddr string, password string, db int, config *JobQueueConfig) (*RedisQueue, error) {
	if config == nil {
		config = DefaultJobQueueConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})

	q := &RedisQueue{
		client:    client,
		config:    config,
		namespace: "metatool:jobs:",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *RedisQueue) key() string {
	return q.namespace + q.config.QueueName
}

// Push adds a job to the tail of the list
func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key(), data).Err(); err != nil {
		return fmt.Errorf("failed to push job to Redis: %w", err)
	}
	return nil
}

// Pop takes a job from the head of the list
func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	data, err := q.client.LPop(ctx, q.key()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job from Redis: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to deserialize job: %w", err)
	}
	return &job, nil
}

// Len returns the number of queued jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key()).Result()
}

// Done is a no-op: popped jobs are already off the list.
func (q *RedisQueue) Done(ctx context.Context, job *Job, err error) error { return nil }

// Close releases Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping verifies the Redis connection
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}
