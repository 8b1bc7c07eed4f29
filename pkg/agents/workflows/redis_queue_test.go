//go:build redis
// +build redis

package workflows_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/scottdavis/metatool/pkg/agents/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestRedisQueue(t *testing.T) {
	redisAddr := getEnvOrDefault("REDIS_TEST_ADDR", "localhost:6379")
	redisPass := getEnvOrDefault("REDIS_TEST_PASS", "")

	queue, err := workflows.NewRedisQueue(redisAddr, redisPass, 0, &workflows.JobQueueConfig{
		QueueName:  "redis_test_" + uuid.NewString(),
		JobTimeout: 30,
	})
	require.NoError(t, err, "Failed to connect to Redis")
	defer queue.Close()

	ctx := context.Background()
	job, err := workflows.NewJob("case", map[string]string{"note_id": "42"})
	require.NoError(t, err)
	require.NoError(t, queue.Push(ctx, job))

	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	popped, err := queue.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, job.ID, popped.ID)
	var payload map[string]string
	require.NoError(t, popped.Decode(&payload))
	assert.Equal(t, "42", payload["note_id"])
	require.NoError(t, queue.Done(ctx, popped, nil))

	empty, err := queue.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
