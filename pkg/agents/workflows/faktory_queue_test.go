//go:build faktory
// +build faktory

package workflows_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/scottdavis/metatool/pkg/agents/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func faktoryURL() string {
	if value := os.Getenv("FAKTORY_URL"); value != "" {
		return value
	}
	return "localhost:7419"
}

func TestFaktoryQueue(t *testing.T) {
	queue, err := workflows.NewFaktoryQueue(faktoryURL(), &workflows.JobQueueConfig{
		QueueName:  "faktory_test_" + uuid.NewString()[:8],
		JobTimeout: 60,
	})
	require.NoError(t, err, "Failed to connect to Faktory")
	defer queue.Close()

	ctx := context.Background()
	require.NoError(t, queue.Ping(ctx))

	first, err := workflows.NewJob("case", map[string]string{"note_id": "1"})
	require.NoError(t, err)
	second, err := workflows.NewJob("case", map[string]string{"note_id": "2"})
	require.NoError(t, err)
	require.NoError(t, queue.Push(ctx, first))
	require.NoError(t, queue.Push(ctx, second))

	popped, err := queue.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, first.ID, popped.ID)
	var payload map[string]string
	require.NoError(t, popped.Decode(&payload))
	assert.Equal(t, "1", payload["note_id"])
	require.NoError(t, queue.Done(ctx, popped, nil))

	popped, err = queue.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	require.NoError(t, queue.Done(ctx, popped, fmt.Errorf("calculator failed")))
}
