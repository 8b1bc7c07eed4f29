package llms

import (
	"testing"

	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLM(t *testing.T) {
	tests := []struct {
		name      string
		modelID   string
		wantHost  string
		wantModel string
	}{
		{"bare ollama model", "ollama:llama3", "http://localhost:11434", "llama3"},
		{"host and model", "ollama:gpu-box:llama3", "http://gpu-box", "llama3"},
		{"host port and model", "ollama:gpu-box:11434:llama3", "http://gpu-box:11434", "llama3"},
		{"full url", "ollama:https://gpu-box:11434:llama3", "https://gpu-box:11434", "llama3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, err := NewLLM("", tt.modelID)
			require.NoError(t, err)
			ollama, ok := llm.(*OllamaLLM)
			require.True(t, ok)
			assert.Equal(t, tt.wantHost, ollama.GetEndpointConfig().BaseURL)
			assert.Equal(t, tt.wantModel, ollama.ModelID())
		})
	}

	t.Run("openrouter", func(t *testing.T) {
		llm, err := NewLLM("key", "openrouter:anthropic/claude-3-opus-20240229")
		require.NoError(t, err)
		assert.Equal(t, "anthropic/claude-3-opus-20240229", llm.ModelID())
	})

	invalid := []string{"ollama:", "ollama:host:", "openrouter:", "anthropic:", "gpt-4"}
	for _, id := range invalid {
		t.Run("invalid "+id, func(t *testing.T) {
			_, err := NewLLM("key", id)
			require.Error(t, err)
			assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	emb, err := NewEmbedder("ollama:nomic-embed-text")
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", emb.(*OllamaLLM).ModelID())

	_, err = NewEmbedder("openrouter:some-model")
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
}
