package memory

import (
	"context"
	"testing"
	"time"

	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite runs a suite of tests against any Store implementation.
func StoreTestSuite(t *testing.T, name string, store Store) {
	ctx := context.Background()

	t.Run(name+"/StoreAndRetrieve", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))

		require.NoError(t, store.Store(ctx, "key1", "value1"))
		var s string
		require.NoError(t, store.Retrieve(ctx, "key1", &s))
		assert.Equal(t, "value1", s)

		vec := []float32{0.25, -1, 3.5}
		require.NoError(t, store.Store(ctx, "key2", vec))
		var got []float32
		require.NoError(t, store.Retrieve(ctx, "key2", &got))
		assert.Equal(t, vec, got)

		m := map[string]int{"one": 1, "two": 2}
		require.NoError(t, store.Store(ctx, "key3", m))
		var gotMap map[string]int
		require.NoError(t, store.Retrieve(ctx, "key3", &gotMap))
		assert.Equal(t, m, gotMap)
	})

	t.Run(name+"/Overwrite", func(t *testing.T) {
		require.NoError(t, store.Store(ctx, "over", "first"))
		require.NoError(t, store.Store(ctx, "over", "second"))
		var s string
		require.NoError(t, store.Retrieve(ctx, "over", &s))
		assert.Equal(t, "second", s)
	})

	t.Run(name+"/NotFound", func(t *testing.T) {
		var s string
		err := store.Retrieve(ctx, "nonexistent-key", &s)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run(name+"/List", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Store(ctx, "key1", "value1"))
		require.NoError(t, store.Store(ctx, "key2", "value2"))

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"key1", "key2"}, keys)
	})

	t.Run(name+"/Clear", func(t *testing.T) {
		require.NoError(t, store.Store(ctx, "key1", "value1"))
		require.NoError(t, store.Clear(ctx))

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run(name+"/TTL", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Store(ctx, "short", "gone", WithTTL(50*time.Millisecond)))
		require.NoError(t, store.Store(ctx, "long", "kept", WithTTL(time.Hour)))
		require.NoError(t, store.Store(ctx, "forever", "kept"))

		var s string
		require.NoError(t, store.Retrieve(ctx, "short", &s))
		assert.Equal(t, "gone", s)

		time.Sleep(100 * time.Millisecond)

		err := store.Retrieve(ctx, "short", &s)
		assert.True(t, IsNotFound(err))
		require.NoError(t, store.Retrieve(ctx, "long", &s))
		require.NoError(t, store.Retrieve(ctx, "forever", &s))

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"long", "forever"}, keys)
	})

	t.Run(name+"/DecodeMismatch", func(t *testing.T) {
		require.NoError(t, store.Store(ctx, "text", "not a vector"))
		var vec []float32
		err := store.Retrieve(ctx, "text", &vec)
		require.Error(t, err)
		assert.Equal(t, errors.InvalidResponse, errors.CodeOf(err))
	})
}

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	StoreTestSuite(t, "InMemory", store)
}

func TestInMemoryStoreCleanExpired(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Store(ctx, "a", 1, WithTTL(10*time.Millisecond)))
	require.NoError(t, store.Store(ctx, "b", 2, WithTTL(10*time.Millisecond)))
	require.NoError(t, store.Store(ctx, "c", 3))
	time.Sleep(30 * time.Millisecond)

	n, err := store.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys)
}

func TestEncodeUnsupportedValue(t *testing.T) {
	store := NewInMemoryStore()
	err := store.Store(context.Background(), "ch", make(chan int))
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
}
