package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKV_GetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		_, err := kv.Get(context.Background(), "rooms/nobody/meta")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestKV_PutBatchThenGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		require.NoError(t, kv.PutBatch(ctx, map[string][]byte{
			"rooms/a/meta":   []byte(`{"version":1}`),
			"rooms/a/voxels": []byte(`[]`),
		}))

		v, err := kv.Get(ctx, "rooms/a/meta")
		require.NoError(t, err)
		assert.Equal(t, `{"version":1}`, string(v))

		v, err = kv.Get(ctx, "rooms/a/voxels")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(v))
	})
}

func TestKV_PutBatchOverwrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		require.NoError(t, kv.PutBatch(ctx, map[string][]byte{"k": []byte("one")}))
		require.NoError(t, kv.PutBatch(ctx, map[string][]byte{"k": []byte("two")}))

		v, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", string(v))
	})
}

func TestKV_PutIfAbsentWritesOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()

		ok, err := kv.PutIfAbsent(ctx, "frozen/a", []byte("first"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = kv.PutIfAbsent(ctx, "frozen/a", []byte("second"))
		require.NoError(t, err)
		assert.False(t, ok)

		v, err := kv.Get(ctx, "frozen/a")
		require.NoError(t, err)
		assert.Equal(t, "first", string(v))
	})
}

func TestMemoryKV_DoesNotAliasValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	in := []byte("abc")
	require.NoError(t, kv.PutBatch(ctx, map[string][]byte{"k": in}))
	in[0] = 'x'

	out, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))

	out[1] = 'y'
	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, kv.Len())
}

func TestMemoryKV_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	kv := NewMemoryKV()
	assert.ErrorIs(t, kv.PutBatch(ctx, map[string][]byte{"k": nil}), context.Canceled)
	_, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = kv.PutIfAbsent(ctx, "k", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
