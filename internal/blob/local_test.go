package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return l
}

func TestLocalPutGet(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "snapshots/2025-06-30/manifest.json", []byte(`{"a":1}`)))

	data, err := l.Get(ctx, "snapshots/2025-06-30/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestLocalGetNotFound(t *testing.T) {
	l := newTestLocal(t)

	_, err := l.Get(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalPutOverwrites(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "current.json", []byte("old")))
	require.NoError(t, l.Put(ctx, "current.json", []byte("new")))

	data, err := l.Get(ctx, "current.json")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestLocalListAscendingWithPrefix(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "snapshots/2025-06-30/manifest.json", []byte("b")))
	require.NoError(t, l.Put(ctx, "snapshots/2025-05-31/manifest.json", []byte("a")))
	require.NoError(t, l.Put(ctx, "current.json", []byte("c")))

	keys, err := l.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"snapshots/2025-05-31/manifest.json",
		"snapshots/2025-06-30/manifest.json",
	}, keys)
}

func TestLocalListSkipsTempFiles(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "snapshots/2025-06-30/manifest.json", []byte("x")))
	// Simulate a crashed writer's leftover temp file.
	tmp := filepath.Join(l.root, "snapshots", "2025-06-30", ".tmp-1234")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	keys, err := l.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/2025-06-30/manifest.json"}, keys)
}

func TestLocalExistsDelete(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	ok, err := l.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Put(ctx, "a.json", []byte("x")))
	ok, err = l.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Delete(ctx, "a.json"))
	ok, err = l.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, l.Delete(ctx, "a.json"))
}

func TestLocalAppend(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, "audit.jsonl", []byte(`{"n":1}`)))
	require.NoError(t, l.Append(ctx, "audit.jsonl", []byte(`{"n":2}`)))

	data, err := l.Get(ctx, "audit.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", string(data))
}
