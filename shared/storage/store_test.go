package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("file", func(t *testing.T) { fn(t, newFileStore(t)) })
	t.Run("redis", func(t *testing.T) {
		s, _ := newRedisStore(t)
		fn(t, s)
	})
}

func TestStoreGetSetRemove(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`)))
		v, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"a":1}`, string(v))

		require.NoError(t, s.Set(ctx, "k", []byte(`{"a":2}`)))
		v, _, _ = s.Get(ctx, "k")
		assert.JSONEq(t, `{"a":2}`, string(v))

		require.NoError(t, s.Remove(ctx, "k"))
		require.NoError(t, s.Remove(ctx, "k"))
		_, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStoreKeysByPrefix(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, k := range []string{"backstage-cache-a", "backstage-cache-b", "backstage-settings", "other"} {
			require.NoError(t, s.Set(ctx, k, []byte(`{}`)))
		}

		keys, err := s.Keys(ctx, CachePrefix)
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"backstage-cache-a", "backstage-cache-b"}, keys)

		keys, err = s.Keys(ctx, "nothing-")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestGetJSONDropsCorruptValue(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("broken", "{not json"))

	var dst map[string]any
	ok, err := GetJSON(ctx, s, "broken", &dst)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("broken"))
}

func TestFileStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, SetJSON(ctx, fs, "backstage-settings", map[string]string{"selectedModel": "gpt-4o"}))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	var got map[string]string
	ok, err := GetJSON(ctx, reopened, "backstage-settings", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", got["selectedModel"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storeFileName, entries[0].Name())
}

func TestFileStoreRejectsInvalidJSON(t *testing.T) {
	fs := newFileStore(t)
	assert.Error(t, fs.Set(context.Background(), "k", []byte("nope")))
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, storeFileName), []byte("garbage"), 0644))

	_, err := NewFileStore(dir)
	assert.ErrorContains(t, err, "failed to load store data")
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer rdb.Close()
	assert.Equal(t, "PONG", rdb.Ping(context.Background()).Val())

	_, err = NewRedisClient(context.Background(), "")
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?\[c\]`, escapeGlob("a*b?[c]"))

	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "p*x", []byte(`1`)))
	require.NoError(t, s.Set(ctx, "pax", []byte(`1`)))

	keys, err := s.Keys(ctx, "p*")
	require.NoError(t, err)
	assert.Equal(t, []string{"p*x"}, keys)
}
