package objectstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *objectstore.SQLiteObjectStore {
	t.Helper()

	store, err := objectstore.NewSQLite(
		context.Background(), filepath.Join(t.TempDir(), "cache.db"), "https://cdn.example.org",
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSQLiteObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store := newSQLiteStore(t)
	ctx := context.Background()
	key := "versions/spa/index.json"

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, key, []byte(`["RVR1960"]`), "application/json"))
	require.NoError(t, store.Upload(ctx, key, []byte(`["NVI","RVR1960"]`), "application/json"))

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `["NVI","RVR1960"]`, string(data))
	assert.Equal(t, "https://cdn.example.org/versions/spa/index.json", store.URL(key))
}

func TestSQLiteObjectStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	store := newSQLiteStore(t)

	_, err := store.Download(context.Background(), "text/RVR1960/GEN/1.json")
	require.ErrorIs(t, err, core.ErrStorage)
}

func TestDigest(t *testing.T) {
	t.Parallel()

	assert.Len(t, objectstore.Digest([]byte("")), 64)
	assert.Equal(t, objectstore.Digest([]byte("a")), objectstore.Digest([]byte("a")))
	assert.NotEqual(t, objectstore.Digest([]byte("a")), objectstore.Digest([]byte("b")))
}
