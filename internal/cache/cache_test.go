package cache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/scripture-service/internal/cache"
	"github.com/book-expert/scripture-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockStore = errors.New("mock store failure")

// mockObjectStore is an in-memory implementation of core.ObjectStore.
type mockObjectStore struct {
	mu               sync.Mutex
	objects          map[string][]byte
	contentTypes     map[string]string
	UploadShouldFail bool
	ExistsShouldFail bool
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (m *mockObjectStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ExistsShouldFail {
		return false, errMockStore
	}

	_, ok := m.objects[key]

	return ok, nil
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, errMockStore
	}

	return data, nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UploadShouldFail {
		return errMockStore
	}

	m.objects[key] = data
	m.contentTypes[key] = contentType

	return nil
}

func (m *mockObjectStore) URL(key string) string {
	return "https://cdn.example.org/" + key
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chunk.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text/RVR1960/GEN/1.json", cache.TextKey("RVR1960", "gen", "1"))
	assert.Equal(t, "audio/RVR1960/GEN/1.mp3", cache.AudioKey("RVR1960", "Gen", "1"))
	assert.Equal(t, "versions/spa/index.json", cache.VersionsByLanguageKey("spa"))
	assert.Equal(t, "versions/RVR1960.json", cache.VersionKey("RVR1960"))
	assert.Equal(t, "versions/index.json", cache.VersionsIndexKey())
}

func TestContentCache_PutRemovesLocalFile(t *testing.T) {
	t.Parallel()

	store := newMockObjectStore()
	contentCache := cache.New(store, newTestLogger(t))
	path := writeTempFile(t, "audio")

	url, err := contentCache.Put(context.Background(), "audio/RVR1960/GEN/1.mp3", path, cache.ContentTypeMP3)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/audio/RVR1960/GEN/1.mp3", url)
	assert.Equal(t, cache.ContentTypeMP3, store.contentTypes["audio/RVR1960/GEN/1.mp3"])
	assert.NoFileExists(t, path)
}

func TestContentCache_PutFailureStillRemovesLocalFile(t *testing.T) {
	t.Parallel()

	store := newMockObjectStore()
	store.UploadShouldFail = true
	contentCache := cache.New(store, newTestLogger(t))
	path := writeTempFile(t, "audio")

	_, err := contentCache.Put(context.Background(), "audio/RVR1960/GEN/1.mp3", path, cache.ContentTypeMP3)
	require.ErrorIs(t, err, core.ErrStorage)
	assert.NoFileExists(t, path)
}

func TestContentCache_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	contentCache := cache.New(newMockObjectStore(), newTestLogger(t))
	ctx := context.Background()

	type listing struct {
		Versions []string `json:"versions"`
	}

	require.NoError(t, contentCache.PutJSON(ctx, "versions/spa/index.json", listing{Versions: []string{"RVR1960"}}))

	exists, err := contentCache.Exists(ctx, "versions/spa/index.json")
	require.NoError(t, err)
	assert.True(t, exists)

	var decoded listing
	require.NoError(t, contentCache.GetJSON(ctx, "versions/spa/index.json", &decoded))
	assert.Equal(t, []string{"RVR1960"}, decoded.Versions)
}

func TestContentCache_ReadFailures(t *testing.T) {
	t.Parallel()

	store := newMockObjectStore()
	store.objects["text/RVR1960/GEN/1.json"] = []byte("{not json")
	contentCache := cache.New(store, newTestLogger(t))
	ctx := context.Background()

	var target map[string]any

	err := contentCache.GetJSON(ctx, "text/RVR1960/GEN/1.json", &target)
	require.ErrorIs(t, err, core.ErrStorage)

	_, err = contentCache.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrStorage)

	store.ExistsShouldFail = true
	_, err = contentCache.Exists(ctx, "missing")
	require.ErrorIs(t, err, core.ErrStorage)
}
