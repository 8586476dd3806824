package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/book-expert/scripture-service/internal/core"
)

const memoryFallback = "memory://objects"

type memoryObject struct {
	data        []byte
	contentType string
	digest      string
}

// MemoryObjectStore keeps objects in process memory. It backs local runs of the CLI and tests.
type MemoryObjectStore struct {
	mu            sync.RWMutex
	objects       map[string]memoryObject
	publicBaseURL string
}

// NewMemory creates an empty in-memory store.
func NewMemory(publicBaseURL string) *MemoryObjectStore {
	return &MemoryObjectStore{
		objects:       make(map[string]memoryObject),
		publicBaseURL: publicBaseURL,
	}
}

// Exists reports whether key is present.
func (m *MemoryObjectStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]

	return ok, nil
}

// Download returns a copy of the object stored under key.
func (m *MemoryObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	object, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: object '%s' not found", core.ErrStorage, key)
	}

	data := make([]byte, len(object.data))
	copy(data, object.data)

	return data, nil
}

// Upload stores a copy of data under key, replacing any previous version.
func (m *MemoryObjectStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memoryObject{data: stored, contentType: contentType, digest: Digest(data)}

	return nil
}

// URL returns the public address of key.
func (m *MemoryObjectStore) URL(key string) string {
	return publicURL(m.publicBaseURL, memoryFallback, key)
}

// ContentType returns the content type key was stored with.
func (m *MemoryObjectStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.objects[key].contentType
}

// Keys returns the number of stored objects.
func (m *MemoryObjectStore) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}
