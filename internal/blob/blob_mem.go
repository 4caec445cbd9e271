package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemStore keeps objects in memory. Used by tests and local runs without a
// storage backend.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailUploads makes every Upload return an error. Lets tests exercise
	// the pipeline's handling of storage outages.
	FailUploads bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}}
}

func (s *MemStore) PublicURL(path string) string {
	return "mem://" + path
}

func (s *MemStore) Upload(_ context.Context, path string, data []byte) (string, error) {
	if s.FailUploads {
		return "", fmt.Errorf("uploading %s: storage unavailable", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[path] = buf
	return s.PublicURL(path), nil
}

func (s *MemStore) Download(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Len reports the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
