// Package memory stores jobs, pages and artifacts in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

var _ digest.ArtifactStore = (*BlobStore)(nil)

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewBlobStore creates a new in-memory artifact store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string]string)}
}

// Save persists the content and returns key.
func (s *BlobStore) Save(_ context.Context, key string, content string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = content
	return key, nil
}

// Read returns the content saved under key.
func (s *BlobStore) Read(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.data[key]
	return content, ok, nil
}

// URL returns a memory:// pseudo URI.
func (s *BlobStore) URL(key string) string {
	return "memory://" + key
}
