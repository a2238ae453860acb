// Package local implements a local filesystem artifact store.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

var _ digest.ArtifactStore = (*BlobStore)(nil)

// Config captures the parameters for the local filesystem artifact store.
type Config struct {
	// BaseDir is the root directory where artifacts will be stored.
	BaseDir string
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates a new local filesystem-backed store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// Save writes content under the base directory and returns key.
func (s *BlobStore) Save(_ context.Context, key string, content string) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return key, nil
}

// Read returns the content stored under key.
func (s *BlobStore) Read(_ context.Context, key string) (string, bool, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(fullPath) // #nosec G304 -- path is confined to baseDir by resolve.
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), true, nil
}

// URL returns the API path that serves key.
func (s *BlobStore) URL(key string) string {
	return "/api/files/" + key
}

// resolve joins key onto the base directory, rejecting paths that escape it.
func (s *BlobStore) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(filepath.Join(s.baseDir, key))
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return cleanFullPath, nil
}
