// Package gcs provides an artifact store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

var _ digest.ArtifactStore = (*BlobStore)(nil)

const contentType = "text/plain; charset=utf-8"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Save uploads content and returns the object name.
func (s *BlobStore) Save(ctx context.Context, key string, content string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	name := s.objectName(key)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return name, nil
}

// Read downloads the object named key.
func (s *BlobStore) Read(ctx context.Context, key string) (string, bool, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("open object: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", false, fmt.Errorf("read object: %w", err)
	}
	return string(data), true, nil
}

// URL returns the gs:// URI for key.
func (s *BlobStore) URL(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

func (s *BlobStore) objectName(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}
