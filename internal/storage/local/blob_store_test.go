// Package local_test tests the local filesystem artifact store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesfandiari1/llms.txt/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "outputs")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestSaveAndRead(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		key, err := store.Save(ctx, "job-1/llms.txt", "# Docs\n")
		require.NoError(t, err)
		assert.Equal(t, "job-1/llms.txt", key)

		// #nosec G304 -- test reads from the controlled temp directory.
		raw, err := os.ReadFile(filepath.Join(tempDir, "job-1", "llms.txt"))
		require.NoError(t, err)
		assert.Equal(t, "# Docs\n", string(raw))

		content, ok, err := store.Read(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "# Docs\n", content)
	})

	t.Run("Overwrite", func(t *testing.T) {
		_, err := store.Save(ctx, "job-2/llms.txt", "old")
		require.NoError(t, err)
		_, err = store.Save(ctx, "job-2/llms.txt", "new")
		require.NoError(t, err)
		content, _, err := store.Read(ctx, "job-2/llms.txt")
		require.NoError(t, err)
		assert.Equal(t, "new", content)
	})

	t.Run("MissingKey", func(t *testing.T) {
		_, ok, err := store.Read(ctx, "job-404/llms.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := store.Save(ctx, "", "data")
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.Save(ctx, "../escape.txt", "data")
		assert.ErrorContains(t, err, "path traversal")
		_, _, err = store.Read(ctx, "../../etc/passwd")
		assert.ErrorContains(t, err, "path traversal")
	})

	t.Run("URL", func(t *testing.T) {
		assert.Equal(t, "/api/files/job-1/llms.txt", store.URL("job-1/llms.txt"))
	})
}
