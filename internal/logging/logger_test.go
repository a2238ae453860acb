// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestForJob checks the job_id field is attached to every entry.
func TestForJob(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	ForJob(zap.New(core), "job-123").Info("phase started")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "job-123", entries[0].ContextMap()["job_id"])

	require.NotNil(t, ForJob(nil, "job-1"))
	require.NotNil(t, OrNop(nil))
}
