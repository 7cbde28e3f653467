package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridex/internal/infrastructure"
)

// TestRunClosesLogFile tests that a failed startup still flushes and closes
// the log file before the exit code is returned
func TestRunClosesLogFile(t *testing.T) {
	infrastructure.ResetLoggerForTesting()
	previous := slog.Default()
	t.Cleanup(func() {
		infrastructure.ResetLoggerForTesting()
		slog.SetDefault(previous)
	})

	logFile := filepath.Join(t.TempDir(), "app.log")
	t.Setenv("MONGODB_URI", "mongodb://localhost:notaport/ridex")
	t.Setenv("LOG_OUTPUT", "file")
	t.Setenv("LOG_FILE_PATH", logFile)

	assert.Equal(t, 1, run(context.Background()))
	assert.False(t, infrastructure.LogFileOpen(), "log file should be closed when run returns")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Startup failed")
}

// TestRunConfigError tests that invalid configuration exits before logging starts
func TestRunConfigError(t *testing.T) {
	infrastructure.ResetLoggerForTesting()
	t.Cleanup(infrastructure.ResetLoggerForTesting)

	t.Setenv("MONGODB_URI", "postgres://localhost/ridex")

	assert.Equal(t, 1, run(context.Background()))
	assert.False(t, infrastructure.LogFileOpen())
}
