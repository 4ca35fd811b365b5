package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerStderr(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{"warn level", false, false},
		{"debug level", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, closer, err := InitLogger(Options{Debug: tt.debug, Stderr: &buf})
			require.NoError(t, err)
			defer closer.Close()

			logger.Debug("debug message")
			logger.Warn("warn message", slog.String("key", "value"))

			out := buf.String()
			assert.Contains(t, out, "warn message")
			assert.Contains(t, out, "key=value")
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug message"))
		})
	}
}

func TestInitLoggerFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "gcall.log")

	logger, closer, err := InitLogger(Options{LogFile: logPath, Debug: true})
	require.NoError(t, err)

	logger.Info("test message", slog.String("key", "value"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"test message"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestRotateIfNeeded(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "gcall.log")

	t.Run("missing file is a no-op", func(t *testing.T) {
		require.NoError(t, rotateIfNeeded(logPath))
	})

	t.Run("small file is kept", func(t *testing.T) {
		require.NoError(t, os.WriteFile(logPath, []byte("small"), 0644))
		require.NoError(t, rotateIfNeeded(logPath))
		_, err := os.Stat(logPath)
		assert.NoError(t, err)
	})

	t.Run("large file is rotated", func(t *testing.T) {
		require.NoError(t, os.WriteFile(logPath+".1", []byte("older"), 0644))
		require.NoError(t, os.WriteFile(logPath, bytes.Repeat([]byte("x"), maxLogSize), 0644))
		require.NoError(t, rotateIfNeeded(logPath))

		_, err := os.Stat(logPath)
		assert.True(t, os.IsNotExist(err))

		rotated, err := os.ReadFile(logPath + ".1")
		require.NoError(t, err)
		assert.Len(t, rotated, maxLogSize)

		older, err := os.ReadFile(logPath + ".2")
		require.NoError(t, err)
		assert.Equal(t, "older", string(older))
	})
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	require.NotNil(t, logger)

	logger.Info("test info")
	logger.Debug("test debug")
	logger.Error("test error")
	logger.Warn("test warn")
}
