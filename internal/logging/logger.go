package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// maxLogSize is the maximum log file size before rotation (5 MB).
	maxLogSize = 5 * 1024 * 1024
	// maxLogBackups is the number of rotated log files to keep.
	maxLogBackups = 3
)

// Options controls logger construction.
type Options struct {
	Debug   bool
	LogFile string    // when set, JSON logs are appended to this file
	Stderr  io.Writer // destination when LogFile is empty; defaults to os.Stderr
}

// InitLogger builds the process logger.
//
// Without a log file, human-readable text goes to stderr at WARN so that
// stdout stays reserved for responses. With a log file, JSON records are
// appended to it after size-based rotation. Debug lowers the level to DEBUG
// and adds source locations in both cases.
func InitLogger(opts Options) (*slog.Logger, io.Closer, error) {
	level := slog.LevelWarn
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Debug,
	}

	if opts.LogFile == "" {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nopCloser{}, nil
	}

	logDir := filepath.Dir(opts.LogFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	if err := rotateIfNeeded(opts.LogFile); err != nil {
		return nil, nil, fmt.Errorf("failed to rotate log file: %w", err)
	}

	logFile, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", opts.LogFile, err)
	}

	return slog.New(slog.NewJSONHandler(logFile, handlerOpts)), logFile, nil
}

// rotateIfNeeded checks the log file size and rotates if it exceeds maxLogSize.
// Rotation renames current.log → current.log.1, .1 → .2, etc., keeping maxLogBackups.
func rotateIfNeeded(logPath string) error {
	info, err := os.Stat(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Nothing to rotate
		}
		return err
	}

	if info.Size() < maxLogSize {
		return nil
	}

	for i := maxLogBackups; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", logPath, i)
		dst := fmt.Sprintf("%s.%d", logPath, i+1)
		if i == maxLogBackups {
			os.Remove(src)
		} else {
			os.Rename(src, dst)
		}
	}

	if err := os.Rename(logPath, logPath+".1"); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
}
