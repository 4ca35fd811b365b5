package output

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	apperrors "github.com/shhac/gcall/internal/errors"
)

// Sink is the destination for rendered responses.
type Sink struct {
	io.Writer
	closer   io.Closer
	terminal bool
}

// OpenSink returns stdout, or the file at path created or truncated.
func OpenSink(path string, stdout io.Writer) (*Sink, error) {
	if path == "" {
		return &Sink{Writer: stdout, terminal: IsTerminal(stdout)}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrOutput, err)
	}
	return &Sink{Writer: f, closer: f}, nil
}

// Terminal reports whether the sink is an interactive terminal.
func (s *Sink) Terminal() bool {
	return s.terminal
}

// Close closes file sinks. Stdout is left open.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrOutput, err)
	}
	return nil
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
