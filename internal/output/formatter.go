// Package output renders responses to the sink: a single value, a
// separated or bracketed sequence, raw wire frames or nothing at all.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"google.golang.org/protobuf/encoding/protowire"

	apperrors "github.com/shhac/gcall/internal/errors"
)

// DefaultSeparator joins streamed values when no breaker is given.
const DefaultSeparator = ","

// EOL is the platform line ending.
var EOL = lineEnding()

func lineEnding() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// State is the lifecycle of a Formatter.
type State int

const (
	StateIdle State = iota
	StateWriting
	StateFlushed
	StateFailed
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWriting:
		return "Writing"
	case StateFlushed:
		return "Flushed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Options controls rendering.
type Options struct {
	Silent    bool
	Raw       bool
	Pretty    bool
	Color     bool // caller enables this only for terminal sinks
	Array     bool
	Separator string
	Encoding  Encoding

	// TrailingEOL appends a line ending after all output. Callers set it
	// for terminal sinks.
	TrailingEOL bool
}

// Formatter writes responses in arrival order without buffering the
// whole sequence.
type Formatter struct {
	sink   io.Writer
	out    io.WriteCloser
	opts   Options
	logger *slog.Logger

	state    State
	sequence bool
	count    int
	err      error
}

// NewFormatter creates a formatter writing to sink.
func NewFormatter(sink io.Writer, opts Options, logger *slog.Logger) *Formatter {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if opts.Encoding == "" {
		opts.Encoding = EncodingUTF8
	}
	return &Formatter{
		sink:   sink,
		out:    encoder(sink, opts.Encoding),
		opts:   opts,
		logger: logger,
	}
}

// State returns the current lifecycle state.
func (f *Formatter) State() State {
	return f.state
}

// Count returns the number of values written so far.
func (f *Formatter) Count() int {
	return f.count
}

// Single writes one response value.
func (f *Formatter) Single(payload []byte) error {
	if err := f.ready(); err != nil {
		return err
	}
	if f.opts.Silent {
		f.count++
		return nil
	}
	if err := f.writeValue(payload); err != nil {
		return err
	}
	f.count++
	return nil
}

// BeginSequence marks the output as a stream of values. It writes nothing
// until the first value arrives.
func (f *Formatter) BeginSequence() {
	f.sequence = true
}

// Next writes one value of a response sequence.
func (f *Formatter) Next(payload []byte) error {
	if err := f.ready(); err != nil {
		return err
	}
	f.sequence = true
	if f.opts.Silent {
		f.count++
		return nil
	}

	if f.opts.Raw {
		if err := f.write(protowire.AppendVarint(nil, uint64(len(payload)))); err != nil {
			return err
		}
		if err := f.write(payload); err != nil {
			return err
		}
		f.count++
		return nil
	}

	var prefix string
	switch {
	case f.count == 0 && f.opts.Array:
		prefix = "["
		if f.opts.Pretty {
			prefix += EOL
		}
	case f.count > 0:
		prefix = f.opts.Separator
		if f.opts.Pretty {
			prefix += EOL
		}
	}
	if prefix != "" {
		if err := f.write([]byte(prefix)); err != nil {
			return err
		}
	}

	if err := f.writeValue(payload); err != nil {
		return err
	}
	f.count++
	return nil
}

// Finish closes an array, flushes the encoding and writes the trailing
// line ending. It is safe to call more than once.
func (f *Formatter) Finish() error {
	switch f.state {
	case StateFailed:
		return f.err
	case StateFlushed:
		return nil
	}

	if f.opts.Silent {
		f.state = StateFlushed
		return nil
	}

	if f.sequence && f.opts.Array && !f.opts.Raw {
		closing := "]"
		switch {
		case f.count == 0:
			closing = "[]"
		case f.opts.Pretty:
			closing = EOL + "]"
		}
		if err := f.write([]byte(closing)); err != nil {
			return err
		}
	}

	if err := f.out.Close(); err != nil {
		return f.fail(err)
	}

	if f.opts.TrailingEOL && !f.opts.Raw && f.wrote() {
		if _, err := io.WriteString(f.sink, EOL); err != nil {
			return f.fail(err)
		}
	}

	f.state = StateFlushed
	f.logger.Debug("output flushed", slog.Int("values", f.count))
	return nil
}

func (f *Formatter) wrote() bool {
	return f.count > 0 || (f.sequence && f.opts.Array)
}

func (f *Formatter) ready() error {
	switch f.state {
	case StateFailed:
		return f.err
	case StateFlushed:
		return fmt.Errorf("%w: formatter already flushed", apperrors.ErrOutput)
	}
	f.state = StateWriting
	return nil
}

// writeValue renders a single value according to the options.
func (f *Formatter) writeValue(payload []byte) error {
	if f.opts.Raw {
		return f.write(payload)
	}

	rendered := payload
	if f.opts.Pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err != nil {
			return f.fail(fmt.Errorf("render response: %w", err))
		}
		rendered = buf.Bytes()
	}
	if f.opts.Color {
		rendered = []byte(highlightJSON(string(rendered)))
	}
	return f.write(rendered)
}

func (f *Formatter) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := f.out.Write(b); err != nil {
		return f.fail(err)
	}
	return nil
}

func (f *Formatter) fail(err error) error {
	f.state = StateFailed
	f.err = fmt.Errorf("%w: %v", apperrors.ErrOutput, err)
	f.logger.Debug("output failed", slog.Any("error", err))
	return f.err
}
