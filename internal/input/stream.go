package input

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	apperrors "github.com/shhac/gcall/internal/errors"
)

// DefaultBuffer is the payload channel capacity.
const DefaultBuffer = 16

// maxFrameSize bounds a single length-delimited raw message.
const maxFrameSize = 64 << 20

// Options configures a request stream.
type Options struct {
	Raw    bool
	Path   Path
	Buffer int
}

// Stream produces payloads from r on a bounded channel. The payload channel
// is closed when the source is exhausted or fails; the error channel then
// receives io.EOF on clean completion or the failure.
func Stream(ctx context.Context, r io.Reader, opts Options, logger *slog.Logger) (<-chan []byte, <-chan error) {
	size := opts.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	payloads := make(chan []byte, size)
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		defer close(payloads)

		count := 0
		emit := func(p []byte) error {
			select {
			case payloads <- p:
				count++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var err error
		if opts.Raw {
			err = splitFrames(r, emit)
		} else {
			err = splitJSON(r, opts.Path, emit)
		}
		if err != nil {
			logger.Debug("request stream failed", slog.Int("payloads", count), slog.Any("error", err))
			errChan <- err
			return
		}

		logger.Debug("request stream exhausted", slog.Int("payloads", count))
		errChan <- io.EOF
	}()

	return payloads, errChan
}

// splitJSON walks one or more concatenated JSON documents and emits every
// value selected by path. A selected value is emitted whole; values nested
// inside it are not considered separately.
func splitJSON(r io.Reader, path Path, emit func([]byte) error) error {
	w := walker{dec: json.NewDecoder(r), path: path, emit: emit}
	for w.dec.More() {
		if err := w.value(nil); err != nil {
			return malformed(err)
		}
	}
	tok, err := w.dec.Token()
	switch {
	case err == io.EOF:
		return nil
	case err != nil:
		return malformed(err)
	default:
		return malformed(fmt.Errorf("unexpected %v", tok))
	}
}

func malformed(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: invalid JSON stream: %v", apperrors.ErrInput, err)
}

type walker struct {
	dec  *json.Decoder
	path Path
	emit func([]byte) error
}

func (w *walker) value(keys []string) error {
	if w.path.Match(keys) {
		var raw json.RawMessage
		if err := w.dec.Decode(&raw); err != nil {
			return err
		}
		return w.emit(raw)
	}

	if !w.path.CanDescend(keys) {
		var skip json.RawMessage
		return w.dec.Decode(&skip)
	}

	tok, err := w.dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	switch delim {
	case '{':
		for w.dec.More() {
			kt, err := w.dec.Token()
			if err != nil {
				return err
			}
			key, ok := kt.(string)
			if !ok {
				return fmt.Errorf("unexpected object key %v", kt)
			}
			if err := w.value(append(keys, key)); err != nil {
				return err
			}
		}
	case '[':
		for i := 0; w.dec.More(); i++ {
			if err := w.value(append(keys, indexKey(i))); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected %v", delim)
	}

	// closing delimiter
	_, err = w.dec.Token()
	return err
}

// splitFrames reads varint length-prefixed wire messages.
func splitFrames(r io.Reader, emit func([]byte) error) error {
	br := bufio.NewReader(r)
	for {
		size, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading frame length: %v", apperrors.ErrInput, err)
		}
		if size > maxFrameSize {
			return fmt.Errorf("%w: frame of %d bytes exceeds limit", apperrors.ErrInput, size)
		}
		msg := make([]byte, size)
		if _, err := io.ReadFull(br, msg); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("%w: reading frame: %v", apperrors.ErrInput, err)
		}
		if err := emit(msg); err != nil {
			return err
		}
	}
}
