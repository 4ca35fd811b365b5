// Package input turns the request source into payloads: a single JSON
// document for unary and server-streaming calls, or a lazily produced
// sequence for client and bidirectional streams.
package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/shhac/gcall/internal/errors"
)

// Open returns the request source. A non-empty data literal wins over
// stdin; "@path" reads the named file and "@-" reads stdin.
func Open(data string, stdin io.Reader) (io.ReadCloser, error) {
	switch {
	case data == "":
		return io.NopCloser(stdin), nil
	case data == "@-":
		return io.NopCloser(stdin), nil
	case strings.HasPrefix(data, "@"):
		f, err := os.Open(data[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInput, err)
		}
		return f, nil
	default:
		return io.NopCloser(strings.NewReader(data)), nil
	}
}

// ReadAll reads the whole source.
func ReadAll(r io.Reader) ([]byte, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInput, err)
	}
	return buf, nil
}

// ParseDocument validates a whole-buffer request. In raw mode the buffer is
// returned untouched; otherwise it must hold exactly one JSON value.
func ParseDocument(buf []byte, raw bool) ([]byte, error) {
	if raw {
		return buf, nil
	}
	doc := bytes.TrimSpace(buf)
	if len(doc) == 0 || !json.Valid(doc) {
		return nil, apperrors.ErrInvalidInput
	}
	return doc, nil
}
