package output

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/shhac/gcall/internal/errors"
)

// Encoding is the byte encoding applied to everything written to the sink.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingBase64 Encoding = "base64"
	EncodingHex    Encoding = "hex"
)

// ParseEncoding validates an encoding name. Empty means utf8.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", "utf8":
		return EncodingUTF8, nil
	case "base64":
		return EncodingBase64, nil
	case "hex":
		return EncodingHex, nil
	default:
		return "", fmt.Errorf("%w: unknown encoding %q", apperrors.ErrInvalidOption, name)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// encoder wraps w so that bytes are encoded on the way through. Close
// flushes any partial block.
func encoder(w io.Writer, enc Encoding) io.WriteCloser {
	switch enc {
	case EncodingBase64:
		return base64.NewEncoder(base64.StdEncoding, w)
	case EncodingHex:
		return nopWriteCloser{hex.NewEncoder(w)}
	default:
		return nopWriteCloser{w}
	}
}
