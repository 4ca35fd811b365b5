package output

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	apperrors "github.com/shhac/gcall/internal/errors"
	"github.com/shhac/gcall/internal/logging"
)

var values = []string{
	`{"message":"1 FOO","metadata":""}`,
	`{"message":"2 BAR","metadata":""}`,
}

func render(t *testing.T, opts Options, payloads ...string) string {
	t.Helper()
	var buf bytes.Buffer
	f := NewFormatter(&buf, opts, logging.NewNopLogger())
	f.BeginSequence()
	for _, p := range payloads {
		require.NoError(t, f.Next([]byte(p)))
	}
	require.NoError(t, f.Finish())
	assert.Equal(t, StateFlushed, f.State())
	return buf.String()
}

func TestSingle(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"compact", Options{}, `{"message":"Hello","metadata":""}`},
		{"pretty", Options{Pretty: true}, "{\n  \"message\": \"Hello\",\n  \"metadata\": \"\"\n}"},
		{"trailing line ending", Options{TrailingEOL: true}, `{"message":"Hello","metadata":""}` + EOL},
		{"silent", Options{Silent: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFormatter(&buf, tt.opts, logging.NewNopLogger())
			require.NoError(t, f.Single([]byte(`{"message":"Hello","metadata":""}`)))
			require.NoError(t, f.Finish())
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSequence(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		payloads []string
		want     string
	}{
		{"default separator", Options{}, values, values[0] + "," + values[1]},
		{"newline breaker", Options{Separator: "\n"}, values, values[0] + "\n" + values[1]},
		{"custom breaker", Options{Separator: "|"}, values, values[0] + "|" + values[1]},
		{"array", Options{Array: true}, values, "[" + values[0] + "," + values[1] + "]"},
		{"empty array", Options{Array: true}, nil, "[]"},
		{"empty sequence", Options{}, nil, ""},
		{"single element array", Options{Array: true}, values[:1], "[" + values[0] + "]"},
		{
			"pretty array",
			Options{Array: true, Pretty: true},
			[]string{`{"a":1}`, `{"a":2}`},
			"[" + EOL + "{\n  \"a\": 1\n}," + EOL + "{\n  \"a\": 2\n}" + EOL + "]",
		},
		{
			"pretty breaker",
			Options{Pretty: true, Separator: "|"},
			[]string{`{"a":1}`, `{"a":2}`},
			"{\n  \"a\": 1\n}|" + EOL + "{\n  \"a\": 2\n}",
		},
		{"silent", Options{Silent: true, Array: true}, values, ""},
		{
			"color array",
			Options{Array: true, Color: true},
			values,
			"[" + highlightJSON(values[0]) + "," + highlightJSON(values[1]) + "]",
		},
		{
			"color breaker",
			Options{Color: true, Separator: "|"},
			values,
			highlightJSON(values[0]) + "|" + highlightJSON(values[1]),
		},
		{
			"color pretty array with breaker",
			Options{Array: true, Color: true, Pretty: true, Separator: ";"},
			[]string{`{"a":1}`, `{"a":2}`},
			"[" + EOL + highlightJSON("{\n  \"a\": 1\n}") + ";" + EOL + highlightJSON("{\n  \"a\": 2\n}") + EOL + "]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.opts, tt.payloads...))
		})
	}
}

func TestSequenceBrackets(t *testing.T) {
	for _, array := range []bool{false, true} {
		for _, pretty := range []bool{false, true} {
			for _, color := range []bool{false, true} {
				for _, sep := range []string{"", "\n", "|"} {
					opts := Options{Array: array, Pretty: pretty, Color: color, Separator: sep}
					got := render(t, opts, values...)
					if array {
						assert.True(t, strings.HasPrefix(got, "["), "%+v: %q", opts, got)
						assert.True(t, strings.HasSuffix(got, "]"), "%+v: %q", opts, got)
					} else {
						assert.False(t, strings.HasPrefix(got, "["), "%+v: %q", opts, got)
					}
				}
			}
		}
	}
}

func TestRawFrames(t *testing.T) {
	got := render(t, Options{Raw: true, Array: true}, "\x0a\x01a", "\x0a\x02bb")

	var want []byte
	for _, msg := range []string{"\x0a\x01a", "\x0a\x02bb"} {
		want = protowire.AppendVarint(want, uint64(len(msg)))
		want = append(want, msg...)
	}
	assert.Equal(t, string(want), got)
}

func TestEncoding(t *testing.T) {
	plain := `{"message":"Hello"}`

	b64 := render(t, Options{Encoding: EncodingBase64}, plain)
	decoded, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	assert.Equal(t, plain, string(decoded))

	hx := render(t, Options{Encoding: EncodingHex}, plain)
	decoded, err = hex.DecodeString(hx)
	require.NoError(t, err)
	assert.Equal(t, plain, string(decoded))
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{"": EncodingUTF8, "utf-8": EncodingUTF8, "BASE64": EncodingBase64, "hex": EncodingHex} {
		got, err := ParseEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseEncoding("ebcdic")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOption)
}

func TestColor(t *testing.T) {
	got := render(t, Options{Color: true}, `{"n":1,"ok":true,"s":"x","z":null}`)
	assert.Contains(t, got, "\x1b[")
	assert.Contains(t, got, `"n"`)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteFailure(t *testing.T) {
	f := NewFormatter(failingWriter{}, Options{}, logging.NewNopLogger())
	err := f.Single([]byte(`{}`))
	require.ErrorIs(t, err, apperrors.ErrOutput)
	assert.Equal(t, apperrors.ExitRuntime, apperrors.ExitCode(err))
	assert.Equal(t, StateFailed, f.State())
	assert.ErrorIs(t, f.Finish(), apperrors.ErrOutput)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("previous content that is longer"), 0644))

	sink, err := OpenSink(path, nil)
	require.NoError(t, err)
	assert.False(t, sink.Terminal())

	f := NewFormatter(sink, Options{}, logging.NewNopLogger())
	require.NoError(t, f.Single([]byte(`{"message":"Hello","metadata":""}`)))
	require.NoError(t, f.Finish())
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"message":"Hello","metadata":""}`, string(data))
}

func TestTokenizeJSON(t *testing.T) {
	tokens := tokenizeJSON(`{"k": "v", "n": -1.5e3, "b": false, "z": null}`)

	var keys, strs, nums, bools, nulls int
	for _, tok := range tokens {
		switch tok.typ {
		case jsonTokenKey:
			keys++
		case jsonTokenString:
			strs++
		case jsonTokenNumber:
			nums++
			assert.Equal(t, "-1.5e3", tok.value)
		case jsonTokenBool:
			bools++
		case jsonTokenNull:
			nulls++
		}
	}
	assert.Equal(t, 4, keys)
	assert.Equal(t, 1, strs)
	assert.Equal(t, 1, nums)
	assert.Equal(t, 1, bools)
	assert.Equal(t, 1, nulls)
}
