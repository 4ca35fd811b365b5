package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	apperrors "github.com/shhac/gcall/internal/errors"
	grpcclient "github.com/shhac/gcall/internal/grpc"
	"github.com/shhac/gcall/internal/input"
	"github.com/shhac/gcall/internal/logging"
	"github.com/shhac/gcall/internal/output"
	"github.com/shhac/gcall/internal/protodef"
	"github.com/shhac/gcall/internal/testserver"
)

var (
	testConn    *grpc.ClientConn
	argService  *protodef.Service
	routeGuide  *protodef.Service
	stuffInput  string
	nestedInput string
)

func TestMain(m *testing.M) {
	srv, err := testserver.Start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start test server: %v\n", err)
		os.Exit(1)
	}

	argService = mustService(testserver.ProtoPath("argservice.proto"))
	routeGuide = mustService(testserver.ProtoPath("route_guide.proto"))

	testConn, err = grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create client: %v\n", err)
		os.Exit(1)
	}

	var plain, nested []string
	for _, s := range testserver.Stuff {
		plain = append(plain, fmt.Sprintf(`{"message":%q}`, s))
		nested = append(nested, fmt.Sprintf(`{"d":{"message":%q}}`, s))
	}
	stuffInput = "[" + strings.Join(plain, ",") + "]"
	nestedInput = "[" + strings.Join(nested, ",") + "]"

	code := m.Run()

	testConn.Close()
	srv.Stop()
	os.Exit(code)
}

func mustService(path string) *protodef.Service {
	def, err := protodef.Load(path, nil, logging.NewNopLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
		os.Exit(1)
	}
	svc, err := def.Service("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve service: %v\n", err)
		os.Exit(1)
	}
	return svc
}

type call struct {
	svc    *protodef.Service
	method string
	input  string
	path   string
	raw    bool
	md     metadata.MD
	opts   output.Options
}

func (c call) run(t *testing.T) (string, error) {
	t.Helper()
	svc := c.svc
	if svc == nil {
		svc = argService
	}
	m, err := svc.Method(c.method)
	require.NoError(t, err)

	var codec grpcclient.MessageCodec = grpcclient.NewJSONCodec(m.Descriptor)
	if c.raw {
		codec = grpcclient.RawCodec{}
		c.opts.Raw = true
	}
	if c.path == "" {
		c.path = "*"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var buf bytes.Buffer
	logger := logging.NewNopLogger()
	out := output.NewFormatter(&buf, c.opts, logger)
	d := New(grpcclient.NewInvoker(testConn, logger), logger)

	err = d.Dispatch(ctx, Request{
		Method:   m,
		Codec:    codec,
		Metadata: c.md,
		Input:    strings.NewReader(c.input),
		Raw:      c.raw,
		Path:     input.ParsePath(c.path),
	}, out)
	return buf.String(), err
}

func TestUnary(t *testing.T) {
	tests := []struct {
		name string
		call call
		want string
	}{
		{
			name: "echo",
			call: call{method: "DoSomething", input: `{"message":"Hello"}`},
			want: `{"message":"Hello","metadata":""}`,
		},
		{
			name: "metadata",
			call: call{method: "DoSomething", input: `{"message":"Hello"}`, md: metadata.Pairs("request-id", "1234")},
			want: `{"message":"Hello","metadata":"{\"request-id\":\"1234\"}"}`,
		},
		{
			name: "pretty",
			call: call{method: "DoSomething", input: `{"message":"Hello"}`, opts: output.Options{Pretty: true}},
			want: "{\n  \"message\": \"Hello\",\n  \"metadata\": \"\"\n}",
		},
		{
			name: "silent",
			call: call{method: "DoSomething", input: `{"message":"Hello"}`, opts: output.Options{Silent: true}},
			want: "",
		},
		{
			name: "raw",
			call: call{method: "DoSomething", input: "\x0a\x05Hello", raw: true},
			want: "\x0a\x05Hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call.run(t)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnaryInvalidInput(t *testing.T) {
	got, err := call{method: "DoSomething", input: `{"message":`}.run(t)
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
	assert.Empty(t, got)
}

func TestUnaryUnimplemented(t *testing.T) {
	_, err := call{svc: routeGuide, method: "GetFeature", input: `{}`}.run(t)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
	assert.Equal(t, apperrors.ExitRuntime, apperrors.ExitCode(err))
}

func TestServerStream(t *testing.T) {
	all := make([]string, 0, len(testserver.Stuff))
	for _, s := range testserver.Stuff {
		all = append(all, fmt.Sprintf(`{"message":%q,"metadata":""}`, s))
	}

	tests := []struct {
		name string
		call call
		want string
	}{
		{"comma joined", call{method: "ListStuff", input: `{"index":0}`}, strings.Join(all, ",")},
		{"from index", call{method: "ListStuff", input: `{"index":4}`}, strings.Join(all[4:], ",")},
		{"array", call{method: "ListStuff", input: `{"index":0}`, opts: output.Options{Array: true}}, "[" + strings.Join(all, ",") + "]"},
		{"newline breaker", call{method: "ListStuff", input: `{"index":0}`, opts: output.Options{Separator: "\n"}}, strings.Join(all, "\n")},
		{"empty array", call{method: "ListStuff", input: `{"index":6}`, opts: output.Options{Array: true}}, "[]"},
		{"silent", call{method: "ListStuff", input: `{"index":0}`, opts: output.Options{Silent: true}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call.run(t)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerStreamFailure(t *testing.T) {
	_, err := call{method: "ListStuff", input: `{"index":99}`}.run(t)
	assert.Equal(t, codes.OutOfRange, status.Code(err))
}

func TestClientStream(t *testing.T) {
	want := `{"message":"1 foo:2 bar:3 asd:4 qwe:5 rty:6 zxc:6","metadata":""}`

	got, err := call{method: "WriteStuff", input: stuffInput}.run(t)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = call{method: "WriteStuff", input: nestedInput, path: "*.d"}.run(t)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = call{method: "WriteStuff", input: "[]"}.run(t)
	require.NoError(t, err)
	assert.Equal(t, `{"message":":0","metadata":""}`, got)
}

func TestClientStreamMalformedInput(t *testing.T) {
	_, err := call{method: "WriteStuff", input: `[{"message":"a"},{"message":`}.run(t)
	require.ErrorIs(t, err, apperrors.ErrInput)
	assert.Equal(t, apperrors.ExitRuntime, apperrors.ExitCode(err))
}

func TestBidiStream(t *testing.T) {
	upper := make([]string, 0, len(testserver.Stuff))
	for _, s := range testserver.Stuff {
		upper = append(upper, fmt.Sprintf(`{"message":%q,"metadata":""}`, strings.ToUpper(s)))
	}

	tests := []struct {
		name string
		call call
		want string
	}{
		{"default path", call{method: "ProcessStuff", input: stuffInput}, strings.Join(upper, ",")},
		{"nested path", call{method: "ProcessStuff", input: nestedInput, path: "*.d"}, strings.Join(upper, ",")},
		{"array", call{method: "ProcessStuff", input: stuffInput, opts: output.Options{Array: true}}, "[" + strings.Join(upper, ",") + "]"},
		{"root documents", call{method: "ProcessStuff", input: "{\"message\":\"a\"}\n{\"message\":\"b\"}", path: "$"}, `{"message":"A","metadata":""},{"message":"B","metadata":""}`},
		{"no input", call{method: "ProcessStuff", input: ""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call.run(t)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
