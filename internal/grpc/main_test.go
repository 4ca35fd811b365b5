package grpc

import (
	"fmt"
	"log/slog"
	"os"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shhac/gcall/internal/logging"
	"github.com/shhac/gcall/internal/protodef"
	"github.com/shhac/gcall/internal/testserver"
)

// Package-level test infrastructure shared by all tests.
var (
	testConn    *grpc.ClientConn
	testServer  *testserver.Server
	testLogger  *slog.Logger
	testService *protodef.Service
)

func TestMain(m *testing.M) {
	var err error
	testLogger = logging.NewNopLogger()

	testServer, err = testserver.Start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start test server: %v\n", err)
		os.Exit(1)
	}

	def, err := protodef.Load(testserver.ProtoPath("argservice.proto"), nil, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load proto: %v\n", err)
		os.Exit(1)
	}
	testService, err = def.Service("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve service: %v\n", err)
		os.Exit(1)
	}

	testConn, err = grpc.NewClient(
		testServer.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create client: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testConn.Close()
	testServer.Stop()
	os.Exit(code)
}
