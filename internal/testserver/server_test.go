package testserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

func TestStartAndUnknownMethod(t *testing.T) {
	srv, err := Start()
	require.NoError(t, err)
	defer srv.Stop()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = conn.Invoke(ctx, "/routeguide.RouteGuide/GetFeature", &emptypb.Empty{}, &emptypb.Empty{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestProtoPath(t *testing.T) {
	assert.FileExists(t, ProtoPath("argservice.proto"))
	assert.FileExists(t, ProtoPath("route_guide.proto"))
}
