package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Invoker performs dynamic gRPC calls without generated stubs. Messages are
// produced and rendered by a MessageCodec, so the same call paths serve JSON
// and raw wire payloads.
type Invoker struct {
	conn   grpc.ClientConnInterface
	logger *slog.Logger
}

// NewInvoker creates a new dynamic gRPC invoker for the given connection.
func NewInvoker(conn grpc.ClientConnInterface, logger *slog.Logger) *Invoker {
	return &Invoker{
		conn:   conn,
		logger: logger,
	}
}

// MethodPath returns the "/package.Service/Method" path used on the wire.
func MethodPath(md *desc.MethodDescriptor) string {
	return "/" + md.GetService().GetFullyQualifiedName() + "/" + md.GetName()
}

func withMetadata(ctx context.Context, md metadata.MD) context.Context {
	if len(md) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (i *Invoker) newStream(
	ctx context.Context,
	methodDesc *desc.MethodDescriptor,
	codec MessageCodec,
	md metadata.MD,
) (grpc.ClientStream, error) {
	streamDesc := &grpc.StreamDesc{
		StreamName:    methodDesc.GetName(),
		ClientStreams: methodDesc.IsClientStreaming(),
		ServerStreams: methodDesc.IsServerStreaming(),
	}
	return i.conn.NewStream(withMetadata(ctx, md), streamDesc, MethodPath(methodDesc), codec.CallOptions()...)
}

// InvokeUnary calls a unary RPC method and returns the rendered response.
func (i *Invoker) InvokeUnary(
	ctx context.Context,
	methodDesc *desc.MethodDescriptor,
	codec MessageCodec,
	payload []byte,
	md metadata.MD,
) ([]byte, error) {
	methodName := methodDesc.GetFullyQualifiedName()
	i.logger.Debug("invoking unary RPC",
		slog.String("method", methodName),
		slog.Int("request_bytes", len(payload)),
	)

	req, err := codec.NewRequest(payload)
	if err != nil {
		return nil, err
	}

	resp := codec.NewResponse()
	if err := i.conn.Invoke(withMetadata(ctx, md), MethodPath(methodDesc), req, resp, codec.CallOptions()...); err != nil {
		i.logger.Debug("RPC invocation failed",
			slog.String("method", methodName),
			slog.Any("error", err),
		)
		return nil, err
	}

	out, err := codec.Payload(resp)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("unary RPC completed",
		slog.String("method", methodName),
		slog.Int("response_bytes", len(out)),
	)
	return out, nil
}

// InvokeServerStream calls a server streaming RPC method.
//
// The caller reads msgChan until it is closed and then reads errChan, which
// yields io.EOF on normal completion or the failure.
func (i *Invoker) InvokeServerStream(
	ctx context.Context,
	methodDesc *desc.MethodDescriptor,
	codec MessageCodec,
	payload []byte,
	md metadata.MD,
) (<-chan []byte, <-chan error) {
	msgChan := make(chan []byte, 10)
	errChan := make(chan error, 1)

	methodName := methodDesc.GetFullyQualifiedName()
	i.logger.Debug("invoking server streaming RPC",
		slog.String("method", methodName),
		slog.Int("request_bytes", len(payload)),
	)

	go func() {
		defer close(errChan)
		defer close(msgChan)

		req, err := codec.NewRequest(payload)
		if err != nil {
			errChan <- err
			return
		}

		stream, err := i.newStream(ctx, methodDesc, codec, md)
		if err != nil {
			i.logger.Debug("failed to start server stream",
				slog.String("method", methodName),
				slog.Any("error", err),
			)
			errChan <- err
			return
		}
		if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
			errChan <- err
			return
		}
		if err := stream.CloseSend(); err != nil {
			errChan <- err
			return
		}

		messageCount := 0
		for {
			out, err := recvPayload(stream, codec)
			if err == io.EOF {
				i.logger.Debug("server stream completed",
					slog.String("method", methodName),
					slog.Int("message_count", messageCount),
				)
				errChan <- io.EOF
				return
			}
			if err != nil {
				i.logger.Debug("stream receive error",
					slog.String("method", methodName),
					slog.Int("message_count", messageCount),
					slog.Any("error", err),
				)
				errChan <- err
				return
			}

			messageCount++
			select {
			case msgChan <- out:
			case <-ctx.Done():
				i.logger.Debug("server stream cancelled by context",
					slog.String("method", methodName),
					slog.Int("message_count", messageCount),
				)
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return msgChan, errChan
}

func recvPayload(stream grpc.ClientStream, codec MessageCodec) ([]byte, error) {
	resp := codec.NewResponse()
	if err := stream.RecvMsg(resp); err != nil {
		return nil, err
	}
	return codec.Payload(resp)
}

// ClientStreamHandle represents an active client streaming RPC session.
type ClientStreamHandle struct {
	stream     grpc.ClientStream
	codec      MessageCodec
	methodDesc *desc.MethodDescriptor
	logger     *slog.Logger
}

// Send sends one payload on the client stream. io.EOF means the server
// has already ended the call; CloseAndReceive reports its status.
func (h *ClientStreamHandle) Send(payload []byte) error {
	req, err := h.codec.NewRequest(payload)
	if err != nil {
		return err
	}
	return h.stream.SendMsg(req)
}

// CloseAndReceive closes the send side of the stream and receives the final response.
func (h *ClientStreamHandle) CloseAndReceive() ([]byte, error) {
	methodName := h.methodDesc.GetFullyQualifiedName()
	if err := h.stream.CloseSend(); err != nil {
		return nil, err
	}

	out, err := recvPayload(h.stream, h.codec)
	if err != nil {
		h.logger.Debug("failed to receive client stream response",
			slog.String("method", methodName),
			slog.Any("error", err),
		)
		return nil, err
	}

	h.logger.Debug("client stream completed",
		slog.String("method", methodName),
		slog.Int("response_bytes", len(out)),
	)
	return out, nil
}

// InvokeClientStream starts a client streaming RPC and returns a handle for sending payloads.
func (i *Invoker) InvokeClientStream(
	ctx context.Context,
	methodDesc *desc.MethodDescriptor,
	codec MessageCodec,
	md metadata.MD,
) (*ClientStreamHandle, error) {
	i.logger.Debug("invoking client streaming RPC",
		slog.String("method", methodDesc.GetFullyQualifiedName()),
	)

	stream, err := i.newStream(ctx, methodDesc, codec, md)
	if err != nil {
		return nil, err
	}

	return &ClientStreamHandle{
		stream:     stream,
		codec:      codec,
		methodDesc: methodDesc,
		logger:     i.logger,
	}, nil
}

// BidiStreamHandle represents an active bidirectional streaming RPC session.
// One goroutine may call Send and CloseSend while another calls Recv.
type BidiStreamHandle struct {
	stream     grpc.ClientStream
	codec      MessageCodec
	methodDesc *desc.MethodDescriptor
	logger     *slog.Logger
}

// Send sends one payload. io.EOF means the server has already ended the
// call; Recv reports its status.
func (h *BidiStreamHandle) Send(payload []byte) error {
	req, err := h.codec.NewRequest(payload)
	if err != nil {
		return err
	}
	return h.stream.SendMsg(req)
}

// CloseSend closes the send side of the bidirectional stream.
func (h *BidiStreamHandle) CloseSend() error {
	h.logger.Debug("closing bidi stream send side",
		slog.String("method", h.methodDesc.GetFullyQualifiedName()),
	)
	return h.stream.CloseSend()
}

// Recv receives the next response. It returns io.EOF when the server
// completes the stream successfully.
func (h *BidiStreamHandle) Recv() ([]byte, error) {
	return recvPayload(h.stream, h.codec)
}

// InvokeBidiStream starts a bidirectional streaming RPC.
func (i *Invoker) InvokeBidiStream(
	ctx context.Context,
	methodDesc *desc.MethodDescriptor,
	codec MessageCodec,
	md metadata.MD,
) (*BidiStreamHandle, error) {
	i.logger.Debug("invoking bidirectional streaming RPC",
		slog.String("method", methodDesc.GetFullyQualifiedName()),
	)

	stream, err := i.newStream(ctx, methodDesc, codec, md)
	if err != nil {
		return nil, err
	}

	return &BidiStreamHandle{
		stream:     stream,
		codec:      codec,
		methodDesc: methodDesc,
		logger:     i.logger,
	}, nil
}
