// Package dispatch runs one call of any shape: it feeds request payloads
// from the input pipeline into the invoker and hands responses to the
// output formatter.
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/metadata"

	"github.com/shhac/gcall/internal/domain"
	apperrors "github.com/shhac/gcall/internal/errors"
	grpcclient "github.com/shhac/gcall/internal/grpc"
	"github.com/shhac/gcall/internal/input"
	"github.com/shhac/gcall/internal/output"
)

// Request describes one call.
type Request struct {
	Method   domain.Method
	Codec    grpcclient.MessageCodec
	Metadata metadata.MD
	Input    io.Reader
	Raw      bool
	Path     input.Path
}

// Dispatcher selects the call path from the method's call shape.
type Dispatcher struct {
	invoker *grpcclient.Invoker
	logger  *slog.Logger
}

// New creates a dispatcher.
func New(invoker *grpcclient.Invoker, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{invoker: invoker, logger: logger}
}

// Dispatch performs the call and writes every response to out. Any failure
// cancels in-flight work and is returned; responses already written stay
// written.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, out *output.Formatter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shape := req.Method.Shape()
	d.logger.Debug("dispatching call",
		slog.String("method", req.Method.FullName),
		slog.String("shape", shape.String()),
	)

	switch shape {
	case domain.Unary:
		return d.unary(ctx, req, out)
	case domain.ClientStreaming:
		return d.clientStream(ctx, req, out)
	case domain.ServerStreaming:
		return d.serverStream(ctx, req, out)
	case domain.BidiStreaming:
		return d.bidiStream(ctx, req, out)
	default:
		return apperrors.ErrUnsupportedCall
	}
}

func readDocument(req Request) ([]byte, error) {
	buf, err := input.ReadAll(req.Input)
	if err != nil {
		return nil, err
	}
	return input.ParseDocument(buf, req.Raw)
}

func (d *Dispatcher) unary(ctx context.Context, req Request, out *output.Formatter) error {
	doc, err := readDocument(req)
	if err != nil {
		return err
	}

	resp, err := d.invoker.InvokeUnary(ctx, req.Method.Descriptor, req.Codec, doc, req.Metadata)
	if err != nil {
		return err
	}
	if err := out.Single(resp); err != nil {
		return err
	}
	return out.Finish()
}

func (d *Dispatcher) serverStream(ctx context.Context, req Request, out *output.Formatter) error {
	doc, err := readDocument(req)
	if err != nil {
		return err
	}

	out.BeginSequence()
	msgChan, errChan := d.invoker.InvokeServerStream(ctx, req.Method.Descriptor, req.Codec, doc, req.Metadata)
	for msg := range msgChan {
		if err := out.Next(msg); err != nil {
			return err
		}
	}
	if err := <-errChan; err != io.EOF {
		return err
	}
	return out.Finish()
}

func (d *Dispatcher) requestStream(ctx context.Context, req Request) (<-chan []byte, <-chan error) {
	return input.Stream(ctx, req.Input, input.Options{Raw: req.Raw, Path: req.Path}, d.logger)
}

func (d *Dispatcher) clientStream(ctx context.Context, req Request, out *output.Formatter) error {
	handle, err := d.invoker.InvokeClientStream(ctx, req.Method.Descriptor, req.Codec, req.Metadata)
	if err != nil {
		return err
	}

	payloads, errChan := d.requestStream(ctx, req)

	var sendErr error
	for p := range payloads {
		if sendErr = handle.Send(p); sendErr != nil {
			break
		}
	}
	switch {
	case sendErr == nil:
		if err := <-errChan; err != io.EOF {
			return err
		}
	case !errors.Is(sendErr, io.EOF):
		return sendErr
	}

	// On a send-side io.EOF the server has already finished; its status
	// comes back from the receive.
	resp, err := handle.CloseAndReceive()
	if err != nil {
		return err
	}
	if err := out.Single(resp); err != nil {
		return err
	}
	return out.Finish()
}

func (d *Dispatcher) bidiStream(ctx context.Context, req Request, out *output.Formatter) error {
	g, gctx := errgroup.WithContext(ctx)

	handle, err := d.invoker.InvokeBidiStream(gctx, req.Method.Descriptor, req.Codec, req.Metadata)
	if err != nil {
		return err
	}

	// The sender stops once the server has finished the stream, even if
	// the input is still open.
	sendCtx, stopSend := context.WithCancel(gctx)
	defer stopSend()
	payloads, errChan := d.requestStream(sendCtx, req)

	out.BeginSequence()

	g.Go(func() error {
		for {
			select {
			case <-sendCtx.Done():
				return nil
			case p, ok := <-payloads:
				if !ok {
					if err := <-errChan; err != io.EOF {
						if sendCtx.Err() != nil {
							return nil
						}
						return err
					}
					return handle.CloseSend()
				}
				if err := handle.Send(p); err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
			}
		}
	})

	g.Go(func() error {
		defer stopSend()
		for {
			resp, err := handle.Recv()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := out.Next(resp); err != nil {
				return err
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return out.Finish()
}
