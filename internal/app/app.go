package app

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/shhac/gcall/internal/dispatch"
	"github.com/shhac/gcall/internal/domain"
	"github.com/shhac/gcall/internal/grpc"
	"github.com/shhac/gcall/internal/input"
	"github.com/shhac/gcall/internal/output"
	"github.com/shhac/gcall/internal/protodef"
)

// Streams are the process standard streams.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// App runs a single invocation, responsible for wiring together all
// components for the lifetime of the call.
type App struct {
	config      *Config
	streams     Streams
	logger      *slog.Logger
	connManager *grpc.ConnectionManager
}

// New creates a new App instance with the given configuration.
func New(cfg *Config, streams Streams, logger *slog.Logger) *App {
	return &App{
		config:      cfg,
		streams:     streams,
		logger:      logger,
		connManager: grpc.NewConnectionManager(logger),
	}
}

// Run lists the service methods when no host is configured, otherwise it
// performs the call. Errors are returned for the caller to report.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config

	def, err := protodef.Load(cfg.Proto, cfg.ImportPaths, a.logger)
	if err != nil {
		return err
	}
	svc, err := def.Service(cfg.Service)
	if err != nil {
		return err
	}

	if cfg.Host == "" {
		return protodef.List(a.streams.Out, svc, output.IsTerminal(a.streams.Out))
	}

	method, err := svc.Method(cfg.Method)
	if err != nil {
		return err
	}

	a.logger.Debug("resolved method",
		slog.String("method", method.FullName),
		slog.String("shape", method.Shape().String()),
		slog.String("host", cfg.Host),
	)

	return a.call(ctx, method)
}

func (a *App) call(ctx context.Context, method domain.Method) (err error) {
	cfg := a.config

	source, err := input.Open(cfg.Data, a.streams.In)
	if err != nil {
		return err
	}
	defer source.Close()

	conn, err := a.connManager.Connect(ctx, domain.Connection{
		Address: cfg.Host,
		UseTLS:  cfg.Secure || cfg.CACert != "" || cfg.Insecure,
		Timeout: cfg.Timeout,
		TLS: domain.TLSSettings{
			SkipVerify: cfg.Insecure,
			CertFile:   cfg.CACert,
		},
	})
	if err != nil {
		return err
	}
	defer a.connManager.Disconnect()

	sink, err := output.OpenSink(cfg.Output, a.streams.Out)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sink.Close())
	}()

	var codec grpc.MessageCodec = grpc.NewJSONCodec(method.Descriptor)
	if cfg.Raw {
		codec = grpc.RawCodec{}
	}

	formatter := output.NewFormatter(sink, cfg.OutputOptions(sink.Terminal()), a.logger)
	dispatcher := dispatch.New(grpc.NewInvoker(conn, a.logger), a.logger)

	return dispatcher.Dispatch(ctx, dispatch.Request{
		Method:   method,
		Codec:    codec,
		Metadata: cfg.MD(),
		Input:    source,
		Raw:      cfg.Raw,
		Path:     cfg.Path(),
	}, formatter)
}
