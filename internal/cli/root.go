// Package cli defines the gcall command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shhac/gcall/internal/app"
	apperrors "github.com/shhac/gcall/internal/errors"
	"github.com/shhac/gcall/internal/logging"
)

// NewRootCommand builds the gcall command bound to streams.
func NewRootCommand(streams app.Streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gcall [options] <method>",
		Short: "Call gRPC services from the command line",
		Long: `gcall lists the methods of a gRPC service, or calls one of them with
JSON read from standard input (or --data) and writes the responses to
standard output (or --output).

Without --host the methods of the service are listed.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, streams)
		},
	}

	cmd.SetIn(streams.In)
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidOption, err)
	})

	app.RegisterFlags(cmd.Flags())
	// -h is --host, so help gets no shorthand.
	cmd.Flags().Bool("help", false, "Show help for gcall.")
	return cmd
}

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string, streams app.Streams) error {
	cmd := NewRootCommand(streams)
	cmd.SetArgs(normalizeArgs(args))
	return cmd.ExecuteContext(ctx)
}

func run(cmd *cobra.Command, args []string, streams app.Streams) error {
	bootstrap, _, err := logging.InitLogger(logging.Options{Stderr: streams.Err})
	if err != nil {
		return err
	}

	cfg, err := app.Resolve(cmd.Flags(), args, bootstrap)
	if err != nil {
		return err
	}

	logger, closer, err := logging.InitLogger(logging.Options{
		Debug:   cfg.Debug,
		LogFile: cfg.LogFile,
		Stderr:  streams.Err,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close()

	logger.Debug("starting gcall",
		slog.String("proto", cfg.Proto),
		slog.String("host", cfg.Host),
		slog.String("method", cfg.Method),
	)

	return app.New(cfg, streams, logger).Run(cmd.Context())
}

// normalizeArgs lets the breaker take its value as the next argument
// ("-b VALUE"), while a bare "-b" still means newline. The value is
// attached with "=" because the flag has an optional value.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if (arg == "-b" || arg == "--"+app.BreakerFlag) && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, "--"+app.BreakerFlag+"="+args[i+1])
			i++
			continue
		}
		out = append(out, arg)
	}
	return out
}
