package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"

	"github.com/shhac/gcall/internal/app"
	"github.com/shhac/gcall/internal/cli"
	apperrors "github.com/shhac/gcall/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := runApp(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, apperrors.Describe(err))
	}
	os.Exit(apperrors.ExitCode(err))
}

// runApp is the main application entry point with panic recovery.
func runApp(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("panic recovered",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return cli.Execute(ctx, os.Args[1:], app.Streams{
		In:  os.Stdin,
		Out: os.Stdout,
		Err: os.Stderr,
	})
}
