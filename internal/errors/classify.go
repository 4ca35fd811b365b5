package errors

import (
	"context"
	"errors"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitUsage   = 128
	ExitRuntime = 129
)

var usageErrors = []error{
	ErrProtoRequired,
	ErrServiceNotFound,
	ErrMethodRequired,
	ErrMethodNotFound,
	ErrUnsupportedCall,
	ErrInvalidConfig,
	ErrInvalidOption,
	ErrInvalidProto,
	ErrInvalidInput,
}

// ExitCode maps an error returned from a command run to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, target := range usageErrors {
		if errors.Is(err, target) {
			return ExitUsage
		}
	}
	return ExitRuntime
}

// Describe converts an error into the text printed on stderr.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timeout: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "Request cancelled: " + err.Error()
	}

	if msg, ok := describeStatus(err); ok {
		return msg
	}
	return err.Error()
}
