package errors

import "errors"

// Sentinel errors for usage and resolution failures. All of them are
// detected before any network traffic.
var (
	ErrProtoRequired   = errors.New("Must provide proto file.")
	ErrServiceNotFound = errors.New("service not found")
	ErrMethodRequired  = errors.New("Method name required.")
	ErrMethodNotFound  = errors.New("method not found")
	ErrUnsupportedCall = errors.New("Unsupported call type.")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidOption   = errors.New("invalid option")
	ErrInvalidProto    = errors.New("invalid proto definition")
)

// ErrInvalidInput is returned when a whole-buffer request is not valid JSON.
var ErrInvalidInput = errors.New("Input must be valid JSON.")

// Runtime failure categories, wrapped around the underlying cause.
var (
	ErrInput  = errors.New("input error")
	ErrOutput = errors.New("output error")
)

// NotFoundError reports a service or method missing from the definition.
type NotFoundError struct {
	Kind    error // ErrServiceNotFound or ErrMethodNotFound
	Name    string
	Service string
}

func (e NotFoundError) Error() string {
	if e.Kind == ErrMethodNotFound {
		return "RPC method '" + e.Name + "' does not exist for service " + e.Service + "."
	}
	return "Service '" + e.Name + "' does not exist in protocol buffer definition."
}

// Unwrap returns the sentinel kind.
func (e NotFoundError) Unwrap() error {
	return e.Kind
}
