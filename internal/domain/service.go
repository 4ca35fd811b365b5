package domain

import "github.com/jhump/protoreflect/desc"

// Service represents a gRPC service declared in a proto definition
type Service struct {
	Name     string
	FullName string // Fully qualified name
	Methods  []Method
}

// Method represents a gRPC method
type Method struct {
	Name           string
	FullName       string
	InputType      string // Message type name
	OutputType     string
	IsClientStream bool
	IsServerStream bool

	// Descriptor is the parsed method definition used to build messages.
	Descriptor *desc.MethodDescriptor
}

// CallShape classifies a method by the direction of its streams.
type CallShape int

const (
	Unary CallShape = iota
	ClientStreaming
	ServerStreaming
	BidiStreaming
)

// String returns the shape name as used in logs
func (s CallShape) String() string {
	switch s {
	case Unary:
		return "unary"
	case ClientStreaming:
		return "client_stream"
	case ServerStreaming:
		return "server_stream"
	case BidiStreaming:
		return "bidi_stream"
	default:
		return "unknown"
	}
}

// ShapeOf derives the call shape from the two streaming flags.
func ShapeOf(clientStream, serverStream bool) CallShape {
	switch {
	case clientStream && serverStream:
		return BidiStreaming
	case serverStream:
		return ServerStreaming
	case clientStream:
		return ClientStreaming
	default:
		return Unary
	}
}

// Shape returns the call shape of the method.
func (m Method) Shape() CallShape {
	return ShapeOf(m.IsClientStream, m.IsServerStream)
}
