package grpc

import (
	"fmt"

	"github.com/golang/protobuf/jsonpb"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
)

// MessageCodec converts between request/response payloads and the values
// handed to the gRPC stream.
type MessageCodec interface {
	// NewRequest builds the message sent for payload.
	NewRequest(payload []byte) (any, error)
	// NewResponse returns an empty value to receive into.
	NewResponse() any
	// Payload renders a received response.
	Payload(resp any) ([]byte, error)
	// CallOptions returns extra options applied to every call.
	CallOptions() []grpc.CallOption
}

// JSONCodec maps JSON payloads onto dynamic messages built from the method
// descriptor. Responses keep the declared field names and include fields
// set to their default values.
type JSONCodec struct {
	method      *desc.MethodDescriptor
	marshaler   *jsonpb.Marshaler
	unmarshaler *jsonpb.Unmarshaler
}

// NewJSONCodec creates a JSON codec for method.
func NewJSONCodec(method *desc.MethodDescriptor) *JSONCodec {
	return &JSONCodec{
		method:      method,
		marshaler:   &jsonpb.Marshaler{OrigName: true, EmitDefaults: true},
		unmarshaler: &jsonpb.Unmarshaler{},
	}
}

func (c *JSONCodec) NewRequest(payload []byte) (any, error) {
	msg := dynamic.NewMessage(c.method.GetInputType())
	if err := msg.UnmarshalJSONPB(c.unmarshaler, payload); err != nil {
		return nil, fmt.Errorf("invalid request for %s: %w", c.method.GetInputType().GetName(), err)
	}
	return msg, nil
}

func (c *JSONCodec) NewResponse() any {
	return dynamic.NewMessage(c.method.GetOutputType())
}

func (c *JSONCodec) Payload(resp any) ([]byte, error) {
	msg, ok := resp.(*dynamic.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", resp)
	}
	b, err := msg.MarshalJSONPB(c.marshaler)
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}
	return b, nil
}

func (c *JSONCodec) CallOptions() []grpc.CallOption {
	return nil
}

// RawCodec passes serialized messages through untouched.
type RawCodec struct{}

func (RawCodec) NewRequest(payload []byte) (any, error) {
	return payload, nil
}

func (RawCodec) NewResponse() any {
	return new([]byte)
}

func (RawCodec) Payload(resp any) ([]byte, error) {
	b, ok := resp.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", resp)
	}
	return *b, nil
}

func (RawCodec) CallOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.ForceCodec(passthroughCodec{})}
}

// passthroughCodec is a wire codec that sends and receives raw bytes. It
// keeps the "proto" name so the content-type matches a regular call.
type passthroughCodec struct{}

func (passthroughCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("passthrough codec cannot marshal %T", v)
	}
	return b, nil
}

func (passthroughCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("passthrough codec cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (passthroughCodec) Name() string {
	return "proto"
}
