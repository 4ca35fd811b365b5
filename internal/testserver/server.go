// Package testserver runs an in-process gRPC server for the ArgService
// test definition. It has no generated code: every call is served through
// an unknown-service handler using dynamic messages.
package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Stuff is the fixed data set served by ListStuff.
var Stuff = []string{"1 foo", "2 bar", "3 asd", "4 qwe", "5 rty", "6 zxc"}

// Server is a running test server.
type Server struct {
	Addr string

	srv     *grpc.Server
	methods map[string]protoreflect.MethodDescriptor
}

// ProtoPath returns the absolute path of a proto file in testdata.
func ProtoPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

// Start listens on an ephemeral local port and serves ArgService.
func Start() (*Server, error) {
	parser := protoparse.Parser{ImportPaths: []string{ProtoPath("")}}
	fds, err := parser.ParseFiles("argservice.proto")
	if err != nil {
		return nil, fmt.Errorf("parse test proto: %w", err)
	}

	s := &Server{methods: map[string]protoreflect.MethodDescriptor{}}
	for _, fd := range fds {
		for _, sd := range fd.GetServices() {
			for _, md := range sd.GetMethods() {
				s.methods[methodPath(md)] = md.UnwrapMethod()
			}
		}
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.Addr = lis.Addr().String()
	s.srv = grpc.NewServer(grpc.UnknownServiceHandler(s.handle))

	go s.srv.Serve(lis)
	return s, nil
}

// Stop stops the server immediately.
func (s *Server) Stop() {
	s.srv.Stop()
}

func methodPath(md *desc.MethodDescriptor) string {
	return "/" + md.GetService().GetFullyQualifiedName() + "/" + md.GetName()
}

func (s *Server) handle(_ any, stream grpc.ServerStream) error {
	name, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return status.Error(codes.Internal, "no method in stream")
	}
	md, ok := s.methods[name]
	if !ok {
		return status.Errorf(codes.Unimplemented, "unknown method %s", name)
	}

	meta := requestMetadata(stream)
	switch md.Name() {
	case "DoSomething":
		req, err := s.recv(stream, md)
		if err != nil {
			return err
		}
		return s.send(stream, md, stringField(req, "message"), meta)

	case "ListStuff":
		req, err := s.recv(stream, md)
		if err != nil {
			return err
		}
		start := int(req.Get(md.Input().Fields().ByName("index")).Int())
		if start < 0 || start > len(Stuff) {
			return status.Errorf(codes.OutOfRange, "index %d out of range", start)
		}
		for _, item := range Stuff[start:] {
			if err := s.send(stream, md, item, meta); err != nil {
				return err
			}
		}
		return nil

	case "WriteStuff":
		var received []string
		for {
			req, err := s.recv(stream, md)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			received = append(received, stringField(req, "message"))
		}
		msg := strings.Join(received, ":") + ":" + fmt.Sprint(len(received))
		return s.send(stream, md, msg, meta)

	case "ProcessStuff":
		for {
			req, err := s.recv(stream, md)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := s.send(stream, md, strings.ToUpper(stringField(req, "message")), meta); err != nil {
				return err
			}
		}
	}

	return status.Errorf(codes.Unimplemented, "method %s not implemented", md.Name())
}

func (s *Server) recv(stream grpc.ServerStream, md protoreflect.MethodDescriptor) (*dynamicpb.Message, error) {
	req := dynamicpb.NewMessage(md.Input())
	if err := stream.RecvMsg(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Server) send(stream grpc.ServerStream, md protoreflect.MethodDescriptor, message, meta string) error {
	resp := dynamicpb.NewMessage(md.Output())
	fields := md.Output().Fields()
	resp.Set(fields.ByName("message"), protoreflect.ValueOfString(message))
	if meta != "" {
		resp.Set(fields.ByName("metadata"), protoreflect.ValueOfString(meta))
	}
	return stream.SendMsg(resp)
}

func stringField(m *dynamicpb.Message, name protoreflect.Name) string {
	return m.Get(m.Descriptor().Fields().ByName(name)).String()
}

// requestMetadata renders caller supplied metadata as a JSON object, or
// returns "" when there is none.
func requestMetadata(stream grpc.ServerStream) string {
	md, ok := metadata.FromIncomingContext(stream.Context())
	if !ok {
		return ""
	}
	values := map[string]string{}
	for k, v := range md {
		if strings.HasPrefix(k, ":") || strings.HasPrefix(k, "grpc-") ||
			k == "content-type" || k == "user-agent" || len(v) == 0 {
			continue
		}
		values[k] = v[0]
	}
	if len(values) == 0 {
		return ""
	}
	b, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(b)
}
