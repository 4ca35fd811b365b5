// Package protodef loads service definitions from .proto sources or
// compiled descriptor sets and resolves services and methods by name.
package protodef

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	apperrors "github.com/shhac/gcall/internal/errors"
)

// Definition is a loaded set of proto files.
type Definition struct {
	path     string
	files    []*desc.FileDescriptor
	services []*desc.ServiceDescriptor
}

// Load reads the definition at path. Files ending in .protoset or .pb are
// treated as serialized FileDescriptorSets; anything else is parsed as
// proto source, resolving imports against the file's own directory and
// importPaths.
func Load(path string, importPaths []string, logger *slog.Logger) (*Definition, error) {
	if path == "" {
		return nil, apperrors.ErrProtoRequired
	}

	var (
		files []*desc.FileDescriptor
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".protoset", ".pb":
		files, err = loadDescriptorSet(path)
	default:
		files, err = parseProto(path, importPaths)
	}
	if err != nil {
		return nil, err
	}

	def := &Definition{path: path, files: files}
	for _, fd := range files {
		def.services = append(def.services, fd.GetServices()...)
	}

	logger.Debug("loaded proto definition",
		slog.String("path", path),
		slog.Int("files", len(files)),
		slog.Int("services", len(def.services)),
	)
	return def, nil
}

func parseProto(path string, importPaths []string) ([]*desc.FileDescriptor, error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	parser := protoparse.Parser{
		ImportPaths: append([]string{dir}, importPaths...),
	}
	fds, err := parser.ParseFiles(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidProto, path, err)
	}
	return fds, nil
}

func loadDescriptorSet(path string) ([]*desc.FileDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidProto, err)
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %s is not a descriptor set: %v", apperrors.ErrInvalidProto, path, err)
	}

	byName, err := desc.CreateFileDescriptorsFromSet(&set)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidProto, path, err)
	}

	// Keep the declaration order of the set.
	files := make([]*desc.FileDescriptor, 0, len(set.GetFile()))
	for _, f := range set.GetFile() {
		if fd, ok := byName[f.GetName()]; ok {
			files = append(files, fd)
		}
	}
	return files, nil
}

// ServiceNames returns the simple names of all services in declaration order.
func (d *Definition) ServiceNames() []string {
	names := make([]string, 0, len(d.services))
	for _, sd := range d.services {
		names = append(names, sd.GetName())
	}
	return names
}

// Service selects a service by simple or fully-qualified name. An empty
// name selects the first declared service.
func (d *Definition) Service(name string) (*Service, error) {
	if len(d.services) == 0 {
		return nil, fmt.Errorf("%w: %s declares no services", apperrors.ErrInvalidProto, d.path)
	}
	if name == "" {
		return newService(d.services[0]), nil
	}
	for _, sd := range d.services {
		if sd.GetName() == name || sd.GetFullyQualifiedName() == name {
			return newService(sd), nil
		}
	}
	return nil, apperrors.NotFoundError{Kind: apperrors.ErrServiceNotFound, Name: name}
}

// MethodNames returns the method names of the named service.
func (d *Definition) MethodNames(service string) ([]string, error) {
	svc, err := d.Service(service)
	if err != nil {
		return nil, err
	}
	return svc.MethodNames(), nil
}
