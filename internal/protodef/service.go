package protodef

import (
	"github.com/jhump/protoreflect/desc"

	"github.com/shhac/gcall/internal/domain"
	apperrors "github.com/shhac/gcall/internal/errors"
)

// Service is a selected service with its method table.
type Service struct {
	domain.Service
	methods map[string]domain.Method
}

func newService(sd *desc.ServiceDescriptor) *Service {
	svc := &Service{
		Service: domain.Service{
			Name:     sd.GetName(),
			FullName: sd.GetFullyQualifiedName(),
		},
		methods: make(map[string]domain.Method, len(sd.GetMethods())),
	}

	for _, md := range sd.GetMethods() {
		m := toDomainMethod(md)
		svc.Methods = append(svc.Methods, m)
		svc.methods[m.Name] = m
	}
	return svc
}

func toDomainMethod(md *desc.MethodDescriptor) domain.Method {
	return domain.Method{
		Name:           md.GetName(),
		FullName:       md.GetFullyQualifiedName(),
		InputType:      md.GetInputType().GetName(),
		OutputType:     md.GetOutputType().GetName(),
		IsClientStream: md.IsClientStreaming(),
		IsServerStream: md.IsServerStreaming(),
		Descriptor:     md,
	}
}

// MethodNames returns the method names in declaration order.
func (s *Service) MethodNames() []string {
	names := make([]string, 0, len(s.Methods))
	for _, m := range s.Methods {
		names = append(names, m.Name)
	}
	return names
}

// Method resolves a method by its declared name.
func (s *Service) Method(name string) (domain.Method, error) {
	if name == "" {
		return domain.Method{}, apperrors.ErrMethodRequired
	}
	m, ok := s.methods[name]
	if !ok {
		return domain.Method{}, apperrors.NotFoundError{
			Kind:    apperrors.ErrMethodNotFound,
			Name:    name,
			Service: s.Name,
		}
	}
	return m, nil
}
