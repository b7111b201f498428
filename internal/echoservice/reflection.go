package echoservice

import (
	"io"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// reflectionServer is a minimal, hand-rolled implementation of the Server
// Reflection protocol backed directly by a parsed *desc.FileDescriptor,
// rather than google.golang.org/grpc/reflection's standard Register (which
// resolves against protoregistry.GlobalFiles — the generated-stub registry
// this fixture deliberately has none of). It answers exactly the three
// request kinds the Reflection Resolver in internal/reflectclient sends:
// ListServices, FileContainingSymbol, FileByFilename.
type reflectionServer struct {
	grpc_reflection_v1alpha.UnimplementedServerReflectionServer

	services []string
	symbols  map[string]string // fully-qualified symbol -> defining filename
	files    map[string]*descriptorpb.FileDescriptorProto
}

// registerReflection walks fd's import closure, indexes every service,
// message, and enum it declares by fully-qualified name, and registers the
// resulting reflectionServer on s.
func registerReflection(s *grpc.Server, fd *desc.FileDescriptor) error {
	rs := &reflectionServer{
		symbols: map[string]string{},
		files:   map[string]*descriptorpb.FileDescriptorProto{},
	}
	rs.indexFile(fd, map[string]struct{}{})
	grpc_reflection_v1alpha.RegisterServerReflectionServer(s, rs)
	return nil
}

func (s *reflectionServer) indexFile(fd *desc.FileDescriptor, seen map[string]struct{}) {
	if _, ok := seen[fd.GetName()]; ok {
		return
	}
	seen[fd.GetName()] = struct{}{}
	s.files[fd.GetName()] = fd.AsFileDescriptorProto()

	for _, svc := range fd.GetServices() {
		s.services = append(s.services, svc.GetFullyQualifiedName())
		s.symbols[svc.GetFullyQualifiedName()] = fd.GetName()
	}
	for _, msg := range fd.GetMessageTypes() {
		s.indexMessage(msg, fd.GetName())
	}
	for _, enum := range fd.GetEnumTypes() {
		s.symbols[enum.GetFullyQualifiedName()] = fd.GetName()
	}
	for _, dep := range fd.GetDependencies() {
		s.indexFile(dep, seen)
	}
}

func (s *reflectionServer) indexMessage(md *desc.MessageDescriptor, filename string) {
	s.symbols[md.GetFullyQualifiedName()] = filename
	for _, nested := range md.GetNestedMessageTypes() {
		s.indexMessage(nested, filename)
	}
	for _, enum := range md.GetNestedEnumTypes() {
		s.symbols[enum.GetFullyQualifiedName()] = filename
	}
}

func (s *reflectionServer) ServerReflectionInfo(stream grpc_reflection_v1alpha.ServerReflection_ServerReflectionInfoServer) error {
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := stream.Send(s.handle(req)); err != nil {
			return err
		}
	}
}

func (s *reflectionServer) handle(req *grpc_reflection_v1alpha.ServerReflectionRequest) *grpc_reflection_v1alpha.ServerReflectionResponse {
	switch mr := req.MessageRequest.(type) {
	case *grpc_reflection_v1alpha.ServerReflectionRequest_ListServices:
		svcs := make([]*grpc_reflection_v1alpha.ServiceResponse, 0, len(s.services))
		for _, name := range s.services {
			svcs = append(svcs, &grpc_reflection_v1alpha.ServiceResponse{Name: name})
		}
		return &grpc_reflection_v1alpha.ServerReflectionResponse{
			MessageResponse: &grpc_reflection_v1alpha.ServerReflectionResponse_ListServicesResponse{
				ListServicesResponse: &grpc_reflection_v1alpha.ListServiceResponse{Service: svcs},
			},
		}
	case *grpc_reflection_v1alpha.ServerReflectionRequest_FileContainingSymbol:
		filename, ok := s.symbols[mr.FileContainingSymbol]
		if !ok {
			return s.notFound("symbol not found: " + mr.FileContainingSymbol)
		}
		return s.fileResponse(filename)
	case *grpc_reflection_v1alpha.ServerReflectionRequest_FileByFilename:
		if _, ok := s.files[mr.FileByFilename]; !ok {
			return s.notFound("file not found: " + mr.FileByFilename)
		}
		return s.fileResponse(mr.FileByFilename)
	default:
		return &grpc_reflection_v1alpha.ServerReflectionResponse{
			MessageResponse: &grpc_reflection_v1alpha.ServerReflectionResponse_ErrorResponse{
				ErrorResponse: &grpc_reflection_v1alpha.ErrorResponse{
					ErrorCode:    int32(codes.Unimplemented),
					ErrorMessage: "unsupported reflection request kind",
				},
			},
		}
	}
}

func (s *reflectionServer) fileResponse(filename string) *grpc_reflection_v1alpha.ServerReflectionResponse {
	fd := s.files[filename]
	raw, err := proto.Marshal(fd)
	if err != nil {
		return s.notFound("failed to marshal " + filename)
	}
	return &grpc_reflection_v1alpha.ServerReflectionResponse{
		MessageResponse: &grpc_reflection_v1alpha.ServerReflectionResponse_FileDescriptorResponse{
			FileDescriptorResponse: &grpc_reflection_v1alpha.FileDescriptorResponse{
				FileDescriptorProto: [][]byte{raw},
			},
		},
	}
}

func (s *reflectionServer) notFound(msg string) *grpc_reflection_v1alpha.ServerReflectionResponse {
	return &grpc_reflection_v1alpha.ServerReflectionResponse{
		MessageResponse: &grpc_reflection_v1alpha.ServerReflectionResponse_ErrorResponse{
			ErrorResponse: &grpc_reflection_v1alpha.ErrorResponse{
				ErrorCode:    int32(codes.NotFound),
				ErrorMessage: msg,
			},
		},
	}
}
