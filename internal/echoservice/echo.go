// Package echoservice is the "echo" test fixture named throughout spec §8:
// a four-method service (Unary/ServerStreaming/ClientStreaming/
// BidirectionalEcho) all carrying `message: string`, used to exercise the
// dynamic client end to end without any compiled stub of its own — its
// schema is built at init time from an embedded .proto, parsed with
// protoparse.Parser, and its handlers operate on dynamic messages, exactly
// like a real third-party server the dynamic client knows nothing about in
// advance.
//
// Grounded on the teacher's internal/elizaservice/handler.go for the
// handler shape (one receiver implementing a unary method, a client/server
// stream, and a bidi stream) and internal/registry/registry.go's
// NewFromParser for protoparse-based descriptor construction — used here
// instead of buf-generated stubs, which the teacher's own elizaservice
// needs but which are not present in the retrieved tree (see DESIGN.md).
package echoservice

import (
	"context"
	"fmt"
	"io"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/descriptorpb"
)

const protoSource = `
syntax = "proto3";

package echo;

service EchoService {
  rpc UnaryEcho(EchoRequest) returns (EchoResponse);
  rpc ServerStreamingEcho(EchoRequest) returns (stream EchoResponse);
  rpc ClientStreamingEcho(stream EchoRequest) returns (EchoResponse);
  rpc BidirectionalEcho(stream EchoRequest) returns (stream EchoResponse);
}

message EchoRequest {
  string message = 1;
}

message EchoResponse {
  string message = 1;
}
`

const protoFilename = "echo.proto"

// Schema parses the embedded echo.proto and returns its file descriptor.
// Exercised both by Register (to build the server) and by tests that want
// the raw FileDescriptorSet without going through reflection.
func Schema() (*desc.FileDescriptor, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{protoFilename: protoSource}),
	}
	fds, err := parser.ParseFiles(protoFilename)
	if err != nil {
		return nil, fmt.Errorf("parse embedded echo.proto: %w", err)
	}
	return fds[0], nil
}

// FileDescriptorSet returns the wire form of Schema, suitable for the
// Offline and WithPool client states in tests.
func FileDescriptorSet() (*descriptorpb.FileDescriptorSet, error) {
	fd, err := Schema()
	if err != nil {
		return nil, err
	}
	return &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{fd.AsFileDescriptorProto()},
	}, nil
}

// handler implements the four echo RPCs against dynamic messages. Message
// field access goes through GetFieldByName/SetFieldByName rather than
// generated accessors, since there is no generated type for "message".
type handler struct {
	fd *desc.FileDescriptor
}

func (h *handler) unary(req *dynamic.Message) (*dynamic.Message, error) {
	resp := dynamic.NewMessage(h.fd.FindMessage("echo.EchoResponse"))
	resp.SetFieldByName("message", req.GetFieldByName("message"))
	return resp, nil
}

func (h *handler) serverStream(req *dynamic.Message, send func(*dynamic.Message) error) error {
	msg, _ := req.GetFieldByName("message").(string)
	for i := 0; i < 3; i++ {
		resp := dynamic.NewMessage(h.fd.FindMessage("echo.EchoResponse"))
		resp.SetFieldByName("message", fmt.Sprintf("%s - seq %d", msg, i))
		if err := send(resp); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) clientStream(recv func() (*dynamic.Message, error)) (*dynamic.Message, error) {
	var combined string
	for {
		req, err := recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		part, _ := req.GetFieldByName("message").(string)
		combined += part
	}
	resp := dynamic.NewMessage(h.fd.FindMessage("echo.EchoResponse"))
	resp.SetFieldByName("message", combined)
	return resp, nil
}

func (h *handler) bidiStream(recv func() (*dynamic.Message, error), send func(*dynamic.Message) error) error {
	for {
		req, err := recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		msg, _ := req.GetFieldByName("message").(string)
		resp := dynamic.NewMessage(h.fd.FindMessage("echo.EchoResponse"))
		resp.SetFieldByName("message", "echo: "+msg)
		if err := send(resp); err != nil {
			return err
		}
	}
}

// Register builds the echo service's descriptor-driven grpc.ServiceDesc
// and registers it (plus the Server Reflection service backing it) on s.
// There is no generated stub anywhere in this path: method dispatch is
// wired directly off the parsed descriptor, which is the point of this
// fixture — it is exactly as opaque to the dynamic client as a real
// third-party server would be.
func Register(s *grpc.Server) error {
	fd, err := Schema()
	if err != nil {
		return err
	}
	svc := fd.FindService("echo.EchoService")
	if svc == nil {
		return fmt.Errorf("echo.EchoService not found in parsed descriptor")
	}

	h := &handler{fd: fd}
	sd := &grpc.ServiceDesc{
		ServiceName: svc.GetFullyQualifiedName(),
		HandlerType: (*any)(nil),
		Metadata:    protoFilename,
	}

	for _, md := range svc.GetMethods() {
		md := md
		switch {
		case !md.IsClientStreaming() && !md.IsServerStreaming():
			sd.Methods = append(sd.Methods, grpc.MethodDesc{
				MethodName: md.GetName(),
				Handler:    unaryHandler(h, md),
			})
		case md.IsServerStreaming() && !md.IsClientStreaming():
			sd.Streams = append(sd.Streams, grpc.StreamDesc{
				StreamName:    md.GetName(),
				ServerStreams: true,
				Handler:       serverStreamHandler(h, md),
			})
		case md.IsClientStreaming() && !md.IsServerStreaming():
			sd.Streams = append(sd.Streams, grpc.StreamDesc{
				StreamName:    md.GetName(),
				ClientStreams: true,
				Handler:       clientStreamHandler(h, md),
			})
		default:
			sd.Streams = append(sd.Streams, grpc.StreamDesc{
				StreamName:    md.GetName(),
				ClientStreams: true,
				ServerStreams: true,
				Handler:       bidiStreamHandler(h, md),
			})
		}
	}

	s.RegisterService(sd, h)
	return registerReflection(s, fd)
}

func unaryHandler(h *handler, md *desc.MethodDescriptor) grpc.MethodHandler {
	return func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := dynamic.NewMessage(md.GetInputType())
		if err := dec(req); err != nil {
			return nil, err
		}
		return h.unary(req)
	}
}

func serverStreamHandler(h *handler, md *desc.MethodDescriptor) grpc.StreamHandler {
	return func(_ any, stream grpc.ServerStream) error {
		req := dynamic.NewMessage(md.GetInputType())
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		return h.serverStream(req, func(m *dynamic.Message) error { return stream.SendMsg(m) })
	}
}

func clientStreamHandler(h *handler, md *desc.MethodDescriptor) grpc.StreamHandler {
	return func(_ any, stream grpc.ServerStream) error {
		recv := func() (*dynamic.Message, error) {
			req := dynamic.NewMessage(md.GetInputType())
			if err := stream.RecvMsg(req); err != nil {
				return nil, err
			}
			return req, nil
		}
		resp, err := h.clientStream(recv)
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}
}

func bidiStreamHandler(h *handler, md *desc.MethodDescriptor) grpc.StreamHandler {
	return func(_ any, stream grpc.ServerStream) error {
		recv := func() (*dynamic.Message, error) {
			req := dynamic.NewMessage(md.GetInputType())
			if err := stream.RecvMsg(req); err != nil {
				return nil, err
			}
			return req, nil
		}
		return h.bidiStream(recv, func(m *dynamic.Message) error { return stream.SendMsg(m) })
	}
}

