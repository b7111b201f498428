package format_test

import (
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jrschumacher/granc-go/internal/format"
	"github.com/jrschumacher/granc-go/internal/introspect"
	"github.com/jrschumacher/granc-go/internal/pool"
)

func TestText_RendersServiceAndMessage(t *testing.T) {
	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("echo.proto"),
		Package: proto.String("echo"),
		Syntax:  proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("EchoService"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("UnaryEcho"),
				InputType:  proto.String(".echo.EchoRequest"),
				OutputType: proto.String(".echo.EchoResponse"),
			}},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("EchoRequest")},
			{Name: proto.String("EchoResponse")},
		},
	}
	p, err := pool.New(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{fd}})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}

	svc, err := introspect.Describe(p, "echo.EchoService")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	text, err := format.Text(svc)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(text, "service EchoService") {
		t.Fatalf("expected rendered text to contain service declaration, got:\n%s", text)
	}
	if !strings.Contains(text, "UnaryEcho") {
		t.Fatalf("expected rendered text to contain method name, got:\n%s", text)
	}
}
