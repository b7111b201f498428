package introspect_test

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jrschumacher/granc-go/internal/introspect"
	"github.com/jrschumacher/granc-go/internal/pool"
)

func testPool(t *testing.T) *pool.Pool {
	t.Helper()
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
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name:  proto.String("Mode"),
			Value: []*descriptorpb.EnumValueDescriptorProto{{Name: proto.String("DEFAULT"), Number: proto.Int32(0)}},
		}},
	}
	p, err := pool.New(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{fd}})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return p
}

func TestDescribe_ResolvesEachKindInOrder(t *testing.T) {
	p := testPool(t)

	svc, err := introspect.Describe(p, "echo.EchoService")
	if err != nil {
		t.Fatalf("Describe(service): %v", err)
	}
	if _, ok := svc.(introspect.ServiceDescriptor); !ok {
		t.Fatalf("expected ServiceDescriptor, got %T", svc)
	}
	if svc.PackageName() != "echo" {
		t.Fatalf("unexpected package name %q", svc.PackageName())
	}

	msg, err := introspect.Describe(p, "echo.EchoRequest")
	if err != nil {
		t.Fatalf("Describe(message): %v", err)
	}
	if _, ok := msg.(introspect.MessageDescriptor); !ok {
		t.Fatalf("expected MessageDescriptor, got %T", msg)
	}

	en, err := introspect.Describe(p, "echo.Mode")
	if err != nil {
		t.Fatalf("Describe(enum): %v", err)
	}
	if _, ok := en.(introspect.EnumDescriptor); !ok {
		t.Fatalf("expected EnumDescriptor, got %T", en)
	}
}

func TestDescribe_NotFound(t *testing.T) {
	p := testPool(t)
	if _, err := introspect.Describe(p, "echo.DoesNotExist"); err == nil {
		t.Fatal("expected error for unresolved symbol")
	}
}

func TestListServices(t *testing.T) {
	p := testPool(t)
	names := introspect.ListServices(p)
	if len(names) != 1 || names[0] != "echo.EchoService" {
		t.Fatalf("unexpected services %v", names)
	}
}
