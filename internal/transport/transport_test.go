package transport_test

import (
	"context"
	"encoding/json"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jrschumacher/granc-go/internal/grancerr"
	"github.com/jrschumacher/granc-go/internal/pool"
	"github.com/jrschumacher/granc-go/internal/transport"
)

func echoPool(t *testing.T) *pool.Pool {
	t.Helper()
	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("echo.proto"),
		Package: proto.String("echo"),
		Syntax:  proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("EchoService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String("UnaryEcho"),
					InputType:  proto.String(".echo.EchoRequest"),
					OutputType: proto.String(".echo.EchoResponse"),
				},
				{
					Name:            proto.String("ClientStreamingEcho"),
					InputType:       proto.String(".echo.EchoRequest"),
					OutputType:      proto.String(".echo.EchoResponse"),
					ClientStreaming: proto.Bool(true),
				},
			},
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
	return p
}

// TestDispatch_RejectsObjectBodyForStreamingMethod exercises spec §4.4's
// "Array-to-stream" pre-flight validation: a client-streaming method given a
// JSON object body must fail before any network activity, with no stub
// required.
func TestDispatch_RejectsObjectBodyForStreamingMethod(t *testing.T) {
	p := echoPool(t)
	md, err := p.Method("echo.EchoService", "ClientStreamingEcho")
	if err != nil {
		t.Fatalf("Method: %v", err)
	}

	_, err = transport.Dispatch(context.Background(), nil, md, transport.Request{
		Service: "echo.EchoService",
		Method:  "ClientStreamingEcho",
		Body:    json.RawMessage(`{"message":"hi"}`),
	})
	if err == nil {
		t.Fatal("expected error for object body on a client-streaming method")
	}
	if _, ok := err.(*grancerr.InputShapeError); !ok {
		t.Fatalf("expected *grancerr.InputShapeError, got %T", err)
	}
}

func TestDispatch_RejectsArrayBodyForUnaryMethod(t *testing.T) {
	p := echoPool(t)
	md, err := p.Method("echo.EchoService", "UnaryEcho")
	if err != nil {
		t.Fatalf("Method: %v", err)
	}

	_, err = transport.Dispatch(context.Background(), nil, md, transport.Request{
		Service: "echo.EchoService",
		Method:  "UnaryEcho",
		Body:    json.RawMessage(`[{"message":"hi"}]`),
	})
	if err == nil {
		t.Fatal("expected error for array body on a unary method")
	}
	if _, ok := err.(*grancerr.InputShapeError); !ok {
		t.Fatalf("expected *grancerr.InputShapeError, got %T", err)
	}
}

func TestDispatch_RejectsInvalidMetadataKey(t *testing.T) {
	p := echoPool(t)
	md, err := p.Method("echo.EchoService", "UnaryEcho")
	if err != nil {
		t.Fatalf("Method: %v", err)
	}

	_, err = transport.Dispatch(context.Background(), nil, md, transport.Request{
		Service: "echo.EchoService",
		Method:  "UnaryEcho",
		Body:    json.RawMessage(`{}`),
		Headers: []transport.KV{{Key: "Invalid Key!", Value: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for an invalid metadata key")
	}
	if _, ok := err.(*grancerr.MetadataShapeError); !ok {
		t.Fatalf("expected *grancerr.MetadataShapeError, got %T", err)
	}
}

func TestDispatch_RejectsNonBase64BinValue(t *testing.T) {
	p := echoPool(t)
	md, err := p.Method("echo.EchoService", "UnaryEcho")
	if err != nil {
		t.Fatalf("Method: %v", err)
	}

	_, err = transport.Dispatch(context.Background(), nil, md, transport.Request{
		Service: "echo.EchoService",
		Method:  "UnaryEcho",
		Body:    json.RawMessage(`{}`),
		Headers: []transport.KV{{Key: "trace-bin", Value: "not valid base64!!"}},
	})
	if err == nil {
		t.Fatal("expected error for non-base64 -bin metadata value")
	}
}

