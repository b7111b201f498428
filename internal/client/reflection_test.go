package client_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"

	"github.com/jrschumacher/granc-go/internal/client"
	"github.com/jrschumacher/granc-go/internal/echoservice"
	"github.com/jrschumacher/granc-go/internal/transport"
)

func startEchoServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := grpc.NewServer()
	if err := echoservice.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go func() {
		if err := s.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			t.Logf("serve error: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)
	return lis.Addr().String(), s.Stop
}

func TestReflectionClient_ListServicesDescribeAndDynamic(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	c, err := client.Dial(context.Background(), addr, client.WithInsecure(), client.WithDialTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	services, err := c.ListServices(context.Background())
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(services) != 1 || services[0] != "echo.EchoService" {
		t.Fatalf("unexpected services %v", services)
	}

	d, err := c.Describe(context.Background(), "echo.EchoService")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if d.FullName() != "echo.EchoService" {
		t.Fatalf("unexpected FullName %q", d.FullName())
	}

	if _, err := c.Describe(context.Background(), "echo.DoesNotExist"); err == nil {
		t.Fatal("expected error describing an unknown symbol")
	}

	resp, err := c.Dynamic(context.Background(), requestFor("hello"))
	if err != nil {
		t.Fatalf("Dynamic: %v", err)
	}
	assertEchoed(t, resp)
}

func TestReflectionClient_WithPoolTransition(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	c, err := client.Dial(context.Background(), addr, client.WithInsecure())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	fdset, err := echoservice.FileDescriptorSet()
	if err != nil {
		t.Fatalf("FileDescriptorSet: %v", err)
	}
	raw, err := proto.Marshal(fdset)
	if err != nil {
		t.Fatalf("marshal fdset: %v", err)
	}

	pooled, err := c.WithPool(raw)
	if err != nil {
		t.Fatalf("WithPool: %v", err)
	}
	defer pooled.Close()

	resp, err := pooled.Dynamic(context.Background(), requestFor("pooled"))
	if err != nil {
		t.Fatalf("Dynamic: %v", err)
	}
	assertEchoed(t, resp)
}

func TestDial_NonReflectionServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := grpc.NewServer() // no services, no reflection registered
	go s.Serve(lis)
	defer s.Stop()
	time.Sleep(100 * time.Millisecond)

	c, err := client.Dial(context.Background(), lis.Addr().String(), client.WithInsecure())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.ListServices(context.Background()); err == nil {
		t.Fatal("expected ListServices to fail against a server with no reflection support")
	}
}

func requestFor(message string) transport.Request {
	body, _ := json.Marshal(map[string]string{"message": message})
	return transport.Request{Service: "echo.EchoService", Method: "UnaryEcho", Body: body}
}

func assertEchoed(t *testing.T, resp transport.Response) {
	t.Helper()
	if resp.One.Status != nil {
		t.Fatalf("unexpected rpc error: %v", resp.One.Status.Err())
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.One.JSON, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out.Message == "" {
		t.Fatal("expected a non-empty echoed message")
	}
}
