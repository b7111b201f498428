// Package reflectclient implements the Reflection Resolver: driving the
// gRPC Server Reflection bidirectional stream to fetch the file containing
// a symbol and recursively its import closure, per spec §4.3.
//
// The closure algorithm (the in-flight counter, the collected/requested
// maps, the termination rule) is ported near-literally from
// original_source/granc-core/src/reflection/client.rs's collect_descriptors/
// process_descriptor_batch/queue_dependencies, re-expressed with a
// dedicated sender goroutine feeding a bounded channel instead of an async
// mpsc channel, since a Go gRPC client stream's Send and Recv halves may
// safely be driven concurrently by two goroutines (but not two Sends or two
// Recvs concurrently) — matching spec §5's "single producer... no
// parallelism inside a single reflection session."
package reflectclient

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jrschumacher/granc-go/internal/grancerr"
)

// sendQueueCapacity matches spec §5's explicit "bounded queue of size 100
// between the algorithm and the wire," itself carried over from the Rust
// original's mpsc::channel(100).
const sendQueueCapacity = 100

// emptyHost is sent as the reflection request's host field. The protocol's
// host field has no documented semantics and no known server implementation
// enforces it, so this core never populates it — ported from
// original_source/granc-core/src/reflection/client.rs's EMPTY_HOST,
// resolving spec §9's first Open Question.
const emptyHost = ""

// Resolver drives the Server Reflection protocol against one gRPC
// connection. It holds no descriptor-fetching state between calls: each
// FileDescriptorSetForSymbol call opens its own stream and closure.
type Resolver struct {
	client grpc_reflection_v1alpha.ServerReflectionClient
}

// New builds a Resolver over an existing connection.
func New(conn grpc.ClientConnInterface) *Resolver {
	return &Resolver{client: grpc_reflection_v1alpha.NewServerReflectionClient(conn)}
}

// ListServices sends a single ListServices request and returns the fully
// qualified name of every service the server exposes, per spec §4.3's
// "degenerate single-request/single-response use of the same stream."
func (r *Resolver) ListServices(ctx context.Context) ([]string, error) {
	stream, err := r.client.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, &grancerr.ReflectionResolveError{Kind: grancerr.ServerStreamInitFailed, Cause: err}
	}
	defer stream.CloseSend()

	req := &grpc_reflection_v1alpha.ServerReflectionRequest{
		Host:           emptyHost,
		MessageRequest: &grpc_reflection_v1alpha.ServerReflectionRequest_ListServices{ListServices: ""},
	}
	if err := stream.Send(req); err != nil {
		return nil, &grancerr.ReflectionResolveError{Kind: grancerr.SendFailed, Cause: err}
	}

	resp, err := stream.Recv()
	if err != nil {
		if status.Code(err) == codes.Unimplemented {
			return nil, &grancerr.ReflectionResolveError{Kind: grancerr.ServerStreamInitFailed, Cause: err}
		}
		return nil, &grancerr.ReflectionResolveError{Kind: grancerr.ServerStreamFailure, Cause: err}
	}

	switch m := resp.MessageResponse.(type) {
	case *grpc_reflection_v1alpha.ServerReflectionResponse_ListServicesResponse:
		names := make([]string, 0, len(m.ListServicesResponse.Service))
		for _, svc := range m.ListServicesResponse.Service {
			names = append(names, svc.Name)
		}
		return names, nil
	case *grpc_reflection_v1alpha.ServerReflectionResponse_ErrorResponse:
		return nil, &grancerr.ReflectionResolveError{
			Kind:       grancerr.ServerError,
			ServerCode: m.ErrorResponse.ErrorCode,
			ServerMsg:  m.ErrorResponse.ErrorMessage,
		}
	default:
		return nil, &grancerr.ReflectionResolveError{Kind: grancerr.UnexpectedResponseType, Description: "expected ListServicesResponse"}
	}
}

// FileDescriptorSetForSymbol resolves symbol to the file that defines it
// and fetches that file's complete transitive import closure, returning a
// FileDescriptorSet that is closed and ready to build a Descriptor Pool
// from.
func (r *Resolver) FileDescriptorSetForSymbol(ctx context.Context, symbol string) (*descriptorpb.FileDescriptorSet, error) {
	stream, err := r.client.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, &grancerr.ReflectionResolveError{Kind: grancerr.ServerStreamInitFailed, Cause: err}
	}

	sendCh := make(chan *grpc_reflection_v1alpha.ServerReflectionRequest, sendQueueCapacity)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		for {
			select {
			case req, ok := <-sendCh:
				if !ok {
					return stream.CloseSend()
				}
				if err := stream.Send(req); err != nil {
					return &grancerr.ReflectionResolveError{Kind: grancerr.SendFailed, Cause: err}
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	sendCh <- &grpc_reflection_v1alpha.ServerReflectionRequest{
		Host:           emptyHost,
		MessageRequest: &grpc_reflection_v1alpha.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: symbol},
	}

	collected, collectErr := collectDescriptors(stream, sendCh)
	close(sendCh)

	if sendErr := group.Wait(); sendErr != nil && collectErr == nil {
		collectErr = sendErr
	}
	if collectErr != nil {
		return nil, collectErr
	}

	out := &descriptorpb.FileDescriptorSet{File: make([]*descriptorpb.FileDescriptorProto, 0, len(collected))}
	for _, fd := range collected {
		out.File = append(out.File, fd)
	}
	return out, nil
}

// collectDescriptors implements the exact closure algorithm described in
// spec §4.3 steps 3-4, ported from the Rust original's collect_descriptors.
func collectDescriptors(
	stream grpc_reflection_v1alpha.ServerReflection_ServerReflectionInfoClient,
	sendCh chan<- *grpc_reflection_v1alpha.ServerReflectionRequest,
) (map[string]*descriptorpb.FileDescriptorProto, error) {
	inFlight := 1
	collected := make(map[string]*descriptorpb.FileDescriptorProto)
	requested := make(map[string]struct{})

	for inFlight > 0 {
		resp, err := stream.Recv()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil, &grancerr.ReflectionResolveError{Kind: grancerr.StreamClosed, Cause: err}
			case status.Code(err) == codes.Unimplemented:
				return nil, &grancerr.ReflectionResolveError{Kind: grancerr.ServerStreamInitFailed, Cause: err}
			default:
				return nil, &grancerr.ReflectionResolveError{Kind: grancerr.ServerStreamFailure, Cause: err}
			}
		}
		inFlight--

		switch m := resp.MessageResponse.(type) {
		case *grpc_reflection_v1alpha.ServerReflectionResponse_FileDescriptorResponse:
			sent, err := processDescriptorBatch(m.FileDescriptorResponse.FileDescriptorProto, collected, requested, sendCh)
			if err != nil {
				return nil, err
			}
			inFlight += sent
		case *grpc_reflection_v1alpha.ServerReflectionResponse_ErrorResponse:
			return nil, &grancerr.ReflectionResolveError{
				Kind:       grancerr.ServerError,
				ServerCode: m.ErrorResponse.ErrorCode,
				ServerMsg:  m.ErrorResponse.ErrorMessage,
			}
		default:
			return nil, &grancerr.ReflectionResolveError{Kind: grancerr.UnexpectedResponseType, Description: "expected FileDescriptorResponse"}
		}
	}

	return collected, nil
}

// processDescriptorBatch decodes each raw FileDescriptorProto in one
// response batch, skipping files already collected, and queues any
// not-yet-seen dependency of a newly seen file for fetch. It returns how
// many new requests were enqueued, which the caller adds to in_flight.
func processDescriptorBatch(
	rawProtos [][]byte,
	collected map[string]*descriptorpb.FileDescriptorProto,
	requested map[string]struct{},
	sendCh chan<- *grpc_reflection_v1alpha.ServerReflectionRequest,
) (int, error) {
	sent := 0
	for _, raw := range rawProtos {
		fd := &descriptorpb.FileDescriptorProto{}
		if err := proto.Unmarshal(raw, fd); err != nil {
			return 0, &grancerr.ReflectionResolveError{Kind: grancerr.DecodeError, Cause: err}
		}

		name := fd.GetName()
		if _, ok := collected[name]; ok {
			continue
		}

		n, err := queueDependencies(fd, collected, requested, sendCh)
		if err != nil {
			return 0, err
		}
		sent += n

		collected[name] = fd
	}
	return sent, nil
}

// queueDependencies sends a FileByFilename request for every dependency of
// fd that has neither already been collected nor already been requested,
// de-duplicating dependency fetches even when imports form a DAG with
// shared ancestors.
func queueDependencies(
	fd *descriptorpb.FileDescriptorProto,
	collected map[string]*descriptorpb.FileDescriptorProto,
	requested map[string]struct{},
	sendCh chan<- *grpc_reflection_v1alpha.ServerReflectionRequest,
) (int, error) {
	count := 0
	for _, dep := range fd.GetDependency() {
		if _, done := collected[dep]; done {
			continue
		}
		if _, already := requested[dep]; already {
			continue
		}
		requested[dep] = struct{}{}

		req := &grpc_reflection_v1alpha.ServerReflectionRequest{
			Host:           emptyHost,
			MessageRequest: &grpc_reflection_v1alpha.ServerReflectionRequest_FileByFilename{FileByFilename: dep},
		}
		select {
		case sendCh <- req:
			count++
		default:
			return 0, &grancerr.ReflectionResolveError{Kind: grancerr.SendFailed}
		}
	}
	return count, nil
}
