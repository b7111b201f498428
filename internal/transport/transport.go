// Package transport implements the RPC Transport: for a resolved method
// descriptor, a JSON payload (or payload stream), and headers, perform the
// corresponding one of the four gRPC dispatch modes, per spec §4.4.
//
// Grounded on other_examples' grpcurl.go (InvokeRPC's dispatch on
// IsClientStreaming()/IsServerStreaming(), MetadataFromHeaders's -bin
// handling) and original_source/granc-core/src/grpc/client.rs (the
// unary/server_streaming/client_streaming/bidirectional_streaming four
// methods and their outer/inner Result<Result<...>> shape, reproduced here
// as a Response whose Status field carries the RPC-level outcome while a
// non-nil error return is a pre-call validation or connect failure).
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/golang/protobuf/proto" //nolint:staticcheck // matches dynamic.Message's implemented interface
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jrschumacher/granc-go/internal/codec"
	"github.com/jrschumacher/granc-go/internal/grancerr"
)

// KV is a single metadata header pair, in caller order.
type KV struct {
	Key   string
	Value string
}

// Request is the Dynamic Request of spec §3: a method to invoke, a JSON
// body (an object for unary/server-streaming, an array for
// client-streaming/bidi), and headers.
type Request struct {
	Service string
	Method  string
	Body    json.RawMessage
	Headers []KV
}

// Result is one message outcome: exactly one of JSON or Status is set.
type Result struct {
	JSON   json.RawMessage
	Status *status.Status
}

// ResponseKind tags whether a Response carries a single result or a
// sequence of them.
type ResponseKind int

const (
	// Unary responses come from unary and client-streaming methods.
	Unary ResponseKind = iota
	// Streaming responses come from server-streaming and bidi methods.
	Streaming
)

// Response is the Dynamic Response of spec §3. For Kind == Unary, One is
// populated. For Kind == Streaming, Many is populated (possibly empty) and
// StreamStatus carries an early stream-opening failure, if any.
type Response struct {
	Kind         ResponseKind
	One          Result
	Many         []Result
	StreamStatus *status.Status
}

// metadataKeyPattern matches the ASCII token grammar gRPC requires for
// metadata keys (RFC 7230 token, restricted to the subset gRPC accepts:
// lowercase letters, digits, '-', '_', '.').
var metadataKeyPattern = regexp.MustCompile(`^[0-9a-z_.-]+$`)

// Dispatch performs the RPC described by the method descriptor md (the
// method req.Method of service req.Service), over stub, choosing one of the four modes based on md's
// streaming flags, per spec §4.4's dispatch table.
func Dispatch(ctx context.Context, stub *grpcdynamic.Stub, md *desc.MethodDescriptor, req Request) (Response, error) {
	ctx, err := attachMetadata(ctx, req.Headers)
	if err != nil {
		return Response{}, err
	}

	c := codec.New(md.GetInputType(), md.GetOutputType())

	switch {
	case !md.IsClientStreaming() && !md.IsServerStreaming():
		return dispatchUnary(ctx, stub, md, c, req.Body)
	case !md.IsClientStreaming() && md.IsServerStreaming():
		return dispatchServerStream(ctx, stub, md, c, req.Body)
	case md.IsClientStreaming() && !md.IsServerStreaming():
		return dispatchClientStream(ctx, stub, md, c, req.Body)
	default:
		return dispatchBidiStream(ctx, stub, md, c, req.Body)
	}
}

func dispatchUnary(ctx context.Context, stub *grpcdynamic.Stub, md *desc.MethodDescriptor, c *codec.Codec, body json.RawMessage) (Response, error) {
	if err := requireObjectBody(md, body); err != nil {
		return Response{}, err
	}
	reqMsg, err := c.EncodeMessage(body)
	if err != nil {
		return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
	}

	respMsg, err := stub.InvokeRpc(ctx, md, reqMsg)
	if err != nil {
		return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
	}

	out, err := decodeDynamic(c, respMsg)
	if err != nil {
		return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
	}
	return Response{Kind: Unary, One: Result{JSON: out}}, nil
}

func dispatchServerStream(ctx context.Context, stub *grpcdynamic.Stub, md *desc.MethodDescriptor, c *codec.Codec, body json.RawMessage) (Response, error) {
	if err := requireObjectBody(md, body); err != nil {
		return Response{}, err
	}
	reqMsg, err := c.EncodeMessage(body)
	if err != nil {
		return Response{Kind: Streaming, StreamStatus: statusFromError(err)}, nil
	}

	stream, err := stub.InvokeRpcServerStream(ctx, md, reqMsg)
	if err != nil {
		return Response{Kind: Streaming, StreamStatus: statusFromError(err)}, nil
	}

	var results []Result
	for {
		respMsg, err := stream.RecvMsg()
		if err != nil {
			if isStreamEOF(err) {
				break
			}
			results = append(results, Result{Status: statusFromError(err)})
			break
		}
		out, err := decodeDynamic(c, respMsg)
		if err != nil {
			results = append(results, Result{Status: statusFromError(err)})
			continue
		}
		results = append(results, Result{JSON: out})
	}
	return Response{Kind: Streaming, Many: results}, nil
}

func dispatchClientStream(ctx context.Context, stub *grpcdynamic.Stub, md *desc.MethodDescriptor, c *codec.Codec, body json.RawMessage) (Response, error) {
	items, err := requireArrayBody(md, body)
	if err != nil {
		return Response{}, err
	}

	stream, err := stub.InvokeRpcClientStream(ctx, md)
	if err != nil {
		return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
	}

	for _, item := range items {
		reqMsg, err := c.EncodeMessage(item)
		if err != nil {
			return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
		}
		if err := stream.SendMsg(reqMsg); err != nil {
			return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
		}
	}

	respMsg, err := stream.CloseAndReceive()
	if err != nil {
		return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
	}
	out, err := decodeDynamic(c, respMsg)
	if err != nil {
		return Response{Kind: Unary, One: Result{Status: statusFromError(err)}}, nil
	}
	return Response{Kind: Unary, One: Result{JSON: out}}, nil
}

func dispatchBidiStream(ctx context.Context, stub *grpcdynamic.Stub, md *desc.MethodDescriptor, c *codec.Codec, body json.RawMessage) (Response, error) {
	items, err := requireArrayBody(md, body)
	if err != nil {
		return Response{}, err
	}

	stream, err := stub.InvokeRpcBidiStream(ctx, md)
	if err != nil {
		return Response{Kind: Streaming, StreamStatus: statusFromError(err)}, nil
	}

	sendErrCh := make(chan error, 1)
	go func() {
		for _, item := range items {
			reqMsg, err := c.EncodeMessage(item)
			if err != nil {
				sendErrCh <- err
				return
			}
			if err := stream.SendMsg(reqMsg); err != nil {
				sendErrCh <- err
				return
			}
		}
		sendErrCh <- stream.CloseSend()
	}()

	var results []Result
	for {
		respMsg, err := stream.RecvMsg()
		if err != nil {
			if isStreamEOF(err) {
				break
			}
			results = append(results, Result{Status: statusFromError(err)})
			break
		}
		out, err := decodeDynamic(c, respMsg)
		if err != nil {
			results = append(results, Result{Status: statusFromError(err)})
			continue
		}
		results = append(results, Result{JSON: out})
	}
	if sendErr := <-sendErrCh; sendErr != nil && len(results) == 0 {
		return Response{Kind: Streaming, StreamStatus: statusFromError(sendErr)}, nil
	}
	return Response{Kind: Streaming, Many: results}, nil
}

func requireObjectBody(md *desc.MethodDescriptor, body json.RawMessage) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return &grancerr.InputShapeError{Method: md.GetFullyQualifiedName(), Reason: "unary/server-streaming methods require a JSON object body"}
	}
	return nil
}

// requireArrayBody validates that body is a JSON array before any network
// activity and returns its elements, per spec §4.4's "Array-to-stream"
// rule.
func requireArrayBody(md *desc.MethodDescriptor, body json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &grancerr.InputShapeError{Method: md.GetFullyQualifiedName(), Reason: "client-streaming/bidi methods require a JSON array body"}
	}
	return items, nil
}

// attachMetadata validates each header per spec §4.4's metadata rules and
// returns a context carrying the resulting gRPC outgoing metadata. It never
// performs network activity.
func attachMetadata(ctx context.Context, headers []KV) (context.Context, error) {
	if len(headers) == 0 {
		return ctx, nil
	}
	md := metadata.MD{}
	for _, h := range headers {
		key := strings.ToLower(h.Key)
		if !metadataKeyPattern.MatchString(key) {
			return nil, &grancerr.MetadataShapeError{Key: h.Key, IsKey: true}
		}
		value := h.Value
		if strings.HasSuffix(key, "-bin") {
			decoded, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return nil, &grancerr.MetadataShapeError{Key: h.Key, Value: h.Value, Cause: err}
			}
			value = string(decoded)
		} else if !isVisibleASCII(value) {
			return nil, &grancerr.MetadataShapeError{Key: h.Key, Value: h.Value}
		}
		md[key] = append(md[key], value)
	}
	return metadata.NewOutgoingContext(ctx, md), nil
}

func isVisibleASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			return false
		}
	}
	return true
}

func decodeDynamic(c *codec.Codec, msg proto.Message) (json.RawMessage, error) {
	dm, ok := msg.(*dynamic.Message)
	if !ok {
		return nil, status.Errorf(codes.Internal, "transport: response message has unexpected type %T", msg)
	}
	return c.DecodeMessage(dm)
}

func statusFromError(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}
	return status.New(codes.Unknown, err.Error())
}

func isStreamEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
