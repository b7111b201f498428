// Package codec implements the Wire Codec: per-call JSON⇔Protobuf
// conversion bound to an input and output message descriptor, per spec
// §4.1.
//
// Grounded on the teacher's internal/invoker/invoker.go (jsonpb.Marshaler/
// Unmarshaler paired with dynamic.Message) and
// original_source/granc-core/src/grpc/codec.rs's JsonCodec, whose encode
// path fails as an invalid-argument status and whose decode path fails as
// an internal status — reproduced here as the same status codes.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/golang/protobuf/jsonpb" //nolint:staticcheck // matches the teacher's dependency, not the newer protojson
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Codec converts between JSON values and the wire representation of
// messages conforming to In (the request schema) and Out (the response
// schema). A Codec is cheap to construct and is built fresh for every RPC,
// per spec §4.1's "instantiated per-call" guarantee.
type Codec struct {
	In  *desc.MessageDescriptor
	Out *desc.MessageDescriptor

	marshaler   jsonpb.Marshaler
	unmarshaler jsonpb.Unmarshaler
}

// New builds a Codec bound to the given input and output message
// descriptors. The decode path never emits proto3 zero values explicitly;
// canonical output omits them, matching spec §4.1's "scalar defaults are
// NOT emitted."
func New(in, out *desc.MessageDescriptor) *Codec {
	return &Codec{
		In:  in,
		Out: out,
		marshaler: jsonpb.Marshaler{
			EmitDefaults: false,
			OrigName:     false, // canonical camelCase, resolving spec §9 open question 2
		},
	}
}

// EncodeMessage interprets body as a JSON value conforming to c.In and
// returns the populated dynamic message, ready to hand to the RPC
// Transport. It fails with a codes.InvalidArgument status when body does
// not match the schema (unknown field, wrong kind, bad enum name, and so
// on), per spec §4.1's encode-operation contract.
func (c *Codec) EncodeMessage(body json.RawMessage) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(c.In)
	if err := c.unmarshaler.Unmarshal(bytes.NewReader(body), msg); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "request JSON does not match schema %s: %v", c.In.GetFullyQualifiedName(), err)
	}
	return msg, nil
}

// DecodeMessage re-emits a fully populated output message as canonical
// JSON. Wire-format corruption is surfaced by the caller (the transport
// layer) before DecodeMessage is ever reached, since grpc delivers an
// already-unmarshaled proto.Message; DecodeMessage itself only fails if
// JSON re-serialization fails, which cannot happen for a well-formed
// dynamic.Message and is reported as codes.Internal to stay consistent
// with spec §4.1's decode-operation contract.
func (c *Codec) DecodeMessage(msg *dynamic.Message) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := c.marshaler.Marshal(&buf, msg); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal response message %s to JSON: %v", c.Out.GetFullyQualifiedName(), err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// NewOutputMessage returns an empty dynamic message conforming to c.Out,
// ready to be the destination of an RPC response unmarshal.
func (c *Codec) NewOutputMessage() *dynamic.Message {
	return dynamic.NewMessage(c.Out)
}

// Marshal implements google.golang.org/grpc/encoding.Codec, serializing a
// *dynamic.Message to wire bytes. It exists so a Codec can be registered
// with a gRPC content subtype for callers that prefer that integration
// path over driving grpcdynamic.Stub directly.
func (c *Codec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(*dynamic.Message)
	if !ok {
		return nil, status.Errorf(codes.Internal, "codec: cannot marshal value of type %T", v)
	}
	return msg.Marshal()
}

// Unmarshal implements google.golang.org/grpc/encoding.Codec, parsing wire
// bytes into a *dynamic.Message. Decode failures (wire corruption) are
// reported as codes.Internal per spec §4.1.
func (c *Codec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(*dynamic.Message)
	if !ok {
		return status.Errorf(codes.Internal, "codec: cannot unmarshal into value of type %T", v)
	}
	if err := msg.Unmarshal(data); err != nil {
		return status.Errorf(codes.Internal, "failed to decode protobuf bytes: %v", err)
	}
	return nil
}

// Name implements google.golang.org/grpc/encoding.Codec.
func (c *Codec) Name() string { return "granc-dynamic-json" }
