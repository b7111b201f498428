package transport

import (
	"context"
	"encoding/base64"
	"testing"

	"google.golang.org/grpc/metadata"
)

// These tests live inside package transport (rather than transport_test) so
// they can exercise attachMetadata directly, without routing through
// Dispatch and its stub dependency.

func TestAttachMetadata_ValidBinValueIsDecoded(t *testing.T) {
	raw := []byte{0x00, 0x01, 0xFF}
	encoded := base64.StdEncoding.EncodeToString(raw)

	ctx, err := attachMetadata(context.Background(), []KV{{Key: "trace-bin", Value: encoded}})
	if err != nil {
		t.Fatalf("attachMetadata: %v", err)
	}

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata to be set")
	}
	values := md.Get("trace-bin")
	if len(values) != 1 || values[0] != string(raw) {
		t.Fatalf("expected decoded binary value, got %q", values)
	}
}

func TestAttachMetadata_LowercasesKeys(t *testing.T) {
	ctx, err := attachMetadata(context.Background(), []KV{{Key: "X-Request-Id", Value: "abc"}})
	if err != nil {
		t.Fatalf("attachMetadata: %v", err)
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	if got := md.Get("x-request-id"); len(got) != 1 || got[0] != "abc" {
		t.Fatalf("expected lowercased key lookup to find value, got %v", got)
	}
}

func TestAttachMetadata_NoHeadersIsNoop(t *testing.T) {
	ctx, err := attachMetadata(context.Background(), nil)
	if err != nil {
		t.Fatalf("attachMetadata: %v", err)
	}
	if _, ok := metadata.FromOutgoingContext(ctx); ok {
		t.Fatal("expected no outgoing metadata for an empty header list")
	}
}
