// Package client implements the Client State Machine: three concrete types
// — ReflectionClient, PoolClient, OfflineClient — behind a shared
// Introspector interface, with the one-way transition Reflection→WithPool
// and Offline built independently, per spec §4.5.
//
// Grounded on original_source/granc-core/src/client/{with_server_reflection,
// with_file_descriptor,offline}.rs, the direct Rust origin of this state
// table, and on spec §9's explicit instruction for languages without
// sum-type dispatch: "model the three states as three concrete types behind
// a shared interface that names only the intersection of operations."
package client

import (
	"context"
	"time"

	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jrschumacher/granc-go/internal/grancerr"
	"github.com/jrschumacher/granc-go/internal/introspect"
	"github.com/jrschumacher/granc-go/internal/pool"
	"github.com/jrschumacher/granc-go/internal/reflectclient"
	"github.com/jrschumacher/granc-go/internal/transport"
)

// Introspector is the operation set common to all three client states:
// listing services and describing a symbol. Dynamic is deliberately absent
// from this interface — it exists only on ReflectionClient and PoolClient,
// enforcing at compile time that Offline has no transport, matching spec
// §4.5's state table.
type Introspector interface {
	ListServices(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, symbol string) (introspect.Descriptor, error)
}

// dialConfig accumulates ClientOption settings for Dial.
type dialConfig struct {
	timeout time.Duration
	creds   credentials.TransportCredentials
}

// ClientOption configures Dial, following the google.golang.org/grpc
// functional-options idiom the teacher's own dependency surface already
// uses for grpc.DialOption, per SPEC_FULL.md's Ambient Stack "Configuration"
// section.
type ClientOption func(*dialConfig)

// WithDialTimeout bounds how long Dial blocks while establishing the
// connection. Defaults to 10 seconds.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *dialConfig) { c.timeout = d }
}

// WithTLS enables TLS using the system root CA pool, verifying the
// certificate against serverName.
func WithTLS(serverName string) ClientOption {
	return func(c *dialConfig) {
		cfg := tlsConfigFor(serverName)
		c.creds = credentials.NewTLS(&cfg)
	}
}

// WithInsecure disables transport security. This is the default.
func WithInsecure() ClientOption {
	return func(c *dialConfig) { c.creds = insecure.NewCredentials() }
}

// ReflectionClient is the Reflection state: a live connection whose schema
// source is the Server Reflection protocol. Every ListServices, Describe,
// or Dynamic call drives the reflection stream; Dynamic additionally builds
// a fresh Descriptor Pool on every invocation (no caching), matching spec
// §4.5 exactly.
type ReflectionClient struct {
	conn     *grpc.ClientConn
	resolver *reflectclient.Resolver
	stub     *grpcdynamic.Stub
}

var _ Introspector = (*ReflectionClient)(nil)

// Dial connects to target and returns a client in the Reflection state,
// per spec §6's "connect(uri) → Reflection-state client or ConnectError".
func Dial(ctx context.Context, target string, opts ...ClientOption) (*ReflectionClient, error) {
	cfg := &dialConfig{timeout: 10 * time.Second, creds: insecure.NewCredentials()}
	for _, opt := range opts {
		opt(cfg)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target,
		grpc.WithTransportCredentials(cfg.creds),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, &grancerr.ConnectError{Target: target, Cause: err}
	}

	return &ReflectionClient{
		conn:     conn,
		resolver: reflectclient.New(conn),
		stub:     grpcdynamic.NewStub(conn),
	}, nil
}

// Close releases the underlying connection. Safe to call on any of the
// three states; OfflineClient.Close is a no-op since it owns no connection.
func (c *ReflectionClient) Close() error { return c.conn.Close() }

// ListServices lists every service the server's reflection endpoint
// reports.
func (c *ReflectionClient) ListServices(ctx context.Context) ([]string, error) {
	return c.resolver.ListServices(ctx)
}

// Describe resolves symbol via the reflection closure, mapping a
// reflection-server NotFound to *grancerr.SymbolLookupError per spec
// §4.5's "Error mapping" rule.
func (c *ReflectionClient) Describe(ctx context.Context, symbol string) (introspect.Descriptor, error) {
	fdset, err := c.resolver.FileDescriptorSetForSymbol(ctx, symbol)
	if err != nil {
		if isReflectionNotFound(err) {
			return nil, grancerr.NotFound(symbol)
		}
		return nil, err
	}
	p, err := pool.New(fdset)
	if err != nil {
		return nil, err
	}
	return introspect.Describe(p, symbol)
}

// Dynamic performs a dynamic RPC. A fresh Descriptor Pool is built from the
// reflection closure of req.Service on every call — callers wanting to
// avoid that cost should transition via WithPool.
func (c *ReflectionClient) Dynamic(ctx context.Context, req transport.Request) (transport.Response, error) {
	fdset, err := c.resolver.FileDescriptorSetForSymbol(ctx, req.Service)
	if err != nil {
		if isReflectionNotFound(err) {
			return transport.Response{}, grancerr.NotFound(req.Service)
		}
		return transport.Response{}, err
	}
	p, err := pool.New(fdset)
	if err != nil {
		return transport.Response{}, err
	}
	md, err := p.Method(req.Service, req.Method)
	if err != nil {
		return transport.Response{}, err
	}
	return transport.Dispatch(ctx, c.stub, md, req)
}

// WithPool transitions from Reflection to WithPool, decoding a
// FileDescriptorSet and keeping the live connection. This transition is
// one-way: there is no API to go back.
func (c *ReflectionClient) WithPool(fdsetBytes []byte) (*PoolClient, error) {
	p, err := decodePool(fdsetBytes)
	if err != nil {
		return nil, err
	}
	return &PoolClient{conn: c.conn, stub: c.stub, pool: p}, nil
}

// PoolClient is the WithPool state: a live connection paired with a
// pre-loaded, immutable Descriptor Pool. ListServices/Describe are
// synchronous local lookups; Dynamic dispatches directly without any
// reflection round-trip.
type PoolClient struct {
	conn *grpc.ClientConn
	stub *grpcdynamic.Stub
	pool *pool.Pool
}

var _ Introspector = (*PoolClient)(nil)

// Close releases the underlying connection.
func (c *PoolClient) Close() error { return c.conn.Close() }

// ListServices lists every service in the local pool.
func (c *PoolClient) ListServices(_ context.Context) ([]string, error) {
	return introspect.ListServices(c.pool), nil
}

// Describe resolves symbol against the local pool.
func (c *PoolClient) Describe(_ context.Context, symbol string) (introspect.Descriptor, error) {
	return introspect.Describe(c.pool, symbol)
}

// Dynamic performs a dynamic RPC using the local pool for schema lookup.
func (c *PoolClient) Dynamic(ctx context.Context, req transport.Request) (transport.Response, error) {
	md, err := c.pool.Method(req.Service, req.Method)
	if err != nil {
		return transport.Response{}, err
	}
	return transport.Dispatch(ctx, c.stub, md, req)
}

// OfflineClient is the Offline state: a pre-loaded Descriptor Pool with no
// transport whatsoever. Dynamic is deliberately not implemented on this
// type — there is no connection to dispatch an RPC over — matching spec
// §4.5's "unavailable (no transport)" cell.
type OfflineClient struct {
	pool *pool.Pool
}

var _ Introspector = (*OfflineClient)(nil)

// Offline builds a client in the Offline state directly from a
// FileDescriptorSet, independent of any other state, per spec §4.5's state
// diagram (Offline is "(terminal)" and reachable only via this
// constructor).
func Offline(fdsetBytes []byte) (*OfflineClient, error) {
	p, err := decodePool(fdsetBytes)
	if err != nil {
		return nil, err
	}
	return &OfflineClient{pool: p}, nil
}

// Close is a no-op: an OfflineClient owns no connection.
func (c *OfflineClient) Close() error { return nil }

// ListServices lists every service in the local pool.
func (c *OfflineClient) ListServices(_ context.Context) ([]string, error) {
	return introspect.ListServices(c.pool), nil
}

// Describe resolves symbol against the local pool.
func (c *OfflineClient) Describe(_ context.Context, symbol string) (introspect.Descriptor, error) {
	return introspect.Describe(c.pool, symbol)
}

func decodePool(fdsetBytes []byte) (*pool.Pool, error) {
	fds := &descriptorpb.FileDescriptorSet{}
	if err := proto.Unmarshal(fdsetBytes, fds); err != nil {
		return nil, &grancerr.SchemaDecodeError{Reason: "malformed FileDescriptorSet bytes", Cause: err}
	}
	return pool.New(fds)
}

// isReflectionNotFound reports whether err is a ReflectionResolveError
// carrying a server-reported NotFound status, the one case spec §4.5/§7
// requires remapping to SymbolLookup.NotFound at the client-state boundary.
func isReflectionNotFound(err error) bool {
	rerr, ok := err.(*grancerr.ReflectionResolveError)
	if !ok || rerr.Kind != grancerr.ServerError {
		return false
	}
	return codes.Code(rerr.ServerCode) == codes.NotFound
}
