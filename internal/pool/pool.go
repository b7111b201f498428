// Package pool implements the Descriptor Pool: an immutable-after-build
// database of Protobuf definitions built from a FileDescriptorSet, keyed by
// fully-qualified name. A Pool is closed — every type referenced by any
// field, method input, or method output resolves inside it — by
// construction of desc.CreateFileDescriptors, which fails the build
// otherwise.
//
// Grounded on the teacher's internal/registry/registry.go (Register,
// indexMessage) and the fixed service→message→enum lookup order from
// original_source/granc-core/src/client/with_file_descriptor.rs.
package pool

import (
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jrschumacher/granc-go/internal/grancerr"
)

// Pool holds every file, service, message, and enum descriptor reachable
// from the FileDescriptorSet it was built from. It is never mutated after
// New returns, so it needs no internal locking — it may be shared freely
// across goroutines, matching spec §5's "freely clonable" guarantee.
type Pool struct {
	files    map[string]*desc.FileDescriptor
	services map[string]*desc.ServiceDescriptor
	messages map[string]*desc.MessageDescriptor
	enums    map[string]*desc.EnumDescriptor
}

// New builds a Pool from a FileDescriptorSet. It fails with a
// *grancerr.SchemaDecodeError if any file's imports do not resolve within
// the set, or if the set is otherwise malformed.
func New(fds *descriptorpb.FileDescriptorSet) (*Pool, error) {
	if fds == nil || len(fds.File) == 0 {
		return nil, &grancerr.SchemaDecodeError{Reason: "empty FileDescriptorSet"}
	}

	// CreateFileDescriptors topologically resolves each file's imports
	// against the rest of the set in one pass, rejecting a set whose
	// imports don't close.
	files, err := desc.CreateFileDescriptors(fds.File)
	if err != nil {
		return nil, &grancerr.SchemaDecodeError{Reason: "imports do not close over file set", Cause: err}
	}

	p := &Pool{
		files:    make(map[string]*desc.FileDescriptor, len(files)),
		services: make(map[string]*desc.ServiceDescriptor),
		messages: make(map[string]*desc.MessageDescriptor),
		enums:    make(map[string]*desc.EnumDescriptor),
	}

	for name, fd := range files {
		p.files[name] = fd

		for _, svc := range fd.GetServices() {
			fqn := svc.GetFullyQualifiedName()
			if _, dup := p.services[fqn]; dup {
				return nil, &grancerr.SchemaDecodeError{Reason: fmt.Sprintf("duplicate service name %q", fqn)}
			}
			p.services[fqn] = svc
		}

		for _, msg := range fd.GetMessageTypes() {
			if err := p.indexMessage(msg); err != nil {
				return nil, err
			}
		}

		for _, en := range fd.GetEnumTypes() {
			fqn := en.GetFullyQualifiedName()
			if _, dup := p.enums[fqn]; dup {
				return nil, &grancerr.SchemaDecodeError{Reason: fmt.Sprintf("duplicate enum name %q", fqn)}
			}
			p.enums[fqn] = en
		}
	}

	return p, nil
}

// indexMessage recursively indexes a message and its nested messages and
// enums, rejecting duplicate fully-qualified names.
func (p *Pool) indexMessage(msg *desc.MessageDescriptor) error {
	fqn := msg.GetFullyQualifiedName()
	if _, dup := p.messages[fqn]; dup {
		return &grancerr.SchemaDecodeError{Reason: fmt.Sprintf("duplicate message name %q", fqn)}
	}
	p.messages[fqn] = msg

	for _, nested := range msg.GetNestedMessageTypes() {
		if err := p.indexMessage(nested); err != nil {
			return err
		}
	}
	for _, en := range msg.GetNestedEnumTypes() {
		enFqn := en.GetFullyQualifiedName()
		if _, dup := p.enums[enFqn]; dup {
			return &grancerr.SchemaDecodeError{Reason: fmt.Sprintf("duplicate enum name %q", enFqn)}
		}
		p.enums[enFqn] = en
	}
	return nil
}

// ByService looks up a service descriptor by fully-qualified name.
func (p *Pool) ByService(fqn string) (*desc.ServiceDescriptor, bool) {
	svc, ok := p.services[fqn]
	return svc, ok
}

// ByMessage looks up a message descriptor by fully-qualified name.
func (p *Pool) ByMessage(fqn string) (*desc.MessageDescriptor, bool) {
	msg, ok := p.messages[fqn]
	return msg, ok
}

// ByEnum looks up an enum descriptor by fully-qualified name.
func (p *Pool) ByEnum(fqn string) (*desc.EnumDescriptor, bool) {
	en, ok := p.enums[fqn]
	return en, ok
}

// Services returns every service descriptor in the pool.
func (p *Pool) Services() []*desc.ServiceDescriptor {
	out := make([]*desc.ServiceDescriptor, 0, len(p.services))
	for _, svc := range p.services {
		out = append(out, svc)
	}
	return out
}

// Method looks up a method by service and method name, returning a
// *grancerr.SymbolLookupError if either is not found.
func (p *Pool) Method(serviceName, methodName string) (*desc.MethodDescriptor, error) {
	svc, ok := p.ByService(serviceName)
	if !ok {
		return nil, &grancerr.SymbolLookupError{Kind: "service", Symbol: serviceName}
	}
	md := svc.FindMethodByName(methodName)
	if md == nil {
		return nil, &grancerr.SymbolLookupError{Kind: "method", Symbol: serviceName + "/" + methodName}
	}
	return md, nil
}

// FileDescriptorSet reconstitutes a FileDescriptorSet covering every file
// held by the pool, in no particular order, for handing the pool's schema
// to a component that accepts the wire form.
func (p *Pool) FileDescriptorSet() *descriptorpb.FileDescriptorSet {
	out := &descriptorpb.FileDescriptorSet{File: make([]*descriptorpb.FileDescriptorProto, 0, len(p.files))}
	for _, fd := range p.files {
		out.File = append(out.File, fd.AsFileDescriptorProto())
	}
	return out
}
