// Package introspect implements the Introspection Facade: describing a
// symbol as a tagged descriptor value and looking it up in a fixed order
// (service, then message, then enum), matching spec §4.2/§4.6.
//
// Grounded on original_source/granc-core/src/client/types.rs's Descriptor
// enum, whose Name/FullName/PackageName accessor methods are reproduced
// here as a small Go interface implemented by three wrapper types — a
// supplemented convenience over spec.md's bare tagged union, per
// SPEC_FULL.md's "Supplemented Features" section.
package introspect

import (
	"github.com/jhump/protoreflect/desc"

	"github.com/jrschumacher/granc-go/internal/grancerr"
	"github.com/jrschumacher/granc-go/internal/pool"
)

// Descriptor is a resolved symbol of unknown kind (service, message, or
// enum). Callers type-switch on the concrete wrapper type, or use the
// common accessors below.
type Descriptor interface {
	Name() string
	FullName() string
	PackageName() string

	isDescriptor()
}

// ServiceDescriptor wraps a resolved service symbol.
type ServiceDescriptor struct{ Desc *desc.ServiceDescriptor }

func (d ServiceDescriptor) Name() string       { return d.Desc.GetName() }
func (d ServiceDescriptor) FullName() string   { return d.Desc.GetFullyQualifiedName() }
func (d ServiceDescriptor) PackageName() string { return d.Desc.GetFile().GetPackage() }
func (ServiceDescriptor) isDescriptor()        {}

// MessageDescriptor wraps a resolved message symbol.
type MessageDescriptor struct{ Desc *desc.MessageDescriptor }

func (d MessageDescriptor) Name() string        { return d.Desc.GetName() }
func (d MessageDescriptor) FullName() string    { return d.Desc.GetFullyQualifiedName() }
func (d MessageDescriptor) PackageName() string { return d.Desc.GetFile().GetPackage() }
func (MessageDescriptor) isDescriptor()         {}

// EnumDescriptor wraps a resolved enum symbol.
type EnumDescriptor struct{ Desc *desc.EnumDescriptor }

func (d EnumDescriptor) Name() string       { return d.Desc.GetName() }
func (d EnumDescriptor) FullName() string    { return d.Desc.GetFullyQualifiedName() }
func (d EnumDescriptor) PackageName() string { return d.Desc.GetFile().GetPackage() }
func (EnumDescriptor) isDescriptor()         {}

// Describe resolves a fully-qualified symbol against p in the fixed order
// service, message, enum, matching spec §4.2. It returns a
// *grancerr.SymbolLookupError wrapping grancerr.NotFound semantics if the
// symbol resolves to none of the three.
func Describe(p *pool.Pool, symbol string) (Descriptor, error) {
	if svc, ok := p.ByService(symbol); ok {
		return ServiceDescriptor{Desc: svc}, nil
	}
	if msg, ok := p.ByMessage(symbol); ok {
		return MessageDescriptor{Desc: msg}, nil
	}
	if en, ok := p.ByEnum(symbol); ok {
		return EnumDescriptor{Desc: en}, nil
	}
	return nil, grancerr.NotFound(symbol)
}

// ListServices returns the fully-qualified name of every service in p.
func ListServices(p *pool.Pool) []string {
	svcs := p.Services()
	names := make([]string, 0, len(svcs))
	for _, svc := range svcs {
		names = append(names, svc.GetFullyQualifiedName())
	}
	return names
}
