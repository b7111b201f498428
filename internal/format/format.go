// Package format renders a descriptor back into .proto-like text for human
// display: the Descriptor Formatter component of spec §4.6.
//
// Grounded on other_examples' grpcurl format.go/GetDescriptorText, which
// configures protoprint.Printer{Compact:true, OmitComments:CommentsNonDoc,
// SortElements:true, ForceFullyQualifiedNames:true} and prints a single
// descriptor via PrintProtoToString.
package format

import (
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoprint"

	"github.com/jrschumacher/granc-go/internal/introspect"
)

var printer = &protoprint.Printer{
	Compact:                  true,
	OmitComments:             protoprint.CommentsNonDoc,
	SortElements:             true,
	ForceFullyQualifiedNames: true,
}

// Text renders a descriptor (service, message, or enum) as .proto-like
// source text.
func Text(d introspect.Descriptor) (string, error) {
	var m desc.Descriptor
	switch v := d.(type) {
	case introspect.ServiceDescriptor:
		m = v.Desc
	case introspect.MessageDescriptor:
		m = v.Desc
	case introspect.EnumDescriptor:
		m = v.Desc
	default:
		return "", nil
	}
	return printer.PrintProtoToString(m)
}
