// Package schema defines the in-memory representation of a recovered .proto
// file and builds it from a decoded FileDescriptorProto. The model is the
// contract between the descriptor decoder and the renderer: a plain tree with
// no back-edges, safe to walk without cycle checks.
package schema

// Syntax is the proto language revision a file declares.
type Syntax uint8

const (
	// SyntaxProto2 covers proto2 and files with no syntax declaration.
	SyntaxProto2 Syntax = iota
	// SyntaxProto3 is the proto3 revision.
	SyntaxProto3
)

func (s Syntax) String() string {
	if s == SyntaxProto3 {
		return "proto3"
	}
	return "proto2"
}

// Label is a field cardinality marker.
type Label int32

const (
	// LabelOptional is proto2 optional / proto3 singular.
	LabelOptional Label = 1
	// LabelRequired is proto2 required.
	LabelRequired Label = 2
	// LabelRepeated marks repeated fields (and synthetic map fields).
	LabelRepeated Label = 3
)

// FieldType enumerates protobuf field types. Values match
// descriptorpb.FieldDescriptorProto_Type.
type FieldType int32

const (
	TypeDouble   FieldType = 1
	TypeFloat    FieldType = 2
	TypeInt64    FieldType = 3
	TypeUint64   FieldType = 4
	TypeInt32    FieldType = 5
	TypeFixed64  FieldType = 6
	TypeFixed32  FieldType = 7
	TypeBool     FieldType = 8
	TypeString   FieldType = 9
	TypeGroup    FieldType = 10
	TypeMessage  FieldType = 11
	TypeBytes    FieldType = 12
	TypeUint32   FieldType = 13
	TypeEnum     FieldType = 14
	TypeSfixed32 FieldType = 15
	TypeSfixed64 FieldType = 16
	TypeSint32   FieldType = 17
	TypeSint64   FieldType = 18
)

// ScalarName returns the canonical proto keyword for scalar types, or ""
// for message, enum, and group types.
func (t FieldType) ScalarName() string {
	switch t {
	case TypeDouble:
		return "double"
	case TypeFloat:
		return "float"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeInt32:
		return "int32"
	case TypeFixed64:
		return "fixed64"
	case TypeFixed32:
		return "fixed32"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeUint32:
		return "uint32"
	case TypeSfixed32:
		return "sfixed32"
	case TypeSfixed64:
		return "sfixed64"
	case TypeSint32:
		return "sint32"
	case TypeSint64:
		return "sint64"
	}
	return ""
}

// File is the root of a recovered schema.
type File struct {
	// Name is the descriptor's declared path, e.g. "google/protobuf/any.proto".
	Name     string
	Package  string
	Syntax   Syntax
	Imports  []Import
	Options  FileOptions
	Enums    []*Enum
	Messages []*Message
	// Extensions are file-level extend declarations.
	Extensions []*Field
	Services   []*Service
}

// Import is one dependency declaration, in descriptor order.
type Import struct {
	Path   string
	Public bool
	Weak   bool
}

// FileOptions carries the file-level options the renderer knows how to emit.
// String options are unset when empty; bool options track explicit presence.
type FileOptions struct {
	JavaPackage          string
	JavaOuterClassname   string
	JavaMultipleFiles    *bool
	JavaStringCheckUTF8  *bool
	GoPackage            string
	CcEnableArenas       *bool
	ObjcClassPrefix      string
	CsharpNamespace      string
	SwiftPrefix          string
	PhpClassPrefix       string
	PhpNamespace         string
	PhpMetadataNamespace string
	RubyPackage          string
}

// Message is a message definition.
type Message struct {
	Name            string
	Fields          []*Field
	Nested          []*Message
	Enums           []*Enum
	Oneofs          []*Oneof
	Extensions      []*Field
	ExtensionRanges []Range // end exclusive
	ReservedRanges  []Range // end exclusive
	ReservedNames   []string
	// MapEntry marks the synthetic message backing a map field.
	MapEntry bool
}

// Range is a numeric interval. End semantics differ between message reserved
// ranges (exclusive, matching DescriptorProto) and enum reserved ranges
// (inclusive, matching EnumDescriptorProto).
type Range struct {
	Start int32
	End   int32
}

// Field describes a message field, an extension, or a map entry component.
type Field struct {
	Name   string
	Number int32
	Label  Label
	Type   FieldType
	// TypeName is the fully qualified referenced type with its leading dot,
	// as stored in the descriptor. Set for message, enum, and group types.
	TypeName string
	// Extendee names the extended message for extension fields.
	Extendee string
	// Default is the proto2 default value in descriptor text form.
	Default *string
	// JSONName is the descriptor's json_name, when recorded.
	JSONName string
	// OneofIndex is the owning oneof, or -1.
	OneofIndex int32
	// Proto3Optional marks explicit proto3 optionals (synthetic oneof).
	Proto3Optional bool
	Options        FieldOptions
}

// FieldOptions carries the field-level options the renderer emits.
type FieldOptions struct {
	Packed     *bool
	Deprecated bool
	// CType is the proto2 string representation hint (STRING, CORD,
	// STRING_PIECE); empty when unset or default.
	CType string
	Lazy  bool
	Weak  bool
}

// Oneof is a oneof declaration; fields reference it by index.
type Oneof struct {
	Name string
}

// Synthetic reports whether the oneof only backs a proto3 optional field.
func (o *Oneof) Synthetic() bool {
	return len(o.Name) > 0 && o.Name[0] == '_'
}

// Enum is an enum definition.
type Enum struct {
	Name           string
	Values         []EnumValue
	AllowAlias     bool
	ReservedRanges []Range // end inclusive
	ReservedNames  []string
}

// EnumValue is one enum constant.
type EnumValue struct {
	Name       string
	Number     int32
	Deprecated bool
}

// Service is a service definition.
type Service struct {
	Name    string
	Methods []Method
}

// Method is one rpc declaration.
type Method struct {
	Name            string
	Input           string // fully qualified with leading dot
	Output          string // fully qualified with leading dot
	ClientStreaming bool
	ServerStreaming bool
	Deprecated      bool
}
