package schema

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ErrInvalidSchema marks descriptors that decoded but are structurally
// impossible: no filename, a non-UTF-8 filename, or a map entry message
// without its key/value pair.
var ErrInvalidSchema = errors.New("invalid schema")

// Decode unmarshals serialized FileDescriptorProto bytes and builds the
// schema tree. Wire-level rejections come back as the protobuf decoder's
// error; structural rejections wrap ErrInvalidSchema.
func Decode(data []byte) (*File, error) {
	fd := &descriptorpb.FileDescriptorProto{}
	if err := proto.Unmarshal(data, fd); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return FromDescriptor(fd)
}

// FromDescriptor builds the schema tree from a decoded FileDescriptorProto.
func FromDescriptor(fd *descriptorpb.FileDescriptorProto) (*File, error) {
	name := fd.GetName()
	if name == "" {
		return nil, fmt.Errorf("%w: descriptor has no filename", ErrInvalidSchema)
	}
	if !utf8.ValidString(name) {
		return nil, fmt.Errorf("%w: descriptor filename is not valid UTF-8", ErrInvalidSchema)
	}

	f := &File{
		Name:    name,
		Package: fd.GetPackage(),
		Syntax:  syntaxOf(fd.GetSyntax()),
		Options: fileOptions(fd.GetOptions()),
	}

	public := make(map[int]bool, len(fd.GetPublicDependency()))
	for _, i := range fd.GetPublicDependency() {
		public[int(i)] = true
	}
	weak := make(map[int]bool, len(fd.GetWeakDependency()))
	for _, i := range fd.GetWeakDependency() {
		weak[int(i)] = true
	}
	for i, dep := range fd.GetDependency() {
		f.Imports = append(f.Imports, Import{
			Path:   dep,
			Public: public[i],
			Weak:   weak[i],
		})
	}

	for _, e := range fd.GetEnumType() {
		f.Enums = append(f.Enums, enumOf(e))
	}
	for _, m := range fd.GetMessageType() {
		msg, err := messageOf(m)
		if err != nil {
			return nil, err
		}
		f.Messages = append(f.Messages, msg)
	}
	for _, ext := range fd.GetExtension() {
		f.Extensions = append(f.Extensions, fieldOf(ext))
	}
	for _, s := range fd.GetService() {
		f.Services = append(f.Services, serviceOf(s))
	}
	return f, nil
}

func syntaxOf(s string) Syntax {
	// An absent syntax string means proto2; anything unrecognized is treated
	// the same, matching protoc's most permissive reading.
	if s == "proto3" {
		return SyntaxProto3
	}
	return SyntaxProto2
}

func fileOptions(o *descriptorpb.FileOptions) FileOptions {
	if o == nil {
		return FileOptions{}
	}
	return FileOptions{
		JavaPackage:          o.GetJavaPackage(),
		JavaOuterClassname:   o.GetJavaOuterClassname(),
		JavaMultipleFiles:    o.JavaMultipleFiles,
		JavaStringCheckUTF8:  o.JavaStringCheckUtf8,
		GoPackage:            o.GetGoPackage(),
		CcEnableArenas:       o.CcEnableArenas,
		ObjcClassPrefix:      o.GetObjcClassPrefix(),
		CsharpNamespace:      o.GetCsharpNamespace(),
		SwiftPrefix:          o.GetSwiftPrefix(),
		PhpClassPrefix:       o.GetPhpClassPrefix(),
		PhpNamespace:         o.GetPhpNamespace(),
		PhpMetadataNamespace: o.GetPhpMetadataNamespace(),
		RubyPackage:          o.GetRubyPackage(),
	}
}

func messageOf(m *descriptorpb.DescriptorProto) (*Message, error) {
	msg := &Message{
		Name:          m.GetName(),
		ReservedNames: m.GetReservedName(),
		MapEntry:      m.GetOptions().GetMapEntry(),
	}
	for _, f := range m.GetField() {
		msg.Fields = append(msg.Fields, fieldOf(f))
	}
	if msg.MapEntry {
		if err := validateMapEntry(msg); err != nil {
			return nil, err
		}
	}
	for _, n := range m.GetNestedType() {
		nested, err := messageOf(n)
		if err != nil {
			return nil, err
		}
		msg.Nested = append(msg.Nested, nested)
	}
	for _, e := range m.GetEnumType() {
		msg.Enums = append(msg.Enums, enumOf(e))
	}
	for _, o := range m.GetOneofDecl() {
		msg.Oneofs = append(msg.Oneofs, &Oneof{Name: o.GetName()})
	}
	for _, ext := range m.GetExtension() {
		msg.Extensions = append(msg.Extensions, fieldOf(ext))
	}
	for _, r := range m.GetExtensionRange() {
		msg.ExtensionRanges = append(msg.ExtensionRanges, Range{Start: r.GetStart(), End: r.GetEnd()})
	}
	for _, r := range m.GetReservedRange() {
		msg.ReservedRanges = append(msg.ReservedRanges, Range{Start: r.GetStart(), End: r.GetEnd()})
	}
	return msg, nil
}

// validateMapEntry enforces the synthetic map shape: exactly a key field
// numbered 1 and a value field numbered 2.
func validateMapEntry(msg *Message) error {
	var hasKey, hasValue bool
	for _, f := range msg.Fields {
		switch f.Number {
		case 1:
			hasKey = true
		case 2:
			hasValue = true
		}
	}
	if !hasKey || !hasValue || len(msg.Fields) != 2 {
		return fmt.Errorf("%w: map entry %s lacks key/value fields", ErrInvalidSchema, msg.Name)
	}
	return nil
}

func fieldOf(f *descriptorpb.FieldDescriptorProto) *Field {
	fld := &Field{
		Name:           f.GetName(),
		Number:         f.GetNumber(),
		Label:          Label(f.GetLabel()),
		Type:           FieldType(f.GetType()),
		TypeName:       f.GetTypeName(),
		Extendee:       f.GetExtendee(),
		Default:        f.DefaultValue,
		JSONName:       f.GetJsonName(),
		OneofIndex:     -1,
		Proto3Optional: f.GetProto3Optional(),
	}
	if f.OneofIndex != nil {
		fld.OneofIndex = f.GetOneofIndex()
	}
	if fld.Label == 0 {
		fld.Label = LabelOptional
	}
	// Old compilers may omit the type when a type name is present; the
	// getter would report TYPE_DOUBLE, so check presence explicitly. The
	// renderer only needs to know it is a named type.
	if f.Type == nil && fld.TypeName != "" {
		fld.Type = TypeMessage
	}
	if o := f.GetOptions(); o != nil {
		fld.Options = FieldOptions{
			Packed:     o.Packed,
			Deprecated: o.GetDeprecated(),
			Lazy:       o.GetLazy(),
			Weak:       o.GetWeak(),
		}
		if o.Ctype != nil && o.GetCtype() != descriptorpb.FieldOptions_STRING {
			fld.Options.CType = o.GetCtype().String()
		}
	}
	return fld
}

func enumOf(e *descriptorpb.EnumDescriptorProto) *Enum {
	en := &Enum{
		Name:          e.GetName(),
		AllowAlias:    e.GetOptions().GetAllowAlias(),
		ReservedNames: e.GetReservedName(),
	}
	for _, v := range e.GetValue() {
		en.Values = append(en.Values, EnumValue{
			Name:       v.GetName(),
			Number:     v.GetNumber(),
			Deprecated: v.GetOptions().GetDeprecated(),
		})
	}
	for _, r := range e.GetReservedRange() {
		en.ReservedRanges = append(en.ReservedRanges, Range{Start: r.GetStart(), End: r.GetEnd()})
	}
	return en
}

func serviceOf(s *descriptorpb.ServiceDescriptorProto) *Service {
	svc := &Service{Name: s.GetName()}
	for _, m := range s.GetMethod() {
		svc.Methods = append(svc.Methods, Method{
			Name:            m.GetName(),
			Input:           m.GetInputType(),
			Output:          m.GetOutputType(),
			ClientStreaming: m.GetClientStreaming(),
			ServerStreaming: m.GetServerStreaming(),
			Deprecated:      m.GetOptions().GetDeprecated(),
		})
	}
	return svc
}
