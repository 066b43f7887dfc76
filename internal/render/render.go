// Package render reconstructs .proto source text from a schema tree. Output
// is deterministic: the same tree always renders to the same bytes, and the
// result parses under a standard protoc.
//
// Known gaps, inherited from what descriptors preserve poorly: optimize_for,
// file-level deprecated, cc_generic_services, custom options, and proto2
// group bodies are not emitted.
package render

import (
	"fmt"
	"sort"
	"strings"

	"protosift/internal/schema"
)

const indentUnit = "  "

// maxFieldNumber is the protobuf field number ceiling; an exclusive range
// end one past it renders as "max".
const maxFieldNumber = 1<<29 - 1

// maxEnumNumber is the inclusive enum reserved-range ceiling.
const maxEnumNumber = 1<<31 - 1

// File renders a complete .proto source file.
func File(f *schema.File) string {
	r := &renderer{}
	r.file(f)
	out := strings.TrimRight(r.sb.String(), "\n")
	return out + "\n"
}

type renderer struct {
	sb     strings.Builder
	indent int
}

func (r *renderer) line(s string) {
	for i := 0; i < r.indent; i++ {
		r.sb.WriteString(indentUnit)
	}
	r.sb.WriteString(s)
	r.sb.WriteByte('\n')
}

func (r *renderer) linef(format string, args ...any) {
	r.line(fmt.Sprintf(format, args...))
}

func (r *renderer) blank() {
	r.sb.WriteByte('\n')
}

func (r *renderer) file(f *schema.File) {
	r.linef("syntax = %q;", f.Syntax.String())
	r.blank()

	if f.Package != "" {
		r.linef("package %s;", f.Package)
		r.blank()
	}

	if len(f.Imports) > 0 {
		for _, imp := range f.Imports {
			modifier := ""
			if imp.Public {
				modifier = "public "
			} else if imp.Weak {
				modifier = "weak "
			}
			r.linef("import %s%q;", modifier, imp.Path)
		}
		r.blank()
	}

	if r.fileOptions(f.Options) {
		r.blank()
	}

	for _, e := range f.Enums {
		r.enum(e)
		r.blank()
	}
	for _, m := range f.Messages {
		r.message(m, f.Syntax)
		r.blank()
	}
	for _, ext := range f.Extensions {
		r.extension(ext, f.Syntax)
		r.blank()
	}
	for _, s := range f.Services {
		r.service(s)
		r.blank()
	}
}

func (r *renderer) fileOptions(o schema.FileOptions) bool {
	wrote := false
	str := func(name, v string) {
		if v != "" {
			r.linef("option %s = \"%s\";", name, escapeString(v))
			wrote = true
		}
	}
	boolean := func(name string, v *bool) {
		if v != nil {
			r.linef("option %s = %v;", name, *v)
			wrote = true
		}
	}
	str("java_package", o.JavaPackage)
	str("java_outer_classname", o.JavaOuterClassname)
	boolean("java_multiple_files", o.JavaMultipleFiles)
	boolean("java_string_check_utf8", o.JavaStringCheckUTF8)
	str("go_package", o.GoPackage)
	boolean("cc_enable_arenas", o.CcEnableArenas)
	str("objc_class_prefix", o.ObjcClassPrefix)
	str("csharp_namespace", o.CsharpNamespace)
	str("swift_prefix", o.SwiftPrefix)
	str("php_class_prefix", o.PhpClassPrefix)
	str("php_namespace", o.PhpNamespace)
	str("php_metadata_namespace", o.PhpMetadataNamespace)
	str("ruby_package", o.RubyPackage)
	return wrote
}

func (r *renderer) message(m *schema.Message, syntax schema.Syntax) {
	r.linef("message %s {", m.Name)
	r.indent++

	r.reservedRanges(m.ReservedRanges, false)
	r.reservedNames(m.ReservedNames)

	for _, e := range m.Enums {
		r.enum(e)
	}
	for _, n := range m.Nested {
		if n.MapEntry {
			// Synthetic map entries surface as map<K, V> fields instead.
			continue
		}
		r.message(n, syntax)
	}

	for i, o := range m.Oneofs {
		if o.Synthetic() {
			continue
		}
		fields := oneofFields(m, int32(i))
		if len(fields) == 0 {
			continue
		}
		r.oneof(o, fields, syntax)
	}

	for _, f := range m.Fields {
		if inRealOneof(f, m) {
			continue
		}
		r.field(f, syntax, m)
	}

	for _, er := range m.ExtensionRanges {
		end := "max"
		if er.End != maxFieldNumber+1 {
			end = fmt.Sprintf("%d", er.End-1)
		}
		if er.Start == er.End-1 {
			r.linef("extensions %d;", er.Start)
		} else {
			r.linef("extensions %d to %s;", er.Start, end)
		}
	}

	for _, ext := range m.Extensions {
		r.extension(ext, syntax)
	}

	r.indent--
	r.line("}")
}

// oneofFields returns the member fields of oneof index idx in declaration
// order.
func oneofFields(m *schema.Message, idx int32) []*schema.Field {
	var fields []*schema.Field
	for _, f := range m.Fields {
		if f.OneofIndex == idx && !f.Proto3Optional {
			fields = append(fields, f)
		}
	}
	return fields
}

// inRealOneof reports whether the field renders inside an explicit oneof
// block rather than at message scope.
func inRealOneof(f *schema.Field, m *schema.Message) bool {
	if f.OneofIndex < 0 || int(f.OneofIndex) >= len(m.Oneofs) {
		return false
	}
	if f.Proto3Optional || m.Oneofs[f.OneofIndex].Synthetic() {
		return false
	}
	return true
}

func (r *renderer) oneof(o *schema.Oneof, fields []*schema.Field, syntax schema.Syntax) {
	r.linef("oneof %s {", o.Name)
	r.indent++
	for _, f := range fields {
		r.linef("%s %s = %d%s;", typeName(f), f.Name, f.Number, r.fieldOptionSuffix(f, syntax))
	}
	r.indent--
	r.line("}")
}

func (r *renderer) field(f *schema.Field, syntax schema.Syntax, m *schema.Message) {
	if entry := mapEntryFor(f, m); entry != nil {
		key, value := mapComponents(entry)
		r.linef("map<%s, %s> %s = %d%s;", typeName(key), typeName(value), f.Name, f.Number, r.fieldOptionSuffix(f, syntax))
		return
	}
	label := fieldLabel(f, syntax, m)
	if label != "" {
		label += " "
	}
	r.linef("%s%s %s = %d%s;", label, typeName(f), f.Name, f.Number, r.fieldOptionSuffix(f, syntax))
}

func fieldLabel(f *schema.Field, syntax schema.Syntax, m *schema.Message) string {
	switch f.Label {
	case schema.LabelRepeated:
		return "repeated"
	case schema.LabelRequired:
		return "required"
	default:
		if syntax == schema.SyntaxProto2 {
			return "optional"
		}
		if isProto3Optional(f, m) {
			return "optional"
		}
		return ""
	}
}

func isProto3Optional(f *schema.Field, m *schema.Message) bool {
	if f.Proto3Optional {
		return true
	}
	if f.OneofIndex >= 0 && int(f.OneofIndex) < len(m.Oneofs) {
		return m.Oneofs[f.OneofIndex].Synthetic()
	}
	return false
}

// mapEntryFor resolves the synthetic entry message backing a map field, or
// nil for ordinary fields.
func mapEntryFor(f *schema.Field, m *schema.Message) *schema.Message {
	if m == nil || f.Label != schema.LabelRepeated || f.Type != schema.TypeMessage {
		return nil
	}
	for _, n := range m.Nested {
		if !n.MapEntry {
			continue
		}
		if f.TypeName == n.Name || strings.HasSuffix(f.TypeName, "."+n.Name) {
			return n
		}
	}
	return nil
}

func mapComponents(entry *schema.Message) (key, value *schema.Field) {
	for _, f := range entry.Fields {
		switch f.Number {
		case 1:
			key = f
		case 2:
			value = f
		}
	}
	return key, value
}

func typeName(f *schema.Field) string {
	if f == nil {
		return ""
	}
	if s := f.Type.ScalarName(); s != "" {
		return s
	}
	return strings.TrimPrefix(f.TypeName, ".")
}

// fieldOptionSuffix renders the bracketed option list: the proto2 default
// first, then packed, deprecated, json_name, then the rest alphabetically.
func (r *renderer) fieldOptionSuffix(f *schema.Field, syntax schema.Syntax) string {
	var opts []string

	if syntax == schema.SyntaxProto2 && f.Default != nil {
		opts = append(opts, "default = "+formatDefault(f))
	}
	if f.Options.Packed != nil {
		opts = append(opts, fmt.Sprintf("packed = %v", *f.Options.Packed))
	}
	if f.Options.Deprecated {
		opts = append(opts, "deprecated = true")
	}
	if f.JSONName != "" && f.JSONName != lowerCamelCase(f.Name) {
		opts = append(opts, fmt.Sprintf("json_name = %q", f.JSONName))
	}

	var rest []string
	if f.Options.CType != "" {
		rest = append(rest, "ctype = "+f.Options.CType)
	}
	if f.Options.Lazy {
		rest = append(rest, "lazy = true")
	}
	if f.Options.Weak {
		rest = append(rest, "weak = true")
	}
	sort.Strings(rest)
	opts = append(opts, rest...)

	if len(opts) == 0 {
		return ""
	}
	return " [" + strings.Join(opts, ", ") + "]"
}

func formatDefault(f *schema.Field) string {
	v := *f.Default
	switch f.Type {
	case schema.TypeString, schema.TypeBytes:
		return "\"" + escapeString(v) + "\""
	default:
		// Bools, enum identifiers, and numbers are stored in emittable form.
		return v
	}
}

func (r *renderer) enum(e *schema.Enum) {
	r.linef("enum %s {", e.Name)
	r.indent++
	if e.AllowAlias {
		r.line("option allow_alias = true;")
	}
	r.reservedRanges(e.ReservedRanges, true)
	r.reservedNames(e.ReservedNames)
	for _, v := range e.Values {
		suffix := ""
		if v.Deprecated {
			suffix = " [deprecated = true]"
		}
		r.linef("%s = %d%s;", v.Name, v.Number, suffix)
	}
	r.indent--
	r.line("}")
}

// reservedRanges emits one reserved statement for all ranges. Message ranges
// have exclusive ends, enum ranges inclusive ends.
func (r *renderer) reservedRanges(ranges []schema.Range, inclusive bool) {
	if len(ranges) == 0 {
		return
	}
	parts := make([]string, 0, len(ranges))
	for _, rng := range ranges {
		parts = append(parts, formatRange(rng, inclusive))
	}
	r.linef("reserved %s;", strings.Join(parts, ", "))
}

func formatRange(rng schema.Range, inclusive bool) string {
	last := rng.End
	ceiling := int32(maxEnumNumber)
	if !inclusive {
		last = rng.End - 1
		ceiling = maxFieldNumber + 1
	}
	if rng.Start == last {
		return fmt.Sprintf("%d", rng.Start)
	}
	if rng.End == ceiling {
		return fmt.Sprintf("%d to max", rng.Start)
	}
	return fmt.Sprintf("%d to %d", rng.Start, last)
}

func (r *renderer) reservedNames(names []string) {
	if len(names) == 0 {
		return
	}
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, fmt.Sprintf("%q", n))
	}
	r.linef("reserved %s;", strings.Join(quoted, ", "))
}

func (r *renderer) extension(f *schema.Field, syntax schema.Syntax) {
	r.linef("extend %s {", strings.TrimPrefix(f.Extendee, "."))
	r.indent++
	label := ""
	switch f.Label {
	case schema.LabelRepeated:
		label = "repeated "
	case schema.LabelRequired:
		label = "required "
	default:
		if syntax == schema.SyntaxProto2 {
			label = "optional "
		}
	}
	r.linef("%s%s %s = %d%s;", label, typeName(f), f.Name, f.Number, r.fieldOptionSuffix(f, syntax))
	r.indent--
	r.line("}")
}

func (r *renderer) service(s *schema.Service) {
	r.linef("service %s {", s.Name)
	r.indent++
	for _, m := range s.Methods {
		input := strings.TrimPrefix(m.Input, ".")
		if m.ClientStreaming {
			input = "stream " + input
		}
		output := strings.TrimPrefix(m.Output, ".")
		if m.ServerStreaming {
			output = "stream " + output
		}
		if m.Deprecated {
			r.linef("rpc %s (%s) returns (%s) {", m.Name, input, output)
			r.indent++
			r.line("option deprecated = true;")
			r.indent--
			r.line("}")
		} else {
			r.linef("rpc %s (%s) returns (%s);", m.Name, input, output)
		}
	}
	r.indent--
	r.line("}")
}

// escapeString escapes a value for a double-quoted proto string literal.
// Bytes outside printable ASCII render as \xNN.
func escapeString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch b {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if b < 0x20 || b >= 0x80 {
				fmt.Fprintf(&sb, `\x%02x`, b)
			} else {
				sb.WriteByte(b)
			}
		}
	}
	return sb.String()
}

// lowerCamelCase derives the default json_name from a snake_case field name.
func lowerCamelCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	upperNext := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			upperNext = true
		case upperNext:
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			sb.WriteByte(c)
			upperNext = false
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
