package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func TestDecodeMinimalDescriptor(t *testing.T) {
	fd := &descriptorpb.FileDescriptorProto{Name: proto.String("test.proto")}
	data, err := proto.Marshal(fd)
	require.NoError(t, err)

	f, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, "test.proto", f.Name)
	require.Equal(t, SyntaxProto2, f.Syntax)
	require.Empty(t, f.Messages)
}

func TestDecodeRejectsMissingFilename(t *testing.T) {
	data, err := proto.Marshal(&descriptorpb.FileDescriptorProto{})
	require.NoError(t, err)

	_, err = Decode(data)
	require.ErrorIs(t, err, ErrInvalidSchema)
}

func TestDecodeRejectsNonUTF8Filename(t *testing.T) {
	_, err := FromDescriptor(&descriptorpb.FileDescriptorProto{
		Name: proto.String("bad\xff.proto"),
	})
	require.ErrorIs(t, err, ErrInvalidSchema)
}

func TestDecodeRejectsBrokenMapEntry(t *testing.T) {
	fd := &descriptorpb.FileDescriptorProto{
		Name: proto.String("m.proto"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Outer"),
			NestedType: []*descriptorpb.DescriptorProto{{
				Name:    proto.String("MEntry"),
				Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
				Field: []*descriptorpb.FieldDescriptorProto{{
					Name:   proto.String("key"),
					Number: proto.Int32(1),
					Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
				}},
			}},
		}},
	}
	_, err := FromDescriptor(fd)
	require.ErrorIs(t, err, ErrInvalidSchema)
}

func TestDecodeImportsCarryModifiers(t *testing.T) {
	fd := &descriptorpb.FileDescriptorProto{
		Name:             proto.String("deps.proto"),
		Dependency:       []string{"a.proto", "b.proto", "c.proto"},
		PublicDependency: []int32{1},
		WeakDependency:   []int32{2},
	}
	f, err := FromDescriptor(fd)
	require.NoError(t, err)
	require.Len(t, f.Imports, 3)
	require.False(t, f.Imports[0].Public)
	require.True(t, f.Imports[1].Public)
	require.True(t, f.Imports[2].Weak)
}

func TestDecodeFieldDefaultsAndOneof(t *testing.T) {
	fd := &descriptorpb.FileDescriptorProto{
		Name: proto.String("f.proto"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("M"),
			OneofDecl: []*descriptorpb.OneofDescriptorProto{
				{Name: proto.String("choice")},
			},
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:         proto.String("name"),
					Number:       proto.Int32(1),
					Label:        descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:         descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
					DefaultValue: proto.String("anon"),
				},
				{
					Name:       proto.String("pick"),
					Number:     proto.Int32(2),
					Label:      descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:       descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
					OneofIndex: proto.Int32(0),
				},
			},
		}},
	}
	f, err := FromDescriptor(fd)
	require.NoError(t, err)

	m := f.Messages[0]
	require.NotNil(t, m.Fields[0].Default)
	require.Equal(t, "anon", *m.Fields[0].Default)
	require.EqualValues(t, -1, m.Fields[0].OneofIndex)
	require.EqualValues(t, 0, m.Fields[1].OneofIndex)
	require.False(t, m.Oneofs[0].Synthetic())
}

func TestDecodeUntypedNamedFieldBecomesMessage(t *testing.T) {
	f := fieldOf(&descriptorpb.FieldDescriptorProto{
		Name:     proto.String("ref"),
		Number:   proto.Int32(1),
		TypeName: proto.String(".pkg.Other"),
	})
	require.Equal(t, TypeMessage, f.Type)
	require.Equal(t, LabelOptional, f.Label)
}

func TestDecodeEnumReservedAndAlias(t *testing.T) {
	e := enumOf(&descriptorpb.EnumDescriptorProto{
		Name:    proto.String("E"),
		Options: &descriptorpb.EnumOptions{AllowAlias: proto.Bool(true)},
		Value: []*descriptorpb.EnumValueDescriptorProto{
			{Name: proto.String("A"), Number: proto.Int32(0)},
			{Name: proto.String("B"), Number: proto.Int32(0)},
		},
		ReservedRange: []*descriptorpb.EnumDescriptorProto_EnumReservedRange{
			{Start: proto.Int32(5), End: proto.Int32(7)},
		},
		ReservedName: []string{"OLD"},
	})
	require.True(t, e.AllowAlias)
	require.Equal(t, []Range{{Start: 5, End: 7}}, e.ReservedRanges)
	require.Equal(t, []string{"OLD"}, e.ReservedNames)
}

func TestDecodeCTypeOnlyWhenNonDefault(t *testing.T) {
	withCord := fieldOf(&descriptorpb.FieldDescriptorProto{
		Name:    proto.String("s"),
		Number:  proto.Int32(1),
		Type:    descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
		Options: &descriptorpb.FieldOptions{Ctype: descriptorpb.FieldOptions_CORD.Enum()},
	})
	require.Equal(t, "CORD", withCord.Options.CType)

	plain := fieldOf(&descriptorpb.FieldDescriptorProto{
		Name:    proto.String("s"),
		Number:  proto.Int32(1),
		Type:    descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
		Options: &descriptorpb.FieldOptions{Ctype: descriptorpb.FieldOptions_STRING.Enum()},
	})
	require.Empty(t, plain.Options.CType)
}
