package objectstream

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Content is implemented by the entities a stream can refer back to through
// a handle: class descriptors and objects. Strings are referenceable as well
// but are represented by the Go string type.
type Content interface {
	fmt.Stringer
	content()
}

var (
	_ Content = (*ClassDesc)(nil)
	_ Content = (*Object)(nil)
)

// ClassDescFlags is the flag byte of a class descriptor.
type ClassDescFlags byte

// The flag byte classDescFlags may include values of
const (
	ScWriteMethod    ClassDescFlags = 0x01 // if SC_SERIALIZABLE
	ScBlockData      ClassDescFlags = 0x08 // if SC_EXTERNALIZABLE
	ScSerializable   ClassDescFlags = 0x02
	ScExternalizable ClassDescFlags = 0x04
	ScEnum           ClassDescFlags = 0x10
)

// Has reports whether all bits of flag are set.
func (f ClassDescFlags) Has(flag ClassDescFlags) bool {
	return f&flag == flag
}

func (f ClassDescFlags) String() string {
	names := lo.FilterMap([]ClassDescFlags{ScWriteMethod, ScSerializable, ScExternalizable, ScBlockData, ScEnum},
		func(flag ClassDescFlags, _ int) (string, bool) {
			if !f.Has(flag) {
				return "", false
			}
			switch flag {
			case ScWriteMethod:
				return "WriteMethod", true
			case ScSerializable:
				return "Serializable", true
			case ScExternalizable:
				return "Externalizable", true
			case ScBlockData:
				return "BlockData", true
			default:
				return "Enum", true
			}
		})
	if rest := f &^ (ScWriteMethod | ScSerializable | ScExternalizable | ScBlockData | ScEnum); rest != 0 {
		names = append(names, fmt.Sprintf("0x%02X", byte(rest)))
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// ClassDesc describes the serialized form of a class: its fields in
// declaration order, annotations written by the class and its superclass.
type ClassDesc struct {
	Name             string
	SerialVersionUID int64
	Flags            ClassDescFlags
	Fields           []Field
	// ClassAnnotation holds the values written between the field table and
	// TC_ENDBLOCKDATA.
	ClassAnnotation []any
	SuperClass      *ClassDesc
}

func (*ClassDesc) content() {}

// Field returns the declared field with the given name. Superclass fields
// are not searched.
func (desc *ClassDesc) Field(name string) (Field, bool) {
	return lo.Find(desc.Fields, func(f Field) bool {
		return f.FieldName() == name
	})
}

func (desc *ClassDesc) String() string {
	if desc == nil {
		return "null"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s { Fields = [%s], ClassAnnotation = [%s], SuperClass = ",
		desc.Name,
		strings.Join(lo.Map(desc.Fields, func(f Field, _ int) string { return f.String() }), ", "),
		joinValues(desc.ClassAnnotation))
	if desc.SuperClass == nil {
		b.WriteString("null")
	} else {
		b.WriteString(desc.SuperClass.Name)
	}
	b.WriteString(" }")
	return b.String()
}

// Object is a decoded instance: a class descriptor and one value per
// descriptor field, in the same order.
type Object struct {
	ClassDesc *ClassDesc
	// Values[i] is the value of ClassDesc.Fields[i]. Primitive values are
	// int8, int16, int32, int64, float32, float64 or bool; reference values
	// are nil, string, *Object, *ClassDesc or BlockData.
	Values []any
	// ObjectAnnotation holds the values written by a custom writeObject
	// method. It is only present when the descriptor has ScWriteMethod.
	ObjectAnnotation []any
}

func (*Object) content() {}

func (obj *Object) String() string {
	if obj == nil {
		return "null"
	}
	name := "null"
	if obj.ClassDesc != nil {
		name = obj.ClassDesc.Name
	}
	return fmt.Sprintf("Object { ClassDesc = %s, Values = [%s], ObjectAnnotation = [%s] }",
		name, joinValues(obj.Values), joinValues(obj.ObjectAnnotation))
}

// BlockData is the payload of a TC_BLOCKDATA record.
type BlockData []byte

// ResetMarker is returned by Decoder.ReadContent where the stream cleared its
// handle table. Passing it to Encoder.WriteContent resets the encoder.
type ResetMarker struct{}

func (ResetMarker) String() string {
	return "Reset"
}

// joinValues renders nested content by name only, so cyclic graphs print.
func joinValues(values []any) string {
	return strings.Join(lo.Map(values, func(v any, _ int) string {
		switch v := v.(type) {
		case nil:
			return "null"
		case *Object:
			if v.ClassDesc == nil {
				return "Object"
			}
			return "Object(" + v.ClassDesc.Name + ")"
		case *ClassDesc:
			return "ClassDesc(" + v.Name + ")"
		case string:
			return fmt.Sprintf("%q", v)
		case BlockData:
			return fmt.Sprintf("BlockData(%d)", len(v))
		default:
			return fmt.Sprint(v)
		}
	}), ", ")
}
