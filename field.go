package objectstream

import (
	"fmt"
	"reflect"
	"strings"
)

// PrimitiveType is the type code of a primitive field.
type PrimitiveType byte

const (
	Byte    PrimitiveType = 'B'
	Char    PrimitiveType = 'C'
	Double  PrimitiveType = 'D'
	Float   PrimitiveType = 'F'
	Integer PrimitiveType = 'I'
	Long    PrimitiveType = 'J'
	Short   PrimitiveType = 'S'
	Boolean PrimitiveType = 'Z'
)

// Valid reports whether t is one of the eight primitive type codes.
func (t PrimitiveType) Valid() bool {
	switch t {
	case Byte, Char, Double, Float, Integer, Long, Short, Boolean:
		return true
	}
	return false
}

// goType is the Go type a primitive value of type t decodes to. Char has
// no mapping.
func (t PrimitiveType) goType() (reflect.Type, bool) {
	switch t {
	case Byte:
		return reflect.TypeOf(int8(0)), true
	case Double:
		return reflect.TypeOf(float64(0)), true
	case Float:
		return reflect.TypeOf(float32(0)), true
	case Integer:
		return reflect.TypeOf(int32(0)), true
	case Long:
		return reflect.TypeOf(int64(0)), true
	case Short:
		return reflect.TypeOf(int16(0)), true
	case Boolean:
		return reflect.TypeOf(false), true
	}
	return nil, false
}

func (t PrimitiveType) String() string {
	switch t {
	case Byte:
		return "byte"
	case Char:
		return "char"
	case Double:
		return "double"
	case Float:
		return "float"
	case Integer:
		return "int"
	case Long:
		return "long"
	case Short:
		return "short"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("PrimitiveType(0x%02X)", byte(t))
	}
}

// Field is an entry of a class descriptor's field table. It is either a
// PrimitiveField or an ObjectField.
type Field interface {
	fmt.Stringer
	FieldName() string
	// TypeCode is the byte that introduces the field on the wire.
	TypeCode() byte
	field()
}

var (
	_ Field = PrimitiveField{}
	_ Field = ObjectField{}
)

type PrimitiveField struct {
	Name string
	Type PrimitiveType
}

func (PrimitiveField) field() {}

func (f PrimitiveField) FieldName() string { return f.Name }

func (f PrimitiveField) TypeCode() byte { return byte(f.Type) }

func (f PrimitiveField) String() string {
	return f.Type.String() + " " + f.Name
}

// ObjectField is a reference-typed field. ClassName is the JVM field
// descriptor of the field type, e.g. "Ljava/lang/String;" or "[I".
type ObjectField struct {
	Name      string
	IsArray   bool
	ClassName string
}

func (ObjectField) field() {}

func (f ObjectField) FieldName() string { return f.Name }

func (f ObjectField) TypeCode() byte {
	if f.IsArray {
		return typeCodeArray
	}
	return typeCodeObject
}

func (f ObjectField) String() string {
	if f.IsArray {
		return f.ClassName + "[] " + f.Name
	}
	return f.ClassName + " " + f.Name
}

// Well-known class names.
const (
	ClassString       = "java.lang.String"
	ClassObject       = "java.lang.Object"
	ClassSerializable = "java.io.Serializable"
)

// NewObjectField returns a field of the given dotted class name, for example
// NewObjectField("name", ClassString).
func NewObjectField(name, className string) ObjectField {
	return ObjectField{
		Name:      name,
		ClassName: fieldDescriptor(className),
	}
}

// NewArrayField returns an array field. elem is the field descriptor of the
// element type, such as "I" or "Ljava/lang/String;".
func NewArrayField(name, elem string) ObjectField {
	return ObjectField{
		Name:      name,
		IsArray:   true,
		ClassName: "[" + elem,
	}
}

func fieldDescriptor(className string) string {
	return "L" + strings.ReplaceAll(className, ".", "/") + ";"
}
