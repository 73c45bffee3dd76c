package objectstream

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// FieldResolver looks up object values by field name. The name to index
// mapping is cached per class descriptor instance; descriptors are compared
// by identity, so two structurally equal descriptors get separate entries.
//
// Only the fields declared by the object's own class descriptor are
// searched. Fields of superclasses are not found.
//
// A FieldResolver is not safe for concurrent use.
type FieldResolver struct {
	fieldMap map[*ClassDesc]map[string]int
}

func NewFieldResolver() *FieldResolver {
	return &FieldResolver{
		fieldMap: make(map[*ClassDesc]map[string]int),
	}
}

// Value returns the value of the named field of obj. It fails with
// ErrMissingData if obj has no class descriptor and with ErrFieldNotFound
// if the descriptor declares no such field.
func (r *FieldResolver) Value(obj *Object, name string) (any, error) {
	if obj == nil || obj.ClassDesc == nil {
		return nil, errors.WithStack(ErrMissingData)
	}
	index, err := r.Index(obj.ClassDesc, name)
	if err != nil {
		return nil, err
	}
	if index >= len(obj.Values) {
		return nil, errors.Wrapf(ErrMissingData, "object has %d values, field %s is at %d", len(obj.Values), name, index)
	}
	return obj.Values[index], nil
}

// Index returns the position of the named field in desc.Fields.
func (r *FieldResolver) Index(desc *ClassDesc, name string) (int, error) {
	if desc == nil {
		return 0, errors.WithStack(ErrMissingData)
	}
	m, ok := r.fieldMap[desc]
	if !ok {
		m = make(map[string]int)
		r.fieldMap[desc] = m
	}
	if index, ok := m[name]; ok {
		return index, nil
	}
	_, index, ok := lo.FindIndexOf(desc.Fields, func(f Field) bool {
		return f.FieldName() == name
	})
	if !ok {
		return 0, errors.Wrapf(ErrFieldNotFound, "class %s has no field %s", desc.Name, name)
	}
	m[name] = index
	return index, nil
}

// Reset drops all cached mappings. Use it when descriptors of a previous
// stream session must not be matched against a new one.
func (r *FieldResolver) Reset() {
	clear(r.fieldMap)
}
