package objectstream

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"reflect"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Encoder writes content to a Java object serialization stream. Objects,
// class descriptors and strings that were already written are replaced by
// back-references.
//
// Each top-level write is atomic with respect to the handle table: if it
// fails, nothing of it reaches the underlying writer and the Encoder stays
// usable. An Encoder is not safe for concurrent use.
type Encoder struct {
	w       *bufio.Writer
	dst     io.Writer
	stage   bytes.Buffer
	opts    *options
	logger  *zap.Logger
	handles *writeHandles
	closed  atomic.Bool
}

// NewEncoder writes the stream header to w and returns an Encoder for the
// rest of the stream.
func NewEncoder(w io.Writer, opts ...Option) (*Encoder, error) {
	o := newOptions(opts)
	enc := &Encoder{
		w:       bufio.NewWriterSize(w, o.bufferSize),
		dst:     w,
		opts:    o,
		logger:  o.logger,
		handles: newWriteHandles(),
	}
	if err := enc.transact(enc.writeHeader); err != nil {
		return nil, err
	}
	return enc, nil
}

// Flush writes any buffered data to the underlying writer.
func (enc *Encoder) Flush() error {
	if err := enc.w.Flush(); err != nil {
		return errors.Wrap(err, "flush object stream")
	}
	return nil
}

// Close flushes the encoder and closes the underlying writer unless the
// encoder was created with WithLeaveOpen. Close may be called more than
// once; only the first call has an effect.
func (enc *Encoder) Close() error {
	if !enc.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := enc.Flush()
	if !enc.opts.leaveOpen {
		if c, ok := enc.dst.(io.Closer); ok {
			err = errors.CombineErrors(err, c.Close())
		}
	}
	return err
}

// transact runs f against the staging buffer and publishes its output only
// if f succeeds. Handles assigned by a failed f are released.
func (enc *Encoder) transact(f func() error) error {
	if enc.closed.Load() {
		return ErrClosed
	}
	if err := f(); err != nil {
		enc.stage.Reset()
		enc.handles.rollback()
		return err
	}
	enc.handles.commit()
	_, err := enc.w.Write(enc.stage.Bytes())
	enc.stage.Reset()
	if err != nil {
		return errors.Wrap(err, "write object stream")
	}
	return enc.Flush()
}

func (enc *Encoder) writeBinary(values ...any) error {
	for _, value := range values {
		if err := binary.Write(&enc.stage, binary.BigEndian, value); err != nil {
			return err
		}
	}
	return nil
}

func (enc *Encoder) writeHeader() error {
	return enc.writeBinary(StreamMagic, StreamVersion)
}

func (enc *Encoder) writeUTF(s string) error {
	p := []byte(s)
	if len(p) > maxUTFLength {
		return errors.Wrapf(ErrUnsupported, "long string of %d bytes", len(p))
	}
	if !utf8.Valid(p) {
		return errors.Wrapf(ErrInvalidValue, "writeUTF: invalid UTF-8 in %q", s)
	}
	return enc.writeBinary(uint16(len(p)), p)
}

func (enc *Encoder) writeRefOr(object any, f func() error) error {
	if handle := enc.handles.findHandle(object); handle != -1 {
		return enc.writeBinary(TcReference, handle)
	}
	return f()
}

// Reset clears the handle table and writes TC_RESET. Content written after
// Reset never refers back to content written before it.
func (enc *Encoder) Reset() error {
	return enc.transact(func() error {
		enc.logger.Debug("handle table reset", zap.Int("handles", enc.handles.count()))
		enc.handles.reset()
		return enc.writeBinary(TcReset)
	})
}

// WriteContent writes v, which must be nil, string, *Object, *ClassDesc,
// BlockData or ResetMarker, and flushes the stream.
func (enc *Encoder) WriteContent(v any) error {
	if _, ok := v.(ResetMarker); ok {
		return enc.Reset()
	}
	return enc.transact(func() error {
		return enc.writeContent(v)
	})
}

// WriteObject writes obj, or TC_NULL if obj is nil, and flushes the stream.
func (enc *Encoder) WriteObject(obj *Object) error {
	return enc.transact(func() error {
		return enc.writeObject(obj)
	})
}

// WriteClassDesc writes desc, or TC_NULL if desc is nil, and flushes the
// stream.
func (enc *Encoder) WriteClassDesc(desc *ClassDesc) error {
	return enc.transact(func() error {
		return enc.writeClassDesc(desc)
	})
}

// WriteString writes s and flushes the stream.
func (enc *Encoder) WriteString(s string) error {
	return enc.transact(func() error {
		return enc.writeString(s)
	})
}

func (enc *Encoder) writeContent(v any) error {
	switch v := v.(type) {
	case nil:
		return enc.writeBinary(TcNull)
	case *Object:
		return enc.writeObject(v)
	case *ClassDesc:
		return enc.writeClassDesc(v)
	case string:
		return enc.writeString(v)
	case BlockData:
		return enc.writeBlockData(v)
	case ResetMarker:
		return errors.Wrap(ErrInvalidValue, "reset inside nested content")
	default:
		return errors.Wrapf(ErrInvalidValue, "cannot serialize type: %T", v)
	}
}

func (enc *Encoder) writeObject(obj *Object) error {
	if obj == nil {
		return enc.writeBinary(TcNull)
	}
	return enc.writeRefOr(obj, func() error {
		return enc.newObject(obj)
	})
}

func (enc *Encoder) newObject(obj *Object) error {
	desc := obj.ClassDesc
	if desc == nil {
		return errors.WithStack(ErrMissingData)
	}
	switch {
	case desc.Flags.Has(ScSerializable):
	case desc.Flags.Has(ScExternalizable):
		return errors.Wrapf(ErrUnsupported, "externalizable class %s", desc.Name)
	default:
		return errors.Wrapf(ErrInvalidValue, "class %s is neither serializable nor externalizable", desc.Name)
	}
	if len(obj.Values) != len(desc.Fields) {
		return errors.Wrapf(ErrInvalidValue, "class %s declares %d fields, object has %d values",
			desc.Name, len(desc.Fields), len(obj.Values))
	}
	if !desc.Flags.Has(ScWriteMethod) && len(obj.ObjectAnnotation) > 0 {
		return errors.Wrapf(ErrInvalidValue, "class %s has no write method but object has annotations", desc.Name)
	}

	if err := enc.writeBinary(TcObject); err != nil {
		return err
	}
	if err := enc.writeClassDesc(desc); err != nil {
		return err
	}
	enc.handles.newHandle(obj)
	for i, field := range desc.Fields {
		if err := enc.writeClassData(field, obj.Values[i]); err != nil {
			return errors.Wrapf(err, "class %s field %s", desc.Name, field.FieldName())
		}
	}
	if desc.Flags.Has(ScWriteMethod) {
		return enc.writeAnnotation(obj.ObjectAnnotation)
	}
	return nil
}

func (enc *Encoder) writeClassData(field Field, value any) error {
	f, ok := field.(PrimitiveField)
	if !ok {
		return enc.writeContent(value)
	}
	if f.Type == Char {
		return errors.Wrap(ErrUnsupported, "char field")
	}
	typ, ok := f.Type.goType()
	if !ok {
		return errors.Wrapf(ErrInvalidValue, "invalid primitive type %02X", byte(f.Type))
	}
	if reflect.TypeOf(value) != typ {
		return errors.Wrapf(ErrInvalidValue, "%s field holds %T", f.Type, value)
	}
	return enc.writeBinary(value)
}

func (enc *Encoder) writeAnnotation(values []any) error {
	for _, v := range values {
		if err := enc.writeContent(v); err != nil {
			return err
		}
	}
	return enc.writeBinary(TcEndblockdata)
}

func (enc *Encoder) writeClassDesc(desc *ClassDesc) error {
	if desc == nil {
		return enc.writeBinary(TcNull)
	}
	return enc.writeRefOr(desc, func() error {
		return enc.newClassDesc(desc)
	})
}

func (enc *Encoder) newClassDesc(desc *ClassDesc) error {
	if len(desc.Fields) > maxFieldCount {
		return errors.Wrapf(ErrInvalidValue, "class %s has %d fields", desc.Name, len(desc.Fields))
	}
	for i, field := range desc.Fields {
		if err := validateField(field); err != nil {
			return errors.Wrapf(err, "class %s field %d", desc.Name, i)
		}
	}

	if err := enc.writeBinary(TcClassdesc); err != nil {
		return err
	}
	if err := enc.writeUTF(desc.Name); err != nil {
		return err
	}
	if err := enc.writeBinary(desc.SerialVersionUID); err != nil {
		return err
	}
	enc.handles.newHandle(desc)
	if err := enc.writeBinary(byte(desc.Flags), int16(len(desc.Fields))); err != nil {
		return err
	}
	for _, field := range desc.Fields {
		if err := enc.fieldDesc(field); err != nil {
			return err
		}
	}
	if err := enc.writeAnnotation(desc.ClassAnnotation); err != nil {
		return err
	}
	return enc.writeClassDesc(desc.SuperClass)
}

func validateField(field Field) error {
	switch f := field.(type) {
	case PrimitiveField:
		if !f.Type.Valid() {
			return errors.Wrapf(ErrInvalidValue, "invalid primitive type %02X", byte(f.Type))
		}
	case ObjectField:
	default:
		return errors.Wrapf(ErrInvalidValue, "unknown field %T", field)
	}
	return nil
}

func (enc *Encoder) fieldDesc(field Field) error {
	if err := enc.writeBinary(field.TypeCode()); err != nil {
		return err
	}
	if err := enc.writeUTF(field.FieldName()); err != nil {
		return err
	}
	if f, ok := field.(ObjectField); ok {
		return enc.writeString(f.ClassName)
	}
	return nil
}

func (enc *Encoder) writeString(s string) error {
	return enc.writeRefOr(s, func() error {
		if err := enc.writeBinary(TcString); err != nil {
			return err
		}
		enc.handles.newHandle(s)
		return enc.writeUTF(s)
	})
}

func (enc *Encoder) writeBlockData(p BlockData) error {
	if len(p) > maxBlockDataLength {
		return errors.Wrapf(ErrUnsupported, "long block data of %d bytes", len(p))
	}
	return enc.writeBinary(TcBlockdata, uint8(len(p)), []byte(p))
}
