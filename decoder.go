package objectstream

import (
	"bufio"
	"encoding/binary"
	"io"
	"reflect"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Decoder reads content from a Java object serialization stream.
//
// A Decoder is not safe for concurrent use. After any error other than
// io.EOF from ReadContent the Decoder must be discarded.
type Decoder struct {
	r       *bufio.Reader
	src     io.Reader
	opts    *options
	logger  *zap.Logger
	handles readHandles
	utf     []byte
	depth   int
	closed  atomic.Bool
}

// NewDecoder reads and validates the stream header from r. It returns an
// error wrapping ErrMalformed if the magic number does not match and
// ErrVersion if the stream version is not supported.
func NewDecoder(r io.Reader, opts ...Option) (*Decoder, error) {
	o := newOptions(opts)
	dec := &Decoder{
		r:      bufio.NewReaderSize(r, o.bufferSize),
		src:    r,
		opts:   o,
		logger: o.logger,
	}
	if err := dec.readHeader(); err != nil {
		return nil, err
	}
	return dec, nil
}

// Close releases the decoder. The underlying reader is closed unless the
// decoder was created with WithLeaveOpen. Close may be called more than
// once; only the first call has an effect.
func (dec *Decoder) Close() error {
	if !dec.closed.CompareAndSwap(false, true) {
		return nil
	}
	if dec.opts.leaveOpen {
		return nil
	}
	if c, ok := dec.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (dec *Decoder) readBinary(dsts ...any) error {
	for _, dst := range dsts {
		if err := binary.Read(dec.r, binary.BigEndian, dst); err != nil {
			return readError(err)
		}
	}
	return nil
}

func (dec *Decoder) readByte() (byte, error) {
	b, err := dec.r.ReadByte()
	if err != nil {
		return 0, readError(err)
	}
	return b, nil
}

func (dec *Decoder) readFull(p []byte) error {
	if _, err := io.ReadFull(dec.r, p); err != nil {
		return readError(err)
	}
	return nil
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.WithStack(ErrTruncated)
	}
	return errors.Wrap(err, "read object stream")
}

func (dec *Decoder) readHeader() error {
	var magic, version uint16
	if err := dec.readBinary(&magic, &version); err != nil {
		return err
	}
	if magic != StreamMagic {
		return errors.Wrapf(ErrMalformed, "readHeader: invalid stream header: %04X", magic)
	}
	if version != StreamVersion {
		return errors.Wrapf(ErrVersion, "readHeader: version %d", version)
	}
	return nil
}

func (dec *Decoder) readUTF() (string, error) {
	var l uint16
	if err := dec.readBinary(&l); err != nil {
		return "", err
	}
	if cap(dec.utf) < int(l) {
		dec.utf = make([]byte, l)
	}
	p := dec.utf[:l]
	if err := dec.readFull(p); err != nil {
		return "", err
	}
	if !utf8.Valid(p) {
		return "", errors.Wrap(ErrMalformed, "readUTF: invalid UTF-8")
	}
	return string(p), nil
}

func (dec *Decoder) enter() error {
	if dec.depth >= dec.opts.maxDepth {
		return errors.Wrapf(ErrMalformed, "content nested deeper than %d", dec.opts.maxDepth)
	}
	dec.depth++
	return nil
}

func (dec *Decoder) leave() {
	dec.depth--
}

// ReadContent reads the next top-level value. The result is one of nil,
// string, *Object, *ClassDesc, BlockData or ResetMarker. ReadContent returns
// io.EOF, unwrapped, when the stream ends cleanly between two values.
func (dec *Decoder) ReadContent() (any, error) {
	if dec.closed.Load() {
		return nil, ErrClosed
	}
	dec.depth = 0
	tc, err := dec.r.ReadByte()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, readError(err)
	}
	return dec.readContentInternal(tc)
}

// ReadClassDesc reads the next value, which must be a class descriptor,
// a reference to one or null. Like ReadContent, it returns io.EOF,
// unwrapped, when the stream ends cleanly before the value.
func (dec *Decoder) ReadClassDesc() (*ClassDesc, error) {
	if dec.closed.Load() {
		return nil, ErrClosed
	}
	if _, err := dec.r.Peek(1); err == io.EOF {
		return nil, io.EOF
	}
	dec.depth = 0
	return dec.readClassDesc()
}

func (dec *Decoder) readContent() (any, error) {
	tc, err := dec.readByte()
	if err != nil {
		return nil, err
	}
	return dec.readContentInternal(tc)
}

func (dec *Decoder) readContentInternal(tc byte) (any, error) {
	if err := dec.enter(); err != nil {
		return nil, err
	}
	defer dec.leave()
	switch tc {
	case TcObject:
		return dec.readObjectCore()
	case TcString:
		return dec.readStringCore()
	case TcClassdesc:
		return dec.readClassDescCore()
	case TcReference:
		return dec.readHandle()
	case TcNull:
		return nil, nil
	case TcReset:
		return dec.readResetCore(), nil
	case TcBlockdata:
		return dec.readBlockDataCore()
	case TcClass, TcArray, TcLongstring, TcEnum, TcProxyclassdesc, TcException, TcBlockdatalong:
		dec.logger.Debug("rejected unsupported content", zap.String("tag", tagName(tc)))
		return nil, unsupportedTag(tc)
	default:
		return nil, invalidTag("readContent", tc)
	}
}

func (dec *Decoder) readHandle() (any, error) {
	var handle int32
	if err := dec.readBinary(&handle); err != nil {
		return nil, err
	}
	return dec.handles.lookup(handle)
}

func (dec *Decoder) readResetCore() ResetMarker {
	dec.logger.Debug("handle table reset", zap.Int("handles", len(dec.handles.entries)))
	dec.handles.reset()
	return ResetMarker{}
}

func (dec *Decoder) readStringCore() (string, error) {
	s, err := dec.readUTF()
	if err != nil {
		return "", err
	}
	dec.handles.assign(s)
	return s, nil
}

func (dec *Decoder) readBlockDataCore() (BlockData, error) {
	l, err := dec.readByte()
	if err != nil {
		return nil, err
	}
	p := make(BlockData, l)
	if err := dec.readFull(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (dec *Decoder) readClassDesc() (*ClassDesc, error) {
	if err := dec.enter(); err != nil {
		return nil, err
	}
	defer dec.leave()
	tc, err := dec.readByte()
	if err != nil {
		return nil, err
	}
	switch tc {
	case TcNull:
		return nil, nil
	case TcReference:
		v, err := dec.readHandle()
		if err != nil {
			return nil, err
		}
		desc, ok := v.(*ClassDesc)
		if !ok {
			return nil, errors.Wrapf(ErrMalformed, "readClassDesc: reference is not a class descriptor: %T", v)
		}
		return desc, nil
	case TcProxyclassdesc:
		dec.logger.Debug("rejected unsupported content", zap.String("tag", tagName(tc)))
		return nil, unsupportedTag(tc)
	case TcClassdesc:
		return dec.readClassDescCore()
	default:
		return nil, invalidTag("readClassDesc", tc)
	}
}

func (dec *Decoder) readClassDescCore() (*ClassDesc, error) {
	name, err := dec.readUTF()
	if err != nil {
		return nil, err
	}
	desc := &ClassDesc{Name: name}
	if err := dec.readBinary(&desc.SerialVersionUID); err != nil {
		return nil, err
	}
	// Assigned before the field table so the descriptor's own fields and
	// annotations can refer to it.
	dec.handles.assign(desc)

	var (
		flags     byte
		numFields int16
	)
	if err := dec.readBinary(&flags, &numFields); err != nil {
		return nil, err
	}
	desc.Flags = ClassDescFlags(flags)
	if numFields < 0 {
		return nil, errors.Wrapf(ErrMalformed, "readClassDesc: negative field count %d", numFields)
	}
	desc.Fields = make([]Field, 0, int(numFields))
	for i := 0; i < int(numFields); i++ {
		field, err := dec.readFieldDesc()
		if err != nil {
			return nil, errors.Wrapf(err, "class %s field %d", name, i)
		}
		desc.Fields = append(desc.Fields, field)
	}

	if desc.ClassAnnotation, err = dec.readAnnotation(); err != nil {
		return nil, err
	}
	if desc.SuperClass, err = dec.readClassDesc(); err != nil {
		return nil, err
	}
	return desc, nil
}

func (dec *Decoder) readFieldDesc() (Field, error) {
	tcode, err := dec.readByte()
	if err != nil {
		return nil, err
	}
	switch tcode {
	case byte(Byte), byte(Char), byte(Double), byte(Float), byte(Integer), byte(Long), byte(Short), byte(Boolean):
		fname, err := dec.readUTF()
		if err != nil {
			return nil, err
		}
		return PrimitiveField{Name: fname, Type: PrimitiveType(tcode)}, nil
	case typeCodeArray, typeCodeObject:
		fname, err := dec.readUTF()
		if err != nil {
			return nil, err
		}
		v, err := dec.readContent()
		if err != nil {
			return nil, err
		}
		className, ok := v.(string)
		if !ok {
			return nil, errors.Wrapf(ErrMalformed, "readFieldDesc: class name is not a string: %T", v)
		}
		return ObjectField{Name: fname, IsArray: tcode == typeCodeArray, ClassName: className}, nil
	default:
		return nil, invalidTag("readFieldDesc", tcode)
	}
}

// readAnnotation reads content until TC_ENDBLOCKDATA.
func (dec *Decoder) readAnnotation() ([]any, error) {
	var values []any
	for {
		tc, err := dec.readByte()
		if err != nil {
			return nil, err
		}
		if tc == TcEndblockdata {
			return values, nil
		}
		v, err := dec.readContentInternal(tc)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
}

func (dec *Decoder) readObjectCore() (*Object, error) {
	desc, err := dec.readClassDesc()
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, errors.Wrap(ErrMalformed, "readObject: null class descriptor")
	}
	obj := &Object{ClassDesc: desc}
	// Assigned before the field values so that cyclic references resolve.
	dec.handles.assign(obj)

	switch {
	case desc.Flags.Has(ScSerializable):
		obj.Values = make([]any, 0, len(desc.Fields))
		for _, field := range desc.Fields {
			v, err := dec.readClassData(field)
			if err != nil {
				return nil, errors.Wrapf(err, "class %s field %s", desc.Name, field.FieldName())
			}
			obj.Values = append(obj.Values, v)
		}
		if desc.Flags.Has(ScWriteMethod) {
			if obj.ObjectAnnotation, err = dec.readAnnotation(); err != nil {
				return nil, err
			}
		}
	case desc.Flags.Has(ScExternalizable):
		dec.logger.Debug("rejected externalizable object", zap.String("class", desc.Name))
		return nil, errors.Wrapf(ErrUnsupported, "externalizable class %s", desc.Name)
	default:
		return nil, errors.Wrapf(ErrMalformed, "readObject: class %s is neither serializable nor externalizable", desc.Name)
	}
	return obj, nil
}

func (dec *Decoder) readClassData(field Field) (any, error) {
	switch f := field.(type) {
	case PrimitiveField:
		return dec.readPrimitive(f.Type)
	case ObjectField:
		return dec.readContent()
	default:
		return nil, errors.Wrapf(ErrMalformed, "readClassData: unknown field %T", field)
	}
}

func (dec *Decoder) readPrimitive(typ PrimitiveType) (any, error) {
	if typ == Char {
		return nil, errors.Wrap(ErrUnsupported, "char field")
	}
	fieldTyp, ok := typ.goType()
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "readPrimitive: invalid type %02X", byte(typ))
	}
	fieldData := reflect.New(fieldTyp).Interface()
	if err := dec.readBinary(fieldData); err != nil {
		return nil, err
	}
	return reflect.Indirect(reflect.ValueOf(fieldData)).Interface(), nil
}
