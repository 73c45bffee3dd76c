package objectstream

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newPtDesc() *ClassDesc {
	return &ClassDesc{
		Name:             "Pt",
		SerialVersionUID: 1,
		Flags:            ScSerializable,
		Fields: []Field{
			PrimitiveField{Name: "x", Type: Integer},
			PrimitiveField{Name: "y", Type: Integer},
		},
	}
}

func newPt(desc *ClassDesc, x, y int32) *Object {
	return &Object{
		ClassDesc: desc,
		Values:    []any{x, y},
	}
}

func newTestEncoder(t *testing.T, buf *bytes.Buffer) *Encoder {
	t.Helper()
	enc, err := NewEncoder(buf, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return enc
}

func TestNewEncoder(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewEncoder(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xac, 0xed, 0x00, 0x05}, buf.Bytes())
}

func TestEncoder_WriteObject_Pt(t *testing.T) {
	var buf bytes.Buffer
	enc := newTestEncoder(t, &buf)
	require.NoError(t, enc.WriteObject(newPt(newPtDesc(), 3, 4)))

	want := newStream().u8(TcObject).ptClassDesc().i32(3).i32(4).bytes()
	assert.Equal(t, want, buf.Bytes())
}

func TestEncoder_WriteObject_BackReference(t *testing.T) {
	var buf bytes.Buffer
	enc := newTestEncoder(t, &buf)
	obj := newPt(newPtDesc(), 3, 4)
	require.NoError(t, enc.WriteObject(obj))
	require.NoError(t, enc.WriteObject(obj))

	want := newStream().u8(TcObject).ptClassDesc().i32(3).i32(4).
		u8(TcReference).i32(baseWireHandle + 1).
		bytes()
	assert.Equal(t, want, buf.Bytes())
}

func TestEncoder_Reset(t *testing.T) {
	var buf bytes.Buffer
	enc := newTestEncoder(t, &buf)
	desc := newPtDesc()
	require.NoError(t, enc.WriteObject(newPt(desc, 1, 2)))
	require.NoError(t, enc.Reset())
	require.NoError(t, enc.WriteObject(newPt(desc, 1, 2)))
	require.NoError(t, enc.WriteContent(ResetMarker{}))

	want := newStream().
		u8(TcObject).ptClassDesc().i32(1).i32(2).
		u8(TcReset).
		u8(TcObject).ptClassDesc().i32(1).i32(2).
		u8(TcReset).
		bytes()
	assert.Equal(t, want, buf.Bytes())
}

func TestEncoder_WriteString_Identity(t *testing.T) {
	var buf bytes.Buffer
	enc := newTestEncoder(t, &buf)
	s1 := strings.Repeat("ab", 2)
	s2 := strings.Clone(s1)
	require.NoError(t, enc.WriteString(s1))
	require.NoError(t, enc.WriteString(s1))
	require.NoError(t, enc.WriteString(s2))
	require.NoError(t, enc.WriteString(""))
	require.NoError(t, enc.WriteString(""))

	want := newStream().
		u8(TcString).utf("abab").
		u8(TcReference).i32(baseWireHandle).
		u8(TcString).utf("abab").
		u8(TcString).utf("").
		u8(TcString).utf("").
		bytes()
	assert.Equal(t, want, buf.Bytes())
}

func TestEncoder_WriteContent(t *testing.T) {
	var buf bytes.Buffer
	enc := newTestEncoder(t, &buf)
	require.NoError(t, enc.WriteContent(nil))
	require.NoError(t, enc.WriteContent((*Object)(nil)))
	require.NoError(t, enc.WriteContent(BlockData{1, 2, 3}))
	require.NoError(t, enc.WriteContent("s"))
	require.NoError(t, enc.WriteClassDesc(nil))

	want := newStream().
		u8(TcNull).
		u8(TcNull).
		u8(TcBlockdata, 3, 1, 2, 3).
		u8(TcString).utf("s").
		u8(TcNull).
		bytes()
	assert.Equal(t, want, buf.Bytes())
}

func TestEncoder_WriteObject_AllPrimitives(t *testing.T) {
	desc := &ClassDesc{
		Name:  "P",
		Flags: ScSerializable,
		Fields: []Field{
			PrimitiveField{Name: "b", Type: Byte},
			PrimitiveField{Name: "d", Type: Double},
			PrimitiveField{Name: "f", Type: Float},
			PrimitiveField{Name: "i", Type: Integer},
			PrimitiveField{Name: "j", Type: Long},
			PrimitiveField{Name: "s", Type: Short},
			PrimitiveField{Name: "z", Type: Boolean},
		},
	}
	obj := &Object{
		ClassDesc: desc,
		Values:    []any{int8(-1), 1.5, float32(2.5), int32(-2), int64(1 << 40), int16(-32768), true},
	}
	var buf bytes.Buffer
	enc := newTestEncoder(t, &buf)
	require.NoError(t, enc.WriteObject(obj))

	want := newStream().
		u8(TcObject, TcClassdesc).utf("P").i64(0).u8(byte(ScSerializable)).u16(7).
		u8('B').utf("b").
		u8('D').utf("d").
		u8('F').utf("f").
		u8('I').utf("i").
		u8('J').utf("j").
		u8('S').utf("s").
		u8('Z').utf("z").
		u8(TcEndblockdata, TcNull).
		u8(0xff).
		i64(0x3ff8000000000000).
		i32(0x40200000).
		i32(-2).
		i64(1 << 40).
		u16(0x8000).
		u8(1).
		bytes()
	assert.Equal(t, want, buf.Bytes())
}

func TestEncoder_Errors(t *testing.T) {
	annotated := newPtDesc()
	annotated.Flags |= ScWriteMethod
	tests := []struct {
		name   string
		value  any
		target error
	}{
		{
			name:   "value type mismatch",
			value:  &Object{ClassDesc: newPtDesc(), Values: []any{int64(3), int32(4)}},
			target: ErrInvalidValue,
		},
		{
			name:   "value count mismatch",
			value:  &Object{ClassDesc: newPtDesc(), Values: []any{int32(3)}},
			target: ErrInvalidValue,
		},
		{
			name:   "missing class descriptor",
			value:  &Object{Values: []any{}},
			target: ErrMissingData,
		},
		{
			name: "char field",
			value: &Object{
				ClassDesc: &ClassDesc{Name: "C", Flags: ScSerializable, Fields: []Field{PrimitiveField{Name: "c", Type: Char}}},
				Values:    []any{uint16('a')},
			},
			target: ErrUnsupported,
		},
		{
			name: "invalid primitive type",
			value: &ClassDesc{
				Name: "C", Flags: ScSerializable, Fields: []Field{PrimitiveField{Name: "c", Type: 'Q'}},
			},
			target: ErrInvalidValue,
		},
		{
			name: "nil field",
			value: &ClassDesc{
				Name: "C", Flags: ScSerializable, Fields: []Field{nil},
			},
			target: ErrInvalidValue,
		},
		{
			name:   "externalizable",
			value:  &Object{ClassDesc: &ClassDesc{Name: "E", Flags: ScExternalizable}},
			target: ErrUnsupported,
		},
		{
			name:   "not serializable",
			value:  &Object{ClassDesc: &ClassDesc{Name: "N"}},
			target: ErrInvalidValue,
		},
		{
			name:   "annotation without write method",
			value:  &Object{ClassDesc: newPtDesc(), Values: []any{int32(1), int32(2)}, ObjectAnnotation: []any{"x"}},
			target: ErrInvalidValue,
		},
		{
			name:   "reset inside annotation",
			value:  &Object{ClassDesc: annotated, Values: []any{int32(1), int32(2)}, ObjectAnnotation: []any{ResetMarker{}}},
			target: ErrInvalidValue,
		},
		{
			name:   "long string",
			value:  strings.Repeat("x", maxUTFLength+1),
			target: ErrUnsupported,
		},
		{
			name:   "invalid UTF-8",
			value:  string([]byte{0xff, 0xfe}),
			target: ErrInvalidValue,
		},
		{
			name:   "long block data",
			value:  make(BlockData, maxBlockDataLength+1),
			target: ErrUnsupported,
		},
		{
			name:   "unknown type",
			value:  42,
			target: ErrInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := newTestEncoder(t, &buf)
			err := enc.WriteContent(tt.value)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, 4, buf.Len(), "nothing but the header must be written")
			assert.Equal(t, 0, enc.handles.count())
		})
	}
}

func TestEncoder_RollbackKeepsEncoderUsable(t *testing.T) {
	var buf bytes.Buffer
	enc := newTestEncoder(t, &buf)
	desc := newPtDesc()
	err := enc.WriteObject(&Object{ClassDesc: desc, Values: []any{int32(3), "four"}})
	require.ErrorIs(t, err, ErrInvalidValue)

	require.NoError(t, enc.WriteObject(newPt(desc, 3, 4)))
	want := newStream().u8(TcObject).ptClassDesc().i32(3).i32(4).bytes()
	assert.Equal(t, want, buf.Bytes())
}

type closeBuffer struct {
	bytes.Buffer
	closed int
}

func (b *closeBuffer) Close() error {
	b.closed++
	return nil
}

func TestEncoder_Close(t *testing.T) {
	var dst closeBuffer
	enc, err := NewEncoder(&dst, WithBufferSize(16))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())
	assert.Equal(t, 1, dst.closed)
	assert.ErrorIs(t, enc.WriteString("late"), ErrClosed)
	assert.ErrorIs(t, enc.Reset(), ErrClosed)

	var kept closeBuffer
	enc, err = NewEncoder(&kept, WithLeaveOpen())
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	assert.Equal(t, 0, kept.closed)
	assert.Equal(t, 4, kept.Len())
}
