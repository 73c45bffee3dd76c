package objectstream

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// readHandles is the decoder side of the handle table. Entry i is addressed
// on the wire as baseWireHandle+i.
type readHandles struct {
	entries []any
}

func (h *readHandles) assign(v any) {
	h.entries = append(h.entries, v)
}

func (h *readHandles) lookup(handle int32) (any, error) {
	index := int64(handle) - int64(baseWireHandle)
	if index < 0 || index >= int64(len(h.entries)) {
		return nil, errors.Wrapf(ErrMalformed, "invalid handle value: 0x%X", handle)
	}
	return h.entries[index], nil
}

func (h *readHandles) reset() {
	clear(h.entries)
	h.entries = h.entries[:0]
}

type handleKind uint8

const (
	kindObject handleKind = iota + 1
	kindClassDesc
	kindString
)

// handleKey identifies a referenceable value by identity. Strings are keyed
// by their backing array and length, so value-equal strings with separate
// storage get separate handles.
type handleKey struct {
	kind    handleKind
	pointer unsafe.Pointer
	len     int
}

func keyOf(v any) (handleKey, bool) {
	switch v := v.(type) {
	case *Object:
		if v == nil {
			return handleKey{}, false
		}
		return handleKey{kind: kindObject, pointer: unsafe.Pointer(v)}, true
	case *ClassDesc:
		if v == nil {
			return handleKey{}, false
		}
		return handleKey{kind: kindClassDesc, pointer: unsafe.Pointer(v)}, true
	case string:
		// The data pointer of an empty string is unspecified.
		if len(v) == 0 {
			return handleKey{}, false
		}
		return handleKey{kind: kindString, pointer: unsafe.Pointer(unsafe.StringData(v)), len: len(v)}, true
	}
	return handleKey{}, false
}

// writeHandles is the encoder side of the handle table. Handles assigned
// since the last commit can be rolled back, which lets a failed top-level
// write leave the table as it was.
type writeHandles struct {
	handleMap map[handleKey]int32
	pending   []handleKey
	next      int32
	committed int32
}

func newWriteHandles() *writeHandles {
	return &writeHandles{
		handleMap: make(map[handleKey]int32),
		next:      baseWireHandle,
		committed: baseWireHandle,
	}
}

// newHandle assigns the next handle to v. Every call consumes a handle, as
// on the reading side, even when v is unkeyed or already has one.
func (h *writeHandles) newHandle(v any) {
	handle := h.next
	h.next++
	key, ok := keyOf(v)
	if !ok {
		return
	}
	h.handleMap[key] = handle
	h.pending = append(h.pending, key)
}

func (h *writeHandles) findHandle(v any) int32 {
	key, ok := keyOf(v)
	if !ok {
		return -1
	}
	if handle, ok := h.handleMap[key]; ok {
		return handle
	}
	return -1
}

func (h *writeHandles) commit() {
	h.pending = h.pending[:0]
	h.committed = h.next
}

func (h *writeHandles) rollback() {
	for _, key := range h.pending {
		delete(h.handleMap, key)
	}
	h.pending = h.pending[:0]
	h.next = h.committed
}

func (h *writeHandles) reset() {
	clear(h.handleMap)
	h.pending = h.pending[:0]
	h.next = baseWireHandle
}

// count reports the number of handles assigned since the last reset.
func (h *writeHandles) count() int {
	return int(h.next - baseWireHandle)
}
