// Package wire holds the read-side primitives of the table layout shared by
// the encoder (sorted vector reordering) and the decoder.
//
//	root:   uoffset to root table | optional 4-byte file identifier
//	table:  soffset (table - vtable) | inline fields
//	vtable: uint16 vtable length | uint16 table length | uint16 field offsets...
//	vector: uint32 count | items
//	string: uint32 byte length | bytes | NUL
package wire

import (
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
)

const (
	SizeUOffset          = 4
	SizeSOffset          = 4
	SizeVOffset          = 2
	VTableHeader         = 4
	FileIdentifierLength = 4
)

// Deref follows the uoffset stored at pos and returns the absolute target.
func Deref(v buffer.View, pos int) (int, error) {
	u, err := buffer.Get[uint32](v, pos)
	if err != nil {
		return 0, err
	}
	if u == 0 || int64(u) >= int64(v.Len()-pos) {
		return 0, errs.Bounds(pos+int(u), 1, v.Len())
	}
	return pos + int(u), nil
}

// Root returns the position of the root table.
func Root(v buffer.View) (int, error) {
	return Deref(v, 0)
}

// VTable returns the position of the vtable of the table at tablePos and
// its byte length.
func VTable(v buffer.View, tablePos int) (vt, vtLen int, err error) {
	so, err := buffer.Get[int32](v, tablePos)
	if err != nil {
		return 0, 0, err
	}
	vt = tablePos - int(so)
	n, err := buffer.Get[uint16](v, vt)
	if err != nil {
		return 0, 0, err
	}
	if _, err := v.SliceN(vt, int(n)); err != nil {
		return 0, 0, err
	}
	return vt, int(n), nil
}

// FieldLocation returns the absolute position of field index in the table
// at tablePos, or 0 when the vtable does not reach the index or the slot
// holds 0.
func FieldLocation(v buffer.View, tablePos, index int) (int, error) {
	vt, vtLen, err := VTable(v, tablePos)
	if err != nil {
		return 0, err
	}
	slot := VTableHeader + SizeVOffset*index
	if slot+SizeVOffset > vtLen {
		return 0, nil
	}
	o, err := buffer.Get[uint16](v, vt+slot)
	if err != nil || o == 0 {
		return 0, err
	}
	return tablePos + int(o), nil
}

// Vector returns the element count of the vector at pos and the position
// of its first element.
func Vector(v buffer.View, pos int) (n, base int, err error) {
	c, err := buffer.Get[uint32](v, pos)
	if err != nil {
		return 0, 0, err
	}
	if int64(c) > int64(v.Len()) {
		return 0, 0, errs.Bounds(pos+SizeUOffset, int(c), v.Len())
	}
	return int(c), pos + SizeUOffset, nil
}

// StringBytes returns the bytes of the string at pos without the NUL. The
// result aliases the buffer when the view is addressable.
func StringBytes(v buffer.View, pos int) ([]byte, error) {
	n, base, err := Vector(v, pos)
	if err != nil {
		return nil, err
	}
	if v.Addressable() {
		return v.Bytes(base, n)
	}
	out := make([]byte, n)
	return out, v.CopyTo(base, out)
}

// HasIdentifier reports whether the buffer carries the 4-byte file
// identifier id.
func HasIdentifier(v buffer.View, id string) bool {
	if len(id) != FileIdentifierLength {
		return false
	}
	ok, err := v.Equal(SizeUOffset, []byte(id))
	return err == nil && ok
}
