package buffer

import (
	"github.com/rawbytedev/fractus/pkg/errs"
)

// View is a bounds-checked window (start, length) over a Storage. It
// borrows the storage and never owns it. A View taken before the storage
// was resized must be re-derived with NewView.
type View struct {
	s     Storage
	span  []byte
	addr  bool
	start int
	n     int
}

// NewView returns a view over the whole storage.
func NewView(s Storage) View {
	v := View{s: s, n: s.Len()}
	if ss, ok := s.(SpanStorage); ok {
		v.span = ss.Bytes()
		v.addr = true
	}
	return v
}

// FromBytes returns a view over b.
func FromBytes(b []byte) View {
	return NewView(Array(b))
}

func (v View) Len() int { return v.n }

// Addressable reports whether Bytes is available.
func (v View) Addressable() bool { return v.addr }

func (v View) Storage() Storage { return v.s }

// Abs converts a view-relative offset into a storage offset.
func (v View) Abs(off int) int { return v.start + off }

func (v View) check(off, n int) error {
	if off < 0 || n < 0 || off > v.n-n {
		return errs.Bounds(off, n, v.n)
	}
	return nil
}

// Slice returns the view from start to the end.
func (v View) Slice(start int) (View, error) {
	if start < 0 || start > v.n {
		return View{}, errs.Bounds(start, 0, v.n)
	}
	return v.SliceN(start, v.n-start)
}

// SliceN returns n bytes starting at start, sharing the same storage.
func (v View) SliceN(start, n int) (View, error) {
	if err := v.check(start, n); err != nil {
		return View{}, err
	}
	out := v
	out.start = v.start + start
	out.n = n
	return out, nil
}

func (v View) ByteAt(off int) (byte, error) {
	if err := v.check(off, 1); err != nil {
		return 0, err
	}
	if v.addr {
		return v.span[v.start+off], nil
	}
	return v.s.ByteAt(v.start + off), nil
}

func (v View) SetByteAt(off int, b byte) error {
	if err := v.check(off, 1); err != nil {
		return err
	}
	if v.addr {
		v.span[v.start+off] = b
		return nil
	}
	v.s.SetByteAt(v.start+off, b)
	return nil
}

// Bytes returns the mutable backing memory for [off, off+n). It fails with
// ErrNotAddressable on minimal-tier storage.
func (v View) Bytes(off, n int) ([]byte, error) {
	if err := v.check(off, n); err != nil {
		return nil, err
	}
	if !v.addr {
		return nil, errs.ErrNotAddressable
	}
	lo := v.start + off
	return v.span[lo : lo+n : lo+n], nil
}

// CopyFrom writes src at off.
func (v View) CopyFrom(off int, src []byte) error {
	if err := v.check(off, len(src)); err != nil {
		return err
	}
	if v.addr {
		copy(v.span[v.start+off:], src)
		return nil
	}
	for i, b := range src {
		v.s.SetByteAt(v.start+off+i, b)
	}
	return nil
}

// CopyTo fills dst from off.
func (v View) CopyTo(off int, dst []byte) error {
	if err := v.check(off, len(dst)); err != nil {
		return err
	}
	if v.addr {
		copy(dst, v.span[v.start+off:])
		return nil
	}
	for i := range dst {
		dst[i] = v.s.ByteAt(v.start + off + i)
	}
	return nil
}

// Clear zeroes [off, off+n).
func (v View) Clear(off, n int) error {
	if err := v.check(off, n); err != nil {
		return err
	}
	if v.addr {
		clear(v.span[v.start+off : v.start+off+n])
		return nil
	}
	for i := 0; i < n; i++ {
		v.s.SetByteAt(v.start+off+i, 0)
	}
	return nil
}

// Equal reports whether [off, off+len(b)) holds exactly b. Addressable
// views compare eight bytes at a time.
func (v View) Equal(off int, b []byte) (bool, error) {
	if err := v.check(off, len(b)); err != nil {
		return false, err
	}
	if v.addr {
		return wordsEqual(v.span[v.start+off:v.start+off+len(b)], b), nil
	}
	for i, c := range b {
		if v.s.ByteAt(v.start+off+i) != c {
			return false, nil
		}
	}
	return true, nil
}
