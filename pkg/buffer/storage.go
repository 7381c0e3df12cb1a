// Package buffer provides bounds-checked views over byte storage and the
// little-endian scalar codec layered on top of them.
//
// Storage comes in two capability tiers. Storage is the minimal tier: a
// length plus byte-indexed reads and writes, which is enough to back a view
// with anything. SpanStorage adds direct access to the backing memory and
// unlocks copy fast paths. Both tiers behave identically at the byte level.
package buffer

import (
	"slices"

	"github.com/rawbytedev/fractus/pkg/errs"
)

// Storage is the minimal capability tier.
type Storage interface {
	Len() int
	ByteAt(i int) byte
	SetByteAt(i int, b byte)
}

// SpanStorage exposes the directly addressable backing memory.
// The returned slice is only valid until the next Resize.
type SpanStorage interface {
	Storage
	Bytes() []byte
}

// Resizer is implemented by storages that can grow. Resize never shrinks
// and must preserve existing content.
type Resizer interface {
	Resize(n int) error
}

// Growable is an owned, growable buffer.
type Growable struct {
	b []byte
}

// NewGrowable returns an empty Growable with the given capacity hint.
func NewGrowable(capacity int) *Growable {
	if capacity < 0 {
		capacity = 0
	}
	return &Growable{b: make([]byte, 0, capacity)}
}

func (g *Growable) Len() int                { return len(g.b) }
func (g *Growable) ByteAt(i int) byte       { return g.b[i] }
func (g *Growable) SetByteAt(i int, b byte) { g.b[i] = b }
func (g *Growable) Bytes() []byte           { return g.b }

func (g *Growable) Resize(n int) error {
	if n <= len(g.b) {
		return nil
	}
	g.b = slices.Grow(g.b, n-len(g.b))[:n]
	return nil
}

// Truncate shortens the buffer to n bytes, keeping its capacity.
func (g *Growable) Truncate(n int) {
	if n < len(g.b) {
		g.b = g.b[:n]
	}
}

// Reset empties the buffer for reuse.
func (g *Growable) Reset() { g.b = g.b[:0] }

// Array is a caller-owned fixed array. It never grows.
type Array []byte

func (a Array) Len() int                { return len(a) }
func (a Array) ByteAt(i int) byte       { return a[i] }
func (a Array) SetByteAt(i int, b byte) { a[i] = b }
func (a Array) Bytes() []byte           { return a }

// Region is a caller-supplied slice that is grown in place: after a resize
// the caller's slice header points at the new memory.
type Region struct {
	p *[]byte
}

// NewRegion wraps p. A nil p is treated as an empty region.
func NewRegion(p *[]byte) *Region {
	if p == nil {
		p = new([]byte)
	}
	return &Region{p: p}
}

func (r *Region) Len() int                { return len(*r.p) }
func (r *Region) ByteAt(i int) byte       { return (*r.p)[i] }
func (r *Region) SetByteAt(i int, b byte) { (*r.p)[i] = b }
func (r *Region) Bytes() []byte           { return *r.p }

func (r *Region) Resize(n int) error {
	if n <= len(*r.p) {
		return nil
	}
	*r.p = slices.Grow(*r.p, n-len(*r.p))[:n]
	return nil
}

// Truncate shortens the caller's slice to n bytes.
func (r *Region) Truncate(n int) {
	if n < len(*r.p) {
		*r.p = (*r.p)[:n]
	}
}

// Virtual has a length but no memory. Writes are dropped and reads return
// zero; the encoder runs over it to measure exact sizes.
type Virtual struct {
	n int
}

func (v *Virtual) Len() int            { return v.n }
func (v *Virtual) ByteAt(int) byte     { return 0 }
func (v *Virtual) SetByteAt(int, byte) {}
func (v *Virtual) Resize(n int) error {
	if n > v.n {
		v.n = n
	}
	return nil
}

// Minimal hides every capability of s except the minimal tier (and
// resizing, if s supports it). Views over the result take the per-byte
// paths.
func Minimal(s Storage) Storage {
	return &minimal{s: s}
}

type minimal struct {
	s Storage
}

func (m *minimal) Len() int                { return m.s.Len() }
func (m *minimal) ByteAt(i int) byte       { return m.s.ByteAt(i) }
func (m *minimal) SetByteAt(i int, b byte) { m.s.SetByteAt(i, b) }

func (m *minimal) Resize(n int) error {
	if r, ok := m.s.(Resizer); ok {
		return r.Resize(n)
	}
	if n <= m.s.Len() {
		return nil
	}
	return &errs.CapacityError{Available: m.s.Len()}
}
