package encode

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/pkg/buffer"
)

// VTableBuilder collects the field offsets of the table being written and
// emits its vtable, reusing an identical vtable already in the buffer when
// there is one.
//
// The bytes of every emitted vtable are mirrored in the builder, so dedup
// behaves the same whether the context writes real memory or only measures.
type VTableBuilder struct {
	slots   []uint16
	n       int
	scratch []byte

	emitted []emitted
	arena   []byte

	written int
	reused  int
}

type emitted struct {
	off        int
	start, end int
}

// Reset forgets every vtable emitted so far. Call it once per buffer.
func (b *VTableBuilder) Reset() {
	b.slots = b.slots[:0]
	b.n = 0
	b.emitted = b.emitted[:0]
	b.arena = b.arena[:0]
	b.written = 0
	b.reused = 0
}

// StartObject begins a table whose fields use indexes up to maxFieldIndex.
func (b *VTableBuilder) StartObject(maxFieldIndex int) {
	n := maxFieldIndex + 1
	if cap(b.slots) < n {
		b.slots = make([]uint16, n)
	}
	b.slots = b.slots[:n]
	clear(b.slots)
	b.n = 0
}

// SetOffset records that field index lives off bytes after the table
// start. Zero means absent and is ignored.
func (b *VTableBuilder) SetOffset(index, off int) {
	if off == 0 {
		return
	}
	b.slots[index] = uint16(off)
	b.n = max(b.n, index+1)
}

// EndObject emits the vtable for the current table (trailing absent fields
// trimmed) and returns its offset.
func (b *VTableBuilder) EndObject(ctx *Context, tableLen int) (int, error) {
	if tableLen > math.MaxUint16 {
		return 0, errors.Newf("table of %d bytes exceeds the vtable limit", tableLen)
	}
	size := 4 + 2*b.n
	if cap(b.scratch) < size {
		b.scratch = make([]byte, size)
	}
	vt := b.scratch[:size]
	binary.LittleEndian.PutUint16(vt[0:], uint16(size))
	binary.LittleEndian.PutUint16(vt[2:], uint16(tableLen))
	for i := 0; i < b.n; i++ {
		binary.LittleEndian.PutUint16(vt[4+2*i:], b.slots[i])
	}

	for _, e := range b.emitted {
		if e.end-e.start == size && buffer.WordsEqual(b.arena[e.start:e.end], vt) {
			b.reused++
			return e.off, nil
		}
	}

	off, err := ctx.AllocateSpace(size, 2)
	if err != nil {
		return 0, err
	}
	if err := ctx.View().CopyFrom(off, vt); err != nil {
		return 0, err
	}
	start := len(b.arena)
	b.arena = append(b.arena, vt...)
	b.emitted = append(b.emitted, emitted{off: off, start: start, end: len(b.arena)})
	b.written++
	return off, nil
}

// Stats reports how many vtables were written and how many tables reused
// an existing one since the last Reset.
func (b *VTableBuilder) Stats() (written, reused int) {
	return b.written, b.reused
}
