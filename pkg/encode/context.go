// Package encode serializes Go values described by pkg/schema into the
// table layout. Allocation runs front to back: the root offset comes first
// and every child is written after the slot that points at it.
package encode

import (
	"log/slog"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
)

const minGrowth = 64

// Context tracks the allocation cursor of one write. It can be Reset and
// reused for the next write but is not safe for concurrent use.
type Context struct {
	s    buffer.Storage
	view buffer.View
	off  int
	log  *slog.Logger

	peak  int
	grows int
}

func NewContext(log *slog.Logger) *Context {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Context{log: log}
}

// Reset points the context at s with the cursor at 0.
func (c *Context) Reset(s buffer.Storage) {
	c.s = s
	c.view = buffer.NewView(s)
	c.off = 0
	c.peak = 0
	c.grows = 0
}

// Offset is the number of bytes allocated so far.
func (c *Context) Offset() int { return c.off }

// Peak is the highest offset the cursor reached, including space that was
// later given back. A fixed storage of Peak bytes can hold the write.
func (c *Context) Peak() int { return c.peak }

// View returns the current view. Any allocation may grow the storage, so
// re-fetch the view after allocating.
func (c *Context) View() buffer.View { return c.view }

// AllocateSpace reserves size bytes aligned to align (a power of two) and
// returns their offset. The reserved bytes and any padding are zeroed.
func (c *Context) AllocateSpace(size, align int) (int, error) {
	start := c.off + common.Padding(c.off, align)
	if err := c.claim(start + size); err != nil {
		return 0, err
	}
	return start, nil
}

// AllocateVector reserves a 4-byte count followed by count items of
// itemSize bytes. The count is 4-aligned and the first item is aligned to
// itemAlign. It returns the offset of the count, which is already written.
func (c *Context) AllocateVector(itemAlign, count, itemSize int) (int, error) {
	a := max(itemAlign, 4)
	start := c.off + common.Padding(c.off+4, a)
	if err := c.claim(start + 4 + count*itemSize); err != nil {
		return 0, err
	}
	if err := buffer.Put(c.view, start, uint32(count)); err != nil {
		return 0, err
	}
	return start, nil
}

// GiveBack releases the last n allocated bytes. Only bytes that were never
// handed out again may be returned.
func (c *Context) GiveBack(n int) {
	if n <= 0 {
		return
	}
	if n > c.off {
		n = c.off
	}
	c.off -= n
}

func (c *Context) claim(end int) error {
	if end > math.MaxInt32 {
		return errors.Wrapf(errs.ErrUnsupported, "buffer would exceed %d bytes", math.MaxInt32)
	}
	if err := c.ensure(end); err != nil {
		return err
	}
	if err := c.view.Clear(c.off, end-c.off); err != nil {
		return err
	}
	c.off = end
	c.peak = max(c.peak, end)
	return nil
}

func (c *Context) ensure(need int) error {
	have := c.view.Len()
	if need <= have {
		return nil
	}
	r, ok := c.s.(buffer.Resizer)
	if !ok {
		return &errs.CapacityError{Available: have}
	}
	n := max(need, 2*have, minGrowth)
	if err := r.Resize(n); err != nil {
		return err
	}
	c.view = buffer.NewView(c.s)
	if c.view.Len() < need {
		return &errs.CapacityError{Available: c.view.Len()}
	}
	c.grows++
	c.log.Debug("fractus: buffer grown", "from", have, "to", c.view.Len())
	return nil
}
