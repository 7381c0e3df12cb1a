package decode

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// Pool recycles GreedyMutable root tables per schema type.
//
// A released table, and every object reached from it before the release,
// fails with ErrUseAfterRelease until the pool hands the table out again.
type Pool struct {
	mu   sync.Mutex
	max  int
	free map[*schema.TableDef][]*Table
}

// NewPool returns a pool keeping at most maxPerType idle tables per type.
func NewPool(maxPerType int) *Pool {
	return &Pool{max: maxPerType, free: make(map[*schema.TableDef][]*Table)}
}

// Acquire parses v into a recycled (or new) GreedyMutable table.
func (p *Pool) Acquire(v buffer.View, def *schema.TableDef, opts Options) (*Table, error) {
	// every acquisition gets its own handle, so a stale holder can never
	// reach the graph of the next owner
	t := &Table{own: &lease{}}
	reused := false
	if old := p.pop(def); old != nil {
		t.own, t.values, t.present = old.own, old.values[:0], old.present
		reused = true
	}
	l := t.own
	gen := l.gen.Add(1)
	st := &state{strategy: GreedyMutable, opts: opts.withDefaults(), lease: l, gen: gen}
	if err := parseInto(t, v, def, st); err != nil {
		l.released.Store(true)
		clear(t.values)
		p.push(def, t)
		return nil, err
	}
	l.released.Store(false)
	st.opts.Logger.Debug("fractus: pool acquire", "type", def.Name, "reused", reused, "generation", gen)
	return t, nil
}

// Release returns t to the pool. Only the handle of the current acquisition
// can release it; handles from earlier acquisitions fail with
// ErrDoubleRelease.
func (p *Pool) Release(t *Table) error {
	if t == nil || t.own == nil {
		return errors.Wrap(errs.ErrUnsupported, "table was not acquired from a pool")
	}
	if t.st == nil || t.st.gen != t.own.gen.Load() {
		return errors.Wrapf(errs.ErrDoubleRelease, "%s: handle from an earlier acquisition", t.def.Name)
	}
	if !t.own.released.CompareAndSwap(false, true) {
		return errors.Wrapf(errs.ErrDoubleRelease, "%s", t.def.Name)
	}
	clear(t.values)
	clear(t.present)
	p.push(t.def, t)
	return nil
}

// Idle returns the number of idle tables kept for def.
func (p *Pool) Idle(def *schema.TableDef) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[def])
}

func (p *Pool) pop(def *schema.TableDef) *Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.free[def]
	if len(l) == 0 {
		return nil
	}
	t := l[len(l)-1]
	l[len(l)-1] = nil
	p.free[def] = l[:len(l)-1]
	return t
}

func (p *Pool) push(def *schema.TableDef, t *Table) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[def]) < p.max {
		p.free[def] = append(p.free[def], t)
	}
}
