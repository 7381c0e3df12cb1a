package decode

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/wire"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// Table is a decoded table. What Get returns depends on the field:
//
//	scalar           the field's Go type (default when absent)
//	optional scalar  *T, nil when absent
//	struct           the struct value (zero when absent)
//	string           string ("" when absent)
//	vector           *Vector, nil when absent
//	table            *Table, nil when absent
//	union            Union, Type 0 when absent
type Table struct {
	def *schema.TableDef
	st  *state
	// own is set on pool roots only.
	own *lease

	view  buffer.View
	pos   int
	depth int

	mu      sync.Mutex
	present bitset
	cache   []any

	values []any
}

// Union is a decoded union value. Value is a *Table for table members and
// the struct value for struct members.
type Union struct {
	Type  uint8
	Value any
}

// Parse decodes the buffer in v as a root table of type def. Every object
// of the resulting graph uses strategy s.
func Parse(v buffer.View, def *schema.TableDef, s Strategy, opts Options) (*Table, error) {
	t := &Table{}
	if err := parseInto(t, v, def, &state{strategy: s, opts: opts.withDefaults()}); err != nil {
		return nil, err
	}
	return t, nil
}

func parseInto(t *Table, v buffer.View, def *schema.TableDef, st *state) error {
	if st.strategy > GreedyMutable {
		return errors.Newf("unknown strategy %d", st.strategy)
	}
	if id := st.opts.FileIdentifier; id != "" && !wire.HasIdentifier(v, id) {
		return errs.Invalidf("file identifier mismatch: want %q", id)
	}
	root, err := wire.Root(v)
	if err != nil {
		return err
	}
	depth := -1
	if def.NeedsDepthTracking(st.opts.MaxDepth) {
		depth = st.opts.MaxDepth
	}
	return t.init(v, root, def, depth, st)
}

// New returns an empty GreedyMutable table with every field at its
// default.
func New(def *schema.TableDef) *Table {
	t := &Table{
		def:     def,
		st:      &state{strategy: GreedyMutable, opts: Options{}.withDefaults()},
		depth:   -1,
		values:  make([]any, len(def.Fields)),
		present: newBitset(len(def.Fields)),
	}
	for i, f := range def.Fields {
		t.values[i] = zeroValue(f)
	}
	return t
}

func (t *Table) init(v buffer.View, pos int, def *schema.TableDef, depth int, st *state) error {
	if _, _, err := wire.VTable(v, pos); err != nil {
		return err
	}
	t.def, t.st, t.depth = def, st, depth
	t.view, t.pos = v, pos
	n := len(def.Fields)
	t.present = t.present.reset(n)

	switch st.strategy {
	case Lazy:
		t.cache = nil
		t.values = nil
	case Progressive:
		t.cache = make([]any, n)
		t.values = nil
	default:
		if cap(t.values) >= n {
			t.values = t.values[:n]
		} else {
			t.values = make([]any, n)
		}
		for i, f := range def.Fields {
			val, err := t.read(f)
			if err != nil {
				return err
			}
			t.values[i] = val
			if has, err := t.located(f); err != nil {
				return err
			} else if has {
				t.present.set(i)
			}
		}
		t.view, t.pos = buffer.View{}, 0
	}
	return nil
}

func (t *Table) Strategy() Strategy { return t.st.strategy }

func (t *Table) Schema() *schema.TableDef { return t.def }

func (t *Table) field(name string) (*schema.Field, error) {
	if err := t.st.alive(); err != nil {
		return nil, err
	}
	f, ok := t.def.Field(name)
	if !ok {
		return nil, errors.Wrapf(errs.ErrUnknownField, "%s.%s", t.def.Name, name)
	}
	return f, nil
}

// Get returns the value of the named field.
func (t *Table) Get(name string) (any, error) {
	f, err := t.field(name)
	if err != nil {
		return nil, err
	}
	return t.get(f)
}

// GetIndex returns the value of the field at vtable index i.
func (t *Table) GetIndex(i int) (any, error) {
	if err := t.st.alive(); err != nil {
		return nil, err
	}
	f := t.def.FieldAt(i)
	if f == nil {
		return nil, errors.Wrapf(errs.ErrUnknownField, "%s: index %d", t.def.Name, i)
	}
	return t.get(f)
}

func (t *Table) get(f *schema.Field) (any, error) {
	switch t.st.strategy {
	case Lazy:
		return t.read(f)
	case Progressive:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.present.has(f.Ordinal) {
			return t.cache[f.Ordinal], nil
		}
		val, err := t.read(f)
		if err != nil {
			return nil, err
		}
		t.cache[f.Ordinal] = val
		t.present.set(f.Ordinal)
		return val, nil
	default:
		return t.values[f.Ordinal], nil
	}
}

// Has reports whether the named field is present: stored in the buffer,
// or for GreedyMutable tables, stored or set since parsing.
func (t *Table) Has(name string) (bool, error) {
	f, err := t.field(name)
	if err != nil {
		return false, err
	}
	if t.st.strategy.greedy() {
		return t.present.has(f.Ordinal), nil
	}
	return t.located(f)
}

func (t *Table) located(f *schema.Field) (bool, error) {
	if f.Deprecated {
		return false, nil
	}
	loc, err := wire.FieldLocation(t.view, t.pos, f.Index)
	return loc != 0, err
}

// Set assigns the named field. GreedyMutable tables store the value in
// memory. Lazy and Progressive tables write scalar and struct fields
// marked writethrough straight into the buffer. Greedy tables are
// read-only.
func (t *Table) Set(name string, x any) error {
	f, err := t.field(name)
	if err != nil {
		return err
	}
	switch t.st.strategy {
	case Greedy:
		return errors.Wrapf(errs.ErrReadOnly, "%s.%s", t.def.Name, f.Name)
	case GreedyMutable:
		val, err := coerce(f, x)
		if err != nil {
			return errors.Wrapf(err, "%s.%s", t.def.Name, f.Name)
		}
		t.values[f.Ordinal] = val
		t.present.set(f.Ordinal)
		return nil
	default:
		return t.writeThrough(f, x)
	}
}

// Field returns the named field as a T.
func Field[T any](t *Table, name string) (T, error) {
	var zero T
	v, err := t.Get(name)
	if err != nil {
		return zero, err
	}
	x, ok := v.(T)
	if !ok {
		return zero, errors.Wrapf(errs.ErrTypeMismatch, "%s.%s is %T", t.def.Name, name, v)
	}
	return x, nil
}

// nextDepth returns the remaining depth for a nested table, -1 when
// depth is not tracked.
func nextDepth(depth, maxDepth int) (int, error) {
	if depth < 0 {
		return -1, nil
	}
	if depth-1 < 1 {
		return 0, errors.Wrapf(errs.ErrDepthExceeded, "more than %d nested tables", maxDepth)
	}
	return depth - 1, nil
}

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) reset(n int) bitset {
	words := (n + 63) / 64
	if cap(b) < words {
		return make(bitset, words)
	}
	b = b[:words]
	clear(b)
	return b
}

func (b bitset) has(i int) bool { return b[i/64]&(1<<(uint(i)%64)) != 0 }
func (b bitset) set(i int)      { b[i/64] |= 1 << (uint(i) % 64) }
