package encode

import (
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/internal/wire"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

type Options struct {
	// MaxDepth bounds table nesting for schemas that can recurse.
	MaxDepth int
	// FileIdentifier, when set, is written at bytes 4..8. It must be
	// exactly 4 bytes.
	FileIdentifier string
	Logger         *slog.Logger
}

// Engine writes one value at a time. Engines are reusable but not safe
// for concurrent use; Acquire and Release share them through a pool.
type Engine struct {
	opts   Options
	ctx    *Context
	vt     VTableBuilder
	sorts  []sortJob
	sizing bool
}

type sortJob struct {
	pos int
	key *schema.Field
}

// pending is an out-of-line value whose uoffset slot is already laid out.
type pending struct {
	slot   int
	f      *schema.Field
	v      reflect.Value
	member *schema.Type
}

func NewEngine(opts Options) *Engine {
	e := &Engine{ctx: NewContext(nil)}
	e.Configure(opts)
	return e
}

// Configure replaces the engine options, filling in defaults.
func (e *Engine) Configure(opts Options) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = schema.DefaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	e.opts = opts
	e.ctx.log = opts.Logger
}

var engines = sync.Pool{
	New: func() any { return NewEngine(Options{}) },
}

// Acquire returns a pooled engine configured with opts.
func Acquire(opts Options) *Engine {
	e := engines.Get().(*Engine)
	e.Configure(opts)
	return e
}

// Release returns e to the pool. e must not be used afterwards.
func Release(e *Engine) {
	e.ctx.s = nil
	e.ctx.view = buffer.View{}
	e.sorts = e.sorts[:0]
	e.vt.Reset()
	engines.Put(e)
}

// Write encodes v (a root struct or a pointer to one) into s and returns
// the number of bytes used. When s cannot hold the result the error is a
// *errs.CapacityError whose Required field is the capacity a fixed storage
// needs: the encoded size plus any reservation that was later given back.
func (e *Engine) Write(s buffer.Storage, root *schema.TableDef, v reflect.Value) (int, error) {
	n, err := e.write(s, root, v)
	if err == nil {
		return n, nil
	}
	var ce *errs.CapacityError
	if !e.sizing && errors.As(err, &ce) {
		if _, serr := e.Size(root, v); serr == nil {
			ce.Required = e.ctx.Peak()
		}
	}
	return 0, err
}

// Size returns the exact encoded size of v by running the engine over
// virtual storage.
func (e *Engine) Size(root *schema.TableDef, v reflect.Value) (int, error) {
	e.sizing = true
	defer func() { e.sizing = false }()
	return e.write(&buffer.Virtual{}, root, v)
}

func (e *Engine) write(s buffer.Storage, root *schema.TableDef, v reflect.Value) (int, error) {
	v, err := rootValue(root, v)
	if err != nil {
		return 0, err
	}
	id := e.opts.FileIdentifier
	if id != "" && len(id) != wire.FileIdentifierLength {
		return 0, errors.Newf("file identifier %q must be %d bytes", id, wire.FileIdentifierLength)
	}

	e.ctx.Reset(s)
	e.vt.Reset()
	e.sorts = e.sorts[:0]

	rootSlot, err := e.ctx.AllocateSpace(wire.SizeUOffset, 4)
	if err != nil {
		return 0, err
	}
	if id != "" {
		off, err := e.ctx.AllocateSpace(wire.FileIdentifierLength, 1)
		if err != nil {
			return 0, err
		}
		if err := e.ctx.View().CopyFrom(off, []byte(id)); err != nil {
			return 0, err
		}
	}
	depth := -1
	if root.NeedsDepthTracking(e.opts.MaxDepth) {
		depth = e.opts.MaxDepth
	}
	pos, err := e.table(root, v, depth)
	if err != nil {
		return 0, err
	}
	if err := e.putOffset(rootSlot, pos); err != nil {
		return 0, err
	}
	if !e.sizing {
		if err := e.sortVectors(); err != nil {
			return 0, err
		}
	}
	written, reused := e.vt.Stats()
	e.opts.Logger.Debug("fractus: encoded",
		"type", root.Name, "bytes", e.ctx.Offset(), "vtables", written, "reused", reused, "sizing", e.sizing)
	return e.ctx.Offset(), nil
}

func rootValue(root *schema.TableDef, v reflect.Value) (reflect.Value, error) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, errors.Wrapf(errs.ErrRequiredField, "nil %s root", root.Name)
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != root.GoType {
		return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "value is not a %s", root.Name)
	}
	return v, nil
}

// child returns the remaining depth for a nested table, -1 when the
// schema needs no tracking.
func (e *Engine) child(depth int) (int, error) {
	if depth < 0 {
		return -1, nil
	}
	if depth-1 < 1 {
		return 0, errors.Wrapf(errs.ErrDepthExceeded, "more than %d nested tables", e.opts.MaxDepth)
	}
	return depth - 1, nil
}

func (e *Engine) table(td *schema.TableDef, v reflect.Value, depth int) (int, error) {
	e.vt.StartObject(td.MaxIndex)
	start, err := e.ctx.AllocateSpace(td.MaxInlineSize, 4)
	if err != nil {
		return 0, err
	}
	// no allocation happens until EndObject, so the view stays valid
	view := e.ctx.View()
	pos := start + wire.SizeSOffset
	var later []pending

	for _, f := range td.Fields {
		if f.Deprecated {
			continue
		}
		fv := v.Field(f.GoIndex)
		switch k := f.Type.Kind; {
		case k.IsScalar():
			var bits uint64
			if f.Optional {
				if fv.IsNil() {
					continue
				}
				bits = common.ScalarBits(fv.Elem())
			} else {
				bits = common.ScalarBits(fv)
				if bits == f.Default && !f.Key {
					continue
				}
			}
			pos = common.AlignUp(pos, f.Type.Size)
			if err := buffer.PutBits(view, pos, f.Type.Size, bits); err != nil {
				return 0, err
			}
			e.vt.SetOffset(f.Index, pos-start)
			pos += f.Type.Size

		case k == schema.Struct:
			pos = common.AlignUp(pos, f.Type.Align)
			if err := wire.PutStruct(view, pos, f.Type.Struct, fv); err != nil {
				return 0, err
			}
			e.vt.SetOffset(f.Index, pos-start)
			pos += f.Type.Size

		case k == schema.Union:
			if fv.IsNil() || (fv.Elem().Kind() == reflect.Pointer && fv.Elem().IsNil()) {
				if f.Required {
					return 0, errors.Wrapf(errs.ErrRequiredField, "%s.%s", td.Name, f.Name)
				}
				continue
			}
			d, m, ok := f.Type.Union.Discriminator(fv.Elem().Type())
			if !ok {
				return 0, errors.Wrapf(errs.ErrTypeMismatch, "%s.%s: %v is not a member of %s",
					td.Name, f.Name, fv.Elem().Type(), f.Type.Union.Name)
			}
			if err := view.SetByteAt(pos, d); err != nil {
				return 0, err
			}
			e.vt.SetOffset(f.Index, pos-start)
			pos = common.AlignUp(pos+1, 4)
			e.vt.SetOffset(f.Index+1, pos-start)
			later = append(later, pending{slot: pos, f: f, v: fv.Elem(), member: m})
			pos += wire.SizeUOffset

		default:
			if !present(k, fv) {
				if f.Required {
					return 0, errors.Wrapf(errs.ErrRequiredField, "%s.%s", td.Name, f.Name)
				}
				continue
			}
			pos = common.AlignUp(pos, 4)
			e.vt.SetOffset(f.Index, pos-start)
			later = append(later, pending{slot: pos, f: f, v: fv})
			pos += wire.SizeUOffset
		}
	}

	e.ctx.GiveBack(start + td.MaxInlineSize - pos)
	vt, err := e.vt.EndObject(e.ctx, pos-start)
	if err != nil {
		return 0, err
	}
	if err := buffer.Put(e.ctx.View(), start, int32(start-vt)); err != nil {
		return 0, err
	}

	for _, p := range later {
		target, err := e.value(p, depth)
		if err != nil {
			return 0, errors.Wrapf(err, "%s.%s", td.Name, p.f.Name)
		}
		if err := e.putOffset(p.slot, target); err != nil {
			return 0, err
		}
	}
	return start, nil
}

func present(k schema.Kind, v reflect.Value) bool {
	switch k {
	case schema.String:
		return v.Len() > 0
	default:
		return !v.IsNil()
	}
}

func (e *Engine) value(p pending, depth int) (int, error) {
	if m := p.member; m != nil {
		if m.Kind == schema.Table {
			cd, err := e.child(depth)
			if err != nil {
				return 0, err
			}
			return e.table(m.Table, p.v.Elem(), cd)
		}
		off, err := e.ctx.AllocateSpace(m.Size, m.Align)
		if err != nil {
			return 0, err
		}
		return off, wire.PutStruct(e.ctx.View(), off, m.Struct, p.v)
	}
	switch p.f.Type.Kind {
	case schema.String:
		return e.string(p.v.String())
	case schema.Vector:
		return e.vector(p.f.Type, p.v, depth, p.f.Sorted)
	default:
		cd, err := e.child(depth)
		if err != nil {
			return 0, err
		}
		return e.table(p.f.Type.Table, p.v.Elem(), cd)
	}
}

// string reserves room for the longest possible UTF-8 rendition of s,
// writes it and hands the unused tail back.
func (e *Engine) string(s string) (int, error) {
	maxLen := len(s)
	valid := utf8.ValidString(s)
	if !valid {
		maxLen = 3 * len(s)
	}
	start, err := e.ctx.AllocateVector(1, maxLen+1, 1)
	if err != nil {
		return 0, err
	}
	if !valid {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	view := e.ctx.View()
	if err := view.CopyFrom(start+4, unsafe.Slice(unsafe.StringData(s), len(s))); err != nil {
		return 0, err
	}
	if err := buffer.Put(view, start, uint32(len(s))); err != nil {
		return 0, err
	}
	e.ctx.GiveBack(maxLen - len(s))
	return start, nil
}

func (e *Engine) vector(typ *schema.Type, v reflect.Value, depth int, sorted bool) (int, error) {
	elem := typ.Elem
	n := v.Len()
	start, err := e.ctx.AllocateVector(elem.Align, n, elem.Size)
	if err != nil {
		return 0, err
	}
	base := start + 4
	view := e.ctx.View()

	switch {
	case elem.Kind.IsScalar():
		if buffer.NativeLittleEndian && n > 0 {
			raw := unsafe.Slice((*byte)(v.UnsafePointer()), n*elem.Size)
			return start, view.CopyFrom(base, raw)
		}
		for i := 0; i < n; i++ {
			if err := buffer.PutBits(view, base+i*elem.Size, elem.Size, common.ScalarBits(v.Index(i))); err != nil {
				return 0, err
			}
		}
	case elem.Kind == schema.Struct:
		for i := 0; i < n; i++ {
			if err := wire.PutStruct(view, base+i*elem.Size, elem.Struct, v.Index(i)); err != nil {
				return 0, err
			}
		}
	case elem.Kind == schema.String:
		for i := 0; i < n; i++ {
			target, err := e.string(v.Index(i).String())
			if err != nil {
				return 0, err
			}
			if err := e.putOffset(base+4*i, target); err != nil {
				return 0, err
			}
		}
	default:
		cd := -1
		if n > 0 {
			if cd, err = e.child(depth); err != nil {
				return 0, err
			}
		}
		for i := 0; i < n; i++ {
			ev := v.Index(i)
			if ev.IsNil() {
				return 0, errors.Wrapf(errs.ErrRequiredField, "nil %s at vector index %d", elem.Table.Name, i)
			}
			target, err := e.table(elem.Table, ev.Elem(), cd)
			if err != nil {
				return 0, err
			}
			if err := e.putOffset(base+4*i, target); err != nil {
				return 0, err
			}
		}
		if sorted {
			e.sorts = append(e.sorts, sortJob{pos: start, key: elem.Table.Key})
		}
	}
	return start, nil
}

func (e *Engine) putOffset(slot, target int) error {
	return buffer.Put(e.ctx.View(), slot, uint32(target-slot))
}

type keyed struct {
	pos int
	key wire.Key
}

// sortVectors reorders every sorted vector by the keys already on the
// wire. Only the uoffsets move; the tables stay where they were written.
func (e *Engine) sortVectors() error {
	if len(e.sorts) == 0 {
		return nil
	}
	view := e.ctx.View()
	var items []keyed
	for _, job := range e.sorts {
		n, base, err := wire.Vector(view, job.pos)
		if err != nil {
			return err
		}
		items = items[:0]
		for i := 0; i < n; i++ {
			t, err := wire.Deref(view, base+4*i)
			if err != nil {
				return err
			}
			k, err := wire.ReadKey(view, t, job.key)
			if err != nil {
				return err
			}
			items = append(items, keyed{pos: t, key: k})
		}
		kind := job.key.Type.Kind
		slices.SortStableFunc(items, func(a, b keyed) int { return wire.CompareKeys(kind, a.key, b.key) })
		for i, it := range items {
			if err := e.putOffset(base+4*i, it.pos); err != nil {
				return err
			}
		}
	}
	e.opts.Logger.Debug("fractus: sorted vectors reordered", "count", len(e.sorts))
	return nil
}
