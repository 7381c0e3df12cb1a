package decode

import (
	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/internal/wire"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// Validate walks the whole buffer and checks that every access a decoder
// could make stays in bounds and is well formed. It returns nil or an error
// matching errs.ErrInvalidBuffer.
func Validate(v buffer.View, def *schema.TableDef, opts Options) error {
	opts = opts.withDefaults()
	val := &validator{v: v, maxDepth: opts.MaxDepth}
	if v.Len() < wire.SizeUOffset {
		return errs.Invalidf("buffer of %d bytes is too short", v.Len())
	}
	if id := opts.FileIdentifier; id != "" && !wire.HasIdentifier(v, id) {
		return errs.Invalidf("file identifier mismatch: want %q", id)
	}
	root, err := val.deref(0, "root")
	if err != nil {
		return err
	}
	depth := -1
	if def.NeedsDepthTracking(opts.MaxDepth) {
		depth = opts.MaxDepth
	}
	return val.table(root, def, depth)
}

type validator struct {
	v        buffer.View
	maxDepth int
}

// fail marks a read error as an invalid buffer while keeping its cause.
func fail(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), errs.ErrInvalidBuffer)
}

func (val *validator) deref(slot int, what string) (int, error) {
	if slot%4 != 0 {
		return 0, errs.Invalidf("%s: unaligned offset at %d", what, slot)
	}
	pos, err := wire.Deref(val.v, slot)
	if err != nil {
		return 0, fail(err, "%s: offset at %d", what, slot)
	}
	return pos, nil
}

func (val *validator) table(pos int, def *schema.TableDef, depth int) error {
	if pos%4 != 0 {
		return errs.Invalidf("table %s at %d is not 4-byte aligned", def.Name, pos)
	}
	so, err := buffer.Get[int32](val.v, pos)
	if err != nil {
		return fail(err, "table %s at %d", def.Name, pos)
	}
	vt := pos - int(so)
	if vt < 0 || vt%2 != 0 {
		return errs.Invalidf("table %s at %d: bad vtable position %d", def.Name, pos, vt)
	}
	vtLen, err := buffer.Get[uint16](val.v, vt)
	if err != nil {
		return fail(err, "table %s: vtable at %d", def.Name, vt)
	}
	tableLen, err := buffer.Get[uint16](val.v, vt+2)
	if err != nil {
		return fail(err, "table %s: vtable at %d", def.Name, vt)
	}
	if vtLen < wire.VTableHeader || vtLen%2 != 0 {
		return errs.Invalidf("table %s: vtable length %d", def.Name, vtLen)
	}
	if _, err := val.v.SliceN(vt, int(vtLen)); err != nil {
		return fail(err, "table %s: vtable at %d", def.Name, vt)
	}
	if tableLen < wire.SizeSOffset {
		return errs.Invalidf("table %s: table length %d", def.Name, tableLen)
	}
	if _, err := val.v.SliceN(pos, int(tableLen)); err != nil {
		return fail(err, "table %s at %d", def.Name, pos)
	}

	slot := func(index, size, align int) (int, error) {
		if o := wire.VTableHeader + 2*index; o+2 <= int(vtLen) {
			off, err := buffer.Get[uint16](val.v, vt+o)
			if err != nil {
				return 0, fail(err, "table %s: vtable slot %d", def.Name, index)
			}
			if off == 0 {
				return 0, nil
			}
			if int(off) < wire.SizeSOffset || int(off)+size > int(tableLen) {
				return 0, errs.Invalidf("table %s: field %d at +%d overruns table of %d bytes", def.Name, index, off, tableLen)
			}
			loc := pos + int(off)
			if common.Padding(loc, align) != 0 {
				return 0, errs.Invalidf("table %s: field %d at %d is not %d-byte aligned", def.Name, index, loc, align)
			}
			return loc, nil
		}
		return 0, nil
	}

	for _, f := range def.Fields {
		if f.Deprecated {
			continue
		}
		typ := f.Type
		if typ.Kind == schema.Union {
			if err := val.union(f, slot, depth); err != nil {
				return err
			}
			continue
		}
		loc, err := slot(f.Index, typ.Size, typ.Align)
		if err != nil {
			return err
		}
		if loc == 0 {
			if f.Required {
				return errors.Mark(errors.Wrapf(errs.ErrRequiredField, "%s.%s", def.Name, f.Name), errs.ErrInvalidBuffer)
			}
			continue
		}
		if !typ.Kind.IsOffset() {
			continue
		}
		target, err := val.deref(loc, def.Name+"."+f.Name)
		if err != nil {
			return err
		}
		switch typ.Kind {
		case schema.String:
			err = val.string(target)
		case schema.Vector:
			err = val.vector(target, typ.Elem, depth)
		case schema.Table:
			err = val.child(target, typ.Table, depth)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (val *validator) union(f *schema.Field, slot func(index, size, align int) (int, error), depth int) error {
	loc, err := slot(f.Index, 1, 1)
	if err != nil {
		return err
	}
	var d byte
	if loc != 0 {
		if d, err = val.v.ByteAt(loc); err != nil {
			return fail(err, "%s.%s", f.Table.Name, f.Name)
		}
	}
	if d == 0 {
		if f.Required {
			return errors.Mark(errors.Wrapf(errs.ErrRequiredField, "%s.%s", f.Table.Name, f.Name), errs.ErrInvalidBuffer)
		}
		return nil
	}
	m, ok := f.Type.Union.Member(d)
	if !ok {
		return errs.Invalidf("%s.%s: unknown union discriminator %d", f.Table.Name, f.Name, d)
	}
	vloc, err := slot(f.Index+1, wire.SizeUOffset, 4)
	if err != nil {
		return err
	}
	if vloc == 0 {
		return errs.Invalidf("%s.%s: union value missing", f.Table.Name, f.Name)
	}
	target, err := val.deref(vloc, f.Table.Name+"."+f.Name)
	if err != nil {
		return err
	}
	if m.Kind == schema.Table {
		return val.child(target, m.Table, depth)
	}
	return val.inline(target, m)
}

func (val *validator) child(pos int, def *schema.TableDef, depth int) error {
	d, err := nextDepth(depth, val.maxDepth)
	if err != nil {
		return errors.Mark(err, errs.ErrInvalidBuffer)
	}
	return val.table(pos, def, d)
}

func (val *validator) inline(pos int, typ *schema.Type) error {
	if common.Padding(pos, typ.Align) != 0 {
		return errs.Invalidf("%s at %d is not %d-byte aligned", typ, pos, typ.Align)
	}
	if _, err := val.v.SliceN(pos, typ.Size); err != nil {
		return fail(err, "%s at %d", typ, pos)
	}
	return nil
}

func (val *validator) string(pos int) error {
	n, base, err := val.header(pos)
	if err != nil {
		return err
	}
	if _, err := val.v.SliceN(base, n+1); err != nil {
		return fail(err, "string at %d", pos)
	}
	if nul, _ := val.v.ByteAt(base + n); nul != 0 {
		return errs.Invalidf("string at %d is not NUL terminated", pos)
	}
	return nil
}

func (val *validator) header(pos int) (n, base int, err error) {
	if pos%4 != 0 {
		return 0, 0, errs.Invalidf("vector at %d is not 4-byte aligned", pos)
	}
	n, base, err = wire.Vector(val.v, pos)
	if err != nil {
		return 0, 0, fail(err, "vector at %d", pos)
	}
	return n, base, nil
}

func (val *validator) vector(pos int, elem *schema.Type, depth int) error {
	n, base, err := val.header(pos)
	if err != nil {
		return err
	}
	if common.Padding(base, elem.Align) != 0 {
		return errs.Invalidf("vector at %d: items not %d-byte aligned", pos, elem.Align)
	}
	if _, err := val.v.SliceN(base, n*elem.Size); err != nil {
		return fail(err, "vector at %d with %d items", pos, n)
	}
	if !elem.Kind.IsOffset() {
		return nil
	}
	for i := 0; i < n; i++ {
		target, err := val.deref(base+wire.SizeUOffset*i, "vector item")
		if err != nil {
			return err
		}
		if elem.Kind == schema.String {
			err = val.string(target)
		} else {
			err = val.child(target, elem.Table, depth)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
