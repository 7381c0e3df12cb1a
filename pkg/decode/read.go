package decode

import (
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/internal/wire"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

var stringType = reflect.TypeFor[string]()

// read decodes field f from the buffer. Children are built with the
// table's strategy, so a greedy parse materializes them recursively.
func (t *Table) read(f *schema.Field) (any, error) {
	if f.Deprecated {
		return zeroValue(f), nil
	}
	loc, err := wire.FieldLocation(t.view, t.pos, f.Index)
	if err != nil {
		return nil, err
	}
	typ := f.Type
	switch k := typ.Kind; {
	case k.IsScalar():
		if loc == 0 {
			return zeroValue(f), nil
		}
		bits, err := buffer.GetBits(t.view, loc, typ.Size)
		if err != nil {
			return nil, err
		}
		v := common.ScalarValue(typ.GoType, bits)
		if f.Optional {
			p := reflect.New(typ.GoType)
			p.Elem().Set(v)
			return p.Interface(), nil
		}
		return v.Interface(), nil
	case k == schema.Struct:
		if loc == 0 {
			return zeroValue(f), nil
		}
		sv, err := wire.GetStruct(t.view, loc, typ.Struct)
		if err != nil {
			return nil, err
		}
		return sv.Interface(), nil
	}

	if loc == 0 {
		if f.Required {
			return nil, errors.Wrapf(errs.ErrRequiredField, "%s.%s", t.def.Name, f.Name)
		}
		return zeroValue(f), nil
	}
	if typ.Kind == schema.Union {
		return t.readUnion(f, loc)
	}
	pos, err := wire.Deref(t.view, loc)
	if err != nil {
		return nil, err
	}
	switch typ.Kind {
	case schema.String:
		return readString(t.view, pos, typ.GoType)
	case schema.Vector:
		return newVector(t.view, pos, f, t.depth, t.st)
	default:
		return t.child(pos, typ.Table)
	}
}

func (t *Table) child(pos int, def *schema.TableDef) (*Table, error) {
	d, err := nextDepth(t.depth, t.st.opts.MaxDepth)
	if err != nil {
		return nil, err
	}
	c := &Table{}
	if err := c.init(t.view, pos, def, d, t.st); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *Table) readUnion(f *schema.Field, loc int) (any, error) {
	d, err := t.view.ByteAt(loc)
	if err != nil {
		return nil, err
	}
	if d == 0 {
		if f.Required {
			return nil, errors.Wrapf(errs.ErrRequiredField, "%s.%s", t.def.Name, f.Name)
		}
		return Union{}, nil
	}
	m, ok := f.Type.Union.Member(d)
	if !ok {
		return nil, errs.Invalidf("%s.%s: unknown union discriminator %d", t.def.Name, f.Name, d)
	}
	vloc, err := wire.FieldLocation(t.view, t.pos, f.Index+1)
	if err != nil {
		return nil, err
	}
	if vloc == 0 {
		return nil, errs.Invalidf("%s.%s: union value missing", t.def.Name, f.Name)
	}
	pos, err := wire.Deref(t.view, vloc)
	if err != nil {
		return nil, err
	}
	if m.Kind == schema.Table {
		c, err := t.child(pos, m.Table)
		if err != nil {
			return nil, err
		}
		return Union{Type: d, Value: c}, nil
	}
	sv, err := wire.GetStruct(t.view, pos, m.Struct)
	if err != nil {
		return nil, err
	}
	return Union{Type: d, Value: sv.Interface()}, nil
}

func readString(v buffer.View, pos int, goType reflect.Type) (any, error) {
	b, err := wire.StringBytes(v, pos)
	if err != nil {
		return nil, err
	}
	return typedString(string(b), goType), nil
}

func typedString(s string, goType reflect.Type) any {
	if goType == stringType {
		return s
	}
	return reflect.ValueOf(s).Convert(goType).Interface()
}

// zeroValue is what Get returns for an absent field.
func zeroValue(f *schema.Field) any {
	typ := f.Type
	switch k := typ.Kind; {
	case k.IsScalar():
		if f.Optional {
			return reflect.Zero(reflect.PointerTo(typ.GoType)).Interface()
		}
		return common.ScalarValue(typ.GoType, f.Default).Interface()
	case k == schema.Vector:
		return (*Vector)(nil)
	case k == schema.Table:
		return (*Table)(nil)
	case k == schema.Union:
		return Union{}
	}
	return reflect.Zero(typ.GoType).Interface()
}
