package decode

import (
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// Unmarshal copies the whole graph into dst, a pointer to the Go struct
// the table was compiled from. The result shares nothing with the buffer.
func (t *Table) Unmarshal(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != t.def.GoType {
		return errors.Wrapf(errs.ErrTypeMismatch, "Unmarshal needs a non-nil *%s, got %T", t.def.Name, dst)
	}
	return t.unmarshal(rv.Elem())
}

func (t *Table) unmarshal(dst reflect.Value) error {
	if err := t.st.alive(); err != nil {
		return err
	}
	for _, f := range t.def.Fields {
		if f.Deprecated {
			continue
		}
		val, err := t.get(f)
		if err != nil {
			return err
		}
		if err := assign(dst.Field(f.GoIndex), f.Type, f.Optional, val); err != nil {
			return errors.Wrapf(err, "%s.%s", t.def.Name, f.Name)
		}
	}
	return nil
}

func assign(dst reflect.Value, typ *schema.Type, optional bool, val any) error {
	switch typ.Kind {
	case schema.Table:
		child := val.(*Table)
		if child == nil {
			dst.SetZero()
			return nil
		}
		p := reflect.New(typ.GoType)
		if err := child.unmarshal(p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
	case schema.Vector:
		vec := val.(*Vector)
		if vec == nil {
			dst.SetZero()
			return nil
		}
		return vec.unmarshal(dst)
	case schema.Union:
		u := val.(Union)
		if u.Type == 0 {
			dst.SetZero()
			return nil
		}
		m, ok := typ.Union.Member(u.Type)
		if !ok {
			return errors.Wrapf(errs.ErrTypeMismatch, "union %s has no member %d", typ.Union.Name, u.Type)
		}
		if m.Kind == schema.Table {
			p := reflect.New(m.GoType)
			if err := u.Value.(*Table).unmarshal(p.Elem()); err != nil {
				return err
			}
			dst.Set(p)
			return nil
		}
		dst.Set(reflect.ValueOf(u.Value))
	default:
		rv := reflect.ValueOf(val)
		if optional {
			if rv.IsNil() {
				dst.SetZero()
				return nil
			}
			p := reflect.New(typ.GoType)
			p.Elem().Set(rv.Elem())
			dst.Set(p)
			return nil
		}
		dst.Set(rv)
	}
	return nil
}

func (v *Vector) unmarshal(dst reflect.Value) error {
	if err := v.st.alive(); err != nil {
		return err
	}
	n := v.Len()
	out := reflect.MakeSlice(dst.Type(), n, n)
	elem := v.field.Type.Elem
	switch {
	case v.items.IsValid() && elem.Kind != schema.Table:
		reflect.Copy(out, v.items)
	case !v.items.IsValid() && v.copyScalars(out):
	default:
		for i := 0; i < n; i++ {
			x, err := v.At(i)
			if err != nil {
				return err
			}
			if err := assign(out.Index(i), elem, false, x); err != nil {
				return err
			}
		}
	}
	dst.Set(out)
	return nil
}
