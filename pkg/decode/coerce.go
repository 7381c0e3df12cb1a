package decode

import (
	"math"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// coerce converts x into the representation Get returns for f.
func coerce(f *schema.Field, x any) (any, error) {
	typ := f.Type
	if typ.Kind.IsScalar() && f.Optional {
		ptr := reflect.PointerTo(typ.GoType)
		if x == nil {
			return reflect.Zero(ptr).Interface(), nil
		}
		rv := reflect.ValueOf(x)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return reflect.Zero(ptr).Interface(), nil
			}
			rv = rv.Elem()
		}
		sv, err := convertScalar(rv, typ.GoType)
		if err != nil {
			return nil, err
		}
		p := reflect.New(typ.GoType)
		p.Elem().Set(sv)
		return p.Interface(), nil
	}

	switch typ.Kind {
	case schema.Vector:
		if x == nil {
			return (*Vector)(nil), nil
		}
		vec, ok := x.(*Vector)
		if !ok || (vec != nil && vec.field.Type.GoType != typ.GoType) {
			return nil, errors.Wrapf(errs.ErrTypeMismatch, "%T is not a vector of %s", x, typ.Elem)
		}
		return vec, nil
	case schema.Union:
		if x == nil {
			return Union{}, nil
		}
		u, ok := x.(Union)
		if !ok {
			return nil, errors.Wrapf(errs.ErrTypeMismatch, "%T is not a Union", x)
		}
		if u.Type == 0 {
			return Union{}, nil
		}
		m, ok := typ.Union.Member(u.Type)
		if !ok {
			return nil, errors.Wrapf(errs.ErrTypeMismatch, "union %s has no member %d", typ.Union.Name, u.Type)
		}
		val, err := coerceElem(m, u.Value)
		if err != nil {
			return nil, err
		}
		return Union{Type: u.Type, Value: val.Interface()}, nil
	case schema.Table:
		if x == nil {
			return (*Table)(nil), nil
		}
		if t, ok := x.(*Table); ok && t == nil {
			return t, nil
		}
	}
	v, err := coerceElem(typ, x)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// coerceElem converts x into a value of a vector element (or union
// member) of type typ.
func coerceElem(typ *schema.Type, x any) (reflect.Value, error) {
	rv := reflect.ValueOf(x)
	switch k := typ.Kind; {
	case k.IsScalar():
		return convertScalar(rv, typ.GoType)
	case k == schema.String:
		if rv.Kind() != reflect.String {
			return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "%T is not a string", x)
		}
		return rv.Convert(typ.GoType), nil
	case k == schema.Struct:
		if !rv.IsValid() || rv.Type() != typ.GoType {
			return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "%T is not a %s", x, typ)
		}
		return rv, nil
	case k == schema.Table:
		t, ok := x.(*Table)
		if !ok || t == nil || t.def != typ.Table {
			return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "%T is not a %s table", x, typ)
		}
		return rv, nil
	}
	return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "cannot assign %T to %s", x, typ)
}

// convertScalar converts rv to the scalar type t. Integer conversions that
// would change the value are rejected.
func convertScalar(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	if !rv.IsValid() {
		return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "nil is not a %v", t)
	}
	if rv.Type() == t {
		return rv, nil
	}
	isBool := rv.Kind() == reflect.Bool
	if isBool != (t.Kind() == reflect.Bool) || !isNumeric(rv.Kind()) && !isBool {
		return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "%v is not a %v", rv.Type(), t)
	}
	if isInteger(rv.Kind()) && isInteger(t.Kind()) && !fits(rv, t) {
		return reflect.Value{}, errors.Wrapf(errs.ErrTypeMismatch, "%v overflows %v", rv.Interface(), t)
	}
	return rv.Convert(t), nil
}

// fits reports whether the integer held by rv is representable in t.
func fits(rv reflect.Value, t reflect.Type) bool {
	z := reflect.New(t).Elem()
	if isSignedKind(rv.Kind()) {
		n := rv.Int()
		if common.IsSigned(t.Kind()) {
			return !z.OverflowInt(n)
		}
		return n >= 0 && !z.OverflowUint(uint64(n))
	}
	u := rv.Uint()
	if common.IsSigned(t.Kind()) {
		return u <= math.MaxInt64 && !z.OverflowInt(int64(u))
	}
	return !z.OverflowUint(u)
}

func isNumeric(k reflect.Kind) bool {
	return isInteger(k) || k == reflect.Float32 || k == reflect.Float64
}

func isInteger(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Uint64
}

func isSignedKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

// NewVector returns an empty vector for the named vector field of a
// GreedyMutable table. Assign it with Set after appending elements.
func (t *Table) NewVector(name string) (*Vector, error) {
	f, err := t.field(name)
	if err != nil {
		return nil, err
	}
	if f.Type.Kind != schema.Vector {
		return nil, errors.Wrapf(errs.ErrTypeMismatch, "%s.%s is not a vector", t.def.Name, name)
	}
	if t.st.strategy != GreedyMutable {
		return nil, errors.Wrapf(errs.ErrReadOnly, "%s is %s", t.def.Name, t.st.strategy)
	}
	return &Vector{
		field: f,
		st:    t.st,
		depth: -1,
		items: reflect.MakeSlice(itemsType(f.Type.Elem), 0, 0),
	}, nil
}
