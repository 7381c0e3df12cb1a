package decode

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/internal/wire"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

var tablePtrType = reflect.TypeFor[*Table]()

// Vector is a decoded vector. Elements are returned like table fields:
// Go values for scalars, structs and strings, *Table for tables.
type Vector struct {
	field *schema.Field
	st    *state

	view  buffer.View
	base  int
	n     int
	depth int

	mu      sync.Mutex
	present bitset
	cache   []any

	// items holds the elements of greedy vectors in a slice of the
	// element Go type, or []*Table.
	items reflect.Value
}

func newVector(view buffer.View, pos int, f *schema.Field, depth int, st *state) (*Vector, error) {
	n, base, err := wire.Vector(view, pos)
	if err != nil {
		return nil, err
	}
	elem := f.Type.Elem
	if _, err := view.SliceN(base, n*elem.Size); err != nil {
		return nil, err
	}
	vec := &Vector{field: f, st: st, view: view, base: base, n: n, depth: depth}
	switch st.strategy {
	case Lazy:
	case Progressive:
		vec.present = newBitset(n)
		vec.cache = make([]any, n)
	default:
		vec.items = reflect.MakeSlice(itemsType(elem), n, n)
		if err := vec.fill(); err != nil {
			return nil, err
		}
		vec.view = buffer.View{}
	}
	return vec, nil
}

func itemsType(elem *schema.Type) reflect.Type {
	if elem.Kind == schema.Table {
		return reflect.SliceOf(tablePtrType)
	}
	return reflect.SliceOf(elem.GoType)
}

// fill materializes every element into items.
func (v *Vector) fill() error {
	if v.copyScalars(v.items) {
		return nil
	}
	for i := 0; i < v.n; i++ {
		x, err := v.read(i)
		if err != nil {
			return err
		}
		v.items.Index(i).Set(reflect.ValueOf(x))
	}
	return nil
}

// copyScalars copies a scalar vector into the slice dst with one memory
// copy when the host byte order matches the wire. Bool vectors are
// excluded since arbitrary bytes are not valid Go bools.
func (v *Vector) copyScalars(dst reflect.Value) bool {
	elem := v.field.Type.Elem
	if !buffer.NativeLittleEndian || !elem.Kind.IsScalar() || elem.Kind == schema.Bool || v.n == 0 {
		return false
	}
	raw := unsafe.Slice((*byte)(dst.UnsafePointer()), v.n*elem.Size)
	return v.view.CopyTo(v.base, raw) == nil
}

func (v *Vector) read(i int) (any, error) {
	elem := v.field.Type.Elem
	switch {
	case elem.Kind.IsScalar():
		bits, err := buffer.GetBits(v.view, v.base+i*elem.Size, elem.Size)
		if err != nil {
			return nil, err
		}
		return common.ScalarValue(elem.GoType, bits).Interface(), nil
	case elem.Kind == schema.Struct:
		sv, err := wire.GetStruct(v.view, v.base+i*elem.Size, elem.Struct)
		if err != nil {
			return nil, err
		}
		return sv.Interface(), nil
	}
	pos, err := wire.Deref(v.view, v.base+wire.SizeUOffset*i)
	if err != nil {
		return nil, err
	}
	if elem.Kind == schema.String {
		return readString(v.view, pos, elem.GoType)
	}
	d, err := nextDepth(v.depth, v.st.opts.MaxDepth)
	if err != nil {
		return nil, err
	}
	c := &Table{}
	if err := c.init(v.view, pos, elem.Table, d, v.st); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of elements, or 0 once the vector's pool graph
// was released.
func (v *Vector) Len() int {
	if v.st.alive() != nil {
		return 0
	}
	if v.items.IsValid() {
		return v.items.Len()
	}
	return v.n
}

// Elem returns the element type descriptor.
func (v *Vector) Elem() *schema.Type { return v.field.Type.Elem }

// At returns element i.
func (v *Vector) At(i int) (any, error) {
	if err := v.st.alive(); err != nil {
		return nil, err
	}
	if i < 0 || i >= v.Len() {
		return nil, errs.Bounds(i, 1, v.Len())
	}
	switch v.st.strategy {
	case Lazy:
		return v.read(i)
	case Progressive:
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.present.has(i) {
			return v.cache[i], nil
		}
		x, err := v.read(i)
		if err != nil {
			return nil, err
		}
		v.cache[i] = x
		v.present.set(i)
		return x, nil
	default:
		return v.items.Index(i).Interface(), nil
	}
}

// Set replaces element i of a GreedyMutable vector.
func (v *Vector) Set(i int, x any) error {
	if err := v.mutable(); err != nil {
		return err
	}
	if i < 0 || i >= v.Len() {
		return errs.Bounds(i, 1, v.Len())
	}
	ev, err := coerceElem(v.field.Type.Elem, x)
	if err != nil {
		return err
	}
	v.items.Index(i).Set(ev)
	return nil
}

// Append adds an element to a GreedyMutable vector.
func (v *Vector) Append(x any) error {
	if err := v.mutable(); err != nil {
		return err
	}
	ev, err := coerceElem(v.field.Type.Elem, x)
	if err != nil {
		return err
	}
	v.items = reflect.Append(v.items, ev)
	return nil
}

func (v *Vector) mutable() error {
	if err := v.st.alive(); err != nil {
		return err
	}
	switch v.st.strategy {
	case GreedyMutable:
		return nil
	case Greedy:
		return errors.Wrapf(errs.ErrReadOnly, "vector %s", v.field.Name)
	}
	return errors.Wrapf(errs.ErrWriteThroughDisabled, "vector %s", v.field.Name)
}

// Bytes returns the content of a vector of bytes. Lazy and Progressive
// vectors over addressable storage alias the buffer.
func (v *Vector) Bytes() ([]byte, error) {
	if err := v.st.alive(); err != nil {
		return nil, err
	}
	elem := v.field.Type.Elem
	if elem.Kind != schema.Uint8 {
		return nil, errors.Wrapf(errs.ErrTypeMismatch, "vector of %s is not a byte vector", elem)
	}
	if v.items.IsValid() {
		return unsafe.Slice((*byte)(v.items.UnsafePointer()), v.items.Len()), nil
	}
	if v.view.Addressable() {
		return v.view.Bytes(v.base, v.n)
	}
	out := make([]byte, v.n)
	return out, v.view.CopyTo(v.base, out)
}

// Search binary-searches a sorted vector of keyed tables and returns the
// first element whose key equals key.
func (v *Vector) Search(key any) (*Table, bool, error) {
	if err := v.st.alive(); err != nil {
		return nil, false, err
	}
	elem := v.field.Type.Elem
	if elem.Kind != schema.Table || elem.Table.Key == nil || !v.field.Sorted {
		return nil, false, errors.Wrapf(errs.ErrNotSorted, "vector %s", v.field.Name)
	}
	kf := elem.Table.Key
	target, err := keyOf(kf, key)
	if err != nil {
		return nil, false, err
	}
	lo, hi := 0, v.Len()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		k, err := v.keyAt(mid, kf)
		if err != nil {
			return nil, false, err
		}
		if wire.CompareKeys(kf.Type.Kind, k, target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == v.Len() {
		return nil, false, nil
	}
	k, err := v.keyAt(lo, kf)
	if err != nil {
		return nil, false, err
	}
	if wire.CompareKeys(kf.Type.Kind, k, target) != 0 {
		return nil, false, nil
	}
	x, err := v.At(lo)
	if err != nil {
		return nil, false, err
	}
	return x.(*Table), true, nil
}

func (v *Vector) keyAt(i int, kf *schema.Field) (wire.Key, error) {
	if v.items.IsValid() {
		t := v.items.Index(i).Interface().(*Table)
		return keyOf(kf, t.values[kf.Ordinal])
	}
	pos, err := wire.Deref(v.view, v.base+wire.SizeUOffset*i)
	if err != nil {
		return wire.Key{}, err
	}
	return wire.ReadKey(v.view, pos, kf)
}

// keyOf converts a Go key into its wire form.
func keyOf(kf *schema.Field, key any) (wire.Key, error) {
	rv := reflect.ValueOf(key)
	if kf.Type.Kind == schema.String {
		switch {
		case rv.Kind() == reflect.String:
			return wire.Key{Str: []byte(rv.String())}, nil
		case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
			return wire.Key{Str: rv.Bytes()}, nil
		}
		return wire.Key{}, errors.Wrapf(errs.ErrTypeMismatch, "key %T for string field %s", key, kf.Name)
	}
	sv, err := convertScalar(rv, kf.Type.GoType)
	if err != nil {
		return wire.Key{}, errors.Wrapf(err, "key for field %s", kf.Name)
	}
	return wire.Key{Bits: common.ScalarBits(sv)}, nil
}
