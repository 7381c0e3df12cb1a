package schema

import (
	"cmp"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/pkg/errs"
)

// TagName is the struct tag Compile reads.
const TagName = "fbs"

// MaxFieldIndex is the highest vtable index a field may use: the vtable
// length must fit a uint16.
const MaxFieldIndex = (math.MaxUint16-4)/2 - 1

var cache = struct {
	mu     sync.RWMutex
	tables map[reflect.Type]*TableDef
}{tables: make(map[reflect.Type]*TableDef)}

// Compile returns the table descriptor for the struct type t (or a pointer
// to it). Descriptors are built once per type and cached; recursive types
// are supported.
func Compile(t reflect.Type) (*TableDef, error) {
	if t == nil {
		return nil, errors.Wrap(errs.ErrUnsupported, "nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Wrapf(errs.ErrUnsupported, "root %v is not a struct", t)
	}

	cache.mu.RLock()
	if td, ok := cache.tables[t]; ok {
		cache.mu.RUnlock()
		return td, nil
	}
	cache.mu.RUnlock()

	cache.mu.Lock()
	defer cache.mu.Unlock()

	// Double-check
	if td, ok := cache.tables[t]; ok {
		return td, nil
	}

	c := &compiler{
		tables:  make(map[reflect.Type]*TableDef),
		structs: make(map[reflect.Type]*StructDef),
		unions:  make(map[reflect.Type]*UnionDef),
	}
	td, err := c.table(t)
	if err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	for gt, def := range c.tables {
		cache.tables[gt] = def
	}
	return td, nil
}

// MustCompile is Compile for package-level variables.
func MustCompile(t reflect.Type) *TableDef {
	td, err := Compile(t)
	if err != nil {
		panic(err)
	}
	return td
}

// CompileOf compiles the table descriptor for T.
func CompileOf[T any]() (*TableDef, error) {
	return Compile(reflect.TypeFor[T]())
}

type compiler struct {
	tables  map[reflect.Type]*TableDef
	structs map[reflect.Type]*StructDef
	unions  map[reflect.Type]*UnionDef
	sorted  []*Field
}

type tagOptions struct {
	index        int
	required     bool
	deprecated   bool
	key          bool
	sorted       bool
	writeThrough bool
	def          string
	hasDefault   bool
}

func parseTag(tag string) (tagOptions, error) {
	opts := tagOptions{index: -1}
	if tag == "" {
		return opts, nil
	}
	parts := strings.Split(tag, ",")
	if p := strings.TrimSpace(parts[0]); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > MaxFieldIndex {
			return opts, errors.Newf("invalid field index %q", p)
		}
		opts.index = n
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "required":
			opts.required = true
		case p == "deprecated":
			opts.deprecated = true
		case p == "key":
			opts.key = true
		case p == "sorted":
			opts.sorted = true
		case p == "writethrough":
			opts.writeThrough = true
		case strings.HasPrefix(p, "default="):
			opts.def = strings.TrimPrefix(p, "default=")
			opts.hasDefault = true
		default:
			return opts, errors.Newf("unknown tag option %q", p)
		}
	}
	return opts, nil
}

func (c *compiler) table(t reflect.Type) (*TableDef, error) {
	if td, ok := cache.tables[t]; ok {
		return td, nil
	}
	if td, ok := c.tables[t]; ok {
		return td, nil
	}
	td := &TableDef{
		Name:     t.Name(),
		GoType:   t,
		MaxIndex: -1,
		Align:    4,
		byName:   make(map[string]*Field),
	}
	c.tables[t] = td

	used := make(map[int]*Field)
	next := 0
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, _ := sf.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		opts, err := parseTag(tag)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", td.Name, sf.Name)
		}
		typ, optional, err := c.fieldType(sf.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", td.Name, sf.Name)
		}
		f := &Field{
			Name:         sf.Name,
			Index:        opts.index,
			GoIndex:      i,
			Type:         typ,
			Table:        td,
			Optional:     optional,
			Required:     opts.required,
			Deprecated:   opts.deprecated,
			Key:          opts.key,
			Sorted:       opts.sorted,
			WriteThrough: opts.writeThrough,
		}
		if f.Index < 0 {
			f.Index = next
		}
		if err := c.checkOptions(f, opts); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", td.Name, sf.Name)
		}
		if f.Index+f.Slots()-1 > MaxFieldIndex {
			return nil, errors.Newf("%s.%s: field index %d out of range", td.Name, sf.Name, f.Index)
		}
		for s := f.Index; s < f.Index+f.Slots(); s++ {
			if prev, ok := used[s]; ok {
				return nil, errors.Newf("%s: fields %s and %s share index %d", td.Name, prev.Name, f.Name, s)
			}
			used[s] = f
		}
		next = max(next, f.Index+f.Slots())
		if f.Key {
			if td.Key != nil {
				return nil, errors.Newf("%s: more than one key field", td.Name)
			}
			td.Key = f
		}
		td.Fields = append(td.Fields, f)
		td.byName[f.Name] = f
	}

	slices.SortFunc(td.Fields, func(a, b *Field) int { return cmp.Compare(a.Index, b.Index) })
	td.MaxIndex = next - 1
	td.byIndex = make([]*Field, next)
	inline := 4
	for i, f := range td.Fields {
		f.Ordinal = i
		for s := f.Index; s < f.Index+f.Slots(); s++ {
			td.byIndex[s] = f
		}
		if f.Deprecated {
			continue
		}
		if f.Type.Kind == Union {
			inline += 1 + 4 + 3
		} else {
			inline += f.Type.Size + f.Type.Align - 1
		}
		td.Align = max(td.Align, f.Type.Align)
	}
	if inline > math.MaxUint16 {
		return nil, errors.Newf("%s: inline size %d exceeds the vtable limit", td.Name, inline)
	}
	td.MaxInlineSize = inline
	return td, nil
}

func (c *compiler) checkOptions(f *Field, opts tagOptions) error {
	k := f.Type.Kind
	if opts.required {
		if k != String && k != Vector && k != Table && k != Union {
			return errors.Newf("required applies to strings, vectors, tables and unions, not %s", k)
		}
		if opts.deprecated {
			return errors.New("a field cannot be both required and deprecated")
		}
	}
	if opts.key && !(k == String || (k.IsScalar() && !f.Optional)) {
		return errors.Newf("key must be a string or a non-optional scalar, not %s", f.Type)
	}
	if opts.sorted {
		if k != Vector || f.Type.Elem.Kind != Table {
			return errors.Newf("sorted applies to vectors of tables, not %s", f.Type)
		}
		c.sorted = append(c.sorted, f)
	}
	if opts.writeThrough && !k.IsScalar() && k != Struct {
		return errors.Newf("writethrough applies to scalars and structs, not %s", f.Type)
	}
	if opts.hasDefault {
		if !k.IsScalar() || f.Optional {
			return errors.Newf("default applies to non-optional scalars, not %s", f.Type)
		}
		bits, err := parseDefault(k, opts.def)
		if err != nil {
			return err
		}
		f.Default = bits
	}
	return nil
}

func parseDefault(k Kind, s string) (uint64, error) {
	switch k {
	case Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return 0, errors.Wrapf(err, "default %q", s)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case Int8, Int16, Int32, Int64:
		size := kindSize(k)
		n, err := strconv.ParseInt(s, 0, size*8)
		if err != nil {
			return 0, errors.Wrapf(err, "default %q", s)
		}
		return uint64(n) & sizeMask(size), nil
	case Uint8, Uint16, Uint32, Uint64:
		n, err := strconv.ParseUint(s, 0, kindSize(k)*8)
		if err != nil {
			return 0, errors.Wrapf(err, "default %q", s)
		}
		return n, nil
	case Float32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, errors.Wrapf(err, "default %q", s)
		}
		return uint64(math.Float32bits(float32(f))), nil
	case Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "default %q", s)
		}
		return math.Float64bits(f), nil
	}
	return 0, errors.AssertionFailedf("default on %s", k)
}

func sizeMask(size int) uint64 {
	if size >= 8 {
		return math.MaxUint64
	}
	return 1<<(uint(size)*8) - 1
}

func kindSize(k Kind) int {
	switch k {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	}
	return 8
}

var scalarKinds = map[reflect.Kind]Kind{
	reflect.Bool:    Bool,
	reflect.Int8:    Int8,
	reflect.Uint8:   Uint8,
	reflect.Int16:   Int16,
	reflect.Uint16:  Uint16,
	reflect.Int32:   Int32,
	reflect.Uint32:  Uint32,
	reflect.Int64:   Int64,
	reflect.Uint64:  Uint64,
	reflect.Float32: Float32,
	reflect.Float64: Float64,
}

func scalarType(t reflect.Type) *Type {
	size := common.FixedSize(t.Kind())
	return &Type{Kind: scalarKinds[t.Kind()], GoType: t, Size: size, Align: size}
}

func tableType(td *TableDef) *Type {
	return &Type{Kind: Table, GoType: td.GoType, Size: 4, Align: 4, Table: td}
}

func structType(sd *StructDef) *Type {
	return &Type{Kind: Struct, GoType: sd.GoType, Size: sd.Size, Align: sd.Align, Struct: sd}
}

// fieldType maps the Go type of a table field. optional reports a
// pointer-to-scalar field.
func (c *compiler) fieldType(t reflect.Type) (typ *Type, optional bool, err error) {
	switch t.Kind() {
	case reflect.Interface:
		u, err := c.union(t)
		if err != nil {
			return nil, false, err
		}
		return &Type{Kind: Union, GoType: t, Size: 1, Align: 1, Union: u}, false, nil
	case reflect.Pointer:
		e := t.Elem()
		if e.Kind() == reflect.Struct {
			td, err := c.table(e)
			if err != nil {
				return nil, false, err
			}
			return tableType(td), false, nil
		}
		if common.IsFixedKind(e.Kind()) {
			return scalarType(e), true, nil
		}
		return nil, false, errors.Wrapf(errs.ErrUnsupported, "pointer to %v", e)
	case reflect.Slice:
		elem, err := c.elemType(t.Elem())
		if err != nil {
			return nil, false, err
		}
		return &Type{Kind: Vector, GoType: t, Size: 4, Align: 4, Elem: elem}, false, nil
	}
	typ, err = c.valueType(t)
	return typ, false, err
}

func (c *compiler) elemType(t reflect.Type) (*Type, error) {
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		td, err := c.table(t.Elem())
		if err != nil {
			return nil, err
		}
		return tableType(td), nil
	}
	typ, err := c.valueType(t)
	if err != nil {
		return nil, errors.Wrapf(err, "vector element")
	}
	return typ, nil
}

func (c *compiler) valueType(t reflect.Type) (*Type, error) {
	switch {
	case common.IsFixedKind(t.Kind()):
		return scalarType(t), nil
	case t.Kind() == reflect.String:
		return &Type{Kind: String, GoType: t, Size: 4, Align: 4}, nil
	case t.Kind() == reflect.Struct:
		sd, err := c.strct(t)
		if err != nil {
			return nil, err
		}
		return structType(sd), nil
	}
	return nil, errors.Wrapf(errs.ErrUnsupported, "%v", t)
}

func (c *compiler) strct(t reflect.Type) (*StructDef, error) {
	if sd, ok := c.structs[t]; ok {
		return sd, nil
	}
	sd := &StructDef{Name: t.Name(), GoType: t, Align: 1}
	off := 0
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get(TagName) == "-" {
			continue
		}
		var typ *Type
		switch {
		case common.IsFixedKind(sf.Type.Kind()):
			typ = scalarType(sf.Type)
		case sf.Type.Kind() == reflect.Struct:
			nested, err := c.strct(sf.Type)
			if err != nil {
				return nil, err
			}
			typ = structType(nested)
		default:
			return nil, errors.Wrapf(errs.ErrUnsupported, "struct %s field %s: %v is not fixed-size", sd.Name, sf.Name, sf.Type)
		}
		off = common.AlignUp(off, typ.Align)
		sd.Fields = append(sd.Fields, StructField{Name: sf.Name, GoIndex: i, Type: typ, Offset: off})
		off += typ.Size
		sd.Align = max(sd.Align, typ.Align)
	}
	if len(sd.Fields) == 0 {
		return nil, errors.Wrapf(errs.ErrUnsupported, "struct %s has no fields", sd.Name)
	}
	sd.Size = common.AlignUp(off, sd.Align)
	c.structs[t] = sd
	return sd, nil
}

func (c *compiler) union(t reflect.Type) (*UnionDef, error) {
	if u, ok := c.unions[t]; ok {
		return u, nil
	}
	members, ok := unionMembers(t)
	if !ok {
		return nil, errors.Wrapf(errs.ErrUnsupported, "interface %v is not a registered union", t)
	}
	u := &UnionDef{Name: t.Name(), GoType: t}
	c.unions[t] = u
	for _, m := range members {
		if m.Kind() == reflect.Pointer {
			td, err := c.table(m.Elem())
			if err != nil {
				return nil, err
			}
			u.Members = append(u.Members, tableType(td))
			continue
		}
		sd, err := c.strct(m)
		if err != nil {
			return nil, err
		}
		u.Members = append(u.Members, structType(sd))
	}
	return u, nil
}

func (c *compiler) finish() error {
	for _, f := range c.sorted {
		if f.Type.Elem.Table.Key == nil {
			return errors.Newf("%s.%s: sorted vector of %s, which has no key field", f.Table.Name, f.Name, f.Type.Elem.Table.Name)
		}
	}
	memo := make(map[*TableDef]depthInfo)
	for _, td := range c.tables {
		r := analyze(td, make(map[*TableDef]bool), memo)
		td.Depth, td.Cyclic = r.depth, r.cyclic
	}
	return nil
}

type depthInfo struct {
	depth  int
	cyclic bool
}

// analyze computes the longest table chain below t and whether a cycle is
// reachable from it. Both results are independent of the path taken to t,
// so they are memoized.
func analyze(t *TableDef, path map[*TableDef]bool, memo map[*TableDef]depthInfo) depthInfo {
	if r, ok := memo[t]; ok {
		return r
	}
	if path[t] {
		return depthInfo{cyclic: true}
	}
	path[t] = true
	r := depthInfo{depth: 1}
	for _, child := range children(t) {
		cr := analyze(child, path, memo)
		if cr.cyclic {
			r.cyclic = true
			continue
		}
		r.depth = max(r.depth, cr.depth+1)
	}
	delete(path, t)
	memo[t] = r
	return r
}

func children(t *TableDef) []*TableDef {
	var out []*TableDef
	for _, f := range t.Fields {
		if f.Deprecated {
			continue
		}
		switch f.Type.Kind {
		case Table:
			out = append(out, f.Type.Table)
		case Vector:
			if f.Type.Elem.Kind == Table {
				out = append(out, f.Type.Elem.Table)
			}
		case Union:
			for _, m := range f.Type.Union.Members {
				if m.Kind == Table {
					out = append(out, m.Table)
				}
			}
		}
	}
	return out
}
