// Package schema describes the entities that the encoder and decoder walk:
// tables, structs, vectors, strings, unions and scalars. Descriptors are
// compiled from Go types annotated with `fbs` struct tags.
package schema

import (
	"reflect"
)

// DefaultMaxDepth is the nesting limit applied when none is configured.
const DefaultMaxDepth = 1000

type Kind uint8

const (
	Bool Kind = iota + 1
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	String
	Struct
	Table
	Vector
	Union
)

var kindNames = [...]string{
	Bool: "bool", Int8: "int8", Uint8: "uint8", Int16: "int16", Uint16: "uint16",
	Int32: "int32", Uint32: "uint32", Int64: "int64", Uint64: "uint64",
	Float32: "float32", Float64: "float64", String: "string", Struct: "struct",
	Table: "table", Vector: "vector", Union: "union",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "invalid"
}

func (k Kind) IsScalar() bool { return k >= Bool && k <= Float64 }

// IsOffset reports whether values of this kind live out of line and are
// reached through a uoffset.
func (k Kind) IsOffset() bool {
	return k == String || k == Table || k == Vector
}

// Type is the descriptor of one schema entity.
type Type struct {
	Kind   Kind
	GoType reflect.Type
	// Size and Align describe the inline footprint inside a table or a
	// vector: the scalar width, the struct size, or 4 for offsets.
	Size  int
	Align int

	Elem   *Type
	Struct *StructDef
	Table  *TableDef
	Union  *UnionDef
}

func (t *Type) String() string {
	switch t.Kind {
	case Struct:
		return t.Struct.Name
	case Table:
		return t.Table.Name
	case Union:
		return t.Union.Name
	case Vector:
		return "[" + t.Elem.String() + "]"
	}
	return t.Kind.String()
}

// Field is one table field.
type Field struct {
	Name    string
	Index   int
	GoIndex int
	// Ordinal is the position of the field in TableDef.Fields.
	Ordinal int
	Type    *Type
	Table   *TableDef

	// Optional marks a nullable scalar (a pointer field): it has no
	// default and is written whenever it is non-nil.
	Optional bool
	// Default is the wire bit pattern of the scalar default.
	Default uint64

	Required     bool
	Deprecated   bool
	Key          bool
	Sorted       bool
	WriteThrough bool
}

// Slots is the number of vtable entries the field occupies.
func (f *Field) Slots() int {
	if f.Type.Kind == Union {
		return 2
	}
	return 1
}

// TableDef is a table: optional fields reached through a vtable.
type TableDef struct {
	Name   string
	GoType reflect.Type
	Fields []*Field

	// MaxIndex is the highest vtable index in use, -1 for an empty table.
	MaxIndex int
	// MaxInlineSize bounds the inline region: the soffset plus every
	// field with worst-case padding.
	MaxInlineSize int
	Align         int
	Key           *Field

	// Cyclic is set when a cycle of tables is reachable from this one.
	Cyclic bool
	// Depth is the longest chain of nested tables starting here (1 for a
	// table without table children). Meaningless when Cyclic.
	Depth int

	byName  map[string]*Field
	byIndex []*Field
}

// Field looks a field up by its Go name.
func (t *TableDef) Field(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// FieldAt returns the field occupying vtable index i, or nil.
func (t *TableDef) FieldAt(i int) *Field {
	if i < 0 || i >= len(t.byIndex) {
		return nil
	}
	return t.byIndex[i]
}

// NeedsDepthTracking reports whether decoding must count nesting depth.
// Acyclic schemas shallower than the limit skip the check.
func (t *TableDef) NeedsDepthTracking(maxDepth int) bool {
	return t.Cyclic || t.Depth > maxDepth
}

// StructDef is a fixed-layout struct stored inline.
type StructDef struct {
	Name   string
	GoType reflect.Type
	Fields []StructField
	Size   int
	Align  int
}

type StructField struct {
	Name    string
	GoIndex int
	Type    *Type
	Offset  int
}

// UnionDef is a tagged union. Member i has discriminator i+1; 0 is none.
type UnionDef struct {
	Name    string
	GoType  reflect.Type
	Members []*Type
}

// Discriminator returns the discriminator for a member Go type.
func (u *UnionDef) Discriminator(t reflect.Type) (uint8, *Type, bool) {
	for i, m := range u.Members {
		if memberGoType(m) == t {
			return uint8(i + 1), m, true
		}
	}
	return 0, nil, false
}

// Member returns the member for discriminator d.
func (u *UnionDef) Member(d uint8) (*Type, bool) {
	if d == 0 || int(d) > len(u.Members) {
		return nil, false
	}
	return u.Members[d-1], true
}

// memberGoType is the Go type a union value of member m carries: *T for
// tables, T for structs.
func memberGoType(m *Type) reflect.Type {
	if m.Kind == Table {
		return reflect.PointerTo(m.GoType)
	}
	return m.GoType
}
