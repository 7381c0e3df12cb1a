// Package fractus serializes Go structs into a FlatBuffers-compatible
// binary layout and reads them back without parsing the whole buffer.
//
// A struct type is a table. Fields map by their `fbs` tag:
//
//	type Monster struct {
//		Pos    Vec3      `fbs:"0,writethrough"`
//		HP     int16     `fbs:"1,default=100"`
//		Name   string    `fbs:"2,required"`
//		Items  []*Item   `fbs:"3,sorted"`
//		Friend *Monster  `fbs:"4"`
//	}
//
// Write and Marshal encode; Parse returns a *Table read with one of four
// strategies; Unmarshal copies a buffer back into a struct.
package fractus

import (
	"io"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/wire"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/decode"
	"github.com/rawbytedev/fractus/pkg/encode"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

type (
	Strategy = decode.Strategy
	Table    = decode.Table
	Vector   = decode.Vector
	Union    = decode.Union
	Pool     = decode.Pool
)

const (
	Lazy          = decode.Lazy
	Progressive   = decode.Progressive
	Greedy        = decode.Greedy
	GreedyMutable = decode.GreedyMutable
)

// root resolves the table descriptor and value to encode. A decoded
// *Table is materialized into a fresh struct first.
func root(v any) (*schema.TableDef, reflect.Value, error) {
	if t, ok := v.(*decode.Table); ok {
		if t == nil {
			return nil, reflect.Value{}, errors.Wrap(errs.ErrRequiredField, "nil root table")
		}
		def := t.Schema()
		p := reflect.New(def.GoType)
		if err := t.Unmarshal(p.Interface()); err != nil {
			return nil, reflect.Value{}, err
		}
		return def, p, nil
	}
	def, err := schema.Compile(reflect.TypeOf(v))
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return def, reflect.ValueOf(v), nil
}

// Write encodes v, a struct, a pointer to one or a parsed *Table, into s
// and returns the number of bytes written. Growable storages are
// truncated to the result. When s is fixed and too small the error is a
// *CapacityError carrying the capacity needed.
func Write(s buffer.Storage, v any, opts ...Option) (int, error) {
	cfg := newConfig(opts)
	def, rv, err := root(v)
	if err != nil {
		return 0, err
	}
	e := encode.Acquire(cfg.encodeOptions())
	defer encode.Release(e)
	n, err := e.Write(s, def, rv)
	if err != nil {
		return 0, err
	}
	if t, ok := s.(interface{ Truncate(int) }); ok {
		t.Truncate(n)
	}
	return n, nil
}

// Marshal encodes v into a new byte slice.
func Marshal(v any, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	g := buffer.NewGrowable(cfg.InitialCapacity)
	n, err := Write(g, v, opts...)
	if err != nil {
		return nil, err
	}
	return g.Bytes()[:n], nil
}

// WriteTo encodes v and writes the result to w.
func WriteTo(w io.Writer, v any, opts ...Option) (int64, error) {
	b, err := Marshal(v, opts...)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// GetMaxSize returns an upper bound on the encoded size of v, computed
// without writing.
func GetMaxSize(v any, opts ...Option) (int, error) {
	cfg := newConfig(opts)
	def, rv, err := root(v)
	if err != nil {
		return 0, err
	}
	e := encode.Acquire(cfg.encodeOptions())
	defer encode.Release(e)
	return e.MaxSize(def, rv)
}

// Size returns the exact encoded size of v.
func Size(v any, opts ...Option) (int, error) {
	cfg := newConfig(opts)
	def, rv, err := root(v)
	if err != nil {
		return 0, err
	}
	e := encode.Acquire(cfg.encodeOptions())
	defer encode.Release(e)
	return e.Size(def, rv)
}

// Parse reads data as a T table. Lazy and Progressive tables keep
// referencing data; write-through setters modify it in place.
func Parse[T any](data []byte, s Strategy, opts ...Option) (*Table, error) {
	return ParseView[T](buffer.FromBytes(data), s, opts...)
}

// ParseView is Parse over any storage.
func ParseView[T any](v buffer.View, s Strategy, opts ...Option) (*Table, error) {
	def, err := schema.CompileOf[T]()
	if err != nil {
		return nil, err
	}
	return decode.Parse(v, def, s, newConfig(opts).decodeOptions())
}

// Unmarshal decodes data into dst, a pointer to a struct.
func Unmarshal(data []byte, dst any, opts ...Option) error {
	def, err := schema.Compile(reflect.TypeOf(dst))
	if err != nil {
		return err
	}
	t, err := decode.Parse(buffer.FromBytes(data), def, Lazy, newConfig(opts).decodeOptions())
	if err != nil {
		return err
	}
	return t.Unmarshal(dst)
}

// Validate checks that data is a well-formed T buffer. The error, if any,
// matches ErrInvalidBuffer.
func Validate[T any](data []byte, opts ...Option) error {
	def, err := schema.CompileOf[T]()
	if err != nil {
		return err
	}
	return decode.Validate(buffer.FromBytes(data), def, newConfig(opts).decodeOptions())
}

// HasIdentifier reports whether data carries the 4-byte file identifier id.
func HasIdentifier(data []byte, id string) bool {
	return wire.HasIdentifier(buffer.FromBytes(data), id)
}

// RegisterUnion declares the members of the union carried by the
// interface I. Members are given as sample values: a struct value for an
// inline struct member, a pointer to a struct for a table member.
// Discriminators are assigned 1, 2, ... in argument order.
func RegisterUnion[I any](members ...I) error {
	types := make([]reflect.Type, len(members))
	for i, m := range members {
		types[i] = reflect.TypeOf(m)
	}
	return schema.RegisterUnion(reflect.TypeFor[I](), types...)
}

// NewPool returns a pool of GreedyMutable tables, keeping at most
// maxPerType idle tables per root type.
func NewPool(maxPerType int) *Pool {
	return decode.NewPool(maxPerType)
}

// Acquire parses data as a T table taken from p.
func Acquire[T any](p *Pool, data []byte, opts ...Option) (*Table, error) {
	def, err := schema.CompileOf[T]()
	if err != nil {
		return nil, err
	}
	return p.Acquire(buffer.FromBytes(data), def, newConfig(opts).decodeOptions())
}

// Fractus is a reusable codec. It keeps its encode buffer between calls,
// so the slice Encode returns is only valid until the next Encode.
// A Fractus is not safe for concurrent use.
type Fractus struct {
	cfg Config
	eng *encode.Engine
	buf *buffer.Growable
}

func New(opts ...Option) *Fractus {
	cfg := newConfig(opts)
	return &Fractus{
		cfg: cfg,
		eng: encode.NewEngine(cfg.encodeOptions()),
		buf: buffer.NewGrowable(cfg.InitialCapacity),
	}
}

// Encode encodes v into the codec's buffer.
func (f *Fractus) Encode(v any) ([]byte, error) {
	def, rv, err := root(v)
	if err != nil {
		return nil, err
	}
	f.buf.Reset()
	n, err := f.eng.Write(f.buf, def, rv)
	if err != nil {
		return nil, err
	}
	return f.buf.Bytes()[:n], nil
}

// Decode copies data into dst, a pointer to a struct.
func (f *Fractus) Decode(data []byte, dst any) error {
	def, err := schema.Compile(reflect.TypeOf(dst))
	if err != nil {
		return err
	}
	t, err := decode.Parse(buffer.FromBytes(data), def, Lazy, f.cfg.decodeOptions())
	if err != nil {
		return err
	}
	return t.Unmarshal(dst)
}
