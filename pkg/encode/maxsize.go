package encode

import (
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/internal/wire"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// MaxSize returns an upper bound on the encoded size of v without writing
// anything: every table is counted at its full inline reservation, every
// allocation at worst-case padding and every invalid UTF-8 string at three
// bytes per input byte.
func (e *Engine) MaxSize(root *schema.TableDef, v reflect.Value) (int, error) {
	v, err := rootValue(root, v)
	if err != nil {
		return 0, err
	}
	n := wire.SizeUOffset
	if e.opts.FileIdentifier != "" {
		n += wire.FileIdentifierLength
	}
	depth := -1
	if root.NeedsDepthTracking(e.opts.MaxDepth) {
		depth = e.opts.MaxDepth
	}
	t, err := e.maxTable(root, v, depth)
	return n + t, err
}

func (e *Engine) maxTable(td *schema.TableDef, v reflect.Value, depth int) (int, error) {
	n := 3 + td.MaxInlineSize + 1 + 4 + 2*(td.MaxIndex+1)
	for _, f := range td.Fields {
		if f.Deprecated {
			continue
		}
		fv := v.Field(f.GoIndex)
		switch f.Type.Kind {
		case schema.String:
			n += maxString(fv.String())
		case schema.Vector:
			if fv.IsNil() {
				continue
			}
			m, err := e.maxVector(f.Type.Elem, fv, depth)
			if err != nil {
				return 0, err
			}
			n += m
		case schema.Table:
			if fv.IsNil() {
				continue
			}
			m, err := e.maxChild(f.Type.Table, fv.Elem(), depth)
			if err != nil {
				return 0, err
			}
			n += m
		case schema.Union:
			if fv.IsNil() {
				continue
			}
			mv := fv.Elem()
			_, m, ok := f.Type.Union.Discriminator(mv.Type())
			if !ok {
				return 0, errors.Wrapf(errs.ErrTypeMismatch, "%s.%s: %v is not a member of %s",
					td.Name, f.Name, mv.Type(), f.Type.Union.Name)
			}
			if m.Kind == schema.Struct {
				n += m.Size + m.Align - 1
				continue
			}
			if mv.IsNil() {
				continue
			}
			c, err := e.maxChild(m.Table, mv.Elem(), depth)
			if err != nil {
				return 0, err
			}
			n += c
		}
	}
	return n, nil
}

func (e *Engine) maxChild(td *schema.TableDef, v reflect.Value, depth int) (int, error) {
	cd, err := e.child(depth)
	if err != nil {
		return 0, err
	}
	return e.maxTable(td, v, cd)
}

func (e *Engine) maxVector(elem *schema.Type, v reflect.Value, depth int) (int, error) {
	count := v.Len()
	n := 7 + 4 + count*elem.Size
	switch elem.Kind {
	case schema.String:
		for i := 0; i < count; i++ {
			n += maxStringData(v.Index(i).String())
		}
	case schema.Table:
		for i := 0; i < count; i++ {
			ev := v.Index(i)
			if ev.IsNil() {
				continue
			}
			m, err := e.maxChild(elem.Table, ev.Elem(), depth)
			if err != nil {
				return 0, err
			}
			n += m
		}
	}
	return n, nil
}

// maxString bounds a string table field. Empty strings are absent.
func maxString(s string) int {
	if s == "" {
		return 0
	}
	return maxStringData(s)
}

// maxStringData bounds one written string: padding, count, bytes, NUL.
func maxStringData(s string) int {
	return 3 + 4 + 3*len(s) + 1
}
