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

// writeThrough stores x directly in the buffer behind a Lazy or
// Progressive table. Only fields whose slot is present can be written;
// nothing is ever inserted or moved.
func (t *Table) writeThrough(f *schema.Field, x any) error {
	if !f.WriteThrough {
		return errors.Wrapf(errs.ErrWriteThroughDisabled, "%s.%s", t.def.Name, f.Name)
	}
	val, err := coerce(f, x)
	if err != nil {
		return errors.Wrapf(err, "%s.%s", t.def.Name, f.Name)
	}
	rv := reflect.ValueOf(val)
	if f.Optional {
		if rv.IsNil() {
			return errors.Wrapf(errs.ErrTypeMismatch, "%s.%s: cannot clear a field in place", t.def.Name, f.Name)
		}
		rv = rv.Elem()
	}

	if t.st.strategy == Progressive {
		t.mu.Lock()
		defer t.mu.Unlock()
	}
	loc, err := wire.FieldLocation(t.view, t.pos, f.Index)
	if err != nil {
		return err
	}
	if loc == 0 {
		return errors.Wrapf(errs.ErrWriteThroughAbsent, "%s.%s", t.def.Name, f.Name)
	}
	if f.Type.Kind == schema.Struct {
		err = wire.PutStruct(t.view, loc, f.Type.Struct, rv)
	} else {
		err = buffer.PutBits(t.view, loc, f.Type.Size, common.ScalarBits(rv))
	}
	if err != nil {
		return err
	}
	if t.st.strategy == Progressive {
		t.cache[f.Ordinal] = val
		t.present.set(f.Ordinal)
	}
	return nil
}
