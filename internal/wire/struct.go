package wire

import (
	"reflect"

	"github.com/rawbytedev/fractus/internal/common"
	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// PutStruct writes the inline struct v at pos.
func PutStruct(view buffer.View, pos int, sd *schema.StructDef, v reflect.Value) error {
	for _, sf := range sd.Fields {
		fv := v.Field(sf.GoIndex)
		if sf.Type.Kind == schema.Struct {
			if err := PutStruct(view, pos+sf.Offset, sf.Type.Struct, fv); err != nil {
				return err
			}
			continue
		}
		if err := buffer.PutBits(view, pos+sf.Offset, sf.Type.Size, common.ScalarBits(fv)); err != nil {
			return err
		}
	}
	return nil
}

// GetStruct reads the inline struct at pos into a new value.
func GetStruct(view buffer.View, pos int, sd *schema.StructDef) (reflect.Value, error) {
	out := reflect.New(sd.GoType).Elem()
	return out, fillStruct(view, pos, sd, out)
}

func fillStruct(view buffer.View, pos int, sd *schema.StructDef, dst reflect.Value) error {
	for _, sf := range sd.Fields {
		fv := dst.Field(sf.GoIndex)
		if sf.Type.Kind == schema.Struct {
			if err := fillStruct(view, pos+sf.Offset, sf.Type.Struct, fv); err != nil {
				return err
			}
			continue
		}
		bits, err := buffer.GetBits(view, pos+sf.Offset, sf.Type.Size)
		if err != nil {
			return err
		}
		common.SetScalarBits(fv, bits)
	}
	return nil
}
