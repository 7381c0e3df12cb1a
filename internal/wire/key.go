package wire

import (
	"bytes"
	"cmp"
	"math"

	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// Key is the key of one table: Bits for scalar keys, Str for string keys.
type Key struct {
	Bits uint64
	Str  []byte
}

// ReadKey reads the key field f of the table at tablePos. Absent scalar
// keys read as the field default, absent string keys as empty.
func ReadKey(v buffer.View, tablePos int, f *schema.Field) (Key, error) {
	loc, err := FieldLocation(v, tablePos, f.Index)
	if err != nil {
		return Key{}, err
	}
	if f.Type.Kind == schema.String {
		if loc == 0 {
			return Key{}, nil
		}
		pos, err := Deref(v, loc)
		if err != nil {
			return Key{}, err
		}
		s, err := StringBytes(v, pos)
		return Key{Str: s}, err
	}
	if loc == 0 {
		return Key{Bits: f.Default}, nil
	}
	bits, err := buffer.GetBits(v, loc, f.Type.Size)
	return Key{Bits: bits}, err
}

// CompareKeys orders two keys of kind k.
func CompareKeys(k schema.Kind, a, b Key) int {
	switch k {
	case schema.String:
		return bytes.Compare(a.Str, b.Str)
	case schema.Float32:
		return cmp.Compare(math.Float32frombits(uint32(a.Bits)), math.Float32frombits(uint32(b.Bits)))
	case schema.Float64:
		return cmp.Compare(math.Float64frombits(a.Bits), math.Float64frombits(b.Bits))
	case schema.Int8:
		return cmp.Compare(signExtend(a.Bits, 1), signExtend(b.Bits, 1))
	case schema.Int16:
		return cmp.Compare(signExtend(a.Bits, 2), signExtend(b.Bits, 2))
	case schema.Int32:
		return cmp.Compare(signExtend(a.Bits, 4), signExtend(b.Bits, 4))
	case schema.Int64:
		return cmp.Compare(int64(a.Bits), int64(b.Bits))
	}
	return cmp.Compare(a.Bits, b.Bits)
}

func signExtend(bits uint64, size int) int64 {
	shift := uint(64 - 8*size)
	return int64(bits<<shift) >> shift
}
