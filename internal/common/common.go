package common

import (
	"math"
	"reflect"
)

// IsFixedKind reports whether k is a fixed-size primitive kind with a wire
// representation. Platform-sized int/uint are not.
func IsFixedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// FixedSize returns the byte width for fixed-size primitive kinds.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	default:
		return -1
	}
}

// IsSigned reports whether k is a signed integer kind.
func IsSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

// IsFloat reports whether k is a floating point kind.
func IsFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// Padding returns how many bytes must be added to off to reach a multiple
// of align. align must be a power of two.
func Padding(off, align int) int {
	if align <= 1 {
		return 0
	}
	return (align - off&(align-1)) & (align - 1)
}

// AlignUp rounds off up to a multiple of align.
func AlignUp(off, align int) int {
	return off + Padding(off, align)
}

// ScalarBits returns the wire bit pattern of the scalar held by v.
func ScalarBits(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int8:
		return uint64(uint8(v.Int()))
	case reflect.Int16:
		return uint64(uint16(v.Int()))
	case reflect.Int32:
		return uint64(uint32(v.Int()))
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return uint64(float32Bits(v))
	case reflect.Float64:
		return math.Float64bits(v.Float())
	default:
		panic("not fixed")
	}
}

// SetScalarBits decodes bits into dst according to its kind.
func SetScalarBits(dst reflect.Value, bits uint64) {
	switch dst.Kind() {
	case reflect.Bool:
		dst.SetBool(bits&0xFF != 0)
	case reflect.Int8:
		dst.SetInt(int64(int8(bits)))
	case reflect.Int16:
		dst.SetInt(int64(int16(bits)))
	case reflect.Int32:
		dst.SetInt(int64(int32(bits)))
	case reflect.Int64:
		dst.SetInt(int64(bits))
	case reflect.Uint8:
		dst.SetUint(uint64(uint8(bits)))
	case reflect.Uint16:
		dst.SetUint(uint64(uint16(bits)))
	case reflect.Uint32:
		dst.SetUint(uint64(uint32(bits)))
	case reflect.Uint64:
		dst.SetUint(bits)
	case reflect.Float32:
		setFloat32Bits(dst, uint32(bits))
	case reflect.Float64:
		dst.SetFloat(math.Float64frombits(bits))
	default:
		panic("not fixed")
	}
}

// float32Bits reads the float32 held by v through memory. Value.Float
// widens to float64, which quiets signalling NaNs.
func float32Bits(v reflect.Value) uint32 {
	if !v.CanAddr() {
		c := reflect.New(v.Type()).Elem()
		c.Set(v)
		v = c
	}
	return *(*uint32)(v.Addr().UnsafePointer())
}

// setFloat32Bits stores bits into the settable float32 dst.
func setFloat32Bits(dst reflect.Value, bits uint32) {
	if !dst.CanSet() {
		panic("reflect: float32 destination is not settable")
	}
	*(*uint32)(dst.Addr().UnsafePointer()) = bits
}

// ScalarValue builds a value of type t from bits.
func ScalarValue(t reflect.Type, bits uint64) reflect.Value {
	v := reflect.New(t).Elem()
	SetScalarBits(v, bits)
	return v
}
