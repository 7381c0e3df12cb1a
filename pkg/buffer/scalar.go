package buffer

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"

	"github.com/rawbytedev/fractus/pkg/errs"
)

// Integer is every fixed-width integer type. Platform-sized int and uint
// have no wire representation and are excluded.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Scalar is every type the codec can read or write.
type Scalar interface {
	Integer | constraints.Float
}

// Get reads a little-endian T at off.
func Get[T Scalar](v View, off int) (T, error) {
	var x T
	bits, err := GetBits(v, off, int(unsafe.Sizeof(x)))
	if err != nil {
		return x, err
	}
	return fromBits[T](bits), nil
}

// Put writes x little-endian at off.
func Put[T Scalar](v View, off int, x T) error {
	return PutBits(v, off, int(unsafe.Sizeof(x)), toBits(x))
}

func GetBool(v View, off int) (bool, error) {
	b, err := v.ByteAt(off)
	return b != 0, err
}

func PutBool(v View, off int, x bool) error {
	var b byte
	if x {
		b = 1
	}
	return v.SetByteAt(off, b)
}

// GetBits reads a size-byte little-endian value at off and returns its bit
// pattern. size must be 1, 2, 4 or 8.
func GetBits(v View, off, size int) (uint64, error) {
	if err := v.check(off, size); err != nil {
		return 0, err
	}
	if err := checkAlign(v, off, size); err != nil {
		return 0, err
	}
	var b []byte
	if v.addr {
		b = v.span[v.start+off : v.start+off+size]
	} else {
		var tmp [8]byte
		for i := 0; i < size; i++ {
			tmp[i] = v.s.ByteAt(v.start + off + i)
		}
		b = tmp[:size]
	}
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	}
	return 0, errors.AssertionFailedf("unsupported scalar width %d", size)
}

// PutBits writes the low size bytes of bits little-endian at off.
func PutBits(v View, off, size int, bits uint64) error {
	if err := v.check(off, size); err != nil {
		return err
	}
	if err := checkAlign(v, off, size); err != nil {
		return err
	}
	var tmp [8]byte
	b := tmp[:size]
	if v.addr {
		b = v.span[v.start+off : v.start+off+size]
	}
	switch size {
	case 1:
		b[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(b, bits)
	default:
		return errors.AssertionFailedf("unsupported scalar width %d", size)
	}
	if !v.addr {
		for i := 0; i < size; i++ {
			v.s.SetByteAt(v.start+off+i, b[i])
		}
	}
	return nil
}

func checkAlign(v View, off, size int) error {
	if !debugAlign || size == 1 {
		return nil
	}
	if abs := v.start + off; abs%size != 0 {
		return errors.Mark(errors.AssertionFailedf("scalar of %d bytes at offset %d", size, abs), errs.ErrMisaligned)
	}
	return nil
}

func fromBits[T Scalar](bits uint64) T {
	var x T
	switch unsafe.Sizeof(x) {
	case 1:
		b := uint8(bits)
		x = *(*T)(unsafe.Pointer(&b))
	case 2:
		b := uint16(bits)
		x = *(*T)(unsafe.Pointer(&b))
	case 4:
		b := uint32(bits)
		x = *(*T)(unsafe.Pointer(&b))
	case 8:
		x = *(*T)(unsafe.Pointer(&bits))
	}
	return x
}

func toBits[T Scalar](x T) uint64 {
	switch unsafe.Sizeof(x) {
	case 1:
		return uint64(*(*uint8)(unsafe.Pointer(&x)))
	case 2:
		return uint64(*(*uint16)(unsafe.Pointer(&x)))
	case 4:
		return uint64(*(*uint32)(unsafe.Pointer(&x)))
	default:
		return *(*uint64)(unsafe.Pointer(&x))
	}
}

// wordsEqual compares a and b (same length) eight bytes at a time and the
// remainder byte by byte.
func wordsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	i := 0
	for ; i+8 <= len(a); i += 8 {
		if binary.LittleEndian.Uint64(a[i:]) != binary.LittleEndian.Uint64(b[i:]) {
			return false
		}
	}
	for ; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// WordsEqual is wordsEqual for callers outside the package.
func WordsEqual(a, b []byte) bool { return wordsEqual(a, b) }
