// Package errs holds the error taxonomy shared by every fractus package.
//
// All errors are meant to be matched with errors.Is against the sentinels
// below (or errors.As for BoundsError and CapacityError). None of them are
// transient: they describe programming mistakes or malformed data.
package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrBounds               = errors.New("fractus: access out of bounds")
	ErrCapacity             = errors.New("fractus: destination buffer too small")
	ErrMisaligned           = errors.New("fractus: misaligned scalar access")
	ErrNotAddressable       = errors.New("fractus: storage is not addressable")
	ErrRequiredField        = errors.New("fractus: required field missing")
	ErrWriteThroughAbsent   = errors.New("fractus: write-through field absent from buffer")
	ErrWriteThroughDisabled = errors.New("fractus: field is not write-through")
	ErrReadOnly             = errors.New("fractus: object is read-only")
	ErrDepthExceeded        = errors.New("fractus: maximum depth exceeded")
	ErrUseAfterRelease      = errors.New("fractus: use of released object")
	ErrDoubleRelease        = errors.New("fractus: object released twice")
	ErrInvalidBuffer        = errors.New("fractus: invalid buffer")
	ErrUnsupported          = errors.New("fractus: unsupported type")
	ErrTypeMismatch         = errors.New("fractus: type mismatch")
	ErrUnknownField         = errors.New("fractus: unknown field")
	ErrNotSorted            = errors.New("fractus: vector is not sorted by key")
)

// BoundsError reports an access whose byte range falls outside a view.
type BoundsError struct {
	Offset int
	Length int
	Size   int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("fractus: access [%d, %d+%d) out of bounds for %d bytes", e.Offset, e.Offset, e.Length, e.Size)
}

func (e *BoundsError) Is(target error) bool { return target == ErrBounds }

// Bounds builds a BoundsError.
func Bounds(off, n, size int) error {
	return &BoundsError{Offset: off, Length: n, Size: size}
}

// CapacityError is returned when a fixed destination cannot hold the
// encoded value. Required is the exact number of bytes the write needs.
type CapacityError struct {
	Required  int
	Available int
}

func (e *CapacityError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("fractus: destination buffer too small: have %d bytes, need %d", e.Available, e.Required)
	}
	return fmt.Sprintf("fractus: destination buffer too small: have %d bytes", e.Available)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }

// Invalidf wraps ErrInvalidBuffer with a formatted reason.
func Invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidBuffer, format, args...)
}
