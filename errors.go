package fractus

import "github.com/rawbytedev/fractus/pkg/errs"

// Errors returned by this package and the packages under pkg/. Match them
// with errors.Is.
var (
	ErrBounds               = errs.ErrBounds
	ErrCapacity             = errs.ErrCapacity
	ErrMisaligned           = errs.ErrMisaligned
	ErrNotAddressable       = errs.ErrNotAddressable
	ErrRequiredField        = errs.ErrRequiredField
	ErrWriteThroughAbsent   = errs.ErrWriteThroughAbsent
	ErrWriteThroughDisabled = errs.ErrWriteThroughDisabled
	ErrReadOnly             = errs.ErrReadOnly
	ErrDepthExceeded        = errs.ErrDepthExceeded
	ErrUseAfterRelease      = errs.ErrUseAfterRelease
	ErrDoubleRelease        = errs.ErrDoubleRelease
	ErrInvalidBuffer        = errs.ErrInvalidBuffer
	ErrUnsupported          = errs.ErrUnsupported
	ErrTypeMismatch         = errs.ErrTypeMismatch
	ErrUnknownField         = errs.ErrUnknownField
	ErrNotSorted            = errs.ErrNotSorted
)

type (
	BoundsError   = errs.BoundsError
	CapacityError = errs.CapacityError
)
