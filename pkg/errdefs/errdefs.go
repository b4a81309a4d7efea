// Package errdefs defines the failure classes of the detection pipeline.
//
// Every failure is one of a small set of deterministic input faults. Callers
// classify an error with errors.Is against the sentinels below; the helper
// constructors wrap the sentinel with a formatted message.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateInput marks an empty plane or a plane whose maximum is zero
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrShape marks a tile or grid whose geometry is unusable (non-square,
	// not a power of two, or not matching the model)
	ErrShape = errors.New("shape error")

	// ErrAxisAlignment marks an axis descriptor that cannot be reconciled with the image
	ErrAxisAlignment = errors.New("axis alignment error")

	// ErrModelShape marks a model whose declared input or output shape is inconsistent
	ErrModelShape = errors.New("model shape error")
)

func wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// DegenerateInputf returns an error wrapping ErrDegenerateInput
func DegenerateInputf(format string, args ...any) error {
	return wrap(ErrDegenerateInput, format, args...)
}

// Shapef returns an error wrapping ErrShape
func Shapef(format string, args ...any) error {
	return wrap(ErrShape, format, args...)
}

// AxisAlignmentf returns an error wrapping ErrAxisAlignment
func AxisAlignmentf(format string, args ...any) error {
	return wrap(ErrAxisAlignment, format, args...)
}

// ModelShapef returns an error wrapping ErrModelShape
func ModelShapef(format string, args ...any) error {
	return wrap(ErrModelShape, format, args...)
}

// IsInputFault reports whether err belongs to the pipeline's failure taxonomy
func IsInputFault(err error) bool {
	return errors.Is(err, ErrDegenerateInput) ||
		errors.Is(err, ErrShape) ||
		errors.Is(err, ErrAxisAlignment) ||
		errors.Is(err, ErrModelShape)
}
