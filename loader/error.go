package loader

import "github.com/pkg/errors"

// Kind classifies a loader error. Every kind except NotFound (when raised by
// the ACPI lookup) is fatal to the boot process.
type Kind uint8

const (
	// KindUnknown is reported for errors that do not originate from an Error.
	KindUnknown Kind = iota

	// NotFound indicates a missing file, protocol or configuration table.
	NotFound

	// FormatInvalid indicates a bad magic, signature or header field.
	FormatInvalid

	// AllocationFailure indicates that a pool or fixed-address page
	// allocation was denied by the firmware.
	AllocationFailure

	// FirmwareCallFailure indicates a non-success status from a firmware
	// service.
	FirmwareCallFailure
)

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "resource not found"
	case FormatInvalid:
		return "invalid format"
	case AllocationFailure:
		return "allocation failure"
	case FirmwareCallFailure:
		return "firmware call failure"
	default:
		return "unknown"
	}
}

// Error describes a loader error. All loader errors are defined as global
// variables that are pointers to the Error structure; callers attach context
// with errors.Wrap and compare the cause against the sentinel.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// The error class.
	Kind Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// KindOf unwraps err and returns the Kind of the underlying Error. If err was
// not caused by an Error, KindOf returns KindUnknown.
func KindOf(err error) Kind {
	if le, ok := errors.Cause(err).(*Error); ok {
		return le.Kind
	}

	return KindUnknown
}

// ModuleOf unwraps err and returns the module of the underlying Error or
// "loader" if err was not caused by an Error.
func ModuleOf(err error) string {
	if le, ok := errors.Cause(err).(*Error); ok {
		return le.Module
	}

	return "loader"
}
