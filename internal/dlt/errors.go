package dlt

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a decode failure
type ErrorType int

const (
	// ErrTypeStructural indicates a slice shorter than a field demands, or a
	// length field contradicting the bytes it describes
	ErrTypeStructural ErrorType = iota
	// ErrTypeIncomplete is a structural error that more stream data can cure:
	// the buffer ends before the frame it announces
	ErrTypeIncomplete
	// ErrTypeUnsupported indicates a recognised but unimplemented encoding
	// (128-bit floats, 8-bit floats, exotic array element kinds)
	ErrTypeUnsupported
	// ErrTypeUnknownType indicates TypeInfo flags that map to no known kind
	ErrTypeUnknownType
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeStructural:
		return "Structural Error"
	case ErrTypeIncomplete:
		return "Incomplete Frame"
	case ErrTypeUnsupported:
		return "Unsupported Encoding"
	case ErrTypeUnknownType:
		return "Unknown Type"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// NoOffset marks a DecodeError that has not been placed in a stream yet.
const NoOffset int64 = -1

// DecodeError represents a failure to decode part of a DLT frame
type DecodeError struct {
	Type      ErrorType // Category of error
	Message   string    // Human-readable error message
	Offset    int64     // Stream offset of the frame start (NoOffset if unknown)
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether more stream data may cure the error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Offset != NoOffset {
		msg = fmt.Sprintf("%s at stream offset %d", msg, e.Offset)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (caused by: %v)", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// WithOffset returns a copy of the error placed at the given stream offset.
func (e *DecodeError) WithOffset(offset int64) *DecodeError {
	c := *e
	c.Offset = offset
	return &c
}

// NewStructuralError creates a non-retryable structural error
func NewStructuralError(format string, args ...any) *DecodeError {
	return &DecodeError{
		Type:    ErrTypeStructural,
		Message: fmt.Sprintf(format, args...),
		Offset:  NoOffset,
	}
}

// NewIncompleteError creates a retryable structural error
func NewIncompleteError(format string, args ...any) *DecodeError {
	return &DecodeError{
		Type:      ErrTypeIncomplete,
		Message:   fmt.Sprintf(format, args...),
		Offset:    NoOffset,
		Retryable: true,
	}
}

// NewUnsupportedError creates an unsupported-encoding error
func NewUnsupportedError(format string, args ...any) *DecodeError {
	return &DecodeError{
		Type:    ErrTypeUnsupported,
		Message: fmt.Sprintf(format, args...),
		Offset:  NoOffset,
	}
}

// NewUnknownTypeError creates an unknown-type error for a raw TypeInfo field
func NewUnknownTypeError(raw uint32) *DecodeError {
	return &DecodeError{
		Type:    ErrTypeUnknownType,
		Message: fmt.Sprintf("type info 0x%08x carries no known type flag", raw),
		Offset:  NoOffset,
	}
}

// AsDecodeError extracts a *DecodeError from an error chain
func AsDecodeError(err error) (*DecodeError, bool) {
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr, true
	}
	return nil, false
}

// IsStructuralError checks if an error is structural (incomplete frames included)
func IsStructuralError(err error) bool {
	if decErr, ok := AsDecodeError(err); ok {
		return decErr.Type == ErrTypeStructural || decErr.Type == ErrTypeIncomplete
	}
	return false
}

// IsIncomplete checks if an error only means that more data is needed
func IsIncomplete(err error) bool {
	if decErr, ok := AsDecodeError(err); ok {
		return decErr.Type == ErrTypeIncomplete
	}
	return false
}

// IsUnsupportedEncoding checks if an error is an unsupported-encoding error
func IsUnsupportedEncoding(err error) bool {
	if decErr, ok := AsDecodeError(err); ok {
		return decErr.Type == ErrTypeUnsupported
	}
	return false
}

// IsUnknownType checks if an error is an unknown-type error
func IsUnknownType(err error) bool {
	if decErr, ok := AsDecodeError(err); ok {
		return decErr.Type == ErrTypeUnknownType
	}
	return false
}

// IsRetryable checks if an error may succeed once more data arrives
func IsRetryable(err error) bool {
	if decErr, ok := AsDecodeError(err); ok {
		return decErr.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// annotate prefixes the message of a DecodeError with context while keeping
// its type, so callers can still classify it. Other errors are wrapped.
func annotate(err error, format string, args ...any) error {
	prefix := fmt.Sprintf(format, args...)
	if decErr, ok := AsDecodeError(err); ok {
		c := *decErr
		c.Message = prefix + ": " + decErr.Message
		return &c
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
