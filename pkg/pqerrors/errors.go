// Package pqerrors provides structured error handling for parquetry with rich
// context, stack traces, and error categorization. Every failure surfaced by
// the writer pipeline is a *Error whose Type tells the caller which part of
// the contract was broken.
//
// # Error Types
//
// The writer distinguishes four families of failures:
//   - Configuration errors (ErrorTypeConfig, ErrorTypeInvalidDecimal) are
//     detected eagerly, before any accelerator work is issued
//   - Consistency errors (ErrorTypeSchemaMismatch, ErrorTypeNullability)
//     abort the current write call; earlier row groups stay valid
//   - Usage errors (ErrorTypeUsage, ErrorTypeWriterClosed) signal misuse
//   - Resource errors (ErrorTypeResource, ErrorTypeIO) propagate the
//     underlying cause uninterpreted
//
// # Basic Usage
//
//	err := pqerrors.New(pqerrors.ErrorTypeInvalidDecimal, "precision smaller than scale").
//	    WithDetail("column", "price").
//	    WithDetail("precision", 2).
//	    WithDetail("scale", 3)
//
//	if errors.Is(err, pqerrors.ErrInvalidDecimalSpec) {
//	    // reject the table
//	}
package pqerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used for handling strategies
// and for matching against the sentinel errors of this package.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors (unsupported codec, bad ceilings)
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInvalidDecimal represents a malformed decimal precision list
	ErrorTypeInvalidDecimal ErrorType = "invalid_decimal_spec"
	// ErrorTypeSchemaMismatch represents a chunked write whose schema differs from the first
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
	// ErrorTypeNullability represents nullability metadata that does not match the nesting depth
	ErrorTypeNullability ErrorType = "nullability_mismatch"
	// ErrorTypeUsage represents API misuse (second write in single-write mode, bad table)
	ErrorTypeUsage ErrorType = "usage"
	// ErrorTypeWriterClosed represents a write issued after close
	ErrorTypeWriterClosed ErrorType = "writer_closed"
	// ErrorTypeResource represents accelerator memory or transfer failures
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeInvalidFooter represents a footer buffer that cannot be parsed
	ErrorTypeInvalidFooter ErrorType = "invalid_footer"
	// ErrorTypeIO represents sink write and flush failures
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeUnsupported represents column types the writer cannot map
	ErrorTypeUnsupported ErrorType = "unsupported"
)

// Sentinel errors for use with errors.Is. Matching is by ErrorType, so any
// *Error of the same type satisfies errors.Is against its sentinel.
var (
	ErrInvalidDecimalSpec  = &Error{Type: ErrorTypeInvalidDecimal, Message: "invalid decimal precision specification"}
	ErrSchemaMismatch      = &Error{Type: ErrorTypeSchemaMismatch, Message: "schema does not match previously written schema"}
	ErrNullabilityMismatch = &Error{Type: ErrorTypeNullability, Message: "nullability metadata does not match column nesting"}
	ErrWriterClosed        = &Error{Type: ErrorTypeWriterClosed, Message: "writer is closed"}
	ErrUnsupportedCodec    = &Error{Type: ErrorTypeConfig, Message: "unsupported compression codec"}
	ErrInvalidFooter       = &Error{Type: ErrorTypeInvalidFooter, Message: "invalid footer"}
	ErrOutOfDeviceMemory   = &Error{Type: ErrorTypeResource, Message: "accelerator memory exhausted"}
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error of the same type. This is what makes
// errors.Is(err, ErrSchemaMismatch) work for errors built with New or Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if any error in the chain is a *Error of the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsFatalToCall reports whether the error aborts the write call but leaves the
// output usable for subsequent calls (configuration and consistency errors).
func IsFatalToCall(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeConfig, ErrorTypeInvalidDecimal, ErrorTypeSchemaMismatch,
		ErrorTypeNullability, ErrorTypeUsage, ErrorTypeUnsupported:
		return true
	case ErrorTypeInternal, ErrorTypeWriterClosed, ErrorTypeResource,
		ErrorTypeInvalidFooter, ErrorTypeIO:
		return false
	default:
		return false
	}
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
