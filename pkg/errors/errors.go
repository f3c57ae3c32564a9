// Package errors provides structured error handling for tuckview.
// Every failure that crosses a package boundary is typed with an
// ErrorType so callers can branch on the category without string
// matching, and so the serving layer can map failures to status codes.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeUnsupportedFormat indicates a file extension or content
	// that no registered format adapter recognizes.
	ErrorTypeUnsupportedFormat ErrorType = "unsupported_format"
	// ErrorTypeHandleNotFound indicates a stale or unknown file handle.
	ErrorTypeHandleNotFound ErrorType = "handle_not_found"
	// ErrorTypeTableNotFound indicates a table name absent from the file.
	ErrorTypeTableNotFound ErrorType = "table_not_found"
	// ErrorTypeRowNotFound indicates a primary key that matched no row.
	ErrorTypeRowNotFound ErrorType = "row_not_found"
	// ErrorTypeValidation indicates a patch that failed schema or type checks.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConflict indicates a signature mismatch at write time:
	// the file changed between the caller's read and its write.
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeCorruptFile indicates a structural parse failure.
	ErrorTypeCorruptFile ErrorType = "corrupt_file"
	// ErrorTypeIO wraps underlying read/write errors (permissions, disk full).
	ErrorTypeIO ErrorType = "io_failure"
	// ErrorTypeConfig represents configuration errors.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents internal system errors.
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. It can be chained.
//
//	return errors.New(errors.ErrorTypeValidation, "unknown column").
//	    WithDetail("table", table).
//	    WithDetail("column", name)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing
// the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured
// Error, its stack trace is preserved. Returns nil if err is nil.
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

// IsType checks if the error is of the given type anywhere in its chain.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal when err
// carries no structured type. Raw platform errors never leak past the
// core boundary untyped.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the given number of frames from the top.
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
