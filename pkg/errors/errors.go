// Package errors provides coded errors for logvar.
// Every error that crosses a package boundary carries a Code so the batch
// runner and CLI can classify failures without string matching.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeSourceNotFound Code = "E101"
	CodeSourceAccess   Code = "E102"
	CodeInvalidFormat  Code = "E103"
	CodeMissingColumn  Code = "E104"
	CodeEmptyTrace     Code = "E110"
	CodeInvalidLog     Code = "E111"

	// Processing errors (2xx)
	CodeParseFailed   Code = "E201"
	CodePairCeiling   Code = "E204"
	CodeInvalidConfig Code = "E205"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"

	// Checkpoint backend errors (5xx)
	CodeCheckpoint Code = "E501"

	CodeUnknown Code = "E999"
)

// Class groups codes into the three failure families the engine knows about.
type Class string

const (
	ClassInput     Class = "input"
	ClassResource  Class = "resource"
	ClassSystem    Class = "system"
	ClassUndefined Class = "unknown"
)

// Class returns the family a code belongs to.
func (c Code) Class() Class {
	switch c {
	case CodeSourceNotFound, CodeSourceAccess, CodeInvalidFormat, CodeMissingColumn,
		CodeEmptyTrace, CodeInvalidLog, CodeParseFailed:
		return ClassInput
	case CodePairCeiling, CodeTimeout:
		return ClassResource
	case CodeInvalidConfig, CodeWriteFailed, CodeContextCanceled, CodeCheckpoint:
		return ClassSystem
	default:
		return ClassUndefined
	}
}

// Error is the base error type for all logvar errors.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Context[k])
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code. Returns nil for a nil err.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Convenience constructors ---

// SourceNotFound creates a source not found error.
func SourceNotFound(source string) *Error {
	return New(CodeSourceNotFound, "log source not found").WithContext("source", source)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *Error {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// EmptyTrace reports a trace without events.
func EmptyTrace(index int, caseID string) *Error {
	return New(CodeEmptyTrace, "trace has no events").
		WithContext("trace", index).
		WithContext("case", caseID)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:\n", len(m.Errors))
	for i, err := range m.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
