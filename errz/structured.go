// Package errz defines the errors raised while executing compiled modules.
//
// Compile-time problems are reported by the errors and verifier packages.
// Once the vm is running, failures are reported as [StructuredError] values
// that carry the failing instruction and the call stack leading to it.
package errz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a runtime failure.
type ErrorKind int

const (
	ErrRuntime ErrorKind = iota
	// ErrAbort is raised by the Abort instruction.
	ErrAbort
	// ErrArithmetic covers overflow, underflow and division by zero.
	ErrArithmetic
	// ErrType means a value of the wrong type reached an instruction. Only
	// unverified code can trigger it.
	ErrType
	ErrName
	// ErrLimit means the frame or operand stack limit was exceeded.
	ErrLimit
)

var kindNames = map[ErrorKind]string{
	ErrRuntime:    "runtime error",
	ErrAbort:      "abort",
	ErrArithmetic: "arithmetic error",
	ErrType:       "type error",
	ErrName:       "name error",
	ErrLimit:      "limit error",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "error"
}

// Location identifies an instruction by module, function and offset.
type Location struct {
	Module   string
	Function string
	Offset   int
}

// String renders "0x42::m::f at offset N".
func (l Location) String() string {
	name := l.Function
	if l.Module != "" {
		name = l.Module + "::" + l.Function
	}
	return fmt.Sprintf("%s at offset %d", name, l.Offset)
}

func (l Location) IsZero() bool {
	return l.Module == "" && l.Function == ""
}

// StackFrame is one active call. Offset is the call instruction for
// caller frames and the failing instruction for the innermost one.
type StackFrame struct {
	Function string
	Offset   int
}

func (f StackFrame) String() string {
	return fmt.Sprintf("at %s (offset %d)", f.Function, f.Offset)
}

// FormatStackTrace renders frames innermost first, one per line. It
// returns "" when there are none.
func FormatStackTrace(frames []StackFrame) string {
	if len(frames) == 0 {
		return ""
	}
	lines := make([]string, 0, len(frames)+1)
	lines = append(lines, "Stack trace:")
	for _, f := range frames {
		lines = append(lines, "  "+f.String())
	}
	return strings.Join(lines, "\n") + "\n"
}

// StructuredError is a runtime failure together with where it happened
// and the call stack at that point.
type StructuredError struct {
	Message string
	Kind    ErrorKind
	// Code is the abort code when Kind is ErrAbort.
	Code     uint64
	Location Location
	Stack    []StackFrame
	Cause    error
}

func (e *StructuredError) Error() string {
	if e.Location.IsZero() {
		return e.Kind.String() + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (in %s)", e.Kind, e.Message, e.Location)
}

func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the failure is the vm's rather than the
// program's. Aborts are deliberate outcomes and are not fatal.
func (e *StructuredError) IsFatal() bool {
	return e.Kind != ErrAbort
}

// FriendlyErrorMessage is Error followed by a blank line and the stack
// trace, for terminals.
func (e *StructuredError) FriendlyErrorMessage() string {
	msg := e.Error() + "\n"
	if trace := FormatStackTrace(e.Stack); trace != "" {
		msg += "\n" + trace
	}
	return msg
}

func NewStructuredError(kind ErrorKind, message string, loc Location, stack []StackFrame) *StructuredError {
	return &StructuredError{Message: message, Kind: kind, Location: loc, Stack: stack}
}

func NewStructuredErrorf(kind ErrorKind, loc Location, stack []StackFrame, format string, args ...any) *StructuredError {
	return NewStructuredError(kind, fmt.Sprintf(format, args...), loc, stack)
}

// NewAbort builds the error for an Abort instruction raising code.
func NewAbort(code uint64, loc Location, stack []StackFrame) *StructuredError {
	err := NewStructuredErrorf(ErrAbort, loc, stack, "code %d", code)
	err.Code = code
	return err
}

// WithCause sets the wrapped error and returns e.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// AbortCode returns the abort code carried by err, if err is or wraps an
// abort.
func AbortCode(err error) (uint64, bool) {
	var se *StructuredError
	if errors.As(err, &se) && se.Kind == ErrAbort {
		return se.Code, true
	}
	return 0, false
}

// KindOf returns the kind of the StructuredError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
