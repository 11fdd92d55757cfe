// Package errors defines the compile-time error taxonomy of the pipeline.
//
// Lowering and verification failures are reported as [CompileError] values
// and collected into a single report with go-multierror, so callers see
// every problem in a module at once. Lifting failures indicate that the
// upstream model broke an invariant; they are reported as [InternalError]
// and stop compilation of the module immediately.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// CompileError represents a recoverable compilation error with enough
// context to reproduce it.
type CompileError struct {
	Code     ErrorCode
	Message  string
	Module   string
	Function string
	// Offset is the instruction index the error refers to, or -1.
	Offset int
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile error: ")
	b.WriteString(e.Message)
	if loc := location(e.Module, e.Function, e.Offset); loc != "" {
		b.WriteString("\n\nlocation: ")
		b.WriteString(loc)
	}
	return b.String()
}

// InternalError reports a violated invariant of the input model. It is
// always fatal.
type InternalError struct {
	Code     ErrorCode
	Message  string
	Module   string
	Function string
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	msg := "internal error: " + e.Message
	if loc := location(e.Module, e.Function, -1); loc != "" {
		msg += " (in " + loc + ")"
	}
	return msg
}

// IsFatal always returns true for internal errors.
func (e *InternalError) IsFatal() bool {
	return true
}

// Errorf creates a CompileError with a formatted message.
func Errorf(code ErrorCode, module, function string, format string, args ...any) *CompileError {
	return &CompileError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Module:   module,
		Function: function,
		Offset:   -1,
	}
}

// Internalf creates an InternalError with a formatted message.
func Internalf(code ErrorCode, module, function string, format string, args ...any) *InternalError {
	return &InternalError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Module:   module,
		Function: function,
	}
}

// IsFatal reports whether err, or any error it wraps, is an internal error.
func IsFatal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// Append collects errs into a single report. Nil errors are skipped and the
// result is nil when nothing was collected.
func Append(err error, errs ...error) error {
	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}
	for _, e := range errs {
		if e != nil {
			result = multierror.Append(result, e)
		}
	}
	return result.ErrorOrNil()
}

// List flattens a report produced by Append into its individual errors.
func List(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.WrappedErrors()
	}
	return []error{err}
}

// Coded is implemented by errors of other packages that map onto the
// catalogue, such as verifier rejections.
type Coded interface {
	ErrorCode() ErrorCode
}

// Codes returns the codes of every CompileError, InternalError or Coded
// error in err, in report order.
func Codes(err error) []ErrorCode {
	var codes []ErrorCode
	for _, e := range List(err) {
		var ce *CompileError
		var ie *InternalError
		var coded Coded
		switch {
		case errors.As(e, &ce):
			codes = append(codes, ce.Code)
		case errors.As(e, &ie):
			codes = append(codes, ie.Code)
		case errors.As(e, &coded):
			codes = append(codes, coded.ErrorCode())
		}
	}
	return codes
}

func location(module, function string, offset int) string {
	var loc string
	switch {
	case module != "" && function != "":
		loc = module + "::" + function
	case module != "":
		loc = module
	default:
		loc = function
	}
	if loc != "" && offset >= 0 {
		loc = fmt.Sprintf("%s at offset %d", loc, offset)
	}
	return loc
}
