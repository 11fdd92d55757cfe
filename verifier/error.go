package verifier

import (
	"fmt"

	"github.com/simon-1M/closurec/errors"
)

// Rule names the safety property a module violated.
type Rule int

const (
	TypeMismatch Rule = iota + 1
	StackBalance
	UseAfterMove
	BorrowConflict
	EscapingReference
	UnusedResource
	ClosureSignature
	InvokeSignature
	InvalidBranch
	UnreachableCode
	InvalidIndex
)

var ruleNames = map[Rule]string{
	TypeMismatch:      "TypeMismatch",
	StackBalance:      "StackBalance",
	UseAfterMove:      "UseAfterMove",
	BorrowConflict:    "BorrowConflict",
	EscapingReference: "EscapingReference",
	UnusedResource:    "UnusedResource",
	ClosureSignature:  "ClosureSignature",
	InvokeSignature:   "InvokeSignature",
	InvalidBranch:     "InvalidBranch",
	UnreachableCode:   "UnreachableCode",
	InvalidIndex:      "InvalidIndex",
}

var ruleCodes = map[Rule]errors.ErrorCode{
	TypeMismatch:      errors.E3001,
	StackBalance:      errors.E3002,
	UseAfterMove:      errors.E3003,
	BorrowConflict:    errors.E3004,
	EscapingReference: errors.E3005,
	UnusedResource:    errors.E3006,
	ClosureSignature:  errors.E3007,
	InvokeSignature:   errors.E3008,
	InvalidBranch:     errors.E3009,
	UnreachableCode:   errors.E3010,
	InvalidIndex:      errors.E3011,
}

func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Rule(%d)", int(r))
}

// Error is a rejection of one function.
type Error struct {
	Module   string
	Function string
	// Offset is the index of the offending instruction, or -1 when the
	// violation is not tied to one.
	Offset  int
	Rule    Rule
	Message string
}

func (e *Error) Error() string {
	loc := e.Module
	if e.Function != "" {
		loc += "::" + e.Function
	}
	if e.Offset >= 0 {
		loc = fmt.Sprintf("%s at offset %d", loc, e.Offset)
	}
	return fmt.Sprintf("verification failed: %s: %s (in %s)", e.Rule, e.Message, loc)
}

// ErrorCode maps the rule onto the E3xxx catalogue.
func (e *Error) ErrorCode() errors.ErrorCode {
	return ruleCodes[e.Rule]
}
