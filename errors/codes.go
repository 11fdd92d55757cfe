package errors

// ErrorCode represents a unique identifier for error types.
// Codes are organized by pipeline stage:
//   - E1xxx: Lifting errors
//   - E2xxx: Lowering errors
//   - E3xxx: Verification errors
type ErrorCode string

const (
	// Lifting errors (E1xxx)
	E1001 ErrorCode = "E1001" // Duplicate capture
	E1002 ErrorCode = "E1002" // Capture shadows a lambda parameter
	E1003 ErrorCode = "E1003" // Unresolved free variable
	E1004 ErrorCode = "E1004" // Lifted function name collision
	E1005 ErrorCode = "E1005" // Captured reference
	E1006 ErrorCode = "E1006" // Assignment to a captured variable

	// Lowering errors (E2xxx)
	E2001 ErrorCode = "E2001" // Unsupported expression
	E2002 ErrorCode = "E2002" // Undefined local
	E2003 ErrorCode = "E2003" // Undefined function
	E2004 ErrorCode = "E2004" // Undefined struct
	E2005 ErrorCode = "E2005" // Undefined field
	E2006 ErrorCode = "E2006" // Arity mismatch
	E2007 ErrorCode = "E2007" // Reference expected
	E2008 ErrorCode = "E2008" // Closure expected
	E2009 ErrorCode = "E2009" // Too many locals

	// Verification errors (E3xxx)
	E3001 ErrorCode = "E3001" // Type mismatch
	E3002 ErrorCode = "E3002" // Stack imbalance
	E3003 ErrorCode = "E3003" // Use after move
	E3004 ErrorCode = "E3004" // Borrow conflict
	E3005 ErrorCode = "E3005" // Escaping reference
	E3006 ErrorCode = "E3006" // Unused resource
	E3007 ErrorCode = "E3007" // Closure signature mismatch
	E3008 ErrorCode = "E3008" // Invoke signature mismatch
	E3009 ErrorCode = "E3009" // Invalid branch target
	E3010 ErrorCode = "E3010" // Unreachable code
	E3011 ErrorCode = "E3011" // Invalid index
)

// codeDescriptions maps error codes to their short descriptions.
var codeDescriptions = map[ErrorCode]string{
	E1001: "duplicate capture",
	E1002: "capture shadows a lambda parameter",
	E1003: "unresolved free variable",
	E1004: "lifted function name collision",
	E1005: "captured reference",
	E1006: "assignment to a captured variable",

	E2001: "unsupported expression",
	E2002: "undefined local",
	E2003: "undefined function",
	E2004: "undefined struct",
	E2005: "undefined field",
	E2006: "arity mismatch",
	E2007: "reference expected",
	E2008: "closure expected",
	E2009: "too many locals",

	E3001: "type mismatch",
	E3002: "stack imbalance",
	E3003: "use after move",
	E3004: "borrow conflict",
	E3005: "escaping reference",
	E3006: "unused resource",
	E3007: "closure signature mismatch",
	E3008: "invoke signature mismatch",
	E3009: "invalid branch target",
	E3010: "unreachable code",
	E3011: "invalid index",
}

// Description returns the short description for an error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// Category returns the error category based on the code prefix.
func (c ErrorCode) Category() string {
	if len(c) < 2 {
		return "unknown"
	}
	switch c[1] {
	case '1':
		return "lifting"
	case '2':
		return "lowering"
	case '3':
		return "verification"
	default:
		return "unknown"
	}
}
