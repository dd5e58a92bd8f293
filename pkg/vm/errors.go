package vm

import "fmt"

// Error is a raised evaluation failure. Failures are fatal to the current
// run; the interpreter performs no per-instruction recovery.
type Error struct {
	Code    int64
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("evaluation failed: %s (code %d)", e.Message, e.Code)
}

// Well-known failure codes. The fail opcode can raise arbitrary codes
// supplied by the compiled program.
const (
	CodeDivisionByZero int64 = 1
	CodeModByZero      int64 = 2
	CodeDateOverflow   int64 = 3
	CodeMultipleDates  int64 = 4
	CodeBadKeyOperand  int64 = 5
	CodeFieldPoisoned  int64 = 6
)

func newError(code int64, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	errDivisionByZero = newError(CodeDivisionByZero, "division by zero")
	errModByZero      = newError(CodeModByZero, "modulo by zero")
	errDateOverflow   = newError(CodeDateOverflow, "date overflow")
)
