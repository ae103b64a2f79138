// Package mlirtv encodes tensor-dialect IR functions into first-order
// formulas over bit-vectors, uninterpreted floats, arrays and
// quantifiers. The encoding of a function populates a State: a register
// file binding every IR value to a symbolic value, a symbolic memory,
// and a well-definedness predicate that a refinement checker can hand
// to a solver.
package mlirtv

import (
	"fmt"

	"github.com/pkg/errors"
)

// IndexBits is the bit width shared by all index values.
const IndexBits = 32

// BlockIDBits is the bit width of memory block identifiers.
const BlockIDBits = 8

// UnsupportedError is raised when the encoder meets an operation, type
// or construct it has no encoding for. It is the only error category
// the encoder produces; everything else (shape mismatch, out-of-bounds,
// aliasing) becomes a well-definedness obligation instead.
type UnsupportedError struct {
	Op     *Operation // offending op, may be nil
	Reason string
}

func (e *UnsupportedError) Error() string {
	if e.Op != nil {
		return fmt.Sprintf("unsupported operation %q: %s", e.Op.Name, e.Reason)
	}
	return fmt.Sprintf("unsupported: %s", e.Reason)
}

// unsupported returns a new UnsupportedError for op.
func unsupported(op *Operation, reason string) error {
	return &UnsupportedError{Op: op, Reason: reason}
}

// AsUnsupported unwraps err down to an UnsupportedError, if any.
func AsUnsupported(err error) (*UnsupportedError, bool) {
	var ue *UnsupportedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
