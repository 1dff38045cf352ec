package xlwt

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateContinuation indicates a split plan that would emit an
	// empty continuation record or does not cover the payload exactly.
	ErrDegenerateContinuation = errors.New("degenerate continuation")
	// ErrUnresolvedLocator indicates an INDEX table requested before every
	// DBCELL locator of its sheet had a final offset.
	ErrUnresolvedLocator = errors.New("unresolved block locator")
	// ErrMissingBlockContext indicates a row, value or DBCELL record that has
	// no open block to belong to.
	ErrMissingBlockContext = errors.New("missing sheet/block context")
	// ErrAccountingMismatch indicates that the bytes emitted for a record
	// differ from the length computed in the offset pass.
	ErrAccountingMismatch = errors.New("emitted length differs from computed length")
	// ErrOffsetOverflow indicates an offset that does not fit its field.
	ErrOffsetOverflow = errors.New("offset overflow")
	// ErrBoundSheetMismatch indicates a BOUNDSHEET count that does not match
	// the number of worksheet substreams.
	ErrBoundSheetMismatch = errors.New("boundsheet/worksheet count mismatch")
	// ErrPayloadResized indicates a backpatch that would change a payload size.
	ErrPayloadResized = errors.New("backpatch changes payload size")
)

// StructuralError is a fatal assembly error. No output is produced once one
// has been returned.
type StructuralError struct {
	Op     string // assembly step: "finalize", "layout", "backpatch", "emit"
	Index  int    // position of the offending record, -1 if none
	Opcode uint16
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("xlwt: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("xlwt: %s: record %d (%s): %v", e.Op, e.Index, RecordName(e.Opcode), e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

func structural(op string, index int, opcode uint16, err error) *StructuralError {
	return &StructuralError{Op: op, Index: index, Opcode: opcode, Err: err}
}

// BIFFError represents an error met while reading a BIFF record stream.
type BIFFError struct {
	Message string
}

func (e *BIFFError) Error() string {
	return e.Message
}

// NewBIFFError creates a new BIFFError with the given message.
func NewBIFFError(format string, args ...interface{}) *BIFFError {
	return &BIFFError{Message: fmt.Sprintf(format, args...)}
}
