package ebon

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedNumber is returned when a numeric token is not of the form -?\d+,\d+
	ErrMalformedNumber = errors.New("malformed number")

	// ErrDanglingContinuation is returned when a weight or quantity line appears with no item open
	ErrDanglingContinuation = errors.New("continuation line without an open item")

	// ErrConflictingContinuation is returned when an item receives both quantity and weight data
	ErrConflictingContinuation = errors.New("item has both quantity and weight continuation")

	// ErrDuplicateTotal is returned when a receipt declares more than one grand total
	ErrDuplicateTotal = errors.New("duplicate total line")

	// ErrIncompleteReceipt is returned when date, time, total or items are missing
	ErrIncompleteReceipt = errors.New("incomplete receipt")

	// ErrTotalMismatch is returned when the item values do not add up to the declared total
	ErrTotalMismatch = errors.New("total mismatch")

	// ErrUnsupportedDocument is returned when no line of the text could be recognized
	ErrUnsupportedDocument = errors.New("unsupported document")
)

// LineError ties a structural failure to the line that caused it
type LineError struct {
	Err  error
	Line int // 1-based
	Text string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// TotalMismatchError carries both sides of a failed consistency check
type TotalMismatchError struct {
	Expected decimal.Decimal // declared on the receipt
	Actual   decimal.Decimal // sum of the item values
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("%v: expected %s, got %s", ErrTotalMismatch, e.Expected.String(), e.Actual.String())
}

func (e *TotalMismatchError) Is(target error) bool {
	return target == ErrTotalMismatch
}

// Code returns a stable machine-readable name for a parse failure, or "" if err
// is not one of the parser's errors.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMalformedNumber):
		return "malformed_number"
	case errors.Is(err, ErrDanglingContinuation):
		return "dangling_continuation"
	case errors.Is(err, ErrConflictingContinuation):
		return "conflicting_continuation"
	case errors.Is(err, ErrDuplicateTotal):
		return "duplicate_total"
	case errors.Is(err, ErrIncompleteReceipt):
		return "incomplete_receipt"
	case errors.Is(err, ErrTotalMismatch):
		return "total_mismatch"
	case errors.Is(err, ErrUnsupportedDocument):
		return "unsupported_document"
	default:
		return ""
	}
}
