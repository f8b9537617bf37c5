// Package ebon reconstructs purchased items from the text layer of a REWE eBon.
//
// The text is classified line by line, folded into items by a two-state
// machine and accepted only when the item values add up to the printed total.
// Everything in this package is a pure function of its input and is safe to
// call concurrently.
package ebon

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest accepted absolute difference between the sum of
// the item values and the declared total.
var Tolerance = decimal.New(1, -6)

// Sum adds up the item values
func Sum(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Value)
	}
	return sum
}

// Validate checks the item values against the declared total
func Validate(items []Item, total decimal.Decimal) error {
	actual := Sum(items)
	if actual.Sub(total).Abs().GreaterThanOrEqual(Tolerance) {
		return &TotalMismatchError{Expected: total, Actual: actual}
	}
	return nil
}

// SplitLines splits extracted text on line boundaries
func SplitLines(text string) []string {
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n").Replace(text)
	return strings.Split(text, "\n")
}

// ClassifyAll classifies every line of text
func ClassifyAll(text string) []Line {
	raw := SplitLines(text)
	lines := make([]Line, len(raw))
	for i, s := range raw {
		lines[i] = Classify(s)
	}
	return lines
}

// Parse turns the extracted text of an eBon into a validated Receipt
func Parse(text string, opts ...Option) (*Receipt, error) {
	lines := ClassifyAll(text)

	recognized := false
	for _, l := range lines {
		if l.Kind != KindUnrecognized {
			recognized = true
			break
		}
	}
	if !recognized {
		return nil, ErrUnsupportedDocument
	}

	receipt, err := Reconstruct(lines, opts...)
	if err != nil {
		return nil, err
	}

	if err := Validate(receipt.Items, receipt.Total); err != nil {
		return nil, err
	}
	return receipt, nil
}
