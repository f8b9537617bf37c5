package ebon

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const timestampLayout = "02.01.2006 15:04:05"

// Item is one purchased product together with its continuation data.
// At most one of the quantity fields (PricePerItem) and the weight fields
// (Weight, PricePerKg) is populated.
type Item struct {
	Name         string
	Value        decimal.Decimal
	Quantity     int
	PricePerItem decimal.NullDecimal
	Weight       decimal.NullDecimal // kg
	PricePerKg   decimal.NullDecimal
	Tags         string
	Timestamp    time.Time
}

// Receipt is the reconstructed content of one eBon
type Receipt struct {
	Items     []Item
	Timestamp time.Time
	Total     decimal.Decimal
}

type config struct {
	location *time.Location
}

// Option configures parsing
type Option func(*config)

// WithLocation sets the time zone the printed wall clock time is interpreted in.
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		if loc != nil {
			c.location = loc
		}
	}
}

func newConfig(opts []Option) config {
	c := config{location: time.UTC}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type state int

const (
	stateNoOpenItem state = iota
	stateItemOpen
)

// reconstructor folds classified lines into items. It is local to a single
// Reconstruct call.
type reconstructor struct {
	state state
	open  Item
	items []Item

	date     string
	clock    string
	total    decimal.Decimal
	hasTotal bool
}

// Reconstruct consumes classified lines in printed order and returns the items,
// the shared timestamp and the declared total. It does not check the total;
// see Validate.
func Reconstruct(lines []Line, opts ...Option) (*Receipt, error) {
	cfg := newConfig(opts)
	r := &reconstructor{state: stateNoOpenItem}
	for i, line := range lines {
		if err := r.step(line); err != nil {
			return nil, &LineError{Err: err, Line: i + 1, Text: line.Text}
		}
	}
	return r.finish(cfg.location)
}

func (r *reconstructor) step(l Line) error {
	if l.Err != nil {
		return l.Err
	}

	switch l.Kind {
	case KindProduct:
		r.closeItem()
		r.open = Item{Name: l.Name, Value: l.Value, Quantity: 1}
		r.state = stateItemOpen

	case KindWeightScale, KindWeightManual, KindQuantity:
		if r.state != stateItemOpen {
			return ErrDanglingContinuation
		}
		return r.attach(l)

	case KindDateTime:
		r.date, r.clock = l.Date, l.Time

	case KindDate:
		r.date = l.Date

	case KindTime:
		r.clock = l.Time

	case KindTotal:
		if r.hasTotal {
			return ErrDuplicateTotal
		}
		r.total, r.hasTotal = l.Value, true
	}
	return nil
}

func (r *reconstructor) attach(l Line) error {
	switch l.Kind {
	case KindQuantity:
		if r.open.Weight.Valid {
			return ErrConflictingContinuation
		}
		r.open.Quantity = l.Quantity
		r.open.PricePerItem = decimal.NewNullDecimal(l.PricePerItem)
	case KindWeightScale:
		if r.open.PricePerItem.Valid {
			return ErrConflictingContinuation
		}
		r.open.Weight = decimal.NewNullDecimal(l.Weight)
		r.open.PricePerKg = decimal.NewNullDecimal(l.PricePerKg)
	case KindWeightManual:
		if r.open.PricePerItem.Valid {
			return ErrConflictingContinuation
		}
		r.open.Weight = decimal.NewNullDecimal(l.Weight)
	}
	return nil
}

func (r *reconstructor) closeItem() {
	if r.state == stateItemOpen {
		r.items = append(r.items, r.open)
		r.open = Item{}
		r.state = stateNoOpenItem
	}
}

func (r *reconstructor) finish(loc *time.Location) (*Receipt, error) {
	r.closeItem()

	var missing []string
	if r.date == "" {
		missing = append(missing, "date")
	}
	if r.clock == "" {
		missing = append(missing, "time")
	}
	if !r.hasTotal {
		missing = append(missing, "total")
	}
	if len(r.items) == 0 {
		missing = append(missing, "items")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %v", ErrIncompleteReceipt, missing)
	}

	ts, err := time.ParseInLocation(timestampLayout, r.date+" "+r.clock, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp %q: %v", ErrIncompleteReceipt, r.date+" "+r.clock, err)
	}

	for i := range r.items {
		r.items[i].Timestamp = ts
	}

	return &Receipt{
		Items:     r.items,
		Timestamp: ts,
		Total:     r.total,
	}, nil
}
