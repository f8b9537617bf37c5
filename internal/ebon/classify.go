package ebon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the semantic kind of a single eBon text line
type Kind int

const (
	KindUnrecognized Kind = iota
	KindProduct
	KindWeightScale
	KindWeightManual
	KindQuantity
	KindDateTime
	KindDate
	KindTime
	KindTotal
)

var kindNames = map[Kind]string{
	KindUnrecognized: "unrecognized",
	KindProduct:      "product",
	KindWeightScale:  "weight_scale",
	KindWeightManual: "weight_manual",
	KindQuantity:     "quantity",
	KindDateTime:     "date_time",
	KindDate:         "date",
	KindTime:         "time",
	KindTotal:        "total",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsContinuation reports whether lines of this kind attach to the open item
func (k Kind) IsContinuation() bool {
	return k == KindWeightScale || k == KindWeightManual || k == KindQuantity
}

// Line is a classified eBon line. Only the fields belonging to Kind are set.
type Line struct {
	Kind Kind
	Text string

	Name  string          // product
	Value decimal.Decimal // product value, or the declared total

	Weight     decimal.Decimal // kg, weight lines
	PricePerKg decimal.Decimal // weight_scale

	Quantity     int             // quantity
	PricePerItem decimal.Decimal // quantity

	Date string // dd.mm.yyyy
	Time string // hh:mm:ss

	// Err is set when the line matched a recognizer but a captured token could
	// not be decoded. Classification itself never fails.
	Err error
}

type recognizer struct {
	name    string
	kind    Kind
	pattern *regexp.Regexp
	fill    func(m []string, l *Line) error
}

// recognizers are tried in order and the first match wins.
//
// Product lines come first: they are the only lines ending in a tax marker
// letter. date_time precedes date so a combined "dd.mm.yyyy hh:mm" line is
// never reduced to its date part.
var recognizers = []recognizer{
	{
		name:    "product",
		kind:    KindProduct,
		pattern: regexp.MustCompile(`^(.+?)\s+(-?\d+,\d+)\s+\w\s*\**\s*$`),
		fill: func(m []string, l *Line) error {
			l.Name = strings.TrimSpace(m[1])
			return decodeInto(&l.Value, m[2])
		},
	},
	{
		name:    "weight_scale",
		kind:    KindWeightScale,
		pattern: regexp.MustCompile(`(\d+,\d+) kg x\s+(\d+,\d+) EUR/kg`),
		fill: func(m []string, l *Line) error {
			if err := decodeInto(&l.Weight, m[1]); err != nil {
				return err
			}
			return decodeInto(&l.PricePerKg, m[2])
		},
	},
	{
		name:    "weight_manual",
		kind:    KindWeightManual,
		pattern: regexp.MustCompile(`Handeingabe E-Bon\s*([\d,]+) kg`),
		fill: func(m []string, l *Line) error {
			return decodeInto(&l.Weight, m[1])
		},
	},
	{
		name:    "quantity",
		kind:    KindQuantity,
		pattern: regexp.MustCompile(`(\d+) Stk x\s+(\d+,\d+)`),
		fill: func(m []string, l *Line) error {
			q, err := strconv.Atoi(m[1])
			if err != nil {
				return fmt.Errorf("%w: %q", ErrMalformedNumber, m[1])
			}
			l.Quantity = q
			return decodeInto(&l.PricePerItem, m[2])
		},
	},
	{
		name:    "date_time",
		kind:    KindDateTime,
		pattern: regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s*(\d{2}:\d{2})`),
		fill: func(m []string, l *Line) error {
			l.Date = m[1]
			l.Time = m[2] + ":00"
			return nil
		},
	},
	{
		name:    "date",
		kind:    KindDate,
		pattern: regexp.MustCompile(`Datum:\s+(\d{2}\.\d{2}\.\d{4})`),
		fill: func(m []string, l *Line) error {
			l.Date = m[1]
			return nil
		},
	},
	{
		name:    "time",
		kind:    KindTime,
		pattern: regexp.MustCompile(`Uhrzeit:\s+(\d{2}:\d{2}:\d{2}) Uhr`),
		fill: func(m []string, l *Line) error {
			l.Time = m[1]
			return nil
		},
	},
	{
		name:    "total",
		kind:    KindTotal,
		pattern: regexp.MustCompile(`SUMME\s+EUR\s+(-?\d+,\d+)`),
		fill: func(m []string, l *Line) error {
			return decodeInto(&l.Value, m[1])
		},
	},
}

func decodeInto(dst *decimal.Decimal, token string) error {
	d, err := ParseNumber(token)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Classify returns the kind of a single line together with its decoded payload.
// Lines matching no recognizer are KindUnrecognized.
func Classify(text string) Line {
	for _, r := range recognizers {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		line := Line{Kind: r.kind, Text: text}
		line.Err = r.fill(m, &line)
		return line
	}
	return Line{Kind: KindUnrecognized, Text: text}
}

// Precedence lists the recognizer names in the order they are tried
func Precedence() []string {
	names := make([]string, len(recognizers))
	for i, r := range recognizers {
		names[i] = r.name
	}
	return names
}
