package ebon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numberPattern is the only numeric format printed on the eBon: decimal comma,
// no thousands separator.
var numberPattern = regexp.MustCompile(`^-?\d+,\d+$`)

// ParseNumber decodes a decimal-comma token such as "12,34" or "-0,50"
func ParseNumber(token string) (decimal.Decimal, error) {
	if !numberPattern.MatchString(token) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedNumber, token)
	}
	d, err := decimal.NewFromString(strings.Replace(token, ",", ".", 1))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrMalformedNumber, token, err)
	}
	return d, nil
}

// FormatNumber renders d with a decimal comma, keeping its scale so that
// FormatNumber(ParseNumber("0,500")) == "0,500".
func FormatNumber(d decimal.Decimal) string {
	places := -d.Exponent()
	if places < 0 {
		places = 0
	}
	return strings.Replace(d.StringFixed(places), ".", ",", 1)
}
