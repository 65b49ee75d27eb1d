// Package money holds the paise amount type used everywhere inside the
// service. Amounts cross the HTTP boundary as rupee decimals with at most
// two fractional digits and are never represented as floats.
package money

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in paise (1/100 rupee).
type Amount int64

// ErrPrecision is returned when a rupee value has more than two decimals.
var ErrPrecision = errors.New("amount has more than two decimal places")

// Paise returns the raw minor-unit value.
func (a Amount) Paise() int64 { return int64(a) }

// Rupees builds an Amount from whole rupees.
func Rupees(r int64) Amount { return Amount(r * 100) }

// Parse reads a rupee decimal such as "1180", "11.8" or "-0.05".
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if hasDot && frac == "" {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > 2 {
		// trailing zeros beyond paise are harmless
		trimmed := strings.TrimRight(frac[2:], "0")
		if trimmed != "" {
			return 0, ErrPrecision
		}
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if w > (1<<63-1-f)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return Amount(v), nil
}

// String renders the amount as a rupee decimal with two places.
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON writes the amount as a JSON number in rupees.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string in rupees.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		b = []byte(s)
	}
	if bytes.ContainsAny(b, "eE") {
		return fmt.Errorf("exponent notation not allowed in amount %q", b)
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
