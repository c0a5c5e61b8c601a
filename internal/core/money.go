// Package core provides money parsing and handling utilities.
//
// Amounts are kept in minor units (cents) to avoid floating-point drift.
// Parsing and display go through shopspring/decimal.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// maxCents bounds every parsed amount well inside int64.
const maxCents = 1 << 62

// Money is an amount in local currency, stored as minor units.
type Money struct {
	Cents int64
}

// Pesos builds a Money from a whole-peso amount.
func Pesos(p int64) Money {
	return Money{Cents: p * 100}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

func (m Money) IsZero() bool            { return m.Cents == 0 }
func (m Money) GreaterThan(o Money) bool { return m.Cents > o.Cents }

// Decimal returns the amount as a decimal in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Signs, zero and
// malformed input return ErrInvalidAmount.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
//	ParseDecimalToCents("0")      -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return centsFromDecimal(d)
}

// ParseMoney parses a positive decimal amount.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

func centsFromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(2).Round(0)
	if !scaled.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if scaled.GreaterThan(decimal.NewFromInt(maxCents)) {
		return 0, ErrInvalidAmount
	}
	return scaled.IntPart(), nil
}

// Format renders the amount the way the app displays pesos: "$ 1.234.567",
// with a comma decimal part only when there are cents.
func (m Money) Format() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if rem := cents % 100; rem != 0 {
		fmt.Fprintf(&b, ",%02d", rem)
	}
	if neg {
		return "-$ " + b.String()
	}
	return "$ " + b.String()
}

func (m Money) String() string {
	return m.Decimal().String()
}

// MarshalJSON encodes the amount as a JSON number in currency units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or string in currency units. Zero and
// negative values are allowed here; callers validate.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	scaled := d.Shift(2).Round(0)
	if scaled.Abs().GreaterThan(decimal.NewFromInt(maxCents)) {
		return fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, s)
	}
	m.Cents = scaled.IntPart()
	return nil
}
