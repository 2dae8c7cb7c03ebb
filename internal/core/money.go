// Package core provides the ledger domain: money, dues, expenses and the
// monthly reconciliation rules built on top of them.
//
// This file contains the Money type. Amounts are held as an integer number
// of minor units (kuruş, 1/100) and only converted to decimal strings at
// parsing and formatting boundaries.
package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a signed amount in minor units.
type Money struct {
	Cents int64
}

var (
	hundred     = decimal.NewFromInt(100)
	maxMoney    = decimal.NewFromInt(1<<63 - 1)
	minMoney    = decimal.NewFromInt(-1 << 63)
	zeroDecimal = decimal.Zero
)

// NewMoney builds a Money from minor units.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// ParseMoney converts a decimal string to Money.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Values with
// more than two fractional digits are rejected rather than rounded, as are
// thousands separators and anything non-numeric.
//
// Examples:
//
//	ParseMoney("1200")    -> 120000
//	ParseMoney("12,5")    -> 1250
//	ParseMoney("-3.20")   -> -320
//	ParseMoney("1.005")   -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.Replace(s, ",", ".", 1)
	if strings.ContainsAny(s, "eE, _") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if fractionDigits(s) > 2 {
		return Money{}, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidAmount, s)
	}
	return fromDecimal(d)
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func fractionDigits(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Mul(hundred)
	if cents.GreaterThan(maxMoney) || cents.LessThan(minMoney) {
		return Money{}, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Percent returns pct percent of m, rounded half away from zero to the
// minor unit. pct may carry decimals ("12.5").
func (m Money) Percent(pct decimal.Decimal) Money {
	v := decimal.NewFromInt(m.Cents).Mul(pct).Div(hundred).Round(0)
	return Money{Cents: v.IntPart()}
}

// ShareOf reports m as a percentage of total with two decimals. A zero
// total yields zero.
func (m Money) ShareOf(total Money) decimal.Decimal {
	if total.Cents == 0 {
		return zeroDecimal
	}
	return decimal.NewFromInt(m.Cents).Mul(hundred).Div(decimal.NewFromInt(total.Cents)).Round(2)
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.Cents < o.Cents:
		return -1
	case m.Cents > o.Cents:
		return 1
	}
	return 0
}

// String formats the amount as a plain decimal, e.g. "1200.00" or "-3.05".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Display formats the amount the way Turkish locales do, e.g. "1.200,00".
func (m Money) Display() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	whole := fmt.Sprintf("%d", c/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s%s,%02d", sign, b.String(), c%100)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	return nil
}

// MarshalJSON encodes the amount as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return ErrInvalidAmount
		}
		s = n.String()
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// SumMoney adds up a list of amounts.
func SumMoney(ms ...Money) Money {
	var total Money
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}
