package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidAmount    = errors.New("invalid monetary amount")
)

// exponents maps currency codes to the number of minor-unit digits.
// Currencies not listed here use the default of 2.
var exponents = map[string]int32{
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
}

// Exponent returns the number of minor-unit digits for a currency code.
func Exponent(currency string) int32 {
	if exp, ok := exponents[currency]; ok {
		return exp
	}
	return 2
}

// Money is an exact monetary amount stored as integer minor units
// (e.g. cents) with an associated currency code. All engine arithmetic
// happens on Money; float64 never enters the calculation path.
type Money struct {
	units    int64
	currency string
}

// New creates a Money from integer minor units.
func New(units int64, currency string) Money {
	return Money{units: units, currency: currency}
}

// FromDecimal converts a decimal amount (major units, e.g. "12.34") into
// Money, rejecting values with more precision than the currency carries.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	exp := Exponent(currency)
	scaled := d.Shift(exp)
	if !scaled.IsInteger() {
		return Money{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), exp)
	}
	return Money{units: scaled.IntPart(), currency: currency}, nil
}

// FromString parses a decimal string into Money.
func FromString(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d, currency)
}

// Units returns the amount in integer minor units.
func (m Money) Units() int64 { return m.units }

// Currency returns the ISO currency code.
func (m Money) Currency() string { return m.currency }

// Decimal returns the amount in major units as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.units, -Exponent(m.currency))
}

// String formats the amount as a plain decimal, e.g. "12.34".
func (m Money) String() string {
	return m.Decimal().StringFixed(Exponent(m.currency))
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.units == 0 }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.units < 0 }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.units > 0 }

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money { return Money{units: -m.units, currency: m.currency} }

// Abs returns the magnitude of the amount.
func (m Money) Abs() Money {
	if m.units < 0 {
		return m.Neg()
	}
	return m
}

// Cmp compares two amounts: -1 if m < other, 0 if equal, 1 if m > other.
func (m Money) Cmp(other Money) int {
	switch {
	case m.units < other.units:
		return -1
	case m.units > other.units:
		return 1
	default:
		return 0
	}
}

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{units: m.units + other.units, currency: m.currency}, nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{units: m.units - other.units, currency: m.currency}, nil
}

// Min returns the smaller of m and other, assuming matching currencies.
func (m Money) Min(other Money) Money {
	if other.units < m.units {
		return other
	}
	return m
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// SplitEqual divides the amount into n shares that sum exactly to the
// total. When the total is not evenly divisible, the remainder is handed
// out one minor unit at a time to the first shares in order, so every
// share is floor(total/n) or floor(total/n)+1.
func (m Money) SplitEqual(n int) ([]Money, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: cannot split across %d shares", ErrInvalidAmount, n)
	}
	base := m.units / int64(n)
	remainder := m.units % int64(n)
	shares := make([]Money, n)
	for i := range shares {
		units := base
		if int64(i) < remainder {
			units++
		}
		shares[i] = Money{units: units, currency: m.currency}
	}
	return shares, nil
}

// Allocate splits the amount by the given percentage weights (summing to
// 100). Each share is floored to minor units and the remainder is handed
// out one unit at a time to the first shares in order, so the shares sum
// exactly to the total.
func (m Money) Allocate(percentages []decimal.Decimal) ([]Money, error) {
	if len(percentages) == 0 {
		return nil, fmt.Errorf("%w: no allocation weights", ErrInvalidAmount)
	}
	total := decimal.NewFromInt(m.units)
	hundred := decimal.NewFromInt(100)

	shares := make([]Money, len(percentages))
	var distributed int64
	for i, pct := range percentages {
		units := total.Mul(pct).Div(hundred).Floor().IntPart()
		shares[i] = Money{units: units, currency: m.currency}
		distributed += units
	}
	// Correct the rounding drift one minor unit at a time: top up the
	// first shares when flooring undershot, trim the last shares in the
	// rare case the weights overshoot within tolerance.
	remainder := m.units - distributed
	for i := 0; remainder > 0 && i < len(shares); i++ {
		shares[i].units++
		remainder--
	}
	for i := len(shares) - 1; remainder < 0 && i >= 0; i-- {
		shares[i].units--
		remainder++
	}
	if remainder != 0 {
		return nil, fmt.Errorf("%w: allocation does not cover total", ErrInvalidAmount)
	}
	return shares, nil
}

// MarshalJSON emits the amount as an exact decimal string, never a
// binary float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}
