/*
Package generic provides the core computation engine shared by every calculator.

PURPOSE:
  This package contains the jurisdiction-agnostic types and algorithms used to
  turn transaction facts into an itemized monetary breakdown. The fee
  calculator (pretaxe) and the capital-gains calculator (plusvalue) both sit
  on top of the same primitives: money arithmetic, versioned rate tables,
  progressive brackets and the breakdown builder.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount in euros, kept at full precision internally
  - Rate: a fraction in [0,1] (0.19 = 19%)
  - RoundCents: the single rounding rule of the engine (cent, half away from zero)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for every amount
  2. Rounding happens once, when a LineItem is emitted
  3. Determinism: same facts + same rate snapshot = same result, byte for byte
  4. Auditability: every result carries the rate-table versions it consulted

USAGE:
  price := generic.NewMoney(300000)
  vat := generic.MustParseDecimal("0.20")
  amount := generic.RoundCents(price.Mul(vat))

SEE ALSO:
  - bracket.go: RateTable and the bracket evaluator
  - registry.go: Versioned rate-table snapshots
  - breakdown.go: LineItem, CalculationResult and the builder
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Euro amounts at full precision
// =============================================================================

// Money is an amount in euros. Intermediate values are never rounded.
type Money = decimal.Decimal

// Rate is a fraction: 0.0945 means 9.45%.
type Rate = decimal.Decimal

// CentPlaces is the number of decimal places of the currency minor unit.
const CentPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// NewMoney returns a whole-euro amount.
func NewMoney(euros int64) Money { return decimal.NewFromInt(euros) }

// NewMoneyFromCents builds an amount from an integer number of cents.
func NewMoneyFromCents(cents int64) Money { return decimal.New(cents, -CentPlaces) }

// MustParseDecimal parses s or panics. Use for literals only.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ParseMoney parses a decimal string such as "300000" or "1234.56".
func ParseMoney(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// RoundCents rounds to the cent using round-half-away-from-zero.
// decimal.Round implements exactly that rule (2.345 -> 2.35, -2.345 -> -2.35).
func RoundCents(m Money) Money { return m.Round(CentPlaces) }

// Percent converts a fraction to a percentage for display (0.19 -> 19).
func Percent(r Rate) decimal.Decimal { return r.Mul(hundred) }

// FromPercent converts a percentage to a fraction (19 -> 0.19).
func FromPercent(p decimal.Decimal) Rate { return p.Div(hundred) }

// Clamp01 bounds a fraction to [0,1].
func Clamp01(r Rate) Rate {
	if r.IsNegative() {
		return decimal.Zero
	}
	if r.GreaterThan(one) {
		return one
	}
	return r
}

// NonNegative floors an amount at zero.
func NonNegative(m Money) Money {
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}

// MinMoney returns the smaller of a and b.
func MinMoney(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxMoney returns the larger of a and b.
func MaxMoney(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// RatePtr is a convenience for optional rates on line items.
func RatePtr(r Rate) *Rate { return &r }
