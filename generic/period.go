package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOLDING PERIOD - How long a property was owned
// =============================================================================

// HoldingPeriod is the time between acquisition and disposal in whole years
// and remaining months. It is computed by calendar subtraction: a property
// bought on 2010-03-15 is held 15 full years on 2025-03-15, not on the
// 5,479th day.
type HoldingPeriod struct {
	Years  int
	Months int
}

// HoldingPeriodBetween returns the calendar distance from acquired to disposed.
// Returns ErrInvalidPeriod if disposed is before acquired.
func HoldingPeriodBetween(acquired, disposed Date) (HoldingPeriod, error) {
	if disposed.Before(acquired) {
		return HoldingPeriod{}, ErrInvalidPeriod
	}

	months := (disposed.Year()-acquired.Year())*12 + int(disposed.Month()) - int(acquired.Month())
	if disposed.Day() < acquired.Day() && !isMonthEndCarry(acquired, disposed) {
		months--
	}

	return HoldingPeriod{Years: months / 12, Months: months % 12}, nil
}

// isMonthEndCarry treats the last day of a short month as a full month when
// the acquisition day does not exist in it (Jan 31 -> Feb 28 is one month).
func isMonthEndCarry(acquired, disposed Date) bool {
	return disposed.AddDays(1).Day() == 1 && acquired.Day() > disposed.Day()
}

// WholeYears returns the completed years as a decimal, the unit abatement
// schedules are expressed in.
func (hp HoldingPeriod) WholeYears() decimal.Decimal {
	return decimal.NewFromInt(int64(hp.Years))
}

// AtLeast reports whether the period covers n full years.
func (hp HoldingPeriod) AtLeast(years int) bool { return hp.Years >= years }

func (hp HoldingPeriod) String() string {
	return fmt.Sprintf("%d years %d months", hp.Years, hp.Months)
}

// =============================================================================
// VALIDITY - When a rate-table version applies
// =============================================================================

// Validity is the half-open interval [From, To) a table version is in force.
// A zero To means "until superseded".
type Validity struct {
	From Date
	To   Date
}

// Contains returns true if d falls within [From, To).
func (v Validity) Contains(d Date) bool {
	if d.Before(v.From) {
		return false
	}
	return v.To.IsZero() || d.Before(v.To)
}

func (v Validity) String() string {
	if v.To.IsZero() {
		return "[" + v.From.String() + ", ...)"
	}
	return "[" + v.From.String() + ", " + v.To.String() + ")"
}
