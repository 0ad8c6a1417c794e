/*
bracket.go - Rate tables and the progressive-bracket evaluator

PURPOSE:
  A RateTable is one fiscal concept (emolument tiers, a department's duty
  rate, an abatement schedule) in force during one validity interval.
  Apply is the marginal-rate primitive every calculator delegates to.

TABLE KINDS:
  brackets: progressive schedule, evaluated with Apply
  flat:     a single rate (income-tax rate, VAT on emoluments)
  rates:    keyed rates (department code -> duty rate)
  amounts:  keyed fixed amounts (property category -> disbursement)

MARGINAL SEMANTICS:
  Each slice of the amount is taxed at its own bracket's rate only:

    brackets [0, 6500)@3.945%, [6500, 17000)@1.627%, ...
    Apply(300000) = 6500*0.03945 + 10500*0.01627 + 43000*0.01085 + 237000*0.00814

  Abatement schedules reuse the same arithmetic with years as the amount:
  [5, 21)@6% applied to 15 years held gives 10*0.06 = 60%.

SEE ALSO:
  - registry.go: Versioned storage of tables
  - factory/tables.go: JSON/YAML documents -> RateTable
*/
package generic

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE TABLE
// =============================================================================

// TableKind selects how a table is read.
type TableKind string

const (
	KindBrackets TableKind = "brackets"
	KindFlat     TableKind = "flat"
	KindRates    TableKind = "rates"
	KindAmounts  TableKind = "amounts"
)

// Bracket is the marginal segment [Lower, Upper). A nil Upper is unbounded.
type Bracket struct {
	Lower decimal.Decimal
	Upper *decimal.Decimal
	Rate  Rate
}

// Unbounded reports whether this is the open-ended top bracket.
func (b Bracket) Unbounded() bool { return b.Upper == nil }

// RateTable is one version of a named fiscal concept.
type RateTable struct {
	Name     string
	Version  string
	Kind     TableKind
	Validity Validity

	// Basis is the legal reference printed on line items (e.g. "CGI art. 150 VC").
	Basis       string
	Description string

	// KindBrackets
	Brackets   []Bracket
	FlatAddend Money

	// KindFlat
	Rate Rate

	// KindRates / KindAmounts
	Entries map[string]decimal.Decimal

	// Threshold is a table-specific limit: full-exemption years for an
	// abatement schedule, the trigger amount for a surtax, a minimum amount
	// for a flat contribution. Nil when the concept has none.
	Threshold *decimal.Decimal
}

// Ref identifies the exact table version consulted by a calculation.
func (t RateTable) Ref() TableRef {
	return TableRef{Name: t.Name, Version: t.Version, EffectiveFrom: t.Validity.From}
}

// Lookup returns the keyed entry for KindRates and KindAmounts tables.
func (t RateTable) Lookup(key string) (decimal.Decimal, bool) {
	v, ok := t.Entries[key]
	return v, ok
}

// Keys returns the entry keys in sorted order.
func (t RateTable) Keys() []string {
	keys := make([]string, 0, len(t.Entries))
	for k := range t.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so callers never share mutable state with the registry.
func (t RateTable) Clone() RateTable {
	c := t
	if t.Brackets != nil {
		c.Brackets = make([]Bracket, len(t.Brackets))
		for i, b := range t.Brackets {
			c.Brackets[i] = b
			if b.Upper != nil {
				u := *b.Upper
				c.Brackets[i].Upper = &u
			}
		}
	}
	if t.Entries != nil {
		c.Entries = make(map[string]decimal.Decimal, len(t.Entries))
		for k, v := range t.Entries {
			c.Entries[k] = v
		}
	}
	if t.Threshold != nil {
		th := *t.Threshold
		c.Threshold = &th
	}
	return c
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateTable checks the structural invariants of a table. All problems
// are collected into a single ConfigError.
func ValidateTable(t RateTable) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if t.Name == "" {
		add("name is required")
	}
	if t.Version == "" {
		add("version is required")
	}
	if t.Validity.From.IsZero() {
		add("effective_from is required")
	}
	if !t.Validity.To.IsZero() && !t.Validity.From.Before(t.Validity.To) {
		add("effective_to %s must be after effective_from %s", t.Validity.To, t.Validity.From)
	}
	if t.Threshold != nil && t.Threshold.IsNegative() {
		add("threshold must not be negative")
	}

	switch t.Kind {
	case KindBrackets:
		problems = append(problems, bracketProblems(t.Brackets)...)
		if t.FlatAddend.IsNegative() {
			add("flat addend must not be negative")
		}
	case KindFlat:
		if !inUnitRange(t.Rate) {
			add("rate %s outside [0,1]", t.Rate)
		}
	case KindRates:
		if len(t.Entries) == 0 {
			add("rates table has no entries")
		}
		for _, k := range t.Keys() {
			if !inUnitRange(t.Entries[k]) {
				add("rate for %q is %s, outside [0,1]", k, t.Entries[k])
			}
		}
	case KindAmounts:
		if len(t.Entries) == 0 {
			add("amounts table has no entries")
		}
		for _, k := range t.Keys() {
			if t.Entries[k].IsNegative() {
				add("amount for %q is negative", k)
			}
		}
	default:
		add("unknown kind %q", t.Kind)
	}

	if len(problems) > 0 {
		return &ConfigError{Table: t.Name, Version: t.Version, Problems: problems}
	}
	return nil
}

func bracketProblems(brackets []Bracket) []string {
	var problems []string
	if len(brackets) == 0 {
		return []string{"brackets table has no brackets"}
	}
	if !brackets[0].Lower.IsZero() {
		problems = append(problems, fmt.Sprintf("first bracket starts at %s, must start at 0", brackets[0].Lower))
	}
	for i, b := range brackets {
		if !inUnitRange(b.Rate) {
			problems = append(problems, fmt.Sprintf("bracket %d rate %s outside [0,1]", i, b.Rate))
		}
		if b.Lower.IsNegative() {
			problems = append(problems, fmt.Sprintf("bracket %d lower bound is negative", i))
		}
		last := i == len(brackets)-1
		if b.Upper == nil {
			if !last {
				problems = append(problems, fmt.Sprintf("bracket %d is unbounded but not last", i))
			}
			continue
		}
		if last {
			problems = append(problems, "last bracket must be unbounded")
		}
		if !b.Lower.LessThan(*b.Upper) {
			problems = append(problems, fmt.Sprintf("bracket %d lower %s not below upper %s", i, b.Lower, *b.Upper))
		}
		if !last && !brackets[i+1].Lower.Equal(*b.Upper) {
			problems = append(problems, fmt.Sprintf("gap or overlap between bracket %d (upper %s) and %d (lower %s)",
				i, *b.Upper, i+1, brackets[i+1].Lower))
		}
	}
	return problems
}

func inUnitRange(r Rate) bool {
	return !r.IsNegative() && r.LessThanOrEqual(one)
}

// =============================================================================
// BRACKET EVALUATOR
// =============================================================================

// Slice is the portion of an amount that fell in one bracket.
type Slice struct {
	Bracket Bracket
	Base    decimal.Decimal
	Amount  decimal.Decimal
}

// BracketResult is the full-precision outcome of Apply.
type BracketResult struct {
	Total  decimal.Decimal
	Slices []Slice
}

// Apply evaluates a progressive schedule on amount with marginal semantics.
// Amounts <= 0 yield a zero total and no slices. The table's flat addend is
// added once. Nothing is rounded.
func Apply(table RateTable, amount decimal.Decimal) BracketResult {
	result := BracketResult{Total: decimal.Zero}
	if !amount.IsPositive() {
		return result
	}

	for _, b := range table.Brackets {
		if !amount.GreaterThan(b.Lower) {
			break
		}
		top := amount
		if b.Upper != nil {
			top = MinMoney(amount, *b.Upper)
		}
		base := top.Sub(b.Lower)
		if !base.IsPositive() {
			continue
		}
		slice := Slice{Bracket: b, Base: base, Amount: base.Mul(b.Rate)}
		result.Slices = append(result.Slices, slice)
		result.Total = result.Total.Add(slice.Amount)
	}

	result.Total = result.Total.Add(table.FlatAddend)
	return result
}
