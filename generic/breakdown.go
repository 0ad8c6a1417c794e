/*
breakdown.go - Line items, calculation results and the breakdown builder

PURPOSE:
  Calculators produce raw, full-precision line items. The Builder turns
  them into the CalculationResult handed to presentation layers:
  ordered, rounded, totalled and stamped with the rate versions consulted.
  The builder performs no tax logic.

ORDERING:
  Each result kind has a fixed section order, the conventional order of a
  notarial statement:
    pretaxe:   emoluments, duties, disbursements
    plusvalue: gain, exemption, abatement, tax, surtax
  Items keep their insertion order within a section.

ROUNDING AND TOTAL:
  Every item amount is rounded to the cent (half away from zero) when the
  result is built. The total is the sum of the rounded amounts, so
  sum(items) == total holds exactly and no rounding drift can appear.
  Informational rows (gross gain, abatement) carry a zero amount; their
  figures live in Base and Rate.

SEE ALSO:
  - pretaxe/calculator.go, plusvalue/calculator.go: Producers of line items
*/
package generic

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LINE ITEM
// =============================================================================

// ItemCategory is the section a line item belongs to.
type ItemCategory string

const (
	ItemEmoluments    ItemCategory = "emoluments"
	ItemDuties        ItemCategory = "duties"
	ItemDisbursements ItemCategory = "disbursements"

	ItemGain      ItemCategory = "gain"
	ItemExemption ItemCategory = "exemption"
	ItemAbatement ItemCategory = "abatement"
	ItemTax       ItemCategory = "tax"
	ItemSurtax    ItemCategory = "surtax"
)

// LineItem is one row of a breakdown.
type LineItem struct {
	Label    string
	Category ItemCategory
	Base     Money
	Rate     *Rate
	Amount   Money
	Note     string
}

// TableRef identifies a rate-table version, for audit.
type TableRef struct {
	Name          string
	Version       string
	EffectiveFrom Date
}

func (r TableRef) String() string { return r.Name + "@" + r.Version }

// =============================================================================
// CALCULATION RESULT
// =============================================================================

// ResultKind names the calculator a result comes from.
type ResultKind string

const (
	ResultPretaxe   ResultKind = "pretaxe"
	ResultPlusvalue ResultKind = "plusvalue"
	ResultCombined  ResultKind = "combined"
)

// Disclaimer is attached to every result.
const Disclaimer = "Estimation indicative sans valeur juridique. Seul l'acte authentique établi par le notaire fait foi."

// sectionOrder is the fixed display order per result kind.
var sectionOrder = map[ResultKind][]ItemCategory{
	ResultPretaxe:   {ItemEmoluments, ItemDuties, ItemDisbursements},
	ResultPlusvalue: {ItemGain, ItemExemption, ItemAbatement, ItemTax, ItemSurtax},
	ResultCombined: {ItemEmoluments, ItemDuties, ItemDisbursements,
		ItemGain, ItemExemption, ItemAbatement, ItemTax, ItemSurtax},
}

// CalculationResult is the output of a calculation.
type CalculationResult struct {
	Kind       ResultKind
	Items      []LineItem
	Total      Money
	Versions   []TableRef
	Disclaimer string
}

// ItemsIn returns the items of one section.
func (r *CalculationResult) ItemsIn(category ItemCategory) []LineItem {
	var out []LineItem
	for _, item := range r.Items {
		if item.Category == category {
			out = append(out, item)
		}
	}
	return out
}

// Subtotal sums the rounded amounts of one section.
func (r *CalculationResult) Subtotal(category ItemCategory) Money {
	sum := decimal.Zero
	for _, item := range r.ItemsIn(category) {
		sum = sum.Add(item.Amount)
	}
	return sum
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder assembles a CalculationResult. Not safe for concurrent use; a
// builder lives for one calculation.
type Builder struct {
	kind     ResultKind
	sections map[ItemCategory][]LineItem
	refs     map[string]TableRef
}

// NewBuilder starts an empty breakdown of the given kind.
func NewBuilder(kind ResultKind) *Builder {
	return &Builder{
		kind:     kind,
		sections: make(map[ItemCategory][]LineItem),
		refs:     make(map[string]TableRef),
	}
}

// Add appends raw items to their sections.
func (b *Builder) Add(items ...LineItem) *Builder {
	for _, item := range items {
		b.sections[item.Category] = append(b.sections[item.Category], item)
	}
	return b
}

// Consulted records the table versions a calculation used.
func (b *Builder) Consulted(tables ...RateTable) *Builder {
	for _, t := range tables {
		ref := t.Ref()
		b.refs[ref.String()] = ref
	}
	return b
}

// Merge adds the items and versions of an already-built result.
func (b *Builder) Merge(results ...*CalculationResult) *Builder {
	for _, r := range results {
		b.Add(r.Items...)
		for _, ref := range r.Versions {
			b.refs[ref.String()] = ref
		}
	}
	return b
}

// Build orders, rounds and totals the items. It fails if an item belongs to
// a section the result kind does not display, which is a programming error
// in the calculator rather than bad input.
func (b *Builder) Build() (*CalculationResult, error) {
	order, ok := sectionOrder[b.kind]
	if !ok {
		return nil, fmt.Errorf("unknown result kind %q", b.kind)
	}

	allowed := make(map[ItemCategory]bool, len(order))
	for _, c := range order {
		allowed[c] = true
	}
	for c := range b.sections {
		if !allowed[c] {
			return nil, fmt.Errorf("section %q not displayed for %s results", c, b.kind)
		}
	}

	result := &CalculationResult{
		Kind:       b.kind,
		Items:      []LineItem{},
		Total:      decimal.Zero,
		Versions:   []TableRef{},
		Disclaimer: Disclaimer,
	}
	for _, c := range order {
		for _, item := range b.sections[c] {
			item.Base = RoundCents(item.Base)
			item.Amount = RoundCents(item.Amount)
			result.Items = append(result.Items, item)
			result.Total = result.Total.Add(item.Amount)
		}
	}

	for _, ref := range b.refs {
		result.Versions = append(result.Versions, ref)
	}
	sort.Slice(result.Versions, func(i, j int) bool {
		return result.Versions[i].String() < result.Versions[j].String()
	})

	return result, nil
}
