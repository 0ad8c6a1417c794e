/*
Package plusvalue estimates the tax due on a real-estate capital gain.

PURPOSE:
  When a property that is not the seller's main residence is sold at a
  profit, the gain is taxed twice: at a flat income-tax rate and at the
  social-levy rate. Each tax has its own holding-period abatement, and a
  progressive surtax applies to large gains. This package computes the
  whole chain from TransactionFacts.

THE FIVE STAGES:
  1. Gross gain   = disposal price - (acquisition price + costs + works)
                    gain <= 0 stops here: no tax, one explanatory line
  2. Exemptions   main-residence > full-duration > first-sale
                    the first match stops here with a zero-tax line
  3. Abatements   two independent tracks, one schedule each:
                    income tax    6%/yr years 6-21, 4% year 22   (full at 22)
                    social levy   1.65%/yr, 1.60%, 9%/yr 23-30   (full at 30)
  4. Flat taxes   income-tax rate on the IR base, social rate on the PS base
  5. Surtax       progressive brackets on the IR base above the threshold

PRECISION:
  Every intermediate value keeps full precision. Rounding happens once, in
  the breakdown builder, so five stages never compound rounding error.

RATE TABLES CONSULTED (resolved as of the disposal date):
  abatement-income-tax, abatement-social-levy, capital-gains-income-tax,
  capital-gains-social-levy, capital-gains-surtax, and when requested
  flat-acquisition-costs, flat-improvement-works

FAILURES:
  - disposal before acquisition                     -> InvalidInputError
  - full-duration declared but not yet reached      -> InvalidInputError
  - flat works requested before the minimum years   -> InvalidInputError
  - no acquisition price / date / disposal date     -> MissingFactError

USAGE:
  calc := plusvalue.NewCalculator()
  result, err := calc.Calculate(registry.Snapshot(), facts)

SEE ALSO:
  - generic/period.go: HoldingPeriod (calendar subtraction)
  - factory/defaults/plusvalue.yaml: Statutory schedules
*/
package plusvalue

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/notary-engine/generic"
)

// Table names consulted by the capital-gains calculator.
const (
	TableAbatementIncomeTax   = "abatement-income-tax"
	TableAbatementSocialLevy  = "abatement-social-levy"
	TableIncomeTax            = "capital-gains-income-tax"
	TableSocialLevy           = "capital-gains-social-levy"
	TableSurtax               = "capital-gains-surtax"
	TableFlatAcquisitionCosts = "flat-acquisition-costs"
	TableFlatImprovementWorks = "flat-improvement-works"
)

const calculatorName = "plusvalue"

// Legal basis of each exemption, printed on the exemption line.
var exemptionBasis = map[generic.Exemption]string{
	generic.ExemptionMainResidence: "CGI, art. 150 U, II, 1°",
	generic.ExemptionFullDuration:  "CGI, art. 150 VC, I",
	generic.ExemptionFirstSale:     "CGI, art. 150 U, II, 1° bis",
}

var exemptionLabel = map[generic.Exemption]string{
	generic.ExemptionMainResidence: "Exonération : résidence principale",
	generic.ExemptionFullDuration:  "Exonération : durée de détention",
	generic.ExemptionFirstSale:     "Exonération : première cession d'un logement",
}

// Calculator computes capital-gains tax. Stateless; safe for concurrent use.
type Calculator struct{}

// NewCalculator returns the capital-gains calculator.
func NewCalculator() *Calculator { return &Calculator{} }

// Kind implements generic.Calculator.
func (c *Calculator) Kind() generic.ResultKind { return generic.ResultPlusvalue }

// Calculate produces the itemized capital-gains estimate.
func (c *Calculator) Calculate(rates generic.RateSource, facts generic.TransactionFacts) (*generic.CalculationResult, error) {
	if err := requireFacts(facts); err != nil {
		return nil, err
	}
	if err := facts.Validate(); err != nil {
		return nil, err
	}

	asOf := *facts.DisposalDate
	held, err := generic.HoldingPeriodBetween(facts.AcquisitionDate, asOf)
	if err != nil {
		return nil, &generic.InvalidInputError{Field: "disposal_date", Reason: err.Error()}
	}

	b := generic.NewBuilder(generic.ResultPlusvalue)

	// Stage 1: gross gain
	g, err := grossGain(rates, facts, held, b)
	if err != nil {
		return nil, err
	}
	if !g.IsPositive() {
		b.Add(generic.LineItem{
			Label:    "Aucune plus-value imposable",
			Category: generic.ItemGain,
			Base:     g,
			Note:     "Le prix de cession n'excède pas le prix de revient",
		})
		return b.Build()
	}
	b.Add(generic.LineItem{
		Label:    "Plus-value brute",
		Category: generic.ItemGain,
		Base:     g,
		Note:     fmt.Sprintf("Détention : %d ans %d mois", held.Years, held.Months),
	})

	// Stage 2: exemptions
	if exempt(facts, generic.ExemptionMainResidence) {
		b.Add(exemptionLine(generic.ExemptionMainResidence, g))
		return b.Build()
	}

	irAbatement, err := resolveSchedule(rates, TableAbatementIncomeTax, asOf)
	if err != nil {
		return nil, err
	}
	psAbatement, err := resolveSchedule(rates, TableAbatementSocialLevy, asOf)
	if err != nil {
		return nil, err
	}
	b.Consulted(irAbatement, psAbatement)

	fullYears := generic.MaxMoney(*irAbatement.Threshold, *psAbatement.Threshold)
	reached := held.WholeYears().GreaterThanOrEqual(fullYears)
	if facts.HasExemption(generic.ExemptionFullDuration) && !reached {
		return nil, &generic.InvalidInputError{
			Field:  "exemptions",
			Reason: fmt.Sprintf("full-duration exemption requires %s years held, got %s", fullYears, held),
		}
	}
	if reached {
		b.Add(exemptionLine(generic.ExemptionFullDuration, g))
		return b.Build()
	}
	if facts.HasExemption(generic.ExemptionFirstSale) {
		b.Add(exemptionLine(generic.ExemptionFirstSale, g))
		return b.Build()
	}

	// Stage 3: abatements, one per track
	irBase := abate(b, irAbatement, held, g, "impôt sur le revenu")
	psBase := abate(b, psAbatement, held, g, "prélèvements sociaux")

	// Stage 4: flat taxes
	irRate, err := resolveFlat(rates, TableIncomeTax, asOf)
	if err != nil {
		return nil, err
	}
	psRate, err := resolveFlat(rates, TableSocialLevy, asOf)
	if err != nil {
		return nil, err
	}
	b.Consulted(irRate, psRate)
	b.Add(
		generic.LineItem{
			Label:    "Impôt sur le revenu",
			Category: generic.ItemTax,
			Base:     irBase,
			Rate:     generic.RatePtr(irRate.Rate),
			Amount:   irBase.Mul(irRate.Rate),
			Note:     irRate.Basis,
		},
		generic.LineItem{
			Label:    "Prélèvements sociaux",
			Category: generic.ItemTax,
			Base:     psBase,
			Rate:     generic.RatePtr(psRate.Rate),
			Amount:   psBase.Mul(psRate.Rate),
			Note:     psRate.Basis,
		},
	)

	// Stage 5: surtax on the income-tax base
	surtax, err := resolveSchedule(rates, TableSurtax, asOf)
	if err != nil {
		return nil, err
	}
	b.Consulted(surtax)
	if irBase.GreaterThan(*surtax.Threshold) {
		res := generic.Apply(surtax, irBase)
		b.Add(generic.LineItem{
			Label:    "Taxe sur les plus-values immobilières élevées",
			Category: generic.ItemSurtax,
			Base:     irBase,
			Amount:   res.Total,
			Note:     surtax.Basis,
		})
	}

	return b.Build()
}

func requireFacts(facts generic.TransactionFacts) error {
	if facts.AcquisitionPrice == nil {
		return &generic.MissingFactError{Fact: "acquisition_price", Calculator: calculatorName}
	}
	if facts.AcquisitionDate.IsZero() {
		return &generic.MissingFactError{Fact: "acquisition_date", Calculator: calculatorName}
	}
	if !facts.Sold() {
		return &generic.MissingFactError{Fact: "disposal_date", Calculator: calculatorName}
	}
	return nil
}

// exempt reports whether an exemption applies. Occupying the property as a
// main residence is the exemption itself, declared or not.
func exempt(facts generic.TransactionFacts, e generic.Exemption) bool {
	if e == generic.ExemptionMainResidence && facts.Use == generic.UseMainResidence {
		return true
	}
	return facts.HasExemption(e)
}

func exemptionLine(e generic.Exemption, gain generic.Money) generic.LineItem {
	return generic.LineItem{
		Label:    exemptionLabel[e],
		Category: generic.ItemExemption,
		Base:     gain,
		Note:     exemptionBasis[e],
	}
}

// =============================================================================
// STAGE 1 - GROSS GAIN
// =============================================================================

// grossGain subtracts the cost price from the disposal price. Statutory
// flat amounts replace declared costs when requested.
func grossGain(rates generic.RateSource, facts generic.TransactionFacts, held generic.HoldingPeriod, b *generic.Builder) (generic.Money, error) {
	acquisitionPrice := *facts.AcquisitionPrice
	asOf := *facts.DisposalDate

	costs := facts.AcquisitionCosts
	if facts.FlatAcquisitionCosts {
		t, err := resolveFlat(rates, TableFlatAcquisitionCosts, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		b.Consulted(t)
		costs = acquisitionPrice.Mul(t.Rate)
		b.Add(generic.LineItem{
			Label:    "Frais d'acquisition forfaitaires",
			Category: generic.ItemGain,
			Base:     costs,
			Rate:     generic.RatePtr(t.Rate),
			Note:     t.Basis,
		})
	}

	works := facts.ImprovementCosts
	if facts.FlatImprovementCosts {
		t, err := resolveFlat(rates, TableFlatImprovementWorks, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		if t.Threshold != nil && !heldMoreThan(facts.AcquisitionDate, asOf, *t.Threshold) {
			return decimal.Zero, &generic.InvalidInputError{
				Field:  "flat_improvement_costs",
				Reason: fmt.Sprintf("requires more than %s years held, got %s", t.Threshold, held),
			}
		}
		b.Consulted(t)
		works = acquisitionPrice.Mul(t.Rate)
		b.Add(generic.LineItem{
			Label:    "Travaux forfaitaires",
			Category: generic.ItemGain,
			Base:     works,
			Rate:     generic.RatePtr(t.Rate),
			Note:     t.Basis,
		})
	}

	costPrice := acquisitionPrice.Add(costs).Add(works)
	return facts.Price.Sub(costPrice), nil
}

// heldMoreThan reports whether disposed falls strictly after the anniversary
// of acquired that many years later. A sale on the anniversary itself does
// not qualify.
func heldMoreThan(acquired, disposed generic.Date, years decimal.Decimal) bool {
	return disposed.After(acquired.AddYears(int(years.IntPart())))
}

// =============================================================================
// STAGE 3 - ABATEMENTS
// =============================================================================

// abate applies one track's schedule and returns the net taxable base.
// At or beyond the schedule threshold the abatement is 100%.
func abate(b *generic.Builder, schedule generic.RateTable, held generic.HoldingPeriod, gain generic.Money, track string) generic.Money {
	fraction := generic.Clamp01(generic.Apply(schedule, held.WholeYears()).Total)
	if held.WholeYears().GreaterThanOrEqual(*schedule.Threshold) {
		fraction = decimal.NewFromInt(1)
	}

	abated := gain.Mul(fraction)
	b.Add(generic.LineItem{
		Label:    fmt.Sprintf("Abattement pour durée de détention (%s), %d ans", track, held.Years),
		Category: generic.ItemAbatement,
		Base:     abated,
		Rate:     generic.RatePtr(fraction),
		Note:     schedule.Basis,
	})
	return generic.NonNegative(gain.Sub(abated))
}

// =============================================================================
// TABLE RESOLUTION
// =============================================================================

// resolveSchedule fetches a brackets table that must carry a threshold.
func resolveSchedule(rates generic.RateSource, name string, asOf generic.Date) (generic.RateTable, error) {
	t, err := rates.Get(name, asOf)
	if err != nil {
		return generic.RateTable{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	if t.Kind != generic.KindBrackets {
		return generic.RateTable{}, configProblem(t, fmt.Sprintf("expected brackets table, got %s", t.Kind))
	}
	if t.Threshold == nil {
		return generic.RateTable{}, configProblem(t, "threshold is required")
	}
	return t, nil
}

func resolveFlat(rates generic.RateSource, name string, asOf generic.Date) (generic.RateTable, error) {
	t, err := rates.Get(name, asOf)
	if err != nil {
		return generic.RateTable{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	if t.Kind != generic.KindFlat {
		return generic.RateTable{}, configProblem(t, fmt.Sprintf("expected flat table, got %s", t.Kind))
	}
	return t, nil
}

func configProblem(t generic.RateTable, problem string) error {
	return &generic.ConfigError{Table: t.Name, Version: t.Version, Problems: []string{problem}}
}
