/*
Package pretaxe estimates the total acquisition cost of a property purchase.

PURPOSE:
  A buyer pays the price plus the "frais de notaire": the notary's
  regulated emoluments, the transfer duties collected for the department
  and the commune, and a handful of disbursements. This package turns
  TransactionFacts into that itemized estimate.

THE STATEMENT:
  Emoluments      progressive brackets on the price, plus VAT
  Duties          department rate + communal rate + collection fee
                  (a single reduced land-registration tax for new builds)
  Disbursements   fixed amounts by property category, plus the
                  land-registry security contribution (minimum amount)

  Items always appear in that order.

RATE TABLES CONSULTED (resolved as of the acquisition date):
  emoluments, emoluments-vat, transfer-duty-department,
  transfer-duty-communal, transfer-duty-collection-fee,
  transfer-duty-new-build, disbursements-land-registry,
  disbursements-formalities, land-registry-contribution

FAILURES:
  - price <= 0                         -> InvalidInputError
  - no department / date / category    -> MissingFactError
  - department absent from duty table  -> UnknownJurisdictionError

  Every table is resolved and the department checked before the first
  line item is produced, so a failure never leaves a partial breakdown.

USAGE:
  calc := pretaxe.NewCalculator()
  result, err := calc.Calculate(registry.Snapshot(), facts)

SEE ALSO:
  - generic/bracket.go: Apply, the marginal bracket evaluator
  - factory/defaults/pretaxe.yaml: Statutory values
*/
package pretaxe

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/notary-engine/generic"
)

// Table names consulted by the fee calculator.
const (
	TableEmoluments               = "emoluments"
	TableEmolumentsVAT            = "emoluments-vat"
	TableDutyDepartment           = "transfer-duty-department"
	TableDutyCommunal             = "transfer-duty-communal"
	TableDutyCollectionFee        = "transfer-duty-collection-fee"
	TableDutyNewBuild             = "transfer-duty-new-build"
	TableDisbursementLandRegistry = "disbursements-land-registry"
	TableDisbursementFormalities  = "disbursements-formalities"
	TableLandRegistryContribution = "land-registry-contribution"
)

const calculatorName = "pretaxe"

// Calculator computes acquisition costs. Stateless; safe for concurrent use.
type Calculator struct{}

// NewCalculator returns the acquisition-cost calculator.
func NewCalculator() *Calculator { return &Calculator{} }

// Kind implements generic.Calculator.
func (c *Calculator) Kind() generic.ResultKind { return generic.ResultPretaxe }

// tables is every rate table one estimate needs, resolved up front.
type tables struct {
	emoluments    generic.RateTable
	vat           generic.RateTable
	department    generic.RateTable
	communal      generic.RateTable
	collectionFee generic.RateTable
	newBuild      generic.RateTable
	landRegistry  generic.RateTable
	formalities   generic.RateTable
	contribution  generic.RateTable

	departmentRate decimal.Decimal
}

// Calculate produces the itemized acquisition-cost estimate.
func (c *Calculator) Calculate(rates generic.RateSource, facts generic.TransactionFacts) (*generic.CalculationResult, error) {
	if err := facts.Validate(); err != nil {
		return nil, err
	}
	if err := requireFacts(facts); err != nil {
		return nil, err
	}

	t, err := resolve(rates, facts)
	if err != nil {
		return nil, err
	}

	b := generic.NewBuilder(generic.ResultPretaxe)
	b.Add(emoluments(t, facts.Price)...)
	b.Add(duties(t, facts)...)

	disb, err := disbursements(t, facts)
	if err != nil {
		return nil, err
	}
	b.Add(disb...)

	b.Consulted(t.emoluments, t.vat, t.department, t.landRegistry, t.formalities, t.contribution)
	if facts.Category == generic.CategoryNewBuild {
		b.Consulted(t.newBuild)
	} else {
		b.Consulted(t.communal, t.collectionFee)
	}
	return b.Build()
}

func requireFacts(facts generic.TransactionFacts) error {
	if facts.AcquisitionDate.IsZero() {
		return &generic.MissingFactError{Fact: "acquisition_date", Calculator: calculatorName}
	}
	if facts.Department == "" {
		return &generic.MissingFactError{Fact: "department", Calculator: calculatorName}
	}
	if facts.Category == "" {
		return &generic.MissingFactError{Fact: "category", Calculator: calculatorName}
	}
	return nil
}

func resolve(rates generic.RateSource, facts generic.TransactionFacts) (*tables, error) {
	asOf := facts.AcquisitionDate
	t := &tables{}

	for _, r := range []struct {
		name string
		dst  *generic.RateTable
	}{
		{TableEmoluments, &t.emoluments},
		{TableEmolumentsVAT, &t.vat},
		{TableDutyDepartment, &t.department},
		{TableDutyCommunal, &t.communal},
		{TableDutyCollectionFee, &t.collectionFee},
		{TableDutyNewBuild, &t.newBuild},
		{TableDisbursementLandRegistry, &t.landRegistry},
		{TableDisbursementFormalities, &t.formalities},
		{TableLandRegistryContribution, &t.contribution},
	} {
		tbl, err := rates.Get(r.name, asOf)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", r.name, err)
		}
		*r.dst = tbl
	}

	if err := expectKind(t.emoluments, generic.KindBrackets); err != nil {
		return nil, err
	}
	if err := expectKind(t.department, generic.KindRates); err != nil {
		return nil, err
	}

	rate, ok := t.department.Lookup(facts.Department)
	if !ok {
		return nil, &generic.UnknownJurisdictionError{Department: facts.Department, Table: t.department.Ref().String()}
	}
	t.departmentRate = rate
	return t, nil
}

func expectKind(t generic.RateTable, kind generic.TableKind) error {
	if t.Kind != kind {
		return &generic.ConfigError{
			Table:    t.Name,
			Version:  t.Version,
			Problems: []string{fmt.Sprintf("expected %s table, got %s", kind, t.Kind)},
		}
	}
	return nil
}

// =============================================================================
// EMOLUMENTS
// =============================================================================

func emoluments(t *tables, price generic.Money) []generic.LineItem {
	res := generic.Apply(t.emoluments, price)
	vatRate := t.vat.Rate

	return []generic.LineItem{
		{
			Label:    "Émoluments proportionnels",
			Category: generic.ItemEmoluments,
			Base:     price,
			Amount:   res.Total,
			Note:     sliceNote(res),
		},
		{
			Label:    "TVA sur émoluments",
			Category: generic.ItemEmoluments,
			Base:     res.Total,
			Rate:     generic.RatePtr(vatRate),
			Amount:   res.Total.Mul(vatRate),
			Note:     t.vat.Basis,
		},
	}
}

// sliceNote renders the bracket detail, e.g. "6500 × 3.945 % + 10500 × 1.627 %".
func sliceNote(res generic.BracketResult) string {
	parts := make([]string, 0, len(res.Slices))
	for _, s := range res.Slices {
		parts = append(parts, fmt.Sprintf("%s × %s %%", s.Base.String(), generic.Percent(s.Bracket.Rate).String()))
	}
	return strings.Join(parts, " + ")
}

// =============================================================================
// DUTIES
// =============================================================================

func duties(t *tables, facts generic.TransactionFacts) []generic.LineItem {
	price := facts.Price

	if facts.Category == generic.CategoryNewBuild {
		return []generic.LineItem{{
			Label:    "Taxe de publicité foncière (neuf)",
			Category: generic.ItemDuties,
			Base:     price,
			Rate:     generic.RatePtr(t.newBuild.Rate),
			Amount:   price.Mul(t.newBuild.Rate),
			Note:     t.newBuild.Basis,
		}}
	}

	departmental := price.Mul(t.departmentRate)
	return []generic.LineItem{
		{
			Label:    "Droit départemental (" + facts.Department + ")",
			Category: generic.ItemDuties,
			Base:     price,
			Rate:     generic.RatePtr(t.departmentRate),
			Amount:   departmental,
			Note:     t.department.Basis,
		},
		{
			Label:    "Taxe communale",
			Category: generic.ItemDuties,
			Base:     price,
			Rate:     generic.RatePtr(t.communal.Rate),
			Amount:   price.Mul(t.communal.Rate),
			Note:     t.communal.Basis,
		},
		{
			Label:    "Frais d'assiette et de recouvrement",
			Category: generic.ItemDuties,
			Base:     departmental,
			Rate:     generic.RatePtr(t.collectionFee.Rate),
			Amount:   departmental.Mul(t.collectionFee.Rate),
			Note:     t.collectionFee.Basis,
		},
	}
}

// =============================================================================
// DISBURSEMENTS
// =============================================================================

func disbursements(t *tables, facts generic.TransactionFacts) ([]generic.LineItem, error) {
	key := string(facts.Category)

	landRegistry, err := amountFor(t.landRegistry, key)
	if err != nil {
		return nil, err
	}
	formalities, err := amountFor(t.formalities, key)
	if err != nil {
		return nil, err
	}

	contribution := facts.Price.Mul(t.contribution.Rate)
	note := t.contribution.Basis
	if t.contribution.Threshold != nil && contribution.LessThan(*t.contribution.Threshold) {
		contribution = *t.contribution.Threshold
		note = fmt.Sprintf("%s (minimum %s €)", note, t.contribution.Threshold.String())
	}

	return []generic.LineItem{
		{
			Label:    "Débours (cadastre, état hypothécaire, urbanisme)",
			Category: generic.ItemDisbursements,
			Amount:   landRegistry,
			Note:     t.landRegistry.Basis,
		},
		{
			Label:    "Formalités et frais divers",
			Category: generic.ItemDisbursements,
			Amount:   formalities,
			Note:     t.formalities.Basis,
		},
		{
			Label:    "Contribution de sécurité immobilière",
			Category: generic.ItemDisbursements,
			Base:     facts.Price,
			Rate:     generic.RatePtr(t.contribution.Rate),
			Amount:   contribution,
			Note:     note,
		},
	}, nil
}

// amountFor reads a category amount. A missing category is a hole in the
// rate data, not bad input.
func amountFor(t generic.RateTable, key string) (generic.Money, error) {
	v, ok := t.Lookup(key)
	if !ok {
		return decimal.Zero, &generic.ConfigError{
			Table:    t.Name,
			Version:  t.Version,
			Problems: []string{fmt.Sprintf("no amount for category %q", key)},
		}
	}
	return v, nil
}
