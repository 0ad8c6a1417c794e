package pretaxe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/notary-engine/factory"
	"github.com/warp/notary-engine/generic"
	"github.com/warp/notary-engine/generic/store"
	"github.com/warp/notary-engine/pretaxe"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRegistry(t *testing.T) *generic.Registry {
	reg := generic.NewRegistry()
	require.NoError(t, reg.Load(context.Background(), factory.EmbeddedSource()))
	return reg
}

func purchase(price int64, department string, category generic.PropertyCategory, date string) generic.TransactionFacts {
	return generic.TransactionFacts{
		Price:           generic.NewMoney(price),
		AcquisitionDate: generic.MustParseDate(date),
		Department:      department,
		Category:        category,
	}
}

func d(s string) generic.Money { return generic.MustParseDecimal(s) }

func assertMoney(t *testing.T, want string, got generic.Money, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

// =============================================================================
// EMOLUMENTS
// =============================================================================

func TestCalculate_Emoluments_MarginalBrackets(t *testing.T) {
	// GIVEN: A 300,000 purchase signed under the 2016 emolument schedule
	// WHEN: Computing the estimate
	// THEN: Each slice is taxed at its own bracket rate, rounded once

	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	result, err := calc.Calculate(reg.Snapshot(), purchase(300000, "75", generic.CategoryBuilt, "2019-06-01"))
	require.NoError(t, err)

	want := generic.RoundCents(
		d("6500").Mul(d("0.03945")).
			Add(d("10500").Mul(d("0.01627"))).
			Add(d("43000").Mul(d("0.01085"))).
			Add(d("240000").Mul(d("0.00814"))),
	)

	items := result.ItemsIn(generic.ItemEmoluments)
	require.Len(t, items, 2)
	assert.Equal(t, "Émoluments proportionnels", items[0].Label)
	assert.True(t, want.Equal(items[0].Amount), "emoluments %s, want %s", items[0].Amount, want)
	assertMoney(t, "2847.41", items[0].Amount)
	assert.Contains(t, items[0].Note, "6500 × 3.945 %")

	// VAT is applied to the unrounded emolument total.
	assertMoney(t, "569.48", items[1].Amount)
}

func TestCalculate_UsesScheduleInForceOnAcquisitionDate(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	before, err := calc.Calculate(reg.Snapshot(), purchase(300000, "75", generic.CategoryBuilt, "2020-12-31"))
	require.NoError(t, err)
	after, err := calc.Calculate(reg.Snapshot(), purchase(300000, "75", generic.CategoryBuilt, "2021-01-01"))
	require.NoError(t, err)

	assert.True(t, after.Subtotal(generic.ItemEmoluments).LessThan(before.Subtotal(generic.ItemEmoluments)),
		"2021 schedule is lower than 2016")
	assert.Contains(t, refs(before), "emoluments@2016")
	assert.Contains(t, refs(after), "emoluments@2021")
}

// =============================================================================
// FULL STATEMENT
// =============================================================================

func TestCalculate_FullStatement_Built(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	result, err := calc.Calculate(reg.Snapshot(), purchase(300000, "75", generic.CategoryBuilt, "2019-06-01"))
	require.NoError(t, err)

	assert.Equal(t, generic.ResultPretaxe, result.Kind)
	assert.Equal(t, generic.Disclaimer, result.Disclaimer)

	// Fixed order: emoluments, duties, disbursements.
	var categories []generic.ItemCategory
	for _, item := range result.Items {
		categories = append(categories, item.Category)
	}
	assert.Equal(t, []generic.ItemCategory{
		generic.ItemEmoluments, generic.ItemEmoluments,
		generic.ItemDuties, generic.ItemDuties, generic.ItemDuties,
		generic.ItemDisbursements, generic.ItemDisbursements, generic.ItemDisbursements,
	}, categories)

	duties := result.ItemsIn(generic.ItemDuties)
	assertMoney(t, "13500", duties[0].Amount, "departmental 4.5%")
	assertMoney(t, "3600", duties[1].Amount, "communal 1.2%")
	assertMoney(t, "319.95", duties[2].Amount, "collection fee on departmental duty")

	disb := result.ItemsIn(generic.ItemDisbursements)
	assertMoney(t, "450", disb[0].Amount)
	assertMoney(t, "1100", disb[1].Amount)
	assertMoney(t, "300", disb[2].Amount)

	assertMoney(t, "22686.84", result.Total)
}

func TestCalculate_TotalEqualsSumOfItems(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	for _, price := range []int64{1, 999, 6500, 17001, 123457, 987654321} {
		result, err := calc.Calculate(reg.Snapshot(), purchase(price, "36", generic.CategoryBuilt, "2023-02-14"))
		require.NoError(t, err)

		sum := generic.NewMoney(0)
		for _, item := range result.Items {
			assert.True(t, item.Amount.Equal(generic.RoundCents(item.Amount)), "item %q rounded", item.Label)
			sum = sum.Add(item.Amount)
		}
		assert.True(t, sum.Equal(result.Total), "price %d: sum %s total %s", price, sum, result.Total)
	}
}

func TestCalculate_NewBuild_SingleReducedDuty(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	result, err := calc.Calculate(reg.Snapshot(), purchase(200000, "75", generic.CategoryNewBuild, "2019-06-01"))
	require.NoError(t, err)

	duties := result.ItemsIn(generic.ItemDuties)
	require.Len(t, duties, 1)
	assertMoney(t, "1430", duties[0].Amount)
	assert.Contains(t, refs(result), "transfer-duty-new-build@2014")
	assert.NotContains(t, refs(result), "transfer-duty-communal@2014")

	disb := result.ItemsIn(generic.ItemDisbursements)
	assertMoney(t, "300", disb[0].Amount, "new-build land registry amount")
}

func TestCalculate_ReducedDepartmentRate(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	result, err := calc.Calculate(reg.Snapshot(), purchase(100000, "36", generic.CategoryBuilt, "2019-06-01"))
	require.NoError(t, err)

	duties := result.ItemsIn(generic.ItemDuties)
	assertMoney(t, "3800", duties[0].Amount)
	assert.Equal(t, "Droit départemental (36)", duties[0].Label)
}

func TestCalculate_ContributionMinimum(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	result, err := calc.Calculate(reg.Snapshot(), purchase(10000, "75", generic.CategoryBareLand, "2019-06-01"))
	require.NoError(t, err)

	disb := result.ItemsIn(generic.ItemDisbursements)
	require.Len(t, disb, 3)
	assertMoney(t, "15", disb[2].Amount)
	assert.Contains(t, disb[2].Note, "minimum")
}

// =============================================================================
// FAILURES
// =============================================================================

func TestCalculate_UnknownDepartment_NoPartialResult(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	result, err := calc.Calculate(reg.Snapshot(), purchase(300000, "99", generic.CategoryBuilt, "2019-06-01"))
	require.Error(t, err)
	assert.Nil(t, result)

	var uj *generic.UnknownJurisdictionError
	require.ErrorAs(t, err, &uj)
	assert.Equal(t, "99", uj.Department)
	assert.True(t, generic.IsNotFound(err))
}

func TestCalculate_InvalidAndMissingFacts(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	zero := purchase(0, "75", generic.CategoryBuilt, "2019-06-01")
	_, err := calc.Calculate(reg.Snapshot(), zero)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	negative := purchase(-5, "75", generic.CategoryBuilt, "2019-06-01")
	_, err = calc.Calculate(reg.Snapshot(), negative)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	noDept := purchase(300000, "", generic.CategoryBuilt, "2019-06-01")
	_, err = calc.Calculate(reg.Snapshot(), noDept)
	var mf *generic.MissingFactError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "department", mf.Fact)

	noDate := purchase(300000, "75", generic.CategoryBuilt, "2019-06-01")
	noDate.AcquisitionDate = generic.Date{}
	_, err = calc.Calculate(reg.Snapshot(), noDate)
	assert.ErrorIs(t, err, generic.ErrMissingFact)
}

func TestCalculate_DateBeforeAnySchedule(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()

	_, err := calc.Calculate(reg.Snapshot(), purchase(300000, "75", generic.CategoryBuilt, "2010-01-01"))
	assert.ErrorIs(t, err, generic.ErrNoEffectiveVersion)
}

func TestCalculate_Idempotent(t *testing.T) {
	reg := newTestRegistry(t)
	calc := pretaxe.NewCalculator()
	snap := reg.Snapshot()
	facts := purchase(451234, "2A", generic.CategoryBuilt, "2025-05-01")

	first, err := calc.Calculate(snap, facts)
	require.NoError(t, err)
	second, err := calc.Calculate(snap, facts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCalculate_LaterSourceAddsRateVersion(t *testing.T) {
	// GIVEN: The embedded tables plus a 21 % VAT from 2026 held in memory
	// WHEN: Pricing one purchase signed before and one after the change
	// THEN: Each signing date picks its own VAT version

	overrides := store.NewMemory(generic.RateTable{
		Name:     pretaxe.TableEmolumentsVAT,
		Version:  "2026",
		Kind:     generic.KindFlat,
		Validity: generic.Validity{From: generic.MustParseDate("2026-01-01")},
		Rate:     d("0.21"),
	})
	reg := generic.NewRegistry()
	require.NoError(t, reg.Load(context.Background(), factory.EmbeddedSource(), overrides))
	calc := pretaxe.NewCalculator()

	for date, want := range map[string]string{"2025-12-31": "0.20", "2026-01-01": "0.21"} {
		result, err := calc.Calculate(reg.Snapshot(), purchase(300000, "75", generic.CategoryBuilt, date))
		require.NoError(t, err, date)

		items := result.ItemsIn(generic.ItemEmoluments)
		require.Len(t, items, 2)
		require.NotNil(t, items[1].Rate)
		assertMoney(t, want, *items[1].Rate, date)
	}
}

func refs(r *generic.CalculationResult) []string {
	out := make([]string, 0, len(r.Versions))
	for _, v := range r.Versions {
		out = append(out, v.String())
	}
	return out
}
