package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_OrdersSectionsKeepsInsertionOrder(t *testing.T) {
	b := NewBuilder(ResultPretaxe)
	b.Add(
		LineItem{Label: "formalities", Category: ItemDisbursements, Amount: dec("1100")},
		LineItem{Label: "department", Category: ItemDuties, Amount: dec("13500")},
		LineItem{Label: "emoluments", Category: ItemEmoluments, Amount: dec("2847.41")},
		LineItem{Label: "communal", Category: ItemDuties, Amount: dec("3600")},
		LineItem{Label: "vat", Category: ItemEmoluments, Amount: dec("569.482")},
	)

	result, err := b.Build()
	require.NoError(t, err)

	var labels []string
	for _, item := range result.Items {
		labels = append(labels, item.Label)
	}
	assert.Equal(t, []string{"emoluments", "vat", "department", "communal", "formalities"}, labels)
}

func TestBuilder_RoundsHalfAwayFromZeroAndTotalsRounded(t *testing.T) {
	// Three items of 0.005 each: summing first would give 0.015 -> 0.02,
	// rounding first gives 0.01 * 3 = 0.03. The published total must match
	// the printed rows.
	b := NewBuilder(ResultPlusvalue)
	for i := 0; i < 3; i++ {
		b.Add(LineItem{Label: "tax", Category: ItemTax, Base: dec("0.125"), Amount: dec("0.005")})
	}

	result, err := b.Build()
	require.NoError(t, err)

	for _, item := range result.Items {
		assert.True(t, item.Amount.Equal(dec("0.01")), "got %s", item.Amount)
		assert.True(t, item.Base.Equal(dec("0.13")), "got %s", item.Base)
	}
	assert.True(t, result.Total.Equal(dec("0.03")), "got %s", result.Total)
}

func TestRoundCents(t *testing.T) {
	cases := map[string]string{
		"2.345":   "2.35",
		"2.344":   "2.34",
		"-2.345":  "-2.35",
		"0.005":   "0.01",
		"564.598": "564.6",
		"100":     "100",
	}
	for in, want := range cases {
		assert.True(t, RoundCents(dec(in)).Equal(dec(want)), "%s -> %s", in, RoundCents(dec(in)))
	}
}

func TestBuilder_VersionsSortedAndUnique(t *testing.T) {
	b := NewBuilder(ResultPretaxe)
	vat := flatTable("emoluments-vat", "2014", "2014-01-01", "0.2")
	b.Consulted(emolumentTable(), vat, emolumentTable())

	result, err := b.Build()
	require.NoError(t, err)

	require.Len(t, result.Versions, 2)
	assert.Equal(t, "emoluments@2016", result.Versions[0].String())
	assert.Equal(t, "emoluments-vat@2014", result.Versions[1].String())
	assert.Equal(t, MustParseDate("2016-05-01"), result.Versions[0].EffectiveFrom)
	assert.Equal(t, Disclaimer, result.Disclaimer)
}

func TestBuilder_RejectsForeignSection(t *testing.T) {
	b := NewBuilder(ResultPretaxe)
	b.Add(LineItem{Label: "surtax", Category: ItemSurtax, Amount: dec("1")})

	_, err := b.Build()
	assert.Error(t, err)

	_, err = NewBuilder("estate").Build()
	assert.Error(t, err)
}

func TestBuilder_EmptyResult(t *testing.T) {
	result, err := NewBuilder(ResultPlusvalue).Build()
	require.NoError(t, err)

	assert.NotNil(t, result.Items)
	assert.True(t, result.Total.IsZero())
}

func TestBuilder_MergeCombinesResults(t *testing.T) {
	purchase, err := NewBuilder(ResultPretaxe).
		Add(LineItem{Label: "emoluments", Category: ItemEmoluments, Amount: dec("10.004")}).
		Consulted(emolumentTable()).
		Build()
	require.NoError(t, err)

	sale, err := NewBuilder(ResultPlusvalue).
		Add(LineItem{Label: "ir", Category: ItemTax, Amount: dec("7600")}).
		Build()
	require.NoError(t, err)

	combined, err := NewBuilder(ResultCombined).Merge(sale, purchase).Build()
	require.NoError(t, err)

	require.Len(t, combined.Items, 2)
	assert.Equal(t, "emoluments", combined.Items[0].Label)
	assert.True(t, combined.Total.Equal(dec("7610")))
	assert.Len(t, combined.Versions, 1)
	assert.True(t, combined.Subtotal(ItemTax).Equal(dec("7600")))
}
