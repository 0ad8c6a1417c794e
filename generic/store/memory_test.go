package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/notary-engine/generic"
)

func flat(name, version, from, rate string) generic.RateTable {
	return generic.RateTable{
		Name:     name,
		Version:  version,
		Kind:     generic.KindFlat,
		Validity: generic.Validity{From: generic.MustParseDate(from)},
		Rate:     decimal.RequireFromString(rate),
	}
}

func TestMemory_TablesSortedByNameThenDate(t *testing.T) {
	m := NewMemory(
		flat("vat", "2018", "2018-01-01", "0.2"),
		flat("levy", "2018", "2018-01-01", "0.172"),
		flat("vat", "2014", "2014-01-01", "0.196"),
	)

	tables, err := m.Tables(context.Background())
	require.NoError(t, err)

	var refs []string
	for _, tbl := range tables {
		refs = append(refs, tbl.Ref().String())
	}
	assert.Equal(t, []string{"levy@2018", "vat@2014", "vat@2018"}, refs)
}

func TestMemory_PutReplacesAndDeleteRemoves(t *testing.T) {
	m := NewMemory(flat("vat", "2014", "2014-01-01", "0.2"))

	m.Put(flat("vat", "2014", "2014-01-01", "0.1"))
	assert.Equal(t, 1, m.Len())

	reg := generic.NewRegistry()
	require.NoError(t, reg.Load(context.Background(), m))
	tbl, err := reg.Get("vat", generic.MustParseDate("2020-01-01"))
	require.NoError(t, err)
	assert.True(t, tbl.Rate.Equal(decimal.RequireFromString("0.1")))

	m.Delete("vat", "2014")
	assert.Equal(t, 0, m.Len())
}

func TestMemory_StoresCopies(t *testing.T) {
	original := generic.RateTable{
		Name:     "duty",
		Version:  "1",
		Kind:     generic.KindRates,
		Validity: generic.Validity{From: generic.MustParseDate("2014-01-01")},
		Entries:  map[string]decimal.Decimal{"75": decimal.RequireFromString("0.045")},
	}
	m := NewMemory(original)
	original.Entries["75"] = decimal.RequireFromString("0.9")

	tables, err := m.Tables(context.Background())
	require.NoError(t, err)
	tables[0].Entries["75"] = decimal.RequireFromString("0.8")

	again, err := m.Tables(context.Background())
	require.NoError(t, err)
	assert.True(t, again[0].Entries["75"].Equal(decimal.RequireFromString("0.045")))
}
