package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/warp/notary-engine/generic"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var titles = map[generic.ResultKind]string{
	generic.ResultPretaxe:   "Estimation des frais d'acquisition",
	generic.ResultPlusvalue: "Estimation de l'impôt sur la plus-value",
	generic.ResultCombined:  "Estimation vente et achat",
}

var sectionTitles = map[generic.ItemCategory]string{
	generic.ItemEmoluments:    "Émoluments",
	generic.ItemDuties:        "Droits et taxes",
	generic.ItemDisbursements: "Débours",
	generic.ItemGain:          "Plus-value",
	generic.ItemExemption:     "Exonération",
	generic.ItemAbatement:     "Abattements",
	generic.ItemTax:           "Impositions",
	generic.ItemSurtax:        "Surtaxe",
}

// formatter renders amounts with the locale's digit grouping and decimal
// separator.
type formatter struct {
	p   *message.Printer
	sep string
}

func newFormatter(tag language.Tag) formatter {
	p := message.NewPrinter(tag)
	sep := "."
	if runes := []rune(p.Sprintf("%.1f", 0.5)); len(runes) == 3 {
		sep = string(runes[1])
	}
	return formatter{p: p, sep: sep}
}

// Euros formats a cent-rounded amount without going through float64.
func (f formatter) Euros(m decimal.Decimal) string {
	m = generic.RoundCents(m)
	sign := ""
	if m.IsNegative() {
		sign = "-"
		m = m.Abs()
	}
	units := m.IntPart()
	cents := m.Sub(decimal.NewFromInt(units)).Shift(generic.CentPlaces).IntPart()
	return sign + f.p.Sprintf("%d", units) + f.sep + fmt.Sprintf("%02d", cents) + " €"
}

// Percent formats a fraction as a percentage: 0.03945 gives "3,945 %".
func (f formatter) Percent(r decimal.Decimal) string {
	return strings.Replace(generic.Percent(r).String(), ".", f.sep, 1) + " %"
}

func printResult(w io.Writer, f formatter, r *generic.CalculationResult) {
	fmt.Fprintln(w, titles[r.Kind])
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	var current generic.ItemCategory
	for i, item := range r.Items {
		if item.Category != current {
			current = item.Category
			fmt.Fprintf(tw, "%s\t\t\t\t\n", sectionTitles[current])
		}

		rate := ""
		if item.Rate != nil {
			rate = f.Percent(*item.Rate)
		}
		base := ""
		if !item.Base.IsZero() {
			base = f.Euros(item.Base)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t\n", item.Label, base, rate, f.Euros(item.Amount))
		if item.Note != "" {
			fmt.Fprintf(tw, "    %s\t\t\t\t\n", item.Note)
		}

		if i == len(r.Items)-1 || r.Items[i+1].Category != current {
			fmt.Fprintf(tw, "  Sous-total\t\t\t%s\t\n", f.Euros(r.Subtotal(current)))
		}
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t\n", f.Euros(r.Total))
	tw.Flush()

	refs := make([]string, len(r.Versions))
	for i, v := range r.Versions {
		refs[i] = v.String()
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Barèmes : %s\n", strings.Join(refs, ", "))
	fmt.Fprintln(w, r.Disclaimer)
}
