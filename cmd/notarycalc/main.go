/*
main.go - Command-line estimate calculator

PURPOSE:
  Runs a pretaxe or plusvalue calculation without a server, against the
  embedded statutory tables plus an optional directory of documents, and
  prints the breakdown with French number formatting.

USAGE:
  notarycalc pretaxe -price 300000 -date 2019-06-01 -dept 75 -category built
  notarycalc plusvalue -acq-price 200000 -acq-date 2010-01-01 \
      -price 300000 -disposal-date 2025-01-01 -use secondary
  notarycalc tables -as-of 2025-01-01

FLAGS (pretaxe and plusvalue):
  -price          Purchase price (pretaxe) or sale price (plusvalue)
  -date           Signing date (pretaxe only)
  -dept           Department code, e.g. 75, 2A, 971
  -category       built | new-build | bare-land
  -use            main-residence | secondary
  -acq-price      Original purchase price (plusvalue)
  -acq-date       Original purchase date (plusvalue)
  -disposal-date  Sale date (plusvalue)
  -costs          Declared acquisition costs
  -works          Declared improvement works
  -flat-costs     Use the statutory flat acquisition costs
  -flat-works     Use the statutory flat improvement works
  -exempt         Comma-separated exemptions
  -tables         Directory of extra rate documents, loaded after the defaults
  -lang           Output locale (default fr)
  -json           Print the raw breakdown as JSON

EXIT CODES:
  0 success, 1 calculation or table error, 2 usage error
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/notary-engine/api"
	"github.com/warp/notary-engine/factory"
	"github.com/warp/notary-engine/generic"
	"github.com/warp/notary-engine/plusvalue"
	"github.com/warp/notary-engine/pretaxe"
	"golang.org/x/text/language"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

const usage = "usage: notarycalc pretaxe|plusvalue|tables [flags]"

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	switch args[0] {
	case "pretaxe":
		return runCalculation(pretaxe.NewCalculator(), args[1:], stdout, stderr)
	case "plusvalue":
		return runCalculation(plusvalue.NewCalculator(), args[1:], stdout, stderr)
	case "tables":
		return runTables(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return 0
	}
	fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
	return 2
}

// =============================================================================
// CALCULATIONS
// =============================================================================

type calcFlags struct {
	price, acqPrice, costs, works string
	date, acqDate, disposalDate   string
	dept, category, use, exempt   string
	flatCosts, flatWorks          bool
	tablesDir, lang               string
	asJSON                        bool
}

func runCalculation(calc generic.Calculator, args []string, stdout, stderr io.Writer) int {
	var f calcFlags
	fs := flag.NewFlagSet(string(calc.Kind()), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.price, "price", "", "purchase or sale price")
	fs.StringVar(&f.date, "date", "", "signing date (pretaxe)")
	fs.StringVar(&f.dept, "dept", "", "department code")
	fs.StringVar(&f.category, "category", "built", "property category")
	fs.StringVar(&f.use, "use", "", "property use")
	fs.StringVar(&f.acqPrice, "acq-price", "", "original purchase price")
	fs.StringVar(&f.acqDate, "acq-date", "", "original purchase date")
	fs.StringVar(&f.disposalDate, "disposal-date", "", "sale date")
	fs.StringVar(&f.costs, "costs", "", "declared acquisition costs")
	fs.StringVar(&f.works, "works", "", "declared improvement works")
	fs.BoolVar(&f.flatCosts, "flat-costs", false, "statutory flat acquisition costs")
	fs.BoolVar(&f.flatWorks, "flat-works", false, "statutory flat improvement works")
	fs.StringVar(&f.exempt, "exempt", "", "comma-separated exemptions")
	fs.StringVar(&f.tablesDir, "tables", "", "directory of extra rate documents")
	fs.StringVar(&f.lang, "lang", "fr", "output locale")
	fs.BoolVar(&f.asJSON, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	facts, err := f.toFacts(calc.Kind())
	if err != nil {
		fmt.Fprintf(stderr, "invalid flags: %v\n", err)
		return 2
	}

	reg, err := loadRegistry(f.tablesDir)
	if err != nil {
		fmt.Fprintf(stderr, "rate tables: %v\n", err)
		return 1
	}

	result, err := calc.Calculate(reg.Snapshot(), facts)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", calc.Kind(), err)
		return 1
	}

	if f.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(api.NewResultDTO(result)); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	tag, err := language.Parse(f.lang)
	if err != nil {
		tag = language.French
	}
	printResult(stdout, newFormatter(tag), result)
	return 0
}

func (f calcFlags) toFacts(kind generic.ResultKind) (generic.TransactionFacts, error) {
	var facts generic.TransactionFacts
	var err error

	if facts.Price, err = parseAmount("price", f.price); err != nil {
		return facts, err
	}
	facts.Department = f.dept
	facts.Category = generic.PropertyCategory(f.category)
	facts.Use = generic.PropertyUse(f.use)
	facts.FlatAcquisitionCosts = f.flatCosts
	facts.FlatImprovementCosts = f.flatWorks

	if f.costs != "" {
		if facts.AcquisitionCosts, err = parseAmount("costs", f.costs); err != nil {
			return facts, err
		}
	}
	if f.works != "" {
		if facts.ImprovementCosts, err = parseAmount("works", f.works); err != nil {
			return facts, err
		}
	}
	if f.acqPrice != "" {
		ap, err := parseAmount("acq-price", f.acqPrice)
		if err != nil {
			return facts, err
		}
		facts.AcquisitionPrice = &ap
	}

	// pretaxe resolves rates on the signing date; plusvalue on the sale.
	if kind == generic.ResultPlusvalue && f.date != "" {
		return facts, errors.New("-date is not used by plusvalue; use -acq-date and -disposal-date")
	}
	acquired := f.acqDate
	if kind == generic.ResultPretaxe && f.date != "" {
		acquired = f.date
	}
	if acquired != "" {
		if facts.AcquisitionDate, err = generic.ParseDate(acquired); err != nil {
			return facts, err
		}
	}
	if f.disposalDate != "" {
		d, err := generic.ParseDate(f.disposalDate)
		if err != nil {
			return facts, err
		}
		facts.DisposalDate = &d
	}

	for _, e := range strings.Split(f.exempt, ",") {
		if e = strings.TrimSpace(e); e != "" {
			facts.Exemptions = append(facts.Exemptions, generic.Exemption(e))
		}
	}
	return facts, nil
}

func parseAmount(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	// Accept French input: "300 000,50" or "1.234,56". With a decimal
	// comma, dots can only be thousand separators.
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("-%s: %q is not an amount", name, s)
	}
	return d, nil
}

func loadRegistry(dir string) (*generic.Registry, error) {
	sources := []generic.Source{factory.EmbeddedSource()}
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, errors.New(dir + " is not a directory")
		}
		sources = append(sources, factory.DirSource(os.DirFS(dir), "."))
	}

	reg := generic.NewRegistry()
	if err := reg.Load(context.Background(), sources...); err != nil {
		return nil, err
	}
	return reg, nil
}

// =============================================================================
// TABLES
// =============================================================================

func runTables(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tables", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asOf := fs.String("as-of", "", "date (default today)")
	tablesDir := fs.String("tables", "", "directory of extra rate documents")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	date := generic.Today()
	if *asOf != "" {
		d, err := generic.ParseDate(*asOf)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -as-of: %v\n", err)
			return 2
		}
		date = d
	}

	reg, err := loadRegistry(*tablesDir)
	if err != nil {
		fmt.Fprintf(stderr, "rate tables: %v\n", err)
		return 1
	}

	snap := reg.Snapshot()
	for _, name := range snap.Names() {
		t, err := snap.Get(name, date)
		if err != nil {
			fmt.Fprintf(stdout, "%-32s  (none in force)\n", name)
			continue
		}
		fmt.Fprintf(stdout, "%-32s  %-8s  %-8s  since %s\n", name, t.Version, t.Kind, t.Validity.From)
	}
	return 0
}
