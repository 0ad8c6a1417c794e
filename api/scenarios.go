/*
scenarios.go - Demo scenarios for testing and demonstrations

PURPOSE:

	Provides pre-built transactions that exercise the calculators against
	the tables currently in service. Each scenario demonstrates one
	feature: bracket emoluments, reduced new-build duty, the two abatement
	tracks, the surtax, an exemption, a combined sell-then-buy statement.

AVAILABLE SCENARIOS:

	paris-flat-purchase:  Built flat in Paris, 2019 emoluments schedule
	new-build-purchase:   New build, reduced duty and lower land-registry fee
	secondary-sale-15y:   Secondary home held 15 years, both tracks abated
	large-gain-surtax:    Gain large enough to trigger the surtax
	main-residence-sale:  Main residence, exempt whatever the gain
	sell-then-buy:        Sale and next purchase in one statement

HOW SCENARIOS WORK:
 1. Take the current snapshot
 2. Run the scenario's jobs on it
 3. Return the breakdown like any calculation endpoint

USAGE VIA API:

	POST /api/scenarios/secondary-sale-15y/run

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with ID, name, description, category
 2. Give it the facts and calculators in 'scenarioJobs'

NOTE:

	Scenarios never write anything: no transaction history is kept.

SEE ALSO:
  - handlers.go: Calculation handlers
  - factory/defaults/: Tables the scenarios resolve
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/notary-engine/generic"
	"github.com/warp/notary-engine/plusvalue"
	"github.com/warp/notary-engine/pretaxe"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "paris-flat-purchase",
		Name:        "Paris Flat Purchase",
		Description: "300,000 € built flat in Paris signed 2019-06-01",
		Category:    "pretaxe",
	},
	{
		ID:          "new-build-purchase",
		Name:        "New-Build Purchase",
		Description: "200,000 € new build in the Rhône: reduced duty",
		Category:    "pretaxe",
	},
	{
		ID:          "secondary-sale-15y",
		Name:        "Secondary Home Held 15 Years",
		Description: "Bought 200,000 € in 2010, sold 300,000 € in 2025",
		Category:    "plusvalue",
	},
	{
		ID:          "large-gain-surtax",
		Name:        "Large Gain With Surtax",
		Description: "Bought 100,000 € in 2010, sold 600,000 € in 2025",
		Category:    "plusvalue",
	},
	{
		ID:          "main-residence-sale",
		Name:        "Main Residence Sale",
		Description: "Main residence held 4 years: exempt",
		Category:    "plusvalue",
	},
	{
		ID:          "sell-then-buy",
		Name:        "Sell Then Buy",
		Description: "Sale of a secondary home and purchase of the next flat",
		Category:    "combined",
	},
}

func scenarioSale(acquisitionPrice int64, acquired string, price int64, disposed string, use generic.PropertyUse) generic.TransactionFacts {
	ap := generic.NewMoney(acquisitionPrice)
	dd := generic.MustParseDate(disposed)
	return generic.TransactionFacts{
		Price:            generic.NewMoney(price),
		AcquisitionPrice: &ap,
		AcquisitionDate:  generic.MustParseDate(acquired),
		DisposalDate:     &dd,
		Category:         generic.CategoryBuilt,
		Use:              use,
		Department:       "75",
	}
}

func scenarioPurchase(price int64, signed string, department string, category generic.PropertyCategory) generic.TransactionFacts {
	return generic.TransactionFacts{
		Price:           generic.NewMoney(price),
		AcquisitionDate: generic.MustParseDate(signed),
		Category:        category,
		Use:             generic.UseMainResidence,
		Department:      department,
	}
}

// scenarioJobs returns the calculations of a scenario, or nil if unknown.
func scenarioJobs(id string) []generic.Job {
	buy := pretaxe.NewCalculator()
	sell := plusvalue.NewCalculator()

	switch id {
	case "paris-flat-purchase":
		return []generic.Job{{Calculator: buy, Facts: scenarioPurchase(300000, "2019-06-01", "75", generic.CategoryBuilt)}}
	case "new-build-purchase":
		return []generic.Job{{Calculator: buy, Facts: scenarioPurchase(200000, "2024-03-01", "69", generic.CategoryNewBuild)}}
	case "secondary-sale-15y":
		return []generic.Job{{Calculator: sell, Facts: scenarioSale(200000, "2010-01-01", 300000, "2025-01-01", generic.UseSecondary)}}
	case "large-gain-surtax":
		return []generic.Job{{Calculator: sell, Facts: scenarioSale(100000, "2010-01-01", 600000, "2025-01-01", generic.UseSecondary)}}
	case "main-residence-sale":
		return []generic.Job{{Calculator: sell, Facts: scenarioSale(250000, "2021-03-01", 340000, "2025-03-01", generic.UseMainResidence)}}
	case "sell-then-buy":
		return []generic.Job{
			{Calculator: sell, Facts: scenarioSale(200000, "2010-01-01", 300000, "2025-01-01", generic.UseSecondary)},
			{Calculator: buy, Facts: scenarioPurchase(300000, "2025-02-01", "75", generic.CategoryBuilt)},
		}
	}
	return nil
}

// runScenario calculates a scenario on one snapshot. A single job keeps its
// own result kind; several are combined.
func runScenario(rates generic.RateSource, jobs []generic.Job) (*generic.CalculationResult, error) {
	if len(jobs) == 1 {
		return jobs[0].Calculator.Calculate(rates, jobs[0].Facts)
	}
	return generic.Combine(rates, jobs...)
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// RunScenario calculates a scenario against the current tables.
// POST /api/scenarios/{id}/run
func (h *Handler) RunScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	jobs := scenarioJobs(id)
	if jobs == nil {
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}

	result, err := runScenario(h.Registry.Snapshot(), jobs)
	if err != nil {
		h.writeCalculationError(w, r, err)
		return
	}

	h.Logger.Info("scenario run", "scenario", id, "total", result.Total.StringFixed(generic.CentPlaces))
	writeJSON(w, http.StatusOK, NewResultDTO(result))
}
