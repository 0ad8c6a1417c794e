package generic

import "fmt"

// =============================================================================
// CALCULATOR - Common contract of pretaxe and plusvalue
// =============================================================================

// Calculator turns facts into a breakdown using one rate source. It must be
// a pure function of its arguments: no I/O, no shared mutable state.
type Calculator interface {
	Kind() ResultKind
	Calculate(rates RateSource, facts TransactionFacts) (*CalculationResult, error)
}

// Job pairs a calculator with the facts it runs on. A sell-then-buy project
// is two jobs: plusvalue on the sale, pretaxe on the next purchase.
type Job struct {
	Calculator Calculator
	Facts      TransactionFacts
}

// Combine runs every job against the same rate source and merges the
// breakdowns into one combined result. The first error aborts the whole
// calculation and no partial result is returned.
func Combine(rates RateSource, jobs ...Job) (*CalculationResult, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("combine: no calculations")
	}
	builder := NewBuilder(ResultCombined)
	for _, job := range jobs {
		result, err := job.Calculator.Calculate(rates, job.Facts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", job.Calculator.Kind(), err)
		}
		builder.Merge(result)
	}
	return builder.Build()
}
