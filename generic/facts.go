package generic

import (
	"slices"
	"strings"
)

// =============================================================================
// TRANSACTION FACTS - Validated input of every calculation
// =============================================================================

// PropertyCategory is the legal nature of the property.
type PropertyCategory string

const (
	CategoryBuilt    PropertyCategory = "built"     // existing building ("ancien")
	CategoryNewBuild PropertyCategory = "new-build" // first transfer within 5 years of completion
	CategoryBareLand PropertyCategory = "bare-land" // land, including building plots
)

func (c PropertyCategory) Valid() bool {
	switch c {
	case CategoryBuilt, CategoryNewBuild, CategoryBareLand:
		return true
	}
	return false
}

// PropertyUse is how the seller occupied the property.
type PropertyUse string

const (
	UseMainResidence PropertyUse = "main-residence"
	UseSecondary     PropertyUse = "secondary"
)

func (u PropertyUse) Valid() bool {
	return u == UseMainResidence || u == UseSecondary
}

// Exemption is a capital-gains exemption declared by the seller.
type Exemption string

const (
	ExemptionMainResidence Exemption = "main-residence"
	ExemptionFullDuration  Exemption = "full-duration"
	ExemptionFirstSale     Exemption = "first-sale"
)

func (e Exemption) Valid() bool {
	switch e {
	case ExemptionMainResidence, ExemptionFullDuration, ExemptionFirstSale:
		return true
	}
	return false
}

// TransactionFacts is the immutable input of a calculation.
//
// For pretaxe, Price is the purchase price and AcquisitionDate the signing
// date. For plusvalue, Price is the disposal price and AcquisitionPrice the
// original purchase price.
type TransactionFacts struct {
	Price            Money
	AcquisitionPrice *Money
	AcquisitionDate  Date
	DisposalDate     *Date // nil = not yet sold

	Category   PropertyCategory
	Use        PropertyUse
	Department string

	AcquisitionCosts Money
	ImprovementCosts Money

	// Statutory flat amounts replace the declared costs when set.
	FlatAcquisitionCosts bool
	FlatImprovementCosts bool

	Exemptions []Exemption
}

// HasExemption reports whether e was declared.
func (f TransactionFacts) HasExemption(e Exemption) bool {
	return slices.Contains(f.Exemptions, e)
}

// Sold reports whether a disposal date is known.
func (f TransactionFacts) Sold() bool { return f.DisposalDate != nil && !f.DisposalDate.IsZero() }

// Validate checks value ranges shared by every calculator. Calculators add
// their own requirements on top (see MissingFactError).
func (f TransactionFacts) Validate() error {
	if !f.Price.IsPositive() {
		return &InvalidInputError{Field: "price", Reason: "must be greater than zero"}
	}
	if f.AcquisitionPrice != nil && f.AcquisitionPrice.IsNegative() {
		return &InvalidInputError{Field: "acquisition_price", Reason: "must not be negative"}
	}
	if f.AcquisitionCosts.IsNegative() {
		return &InvalidInputError{Field: "acquisition_costs", Reason: "must not be negative"}
	}
	if f.ImprovementCosts.IsNegative() {
		return &InvalidInputError{Field: "improvement_costs", Reason: "must not be negative"}
	}
	if f.Category != "" && !f.Category.Valid() {
		return &InvalidInputError{Field: "category", Reason: "unknown property category " + string(f.Category)}
	}
	if f.Use != "" && !f.Use.Valid() {
		return &InvalidInputError{Field: "use", Reason: "unknown property use " + string(f.Use)}
	}
	if f.Department != strings.TrimSpace(f.Department) {
		return &InvalidInputError{Field: "department", Reason: "surrounding whitespace in department code"}
	}
	for _, e := range f.Exemptions {
		if !e.Valid() {
			return &InvalidInputError{Field: "exemptions", Reason: "unknown exemption " + string(e)}
		}
	}
	if f.Sold() && !f.AcquisitionDate.IsZero() && f.DisposalDate.Before(f.AcquisitionDate) {
		return &InvalidInputError{Field: "disposal_date", Reason: "is before acquisition_date"}
	}
	return nil
}
