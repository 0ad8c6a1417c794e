/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY ON THE WIRE:
  Amounts and rates are decimal strings ("2847.41", "0.045"). Requests
  also accept bare JSON numbers; they are read from their literal text, so
  no float conversion happens on the way in.

TYPES:
  Calculations:
    FactsRequest, CombinedRequest, ResultDTO, LineItemDTO, TableRefDTO

  Rate tables:
    TableSummaryDTO, TableVersionDTO, factory.TableJSON (full table)

  Documents:
    UploadDocumentRequest, DocumentDTO, UploadResponse, DryRunDTO

  Admin:
    ReloadDTO, LoadDTO, HealthDTO

  Scenarios:
    ScenarioDTO

SEE ALSO:
  - handlers.go: Uses these types
  - factory/tables.go: TableJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/notary-engine/generic"
	"github.com/warp/notary-engine/store/sqlite"
)

// =============================================================================
// CALCULATION REQUESTS
// =============================================================================

// FactsRequest is the body of POST /api/pretaxe and /api/plusvalue.
type FactsRequest struct {
	Price                decimal.Decimal  `json:"price"`
	AcquisitionPrice     *decimal.Decimal `json:"acquisition_price,omitempty"`
	AcquisitionDate      generic.Date     `json:"acquisition_date"`
	DisposalDate         *generic.Date    `json:"disposal_date,omitempty"`
	Category             string           `json:"category,omitempty"`
	Use                  string           `json:"use,omitempty"`
	Department           string           `json:"department,omitempty"`
	AcquisitionCosts     *decimal.Decimal `json:"acquisition_costs,omitempty"`
	ImprovementCosts     *decimal.Decimal `json:"improvement_costs,omitempty"`
	FlatAcquisitionCosts bool             `json:"flat_acquisition_costs,omitempty"`
	FlatImprovementCosts bool             `json:"flat_improvement_costs,omitempty"`
	Exemptions           []string         `json:"exemptions,omitempty"`
}

// ToFacts converts the request. Range checks are left to the calculators.
func (r FactsRequest) ToFacts() generic.TransactionFacts {
	facts := generic.TransactionFacts{
		Price:                r.Price,
		AcquisitionPrice:     r.AcquisitionPrice,
		AcquisitionDate:      r.AcquisitionDate,
		DisposalDate:         r.DisposalDate,
		Category:             generic.PropertyCategory(r.Category),
		Use:                  generic.PropertyUse(r.Use),
		Department:           r.Department,
		FlatAcquisitionCosts: r.FlatAcquisitionCosts,
		FlatImprovementCosts: r.FlatImprovementCosts,
	}
	if r.AcquisitionCosts != nil {
		facts.AcquisitionCosts = *r.AcquisitionCosts
	}
	if r.ImprovementCosts != nil {
		facts.ImprovementCosts = *r.ImprovementCosts
	}
	for _, e := range r.Exemptions {
		facts.Exemptions = append(facts.Exemptions, generic.Exemption(e))
	}
	return facts
}

// CombinedRequest is a sell-then-buy project: the capital gain on the sale
// and the acquisition cost of the next purchase, in one statement.
type CombinedRequest struct {
	Sale     FactsRequest `json:"sale"`
	Purchase FactsRequest `json:"purchase"`
}

// =============================================================================
// CALCULATION RESPONSES
// =============================================================================

// ResultDTO is a calculation breakdown.
type ResultDTO struct {
	Kind       string            `json:"kind"`
	Items      []LineItemDTO     `json:"items"`
	Subtotals  map[string]string `json:"subtotals"`
	Total      string            `json:"total"`
	Versions   []TableRefDTO     `json:"versions"`
	Disclaimer string            `json:"disclaimer"`
}

// LineItemDTO is one row of a breakdown.
type LineItemDTO struct {
	Label    string  `json:"label"`
	Category string  `json:"category"`
	Base     string  `json:"base"`
	Rate     *string `json:"rate,omitempty"`
	Amount   string  `json:"amount"`
	Note     string  `json:"note,omitempty"`
}

// TableRefDTO identifies a consulted table version.
type TableRefDTO struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	EffectiveFrom string `json:"effective_from"`
}

// NewResultDTO renders a result with cent-fixed amounts.
func NewResultDTO(r *generic.CalculationResult) ResultDTO {
	dto := ResultDTO{
		Kind:       string(r.Kind),
		Items:      make([]LineItemDTO, len(r.Items)),
		Subtotals:  make(map[string]string),
		Total:      r.Total.StringFixed(generic.CentPlaces),
		Versions:   make([]TableRefDTO, len(r.Versions)),
		Disclaimer: r.Disclaimer,
	}
	for i, item := range r.Items {
		li := LineItemDTO{
			Label:    item.Label,
			Category: string(item.Category),
			Base:     item.Base.StringFixed(generic.CentPlaces),
			Amount:   item.Amount.StringFixed(generic.CentPlaces),
			Note:     item.Note,
		}
		if item.Rate != nil {
			rate := item.Rate.String()
			li.Rate = &rate
		}
		dto.Items[i] = li
		if _, ok := dto.Subtotals[li.Category]; !ok {
			dto.Subtotals[li.Category] = r.Subtotal(item.Category).StringFixed(generic.CentPlaces)
		}
	}
	for i, v := range r.Versions {
		dto.Versions[i] = TableRefDTO{Name: v.Name, Version: v.Version, EffectiveFrom: v.EffectiveFrom.String()}
	}
	return dto
}

// =============================================================================
// RATE TABLES
// =============================================================================

// TableSummaryDTO lists the versions of one table.
type TableSummaryDTO struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Basis    string            `json:"basis,omitempty"`
	Versions []TableVersionDTO `json:"versions"`
}

// TableVersionDTO is the validity of one version.
type TableVersionDTO struct {
	Version       string `json:"version"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to,omitempty"`
}

func toTableSummaries(snap *generic.Snapshot) []TableSummaryDTO {
	names := snap.Names()
	out := make([]TableSummaryDTO, 0, len(names))
	for _, name := range names {
		versions := snap.Versions(name)
		latest := versions[len(versions)-1]
		summary := TableSummaryDTO{
			Name:     name,
			Kind:     string(latest.Kind),
			Basis:    latest.Basis,
			Versions: make([]TableVersionDTO, len(versions)),
		}
		for i, v := range versions {
			tv := TableVersionDTO{Version: v.Version, EffectiveFrom: v.Validity.From.String()}
			if !v.Validity.To.IsZero() {
				tv.EffectiveTo = v.Validity.To.String()
			}
			summary.Versions[i] = tv
		}
		out = append(out, summary)
	}
	return out
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// UploadDocumentRequest stores a rate-table document. Format may be left
// empty: it is then detected from the content.
type UploadDocumentRequest struct {
	Name    string `json:"name"`
	Format  string `json:"format,omitempty"`
	Content string `json:"content"`
}

// DocumentDTO is a stored document without its content.
type DocumentDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Format     string `json:"format"`
	Checksum   string `json:"checksum"`
	TableCount int    `json:"table_count"`
	Revision   int    `json:"revision"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	Content    string `json:"content,omitempty"`
}

func toDocumentDTO(d sqlite.DocumentRecord) DocumentDTO {
	return DocumentDTO{
		ID:         d.ID,
		Name:       d.Name,
		Format:     string(d.Format),
		Checksum:   d.Checksum,
		TableCount: d.TableCount,
		Revision:   d.Revision,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}
}

// UploadResponse reports the stored document and the registry it produced.
type UploadResponse struct {
	Document DocumentDTO `json:"document"`
	Registry ReloadDTO   `json:"registry"`
}

// =============================================================================
// ADMIN
// =============================================================================

// DryRunDTO answers an upload checked with dry_run=true.
type DryRunDTO struct {
	Valid      bool `json:"valid"`
	TableCount int  `json:"table_count"`
}

// ReloadDTO describes the snapshot in service.
type ReloadDTO struct {
	Generation int64  `json:"generation"`
	TableCount int    `json:"table_count"`
	LoadedAt   string `json:"loaded_at"`
}

func toReloadDTO(snap *generic.Snapshot) ReloadDTO {
	if snap == nil {
		return ReloadDTO{}
	}
	return ReloadDTO{
		Generation: snap.Generation,
		TableCount: len(snap.Tables()),
		LoadedAt:   snap.LoadedAt.Format(time.RFC3339),
	}
}

// LoadDTO is one entry of the reload audit trail.
type LoadDTO struct {
	ID         string `json:"id"`
	Generation int64  `json:"generation"`
	TableCount int    `json:"table_count"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Origin     string `json:"origin"`
	LoadedAt   string `json:"loaded_at"`
}

// HealthDTO is the body of GET /api/health.
type HealthDTO struct {
	Status        string    `json:"status"`
	Registry      ReloadDTO `json:"registry"`
	SchemaVersion uint      `json:"schema_version,omitempty"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
