/*
handlers.go - HTTP API handlers for the notarial engine

PURPOSE:
  Exposes the calculators and the rate registry via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Calculations:
    POST   /api/pretaxe                Acquisition cost estimate
    POST   /api/plusvalue              Capital-gains tax estimate
    POST   /api/combined               Sale + next purchase, one statement

  Rate tables:
    GET    /api/tables                 Tables and their versions
    GET    /api/tables/{name}?as_of=   Version in force on a date
    POST   /api/tables                 Store a document, then reload
    POST   /api/tables?dry_run=true    Check a document, store nothing

  Documents:
    GET    /api/documents              Stored documents
    GET    /api/documents/{id}         One document with its content
    DELETE /api/documents/{id}         Remove a document, then reload

  Admin:
    POST   /api/admin/reload           Re-read every source
    GET    /api/admin/loads            Reload audit trail

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/{id}/run     Run a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Registry: The published rate snapshot
  - Store: Uploaded documents (optional; nil serves embedded tables only)
  - Logger: Structured logs

  Each calculation takes one Snapshot up front and uses it throughout, so a
  concurrent reload never mixes two table sets in one result.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, missing fact, malformed body
  - 404: Unknown table, jurisdiction, version or document
  - 422: Rejected rate-table document
  - 500: Internal errors, broken rate configuration during a calculation
  - 503: Registry not loaded yet

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Uploads change every later calculation; put /api/tables and /api/admin
  behind the operator network.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenarios
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/notary-engine/factory"
	"github.com/warp/notary-engine/generic"
	"github.com/warp/notary-engine/plusvalue"
	"github.com/warp/notary-engine/pretaxe"
	"github.com/warp/notary-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry *generic.Registry
	Store    *sqlite.Store
	Logger   *slog.Logger

	pretaxe   generic.Calculator
	plusvalue generic.Calculator

	// writes serializes store changes with the reload that follows them.
	writes sync.Mutex
}

// NewHandler creates a handler. store may be nil.
func NewHandler(reg *generic.Registry, store *sqlite.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Registry:  reg,
		Store:     store,
		Logger:    logger,
		pretaxe:   pretaxe.NewCalculator(),
		plusvalue: plusvalue.NewCalculator(),
	}
}

// Sources lists where tables come from, in override order: embedded
// statutory defaults first, uploaded documents last.
func (h *Handler) Sources() []generic.Source {
	sources := []generic.Source{factory.EmbeddedSource()}
	if h.Store != nil {
		sources = append(sources, h.Store)
	}
	return sources
}

// Reload re-reads every source and publishes a new snapshot. The attempt
// is recorded in the audit trail whatever its outcome.
func (h *Handler) Reload(ctx context.Context, origin string) (*generic.Snapshot, error) {
	loadErr := h.Registry.Load(ctx, h.Sources()...)
	snap := h.Registry.Snapshot()

	if h.Store != nil {
		rec := sqlite.LoadRecord{Status: sqlite.LoadApplied, Origin: origin}
		if snap != nil {
			rec.Generation = snap.Generation
			rec.TableCount = len(snap.Tables())
		}
		if loadErr != nil {
			rec.Status = sqlite.LoadRejected
			rec.Error = loadErr.Error()
		}
		if _, err := h.Store.RecordLoad(ctx, rec); err != nil {
			h.Logger.Warn("failed to record registry load", "error", err)
		}
	}

	if loadErr != nil {
		h.Logger.Error("registry reload rejected", "origin", origin, "error", loadErr)
		return snap, loadErr
	}
	h.Logger.Info("registry reloaded",
		"origin", origin,
		"generation", snap.Generation,
		"tables", len(snap.Names()),
	)
	return snap, nil
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// CalculatePretaxe estimates the acquisition cost of a purchase.
// POST /api/pretaxe
func (h *Handler) CalculatePretaxe(w http.ResponseWriter, r *http.Request) {
	h.calculate(w, r, h.pretaxe)
}

// CalculatePlusvalue estimates the capital-gains tax on a sale.
// POST /api/plusvalue
func (h *Handler) CalculatePlusvalue(w http.ResponseWriter, r *http.Request) {
	h.calculate(w, r, h.plusvalue)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request, calc generic.Calculator) {
	var req FactsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	snap := h.Registry.Snapshot()
	result, err := calc.Calculate(snap, req.ToFacts())
	if err != nil {
		h.writeCalculationError(w, r, err)
		return
	}

	h.Logger.Debug("calculation done",
		"kind", result.Kind,
		"generation", snap.Generation,
		"total", result.Total.StringFixed(generic.CentPlaces),
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusOK, NewResultDTO(result))
}

// CalculateCombined runs the sale and the purchase on one snapshot.
// POST /api/combined
func (h *Handler) CalculateCombined(w http.ResponseWriter, r *http.Request) {
	var req CombinedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := generic.Combine(h.Registry.Snapshot(),
		generic.Job{Calculator: h.plusvalue, Facts: req.Sale.ToFacts()},
		generic.Job{Calculator: h.pretaxe, Facts: req.Purchase.ToFacts()},
	)
	if err != nil {
		h.writeCalculationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewResultDTO(result))
}

// =============================================================================
// RATE TABLE HANDLERS
// =============================================================================

// ListTables returns every table with its versions.
// GET /api/tables
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	snap := h.Registry.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "Rate registry not loaded", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTableSummaries(snap))
}

// GetTable returns the version of a table in force on as_of (default today).
// GET /api/tables/{name}?as_of=2025-01-01
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	asOf := generic.Today()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return
		}
		asOf = d
	}

	table, err := h.Registry.Get(name, asOf)
	if err != nil {
		writeError(w, statusFor(err), "Rate table lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ToJSON(table))
}

// UploadDocument validates a document against everything already loaded,
// stores it and reloads the registry.
// POST /api/tables
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Document storage is disabled", nil)
		return
	}

	var req UploadDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Document name is required", nil)
		return
	}
	content := []byte(req.Content)

	format := factory.DetectFormat(req.Name, content)
	if req.Format != "" {
		f, err := factory.ParseFormat(req.Format)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid document format", err)
			return
		}
		format = f
	}

	ctx := r.Context()
	if r.URL.Query().Get("dry_run") == "true" {
		stored, err := h.Store.Preview(ctx, req.Name, format, content)
		if err == nil {
			err = checkStored(stored)
		}
		if err != nil {
			writeError(w, statusFor(err), "Rate-table document rejected", err)
			return
		}
		writeJSON(w, http.StatusOK, DryRunDTO{Valid: true, TableCount: len(stored)})
		return
	}

	h.writes.Lock()
	defer h.writes.Unlock()

	doc, err := h.Store.SaveChecked(ctx, req.Name, format, content, checkStored)
	if err != nil {
		writeError(w, statusFor(err), "Rate-table document rejected", err)
		return
	}

	snap, err := h.Reload(ctx, "upload")
	if err != nil {
		writeError(w, statusFor(err), "Document stored but registry reload failed", err)
		return
	}

	h.Logger.Info("rate-table document stored",
		"name", doc.Name,
		"revision", doc.Revision,
		"tables", doc.TableCount,
	)
	writeJSON(w, http.StatusCreated, UploadResponse{
		Document: toDocumentDTO(doc),
		Registry: toReloadDTO(snap),
	})
}

// checkStored builds, without publishing, the snapshot a reload would
// produce from the embedded defaults and the given stored set, so a
// document that breaks a cross-document invariant is never stored.
func checkStored(stored []generic.RateTable) error {
	embedded, err := factory.DefaultTables()
	if err != nil {
		return fmt.Errorf("embedded tables: %w", err)
	}
	_, err = generic.BuildSnapshot(append(embedded, stored...))
	return err
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// ListDocuments returns stored documents, without content.
// GET /api/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusOK, []DocumentDTO{})
		return
	}

	docs, err := h.Store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list documents", err)
		return
	}

	dtos := make([]DocumentDTO, len(docs))
	for i, d := range docs {
		dtos[i] = toDocumentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDocument returns one document with its content.
// GET /api/documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotFound, "Document not found", nil)
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "Failed to get document", err)
		return
	}

	dto := toDocumentDTO(*doc)
	dto.Content = doc.Content
	writeJSON(w, http.StatusOK, dto)
}

// DeleteDocument removes a document and reloads the registry.
// DELETE /api/documents/{id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotFound, "Document not found", nil)
		return
	}

	h.writes.Lock()
	defer h.writes.Unlock()

	ctx := r.Context()
	if err := h.Store.DeleteDocument(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), "Failed to delete document", err)
		return
	}

	snap, err := h.Reload(ctx, "delete")
	if err != nil {
		writeError(w, statusFor(err), "Document deleted but registry reload failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReloadDTO(snap))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerReload re-reads every source.
// POST /api/admin/reload
func (h *Handler) TriggerReload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Reload(r.Context(), "admin")
	if err != nil {
		writeError(w, statusFor(err), "Registry reload rejected; previous tables still in service", err)
		return
	}
	writeJSON(w, http.StatusOK, toReloadDTO(snap))
}

// ListLoads returns the reload audit trail, newest first.
// GET /api/admin/loads
func (h *Handler) ListLoads(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusOK, []LoadDTO{})
		return
	}

	loads, err := h.Store.ListLoads(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loads", err)
		return
	}

	dtos := make([]LoadDTO, len(loads))
	for i, l := range loads {
		dtos[i] = LoadDTO{
			ID:         l.ID,
			Generation: l.Generation,
			TableCount: l.TableCount,
			Status:     string(l.Status),
			Error:      l.Error,
			Origin:     l.Origin,
			LoadedAt:   l.LoadedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health reports the snapshot in service.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.Registry.Snapshot()
	resp := HealthDTO{Status: "ok", Registry: toReloadDTO(snap)}
	if snap == nil {
		resp.Status = "loading"
	}
	if h.Store != nil {
		if v, _, err := h.Store.SchemaVersion(); err == nil {
			resp.SchemaVersion = v
		}
	}

	status := http.StatusOK
	if snap == nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrRegistryNotLoaded):
		return http.StatusServiceUnavailable
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err), errors.Is(err, sqlite.ErrDocumentNotFound):
		return http.StatusNotFound
	case generic.IsConfigError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeCalculationError is statusFor, except that a configuration problem
// found while calculating is the server's fault, not the caller's.
func (h *Handler) writeCalculationError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusUnprocessableEntity {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("calculation failed",
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	writeError(w, status, "Calculation failed", err)
}
