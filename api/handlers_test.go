/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Calculation endpoints and error statuses
- Rate-table lookup by date
- Document upload with dry-run validation, deletion, reload
- Background reload scheduler
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/notary-engine/factory"
	"github.com/warp/notary-engine/generic"
	"github.com/warp/notary-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "notary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(generic.NewRegistry(), store, quietLogger())
	_, err = h.Reload(context.Background(), "startup")
	require.NoError(t, err)
	return h
}

func doRequest(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewRouter(h, []string{"*"}).ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const parisPurchase = `{
	"price": "300000",
	"acquisition_date": "2019-06-01",
	"department": "75",
	"category": "built"
}`

const secondarySale = `{
	"price": 300000,
	"acquisition_price": 200000,
	"acquisition_date": "2010-01-01",
	"disposal_date": "2025-01-01",
	"category": "built",
	"use": "secondary"
}`

const vat2026 = "tables:\n  - {name: emoluments-vat, version: \"2026\", kind: flat, effective_from: \"2026-01-01\", rate: \"0.21\"}\n"

// =============================================================================
// CALCULATIONS
// =============================================================================

func TestCalculatePretaxe_Success(t *testing.T) {
	// GIVEN: A 300,000 € built flat in Paris signed 2019-06-01
	// WHEN: POST /api/pretaxe
	// THEN: Emoluments first, totals as decimal strings

	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/pretaxe", parisPurchase)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeBody[ResultDTO](t, rec)
	assert.Equal(t, "pretaxe", result.Kind)
	assert.Equal(t, "22686.84", result.Total)
	assert.Equal(t, "2847.41", result.Items[0].Amount)
	assert.Equal(t, "17419.95", result.Subtotals["duties"])
	assert.Equal(t, generic.Disclaimer, result.Disclaimer)
	assert.NotEmpty(t, result.Versions)
}

func TestCalculatePlusvalue_Success(t *testing.T) {
	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/plusvalue", secondarySale)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeBody[ResultDTO](t, rec)
	assert.Equal(t, "plusvalue", result.Kind)
	assert.Equal(t, "21962.00", result.Total)
	assert.Equal(t, "21962.00", result.Subtotals["tax"])
}

func TestCalculateCombined_SumsBothStatements(t *testing.T) {
	h := setupTestHandler(t)

	purchase := `{"price":"300000","acquisition_date":"2025-02-01","department":"75","category":"built"}`
	body := `{"sale":` + secondarySale + `,"purchase":` + purchase + `}`

	rec := doRequest(t, h, http.MethodPost, "/api/combined", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	combined := decodeBody[ResultDTO](t, rec)

	buy := decodeBody[ResultDTO](t, doRequest(t, h, http.MethodPost, "/api/pretaxe", purchase))
	sell := decodeBody[ResultDTO](t, doRequest(t, h, http.MethodPost, "/api/plusvalue", secondarySale))

	want := decimal.RequireFromString(buy.Total).Add(decimal.RequireFromString(sell.Total))
	assert.True(t, decimal.RequireFromString(combined.Total).Equal(want), "combined %s", combined.Total)
	assert.Equal(t, "combined", combined.Kind)
	assert.Equal(t, "emoluments", combined.Items[0].Category)
}

func TestCalculate_ErrorStatuses(t *testing.T) {
	h := setupTestHandler(t)

	cases := map[string]struct {
		path string
		body string
		want int
	}{
		"unknown department": {"/api/pretaxe", `{"price":"300000","acquisition_date":"2019-06-01","department":"99","category":"built"}`, http.StatusNotFound},
		"missing date":       {"/api/pretaxe", `{"price":"300000","department":"75","category":"built"}`, http.StatusBadRequest},
		"negative price":     {"/api/pretaxe", `{"price":"-1","acquisition_date":"2019-06-01","department":"75","category":"built"}`, http.StatusBadRequest},
		"no version in 2010": {"/api/pretaxe", `{"price":"300000","acquisition_date":"2010-06-01","department":"75","category":"built"}`, http.StatusNotFound},
		"unknown field":      {"/api/pretaxe", `{"price":"300000","prix":"1"}`, http.StatusBadRequest},
		"bad date":           {"/api/pretaxe", `{"price":"300000","acquisition_date":"01/06/2019"}`, http.StatusBadRequest},
		"sold before bought": {"/api/plusvalue", `{"price":"300000","acquisition_price":"200000","acquisition_date":"2025-01-01","disposal_date":"2024-01-01"}`, http.StatusBadRequest},
		"missing sale price": {"/api/plusvalue", `{"price":"300000","acquisition_date":"2010-01-01","disposal_date":"2025-01-01"}`, http.StatusBadRequest},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())

			resp := decodeBody[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCalculate_RegistryNotLoaded(t *testing.T) {
	h := NewHandler(generic.NewRegistry(), nil, quietLogger())

	rec := doRequest(t, h, http.MethodPost, "/api/pretaxe", parisPurchase)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// =============================================================================
// RATE TABLES
// =============================================================================

func TestListTables(t *testing.T) {
	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tables := decodeBody[[]TableSummaryDTO](t, rec)
	byName := make(map[string]TableSummaryDTO)
	for _, s := range tables {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "emoluments")
	assert.Len(t, byName["emoluments"].Versions, 2)
	assert.Equal(t, "brackets", byName["emoluments"].Kind)
}

func TestGetTable_ByDate(t *testing.T) {
	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/tables/emoluments?as_of=2020-01-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	table := decodeBody[factory.TableJSON](t, rec)
	assert.Equal(t, "2016", table.Version)
	assert.Len(t, table.Brackets, 4)

	rec = doRequest(t, h, http.MethodGet, "/api/tables/emoluments?as_of=2021-01-01", nil)
	assert.Equal(t, "2021", decodeBody[factory.TableJSON](t, rec).Version)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, h, http.MethodGet, "/api/tables/emoluments?as_of=2021", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, h, http.MethodGet, "/api/tables/unknown", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, h, http.MethodGet, "/api/tables/emoluments?as_of=2010-01-01", nil).Code)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestUploadDocument_StoresAndReloads(t *testing.T) {
	// GIVEN: The embedded tables in service
	// WHEN: A document adds a 2026 VAT version
	// THEN: 201, new generation, 2026 dates resolve the new rate

	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/tables", UploadDocumentRequest{Name: "vat-2026.yaml", Content: vat2026})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[UploadResponse](t, rec)
	assert.Equal(t, "yaml", resp.Document.Format)
	assert.Equal(t, 1, resp.Document.Revision)
	assert.Equal(t, int64(2), resp.Registry.Generation)

	table := decodeBody[factory.TableJSON](t, doRequest(t, h, http.MethodGet, "/api/tables/emoluments-vat?as_of=2026-06-01", nil))
	require.NotNil(t, table.Rate)
	assert.True(t, table.Rate.Equal(decimal.RequireFromString("0.21")))

	docs := decodeBody[[]DocumentDTO](t, doRequest(t, h, http.MethodGet, "/api/documents", nil))
	require.Len(t, docs, 1)
	assert.Empty(t, docs[0].Content)

	doc := decodeBody[DocumentDTO](t, doRequest(t, h, http.MethodGet, "/api/documents/"+docs[0].ID, nil))
	assert.Equal(t, vat2026, doc.Content)
}

func TestUploadDocument_Rejected(t *testing.T) {
	h := setupTestHandler(t)

	cases := map[string]struct {
		req  UploadDocumentRequest
		want int
	}{
		"no name":         {UploadDocumentRequest{Content: vat2026}, http.StatusBadRequest},
		"bad format name": {UploadDocumentRequest{Name: "vat", Format: "toml", Content: vat2026}, http.StatusBadRequest},
		"malformed":       {UploadDocumentRequest{Name: "vat.yaml", Content: "tables: ["}, http.StatusUnprocessableEntity},
		"bracket gap": {UploadDocumentRequest{Name: "emol.json", Content: `{"tables":[{"name":"emoluments","version":"2027","kind":"brackets","effective_from":"2027-01-01",
			"brackets":[{"from":"0","to":"6500","rate":"0.04"},{"from":"7000","rate":"0.01"}]}]}`}, http.StatusUnprocessableEntity},
		// Different version, same date as the embedded 2014 VAT.
		"duplicate effective date": {UploadDocumentRequest{Name: "vat.yaml", Content: "tables:\n  - {name: emoluments-vat, version: bis, kind: flat, effective_from: \"2014-01-01\", rate: \"0.2\"}\n"}, http.StatusUnprocessableEntity},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/tables", tc.req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	// Nothing reached the database, and the snapshot never changed.
	docs := decodeBody[[]DocumentDTO](t, doRequest(t, h, http.MethodGet, "/api/documents", nil))
	assert.Empty(t, docs)
	assert.Equal(t, int64(1), h.Registry.Snapshot().Generation)
}

func TestUploadDocument_ConcurrentConflictingUploads(t *testing.T) {
	// GIVEN: Two documents that each add a VAT version dated 2026-01-01
	// WHEN: Both are uploaded at the same time
	// THEN: One lands, the other is rejected, and reloads keep working

	h := setupTestHandler(t)

	bodies := make([]string, 2)
	for i, version := range []string{"A", "B"} {
		data, err := json.Marshal(UploadDocumentRequest{
			Name:    "vat-" + version + ".yaml",
			Content: "tables:\n  - {name: emoluments-vat, version: " + version + ", kind: flat, effective_from: \"2026-01-01\", rate: \"0.21\"}\n",
		})
		require.NoError(t, err)
		bodies[i] = string(data)
	}

	codes := make([]int, len(bodies))
	var wg sync.WaitGroup
	for i, body := range bodies {
		i, body := i, body
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/tables", strings.NewReader(body))
			rec := httptest.NewRecorder()
			NewRouter(h, []string{"*"}).ServeHTTP(rec, req)
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusUnprocessableEntity}, codes)

	docs := decodeBody[[]DocumentDTO](t, doRequest(t, h, http.MethodGet, "/api/documents", nil))
	assert.Len(t, docs, 1)

	_, err := h.Reload(context.Background(), "admin")
	assert.NoError(t, err)
}

func TestUploadDocument_DryRun(t *testing.T) {
	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/tables?dry_run=true", UploadDocumentRequest{Name: "vat-2026.yaml", Content: vat2026})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[DryRunDTO](t, rec)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.TableCount)

	conflicting := "tables:\n  - {name: emoluments-vat, version: bis, kind: flat, effective_from: \"2014-01-01\", rate: \"0.2\"}\n"
	rec = doRequest(t, h, http.MethodPost, "/api/tables?dry_run=true", UploadDocumentRequest{Name: "vat.yaml", Content: conflicting})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	docs := decodeBody[[]DocumentDTO](t, doRequest(t, h, http.MethodGet, "/api/documents", nil))
	assert.Empty(t, docs)
	assert.Equal(t, int64(1), h.Registry.Snapshot().Generation)
}

func TestDeleteDocument_RestoresDefaults(t *testing.T) {
	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/tables", UploadDocumentRequest{Name: "vat", Format: "yaml", Content: vat2026})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody[UploadResponse](t, rec).Document.ID

	rec = doRequest(t, h, http.MethodDelete, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	table := decodeBody[factory.TableJSON](t, doRequest(t, h, http.MethodGet, "/api/tables/emoluments-vat?as_of=2026-06-01", nil))
	assert.Equal(t, "2014", table.Version)

	assert.Equal(t, http.StatusNotFound, doRequest(t, h, http.MethodDelete, "/api/documents/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, h, http.MethodGet, "/api/documents/"+id, nil).Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestTriggerReload_RecordsAuditTrail(t *testing.T) {
	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/admin/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeBody[ReloadDTO](t, rec).Generation)

	loads := decodeBody[[]LoadDTO](t, doRequest(t, h, http.MethodGet, "/api/admin/loads", nil))
	require.Len(t, loads, 2)
	assert.Equal(t, "admin", loads[0].Origin)
	assert.Equal(t, "startup", loads[1].Origin)
	assert.Equal(t, "applied", loads[0].Status)
}

func TestHealth(t *testing.T) {
	h := setupTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	health := decodeBody[HealthDTO](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, int64(1), health.Registry.Generation)
	assert.Equal(t, uint(2), health.SchemaVersion)
	assert.Positive(t, health.Registry.TableCount)
}

func TestReloadScheduler_PicksUpExternalChanges(t *testing.T) {
	// GIVEN: A scheduler baselined on the documents at startup
	// WHEN: Another instance stores a document directly
	// THEN: The next check reloads; the one after is a no-op

	h := setupTestHandler(t)
	rs := NewReloadScheduler(h.Store, h)
	fp, err := rs.fingerprint(context.Background())
	require.NoError(t, err)
	rs.lastFingerprint = fp

	assert.False(t, rs.CheckOnce(context.Background()))

	_, err = h.Store.SaveDocument(context.Background(), "vat-2026", factory.FormatYAML, []byte(vat2026))
	require.NoError(t, err)

	assert.True(t, rs.CheckOnce(context.Background()))
	assert.Equal(t, int64(2), h.Registry.Snapshot().Generation)
	assert.False(t, rs.CheckOnce(context.Background()))

	tbl, err := h.Registry.Get("emoluments-vat", generic.MustParseDate("2026-06-01"))
	require.NoError(t, err)
	assert.Equal(t, "2026", tbl.Version)
}

func TestReloadScheduler_StartStop(t *testing.T) {
	h := setupTestHandler(t)
	rs := NewReloadScheduler(h.Store, h)
	rs.CheckInterval = 10 * time.Millisecond

	rs.Start()
	rs.Stop()
	rs.Stop()
}

func TestReloadScheduler_Restart(t *testing.T) {
	// GIVEN: A scheduler that was started and stopped once
	// WHEN: It is started again and a document is stored behind its back
	// THEN: The restarted loop still reloads, and stopping again is clean

	h := setupTestHandler(t)
	rs := NewReloadScheduler(h.Store, h)
	rs.CheckInterval = 10 * time.Millisecond

	rs.Start()
	rs.Stop()
	rs.Start()
	defer rs.Stop()

	_, err := h.Store.SaveDocument(context.Background(), "vat-2026", factory.FormatYAML, []byte(vat2026))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return h.Registry.Snapshot().Generation == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotPanics(t, rs.Stop)
}
