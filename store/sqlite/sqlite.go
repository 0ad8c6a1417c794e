/*
Package sqlite persists uploaded rate-table documents and registry reloads.

PURPOSE:
  The statutory tables ship embedded in the binary. Operators add new
  fiscal-year versions (or correct a department rate) by uploading a
  document; this store keeps those documents and serves them to the
  registry as a generic.Source, listed after the embedded defaults so an
  upload overrides a default with the same name and version.

KEY TABLES:
  rate_table_documents: One row per uploaded document (JSON or YAML)
  registry_loads:       Audit trail of every registry reload attempt

  The engine keeps no transaction history: calculations are never stored.

SCHEMA:
  Versioned migrations under migrations/ are embedded and applied on New()
  with golang-migrate (iofs source, sqlite3 driver).

VALIDATION:
  SaveDocument parses the document before writing it. A document that
  cannot be converted is rejected with a generic.ConfigError and never
  reaches the database. SaveChecked also runs a caller check over the
  whole stored set (duplicate effective dates, overlaps) inside the write
  transaction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single connection so that
  ":memory:" databases behave like files. Transactions begin IMMEDIATE
  (_txlock=immediate): the write lock is taken up front, so another
  process sharing the file cannot save between our check and our write.

USAGE:
  store, err := sqlite.New("./data/notary.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  reg.Load(ctx, factory.EmbeddedSource(), store)

SEE ALSO:
  - factory/tables.go: Document parsing
  - generic/registry.go: Source interface
*/
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/patrickmn/go-cache"
	"github.com/warp/notary-engine/factory"
	"github.com/warp/notary-engine/generic"
)

// ErrDocumentNotFound is returned when no document has the requested ID.
var ErrDocumentNotFound = errors.New("rate table document not found")

// Store implements generic.Source on top of SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// parsed caches converted tables by document checksum, so a reload
	// only parses documents that changed.
	parsed *cache.Cache
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		db:     db,
		parsed: cache.New(time.Hour, 2*time.Hour),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// RATE TABLE DOCUMENTS
// =============================================================================

// DocumentRecord is a stored rate-table document.
type DocumentRecord struct {
	ID         string
	Name       string
	Format     factory.Format
	Content    string
	Checksum   string
	TableCount int
	Revision   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Checker vets the complete stored table set a save would produce. A
// non-nil error aborts the save.
type Checker func(stored []generic.RateTable) error

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveDocument validates and stores a document. Saving under an existing
// name replaces its content and bumps the revision. The stored record is
// returned.
func (s *Store) SaveDocument(ctx context.Context, name string, format factory.Format, content []byte) (DocumentRecord, error) {
	return s.SaveChecked(ctx, name, format, content, nil)
}

// SaveChecked is SaveDocument with a cross-document check. The check sees
// the stored documents and the write happens in one immediate transaction,
// so two uploads cannot both pass against a set that holds neither.
func (s *Store) SaveChecked(ctx context.Context, name string, format factory.Format, content []byte, check Checker) (DocumentRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DocumentRecord{}, &generic.InvalidInputError{Field: "name", Reason: "document name is required"}
	}

	tables, err := factory.ParseDocument(content, format)
	if err != nil {
		return DocumentRecord{}, err
	}
	for _, t := range tables {
		if err := generic.ValidateTable(t); err != nil {
			return DocumentRecord{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("begin save %s: %w", name, err)
	}
	defer tx.Rollback()

	if check != nil {
		docs, err := listDocuments(ctx, tx)
		if err != nil {
			return DocumentRecord{}, fmt.Errorf("list documents: %w", err)
		}
		merged, err := s.withCandidate(docs, name, tables)
		if err != nil {
			return DocumentRecord{}, err
		}
		if err := check(merged); err != nil {
			return DocumentRecord{}, err
		}
	}

	checksum := checksumOf(content)
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO rate_table_documents (id, name, format, content, checksum, table_count, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			format = excluded.format,
			content = excluded.content,
			checksum = excluded.checksum,
			table_count = excluded.table_count,
			revision = rate_table_documents.revision + 1,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query,
		uuid.NewString(), name, string(format), string(content), checksum, len(tables), now, now,
	); err != nil {
		return DocumentRecord{}, fmt.Errorf("save document %s: %w", name, err)
	}

	rec, err := scanOne(ctx, tx, "SELECT "+documentColumns+" FROM rate_table_documents WHERE name = ?", name)
	if err != nil {
		return DocumentRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return DocumentRecord{}, fmt.Errorf("commit document %s: %w", name, err)
	}
	s.parsed.SetDefault(checksum, tables)
	return *rec, nil
}

// GetDocument returns one document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanOne(ctx, s.db, "SELECT "+documentColumns+" FROM rate_table_documents WHERE id = ?", id)
}

// ListDocuments returns every document in upload order.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listDocuments(ctx, s.db)
}

func listDocuments(ctx context.Context, q queryer) ([]DocumentRecord, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM rate_table_documents ORDER BY created_at, rowid",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document. Returns ErrDocumentNotFound when no
// document has that ID.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM rate_table_documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// Tables implements generic.Source: every stored document, converted.
func (s *Store) Tables(ctx context.Context) ([]generic.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := listDocuments(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var tables []generic.RateTable
	for _, d := range docs {
		ts, err := s.convert(d)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", d.Name, err)
		}
		tables = append(tables, ts...)
	}
	return tables, nil
}

// Preview returns what Tables would return if the document were saved
// under name: the named document replaced in place, or appended last.
// Nothing is written.
func (s *Store) Preview(ctx context.Context, name string, format factory.Format, content []byte) ([]generic.RateTable, error) {
	candidate, err := factory.ParseDocument(content, format)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := listDocuments(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return s.withCandidate(docs, name, candidate)
}

// withCandidate converts docs with the candidate tables standing in for the
// document called name.
func (s *Store) withCandidate(docs []DocumentRecord, name string, candidate []generic.RateTable) ([]generic.RateTable, error) {
	name = strings.TrimSpace(name)

	var tables []generic.RateTable
	replaced := false
	for _, d := range docs {
		if d.Name == name {
			tables = append(tables, cloneTables(candidate)...)
			replaced = true
			continue
		}
		ts, err := s.convert(d)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", d.Name, err)
		}
		tables = append(tables, ts...)
	}
	if !replaced {
		tables = append(tables, cloneTables(candidate)...)
	}
	return tables, nil
}

func (s *Store) convert(d DocumentRecord) ([]generic.RateTable, error) {
	if cached, ok := s.parsed.Get(d.Checksum); ok {
		return cloneTables(cached.([]generic.RateTable)), nil
	}
	tables, err := factory.ParseDocument([]byte(d.Content), d.Format)
	if err != nil {
		return nil, err
	}
	s.parsed.SetDefault(d.Checksum, tables)
	return cloneTables(tables), nil
}

const documentColumns = "id, name, format, content, checksum, table_count, revision, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (DocumentRecord, error) {
	var d DocumentRecord
	var format, createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.Name, &format, &d.Content, &d.Checksum, &d.TableCount, &d.Revision, &createdAt, &updatedAt); err != nil {
		return DocumentRecord{}, err
	}
	d.Format = factory.Format(format)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return d, nil
}

func scanOne(ctx context.Context, q queryer, query string, args ...any) (*DocumentRecord, error) {
	d, err := scanDocument(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func checksumOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func cloneTables(tables []generic.RateTable) []generic.RateTable {
	out := make([]generic.RateTable, len(tables))
	for i, t := range tables {
		out[i] = t.Clone()
	}
	return out
}

// =============================================================================
// REGISTRY LOADS
// =============================================================================

// LoadStatus is the outcome of one registry reload.
type LoadStatus string

const (
	LoadApplied  LoadStatus = "applied"
	LoadRejected LoadStatus = "rejected"
)

// loadTimeLayout is fixed width so that text order is time order.
const loadTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LoadRecord is one registry reload attempt.
type LoadRecord struct {
	ID         string
	Generation int64
	TableCount int
	Status     LoadStatus
	Error      string
	Origin     string // "startup", "upload", "admin"
	LoadedAt   time.Time
}

// RecordLoad appends a reload attempt to the audit trail.
func (s *Store) RecordLoad(ctx context.Context, rec LoadRecord) (LoadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_loads (id, generation, table_count, status, error, origin, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Generation, rec.TableCount, string(rec.Status), nullString(rec.Error), rec.Origin,
		rec.LoadedAt.UTC().Format(loadTimeLayout),
	)
	if err != nil {
		return LoadRecord{}, fmt.Errorf("record load: %w", err)
	}
	return rec, nil
}

// ListLoads returns the most recent reload attempts, newest first.
func (s *Store) ListLoads(ctx context.Context, limit int) ([]LoadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generation, table_count, status, error, origin, loaded_at
		FROM registry_loads ORDER BY loaded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []LoadRecord
	for rows.Next() {
		var r LoadRecord
		var status, loadedAt string
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Generation, &r.TableCount, &status, &errText, &r.Origin, &loadedAt); err != nil {
			return nil, err
		}
		r.Status = LoadStatus(status)
		r.Error = errText.String
		r.LoadedAt, _ = time.Parse(loadTimeLayout, loadedAt)
		loads = append(loads, r)
	}
	return loads, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
