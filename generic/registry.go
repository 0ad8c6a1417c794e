/*
registry.go - Versioned rate-table registry

PURPOSE:
  Holds every rate table the calculators consult, in every version. A
  calculation resolves each table "as of" a transaction date, so a sale
  signed in 2019 is priced with the 2019 schedule even when the 2021
  schedule is loaded too.

HOW IT WORKS:
  1. Load() reads tables from one or more Sources
  2. Every table is validated; any problem aborts the whole load
  3. An immutable Snapshot is built and swapped in atomically
  4. Calculators take one Snapshot and resolve all their tables from it

ATOMIC RELOAD:
  The current snapshot lives behind an atomic.Pointer. A reload (fiscal
  year rollover, new table uploaded) builds a complete new snapshot first
  and only then publishes it. In-flight calculations keep the snapshot they
  started with and never observe a half-updated set. A failed load leaves
  the previous snapshot in place.

VERSION RESOLUTION:
  Get(name, asOf) returns the version whose validity contains asOf. When
  several open-ended versions qualify, the latest effective_from wins
  (a newer schedule supersedes the older one).

USAGE:
  reg := generic.NewRegistry()
  if err := reg.Load(ctx, factory.EmbeddedSource()); err != nil {
      log.Fatal(err) // ConfigError: refuse to start with partial tables
  }
  snap := reg.Snapshot()
  emoluments, err := snap.Get("emoluments", facts.AcquisitionDate)

SEE ALSO:
  - bracket.go: RateTable and ValidateTable
  - factory/source.go: Embedded and document-backed sources
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// SOURCE - Where rate tables come from
// =============================================================================

// Source yields rate tables. The registry does not care whether they come
// from embedded constants, a file or a database.
type Source interface {
	Tables(ctx context.Context) ([]RateTable, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]RateTable, error)

func (f SourceFunc) Tables(ctx context.Context) ([]RateTable, error) { return f(ctx) }

// RateSource is what calculators need: a dated lookup. Both *Registry and
// *Snapshot implement it.
type RateSource interface {
	Get(name string, asOf Date) (RateTable, error)
}

// =============================================================================
// SNAPSHOT - Immutable, validated table set
// =============================================================================

// Snapshot is a read-only set of validated tables.
type Snapshot struct {
	Generation int64
	LoadedAt   time.Time

	versions map[string][]RateTable // sorted by Validity.From ascending
}

// Get resolves the version of name in force on asOf. The returned table is
// a copy.
func (s *Snapshot) Get(name string, asOf Date) (RateTable, error) {
	if s == nil {
		return RateTable{}, ErrRegistryNotLoaded
	}
	versions, ok := s.versions[name]
	if !ok {
		return RateTable{}, &UnknownTableError{Name: name}
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Validity.Contains(asOf) {
			return versions[i].Clone(), nil
		}
	}
	return RateTable{}, &NoEffectiveVersionError{Name: name, AsOf: asOf}
}

// Names returns the registered table names in sorted order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns every version of name, oldest first.
func (s *Snapshot) Versions(name string) []RateTable {
	if s == nil {
		return nil
	}
	versions := s.versions[name]
	out := make([]RateTable, len(versions))
	for i, t := range versions {
		out[i] = t.Clone()
	}
	return out
}

// Tables returns every table version, sorted by name then effective date.
func (s *Snapshot) Tables() []RateTable {
	var out []RateTable
	for _, name := range s.Names() {
		out = append(out, s.Versions(name)...)
	}
	return out
}

// BuildSnapshot validates tables and indexes them. Later tables replace
// earlier ones with the same name and version, so an override source can be
// listed after a base source.
func BuildSnapshot(tables []RateTable) (*Snapshot, error) {
	type key struct{ name, version string }
	merged := make(map[key]RateTable, len(tables))
	var order []key

	var errs []error
	for _, t := range tables {
		if err := ValidateTable(t); err != nil {
			errs = append(errs, err)
			continue
		}
		k := key{t.Name, t.Version}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = t.Clone()
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	versions := make(map[string][]RateTable)
	for _, k := range order {
		versions[k.name] = append(versions[k.name], merged[k])
	}

	for name, vs := range versions {
		sort.SliceStable(vs, func(i, j int) bool {
			return vs[i].Validity.From.Before(vs[j].Validity.From)
		})
		for i := 1; i < len(vs); i++ {
			if vs[i].Validity.From.Equal(vs[i-1].Validity.From) {
				return nil, &ConfigError{
					Table:    name,
					Problems: []string{fmt.Sprintf("versions %s and %s share effective_from %s",
						vs[i-1].Version, vs[i].Version, vs[i].Validity.From)},
				}
			}
		}
		versions[name] = vs
	}

	return &Snapshot{versions: versions}, nil
}

// =============================================================================
// REGISTRY - Publishes snapshots
// =============================================================================

// Registry publishes the current Snapshot. Safe for concurrent use.
type Registry struct {
	current    atomic.Pointer[Snapshot]
	loadMu     sync.Mutex
	generation int64
	now        func() time.Time
}

// NewRegistry returns an empty registry. Snapshot is nil until the first
// successful Load.
func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// Load reads every source in order, validates all tables and publishes the
// result. On error the previous snapshot stays current.
func (r *Registry) Load(ctx context.Context, sources ...Source) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	var tables []RateTable
	for _, src := range sources {
		ts, err := src.Tables(ctx)
		if err != nil {
			if IsConfigError(err) {
				return err
			}
			return &ConfigError{Problems: []string{fmt.Sprintf("read source: %v", err)}}
		}
		tables = append(tables, ts...)
	}
	if len(tables) == 0 {
		return &ConfigError{Problems: []string{"no rate tables provided"}}
	}

	snap, err := BuildSnapshot(tables)
	if err != nil {
		return err
	}

	r.generation++
	snap.Generation = r.generation
	snap.LoadedAt = r.now().UTC()
	r.current.Store(snap)
	return nil
}

// Snapshot returns the current snapshot, or nil before the first load.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Get resolves name as of asOf against the current snapshot.
func (r *Registry) Get(name string, asOf Date) (RateTable, error) {
	return r.Snapshot().Get(name, asOf)
}
