// Package store provides in-process generic.Source implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/notary-engine/generic"
)

// =============================================================================
// MEMORY SOURCE - In-memory rate tables (for testing/dev)
// =============================================================================

// Memory is a mutable in-memory generic.Source.
type Memory struct {
	mu     sync.RWMutex
	tables map[key]generic.RateTable
}

type key struct {
	Name    string
	Version string
}

// NewMemory returns a source holding copies of tables.
func NewMemory(tables ...generic.RateTable) *Memory {
	m := &Memory{tables: make(map[key]generic.RateTable)}
	for _, t := range tables {
		m.tables[key{t.Name, t.Version}] = t.Clone()
	}
	return m
}

// Put adds or replaces a table version. Validation happens at registry load.
func (m *Memory) Put(t generic.RateTable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[key{t.Name, t.Version}] = t.Clone()
}

// Delete removes a table version.
func (m *Memory) Delete(name, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, key{name, version})
}

// Len returns the number of stored table versions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}

// Tables implements generic.Source. Order is deterministic: name, then
// effective date.
func (m *Memory) Tables(_ context.Context) ([]generic.RateTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.RateTable, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Validity.From.Before(out[j].Validity.From)
	})
	return out, nil
}
