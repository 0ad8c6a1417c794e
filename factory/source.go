package factory

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/warp/notary-engine/generic"
)

// =============================================================================
// EMBEDDED STATUTORY DEFAULTS
// =============================================================================

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// DefaultTables parses the embedded statutory rate tables.
func DefaultTables() ([]generic.RateTable, error) {
	return ParseFS(defaultsFS, "defaults")
}

// EmbeddedSource serves the embedded statutory tables.
func EmbeddedSource() generic.Source {
	return generic.SourceFunc(func(_ context.Context) ([]generic.RateTable, error) {
		return DefaultTables()
	})
}

// ParseFS parses every .json/.yaml/.yml document under dir, in file-name order.
func ParseFS(fsys fs.FS, dir string) ([]generic.RateTable, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read rate documents: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var tables []generic.RateTable
	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) {
			continue
		}
		name := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		ts, err := ParseDocument(data, DetectFormat(name, data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		tables = append(tables, ts...)
	}
	return tables, nil
}

func isDocument(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// DirSource reads documents from a directory on disk at every load, so an
// operator can drop a new fiscal-year file and trigger a reload.
func DirSource(fsys fs.FS, dir string) generic.Source {
	return generic.SourceFunc(func(_ context.Context) ([]generic.RateTable, error) {
		return ParseFS(fsys, dir)
	})
}
