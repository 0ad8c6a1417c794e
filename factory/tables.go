/*
Package factory converts rate-table documents into generic.RateTable values.

PURPOSE:
  Rate tables are data, not code. They are authored as JSON or YAML
  documents, shipped embedded in the binary (statutory defaults) or stored
  in the database (uploads), and converted here into validated Go structs.
  A new fiscal year is a new document version, not a code change.

DOCUMENT SCHEMA (YAML shown, JSON has the same keys):
  tables:
    - name: emoluments
      version: "2021"
      kind: brackets            # brackets | flat | rates | amounts
      effective_from: "2021-01-01"
      effective_to: ""          # optional, exclusive
      basis: "C. com., art. A444-91"
      brackets:
        - {from: "0", to: "6500", rate: "0.0387"}
        - {from: "60000", rate: "0.00799"}   # no "to" = unbounded
      flat_addend: "0"          # brackets only
      rate: "0.20"              # flat only
      entries: {"75": "0.05"}   # rates / amounts
      threshold: "22"           # optional, meaning depends on the table

  Numbers may be written as strings or bare literals; they are read from
  their source text so no float rounding ever happens.

KEY FEATURES:
  - Accepts JSON or YAML (detected from the file extension or content)
  - Every conversion problem is reported as a generic.ConfigError
  - ToJSON renders a table back for the API and for storage

USAGE:
  tables, err := factory.ParseDocument(data, factory.FormatYAML)
  if err != nil {
      return err // ConfigError
  }
  reg.Load(ctx, store.NewMemory(tables...))

SEE ALSO:
  - source.go: Embedded statutory defaults
  - generic/bracket.go: RateTable and its invariants
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/notary-engine/generic"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// Document is a set of rate tables.
type Document struct {
	Tables []TableJSON `json:"tables" yaml:"tables"`
}

// TableJSON is the document representation of one table version.
type TableJSON struct {
	Name          string            `json:"name" yaml:"name"`
	Version       string            `json:"version" yaml:"version"`
	Kind          string            `json:"kind" yaml:"kind"`
	EffectiveFrom string            `json:"effective_from" yaml:"effective_from"`
	EffectiveTo   string            `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`
	Basis         string            `json:"basis,omitempty" yaml:"basis,omitempty"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	Brackets      []BracketJSON     `json:"brackets,omitempty" yaml:"brackets,omitempty"`
	FlatAddend    *Number           `json:"flat_addend,omitempty" yaml:"flat_addend,omitempty"`
	Rate          *Number           `json:"rate,omitempty" yaml:"rate,omitempty"`
	Entries       map[string]Number `json:"entries,omitempty" yaml:"entries,omitempty"`
	Threshold     *Number           `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// BracketJSON is one marginal segment. A missing To is unbounded.
type BracketJSON struct {
	From Number  `json:"from" yaml:"from"`
	To   *Number `json:"to,omitempty" yaml:"to,omitempty"`
	Rate Number  `json:"rate" yaml:"rate"`
}

// Number is a decimal read from its literal text, quoted or not.
type Number struct {
	decimal.Decimal
}

// NewNumber wraps d for encoding.
func NewNumber(d decimal.Decimal) Number { return Number{Decimal: d} }

func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Decimal.String())
}

func (n *Number) UnmarshalJSON(b []byte) error {
	return n.Decimal.UnmarshalJSON(b)
}

func (n Number) MarshalYAML() (any, error) {
	return n.Decimal.String(), nil
}

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	n.Decimal = d
	return nil
}

// =============================================================================
// FORMATS
// =============================================================================

// Format is the encoding of a rate-table document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat picks a format from a file name, falling back to the content.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown document format %q", s)
}

// =============================================================================
// PARSING
// =============================================================================

// ParseDocument decodes and converts a document. Decoding and conversion
// failures are both reported as *generic.ConfigError.
func ParseDocument(data []byte, format Format) ([]generic.RateTable, error) {
	var doc Document
	var err error
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
	default:
		err = fmt.Errorf("unknown document format %q", format)
	}
	if err != nil {
		return nil, &generic.ConfigError{Problems: []string{fmt.Sprintf("decode %s document: %v", format, err)}}
	}
	if len(doc.Tables) == 0 {
		return nil, &generic.ConfigError{Problems: []string{"document contains no tables"}}
	}

	tables := make([]generic.RateTable, 0, len(doc.Tables))
	for _, tj := range doc.Tables {
		t, err := FromJSON(tj)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// FromJSON converts one document table. Structural invariants (contiguous
// brackets, rate ranges) are checked by generic.ValidateTable.
func FromJSON(tj TableJSON) (generic.RateTable, error) {
	fail := func(format string, args ...any) (generic.RateTable, error) {
		return generic.RateTable{}, &generic.ConfigError{
			Table:    tj.Name,
			Version:  tj.Version,
			Problems: []string{fmt.Sprintf(format, args...)},
		}
	}

	t := generic.RateTable{
		Name:        strings.TrimSpace(tj.Name),
		Version:     strings.TrimSpace(tj.Version),
		Kind:        generic.TableKind(strings.ToLower(tj.Kind)),
		Basis:       tj.Basis,
		Description: tj.Description,
		FlatAddend:  decimal.Zero,
		Rate:        decimal.Zero,
	}

	from, err := generic.ParseDate(tj.EffectiveFrom)
	if err != nil {
		return fail("effective_from: %v", err)
	}
	t.Validity.From = from
	if tj.EffectiveTo != "" {
		to, err := generic.ParseDate(tj.EffectiveTo)
		if err != nil {
			return fail("effective_to: %v", err)
		}
		t.Validity.To = to
	}

	for _, bj := range tj.Brackets {
		b := generic.Bracket{Lower: bj.From.Decimal, Rate: bj.Rate.Decimal}
		if bj.To != nil {
			upper := bj.To.Decimal
			b.Upper = &upper
		}
		t.Brackets = append(t.Brackets, b)
	}
	if tj.FlatAddend != nil {
		t.FlatAddend = tj.FlatAddend.Decimal
	}
	if tj.Rate != nil {
		t.Rate = tj.Rate.Decimal
	}
	if len(tj.Entries) > 0 {
		t.Entries = make(map[string]decimal.Decimal, len(tj.Entries))
		for k, v := range tj.Entries {
			t.Entries[strings.TrimSpace(k)] = v.Decimal
		}
	}
	if tj.Threshold != nil {
		th := tj.Threshold.Decimal
		t.Threshold = &th
	}

	if err := checkKindFields(tj, t.Kind); err != nil {
		return fail("%v", err)
	}
	return t, nil
}

// checkKindFields rejects fields that do not belong to the table kind, so a
// typo such as a "rate" on a brackets table is not silently ignored.
func checkKindFields(tj TableJSON, kind generic.TableKind) error {
	if kind != generic.KindBrackets && (len(tj.Brackets) > 0 || tj.FlatAddend != nil) {
		return fmt.Errorf("brackets/flat_addend not allowed on %s table", kind)
	}
	if kind != generic.KindFlat && tj.Rate != nil {
		return fmt.Errorf("rate not allowed on %s table", kind)
	}
	if kind != generic.KindRates && kind != generic.KindAmounts && len(tj.Entries) > 0 {
		return fmt.Errorf("entries not allowed on %s table", kind)
	}
	if kind == generic.KindFlat && tj.Rate == nil {
		return fmt.Errorf("flat table requires rate")
	}
	return nil
}

// =============================================================================
// RENDERING
// =============================================================================

// ToJSON converts a table back to its document form.
func ToJSON(t generic.RateTable) TableJSON {
	tj := TableJSON{
		Name:          t.Name,
		Version:       t.Version,
		Kind:          string(t.Kind),
		EffectiveFrom: t.Validity.From.String(),
		EffectiveTo:   t.Validity.To.String(),
		Basis:         t.Basis,
		Description:   t.Description,
	}

	switch t.Kind {
	case generic.KindBrackets:
		for _, b := range t.Brackets {
			bj := BracketJSON{From: NewNumber(b.Lower), Rate: NewNumber(b.Rate)}
			if b.Upper != nil {
				to := NewNumber(*b.Upper)
				bj.To = &to
			}
			tj.Brackets = append(tj.Brackets, bj)
		}
		if !t.FlatAddend.IsZero() {
			fa := NewNumber(t.FlatAddend)
			tj.FlatAddend = &fa
		}
	case generic.KindFlat:
		r := NewNumber(t.Rate)
		tj.Rate = &r
	case generic.KindRates, generic.KindAmounts:
		tj.Entries = make(map[string]Number, len(t.Entries))
		for k, v := range t.Entries {
			tj.Entries[k] = NewNumber(v)
		}
	}

	if t.Threshold != nil {
		th := NewNumber(*t.Threshold)
		tj.Threshold = &th
	}
	return tj
}

// Marshal renders tables as a document in the given format.
func Marshal(tables []generic.RateTable, format Format) ([]byte, error) {
	doc := Document{Tables: make([]TableJSON, 0, len(tables))}
	for _, t := range tables {
		doc.Tables = append(doc.Tables, ToJSON(t))
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	}
	return nil, fmt.Errorf("unknown document format %q", format)
}
