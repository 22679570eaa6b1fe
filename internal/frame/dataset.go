package frame

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Field is one declared column: a name and a kind.
type Field struct {
	Name string
	Kind Kind
}

// Schema declares the fixed field set of a dataset plus its entity key and
// time key. Schemas are immutable after construction.
type Schema struct {
	fields    []Field
	byName    map[string]int
	entityKey string
	timeKey   string
}

// NewSchema builds a schema. The entity key and time key must name declared
// fields.
func NewSchema(entityKey, timeKey string, fields []Field) (*Schema, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, eris.Errorf("schema: field %d has empty name", i)
		}
		if _, dup := byName[f.Name]; dup {
			return nil, eris.Errorf("schema: duplicate field %q", f.Name)
		}
		byName[f.Name] = i
	}
	if _, ok := byName[entityKey]; !ok {
		return nil, eris.Errorf("schema: entity key %q not among declared fields", entityKey)
	}
	if _, ok := byName[timeKey]; !ok {
		return nil, eris.Errorf("schema: time key %q not among declared fields", timeKey)
	}
	return &Schema{fields: fields, byName: byName, entityKey: entityKey, timeKey: timeKey}, nil
}

// Fields returns the declared fields in order.
func (s *Schema) Fields() []Field { return s.fields }

// Len returns the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// EntityKey returns the entity key field name.
func (s *Schema) EntityKey() string { return s.entityKey }

// TimeKey returns the time key field name.
func (s *Schema) TimeKey() string { return s.timeKey }

// Index returns the position of a field and whether it exists.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Row is one record, positionally aligned with the schema fields.
type Row []Value

// Dataset is an ordered sequence of schema-checked rows.
type Dataset struct {
	name   string
	schema *Schema
	rows   []Row
}

// New creates an empty dataset. The name identifies the dataset in errors
// and diagnostics (e.g. "fundamentals", "prices").
func New(name string, schema *Schema) *Dataset {
	return &Dataset{name: name, schema: schema}
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Schema returns the dataset schema.
func (d *Dataset) Schema() *Schema { return d.schema }

// Len returns the row count.
func (d *Dataset) Len() int { return len(d.rows) }

// Row returns row i. The returned slice must be treated as read-only.
func (d *Dataset) Row(i int) Row { return d.rows[i] }

// Append adds a row. The row length must match the schema.
func (d *Dataset) Append(r Row) error {
	if len(r) != d.schema.Len() {
		return eris.Errorf("dataset %s: row has %d values, schema has %d fields", d.name, len(r), d.schema.Len())
	}
	d.rows = append(d.rows, r)
	return nil
}

// Value returns the value of the named field in row i, or a missing string
// value for unknown fields.
func (d *Dataset) Value(i int, field string) Value {
	idx, ok := d.schema.Index(field)
	if !ok {
		return Missing(KindString)
	}
	return d.rows[i][idx]
}

// Entity returns the entity key value of row i.
func (d *Dataset) Entity(i int) Value { return d.Value(i, d.schema.entityKey) }

// Time returns the time key value of row i.
func (d *Dataset) Time(i int) Value { return d.Value(i, d.schema.timeKey) }

// SchemaError is the fatal pre-processing failure raised when required
// columns are absent from an input. It names the dataset and every missing
// field so the caller can fix the input rather than chase row errors.
type SchemaError struct {
	Dataset string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("dataset %s: missing required columns: %s", e.Dataset, strings.Join(e.Missing, ", "))
}

// RequireFields checks that every named field is declared on the dataset,
// returning a SchemaError listing all absentees at once.
func (d *Dataset) RequireFields(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := d.schema.Index(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Dataset: d.name, Missing: missing}
	}
	return nil
}

// FromRecords ingests raw string records under the schema. The header maps
// record positions to field names; declared fields absent from the header
// produce a SchemaError before any row is parsed. Extra header columns are
// ignored. Rules apply per-field transforms (missing markers, trims, sign
// conventions) before typed parsing.
func FromRecords(name string, schema *Schema, header []string, records [][]string, rules []Rule) (*Dataset, error) {
	colOf := make(map[string]int, len(header))
	for i, h := range header {
		colOf[strings.TrimSpace(h)] = i
	}

	var missing []string
	for _, f := range schema.fields {
		if _, ok := colOf[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Dataset: name, Missing: missing}
	}

	ruleOf := make(map[string]Rule, len(rules))
	for _, r := range rules {
		ruleOf[r.Field] = r
	}

	ds := New(name, schema)
	for rowIdx, rec := range records {
		row := make(Row, schema.Len())
		for fi, f := range schema.fields {
			var raw string
			if ci := colOf[f.Name]; ci < len(rec) {
				raw = rec[ci]
			}
			rule, hasRule := ruleOf[f.Name]
			raw = normalizeRaw(raw, rule, hasRule)

			v, err := Parse(raw, f.Kind)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset %s: row %d field %s", name, rowIdx+1, f.Name)
			}
			if hasRule {
				v = rule.applyValue(v)
			}
			row[fi] = v
		}
		ds.rows = append(ds.rows, row)
	}
	return ds, nil
}
