package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rediwo/redi-orm/types"
)

// Index describes a secondary index over one or more fields.
type Index struct {
	Name   string
	Fields []string
	Unique bool
}

// MigrationFunc is a user-supplied hook invoked during Prepare after the
// driver has created or migrated the underlying table.
type MigrationFunc func() error

// ModelConfig carries the non-field parts of a model declaration.
type ModelConfig struct {
	TableName string
	Primary   []string
	AutoIncrement bool
	Unique    [][]string
	Indexes   []Index
	Migrate   []MigrationFunc
}

// Model is a table's schema: its fields, key structure, and migration
// hooks.
type Model struct {
	Name          string
	TableName     string
	Fields        map[string]*Field
	FieldOrder    []string
	Primary       []string
	AutoIncrement bool
	Unique        [][]string
	Indexes       []Index
	Migrations    []MigrationFunc

	// ObjectShapes maps a dotted-field prefix to the TypeDescriptor
	// describing its nested object shape, built from every leaf field
	// declared under that prefix.
	ObjectShapes map[string]*types.TypeDescriptor
}

func newModel(name string) *Model {
	return &Model{
		Name:         name,
		TableName:    defaultTableName(name),
		Fields:       make(map[string]*Field),
		ObjectShapes: make(map[string]*types.TypeDescriptor),
	}
}

func defaultTableName(name string) string {
	return pluralize(camelToSnake(name))
}

// GetField looks up a field by its declared (possibly dotted) name.
func (m *Model) GetField(name string) (*Field, error) {
	f, ok := m.Fields[name]
	if !ok {
		return nil, fmt.Errorf("field %q not found on model %q", name, m.Name)
	}
	return f, nil
}

// HasRelation reports whether name is a relation-typed field.
func (m *Model) HasRelation(name string) bool {
	f, ok := m.Fields[name]
	return ok && f.Relation != nil
}

// RelationFields returns the names of every relation-typed field.
func (m *Model) RelationFields() []string {
	var names []string
	for _, n := range m.FieldOrder {
		if f := m.Fields[n]; f.Relation != nil {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// PrimaryTuple extracts the primary key column values from a row, in
// declared primary-key order.
func (m *Model) PrimaryTuple(row map[string]any) []any {
	tuple := make([]any, len(m.Primary))
	for i, k := range m.Primary {
		tuple[i] = row[k]
	}
	return tuple
}

// Create fills in defaults for every non-relation field missing from
// data, ready to hand to a driver's create operation.
func (m *Model) Create(data map[string]any) map[string]any {
	out := make(map[string]any, len(m.Fields))
	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if f.Relation != nil {
			continue
		}
		if v, ok := data[name]; ok {
			out[name] = v
			continue
		}
		if m.isAutoIncrementField(name) {
			continue
		}
		out[name] = f.Initial
	}
	return out
}

func (m *Model) isAutoIncrementField(name string) bool {
	return m.AutoIncrement && len(m.Primary) == 1 && m.Primary[0] == name
}

// Format normalizes a row for writing: unknown keys are dropped (and,
// in strict mode, reported), primary key columns are preserved as-is.
func (m *Model) Format(data map[string]any, strict bool) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := m.Fields[k]; !ok {
			if strict {
				return nil, fmt.Errorf("unknown field %q on model %q", k, m.Name)
			}
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Parse maps legacy aliases in a raw driver row back onto canonical
// field names and runs each field's Load transformer.
func (m *Model) Parse(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	aliasOf := make(map[string]string)
	for name, f := range m.Fields {
		for _, alias := range f.LegacyAliases {
			aliasOf[alias] = name
		}
	}
	for k, v := range row {
		name := k
		if canonical, ok := aliasOf[k]; ok {
			name = canonical
		}
		f, ok := m.Fields[name]
		if !ok {
			out[name] = v
			continue
		}
		loaded, err := f.Load(v)
		if err != nil {
			return nil, fmt.Errorf("loading field %q: %w", name, err)
		}
		out[name] = loaded
	}
	return out, nil
}

// Validate checks the model invariants from spec §3: exactly one
// primary key, every key referenced by primary/unique/index exists.
func (m *Model) Validate() error {
	if len(m.Primary) == 0 {
		return fmt.Errorf("model %q: missing primary key", m.Name)
	}
	if m.AutoIncrement && len(m.Primary) != 1 {
		return fmt.Errorf("model %q: autoIncrement requires a single-column primary key", m.Name)
	}
	check := func(cols []string) error {
		for _, c := range cols {
			if _, ok := m.Fields[c]; !ok {
				return fmt.Errorf("model %q: key column %q not declared", m.Name, c)
			}
		}
		return nil
	}
	if err := check(m.Primary); err != nil {
		return err
	}
	for _, u := range m.Unique {
		if err := check(u); err != nil {
			return err
		}
	}
	for _, idx := range m.Indexes {
		if err := check(idx.Fields); err != nil {
			return err
		}
	}
	return nil
}

// --- naming helpers, grounded in schema.ModelNameToTableName ---

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := rune(s[i-1])
				if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
					b.WriteByte('_')
				} else if i+1 < len(s) {
					next := rune(s[i+1])
					if next >= 'a' && next <= 'z' && prev >= 'A' && prev <= 'Z' {
						b.WriteByte('_')
					}
				}
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func pluralize(word string) string {
	if word == "" {
		return word
	}
	switch {
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"), strings.HasSuffix(word, "ch"), strings.HasSuffix(word, "sh"):
		return word + "es"
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(rune(word[len(word)-2])):
		return word[:len(word)-1] + "ies"
	default:
		return word + "s"
	}
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
