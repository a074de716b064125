package query

import (
	"fmt"
	"sort"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/schema"
)

// EvalField is the synthetic projection key Evaluate assigns its
// aggregation expression to, so callers can unwrap a single-value
// aggregation result back out of Driver.Eval's row slice.
const EvalField = "$eval"

// SortField is one orderBy key, the field's path within the selection's
// row shape plus direction.
type SortField struct {
	Path []string
	Desc bool
}

// Modifier carries every non-predicate shaping applied to a Selection:
// limit/offset, sort order, grouping, post-group filtering, projected
// fields, and whether the source side of a join is optional (§4.4).
type Modifier struct {
	Limit    int
	Offset   int
	HasLimit bool
	Sort     []SortField
	Group    []string
	Having   *expr.Node
	Fields   map[string]*expr.Node // nil means "every declared field"
	Optional bool
}

// Table is a Selection's source: a schema-backed model, a raw
// (association) table with no schema.Model, or a pairwise join of a
// left and right Table.
type Table struct {
	Model    string // schema.Model name; empty for raw tables
	RawTable string // storage table name with no schema.Model, e.g. a manyToMany junction

	Left, Right *Table
	LeftAlias   string
	RightAlias  string
	JoinKind    JoinKind
	On          *expr.Node
}

// storageName resolves the physical table name a TableSource is keyed
// by: a schema model's TableName, or a raw table's name directly.
func (t *Table) storageName(reg *schema.Registry) (string, error) {
	if t.RawTable != "" {
		return t.RawTable, nil
	}
	m, err := reg.Model(t.Model)
	if err != nil {
		return "", err
	}
	return m.TableName, nil
}

type JoinKind string

const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
	// full outer joins are rejected at build time (§4.4 edge cases):
	// drivers are not required to support them, and the in-memory
	// reference driver never produces one.
)

// Selection is the lazy, immutable query builder: every method returns
// a clone with one field changed, so a partially built query can be
// safely branched and reused (§4.4).
type Selection struct {
	Alias      string
	table      *Table
	predicate  *expr.Node
	relFilter  []expr.RelationFilter
	modifier   Modifier
	reg        *schema.Registry
	aliasModel map[string]string // alias -> schema.Model name, across the whole join tree
}

// From starts a selection over a single model.
func From(reg *schema.Registry, alias, model string) *Selection {
	return &Selection{
		Alias:      alias,
		table:      &Table{Model: model},
		reg:        reg,
		aliasModel: map[string]string{alias: model},
	}
}

// FromTable starts a selection over a raw storage table with no
// backing schema.Model, used for manyToMany association tables (§4.8).
func FromTable(reg *schema.Registry, alias, table string) *Selection {
	return &Selection{
		Alias:      alias,
		table:      &Table{RawTable: table},
		reg:        reg,
		aliasModel: map[string]string{},
	}
}

func (s *Selection) clone() *Selection {
	cp := *s
	return &cp
}

// Registry returns the schema registry this selection resolves field
// and relation references against.
func (s *Selection) Registry() *schema.Registry { return s.reg }

// Model returns the schema this selection's root table resolves to.
func (s *Selection) Model() (*schema.Model, error) {
	if s.table.Model == "" {
		return nil, fmt.Errorf("query: selection %q has no backing schema model", s.Alias)
	}
	return s.reg.Model(s.table.Model)
}

// ModelNamed returns the schema.Model bound to alias anywhere in this
// selection's join tree.
func (s *Selection) ModelNamed(alias string) (*schema.Model, error) {
	name, ok := s.aliasModel[alias]
	if !ok || name == "" {
		return nil, fmt.Errorf("query: alias %q has no backing schema model", alias)
	}
	return s.reg.Model(name)
}

// Where narrows the selection with a query-predicate map (§4.3),
// ANDed against any existing predicate. Relation-valued keys are
// collected as RelationFilters for the relation package to rewrite.
func (s *Selection) Where(query map[string]any) (*Selection, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	n, rel, err := expr.ParsePredicate(m, s.Alias, query)
	if err != nil {
		return nil, err
	}
	cp := s.clone()
	if n != nil {
		if cp.predicate == nil {
			cp.predicate = n
		} else {
			cp.predicate = expr.And(cp.predicate, n)
		}
	}
	cp.relFilter = append(append([]expr.RelationFilter{}, cp.relFilter...), rel...)
	return cp, nil
}

// WhereRaw narrows a selection over a table with no backing schema.Model
// (a manyToMany association table) using plain column-name equality and
// $in/$nin, since there is no schema.Field to resolve types against
// (§4.8's association-table access).
func (s *Selection) WhereRaw(query map[string]any) (*Selection, error) {
	if len(query) == 0 {
		return s, nil
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conds []*expr.Node
	for _, col := range keys {
		get := expr.Get(s.Alias, []string{col}, nil)
		switch v := query[col].(type) {
		case nil:
			conds = append(conds, expr.IsNull(get))
		case map[string]any:
			switch {
			case v["$in"] != nil:
				conds = append(conds, expr.In(get, expr.Literal(v["$in"], nil)))
			case v["$nin"] != nil:
				conds = append(conds, expr.Nin(get, expr.Literal(v["$nin"], nil)))
			default:
				return nil, fmt.Errorf("query: unsupported raw predicate on %q", col)
			}
		default:
			conds = append(conds, expr.Eq(get, expr.Literal(v, nil)))
		}
	}

	n := conds[0]
	if len(conds) > 1 {
		n = expr.And(conds...)
	}
	return s.WhereExpr(n), nil
}

// WhereExpr ANDs a raw expression node directly, bypassing predicate
// parsing (used by the relation package's join-rewrite machinery).
func (s *Selection) WhereExpr(n *expr.Node) *Selection {
	cp := s.clone()
	if cp.predicate == nil {
		cp.predicate = n
	} else {
		cp.predicate = expr.And(cp.predicate, n)
	}
	return cp
}

// Predicate returns the selection's compiled boolean expression, or
// nil if unconstrained.
func (s *Selection) Predicate() *expr.Node { return s.predicate }

// RelationFilters returns the relation-valued predicate keys still
// awaiting join/subquery rewriting by the relation package.
func (s *Selection) RelationFilters() []expr.RelationFilter { return s.relFilter }

// ClearRelationFilters drops the pending relation filters, used once
// the relation package has folded them into the join tree.
func (s *Selection) ClearRelationFilters() *Selection {
	cp := s.clone()
	cp.relFilter = nil
	return cp
}

func (s *Selection) Limit(n int) *Selection {
	cp := s.clone()
	cp.modifier.Limit, cp.modifier.HasLimit = n, true
	return cp
}

func (s *Selection) Offset(n int) *Selection {
	cp := s.clone()
	cp.modifier.Offset = n
	return cp
}

func (s *Selection) OrderBy(path []string, desc bool) *Selection {
	cp := s.clone()
	cp.modifier.Sort = append(append([]SortField{}, cp.modifier.Sort...), SortField{Path: path, Desc: desc})
	return cp
}

func (s *Selection) GroupBy(fields ...string) *Selection {
	cp := s.clone()
	cp.modifier.Group = append(append([]string{}, cp.modifier.Group...), fields...)
	return cp
}

func (s *Selection) Having(n *expr.Node) *Selection {
	cp := s.clone()
	cp.modifier.Having = n
	return cp
}

// Project restricts the result row shape to the named expressions,
// replacing any prior projection.
func (s *Selection) Project(fields map[string]*expr.Node) *Selection {
	cp := s.clone()
	cp.modifier.Fields = fields
	return cp
}

// Evaluate restricts the selection to a single aggregation expression
// (§4.4's evaluate builder, §6's single-value eval operation), projected
// under EvalField so callers can unwrap Driver.Eval's result row.
// Execute folds an ungrouped Evaluate selection's matched rows into one
// group, so the aggregation sees every matched row.
func (s *Selection) Evaluate(n *expr.Node) *Selection {
	return s.Project(map[string]*expr.Node{EvalField: n})
}

// Optional marks the selection's table as the optional side of a join.
// Join reads the flag only to reject a left join whose two sides are
// both optional; the join kind itself is Join's kind argument. The
// relation package's include joins mark every related side optional,
// whatever its required flag (§4.5).
func (s *Selection) Optional() *Selection {
	cp := s.clone()
	cp.modifier.Optional = true
	return cp
}

// Join attaches another selection under alias on condition on,
// producing a join tree. A full outer join (both sides optional) is
// rejected per §4.4's edge-case rule: callers wanting to include rows
// missing on either side should swap which side is optional instead.
func (s *Selection) Join(alias string, kind JoinKind, other *Selection, on *expr.Node) (*Selection, error) {
	if kind == LeftJoin && s.modifier.Optional && other.modifier.Optional {
		return nil, errFullOuterJoin
	}
	cp := s.clone()
	cp.table = &Table{
		Left: s.table, LeftAlias: s.Alias,
		Right: other.table, RightAlias: alias,
		JoinKind: kind, On: on,
	}
	merged := make(map[string]string, len(s.aliasModel)+len(other.aliasModel))
	for k, v := range s.aliasModel {
		merged[k] = v
	}
	for k, v := range other.aliasModel {
		merged[k] = v
	}
	cp.aliasModel = merged
	return cp, nil
}

// GetModifier exposes the selection's shaping state to drivers/evaluators.
func (s *Selection) GetModifier() Modifier { return s.modifier }

// TableTree exposes the selection's source tree to drivers.
func (s *Selection) TableTree() *Table { return s.table }
