package expr

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

// RelationFilterMode tags how a relation-valued predicate key should be
// rewritten into a join/subquery by the relation package (§4.3, §4.5).
type RelationFilterMode string

const (
	RelSome   RelationFilterMode = "some"   // at least one related row matches
	RelNone   RelationFilterMode = "none"   // no related row matches
	RelEvery  RelationFilterMode = "every"  // every related row matches
	RelEquals RelationFilterMode = "equals" // the related row itself matches (manyToOne/oneToOne)
)

// RelationFilter is a relation-field predicate the expr package cannot
// resolve on its own, since doing so requires a join or subquery over
// another model's table. ParsePredicate collects these separately so
// the relation package can rewrite them in context (§4.3).
type RelationFilter struct {
	Field string
	Mode  RelationFilterMode
	Sub   map[string]any
}

// ParsePredicate compiles a query-predicate map (§4.3) against model m
// into a boolean expression tree plus any relation-valued filters that
// must be resolved by the caller. A nil returned Node means "always
// true" (an empty predicate).
func ParsePredicate(m *schema.Model, alias string, query map[string]any) (*Node, []RelationFilter, error) {
	if len(query) == 0 {
		return nil, nil, nil
	}

	var conds []*Node
	var relFilters []RelationFilter

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := query[key]
		switch key {
		case "$and", "$or":
			clauses, ok := val.([]map[string]any)
			if !ok {
				clauses = toMapSlice(val)
			}
			var sub []*Node
			for _, clause := range clauses {
				n, rf, err := ParsePredicate(m, alias, clause)
				if err != nil {
					return nil, nil, err
				}
				if n != nil {
					sub = append(sub, n)
				}
				relFilters = append(relFilters, rf...)
			}
			if len(sub) == 0 {
				continue
			}
			if key == "$and" {
				conds = append(conds, And(sub...))
			} else {
				conds = append(conds, Or(sub...))
			}

		case "$not":
			inner, ok := val.(map[string]any)
			if !ok {
				return nil, nil, fmt.Errorf("expr: $not expects an object, got %T", val)
			}
			n, rf, err := ParsePredicate(m, alias, inner)
			if err != nil {
				return nil, nil, err
			}
			if n != nil {
				conds = append(conds, Not(n))
			}
			relFilters = append(relFilters, rf...)

		case "$expr":
			n, ok := val.(*Node)
			if !ok {
				return nil, nil, fmt.Errorf("expr: $expr expects a *Node, got %T", val)
			}
			conds = append(conds, n)

		default:
			f, err := m.GetField(key)
			if err != nil {
				return nil, nil, fmt.Errorf("expr: %w", err)
			}
			if f.Relation != nil {
				rf, err := parseRelationFilter(key, val)
				if err != nil {
					return nil, nil, err
				}
				relFilters = append(relFilters, rf...)
				continue
			}
			n, err := parseFieldPredicate(alias, key, f, val)
			if err != nil {
				return nil, nil, err
			}
			if n != nil {
				conds = append(conds, n)
			}
		}
	}

	if len(conds) == 0 {
		return nil, relFilters, nil
	}
	if len(conds) == 1 {
		return conds[0], relFilters, nil
	}
	return And(conds...), relFilters, nil
}

func toMapSlice(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func parseRelationFilter(field string, val any) ([]RelationFilter, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expr: relation field %q expects an object predicate", field)
	}
	for _, mode := range []RelationFilterMode{RelSome, RelNone, RelEvery} {
		if sub, ok := m["$"+string(mode)]; ok {
			subMap, ok := sub.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expr: %s on %q expects an object", mode, field)
			}
			return []RelationFilter{{Field: field, Mode: mode, Sub: subMap}}, nil
		}
	}
	return []RelationFilter{{Field: field, Mode: RelEquals, Sub: m}}, nil
}

// parseFieldPredicate compiles one field's shorthand or operator-map
// value into a boolean node referencing alias.field.
func parseFieldPredicate(alias, name string, f *schema.Field, val any) (*Node, error) {
	get := Get(alias, splitDotted(name), f.Type)

	opMap, isOpMap := asOperatorMap(val)
	if !isOpMap {
		if val == nil {
			return IsNull(get), nil
		}
		if list, ok := asList(val); ok {
			return In(get, Literal(list, types.ArrayOf(f.Type))), nil
		}
		return Eq(get, Literal(val, f.Type)), nil
	}

	var conds []*Node
	keys := make([]string, 0, len(opMap))
	for k := range opMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, op := range keys {
		opVal := opMap[op]
		switch op {
		case "$eq":
			conds = append(conds, Eq(get, Literal(opVal, f.Type)))
		case "$ne":
			conds = append(conds, Ne(get, Literal(opVal, f.Type)))
		case "$gt":
			conds = append(conds, Gt(get, Literal(opVal, f.Type)))
		case "$gte", "$ge":
			conds = append(conds, Ge(get, Literal(opVal, f.Type)))
		case "$lt":
			conds = append(conds, Lt(get, Literal(opVal, f.Type)))
		case "$lte", "$le":
			conds = append(conds, Le(get, Literal(opVal, f.Type)))
		case "$in":
			list, _ := asList(opVal)
			conds = append(conds, In(get, Literal(list, types.ArrayOf(f.Type))))
		case "$nin":
			list, _ := asList(opVal)
			conds = append(conds, Nin(get, Literal(list, types.ArrayOf(f.Type))))
		case "$isNull":
			b, _ := opVal.(bool)
			if b {
				conds = append(conds, IsNull(get))
			} else {
				conds = append(conds, Not(IsNull(get)))
			}
		case "$exists":
			b, _ := opVal.(bool)
			if b {
				conds = append(conds, Not(IsNull(get)))
			} else {
				conds = append(conds, IsNull(get))
			}
		case "$regex":
			pattern, _ := opVal.(string)
			conds = append(conds, Regex(get, Literal(pattern, types.String())))
		case "$contains":
			s, _ := opVal.(string)
			conds = append(conds, Regex(get, Literal(regexp.QuoteMeta(s), types.String())))
		case "$startsWith":
			s, _ := opVal.(string)
			conds = append(conds, Regex(get, Literal("^"+regexp.QuoteMeta(s), types.String())))
		case "$endsWith":
			s, _ := opVal.(string)
			conds = append(conds, Regex(get, Literal(regexp.QuoteMeta(s)+"$", types.String())))
		case "$size":
			conds = append(conds, Eq(Length(get), Literal(opVal, types.Scalar(types.KindInteger))))
		default:
			return nil, fmt.Errorf("expr: unknown field operator %q on %q", op, name)
		}
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return And(conds...), nil
}

// asOperatorMap reports whether val is a map whose keys are all
// "$"-prefixed operators, as opposed to a plain equality shorthand that
// happens to be a map (e.g. a JSON-kind field's literal value).
func asOperatorMap(val any) (map[string]any, bool) {
	m, ok := val.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

func asList(val any) ([]any, bool) {
	list, ok := val.([]any)
	return list, ok
}

func splitDotted(name string) []string {
	var out []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out = append(out, name[start:i])
			start = i + 1
		}
	}
	out = append(out, name[start:])
	return out
}
