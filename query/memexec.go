package query

import (
	"fmt"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/schema"
)

// TableSource supplies the raw rows for a model, keyed by table name,
// to the in-memory executor. The memory driver and unit tests both
// implement this against a plain map.
type TableSource func(table string) ([]map[string]any, error)

// Execute runs sel entirely in memory: it resolves the join tree into
// a flat stream of expr.RowContext values, applies the predicate,
// groups, sorts, pages, and projects. Both the in-memory reference
// driver and the SQLite driver (which only scans tables and writes in
// SQL) run every read through it (§4.4, §5). An ungrouped Evaluate
// selection folds all matched rows into one group.
func Execute(sel *Selection, src TableSource, ev *expr.Evaluator) ([]map[string]any, error) {
	rows, err := resolveTable(sel.table, sel.Alias, sel.reg, src)
	if err != nil {
		return nil, err
	}

	if sel.predicate != nil {
		filtered := rows[:0]
		for _, ctx := range rows {
			ok, err := ev.Eval(sel.predicate, ctx)
			if err != nil {
				return nil, err
			}
			if b, _ := ok.(bool); b {
				filtered = append(filtered, ctx)
			}
		}
		rows = filtered
	}

	mod := sel.modifier
	var groups []*expr.RowContext
	if len(mod.Group) > 0 {
		groups, err = groupRows(rows, mod.Group, sel.Alias)
		if err != nil {
			return nil, err
		}
		if mod.Having != nil {
			filtered := groups[:0]
			for _, g := range groups {
				ok, err := ev.Eval(mod.Having, g)
				if err != nil {
					return nil, err
				}
				if b, _ := ok.(bool); b {
					filtered = append(filtered, g)
				}
			}
			groups = filtered
		}
	} else if _, ok := mod.Fields[EvalField]; ok {
		var row map[string]map[string]any
		if len(rows) > 0 {
			row = rows[0].Row
		}
		groups = []*expr.RowContext{{Row: row, Group: rows}}
	} else {
		groups = rows
	}

	if len(mod.Sort) > 0 {
		keys := make([]*expr.Node, len(mod.Sort))
		desc := make([]bool, len(mod.Sort))
		for i, s := range mod.Sort {
			keys[i] = expr.Get(sel.Alias, s.Path, nil)
			desc[i] = s.Desc
		}
		if err := expr.SortGroup(ev, groups, keys, desc); err != nil {
			return nil, err
		}
	}

	if mod.Offset > 0 {
		if mod.Offset >= len(groups) {
			groups = nil
		} else {
			groups = groups[mod.Offset:]
		}
	}
	if mod.HasLimit && mod.Limit < len(groups) {
		groups = groups[:mod.Limit]
	}

	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		out = append(out, projectRow(g, mod, sel.Alias, ev))
	}
	return out, nil
}

func projectRow(ctx *expr.RowContext, mod Modifier, alias string, ev *expr.Evaluator) map[string]any {
	if mod.Fields == nil {
		if row, ok := ctx.Row[alias]; ok {
			return row
		}
		return map[string]any{}
	}
	out := make(map[string]any, len(mod.Fields))
	for name, n := range mod.Fields {
		v, err := ev.Eval(n, ctx)
		if err != nil {
			v = nil
		}
		out[name] = v
	}
	return out
}

func groupRows(rows []*expr.RowContext, keys []string, alias string) ([]*expr.RowContext, error) {
	order := []string{}
	buckets := map[string][]*expr.RowContext{}
	for _, ctx := range rows {
		row := ctx.Row[alias]
		vals := make([]any, len(keys))
		for i, k := range keys {
			if row != nil {
				vals[i] = row[k]
			}
		}
		key := fmt.Sprint(vals)
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], ctx)
	}
	out := make([]*expr.RowContext, 0, len(order))
	for _, key := range order {
		group := buckets[key]
		out = append(out, &expr.RowContext{Row: group[0].Row, Group: group})
	}
	return out, nil
}

// resolveTable flattens t into a slice of joined row contexts, tagging
// a bare model table with alias (the alias its parent Selection or
// join pair assigned it).
func resolveTable(t *Table, alias string, reg *schema.Registry, src TableSource) ([]*expr.RowContext, error) {
	if t.Left != nil {
		return resolveJoin(t, reg, src)
	}
	table, err := t.storageName(reg)
	if err != nil {
		return nil, err
	}
	rows, err := src(table)
	if err != nil {
		return nil, err
	}
	out := make([]*expr.RowContext, len(rows))
	for i, row := range rows {
		out[i] = expr.NewRow(alias, row)
	}
	return out, nil
}

func resolveJoin(t *Table, reg *schema.Registry, src TableSource) ([]*expr.RowContext, error) {
	left, err := resolveTable(t.Left, t.LeftAlias, reg, src)
	if err != nil {
		return nil, err
	}
	right, err := resolveTable(t.Right, t.RightAlias, reg, src)
	if err != nil {
		return nil, err
	}

	ev := &expr.Evaluator{}
	var out []*expr.RowContext
	for _, l := range left {
		matched := false
		for _, r := range right {
			var row map[string]any
			for _, v := range r.Row {
				row = v
			}
			combined := l.With(t.RightAlias, row)
			if t.On != nil {
				ok, err := ev.Eval(t.On, combined)
				if err != nil {
					return nil, err
				}
				if b, _ := ok.(bool); !b {
					continue
				}
			}
			matched = true
			out = append(out, combined)
		}
		if !matched && t.JoinKind == LeftJoin {
			out = append(out, l)
		}
	}
	return out, nil
}
