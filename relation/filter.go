package relation

import (
	"context"
	"fmt"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

// ResolveRelationFilters rewrites sel's pending relation-valued
// predicate keys ($some/$none/$every/equality, §4.3) into a plain
// boolean expression against owner's primary key, by evaluating each
// relation's target-side candidates through drv and folding the
// matching owner keys back in as an $in/$nin test (§4.5's
// relation-filter-rewriting rule). Composite (multi-column) primary
// keys are not supported by this rewrite and return an error; drivers
// that can push relation filters down to native joins are free to
// intercept RelationFilters earlier and skip this path entirely.
func ResolveRelationFilters(ctx context.Context, reg *schema.Registry, drv query.Driver, owner *schema.Model, sel *query.Selection) (*query.Selection, error) {
	out := sel
	for _, rf := range sel.RelationFilters() {
		n, err := rewriteOne(ctx, reg, drv, owner, out.Alias, rf)
		if err != nil {
			return nil, err
		}
		out = out.WhereExpr(n)
	}
	return out.ClearRelationFilters(), nil
}

func rewriteOne(ctx context.Context, reg *schema.Registry, drv query.Driver, owner *schema.Model, ownerAlias string, rf expr.RelationFilter) (*expr.Node, error) {
	f, err := owner.GetField(rf.Field)
	if err != nil {
		return nil, err
	}
	rel := f.Relation
	target, err := reg.Model(rel.TargetModel)
	if err != nil {
		return nil, err
	}
	if len(owner.Primary) != 1 {
		return nil, fmt.Errorf("relation: filtering %q requires a single-column primary key on %q", rf.Field, owner.Name)
	}
	ownerKey := owner.Primary[0]

	switch rel.Kind {
	case schema.ManyToOne, schema.OneToOne:
		sub, err := query.From(reg, "t", target.Name).Where(rf.Sub)
		if err != nil {
			return nil, err
		}
		rows, err := drv.Eval(ctx, sub)
		if err != nil {
			return nil, err
		}
		keys := collectKeys(rows, target.Primary[0])
		get := expr.Get(ownerAlias, []string{rel.Fields[0]}, f.Type)
		if rf.Mode == expr.RelNone {
			return expr.Nin(get, expr.Literal(keys, types.ArrayOf(f.Type))), nil
		}
		return expr.In(get, expr.Literal(keys, types.ArrayOf(f.Type))), nil

	case schema.OneToMany:
		sub, err := query.From(reg, "t", target.Name).Where(rf.Sub)
		if err != nil {
			return nil, err
		}
		rows, err := drv.Eval(ctx, sub)
		if err != nil {
			return nil, err
		}
		matchingOwnerKeys := collectKeys(rows, rel.Fields[0])

		if rf.Mode == expr.RelEvery {
			return resolveEveryFilter(ctx, reg, drv, owner, ownerAlias, rel, target, rf, ownerKey)
		}
		get := expr.Get(ownerAlias, []string{ownerKey}, nil)
		if rf.Mode == expr.RelNone {
			return expr.Nin(get, expr.Literal(matchingOwnerKeys, types.ArrayOf(f.Type))), nil
		}
		return expr.In(get, expr.Literal(matchingOwnerKeys, types.ArrayOf(f.Type))), nil

	case schema.ManyToMany:
		junctionTable := rel.Table
		if junctionTable == "" {
			junctionTable = JunctionTableName(owner.Name, target.Name)
		}
		ownerCol, targetCol := JunctionColumns(owner, target, rel)

		sub, err := query.From(reg, "t", target.Name).Where(rf.Sub)
		if err != nil {
			return nil, err
		}
		targetRows, err := drv.Eval(ctx, sub)
		if err != nil {
			return nil, err
		}
		targetKeys := collectKeys(targetRows, target.Primary[0])

		junctionSel, err := query.FromTable(reg, "j", junctionTable).WhereRaw(map[string]any{
			targetCol: map[string]any{"$in": targetKeys},
		})
		if err != nil {
			return nil, err
		}
		junctionRows, err := drv.Eval(ctx, junctionSel)
		if err != nil {
			return nil, err
		}
		ownerKeys := collectKeys(junctionRows, ownerCol)

		get := expr.Get(ownerAlias, []string{ownerKey}, nil)
		if rf.Mode == expr.RelNone {
			return expr.Nin(get, expr.Literal(ownerKeys, types.ArrayOf(f.Type))), nil
		}
		return expr.In(get, expr.Literal(ownerKeys, types.ArrayOf(f.Type))), nil

	default:
		return nil, fmt.Errorf("relation: unsupported relation kind %q for filtering", rel.Kind)
	}
}

// resolveEveryFilter handles $every by negation: an owner row
// satisfies "every related row matches Sub" iff it has no related row
// failing Sub, i.e. it is absent from the $none-style candidate set
// built from the negated sub-predicate.
func resolveEveryFilter(ctx context.Context, reg *schema.Registry, drv query.Driver, owner *schema.Model, ownerAlias string, rel *schema.RelationConfig, target *schema.Model, rf expr.RelationFilter, ownerKey string) (*expr.Node, error) {
	failing, err := query.From(reg, "t", target.Name).Where(map[string]any{"$not": rf.Sub})
	if err != nil {
		return nil, err
	}
	rows, err := drv.Eval(ctx, failing)
	if err != nil {
		return nil, err
	}
	failingOwnerKeys := collectKeys(rows, rel.Fields[0])
	get := expr.Get(ownerAlias, []string{ownerKey}, nil)
	return expr.Nin(get, expr.Literal(failingOwnerKeys, types.ArrayOf(nil))), nil
}

func collectKeys(rows []map[string]any, col string) []any {
	keys := make([]any, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r[col])
	}
	return keys
}
