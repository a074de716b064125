package relation

import (
	"fmt"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/schema"
)

// ApplyInclude rewrites sel to also populate relationField: a join is
// attached for the related table (through an association table for
// manyToMany), and the related row(s) are folded back into the result
// shape as either a single object (manyToOne/oneToOne) or an
// ignoreNull-pruned array of objects (oneToMany/manyToMany), per the
// read-inclusion rule (§4.5).
func ApplyInclude(reg *schema.Registry, sel *query.Selection, model *schema.Model, relationField string, nested map[string]any) (*query.Selection, error) {
	f, err := model.GetField(relationField)
	if err != nil {
		return nil, err
	}
	rel := f.Relation
	if rel == nil {
		return nil, fmt.Errorf("relation: %q is not a relation field on %q", relationField, model.Name)
	}
	target, err := reg.Model(rel.TargetModel)
	if err != nil {
		return nil, err
	}
	childAlias := sel.Alias + "__" + relationField

	switch rel.Kind {
	case schema.ManyToOne, schema.OneToOne:
		return includeSingular(sel, childAlias, target, rel, relationField)
	case schema.OneToMany:
		return includeOneToMany(sel, childAlias, target, rel, relationField, model)
	case schema.ManyToMany:
		return includeManyToMany(reg, sel, childAlias, target, rel, relationField, model)
	default:
		return nil, fmt.Errorf("relation: unknown relation kind %q", rel.Kind)
	}
}

func includeSingular(sel *query.Selection, childAlias string, target *schema.Model, rel *schema.RelationConfig, relationField string) (*query.Selection, error) {
	child := query.From(sel.Registry(), childAlias, target.Name).Optional()
	on := buildEquality(sel.Alias, rel.Fields, childAlias, rel.References)
	joined, err := sel.Join(childAlias, query.LeftJoin, child, on)
	if err != nil {
		return nil, err
	}
	obj := expr.IgnoreNull(objectOf(childAlias, target))
	return attachProjection(joined, sel.Alias, relationField, obj)
}

func includeOneToMany(sel *query.Selection, childAlias string, target *schema.Model, rel *schema.RelationConfig, relationField string, owner *schema.Model) (*query.Selection, error) {
	child := query.From(sel.Registry(), childAlias, target.Name).Optional()
	// fields live on the target (child) side, referencing the owner's key.
	on := buildEquality(childAlias, rel.Fields, sel.Alias, rel.References)
	joined, err := sel.Join(childAlias, query.LeftJoin, child, on)
	if err != nil {
		return nil, err
	}
	arr := expr.Array(expr.IgnoreNull(objectOf(childAlias, target)))
	grouped := joined.GroupBy(owner.Primary...)
	return attachProjection(grouped, sel.Alias, relationField, arr)
}

func includeManyToMany(reg *schema.Registry, sel *query.Selection, childAlias string, target *schema.Model, rel *schema.RelationConfig, relationField string, owner *schema.Model) (*query.Selection, error) {
	junctionAlias := childAlias + "__j"
	junctionTable := rel.Table
	if junctionTable == "" {
		junctionTable = JunctionTableName(owner.Name, target.Name)
	}
	ownerCol, targetCol := JunctionColumns(owner, target, rel)

	junction := query.FromTable(reg, junctionAlias, junctionTable)
	onOwner := expr.Eq(expr.Get(junctionAlias, []string{ownerCol}, nil), expr.Get(sel.Alias, owner.Primary, nil))
	withJunction, err := sel.Join(junctionAlias, query.LeftJoin, junction.Optional(), onOwner)
	if err != nil {
		return nil, err
	}

	child := query.From(reg, childAlias, target.Name).Optional()
	targetKey := expr.Get(junctionAlias, []string{targetCol}, nil)
	onTarget := expr.And(expr.Not(expr.IsNull(targetKey)), expr.Eq(expr.Get(childAlias, target.Primary, nil), targetKey))
	joined, err := withJunction.Join(childAlias, query.LeftJoin, child, onTarget)
	if err != nil {
		return nil, err
	}

	arr := expr.Array(expr.IgnoreNull(objectOf(childAlias, target)))
	grouped := joined.GroupBy(owner.Primary...)
	return attachProjection(grouped, sel.Alias, relationField, arr)
}

// buildEquality joins leftCols to rightCols pairwise. eq treats a null
// operand as match-any, so each pair also requires both keys non-null;
// a null foreign key therefore joins no row of the other side.
func buildEquality(leftAlias string, leftCols []string, rightAlias string, rightCols []string) *expr.Node {
	var conds []*expr.Node
	for i := range leftCols {
		l := expr.Get(leftAlias, []string{leftCols[i]}, nil)
		r := expr.Get(rightAlias, []string{rightCols[i]}, nil)
		conds = append(conds, expr.Not(expr.IsNull(l)), expr.Not(expr.IsNull(r)), expr.Eq(l, r))
	}
	return expr.And(conds...)
}

// objectOf builds an object(...) node over every non-relation field of
// target, scoped to alias, for folding a joined row back into a
// nested result (§4.5).
func objectOf(alias string, target *schema.Model) *expr.Node {
	fields := make(map[string]*expr.Node, len(target.FieldOrder))
	for _, name := range target.FieldOrder {
		f := target.Fields[name]
		if f.Relation != nil {
			continue
		}
		fields[name] = expr.Get(alias, []string{name}, f.Type)
	}
	return expr.Object(fields)
}

// attachProjection merges one relation's computed expression into
// sel's existing projection (defaulting to every field of the base
// model when no projection has been set yet).
func attachProjection(sel *query.Selection, baseAlias, relationField string, n *expr.Node) (*query.Selection, error) {
	m, err := sel.ModelNamed(baseAlias)
	if err != nil {
		return nil, err
	}
	fields := sel.GetModifier().Fields
	merged := make(map[string]*expr.Node, len(fields)+1)
	if fields == nil {
		for _, name := range m.FieldOrder {
			f := m.Fields[name]
			if f.Relation != nil {
				continue
			}
			merged[name] = expr.Get(baseAlias, []string{name}, f.Type)
		}
	} else {
		for k, v := range fields {
			merged[k] = v
		}
	}
	merged[relationField] = n
	return sel.Project(merged), nil
}
