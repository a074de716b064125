package query

import (
	"strings"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/schema"
)

// Row is the row proxy used to build expression trees against a
// selection's aliased tables without hand-rolling expr.Get calls: a
// projection or evaluate() callback receives one of these per
// participating alias (§4.4).
type Row struct {
	alias string
	model *schema.Model
}

// NewRow binds a row proxy to one alias/model pair.
func NewRow(alias string, model *schema.Model) *Row {
	return &Row{alias: alias, model: model}
}

// Field resolves a (possibly dotted) field name into a Get node tagged
// with that field's Type Descriptor. Dotted names first try a direct
// field match (flattened storage) and fall back to indexing into the
// unflattened object shape.
func (r *Row) Field(name string) *expr.Node {
	if f, err := r.model.GetField(name); err == nil {
		return expr.Get(r.alias, strings.Split(name, "."), f.Type)
	}
	parts := strings.SplitN(name, ".", 2)
	if f, err := r.model.GetField(parts[0]); err == nil && len(parts) == 2 {
		shape, ok := r.model.ObjectShapes[parts[0]]
		var td = f.Type
		if ok {
			if member, ok := shape.Fields[parts[1]]; ok {
				td = member
			}
		}
		return expr.Get(r.alias, strings.Split(name, "."), td)
	}
	return expr.Get(r.alias, strings.Split(name, "."), nil)
}

// Elem indexes into a list-valued expression by position, for
// row[field][i] access patterns over array-kind columns (§4.4).
func (r *Row) Elem(name string, index int) *expr.Node {
	return expr.ElemAt(r.Field(name), expr.Literal(index, nil))
}
