// Package relation implements relation declaration defaulting, inverse
// generation, association-table synthesis, relation-aware read
// inclusion, and nested create/upsert/set/remove write orchestration
// (§4.8).
package relation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rediwo/redi-orm/schema"
)

// JunctionTableName synthesizes the association table name for a
// manyToMany relation between two models: "_{lower}To{higher}",
// comparing model names case-insensitively so both sides of the
// relation agree on the same table regardless of which declares it
// first (§3, §4.8).
func JunctionTableName(modelA, modelB string) string {
	lo, hi := modelA, modelB
	if strings.ToLower(modelA) > strings.ToLower(modelB) {
		lo, hi = modelB, modelA
	}
	return "_" + strings.ToLower(lo[:1]) + lo[1:] + "To" + hi
}

// DefaultFieldsAndReferences fills in a relation's fields/references
// columns when the declaration omits them: References default to the
// target's primary key for every kind, and manyToOne/oneToOne Fields
// default to "<relationFieldName>Id" for a single reference column. A
// oneToMany or manyToMany declaration's Fields are left as declared
// (§3, §4.8).
func DefaultFieldsAndReferences(owner *schema.Model, fieldName string, rel *schema.RelationConfig, target *schema.Model) error {
	if len(rel.References) == 0 {
		rel.References = append([]string{}, target.Primary...)
	}
	if len(rel.Fields) > 0 {
		return nil
	}
	switch rel.Kind {
	case schema.ManyToOne, schema.OneToOne:
		if len(rel.References) != 1 {
			return fmt.Errorf("relation %q: fields must be declared explicitly for composite references", fieldName)
		}
		rel.Fields = []string{fieldName + "Id"}
	case schema.OneToMany:
		// fields live on the *target* model (its foreign key column);
		// no default is derived, so they stay empty if omitted.
	case schema.ManyToMany:
		// fields/references on the junction table are derived lazily
		// in JunctionColumns, not stored back onto rel.
	}
	return nil
}

// markSubprimary flags a manyToOne/oneToOne relation whose sole
// `fields` entry is also the owning model's primary key, the
// degenerate case where the relation *is* the primary key (§4.8).
func markSubprimary(owner *schema.Model, rel *schema.RelationConfig) {
	if len(rel.Fields) != 1 || len(owner.Primary) != 1 {
		return
	}
	rel.Subprimary = rel.Fields[0] == owner.Primary[0]
}

// ResolveAll defaults, validates, and generates inverses for every
// relation field declared with a Target across every model in reg, and
// must run once after all models of a schema generation have been
// declared (§4.1's Extend doc, §4.8). Missing local reference columns
// of a manyToOne/oneToOne are added to the model, typed from the
// referenced column and nullable unless the relation is Required.
// Relation fields without a Target, generated inverses included, are
// skipped.
func ResolveAll(reg *schema.Registry) error {
	names := reg.Models()
	sort.Strings(names)

	for _, name := range names {
		m, err := reg.Model(name)
		if err != nil {
			return err
		}
		for _, fieldName := range m.RelationFields() {
			f := m.Fields[fieldName]
			rel := f.Relation
			if rel.Target == "" {
				continue // no inverse declared; generated inverses land here too
			}
			target, err := reg.Model(relationTargetModel(rel))
			if err != nil {
				return fmt.Errorf("relation %q.%q: %w", name, fieldName, err)
			}
			if err := DefaultFieldsAndReferences(m, fieldName, rel, target); err != nil {
				return err
			}
			markSubprimary(m, rel)
			if rel.Kind == schema.ManyToOne || rel.Kind == schema.OneToOne {
				missing := map[string]schema.FieldSpec{}
				for i, col := range rel.Fields {
					if i >= len(rel.References) || m.Fields[col] != nil {
						continue
					}
					if ref, ok := target.Fields[rel.References[i]]; ok {
						missing[col] = schema.FieldSpec{Kind: ref.Kind, Nullable: !rel.Required}
					}
				}
				if len(missing) > 0 {
					if err := reg.Extend(name, missing, schema.ModelConfig{}); err != nil {
						return err
					}
				}
			}

			if err := generateInverse(reg, name, fieldName, rel, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func relationTargetModel(rel *schema.RelationConfig) string {
	return rel.TargetModel
}

// generateInverse installs the mirror relation field on target if its
// inverse field name (rel.Target) is declared but missing there,
// flipping cardinality (§4.8).
//
// Fields/References stay physical-FK-column-first: Fields always names
// the foreign key column(s) on the many/child side, References always
// the column(s) on the one/parent side they point to, regardless of
// which side currently declares the config. A manyToOne's inverse
// (oneToMany) keeps the same column names: the FK still lives on the
// target (now child) table, just viewed from the parent's side. An
// owning oneToOne's inverse has no local FK of its own, so its
// Fields/References swap relative to the owning side to describe its
// end of the join instead.
func generateInverse(reg *schema.Registry, ownerName, fieldName string, rel *schema.RelationConfig, target *schema.Model) error {
	if rel.Target == "" {
		return nil
	}
	if _, exists := target.Fields[rel.Target]; exists {
		return nil
	}

	inverse := &schema.RelationConfig{
		Kind:        rel.Kind.Inverse(),
		TargetModel: ownerName,
		Shared:      rel.Shared,
		Target:      "", // the inverse's inverse is the original field, already present
	}
	if rel.Kind == schema.OneToOne {
		inverse.Fields = append([]string{}, rel.References...)
		inverse.References = append([]string{}, rel.Fields...)
	} else {
		inverse.Fields = append([]string{}, rel.Fields...)
		inverse.References = append([]string{}, rel.References...)
	}

	return reg.Extend(target.Name, map[string]schema.FieldSpec{
		rel.Target: {Kind: "", Relation: inverse},
	}, schema.ModelConfig{})
}
