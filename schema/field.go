// Package schema implements the model and type registry: field and
// model declarations, custom named types with dump/load transformers,
// and the structural descriptors used to tag expressions built over a
// model's fields.
package schema

import (
	"fmt"
	"strings"

	"github.com/rediwo/redi-orm/types"
)

// Transformer converts a value between its in-memory representation and
// its stored representation. Dump runs on write, Load on read.
type Transformer struct {
	Dump func(any) (any, error)
	Load func(any) (any, error)
}

// FieldSpec is the user-facing declaration passed to Registry.Extend.
// Exactly one of Kind or CustomType should be set; if Dump or Load is
// present an anonymous custom type is generated for this field
// and its Kind replaced with the generated name (§4.1).
type FieldSpec struct {
	Kind          types.Kind
	CustomType    string
	Length        int
	Precision     int
	Scale         int
	Nullable      bool
	Initial       any
	HasInitial    bool
	LegacyAliases []string
	Dump          func(any) (any, error)
	Load          func(any) (any, error)
	Relation      *RelationConfig
}

// Field is a fully parsed field specification, the product of
// Registry.Extend merging a FieldSpec against the custom type registry.
type Field struct {
	Name          string
	Kind          types.Kind // resolved underlying primitive kind
	DeclaredType  string     // the kind or custom type name as declared
	Length        int
	Precision     int
	Scale         int
	Nullable      bool
	Initial       any
	LegacyAliases []string
	Transformers  []Transformer // outermost-first on dump order
	Type          *types.TypeDescriptor
	Relation      *RelationConfig

	// ObjectChildren is not filled in by Extend or unflatten; the shape
	// of dotted object fields is kept in Model.ObjectShapes instead.
	ObjectChildren []string
}

// RelationConfig is the parsed relation declaration attached to an
// expr-kind field (§3 Relation Config).
type RelationConfig struct {
	Kind        RelationKind
	TargetModel string // the related model's registered name
	Table       string // association table name override, many-to-many only
	Fields      []string
	References  []string
	Required    bool
	Shared      map[string]string // local column -> remote column, many-to-many only
	Target      string            // inverse field name on the other model, if any

	// Subprimary marks a manyToOne/oneToOne relation whose sole `fields`
	// entry is also this model's primary key (§4.8).
	Subprimary bool
}

type RelationKind string

const (
	OneToOne   RelationKind = "oneToOne"
	ManyToOne  RelationKind = "manyToOne"
	OneToMany  RelationKind = "oneToMany"
	ManyToMany RelationKind = "manyToMany"
)

// Inverse returns the cardinality this relation's inverse edge carries.
func (k RelationKind) Inverse() RelationKind {
	switch k {
	case OneToOne:
		return OneToOne
	case ManyToOne:
		return OneToMany
	case OneToMany:
		return ManyToOne
	case ManyToMany:
		return ManyToMany
	default:
		return k
	}
}

// parseFieldSpec resolves a FieldSpec into a Field, installing an
// anonymous custom type first if the spec carries its own dump/load
// pair.
func parseFieldSpec(reg *Registry, name string, spec FieldSpec) (*Field, error) {
	// A relation field carries no storage kind of its own: it is
	// resolved structurally (Relation != nil) rather than through the
	// primitive/custom type registry.
	if spec.Relation != nil && spec.Kind == "" && spec.CustomType == "" {
		return &Field{
			Name:     name,
			Kind:     types.KindExpr,
			Type:     &types.TypeDescriptor{Kind: types.KindExpr},
			Relation: spec.Relation,
		}, nil
	}

	declared := string(spec.Kind)
	if spec.CustomType != "" {
		declared = spec.CustomType
	}

	if spec.Dump != nil || spec.Load != nil {
		if spec.Kind == "" {
			return nil, fmt.Errorf("field %q: anonymous custom type requires an underlying kind", name)
		}
		generated, err := reg.Define("", CustomTypeSpec{
			Underlying: spec.Kind,
			Dump:       spec.Dump,
			Load:       spec.Load,
			Initial:    spec.Initial,
		})
		if err != nil {
			return nil, err
		}
		declared = generated
	}

	kind, transformers, initial, hasInitial, err := reg.resolveType(declared)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}

	if spec.Kind != "" && spec.Dump == nil && spec.Load == nil {
		kind = spec.Kind
		transformers = nil
		hasInitial = false
	}

	f := &Field{
		Name:          name,
		Kind:          kind,
		DeclaredType:  declared,
		Length:        spec.Length,
		Precision:     spec.Precision,
		Scale:         spec.Scale,
		Nullable:      spec.Nullable,
		LegacyAliases: spec.LegacyAliases,
		Transformers:  transformers,
		Relation:      spec.Relation,
	}

	switch {
	case spec.HasInitial:
		f.Initial = spec.Initial
	case hasInitial:
		f.Initial = initial
	case spec.Nullable:
		f.Initial = nil
	default:
		f.Initial = kind.InitialValue()
	}

	f.Type = fieldTypeDescriptor(f)
	return f, nil
}

func fieldTypeDescriptor(f *Field) *types.TypeDescriptor {
	switch f.Kind {
	case types.KindArray:
		return types.ArrayOf(types.Scalar(types.KindString))
	default:
		return types.Scalar(f.Kind)
	}
}

// unflattenDotted splits a dotted field name ("a.b.c") into its path
// segments. Names without a dot return a single-element path.
func unflattenDotted(name string) []string {
	return strings.Split(name, ".")
}
