package types

// Kind is the closed set of primitive field kinds THE CORE understands.
// A custom named type always resolves to one of these at the bottom of
// its transformer chain.
type Kind string

const (
	KindInteger   Kind = "integer"
	KindUnsigned  Kind = "unsigned"
	KindBigint    Kind = "bigint"
	KindFloat     Kind = "float"
	KindDouble    Kind = "double"
	KindDecimal   Kind = "decimal"
	KindChar      Kind = "char"
	KindString    Kind = "string"
	KindText      Kind = "text"
	KindBoolean   Kind = "boolean"
	KindTimestamp Kind = "timestamp"
	KindDate      Kind = "date"
	KindTime      Kind = "time"
	KindBinary    Kind = "binary"
	KindList      Kind = "list"
	KindJSON      Kind = "json"
	KindArray     Kind = "array"
	KindObject    Kind = "object"
	KindExpr      Kind = "expr"
)

// IsNumeric reports whether values of this kind support arithmetic.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInteger, KindUnsigned, KindBigint, KindFloat, KindDouble, KindDecimal:
		return true
	}
	return false
}

// InitialValue returns the implicit initial value for a bare kind
// (before any field-level override is applied).
func (k Kind) InitialValue() any {
	switch k {
	case KindInteger, KindUnsigned, KindBigint, KindFloat, KindDouble, KindDecimal:
		return 0
	case KindChar, KindString, KindText:
		return ""
	case KindBoolean:
		return false
	case KindList:
		return []string{}
	case KindArray:
		return []any{}
	case KindJSON, KindObject:
		return map[string]any{}
	default:
		return nil
	}
}

// TypeDescriptor is the structural tag attached to every field and
// expression node: a primitive kind, an optional inner shape for object
// (named field types) or array (single element type) containers, and an
// ignore-null flag used to prune all-null elements out of aggregated
// collections on decode.
type TypeDescriptor struct {
	Kind       Kind
	Inner      *TypeDescriptor            // element type, when Kind == array
	Fields     map[string]*TypeDescriptor // member types, when Kind == object
	IgnoreNull bool
}

// Scalar builds a TypeDescriptor for a plain, non-container kind.
func Scalar(k Kind) *TypeDescriptor {
	return &TypeDescriptor{Kind: k}
}

// ArrayOf builds a TypeDescriptor describing an array of elem.
func ArrayOf(elem *TypeDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Kind: KindArray, Inner: elem}
}

// ObjectOf builds a TypeDescriptor describing a record with the given
// member types.
func ObjectOf(fields map[string]*TypeDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Kind: KindObject, Fields: fields}
}

// WithIgnoreNull returns a shallow copy of td marked to prune null
// elements on decode; used by ignoreNull(...) and propagated into
// downstream array() aggregation so outer-joined all-null rows collapse
// away instead of surfacing as {}.
func (td *TypeDescriptor) WithIgnoreNull() *TypeDescriptor {
	if td == nil {
		return nil
	}
	cp := *td
	cp.IgnoreNull = true
	return &cp
}

// Boolean, Number and String are convenience descriptors used
// throughout the expression tree's type-propagation rules.
func Boolean() *TypeDescriptor { return Scalar(KindBoolean) }
func Number() *TypeDescriptor  { return Scalar(KindDouble) }
func String() *TypeDescriptor  { return Scalar(KindString) }
