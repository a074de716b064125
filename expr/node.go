// Package expr implements the expression tree: the tagged sum of value
// expressions (literals, field references, arithmetic, comparison,
// logical, membership, regex, bitwise, aggregation, object/array
// construction, switch/if/ifNull, element access, subquery embedding)
// used throughout filters, projections, and updates. Every node carries
// a Type Descriptor (§4.2).
package expr

import "github.com/rediwo/redi-orm/types"

// Op tags the operator a Node applies.
type Op string

const (
	OpLiteral Op = "literal"
	OpGet     Op = "get" // field reference: Table + Path

	// universal
	OpIf     Op = "if"
	OpIfNull Op = "ifNull"
	OpSwitch Op = "switch"

	// arithmetic
	OpAdd      Op = "add"
	OpMultiply Op = "multiply"
	OpSubtract Op = "subtract"
	OpDivide   Op = "divide"
	OpModulo   Op = "modulo"
	OpPow      Op = "pow"
	OpLog      Op = "log"
	OpExp      Op = "exp"
	OpAbs      Op = "abs"
	OpCeil     Op = "ceil"
	OpFloor    Op = "floor"
	OpRound    Op = "round"
	OpRandom   Op = "random"

	// comparison
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpLt Op = "lt"
	OpLe Op = "le"

	// OpIsNull is the explicit existence check the null-handling open
	// question (§9) calls for: unlike eq/ne it never treats null as
	// match-any.
	OpIsNull Op = "isNull"

	// membership
	OpIn  Op = "in"
	OpNin Op = "nin"

	// string
	OpConcat Op = "concat"
	OpRegex  Op = "regex"

	// logical
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"

	// bitwise
	OpBitAnd Op = "bitAnd"
	OpBitOr  Op = "bitOr"
	OpBitXor Op = "bitXor"
	OpBitNot Op = "bitNot"

	OpBitsAllSet   Op = "bitsAllSet"
	OpBitsAllClear Op = "bitsAllClear"
	OpBitsAnySet   Op = "bitsAnySet"
	OpBitsAnyClear Op = "bitsAnyClear"

	// list
	OpLength Op = "length"
	OpElem   Op = "elem" // get(list, index)
	OpEl     Op = "$el"  // element predicate
	OpSize   Op = "$size"

	// aggregation (collapse a multi-row context)
	OpSum   Op = "sum"
	OpAvg   Op = "avg"
	OpMin   Op = "min"
	OpMax   Op = "max"
	OpCount Op = "count"
	OpArray Op = "array"

	// constructors
	OpObject     Op = "object"
	OpIgnoreNull Op = "ignoreNull"

	// subquery embedding: Value holds an opaque, driver/query-package
	// supplied handle this package does not interpret itself.
	OpSubquery Op = "subquery"
)

// aggregationOps collapse a multi-row context into one value.
var aggregationOps = map[Op]bool{
	OpSum: true, OpAvg: true, OpMin: true, OpMax: true, OpCount: true, OpArray: true,
}

// IsAggregation reports whether op collapses a multi-row context.
func (op Op) IsAggregation() bool { return aggregationOps[op] }

// Node is a single expression-tree node: an operator tag, its operand
// children, and a Type Descriptor.
type Node struct {
	Op   Op
	Type *types.TypeDescriptor
	Args []*Node

	Value any // OpLiteral, OpSubquery, OpRegex pattern literal

	Table string   // OpGet: table alias
	Path  []string // OpGet: dotted path within that alias's row

	Fields map[string]*Node // OpObject: member name -> expression

	Branches []SwitchBranch // OpSwitch
}

// SwitchBranch is one (condition, value) arm of a switch(...) node; the
// final fallback is stored as Node.Args[0] when len(Args) == 1.
type SwitchBranch struct {
	When  *Node
	Value *Node
}

// Literal stamps a runtime value with a Type Descriptor (the literal(..)
// constructor, §4.2).
func Literal(v any, td *types.TypeDescriptor) *Node {
	if td == nil {
		td = inferLiteralType(v)
	}
	return &Node{Op: OpLiteral, Value: v, Type: td}
}

func inferLiteralType(v any) *types.TypeDescriptor {
	switch v.(type) {
	case bool:
		return types.Boolean()
	case string:
		return types.String()
	case int, int32, int64, float32, float64:
		return types.Number()
	default:
		return &types.TypeDescriptor{Kind: types.KindExpr}
	}
}

// Get builds a field reference node: alias.path[0].path[1]...
func Get(alias string, path []string, td *types.TypeDescriptor) *Node {
	return &Node{Op: OpGet, Table: alias, Path: path, Type: td}
}

// Object builds a record-construction node whose Type Descriptor is the
// composition of its member types (§4.2).
func Object(fields map[string]*Node) *Node {
	members := make(map[string]*types.TypeDescriptor, len(fields))
	for k, n := range fields {
		members[k] = n.Type
	}
	return &Node{Op: OpObject, Fields: fields, Type: types.ObjectOf(members)}
}

// IgnoreNull marks expr so downstream array() aggregation prunes
// all-null elements on decode instead of surfacing them as {} (§4.2).
func IgnoreNull(n *Node) *Node {
	out := &Node{Op: OpIgnoreNull, Args: []*Node{n}, Type: n.Type.WithIgnoreNull()}
	return out
}

// call is the shared constructor for N-ary operator nodes whose result
// type is computed by the caller.
func call(op Op, td *types.TypeDescriptor, args ...*Node) *Node {
	return &Node{Op: op, Type: td, Args: args}
}

// Logical and comparison constructors: all return boolean-typed nodes.
func And(args ...*Node) *Node { return call(OpAnd, types.Boolean(), args...) }
func Or(args ...*Node) *Node  { return call(OpOr, types.Boolean(), args...) }
func Not(a *Node) *Node       { return call(OpNot, types.Boolean(), a) }

func Eq(args ...*Node) *Node { return call(OpEq, types.Boolean(), args...) }
func Ne(a, b *Node) *Node    { return call(OpNe, types.Boolean(), a, b) }
func Gt(a, b *Node) *Node    { return call(OpGt, types.Boolean(), a, b) }
func Ge(a, b *Node) *Node    { return call(OpGe, types.Boolean(), a, b) }
func Lt(a, b *Node) *Node    { return call(OpLt, types.Boolean(), a, b) }
func Le(a, b *Node) *Node    { return call(OpLe, types.Boolean(), a, b) }

// IsNull builds the explicit existence check from the null-handling
// open question (§9): true exactly when a is absent, never match-any.
func IsNull(a *Node) *Node { return call(OpIsNull, types.Boolean(), a) }

func In(x *Node, list *Node) *Node  { return call(OpIn, types.Boolean(), x, list) }
func Nin(x *Node, list *Node) *Node { return call(OpNin, types.Boolean(), x, list) }

func Regex(text, pattern *Node) *Node { return call(OpRegex, types.Boolean(), text, pattern) }

// Arithmetic constructors propagate a numeric type.
func Add(args ...*Node) *Node      { return call(OpAdd, types.Number(), args...) }
func Multiply(args ...*Node) *Node { return call(OpMultiply, types.Number(), args...) }
func Subtract(a, b *Node) *Node    { return call(OpSubtract, types.Number(), a, b) }
func Divide(a, b *Node) *Node      { return call(OpDivide, types.Number(), a, b) }
func Modulo(a, b *Node) *Node      { return call(OpModulo, types.Number(), a, b) }

func Concat(args ...*Node) *Node { return call(OpConcat, types.String(), args...) }

// If merges the branch types the way the spec's type-propagation rule
// for if(...) requires: the then/else branch's type, preferring the
// then branch when they disagree.
func If(cond, then, els *Node) *Node {
	td := then.Type
	if td == nil {
		td = els.Type
	}
	return call(OpIf, td, cond, then, els)
}

func IfNull(a, fallback *Node) *Node {
	td := a.Type
	if td == nil {
		td = fallback.Type
	}
	return call(OpIfNull, td, a, fallback)
}

// Aggregation constructors.
func Sum(a *Node) *Node   { return call(OpSum, types.Number(), a) }
func Avg(a *Node) *Node   { return call(OpAvg, types.Number(), a) }
func Min(a *Node) *Node   { return call(OpMin, a.Type, a) }
func Max(a *Node) *Node   { return call(OpMax, a.Type, a) }
func Count(a *Node) *Node { return call(OpCount, types.Scalar(types.KindInteger), a) }

// Array collects a per-row expression into a list; its Type Descriptor
// is an array of the collected expression's type.
func Array(a *Node) *Node { return call(OpArray, types.ArrayOf(a.Type), a) }

// ElemAt builds an element-at expression for an array-typed value
// (row proxy indexing, §4.4).
func ElemAt(list *Node, index *Node) *Node {
	var inner *types.TypeDescriptor
	if list.Type != nil {
		inner = list.Type.Inner
	}
	return call(OpElem, inner, list, index)
}

// Length returns the element count of a list-typed expression.
func Length(a *Node) *Node { return call(OpLength, types.Scalar(types.KindInteger), a) }
