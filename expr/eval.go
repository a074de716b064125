package expr

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"
)

// RowContext is the row proxy's runtime counterpart: the set of
// currently-joined rows keyed by table alias, plus (for aggregation
// nodes) the pre-aggregation group of such rows the array()/sum()/...
// operators fold over.
type RowContext struct {
	Row    map[string]map[string]any
	Group  []*RowContext
	Parent *RowContext
}

// NewRow builds a single-row context for one alias.
func NewRow(alias string, row map[string]any) *RowContext {
	return &RowContext{Row: map[string]map[string]any{alias: row}}
}

// With returns a copy of ctx with an additional aliased row merged in,
// used when assembling a joined row for evaluation.
func (ctx *RowContext) With(alias string, row map[string]any) *RowContext {
	merged := make(map[string]map[string]any, len(ctx.Row)+1)
	for k, v := range ctx.Row {
		merged[k] = v
	}
	merged[alias] = row
	return &RowContext{Row: merged, Group: ctx.Group, Parent: ctx.Parent}
}

// SubqueryResolver evaluates an OpSubquery node's opaque Value (a
// query-package Selection the expr package doesn't know the shape of)
// into a list of candidate values, optionally correlated against ctx.
type SubqueryResolver func(sub any, ctx *RowContext) ([]any, error)

// Evaluator interprets expression trees against a RowContext. It is
// used by the in-memory reference driver, by the SQLite driver (which
// evaluates every read in process rather than translating the tree
// into SQL), and by unit tests.
type Evaluator struct {
	Resolver SubqueryResolver
}

// Eval evaluates a single node against ctx.
func (e *Evaluator) Eval(n *Node, ctx *RowContext) (any, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Op {
	case OpLiteral:
		return n.Value, nil
	case OpGet:
		return e.evalGet(n, ctx)
	case OpIf:
		cond, err := e.evalBool(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		if cond {
			return e.Eval(n.Args[1], ctx)
		}
		return e.Eval(n.Args[2], ctx)
	case OpIfNull:
		v, err := e.Eval(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return e.Eval(n.Args[1], ctx)
		}
		return v, nil
	case OpSwitch:
		for _, b := range n.Branches {
			ok, err := e.evalBool(b.When, ctx)
			if err != nil {
				return nil, err
			}
			if ok {
				return e.Eval(b.Value, ctx)
			}
		}
		if len(n.Args) == 1 {
			return e.Eval(n.Args[0], ctx)
		}
		return nil, nil
	case OpAdd, OpMultiply, OpSubtract, OpDivide, OpModulo, OpPow, OpLog, OpExp,
		OpAbs, OpCeil, OpFloor, OpRound, OpRandom:
		return e.evalArith(n, ctx)
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		return e.evalCompare(n, ctx)
	case OpIsNull:
		v, err := e.Eval(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		return v == nil, nil
	case OpIn, OpNin:
		return e.evalMembership(n, ctx)
	case OpConcat:
		return e.evalConcat(n, ctx)
	case OpRegex:
		return e.evalRegex(n, ctx)
	case OpAnd, OpOr, OpNot:
		return e.evalLogical(n, ctx)
	case OpBitAnd, OpBitOr, OpBitXor, OpBitNot:
		return e.evalBitwise(n, ctx)
	case OpBitsAllSet, OpBitsAllClear, OpBitsAnySet, OpBitsAnyClear:
		return e.evalBitMask(n, ctx)
	case OpLength:
		return e.evalLength(n, ctx)
	case OpElem:
		return e.evalElem(n, ctx)
	case OpObject:
		return e.evalObject(n, ctx)
	case OpIgnoreNull:
		return e.Eval(n.Args[0], ctx)
	case OpSum, OpAvg, OpMin, OpMax, OpCount, OpArray:
		return e.evalAggregate(n, ctx)
	case OpSubquery:
		if e.Resolver == nil {
			return nil, fmt.Errorf("expr: no subquery resolver installed")
		}
		vals, err := e.Resolver(n.Value, ctx)
		return vals, err
	default:
		return nil, fmt.Errorf("expr: unknown op %q", n.Op)
	}
}

func (e *Evaluator) evalBool(n *Node, ctx *RowContext) (bool, error) {
	v, err := e.Eval(n, ctx)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *Evaluator) evalGet(n *Node, ctx *RowContext) (any, error) {
	row, ok := ctx.Row[n.Table]
	if !ok {
		return nil, nil
	}
	var cur any = row
	for _, seg := range n.Path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		cur = m[seg]
	}
	return cur, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func (e *Evaluator) evalArith(n *Node, ctx *RowContext) (any, error) {
	vals := make([]float64, len(n.Args))
	for i, a := range n.Args {
		v, err := e.Eval(a, ctx)
		if err != nil {
			return nil, err
		}
		f, ok := toFloat(v)
		if !ok && v != nil {
			return nil, fmt.Errorf("expr: %s: non-numeric operand", n.Op)
		}
		vals[i] = f
	}
	switch n.Op {
	case OpAdd:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum, nil
	case OpMultiply:
		product := 1.0
		for _, v := range vals {
			product *= v
		}
		return product, nil
	case OpSubtract:
		return vals[0] - vals[1], nil
	case OpDivide:
		if vals[1] == 0 {
			return nil, fmt.Errorf("expr: divide by zero")
		}
		return vals[0] / vals[1], nil
	case OpModulo:
		return math.Mod(vals[0], vals[1]), nil
	case OpPow:
		base, exp := vals[0], 2.0
		if len(vals) > 1 {
			exp = vals[1]
		}
		return math.Pow(base, exp), nil
	case OpLog:
		base := math.E
		if len(vals) > 1 {
			base = vals[1]
		}
		return math.Log(vals[0]) / math.Log(base), nil
	case OpExp:
		return math.Exp(vals[0]), nil
	case OpAbs:
		return math.Abs(vals[0]), nil
	case OpCeil:
		return math.Ceil(vals[0]), nil
	case OpFloor:
		return math.Floor(vals[0]), nil
	case OpRound:
		return math.Round(vals[0]), nil
	case OpRandom:
		return rand.Float64(), nil
	}
	return nil, fmt.Errorf("expr: unhandled arithmetic op %q", n.Op)
}

// valueOf mirrors §4.2's "comparisons use valueOf() so dates compare by
// epoch": anything with a Unix()/UnixNano() style accessor compares
// numerically instead of by identity.
func valueOf(v any) any {
	type unixer interface{ Unix() int64 }
	if u, ok := v.(unixer); ok {
		return u.Unix()
	}
	return v
}

func (e *Evaluator) evalCompare(n *Node, ctx *RowContext) (any, error) {
	if n.Op == OpEq && len(n.Args) != 2 {
		// variadic all-equal
		var first any
		for i, a := range n.Args {
			v, err := e.Eval(a, ctx)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return true, nil // null is match-any, §4.2/§9
			}
			v = valueOf(v)
			if i == 0 {
				first = v
				continue
			}
			if !equalValues(first, v) {
				return false, nil
			}
		}
		return true, nil
	}

	a, err := e.Eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	b, err := e.Eval(n.Args[1], ctx)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		// null is treated as match-any for predicate gates (§4.2, §9
		// open question): every comparison involving a null operand
		// yields true rather than false.
		return true, nil
	}
	a, b = valueOf(a), valueOf(b)

	switch n.Op {
	case OpEq:
		return equalValues(a, b), nil
	case OpNe:
		return !equalValues(a, b), nil
	}

	fa, aOK := toFloat(a)
	fb, bOK := toFloat(b)
	if aOK && bOK {
		switch n.Op {
		case OpGt:
			return fa > fb, nil
		case OpGe:
			return fa >= fb, nil
		case OpLt:
			return fa < fb, nil
		case OpLe:
			return fa <= fb, nil
		}
	}
	sa, saOK := a.(string)
	sb, sbOK := b.(string)
	if saOK && sbOK {
		switch n.Op {
		case OpGt:
			return sa > sb, nil
		case OpGe:
			return sa >= sb, nil
		case OpLt:
			return sa < sb, nil
		case OpLe:
			return sa <= sb, nil
		}
	}
	return false, fmt.Errorf("expr: incomparable operands for %q", n.Op)
}

func equalValues(a, b any) bool {
	fa, aOK := toFloat(a)
	fb, bOK := toFloat(b)
	if aOK && bOK {
		return fa == fb
	}
	return a == b
}

func (e *Evaluator) evalMembership(n *Node, ctx *RowContext) (any, error) {
	x, err := e.Eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	listVal, err := e.Eval(n.Args[1], ctx)
	if err != nil {
		return nil, err
	}
	found := false
	switch list := listVal.(type) {
	case []any:
		for _, item := range list {
			if equalValues(valueOf(x), valueOf(item)) {
				found = true
				break
			}
		}
	case nil:
		found = false
	default:
		return nil, fmt.Errorf("expr: in/nin expects a list operand")
	}
	if n.Op == OpNin {
		return !found, nil
	}
	return found, nil
}

func (e *Evaluator) evalConcat(n *Node, ctx *RowContext) (any, error) {
	var b strings.Builder
	for _, a := range n.Args {
		v, err := e.Eval(a, ctx)
		if err != nil {
			return nil, err
		}
		b.WriteString(fmt.Sprint(v))
	}
	return b.String(), nil
}

func (e *Evaluator) evalRegex(n *Node, ctx *RowContext) (any, error) {
	text, err := e.Eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	patVal, err := e.Eval(n.Args[1], ctx)
	if err != nil {
		return nil, err
	}
	pattern, _ := patVal.(string)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("expr: invalid regex %q: %w", pattern, err)
	}
	return re.MatchString(fmt.Sprint(text)), nil
}

func (e *Evaluator) evalLogical(n *Node, ctx *RowContext) (any, error) {
	switch n.Op {
	case OpNot:
		v, err := e.evalBool(n.Args[0], ctx)
		return !v, err
	case OpAnd:
		for _, a := range n.Args {
			v, err := e.evalBool(a, ctx)
			if err != nil {
				return nil, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, a := range n.Args {
			v, err := e.evalBool(a, ctx)
			if err != nil {
				return nil, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, fmt.Errorf("expr: unhandled logical op %q", n.Op)
}

func toInt(v any) int64 {
	f, _ := toFloat(v)
	return int64(f)
}

func (e *Evaluator) evalBitwise(n *Node, ctx *RowContext) (any, error) {
	if n.Op == OpBitNot {
		v, err := e.Eval(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		return ^toInt(v), nil
	}
	a, err := e.Eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	b, err := e.Eval(n.Args[1], ctx)
	if err != nil {
		return nil, err
	}
	ia, ib := toInt(a), toInt(b)
	switch n.Op {
	case OpBitAnd:
		return ia & ib, nil
	case OpBitOr:
		return ia | ib, nil
	case OpBitXor:
		return ia ^ ib, nil
	}
	return nil, fmt.Errorf("expr: unhandled bitwise op %q", n.Op)
}

func (e *Evaluator) evalBitMask(n *Node, ctx *RowContext) (any, error) {
	v, err := e.Eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	mVal, err := e.Eval(n.Args[1], ctx)
	if err != nil {
		return nil, err
	}
	bits, mask := toInt(v), toInt(mVal)
	switch n.Op {
	case OpBitsAllSet:
		return bits&mask == mask, nil
	case OpBitsAllClear:
		return bits&mask == 0, nil
	case OpBitsAnySet:
		return bits&mask != 0, nil
	case OpBitsAnyClear:
		return bits&mask != mask, nil
	}
	return nil, fmt.Errorf("expr: unhandled bitmask op %q", n.Op)
}

func (e *Evaluator) evalLength(n *Node, ctx *RowContext) (any, error) {
	v, err := e.Eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case []any:
		return int64(len(list)), nil
	case []string:
		return int64(len(list)), nil
	case nil:
		return int64(0), nil
	default:
		return nil, fmt.Errorf("expr: length expects a list operand")
	}
}

func (e *Evaluator) evalElem(n *Node, ctx *RowContext) (any, error) {
	v, err := e.Eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	idxVal, err := e.Eval(n.Args[1], ctx)
	if err != nil {
		return nil, err
	}
	idx := int(toInt(idxVal))
	list, ok := v.([]any)
	if !ok || idx < 0 || idx >= len(list) {
		return nil, nil
	}
	return list[idx], nil
}

func (e *Evaluator) evalObject(n *Node, ctx *RowContext) (any, error) {
	out := make(map[string]any, len(n.Fields))
	for k, child := range n.Fields {
		v, err := e.Eval(child, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// isAllNull reports whether every leaf value of v is nil, the predicate
// ignoreNull(...) uses to prune an aggregated element (§4.2, §4.5).
func isAllNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case map[string]any:
		for _, inner := range x {
			if !isAllNull(inner) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (e *Evaluator) evalAggregate(n *Node, ctx *RowContext) (any, error) {
	inner := n.Args[0]
	ignoreNull := inner.Op == OpIgnoreNull

	var values []any
	seen := map[string]bool{}
	distinctCount := int64(0)
	for _, groupCtx := range ctx.Group {
		v, err := e.Eval(inner, groupCtx)
		if err != nil {
			return nil, err
		}
		if ignoreNull && isAllNull(v) {
			continue
		}
		if n.Op == OpCount {
			if v == nil {
				continue
			}
			key := fmt.Sprint(v)
			if !seen[key] {
				seen[key] = true
				distinctCount++
			}
			continue
		}
		values = append(values, v)
	}

	switch n.Op {
	case OpArray:
		if values == nil {
			values = []any{}
		}
		return values, nil
	case OpCount:
		return distinctCount, nil
	case OpSum, OpAvg:
		sum := 0.0
		cnt := 0
		for _, v := range values {
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			sum += f
			cnt++
		}
		if n.Op == OpSum {
			return sum, nil
		}
		if cnt == 0 {
			return 0.0, nil
		}
		return sum / float64(cnt), nil
	case OpMin, OpMax:
		var best any
		for _, v := range values {
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			fa, aOK := toFloat(best)
			fb, bOK := toFloat(v)
			if aOK && bOK {
				if (n.Op == OpMin && fb < fa) || (n.Op == OpMax && fb > fa) {
					best = v
				}
				continue
			}
			sa, _ := best.(string)
			sb, _ := v.(string)
			if (n.Op == OpMin && sb < sa) || (n.Op == OpMax && sb > sa) {
				best = v
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("expr: unhandled aggregation op %q", n.Op)
}

// SortGroup orders a slice of group contexts in place; used by
// groupBy+orderBy combinations evaluated in-memory.
func SortGroup(e *Evaluator, group []*RowContext, keys []*Node, desc []bool) error {
	var evalErr error
	sort.SliceStable(group, func(i, j int) bool {
		for k, key := range keys {
			vi, err := e.Eval(key, group[i])
			if err != nil {
				evalErr = err
				return false
			}
			vj, err := e.Eval(key, group[j])
			if err != nil {
				evalErr = err
				return false
			}
			cmp := compareAny(vi, vj)
			if cmp == 0 {
				continue
			}
			if k < len(desc) && desc[k] {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return evalErr
}

func compareAny(a, b any) int {
	fa, aOK := toFloat(a)
	fb, bOK := toFloat(b)
	if aOK && bOK {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(sa, sb)
}
