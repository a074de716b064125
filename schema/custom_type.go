package schema

import "github.com/rediwo/redi-orm/types"

// CustomTypeSpec declares a named type wrapping an underlying kind (or
// another custom type) with a dump/load transformer pair.
type CustomTypeSpec struct {
	Underlying types.Kind
	Wraps      string // name of another custom type, instead of Underlying
	Dump       func(any) (any, error)
	Load       func(any) (any, error)
	Initial    any
}

// CustomType is a registered named type.
type CustomType struct {
	Name         string
	Kind         types.Kind
	Transformers []Transformer
	Initial      any
	HasInitial   bool
}

// resolveType follows declared (a bare kind or a custom type name) down
// to its primitive Kind, folding transformers outermost-first along the
// way (so the outermost wrapper's Dump runs first on write, and its
// Load runs last on read).
func (r *Registry) resolveType(declared string) (types.Kind, []Transformer, any, bool, error) {
	if k := types.Kind(declared); isBareKind(k) {
		return k, nil, nil, false, nil
	}

	r.mu.RLock()
	ct, ok := r.customTypes[declared]
	r.mu.RUnlock()
	if !ok {
		return "", nil, nil, false, &unknownTypeError{declared}
	}
	return ct.Kind, ct.Transformers, ct.Initial, ct.HasInitial, nil
}

func isBareKind(k types.Kind) bool {
	switch k {
	case types.KindInteger, types.KindUnsigned, types.KindBigint,
		types.KindFloat, types.KindDouble, types.KindDecimal,
		types.KindChar, types.KindString, types.KindText,
		types.KindBoolean, types.KindTimestamp, types.KindDate, types.KindTime,
		types.KindBinary, types.KindList, types.KindJSON, types.KindArray,
		types.KindObject, types.KindExpr:
		return true
	}
	return false
}

type unknownTypeError struct{ name string }

func (e *unknownTypeError) Error() string { return "unknown type or kind: " + e.name }

// Dump applies a field's transformer chain outermost-first.
func (f *Field) Dump(v any) (any, error) {
	var err error
	for _, t := range f.Transformers {
		if t.Dump == nil {
			continue
		}
		v, err = t.Dump(v)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Load applies a field's transformer chain innermost-first, the
// reverse of Dump.
func (f *Field) Load(v any) (any, error) {
	var err error
	for i := len(f.Transformers) - 1; i >= 0; i-- {
		t := f.Transformers[i]
		if t.Load == nil {
			continue
		}
		v, err = t.Load(v)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}
