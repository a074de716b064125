package schema

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rediwo/redi-orm/types"
)

// Registry is the process-wide model and custom-type catalog. Custom
// type registration is append-only for the registry's lifetime; model
// declarations are additive via repeated Extend calls (§4.1).
type Registry struct {
	mu          sync.RWMutex
	models      map[string]*Model
	customTypes map[string]*CustomType
	anonSeq     int

	// generation coalesces repeated Extend calls on the same model:
	// each Extend bumps the model's counter, and database.DB.Prepare
	// only re-prepares a model whose counter changed since its last
	// run (§5).
	generation map[string]int

	onModelChanged []func(name string)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models:      make(map[string]*Model),
		customTypes: make(map[string]*CustomType),
		generation:  make(map[string]int),
	}
}

// OnModelChanged registers a callback invoked after every Extend.
func (r *Registry) OnModelChanged(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onModelChanged = append(r.onModelChanged, fn)
}

// Define registers a named custom type. An empty name auto-generates
// one and returns it. Duplicate names are a ConfigurationError.
func (r *Registry) Define(name string, spec CustomTypeSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		r.anonSeq++
		name = "__anon" + strconv.Itoa(r.anonSeq)
	}
	if _, exists := r.customTypes[name]; exists {
		return "", types.NewConfigurationError("schema.Define",
			fmt.Errorf("duplicate custom type %q", name))
	}

	kind := spec.Underlying
	var transformers []Transformer
	var initial any
	var hasInitial bool

	if spec.Wraps != "" {
		base, ok := r.customTypes[spec.Wraps]
		if !ok {
			return "", types.NewConfigurationError("schema.Define",
				fmt.Errorf("wrapped type %q not found", spec.Wraps))
		}
		kind = base.Kind
		transformers = append(transformers, base.Transformers...)
		initial, hasInitial = base.Initial, base.HasInitial
	}
	// The new type's own transformer wraps the base type's, so its Dump
	// must run first (outermost) and its Load must run last: prepend it.
	transformers = append([]Transformer{{Dump: spec.Dump, Load: spec.Load}}, transformers...)

	if spec.Initial != nil {
		initial, hasInitial = spec.Initial, true
	}

	r.customTypes[name] = &CustomType{
		Name:         name,
		Kind:         kind,
		Transformers: transformers,
		Initial:      initial,
		HasInitial:   hasInitial,
	}
	return name, nil
}

// Extend merges field and config declarations into the named model,
// creating it on first use. Relation post-processing (§4.8) is applied
// by the relation package via ResolveAll after all models of a
// schema generation have been declared.
func (r *Registry) Extend(name string, fields map[string]FieldSpec, config ModelConfig) error {
	r.mu.Lock()
	m, ok := r.models[name]
	if !ok {
		m = newModel(name)
		r.models[name] = m
	}
	r.mu.Unlock()

	if config.TableName != "" {
		m.TableName = config.TableName
	}
	if len(config.Primary) > 0 {
		m.Primary = config.Primary
	}
	if config.AutoIncrement {
		m.AutoIncrement = true
	}
	m.Unique = append(m.Unique, config.Unique...)
	m.Indexes = append(m.Indexes, config.Indexes...)
	m.Migrations = append(m.Migrations, config.Migrate...)

	for fieldName, spec := range fields {
		f, err := parseFieldSpec(r, fieldName, spec)
		if err != nil {
			return types.NewConfigurationError("schema.Extend", err)
		}
		if _, exists := m.Fields[fieldName]; !exists {
			m.FieldOrder = append(m.FieldOrder, fieldName)
		}
		m.Fields[fieldName] = f
	}

	unflatten(m)

	if len(m.Primary) == 0 && !ok {
		// no-op: primary may be declared in a later Extend call
	}
	if err := normalizeRelationPrimary(m); err != nil {
		return types.NewConfigurationError("schema.Extend", err)
	}

	r.mu.Lock()
	r.generation[name]++
	callbacks := append([]func(string){}, r.onModelChanged...)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(name)
	}
	return nil
}

// unflatten rebuilds each model's ObjectShapes from its dotted field
// names so that `row.a.b` navigation and flat `project(["a.b"])` both
// resolve against the same declarations (§4.1, §9).
func unflatten(m *Model) {
	m.ObjectShapes = make(map[string]*types.TypeDescriptor)
	prefixes := make(map[string][]string)
	for _, name := range m.FieldOrder {
		if !strings.Contains(name, ".") {
			continue
		}
		parts := strings.SplitN(name, ".", 2)
		prefixes[parts[0]] = append(prefixes[parts[0]], name)
	}
	for prefix, members := range prefixes {
		shape := &types.TypeDescriptor{Kind: types.KindObject, Fields: map[string]*types.TypeDescriptor{}}
		for _, full := range members {
			rest := strings.SplitN(full, ".", 2)[1]
			shape.Fields[rest] = m.Fields[full].Type
		}
		m.ObjectShapes[prefix] = shape
		if _, declared := m.Fields[prefix]; !declared {
			m.Fields[prefix] = &Field{
				Name:     prefix,
				Kind:     types.KindJSON,
				Type:     shape,
				Nullable: true,
			}
		}
	}
}

// normalizeRelationPrimary expands a primary key that names a relation
// field into that relation's reference columns (§4.1).
func normalizeRelationPrimary(m *Model) error {
	var expanded []string
	changed := false
	for _, k := range m.Primary {
		f, ok := m.Fields[k]
		if ok && f.Relation != nil {
			expanded = append(expanded, f.Relation.Fields...)
			changed = true
			continue
		}
		expanded = append(expanded, k)
	}
	if changed {
		m.Primary = expanded
	}
	return nil
}

// Model returns a registered model by name.
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("model %q not registered", name)
	}
	return m, nil
}

// Models returns every registered model name.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	return names
}

// Generation returns the current Extend generation counter for name,
// used by the prepare-coalescing stash (§5).
func (r *Registry) Generation(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation[name]
}
