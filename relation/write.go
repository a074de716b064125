package relation

import (
	"context"
	"fmt"
	"sort"

	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

// ModifierKind tags a nested relation mutation, parsed out of a write
// payload's relation-field values (§4.8).
type ModifierKind string

const (
	ModCreate     ModifierKind = "$create"
	ModUpsert     ModifierKind = "$upsert"
	ModConnect    ModifierKind = "$connect"
	ModDisconnect ModifierKind = "$disconnect"
	ModRemove     ModifierKind = "$remove"
	ModSet        ModifierKind = "$set"
)

// Task is one nested relation operation extracted from a write
// payload, ready to run against the related model once the owning
// row's key is known.
type Task struct {
	Field string
	Rel   *schema.RelationConfig
	Kind  ModifierKind
	Data  map[string]any // $create/$upsert row data, a key filter for $connect/$disconnect/$remove, a {where,update} pair for a to-many $set, or the update map itself for a to-one $set
}

// SplitPayload separates a write payload's plain scalar fields from its
// relation-field nested operations, normalizing array-shorthand values
// for to-many relations (§4.8, §9 open question: a bare array value on
// a to-many relation field means $connect for each element). Used by
// both the nested-create path and Set's relation-aware update path.
func SplitPayload(m *schema.Model, data map[string]any) (plain map[string]any, tasks []Task, err error) {
	plain = make(map[string]any, len(data))
	for name, val := range data {
		f, ok := m.Fields[name]
		if !ok {
			return nil, nil, fmt.Errorf("relation: unknown field %q on %q", name, m.Name)
		}
		if f.Relation == nil {
			plain[name] = val
			continue
		}
		ts, err := parseRelationTasks(name, f.Relation, val)
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, ts...)
	}
	return plain, tasks, nil
}

func parseRelationTasks(field string, rel *schema.RelationConfig, val any) ([]Task, error) {
	toMany := rel.Kind == schema.OneToMany || rel.Kind == schema.ManyToMany

	switch v := val.(type) {
	case nil:
		if toMany {
			return nil, nil
		}
		return []Task{{Field: field, Rel: rel, Kind: ModDisconnect}}, nil
	case []any:
		if !toMany {
			return nil, fmt.Errorf("relation: %q is not a to-many relation, cannot take a list", field)
		}
		var tasks []Task
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("relation: %q list entries must be objects", field)
			}
			tasks = append(tasks, Task{Field: field, Rel: rel, Kind: ModConnect, Data: m})
		}
		return tasks, nil
	case map[string]any:
		var tasks []Task
		handled := false
		for _, kind := range []ModifierKind{ModCreate, ModUpsert, ModConnect, ModDisconnect, ModRemove, ModSet} {
			raw, ok := v[string(kind)]
			if !ok {
				continue
			}
			handled = true
			if kind == ModSet && toMany {
				// $set on a to-many relation takes a single {where,
				// update} payload, not a list of row payloads.
				set, ok := raw.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("relation: %q $set: expected a {where, update} object", field)
				}
				tasks = append(tasks, Task{Field: field, Rel: rel, Kind: kind, Data: set})
				continue
			}
			entries, err := normalizeModifierValue(raw, toMany)
			if err != nil {
				return nil, fmt.Errorf("relation: %q %s: %w", field, kind, err)
			}
			for _, entry := range entries {
				tasks = append(tasks, Task{Field: field, Rel: rel, Kind: kind, Data: entry})
			}
		}
		if !handled {
			// a bare object on a to-one relation is shorthand for
			// $connect when every key is one of the relation's
			// reference columns, and for $create otherwise.
			if toMany {
				return nil, fmt.Errorf("relation: %q is a to-many relation, bare object is ambiguous", field)
			}
			kind := ModConnect
			for k := range v {
				isRef := false
				for _, ref := range rel.References {
					isRef = isRef || ref == k
				}
				if !isRef {
					kind = ModCreate
				}
			}
			tasks = append(tasks, Task{Field: field, Rel: rel, Kind: kind, Data: v})
		}
		return tasks, nil
	default:
		return nil, fmt.Errorf("relation: unsupported value %T for relation field %q", val, field)
	}
}

func normalizeModifierValue(raw any, toMany bool) ([]map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		if !toMany {
			return nil, fmt.Errorf("a list is only valid for to-many relations")
		}
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("list entries must be objects")
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an object or list of objects, got %T", raw)
	}
}

// taskOrder ranks relation tasks so that owning-side relations
// (manyToOne, owning oneToOne) resolve before the base row insert, and
// everything else (oneToMany, manyToMany, non-owning oneToOne) after
// (§4.8's write-ordering rule).
func taskOrder(t Task) int {
	if isOwningTask(t) {
		return 0
	}
	return 1
}

func isOwningTask(t Task) bool {
	return t.Rel.Kind == schema.ManyToOne || (t.Rel.Kind == schema.OneToOne && len(t.Rel.Fields) > 0)
}

// UpdateProjection returns the column set Set's relation-aware update
// path must read off every matched owner row before dispatching
// ProcessUpdate: m's own primary key, plus the local foreign key
// columns any owning-side task in tasks needs to inspect its current
// value (§4.6: "read affected rows with primary projection", widened
// to the FK columns owning-side modifiers act on).
func UpdateProjection(m *schema.Model, tasks []Task) []string {
	cols := map[string]bool{}
	for _, c := range m.Primary {
		cols[c] = true
	}
	for _, t := range tasks {
		if isOwningTask(t) {
			for _, c := range t.Rel.Fields {
				cols[c] = true
			}
		}
	}
	out := make([]string, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CreateOrUpdate inserts data into model's table, resolving owning-side
// relation tasks first (to fill foreign key columns), then the base
// row, then every remaining nested relation task against the newly
// assigned primary key (§4.8).
func CreateOrUpdate(ctx context.Context, reg *schema.Registry, drv query.Driver, m *schema.Model, data map[string]any) (map[string]any, error) {
	plain, tasks, err := SplitPayload(m, data)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool { return taskOrder(tasks[i]) < taskOrder(tasks[j]) })

	var deferred []Task
	for _, t := range tasks {
		if taskOrder(t) != 0 {
			deferred = append(deferred, t)
			continue
		}
		target, err := reg.Model(t.Rel.TargetModel)
		if err != nil {
			return nil, err
		}
		key, err := resolveOwningSide(ctx, reg, drv, target, t)
		if err != nil {
			return nil, err
		}
		for i, col := range t.Rel.Fields {
			plain[col] = key[t.Rel.References[i]]
		}
	}

	row := m.Create(plain)
	res, err := drv.Create(ctx, m.TableName, row)
	if err != nil {
		return nil, types.NewConflictError("relation.CreateOrUpdate", err)
	}
	if m.AutoIncrement && len(m.Primary) == 1 {
		row[m.Primary[0]] = res.LastInsertID
	}

	for _, t := range deferred {
		if err := applyDeferredTask(ctx, reg, drv, m, row, t); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// resolveOwningSide runs one manyToOne/owning-oneToOne task ($create,
// $upsert, or $connect) and returns the related row's key columns.
func resolveOwningSide(ctx context.Context, reg *schema.Registry, drv query.Driver, target *schema.Model, t Task) (map[string]any, error) {
	switch t.Kind {
	case ModCreate:
		return CreateOrUpdate(ctx, reg, drv, target, t.Data)
	case ModUpsert:
		return upsertTarget(ctx, drv, target, t.Data)
	case ModConnect:
		return connectTarget(ctx, reg, drv, target, t.Data)
	default:
		return nil, fmt.Errorf("relation: %s is not valid on the owning side of a relation", t.Kind)
	}
}

// connectTarget resolves the single target row matching a $connect
// query, erroring unless exactly one row matches.
func connectTarget(ctx context.Context, reg *schema.Registry, drv query.Driver, target *schema.Model, data map[string]any) (map[string]any, error) {
	sel, err := query.From(reg, "t", target.Name).Where(data)
	if err != nil {
		return nil, err
	}
	rows, err := drv.Eval(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, types.NewValidationError("relation.connect", fmt.Errorf("$connect matched %d %q rows, want exactly one", len(rows), target.Name))
	}
	return rows[0], nil
}

// upsertTarget runs a $upsert modifier against target directly (not
// through CreateOrUpdate: a $upsert payload is not itself nested).
func upsertTarget(ctx context.Context, drv query.Driver, target *schema.Model, data map[string]any) (map[string]any, error) {
	created, err := target.Format(data, false)
	if err != nil {
		return nil, err
	}
	row := target.Create(created)
	if _, err := drv.Upsert(ctx, target.TableName, row, row, target.Primary); err != nil {
		return nil, err
	}
	return row, nil
}

// applyDeferredTask runs one oneToMany/manyToMany/non-owning-oneToOne
// task now that owner (the just-written base row) has a resolved
// primary key (§4.8, nested-create path of §4.6's modifier vocabulary).
func applyDeferredTask(ctx context.Context, reg *schema.Registry, drv query.Driver, ownerModel *schema.Model, owner map[string]any, t Task) error {
	target, err := reg.Model(t.Rel.TargetModel)
	if err != nil {
		return err
	}

	switch t.Rel.Kind {
	case schema.OneToMany:
		return oneToManyTask(ctx, reg, drv, target, owner, t)
	case schema.OneToOne:
		return nonOwningOneToOneCreateTask(ctx, reg, drv, target, owner, t)
	case schema.ManyToMany:
		return manyToManyTask(ctx, reg, drv, ownerModel, owner, target, t)
	}
	return nil
}

// oneToManyTask runs the full modifier vocabulary for a oneToMany
// relation, whether dispatched from a nested create (applyDeferredTask)
// or a Set update (ProcessUpdate): t.Rel.Fields is the target's foreign
// key column(s), t.Rel.References the owner's own column(s) they point
// to.
func oneToManyTask(ctx context.Context, reg *schema.Registry, drv query.Driver, target *schema.Model, owner map[string]any, t Task) error {
	fk := make(map[string]any, len(t.Rel.Fields))
	for i, col := range t.Rel.Fields {
		fk[col] = owner[t.Rel.References[i]]
	}

	switch t.Kind {
	case ModCreate:
		_, err := CreateOrUpdate(ctx, reg, drv, target, mergeData(t.Data, fk))
		return err
	case ModUpsert:
		formatted, err := target.Format(mergeData(t.Data, fk), false)
		if err != nil {
			return err
		}
		row := target.Create(formatted)
		_, err = drv.Upsert(ctx, target.TableName, row, row, target.Primary)
		return err
	case ModConnect:
		sel, err := query.From(reg, "t", target.Name).Where(t.Data)
		if err != nil {
			return err
		}
		_, err = drv.Set(ctx, target.TableName, sel, fk)
		return err
	case ModDisconnect:
		nulled := make(map[string]any, len(t.Rel.Fields))
		for _, col := range t.Rel.Fields {
			nulled[col] = nil
		}
		sel, err := ownedTargetSelector(reg, target, t.Rel, owner, t.Data)
		if err != nil {
			return err
		}
		_, err = drv.Set(ctx, target.TableName, sel, nulled)
		return err
	case ModRemove:
		sel, err := ownedTargetSelector(reg, target, t.Rel, owner, t.Data)
		if err != nil {
			return err
		}
		_, err = drv.Remove(ctx, target.TableName, sel)
		return err
	case ModSet:
		where, update, err := splitSetPayload(t.Data)
		if err != nil {
			return err
		}
		sel, err := ownedTargetSelector(reg, target, t.Rel, owner, where)
		if err != nil {
			return err
		}
		_, err = drv.Set(ctx, target.TableName, sel, update)
		return err
	}
	return fmt.Errorf("relation: %s is not a supported one-to-many modifier", t.Kind)
}

// nonOwningOneToOneCreateTask runs a nested create-time task against
// the non-owning side of a oneToOne relation. Unlike oneToMany, the
// owner here holds the key the target's foreign key column points to
// directly by its own primary key (no generalized Fields/References
// walk is needed since both sides are single-row).
func nonOwningOneToOneCreateTask(ctx context.Context, reg *schema.Registry, drv query.Driver, target *schema.Model, owner map[string]any, t Task) error {
	fk := make(map[string]any, len(t.Rel.References))
	for i, col := range t.Rel.References {
		fk[col] = owner[t.Rel.Fields[i]]
	}

	switch t.Kind {
	case ModCreate:
		_, err := CreateOrUpdate(ctx, reg, drv, target, mergeData(t.Data, fk))
		return err
	case ModUpsert:
		formatted, err := target.Format(mergeData(t.Data, fk), false)
		if err != nil {
			return err
		}
		row := target.Create(formatted)
		_, err = drv.Upsert(ctx, target.TableName, row, row, target.Primary)
		return err
	case ModConnect:
		sel, err := query.From(reg, "t", target.Name).Where(t.Data)
		if err != nil {
			return err
		}
		_, err = drv.Set(ctx, target.TableName, sel, fk)
		return err
	case ModDisconnect, ModRemove:
		q := make(map[string]any, len(fk))
		for col, val := range fk {
			q[col] = val
		}
		sel, err := query.From(reg, "t", target.Name).Where(q)
		if err != nil {
			return err
		}
		if t.Kind == ModRemove {
			_, err = drv.Remove(ctx, target.TableName, sel)
			return err
		}
		nulled := make(map[string]any, len(fk))
		for col := range fk {
			nulled[col] = nil
		}
		_, err = drv.Set(ctx, target.TableName, sel, nulled)
		return err
	}
	return fmt.Errorf("relation: %s is not a supported one-to-one modifier", t.Kind)
}

// ownedTargetSelector scopes a target-model query to rows currently
// owned by owner (their foreign key matches owner's referenced
// column), merged with an additional caller-supplied filter.
func ownedTargetSelector(reg *schema.Registry, target *schema.Model, rel *schema.RelationConfig, owner map[string]any, extra map[string]any) (*query.Selection, error) {
	q := make(map[string]any, len(rel.Fields)+len(extra))
	for i, col := range rel.Fields {
		q[col] = owner[rel.References[i]]
	}
	for k, v := range extra {
		q[k] = v
	}
	return query.From(reg, "t", target.Name).Where(q)
}

// splitSetPayload unpacks a to-many $set modifier's {where, update}
// payload (§4.6).
func splitSetPayload(data map[string]any) (where, update map[string]any, err error) {
	w, _ := data["where"].(map[string]any)
	u, ok := data["update"].(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("relation: $set requires a {where, update} payload")
	}
	return w, u, nil
}

// manyToManyTask runs the full modifier vocabulary for a manyToMany
// relation against its association table, shared between the
// nested-create path (applyDeferredTask) and Set's update path
// (ProcessUpdate).
func manyToManyTask(ctx context.Context, reg *schema.Registry, drv query.Driver, ownerModel *schema.Model, owner map[string]any, target *schema.Model, t Task) error {
	junctionTable := t.Rel.Table
	if junctionTable == "" {
		junctionTable = JunctionTableName(ownerModel.Name, target.Name)
	}
	ownerCol, targetCol := JunctionColumns(ownerModel, target, t.Rel)
	ownerKey := owner[ownerModel.Primary[0]]

	link := func(row map[string]any) error {
		_, err := drv.Create(ctx, junctionTable, map[string]any{
			ownerCol:  ownerKey,
			targetCol: row[target.Primary[0]],
		})
		return err
	}
	junctionSel := func(extra map[string]any) (*query.Selection, error) {
		q := map[string]any{ownerCol: ownerKey}
		for k, v := range extra {
			q[k] = v
		}
		return query.FromTable(reg, "j", junctionTable).WhereRaw(q)
	}
	linkedTargetKeys := func() ([]any, error) {
		sel, err := junctionSel(nil)
		if err != nil {
			return nil, err
		}
		rows, err := drv.Eval(ctx, sel)
		if err != nil {
			return nil, err
		}
		keys := make([]any, 0, len(rows))
		for _, r := range rows {
			keys = append(keys, r[targetCol])
		}
		return keys, nil
	}

	switch t.Kind {
	case ModConnect:
		row, err := connectTarget(ctx, reg, drv, target, t.Data)
		if err != nil {
			return err
		}
		return link(row)
	case ModCreate:
		row, err := CreateOrUpdate(ctx, reg, drv, target, t.Data)
		if err != nil {
			return err
		}
		return link(row)
	case ModUpsert:
		row, err := upsertTarget(ctx, drv, target, t.Data)
		if err != nil {
			return err
		}
		return link(row)
	case ModDisconnect:
		sel, err := junctionSel(nil)
		if err != nil {
			return err
		}
		_, err = drv.Remove(ctx, junctionTable, sel)
		return err
	case ModRemove:
		keys, err := linkedTargetKeys()
		if err != nil {
			return err
		}
		sel, err := junctionSel(nil)
		if err != nil {
			return err
		}
		if _, err := drv.Remove(ctx, junctionTable, sel); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		targetSel, err := query.From(reg, "t", target.Name).Where(map[string]any{target.Primary[0]: map[string]any{"$in": keys}})
		if err != nil {
			return err
		}
		_, err = drv.Remove(ctx, target.TableName, targetSel)
		return err
	case ModSet:
		where, update, err := splitSetPayload(t.Data)
		if err != nil {
			return err
		}
		keys, err := linkedTargetKeys()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		targetSel, err := query.From(reg, "t", target.Name).Where(map[string]any{target.Primary[0]: map[string]any{"$in": keys}})
		if err != nil {
			return err
		}
		if targetSel, err = targetSel.Where(where); err != nil {
			return err
		}
		_, err = drv.Set(ctx, target.TableName, targetSel, update)
		return err
	}
	return fmt.Errorf("relation: %s is not a supported many-to-many modifier", t.Kind)
}

// ProcessUpdate dispatches one relation modifier task extracted from a
// Set update payload against owner (the primary-key-and-FK projection
// of one row already matched by the update's predicate), per §4.6's
// processRelationUpdate table: manyToOne and owning oneToOne mutate
// owner's own foreign key column(s); oneToMany and manyToMany mutate
// the related side, scoped to rows currently owned by owner.
func ProcessUpdate(ctx context.Context, reg *schema.Registry, drv query.Driver, ownerModel *schema.Model, owner map[string]any, t Task) error {
	target, err := reg.Model(t.Rel.TargetModel)
	if err != nil {
		return err
	}

	switch t.Rel.Kind {
	case schema.ManyToOne:
		return owningUpdateTask(ctx, reg, drv, ownerModel, owner, target, t)
	case schema.OneToOne:
		if isOwningTask(t) {
			return owningUpdateTask(ctx, reg, drv, ownerModel, owner, target, t)
		}
		return nonOwningOneToOneUpdateTask(ctx, reg, drv, target, owner, t)
	case schema.OneToMany:
		return oneToManyTask(ctx, reg, drv, target, owner, t)
	case schema.ManyToMany:
		return manyToManyTask(ctx, reg, drv, ownerModel, owner, target, t)
	default:
		return fmt.Errorf("relation: unsupported relation kind %q for update", t.Rel.Kind)
	}
}

// owningUpdateTask handles manyToOne/owning-oneToOne modifiers at
// update time: owner already carries its current foreign key column
// value(s) (via UpdateProjection), so $disconnect/$remove/$set can
// resolve the currently-referenced target row without a second lookup
// round trip.
func owningUpdateTask(ctx context.Context, reg *schema.Registry, drv query.Driver, ownerModel *schema.Model, owner map[string]any, target *schema.Model, t Task) error {
	ownerSel, err := ownerSelector(reg, ownerModel, owner)
	if err != nil {
		return err
	}

	switch t.Kind {
	case ModConnect:
		row, err := connectTarget(ctx, reg, drv, target, t.Data)
		if err != nil {
			return err
		}
		return setLocalForeignKey(ctx, drv, ownerModel, ownerSel, t.Rel, row)
	case ModCreate:
		row, err := CreateOrUpdate(ctx, reg, drv, target, t.Data)
		if err != nil {
			return err
		}
		return setLocalForeignKey(ctx, drv, ownerModel, ownerSel, t.Rel, row)
	case ModUpsert:
		row, err := upsertTarget(ctx, drv, target, t.Data)
		if err != nil {
			return err
		}
		return setLocalForeignKey(ctx, drv, ownerModel, ownerSel, t.Rel, row)
	case ModDisconnect, ModRemove:
		if t.Kind == ModRemove && t.Rel.Required {
			if sel, ok, err := currentTargetSelector(reg, target, t.Rel, owner); err != nil {
				return err
			} else if ok {
				if _, err := drv.Remove(ctx, target.TableName, sel); err != nil {
					return err
				}
			}
		}
		return nullLocalForeignKey(ctx, drv, ownerModel, ownerSel, t.Rel)
	case ModSet:
		sel, ok, err := currentTargetSelector(reg, target, t.Rel, owner)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		_, err = drv.Set(ctx, target.TableName, sel, t.Data)
		return err
	}
	return fmt.Errorf("relation: %s is not a supported owning-side modifier", t.Kind)
}

// nonOwningOneToOneUpdateTask handles the non-owning side of a oneToOne
// relation at update time: the target model holds the foreign key
// (t.Rel.References), pointing at owner's own column (t.Rel.Fields).
func nonOwningOneToOneUpdateTask(ctx context.Context, reg *schema.Registry, drv query.Driver, target *schema.Model, owner map[string]any, t Task) error {
	fk := make(map[string]any, len(t.Rel.References))
	for i, col := range t.Rel.References {
		fk[col] = owner[t.Rel.Fields[i]]
	}
	currentSel := func() (*query.Selection, error) {
		return query.From(reg, "t", target.Name).Where(fk)
	}

	switch t.Kind {
	case ModConnect:
		sel, err := query.From(reg, "t", target.Name).Where(t.Data)
		if err != nil {
			return err
		}
		_, err = drv.Set(ctx, target.TableName, sel, fk)
		return err
	case ModCreate:
		_, err := CreateOrUpdate(ctx, reg, drv, target, mergeData(t.Data, fk))
		return err
	case ModUpsert:
		formatted, err := target.Format(mergeData(t.Data, fk), false)
		if err != nil {
			return err
		}
		row := target.Create(formatted)
		_, err = drv.Upsert(ctx, target.TableName, row, row, target.Primary)
		return err
	case ModDisconnect, ModRemove:
		sel, err := currentSel()
		if err != nil {
			return err
		}
		if t.Kind == ModRemove {
			_, err = drv.Remove(ctx, target.TableName, sel)
			return err
		}
		nulled := make(map[string]any, len(fk))
		for col := range fk {
			nulled[col] = nil
		}
		_, err = drv.Set(ctx, target.TableName, sel, nulled)
		return err
	case ModSet:
		sel, err := currentSel()
		if err != nil {
			return err
		}
		_, err = drv.Set(ctx, target.TableName, sel, t.Data)
		return err
	}
	return fmt.Errorf("relation: %s is not a supported one-to-one modifier", t.Kind)
}

func ownerSelector(reg *schema.Registry, m *schema.Model, owner map[string]any) (*query.Selection, error) {
	q := make(map[string]any, len(m.Primary))
	for _, col := range m.Primary {
		q[col] = owner[col]
	}
	return query.From(reg, "o", m.Name).Where(q)
}

func setLocalForeignKey(ctx context.Context, drv query.Driver, ownerModel *schema.Model, ownerSel *query.Selection, rel *schema.RelationConfig, keyRow map[string]any) error {
	fk := make(map[string]any, len(rel.Fields))
	for i, col := range rel.Fields {
		fk[col] = keyRow[rel.References[i]]
	}
	_, err := drv.Set(ctx, ownerModel.TableName, ownerSel, fk)
	return err
}

func nullLocalForeignKey(ctx context.Context, drv query.Driver, ownerModel *schema.Model, ownerSel *query.Selection, rel *schema.RelationConfig) error {
	fk := make(map[string]any, len(rel.Fields))
	for _, col := range rel.Fields {
		fk[col] = nil
	}
	_, err := drv.Set(ctx, ownerModel.TableName, ownerSel, fk)
	return err
}

// currentTargetSelector resolves the target row currently referenced
// by owner's own local foreign key column(s), ok=false when nothing is
// currently connected (the FK is null).
func currentTargetSelector(reg *schema.Registry, target *schema.Model, rel *schema.RelationConfig, owner map[string]any) (*query.Selection, bool, error) {
	q := make(map[string]any, len(rel.Fields))
	for i, col := range rel.Fields {
		v, ok := owner[col]
		if !ok || v == nil {
			return nil, false, nil
		}
		q[rel.References[i]] = v
	}
	sel, err := query.From(reg, "t", target.Name).Where(q)
	return sel, true, err
}

func mergeData(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
