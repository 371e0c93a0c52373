package txn

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nornicgraph/nornicgraph/internal/graph"
)

// PutEntityType declares or retrieves an entity type by label, per
// spec.md §4.3's put_entity_type. A second call with the same label
// returns the existing type rather than erroring, matching Grakn's
// idempotent put_* semantics.
func (t *Transaction) PutEntityType(ctx context.Context, owner uuid.UUID, label string, super graph.ConceptID) (graph.ConceptID, error) {
	return t.putType(ctx, owner, label, graph.KindEntityType, super, graph.DataTypeUnknown)
}

// PutRelationType declares or retrieves a relation type by label.
func (t *Transaction) PutRelationType(ctx context.Context, owner uuid.UUID, label string, super graph.ConceptID) (graph.ConceptID, error) {
	return t.putType(ctx, owner, label, graph.KindRelationType, super, graph.DataTypeUnknown)
}

// PutAttributeType declares or retrieves an attribute type by label
// and value type.
func (t *Transaction) PutAttributeType(ctx context.Context, owner uuid.UUID, label string, super graph.ConceptID, dataType graph.DataType) (graph.ConceptID, error) {
	return t.putType(ctx, owner, label, graph.KindAttributeType, super, dataType)
}

// PutRole declares or retrieves a role by label.
func (t *Transaction) PutRole(ctx context.Context, owner uuid.UUID, label string, super graph.ConceptID) (graph.ConceptID, error) {
	return t.putType(ctx, owner, label, graph.KindRole, super, graph.DataTypeUnknown)
}

func (t *Transaction) putType(ctx context.Context, owner uuid.UUID, label string, kind graph.SchemaKind, super graph.ConceptID, dataType graph.DataType) (graph.ConceptID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return 0, err
	}

	if existing, ok := t.schemaByLabel(label); ok {
		if existing.Kind != kind {
			return 0, fmt.Errorf("txn: %q already declared as kind %s, not %s", label, existing.Kind, kind)
		}
		return existing.ID, nil
	}

	id, err := t.nextID(ctx)
	if err != nil {
		return 0, err
	}
	c := graph.SchemaConcept{
		ID:    id,
		Label: label,
		Kind:  kind,
		Super: super,

		DataType: dataType,
		Plays:    map[graph.ConceptID]bool{},
		Relates:  map[graph.ConceptID]bool{},
		Keys:     map[graph.ConceptID]bool{},
	}
	t.stageSchema(c)
	return id, nil
}

// PutRule declares or retrieves a rule by label, when/then body.
func (t *Transaction) PutRule(ctx context.Context, owner uuid.UUID, label string, when, then graph.Conjunction) (graph.ConceptID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return 0, err
	}

	if existing, ok := t.schemaByLabel(label); ok {
		if existing.Kind != graph.KindRule {
			return 0, fmt.Errorf("txn: %q already declared as kind %s, not rule", label, existing.Kind)
		}
		return existing.ID, nil
	}

	id, err := t.nextID(ctx)
	if err != nil {
		return 0, err
	}
	c := graph.SchemaConcept{
		ID:    id,
		Label: label,
		Kind:  graph.KindRule,
		Super: graph.NoConcept,
		Rule: &graph.RuleBody{
			When: when,
			Then: then,
		},
	}
	t.stageSchema(c)
	return id, nil
}

// Relates declares that relationType exposes role, per spec.md §3's
// relation-type-to-role structural edge.
func (t *Transaction) Relates(ctx context.Context, owner uuid.UUID, relationType, role graph.ConceptID) error {
	return t.mutateSchema(owner, relationType, func(c *graph.SchemaConcept) error {
		if c.Kind != graph.KindRelationType {
			return fmt.Errorf("txn: %q is not a relation type", c.Label)
		}
		if c.Relates == nil {
			c.Relates = map[graph.ConceptID]bool{}
		}
		c.Relates[role] = true
		return nil
	})
}

// Plays declares that playerType's instances may play role, required
// indicating whether every instance must do so exactly once (spec.md
// §4.2 check 5).
func (t *Transaction) Plays(ctx context.Context, owner uuid.UUID, playerType, role graph.ConceptID, required bool) error {
	return t.mutateSchema(owner, playerType, func(c *graph.SchemaConcept) error {
		if c.Plays == nil {
			c.Plays = map[graph.ConceptID]bool{}
		}
		c.Plays[role] = required
		return nil
	})
}

// Key declares attrType as a key for ownerType, per spec.md §3's key
// role (modeled directly on the owner type; see DESIGN.md).
func (t *Transaction) Key(ctx context.Context, owner uuid.UUID, ownerType, attrType graph.ConceptID) error {
	return t.mutateSchema(owner, ownerType, func(c *graph.SchemaConcept) error {
		if c.Keys == nil {
			c.Keys = map[graph.ConceptID]bool{}
		}
		c.Keys[attrType] = true
		return nil
	})
}

func (t *Transaction) mutateSchema(owner uuid.UUID, id graph.ConceptID, fn func(*graph.SchemaConcept) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return err
	}
	c, ok := t.SchemaConcept(id)
	if !ok {
		return fmt.Errorf("txn: no such schema concept %d", id)
	}
	if err := fn(&c); err != nil {
		return err
	}
	t.stageSchema(c)
	return nil
}

// GetSchemaConcept resolves a schema concept by label, per spec.md
// §4.3's get_* lookups.
func (t *Transaction) GetSchemaConcept(owner uuid.UUID, label string) (graph.SchemaConcept, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return graph.SchemaConcept{}, false, err
	}
	c, ok := t.schemaByLabel(label)
	return c, ok, nil
}

// GetSchemaConceptByID resolves a schema concept by id.
func (t *Transaction) GetSchemaConceptByID(owner uuid.UUID, id graph.ConceptID) (graph.SchemaConcept, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return graph.SchemaConcept{}, false, err
	}
	c, ok := t.SchemaConcept(id)
	return c, ok, nil
}

// Shard implements spec.md §4.3's shard(type_id): explicitly opens a
// new current-shard for typeID, independent of the sharding
// threshold.
func (t *Transaction) Shard(owner uuid.UUID, typeID graph.ConceptID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return 0, err
	}
	return t.g.OpenShard(typeID), nil
}
