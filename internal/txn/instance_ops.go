package txn

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nornicgraph/nornicgraph/internal/graph"
)

// GetAttributesByValue returns every attribute instance (staged or
// committed, of any attribute type) whose value equals v, per
// spec.md §4.3's get_attributes_by_value.
func (t *Transaction) GetAttributesByValue(owner uuid.UUID, v interface{}) ([]graph.Thing, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return nil, err
	}

	out := t.g.AttributesByValue(v)
	filtered := out[:0]
	for _, th := range out {
		if t.instanceDeletions[th.ID] {
			continue
		}
		if staged, ok := t.instanceUpserts[th.ID]; ok {
			filtered = append(filtered, staged)
			continue
		}
		filtered = append(filtered, th)
	}
	for _, th := range t.instanceUpserts {
		if th.Kind != graph.KindAttribute || th.Value != v {
			continue
		}
		already := false
		for _, f := range filtered {
			if f.ID == th.ID {
				already = true
				break
			}
		}
		if !already {
			filtered = append(filtered, th)
		}
	}
	return filtered, nil
}

// createEntity mints a new entity instance of typeID. Caller must
// already hold t.mu.
func (t *Transaction) createEntity(ctx context.Context, typeID graph.ConceptID) (graph.ConceptID, error) {
	id, err := t.nextID(ctx)
	if err != nil {
		return 0, err
	}
	shardID := t.g.AttachInstance(typeID)
	th := graph.Thing{ID: id, TypeID: typeID, Kind: graph.KindEntity, ShardID: shardID}
	t.stageInstance(th)
	return id, nil
}

// findOrCreateAttribute returns the id of an existing attribute
// instance of typeID with value v if one is staged or committed,
// otherwise mints one. Attribute instances are deduplicated by
// (type, value), matching Grakn's attribute-uniqueness guarantee.
func (t *Transaction) findOrCreateAttribute(ctx context.Context, typeID graph.ConceptID, v interface{}) (graph.ConceptID, error) {
	for _, th := range t.instanceUpserts {
		if th.Kind == graph.KindAttribute && th.TypeID == typeID && th.Value == v {
			return th.ID, nil
		}
	}
	for _, th := range t.g.AttributesByValue(v) {
		if th.TypeID != typeID || t.instanceDeletions[th.ID] {
			continue
		}
		return th.ID, nil
	}

	id, err := t.nextID(ctx)
	if err != nil {
		return 0, err
	}
	shardID := t.g.AttachInstance(typeID)
	th := graph.Thing{ID: id, TypeID: typeID, Kind: graph.KindAttribute, Value: v, ShardID: shardID}
	t.stageInstance(th)
	return id, nil
}

// createRelation mints a new, initially role-player-less relation
// instance of typeID.
func (t *Transaction) createRelation(ctx context.Context, typeID graph.ConceptID) (graph.ConceptID, error) {
	id, err := t.nextID(ctx)
	if err != nil {
		return 0, err
	}
	shardID := t.g.AttachInstance(typeID)
	th := graph.Thing{ID: id, TypeID: typeID, Kind: graph.KindRelation, ShardID: shardID}
	t.stageInstance(th)
	return id, nil
}

// addCasting adds a role-player edge to the relation instance
// relationID.
func (t *Transaction) addCasting(relationID, role, player graph.ConceptID) error {
	rel, ok := t.instance(relationID)
	if !ok {
		return fmt.Errorf("txn: no such relation instance %d", relationID)
	}
	rel.Castings = append(rel.Castings, graph.Casting{Role: role, Relation: relationID, Player: player})
	t.stageInstance(rel)
	return nil
}

// addHasEdge records that owner has an attribute instance attrID of
// type attrTypeID.
func (t *Transaction) addHasEdge(ownerID, attrTypeID, attrID graph.ConceptID) error {
	owner, ok := t.instance(ownerID)
	if !ok {
		return fmt.Errorf("txn: no such instance %d", ownerID)
	}
	if owner.Attributes == nil {
		owner.Attributes = map[graph.ConceptID][]graph.ConceptID{}
	}
	for _, existing := range owner.Attributes[attrTypeID] {
		if existing == attrID {
			return nil
		}
	}
	owner.Attributes[attrTypeID] = append(owner.Attributes[attrTypeID], attrID)
	t.stageInstance(owner)
	return nil
}

// deleteInstance stages the removal of an instance.
func (t *Transaction) deleteInstance(id graph.ConceptID) {
	delete(t.instanceUpserts, id)
	t.instanceDeletions[id] = true
}
