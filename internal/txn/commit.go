package txn

import (
	"context"

	"github.com/google/uuid"

	"github.com/nornicgraph/nornicgraph/internal/graph"
	"github.com/nornicgraph/nornicgraph/internal/schema"
)

// snapshotView is an immutable, already-resolved schema.View taken at
// the start of Commit, so validation never reads Transaction's
// staging maps after t.mu is released.
type snapshotView struct {
	schema    []graph.SchemaConcept
	byID      map[graph.ConceptID]graph.SchemaConcept
	instances []graph.Thing
}

func (s *snapshotView) AllSchemaConcepts() []graph.SchemaConcept { return s.schema }
func (s *snapshotView) AllInstances() []graph.Thing              { return s.instances }
func (s *snapshotView) SchemaConcept(id graph.ConceptID) (graph.SchemaConcept, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Commit validates the staged schema+instance edits against the nine
// checks of internal/schema, applies them atomically to the
// underlying graph.Graph on success, and closes the transaction.
// Commit never partially applies: on validation failure the
// transaction remains open so the caller can inspect and retry.
func (t *Transaction) Commit(ctx context.Context, owner uuid.UUID) error {
	t.mu.Lock()
	if err := t.checkOpenLocked(owner); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.mode == ReadOnly && t.hasStagedChangesLocked() {
		t.mu.Unlock()
		return ErrReadOnlyCommit
	}
	if t.mode == ReadOnly {
		// No-op commit of a read-only transaction: close and succeed,
		// same as Close.
		t.mu.Unlock()
		return t.finishClose(owner)
	}
	t.state = stateCommitting
	snap := &snapshotView{
		schema:    t.AllSchemaConcepts(),
		instances: t.AllInstances(),
	}
	snap.byID = make(map[graph.ConceptID]graph.SchemaConcept, len(snap.schema))
	for _, c := range snap.schema {
		snap.byID[c.ID] = c
	}
	t.mu.Unlock()

	// Validated against an immutable snapshot taken while t.mu was
	// held, not against t itself: Transaction's View methods read the
	// staging maps without their own locking, relying on the caller
	// (here, Commit) to hold t.mu for the duration of any read. A
	// snapshot avoids depending on that discipline across the
	// validation pass, which runs with t.mu released.
	result := schema.Validate(snap)
	if !result.OK() {
		t.mu.Lock()
		t.state = stateOpen
		t.mu.Unlock()
		return &ValidationError{Messages: result.Diagnostics}
	}

	t.mu.Lock()
	for ruleID, analysis := range result.RuleInfo {
		c, ok := t.schemaUpserts[ruleID]
		if !ok {
			committed, ok2 := t.g.GetSchema(ruleID)
			if !ok2 {
				continue
			}
			c = committed
		}
		if c.Rule == nil {
			continue
		}
		r := *c.Rule
		r.PositiveHypothesis = analysis.PositiveHypothesis
		r.NegativeHypothesis = analysis.NegativeHypothesis
		r.Conclusion = analysis.Conclusion
		c.Rule = &r
		t.schemaUpserts[ruleID] = c
	}

	t.applyInferredConceptPersistenceLocked()

	schemaUpserts := make([]graph.SchemaConcept, 0, len(t.schemaUpserts))
	for _, c := range t.schemaUpserts {
		schemaUpserts = append(schemaUpserts, c)
	}
	schemaDeletions := make([]graph.ConceptID, 0, len(t.schemaDeletions))
	for id := range t.schemaDeletions {
		schemaDeletions = append(schemaDeletions, id)
	}
	instanceUpserts := make([]graph.Thing, 0, len(t.instanceUpserts))
	for _, th := range t.instanceUpserts {
		instanceUpserts = append(instanceUpserts, th)
	}
	instanceDeletions := make([]graph.ConceptID, 0, len(t.instanceDeletions))
	for id := range t.instanceDeletions {
		instanceDeletions = append(instanceDeletions, id)
	}
	t.mu.Unlock()

	t.g.CommitSchema(schemaUpserts, schemaDeletions)
	t.g.CommitInstances(instanceUpserts, instanceDeletions)

	return t.finishClose(owner)
}

// applyInferredConceptPersistenceLocked implements spec.md §4.3's
// inferred-concept persistence rule: an inferred concept survives
// commit only if it is reachable, via has/role-player edges, from a
// concept that is either user-inserted or itself already known to
// survive. Called with t.mu held.
func (t *Transaction) applyInferredConceptPersistenceLocked() {
	all := make(map[graph.ConceptID]graph.Thing)
	for _, th := range t.g.AllInstances() {
		if t.instanceDeletions[th.ID] {
			continue
		}
		all[th.ID] = th
	}
	for id, th := range t.instanceUpserts {
		all[id] = th
	}

	survives := make(map[graph.ConceptID]bool, len(all))
	var mark func(id graph.ConceptID)
	mark = func(id graph.ConceptID) {
		if survives[id] {
			return
		}
		th, ok := all[id]
		if !ok {
			return
		}
		survives[id] = true
		for _, c := range th.Castings {
			mark(c.Player)
		}
		for _, attrIDs := range th.Attributes {
			for _, aid := range attrIDs {
				mark(aid)
			}
		}
	}

	for id, th := range all {
		if !th.Inferred || th.ReferencedByUser {
			mark(id)
		}
	}

	for id, th := range all {
		if th.Inferred && !survives[id] {
			t.deleteInstance(id)
		}
	}
}

// Close abandons any staged edits and transitions the transaction to
// closed. Idempotent: closing an already-closed transaction is a
// no-op, matching Grakn's tolerant rollback semantics.
func (t *Transaction) Close(owner uuid.UUID) error {
	t.mu.Lock()
	if t.state == stateClosed {
		t.mu.Unlock()
		return nil
	}
	if err := t.checkOpenLocked(owner); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()
	return t.finishClose(owner)
}

// finishClose performs the actual state transition and onClose
// callback. Must not be called with t.mu held.
func (t *Transaction) finishClose(owner uuid.UUID) error {
	t.mu.Lock()
	t.state = stateClosed
	onClose := t.onClose
	t.mu.Unlock()
	if onClose != nil {
		onClose(owner)
	}
	return nil
}
