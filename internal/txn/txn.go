// Package txn implements the Transaction component of spec.md §4.3: a
// single schema+instance edit buffer staged against a keyspace's
// graph.Graph, validated and applied atomically at commit.
//
// Grounded on pkg/cypher/transaction.go's BEGIN/COMMIT/ROLLBACK state
// handling for the open/committing/closed lifecycle, and on
// pkg/multidb/manager.go's mutex-guarded struct + sentinel-error style
// for the surrounding bookkeeping.
package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nornicgraph/nornicgraph/internal/graph"
	"github.com/nornicgraph/nornicgraph/internal/idpool"
	"github.com/nornicgraph/nornicgraph/internal/schema"
)

// Mode is a transaction's read/write capability.
type Mode int

const (
	ReadWrite Mode = iota
	ReadOnly
)

type state int

const (
	stateFresh state = iota
	stateOpen
	stateCommitting
	stateClosed
)

// Transaction stages schema and instance edits against one keyspace's
// graph.Graph and validates+applies them atomically at Commit.
//
// Go has no stable goroutine-local storage, so the thread-affinity
// spec.md §4.3 describes (a transaction belongs to the OS thread that
// opened it) is realized instead as an owner token: the caller passes
// a uuid.UUID to Open and must present it on every subsequent call. This is
// a deliberate Open Question resolution — see DESIGN.md.
type Transaction struct {
	mu sync.Mutex

	g    *graph.Graph
	ids  *idpool.Pool
	mode Mode

	owner uuid.UUID
	state state

	schemaUpserts   map[graph.ConceptID]graph.SchemaConcept
	schemaDeletions map[graph.ConceptID]bool
	labelToID       map[string]graph.ConceptID // staged label -> id, overlays g's committed labelIndex

	instanceUpserts   map[graph.ConceptID]graph.Thing
	instanceDeletions map[graph.ConceptID]bool

	// onClose, if set, is invoked exactly once when the transaction
	// reaches stateClosed, so a Session can release the owner's slot.
	onClose func(uuid.UUID)
}

// New constructs a fresh, unopened transaction over g, drawing new
// concept ids from ids.
func New(g *graph.Graph, ids *idpool.Pool, mode Mode) *Transaction {
	return &Transaction{
		g:                 g,
		ids:               ids,
		mode:              mode,
		state:             stateFresh,
		schemaUpserts:     make(map[graph.ConceptID]graph.SchemaConcept),
		schemaDeletions:   make(map[graph.ConceptID]bool),
		labelToID:         make(map[string]graph.ConceptID),
		instanceUpserts:   make(map[graph.ConceptID]graph.Thing),
		instanceDeletions: make(map[graph.ConceptID]bool),
	}
}

// Open transitions a fresh transaction to open, binding it to owner.
// Only a Session calls this, immediately after New.
func (t *Transaction) Open(owner uuid.UUID, onClose func(uuid.UUID)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateFresh {
		return fmt.Errorf("txn: cannot open transaction in state %d", t.state)
	}
	t.owner = owner
	t.state = stateOpen
	t.onClose = onClose
	return nil
}

func (t *Transaction) checkOpenLocked(owner uuid.UUID) error {
	if t.state == stateClosed {
		return ErrTransactionClosed
	}
	if t.state != stateOpen {
		return ErrAlreadyCommitting
	}
	if owner != t.owner {
		// Cross-owner use is indistinguishable from use-after-close and
		// is treated as such: there is no OS-thread-affinity check to
		// fail in its place, only the owner token this package uses to
		// stand in for it.
		return ErrTransactionClosed
	}
	return nil
}

// checkMutationAllowed implements spec.md §4.3's check_mutation_allowed.
// Read-only transactions are allowed to stage mutations; only Commit
// rejects them (with ErrReadOnlyCommit, not ErrReadOnly), so none of
// the put_*/Relates/Plays/Key/Shard/Insert/Delete staging paths call
// this. Kept for ErrReadOnly's place in the error taxonomy.
func (t *Transaction) checkMutationAllowed() error {
	if t.mode == ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// hasStagedChangesLocked reports whether any schema or instance edit
// is staged. Called with t.mu held.
func (t *Transaction) hasStagedChangesLocked() bool {
	return len(t.schemaUpserts) > 0 || len(t.schemaDeletions) > 0 ||
		len(t.instanceUpserts) > 0 || len(t.instanceDeletions) > 0
}

func (t *Transaction) nextID(ctx context.Context) (graph.ConceptID, error) {
	id, err := t.ids.NextID(ctx)
	if err != nil {
		return 0, err
	}
	return graph.ConceptID(id), nil
}

// --- schema views consumed by internal/schema.Validate ---

// AllSchemaConcepts returns the committed schema overlaid by this
// transaction's staged upserts and deletions, satisfying
// internal/schema.View.
func (t *Transaction) AllSchemaConcepts() []graph.SchemaConcept {
	committed := t.g.AllSchema()
	out := make([]graph.SchemaConcept, 0, len(committed)+len(t.schemaUpserts))
	for _, c := range committed {
		if t.schemaDeletions[c.ID] {
			continue
		}
		if _, staged := t.schemaUpserts[c.ID]; staged {
			continue
		}
		out = append(out, c)
	}
	for _, c := range t.schemaUpserts {
		out = append(out, c)
	}
	return out
}

// AllInstances returns the committed instances overlaid by this
// transaction's staged upserts and deletions.
func (t *Transaction) AllInstances() []graph.Thing {
	committed := t.g.AllInstances()
	out := make([]graph.Thing, 0, len(committed)+len(t.instanceUpserts))
	for _, inst := range committed {
		if t.instanceDeletions[inst.ID] {
			continue
		}
		if _, staged := t.instanceUpserts[inst.ID]; staged {
			continue
		}
		out = append(out, inst)
	}
	for _, inst := range t.instanceUpserts {
		out = append(out, inst)
	}
	return out
}

// SchemaConcept resolves id against the staged+committed schema,
// satisfying internal/schema.View.
func (t *Transaction) SchemaConcept(id graph.ConceptID) (graph.SchemaConcept, bool) {
	if t.schemaDeletions[id] {
		return graph.SchemaConcept{}, false
	}
	if c, ok := t.schemaUpserts[id]; ok {
		return c, true
	}
	return t.g.GetSchema(id)
}

var _ schema.View = (*Transaction)(nil)

// schemaByLabel resolves a label against staged-then-committed state.
func (t *Transaction) schemaByLabel(label string) (graph.SchemaConcept, bool) {
	if id, ok := t.labelToID[label]; ok {
		if t.schemaDeletions[id] {
			return graph.SchemaConcept{}, false
		}
		return t.SchemaConcept(id)
	}
	c, ok := t.g.GetSchemaByLabel(label)
	if ok && t.schemaDeletions[c.ID] {
		return graph.SchemaConcept{}, false
	}
	return c, ok
}

// instance resolves id against staged-then-committed state.
func (t *Transaction) instance(id graph.ConceptID) (graph.Thing, bool) {
	if t.instanceDeletions[id] {
		return graph.Thing{}, false
	}
	if th, ok := t.instanceUpserts[id]; ok {
		return th, true
	}
	return t.g.GetInstance(id)
}

func (t *Transaction) stageSchema(c graph.SchemaConcept) {
	t.schemaUpserts[c.ID] = c
	t.labelToID[c.Label] = c.ID
	delete(t.schemaDeletions, c.ID)
}

func (t *Transaction) stageInstance(th graph.Thing) {
	t.instanceUpserts[th.ID] = th
	delete(t.instanceDeletions, th.ID)
}
