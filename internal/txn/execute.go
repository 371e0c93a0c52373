package txn

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nornicgraph/nornicgraph/internal/ast"
	"github.com/nornicgraph/nornicgraph/internal/graph"
)

// Execute runs one structured query against the transaction, per
// spec.md §4.3. The query language surface itself (parsing Graql/
// Cypher-style text down to an ast.Query) is out of scope; Execute
// picks up exactly where that parser would leave off, the way
// pkg/cypher's executor walks an already-tokenized clause rather than
// re-deriving intent from raw text at every step.
//
// Variables referenced by a Pattern's Has or Rel constraints must be
// declared (appear as an earlier Pattern.Var) earlier in the same
// Match/Insert list — this interpreter does not reorder patterns to
// satisfy forward references.
func (t *Transaction) Execute(ctx context.Context, owner uuid.UUID, q ast.Query) (ast.Result, error) {
	switch q.Kind {
	case ast.KindDefine:
		return t.executeDefine(ctx, owner, q.Define)
	case ast.KindInsert:
		return t.executeInsert(ctx, owner, q.Insert)
	case ast.KindGet:
		return t.executeGet(owner, q.Match)
	case ast.KindDelete:
		return t.executeDelete(owner, q.Match, q.DeleteVars)
	case ast.KindAggregate:
		return t.executeAggregate(owner, q.Match, q.Aggregate)
	default:
		return ast.Result{}, fmt.Errorf("txn: unknown query kind %d", q.Kind)
	}
}

func (t *Transaction) executeDefine(ctx context.Context, owner uuid.UUID, decls []ast.SchemaDecl) (ast.Result, error) {
	varIDs := map[ast.Var]graph.ConceptID{}
	created := map[ast.Var]graph.ConceptID{}

	resolveSuper := func(d ast.SchemaDecl) (graph.ConceptID, error) {
		if d.SuperLabel != "" {
			c, ok, err := t.GetSchemaConcept(owner, d.SuperLabel)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, fmt.Errorf("txn: define %q: unknown supertype %q", d.Label, d.SuperLabel)
			}
			return c.ID, nil
		}
		if d.Super != "" {
			id, ok := varIDs[d.Super]
			if !ok {
				return 0, fmt.Errorf("txn: define %q: supertype var %q not yet declared", d.Label, d.Super)
			}
			return id, nil
		}
		return graph.NoConcept, nil
	}

	for _, d := range decls {
		super, err := resolveSuper(d)
		if err != nil {
			return ast.Result{}, err
		}

		var id graph.ConceptID
		switch d.Kind {
		case graph.KindEntityType:
			id, err = t.PutEntityType(ctx, owner, d.Label, super)
		case graph.KindRelationType:
			id, err = t.PutRelationType(ctx, owner, d.Label, super)
		case graph.KindAttributeType:
			id, err = t.PutAttributeType(ctx, owner, d.Label, super, d.DataType)
		case graph.KindRole:
			id, err = t.PutRole(ctx, owner, d.Label, super)
		case graph.KindRule:
			id, err = t.PutRule(ctx, owner, d.Label, d.When, d.Then)
		default:
			return ast.Result{}, fmt.Errorf("txn: define %q: unsupported schema kind %s", d.Label, d.Kind)
		}
		if err != nil {
			return ast.Result{}, err
		}
		if d.Var != "" {
			varIDs[d.Var] = id
			created[d.Var] = id
		}

		for _, roleVar := range d.Relates {
			roleID, ok := varIDs[roleVar]
			if !ok {
				return ast.Result{}, fmt.Errorf("txn: define %q: relates var %q not yet declared", d.Label, roleVar)
			}
			if err := t.Relates(ctx, owner, id, roleID); err != nil {
				return ast.Result{}, err
			}
		}
		for _, p := range d.Plays {
			roleID, ok := varIDs[p.Role]
			if !ok {
				return ast.Result{}, fmt.Errorf("txn: define %q: plays var %q not yet declared", d.Label, p.Role)
			}
			if err := t.Plays(ctx, owner, id, roleID, p.Required); err != nil {
				return ast.Result{}, err
			}
		}
		for _, keyVar := range d.Keys {
			attrID, ok := varIDs[keyVar]
			if !ok {
				return ast.Result{}, fmt.Errorf("txn: define %q: key var %q not yet declared", d.Label, keyVar)
			}
			if err := t.Key(ctx, owner, id, attrID); err != nil {
				return ast.Result{}, err
			}
		}
	}

	return ast.Result{Created: created}, nil
}

func (t *Transaction) executeInsert(ctx context.Context, owner uuid.UUID, patterns []ast.Pattern) (ast.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return ast.Result{}, err
	}

	varIDs := map[ast.Var]graph.ConceptID{}
	created := map[ast.Var]graph.ConceptID{}

	for _, p := range patterns {
		typ, ok := t.schemaByLabel(p.TypeLabel)
		if !ok {
			return ast.Result{}, fmt.Errorf("txn: insert: unknown type %q", p.TypeLabel)
		}

		var id graph.ConceptID
		var err error
		switch typ.Kind {
		case graph.KindAttributeType:
			id, err = t.findOrCreateAttribute(ctx, typ.ID, p.Value)
		case graph.KindEntityType:
			id, err = t.createEntity(ctx, typ.ID)
		case graph.KindRelationType:
			id, err = t.createRelation(ctx, typ.ID)
			if err == nil {
				for _, rp := range p.Rel {
					role, ok := t.schemaByLabel(rp.RoleLabel)
					if !ok {
						err = fmt.Errorf("txn: insert: unknown role %q", rp.RoleLabel)
						break
					}
					playerID, ok := varIDs[rp.Player]
					if !ok {
						err = fmt.Errorf("txn: insert: role player var %q not yet bound", rp.Player)
						break
					}
					if err = t.addCasting(id, role.ID, playerID); err != nil {
						break
					}
				}
			}
		default:
			return ast.Result{}, fmt.Errorf("txn: insert: %q is not an instantiable type", p.TypeLabel)
		}
		if err != nil {
			return ast.Result{}, err
		}

		for _, h := range p.Has {
			attrType, ok := t.schemaByLabel(h.AttrTypeLabel)
			if !ok {
				return ast.Result{}, fmt.Errorf("txn: insert: unknown attribute type %q", h.AttrTypeLabel)
			}
			var attrID graph.ConceptID
			if h.Var != "" {
				bound, ok := varIDs[h.Var]
				if !ok {
					return ast.Result{}, fmt.Errorf("txn: insert: has var %q not yet bound", h.Var)
				}
				attrID = bound
			} else {
				attrID, err = t.findOrCreateAttribute(ctx, attrType.ID, h.Value)
				if err != nil {
					return ast.Result{}, err
				}
			}
			if err := t.addHasEdge(id, attrType.ID, attrID); err != nil {
				return ast.Result{}, err
			}
		}

		if p.Var != "" {
			varIDs[p.Var] = id
			created[p.Var] = id
		}
	}

	return ast.Result{Created: created}, nil
}

func (t *Transaction) executeGet(owner uuid.UUID, match []ast.Pattern) (ast.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return ast.Result{}, err
	}
	bindings, err := t.matchAllLocked(match)
	if err != nil {
		return ast.Result{}, err
	}
	return ast.Result{Bindings: bindings}, nil
}

func (t *Transaction) executeDelete(owner uuid.UUID, match []ast.Pattern, deleteVars []ast.Var) (ast.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return ast.Result{}, err
	}
	bindings, err := t.matchAllLocked(match)
	if err != nil {
		return ast.Result{}, err
	}
	seen := map[graph.ConceptID]bool{}
	for _, b := range bindings {
		for _, v := range deleteVars {
			id, ok := b[v]
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			t.deleteInstance(id)
		}
	}
	return ast.Result{Bindings: bindings}, nil
}

func (t *Transaction) executeAggregate(owner uuid.UUID, match []ast.Pattern, spec *ast.AggregateSpec) (ast.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpenLocked(owner); err != nil {
		return ast.Result{}, err
	}
	if spec == nil {
		return ast.Result{}, fmt.Errorf("txn: aggregate: missing spec")
	}
	bindings, err := t.matchAllLocked(match)
	if err != nil {
		return ast.Result{}, err
	}

	if spec.Op == ast.AggCount {
		return ast.Result{Bindings: bindings, Aggregate: float64(len(bindings))}, nil
	}

	var sum float64
	var n int
	for _, b := range bindings {
		id, ok := b[spec.Var]
		if !ok {
			continue
		}
		th, ok := t.instance(id)
		if !ok || th.Kind != graph.KindAttribute {
			continue
		}
		switch v := th.Value.(type) {
		case int:
			sum += float64(v)
			n++
		case int64:
			sum += float64(v)
			n++
		case float64:
			sum += v
			n++
		}
	}
	result := sum
	if spec.Op == ast.AggMean && n > 0 {
		result = sum / float64(n)
	}
	return ast.Result{Bindings: bindings, Aggregate: result}, nil
}

// matchAllLocked finds every binding satisfying the conjunction of
// patterns, via backtracking search over all staged+committed
// instances. Called with t.mu held.
func (t *Transaction) matchAllLocked(match []ast.Pattern) ([]ast.Binding, error) {
	all := t.AllInstances()

	var results []ast.Binding
	binding := ast.Binding{}

	var walk func(i int) error
	walk = func(i int) error {
		if i == len(match) {
			cp := make(ast.Binding, len(binding))
			for k, v := range binding {
				cp[k] = v
			}
			results = append(results, cp)
			return nil
		}
		p := match[i]
		for _, th := range all {
			if existing, ok := binding[p.Var]; ok && existing != th.ID {
				continue
			}
			ok, err := t.patternMatchesLocked(th, p, binding)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			prev, hadPrev := binding[p.Var]
			binding[p.Var] = th.ID
			if err := walk(i + 1); err != nil {
				return err
			}
			if hadPrev {
				binding[p.Var] = prev
			} else {
				delete(binding, p.Var)
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Transaction) patternMatchesLocked(th graph.Thing, p ast.Pattern, binding ast.Binding) (bool, error) {
	if p.TypeLabel != "" {
		typ, ok := t.schemaByLabel(p.TypeLabel)
		if !ok {
			return false, fmt.Errorf("txn: match: unknown type %q", p.TypeLabel)
		}
		if !t.typeIsALocked(th.TypeID, typ.ID) {
			return false, nil
		}
	}
	if p.Value != nil {
		if th.Kind != graph.KindAttribute || th.Value != p.Value {
			return false, nil
		}
	}
	for _, h := range p.Has {
		attrType, ok := t.schemaByLabel(h.AttrTypeLabel)
		if !ok {
			return false, fmt.Errorf("txn: match: unknown attribute type %q", h.AttrTypeLabel)
		}
		candidates := th.Attributes[attrType.ID]
		matched := false
		for _, attrID := range candidates {
			if h.Value != nil {
				attr, ok := t.instance(attrID)
				if ok && attr.Value == h.Value {
					matched = true
					break
				}
				continue
			}
			if h.Var != "" {
				if want, ok := binding[h.Var]; ok {
					if attrID == want {
						matched = true
						break
					}
					continue
				}
			}
		}
		if !matched {
			return false, nil
		}
	}
	for _, r := range p.Rel {
		if th.Kind != graph.KindRelation {
			return false, nil
		}
		role, ok := t.schemaByLabel(r.RoleLabel)
		if !ok {
			return false, fmt.Errorf("txn: match: unknown role %q", r.RoleLabel)
		}
		wantPlayer, bound := binding[r.Player]
		matched := false
		for _, c := range th.Castings {
			if c.Role != role.ID {
				continue
			}
			if bound && c.Player != wantPlayer {
				continue
			}
			matched = true
			break
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// typeIsALocked reports whether instTypeID is wantTypeID or one of
// its subtypes, by walking wantTypeID's Super chain is not enough —
// we instead check whether wantTypeID appears in instTypeID's
// ancestor chain.
func (t *Transaction) typeIsALocked(instTypeID, wantTypeID graph.ConceptID) bool {
	id := instTypeID
	seen := map[graph.ConceptID]bool{}
	for {
		if id == wantTypeID {
			return true
		}
		c, ok := t.SchemaConcept(id)
		if !ok || seen[id] {
			return false
		}
		seen[id] = true
		if c.Super == graph.NoConcept && c.Kind == graph.KindThing {
			return false
		}
		id = c.Super
	}
}
