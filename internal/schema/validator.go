// Package schema implements the global schema/instance invariant
// checks run at transaction commit (spec.md §4.2), grounded on
// original_source/server/ValidateGlobalRules.java (Grakn's
// ValidateGlobalRules). Each check is a pure function over a View; all
// nine checks run unconditionally and their diagnostics are unioned —
// no short-circuiting across checks — so a commit reports every
// violation at once.
package schema

import (
	"sort"

	"github.com/nornicgraph/nornicgraph/internal/graph"
)

// View is the narrow read-only window into a transaction's staged +
// committed graph that the validator needs. internal/txn.Transaction
// implements it; the validator package has no dependency on txn,
// keeping the schema/transaction layering acyclic (spec.md §9's
// narrow-view design note).
type View interface {
	AllSchemaConcepts() []graph.SchemaConcept
	AllInstances() []graph.Thing
	SchemaConcept(id graph.ConceptID) (graph.SchemaConcept, bool)
}

// RuleAnalysis carries the hypothesis/conclusion sets computed for one
// rule by check 8, consumed by check 9's stratifiability graph and
// later written back onto the rule's staged SchemaConcept by the
// transaction (the validator itself never mutates the graph).
type RuleAnalysis struct {
	PositiveHypothesis map[graph.ConceptID]bool
	NegativeHypothesis map[graph.ConceptID]bool
	Conclusion         map[graph.ConceptID]bool
}

// Result is the outcome of Validate.
type Result struct {
	Diagnostics []string
	RuleInfo    map[graph.ConceptID]RuleAnalysis
}

// OK reports whether the validation produced no diagnostics.
func (r Result) OK() bool { return len(r.Diagnostics) == 0 }

// Validate runs all nine checks of spec.md §4.2 against v and returns
// the aggregated result.
func Validate(v View) Result {
	concepts := v.AllSchemaConcepts()
	byID := make(map[graph.ConceptID]graph.SchemaConcept, len(concepts))
	for _, c := range concepts {
		byID[c.ID] = c
	}

	var diags []string

	diags = append(diags, checkRoleRelationLinkage(concepts)...)
	diags = append(diags, checkMinimumRoles(concepts)...)
	diags = append(diags, checkRelationTypeRoleHierarchy(concepts, byID)...)

	things := v.AllInstances()
	thingsByID := make(map[graph.ConceptID]graph.Thing, len(things))
	for _, t := range things {
		thingsByID[t.ID] = t
	}

	diags = append(diags, checkCastingValidity(things, thingsByID, byID)...)
	diags = append(diags, checkRequiredRoleInstances(things, byID)...)
	diags = append(diags, checkKeyUniqueness(things, byID)...)
	diags = append(diags, checkRelationNonEmpty(things, byID)...)

	ruleDiags, ruleInfo := checkRuleWellFormedness(concepts, byID)
	diags = append(diags, ruleDiags...)

	diags = append(diags, checkRuleStratifiability(concepts, ruleInfo)...)

	return Result{Diagnostics: diags, RuleInfo: ruleInfo}
}

// ancestors returns id and every concept above it in the Super chain,
// root Thing last.
func ancestors(id graph.ConceptID, byID map[graph.ConceptID]graph.SchemaConcept) []graph.SchemaConcept {
	var out []graph.SchemaConcept
	seen := map[graph.ConceptID]bool{}
	for {
		c, ok := byID[id]
		if !ok || seen[id] {
			return out
		}
		seen[id] = true
		out = append(out, c)
		if c.Super == graph.NoConcept && c.Kind == graph.KindThing {
			return out
		}
		id = c.Super
	}
}

// descendants returns every concept whose Super chain passes through
// id (id itself included).
func descendants(id graph.ConceptID, all []graph.SchemaConcept) []graph.SchemaConcept {
	children := make(map[graph.ConceptID][]graph.ConceptID)
	byID := make(map[graph.ConceptID]graph.SchemaConcept)
	for _, c := range all {
		children[c.Super] = append(children[c.Super], c.ID)
		byID[c.ID] = c
	}
	var out []graph.SchemaConcept
	queue := []graph.ConceptID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if c, ok := byID[cur]; ok {
			out = append(out, c)
		}
		queue = append(queue, children[cur]...)
	}
	return out
}

// 1. Role -> Relation linkage.
func checkRoleRelationLinkage(concepts []graph.SchemaConcept) []string {
	related := map[graph.ConceptID]bool{}
	for _, c := range concepts {
		if c.Kind == graph.KindRelationType {
			for roleID := range c.Relates {
				related[roleID] = true
			}
		}
	}
	var diags []string
	for _, c := range concepts {
		if c.Kind != graph.KindRole || c.Abstract {
			continue
		}
		if !related[c.ID] {
			diags = append(diags, f(msgRoleMissingRelationType, c.Label))
		}
	}
	return diags
}

// 2. Minimum roles.
func checkMinimumRoles(concepts []graph.SchemaConcept) []string {
	var diags []string
	for _, c := range concepts {
		if c.Kind != graph.KindRelationType || c.Abstract {
			continue
		}
		if len(c.Relates) == 0 {
			diags = append(diags, f(msgRelationTypeNoRoles, c.Label))
		}
	}
	return diags
}

// 3. Relation-type / role hierarchy.
func checkRelationTypeRoleHierarchy(concepts []graph.SchemaConcept, byID map[graph.ConceptID]graph.SchemaConcept) []string {
	var diags []string
	for _, r := range concepts {
		if r.Kind != graph.KindRelationType || r.Abstract {
			continue
		}
		sup, ok := byID[r.Super]
		if !ok || sup.Kind != graph.KindRelationType || sup.Abstract {
			continue
		}

		// every role of r has an ancestor among the roles (or their
		// ancestors) related-to by sup's super-chain
		supRoleAncestors := map[graph.ConceptID]bool{}
		for roleID := range sup.Relates {
			for _, a := range ancestors(roleID, byID) {
				supRoleAncestors[a.ID] = true
			}
		}
		for roleID := range r.Relates {
			found := false
			for _, a := range ancestors(roleID, byID) {
				if supRoleAncestors[a.ID] {
					found = true
					break
				}
			}
			if !found {
				roleLabel := byID[roleID].Label
				diags = append(diags, f(msgRelationTypesRolesSchema, roleLabel, r.Label, "super", sup.Label))
			}
		}

		// every role of sup has a descendant among the roles related-to by r
		for roleID := range sup.Relates {
			found := false
			for _, d := range descendants(roleID, concepts) {
				if r.Relates[d.ID] {
					found = true
					break
				}
			}
			if !found {
				diags = append(diags, f(msgRelationTypesRolesSchema, byID[roleID].Label, sup.Label, "sub", r.Label))
			}
		}
	}
	return diags
}

// 4. Casting validity.
func checkCastingValidity(things []graph.Thing, thingsByID map[graph.ConceptID]graph.Thing, byID map[graph.ConceptID]graph.SchemaConcept) []string {
	var diags []string
	for _, rel := range things {
		if rel.Kind != graph.KindRelation {
			continue
		}
		relType, ok := byID[rel.TypeID]
		if !ok {
			continue
		}
		for _, c := range rel.Castings {
			player, ok := thingsByID[c.Player]
			if !ok {
				continue
			}
			if !byID[relType.ID].Relates[c.Role] {
				// a direct casting/relates mismatch against the relation
				// type's own Relates set; its supertypes' sets are not
				// consulted.
				diags = append(diags, f(msgRelationCastingLoopFail, rel.ID, byID[c.Role].Label, relType.Label))
			}

			allowed := false
			for _, anc := range ancestors(player.TypeID, byID) {
				if anc.Plays[c.Role] {
					allowed = true
					break
				}
			}
			if !allowed {
				diags = append(diags, f(msgCasting, byID[player.TypeID].Label, player.ID, byID[c.Role].Label))
			}
		}
	}
	return diags
}

// 5. Required-role instance check.
func checkRequiredRoleInstances(things []graph.Thing, byID map[graph.ConceptID]graph.SchemaConcept) []string {
	var diags []string
	for _, t := range things {
		if t.Kind == graph.KindRelation {
			continue
		}
		for _, anc := range ancestors(t.TypeID, byID) {
			for roleID, required := range anc.Plays {
				if !required {
					continue
				}
				count := countRelationsInRole(t.ID, roleID, things)
				if count != 1 {
					diags = append(diags, f(msgRequiredRelation, t.ID, byID[t.TypeID].Label, byID[roleID].Label, count))
				}
			}
			for attrTypeID := range anc.Keys {
				count := len(t.Attributes[attrTypeID])
				if count != 1 {
					diags = append(diags, f(msgKeyNotExactlyOne, t.ID, byID[attrTypeID].Label, count))
				}
			}
		}
	}
	return diags
}

func countRelationsInRole(playerID, roleID graph.ConceptID, things []graph.Thing) int {
	count := 0
	for _, t := range things {
		if t.Kind != graph.KindRelation {
			continue
		}
		for _, c := range t.Castings {
			if c.Player == playerID && c.Role == roleID {
				count++
				break
			}
		}
	}
	return count
}

// 6. Key uniqueness.
func checkKeyUniqueness(things []graph.Thing, byID map[graph.ConceptID]graph.SchemaConcept) []string {
	type ownerKey struct {
		ownerType graph.ConceptID
		attrType  graph.ConceptID
		value     interface{}
	}
	owners := map[ownerKey][]graph.ConceptID{}

	thingsByID := make(map[graph.ConceptID]graph.Thing, len(things))
	for _, t := range things {
		thingsByID[t.ID] = t
	}

	for _, t := range things {
		if t.Kind == graph.KindRelation {
			continue
		}
		for _, anc := range ancestors(t.TypeID, byID) {
			for attrTypeID := range anc.Keys {
				for _, attrID := range t.Attributes[attrTypeID] {
					attr, ok := thingsByID[attrID]
					if !ok {
						continue
					}
					k := ownerKey{ownerType: anc.ID, attrType: attrTypeID, value: attr.Value}
					owners[k] = append(owners[k], t.ID)
				}
			}
		}
	}

	var diags []string
	for k, ownerIDs := range owners {
		distinct := map[graph.ConceptID]bool{}
		for _, id := range ownerIDs {
			distinct[id] = true
		}
		if len(distinct) > 1 {
			diags = append(diags, f(msgKeyDuplicateOwner, byID[k.attrType].Label, k.value, byID[k.ownerType].Label))
		}
	}
	sort.Strings(diags)
	return diags
}

// 7. Relation non-empty.
func checkRelationNonEmpty(things []graph.Thing, byID map[graph.ConceptID]graph.SchemaConcept) []string {
	var diags []string
	for _, t := range things {
		if t.Kind == graph.KindRelation && len(t.Castings) == 0 {
			diags = append(diags, f(msgRelationNoRolePlayers, t.ID, byID[t.TypeID].Label))
		}
	}
	return diags
}

// 8. Rule well-formedness. Populates and returns the hypothesis/
// conclusion sets consumed by check 9.
func checkRuleWellFormedness(concepts []graph.SchemaConcept, byID map[graph.ConceptID]graph.SchemaConcept) ([]string, map[graph.ConceptID]RuleAnalysis) {
	var diags []string
	info := make(map[graph.ConceptID]RuleAnalysis)

	for _, c := range concepts {
		if c.Kind != graph.KindRule || c.Rule == nil {
			continue
		}
		rb := c.Rule

		if len(rb.Then) != 1 {
			diags = append(diags, f(msgRuleHeadNonAtomic, c.Label))
		}

		pos := map[graph.ConceptID]bool{}
		neg := map[graph.ConceptID]bool{}
		concl := map[graph.ConceptID]bool{}

		for _, atom := range rb.When {
			if _, ok := byID[atom.Type]; !ok {
				diags = append(diags, f(msgRuleMissingElement, c.Label, "when", atom.Type))
				continue
			}
			if atom.Negated {
				neg[atom.Type] = true
			} else {
				pos[atom.Type] = true
			}
		}
		for _, atom := range rb.Then {
			if _, ok := byID[atom.Type]; !ok {
				diags = append(diags, f(msgRuleMissingElement, c.Label, "then", atom.Type))
				continue
			}
			concl[atom.Type] = true
		}

		info[c.ID] = RuleAnalysis{PositiveHypothesis: pos, NegativeHypothesis: neg, Conclusion: concl}
	}

	return diags, info
}

// 9. Rule stratifiability: build the dependency graph (edge
// hypothesis-type -> conclusion-type, labeled negative if the
// hypothesis atom was negated) and reject any strongly connected
// component that contains a negative edge. Tarjan's algorithm is
// hand-rolled here rather than pulled from a library: the teacher
// (pkg/cypher/traversal.go) hand-rolls its own graph traversals too,
// and this module's rule graphs are small (schema-sized, not data-
// sized), so no third-party graph library earns its keep.
func checkRuleStratifiability(concepts []graph.SchemaConcept, ruleInfo map[graph.ConceptID]RuleAnalysis) []string {
	type edge = struct {
		to       graph.ConceptID
		negative bool
	}
	adj := map[graph.ConceptID][]edge{}
	nodeSet := map[graph.ConceptID]bool{}

	for _, c := range concepts {
		if c.Kind != graph.KindRule {
			continue
		}
		ra, ok := ruleInfo[c.ID]
		if !ok {
			continue
		}
		for concl := range ra.Conclusion {
			nodeSet[concl] = true
			for from := range ra.PositiveHypothesis {
				nodeSet[from] = true
				adj[from] = append(adj[from], edge{to: concl, negative: false})
			}
			for from := range ra.NegativeHypothesis {
				nodeSet[from] = true
				adj[from] = append(adj[from], edge{to: concl, negative: true})
			}
		}
	}

	sccs := tarjanSCC(nodeSet, adj)

	var bad []graph.ConceptID
	for _, scc := range sccs {
		if len(scc) == 0 {
			continue
		}
		inSCC := map[graph.ConceptID]bool{}
		for _, n := range scc {
			inSCC[n] = true
		}
		hasNegCycleEdge := false
		for _, n := range scc {
			for _, e := range adj[n] {
				if e.negative && inSCC[e.to] {
					hasNegCycleEdge = true
				}
			}
			// a self-loop (single-node SCC with a negative self edge)
			// is also a negative cycle.
		}
		if hasNegCycleEdge {
			bad = append(bad, scc...)
		}
	}

	if len(bad) == 0 {
		return nil
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	return []string{f(msgRuleGraphNotStratifiable, bad)}
}

// tarjanSCC returns the strongly connected components of the graph
// described by adj, restricted to nodes in nodeSet.
func tarjanSCC(nodeSet map[graph.ConceptID]bool, adj map[graph.ConceptID][]struct {
	to       graph.ConceptID
	negative bool
}) [][]graph.ConceptID {
	index := 0
	indices := map[graph.ConceptID]int{}
	lowlink := map[graph.ConceptID]int{}
	onStack := map[graph.ConceptID]bool{}
	var stack []graph.ConceptID
	var sccs [][]graph.ConceptID

	nodes := make([]graph.ConceptID, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	var strongConnect func(v graph.ConceptID)
	strongConnect = func(v graph.ConceptID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range adj[v] {
			w := e.to
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []graph.ConceptID
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			strongConnect(n)
		}
	}
	return sccs
}
