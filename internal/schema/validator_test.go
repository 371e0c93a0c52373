package schema

import (
	"strings"
	"testing"

	"github.com/nornicgraph/nornicgraph/internal/graph"
)

type fakeView struct {
	schema    []graph.SchemaConcept
	byID      map[graph.ConceptID]graph.SchemaConcept
	instances []graph.Thing
}

func newFakeView(schema []graph.SchemaConcept, instances []graph.Thing) *fakeView {
	byID := make(map[graph.ConceptID]graph.SchemaConcept, len(schema))
	for _, c := range schema {
		byID[c.ID] = c
	}
	return &fakeView{schema: schema, byID: byID, instances: instances}
}

func (v *fakeView) AllSchemaConcepts() []graph.SchemaConcept { return v.schema }
func (v *fakeView) AllInstances() []graph.Thing              { return v.instances }
func (v *fakeView) SchemaConcept(id graph.ConceptID) (graph.SchemaConcept, bool) {
	c, ok := v.byID[id]
	return c, ok
}

const (
	rootID graph.ConceptID = iota
	personTypeID
	nameTypeID
	employmentTypeID
	employeeRoleID
	employerRoleID
)

func baseSchema() []graph.SchemaConcept {
	return []graph.SchemaConcept{
		{ID: rootID, Label: "thing", Kind: graph.KindThing, Super: graph.NoConcept, Abstract: true},
		{
			ID: personTypeID, Label: "person", Kind: graph.KindEntityType, Super: rootID,
			Plays: map[graph.ConceptID]bool{employeeRoleID: false},
		},
		{ID: nameTypeID, Label: "name", Kind: graph.KindAttributeType, Super: rootID, DataType: graph.DataTypeString},
		{
			ID: employmentTypeID, Label: "employment", Kind: graph.KindRelationType, Super: rootID,
			Relates: map[graph.ConceptID]bool{employeeRoleID: true, employerRoleID: true},
		},
		{ID: employeeRoleID, Label: "employee", Kind: graph.KindRole, Super: rootID},
		{ID: employerRoleID, Label: "employer", Kind: graph.KindRole, Super: rootID},
	}
}

func TestValidateWellFormedSchemaPasses(t *testing.T) {
	v := newFakeView(baseSchema(), nil)
	result := Validate(v)
	if !result.OK() {
		t.Fatalf("expected OK, got diagnostics: %v", result.Diagnostics)
	}
}

func TestCheckRoleRelationLinkage(t *testing.T) {
	schema := baseSchema()
	// add a role that no relation type relates to.
	schema = append(schema, graph.SchemaConcept{ID: 100, Label: "orphan", Kind: graph.KindRole, Super: rootID})
	result := Validate(newFakeView(schema, nil))
	if result.OK() {
		t.Fatal("expected a diagnostic for an unreferenced role")
	}
	if !anyContains(result.Diagnostics, "orphan") {
		t.Fatalf("expected diagnostics to mention orphan role: %v", result.Diagnostics)
	}
}

func TestCheckMinimumRoles(t *testing.T) {
	schema := baseSchema()
	schema = append(schema, graph.SchemaConcept{ID: 101, Label: "empty-relation", Kind: graph.KindRelationType, Super: rootID})
	result := Validate(newFakeView(schema, nil))
	if !anyContains(result.Diagnostics, "empty-relation") {
		t.Fatalf("expected diagnostic for relation type with no roles: %v", result.Diagnostics)
	}
}

func TestCheckCastingValidityRejectsDisallowedPlayer(t *testing.T) {
	schema := baseSchema()
	// a second entity type that is not allowed to play employee.
	const otherTypeID graph.ConceptID = 200
	schema = append(schema, graph.SchemaConcept{ID: otherTypeID, Label: "company", Kind: graph.KindEntityType, Super: rootID})

	things := []graph.Thing{
		{ID: 300, TypeID: otherTypeID, Kind: graph.KindEntity},
		{
			ID: 301, TypeID: employmentTypeID, Kind: graph.KindRelation,
			Castings: []graph.Casting{{Role: employeeRoleID, Relation: 301, Player: 300}},
		},
	}
	result := Validate(newFakeView(schema, things))
	if result.OK() {
		t.Fatal("expected a casting-validity diagnostic")
	}
}

func TestCheckRequiredRoleInstances(t *testing.T) {
	schema := baseSchema()
	// person requires the employee role (Plays[employeeRoleID] = true).
	for i := range schema {
		if schema[i].ID == personTypeID {
			schema[i].Plays[employeeRoleID] = true
		}
	}
	// a person instance with no employment relation at all.
	things := []graph.Thing{
		{ID: 400, TypeID: personTypeID, Kind: graph.KindEntity},
	}
	result := Validate(newFakeView(schema, things))
	if result.OK() {
		t.Fatal("expected a diagnostic for a missing required role instance")
	}
}

func TestCheckKeyUniquenessRejectsDuplicateOwners(t *testing.T) {
	schema := baseSchema()
	for i := range schema {
		if schema[i].ID == personTypeID {
			schema[i].Keys = map[graph.ConceptID]bool{nameTypeID: true}
		}
	}
	things := []graph.Thing{
		{ID: 500, TypeID: nameTypeID, Kind: graph.KindAttribute, Value: "alice"},
		{ID: 501, TypeID: personTypeID, Kind: graph.KindEntity, Attributes: map[graph.ConceptID][]graph.ConceptID{nameTypeID: {500}}},
		{ID: 502, TypeID: personTypeID, Kind: graph.KindEntity, Attributes: map[graph.ConceptID][]graph.ConceptID{nameTypeID: {500}}},
	}
	result := Validate(newFakeView(schema, things))
	if result.OK() {
		t.Fatal("expected a key-uniqueness diagnostic for two owners sharing one key value")
	}
}

func TestCheckRelationNonEmpty(t *testing.T) {
	schema := baseSchema()
	things := []graph.Thing{
		{ID: 600, TypeID: employmentTypeID, Kind: graph.KindRelation},
	}
	result := Validate(newFakeView(schema, things))
	if result.OK() {
		t.Fatal("expected a diagnostic for a relation instance with no castings")
	}
}

func TestCheckRuleWellFormednessRejectsNonAtomicHead(t *testing.T) {
	schema := baseSchema()
	schema = append(schema, graph.SchemaConcept{
		ID: 700, Label: "bad-rule", Kind: graph.KindRule, Super: rootID,
		Rule: &graph.RuleBody{
			When: graph.Conjunction{{Type: personTypeID}},
			Then: graph.Conjunction{{Type: personTypeID}, {Type: employmentTypeID}},
		},
	})
	result := Validate(newFakeView(schema, nil))
	if result.OK() {
		t.Fatal("expected a diagnostic for a non-atomic rule head")
	}
}

func TestCheckRuleStratifiabilityAcceptsPositiveCycle(t *testing.T) {
	schema := baseSchema()
	// rules: when person then employment, and when employment then
	// person — a cycle made only of positive edges.
	schema = append(schema,
		graph.SchemaConcept{
			ID: 701, Label: "infer-employment", Kind: graph.KindRule, Super: rootID,
			Rule: &graph.RuleBody{
				When: graph.Conjunction{{Type: personTypeID}},
				Then: graph.Conjunction{{Type: employmentTypeID}},
			},
		},
		graph.SchemaConcept{
			ID: 704, Label: "infer-person", Kind: graph.KindRule, Super: rootID,
			Rule: &graph.RuleBody{
				When: graph.Conjunction{{Type: employmentTypeID}},
				Then: graph.Conjunction{{Type: personTypeID}},
			},
		},
	)
	result := Validate(newFakeView(schema, nil))
	if !result.OK() {
		t.Fatalf("expected a purely positive rule graph to stratify, got: %v", result.Diagnostics)
	}
}

func TestCheckRuleStratifiabilityRejectsNegativeCycle(t *testing.T) {
	schema := baseSchema()
	schema = append(schema,
		graph.SchemaConcept{
			ID: 702, Label: "rule-a", Kind: graph.KindRule, Super: rootID,
			Rule: &graph.RuleBody{
				When: graph.Conjunction{{Type: employmentTypeID, Negated: true}},
				Then: graph.Conjunction{{Type: personTypeID}},
			},
		},
		graph.SchemaConcept{
			ID: 703, Label: "rule-b", Kind: graph.KindRule, Super: rootID,
			Rule: &graph.RuleBody{
				When: graph.Conjunction{{Type: personTypeID}},
				Then: graph.Conjunction{{Type: employmentTypeID}},
			},
		},
	)
	result := Validate(newFakeView(schema, nil))
	if result.OK() {
		t.Fatal("expected a diagnostic for a rule graph with a negative cycle")
	}
	if !anyContains(result.Diagnostics, "stratif") && !anyContains(result.Diagnostics, "strati") {
		t.Fatalf("expected a stratifiability diagnostic, got: %v", result.Diagnostics)
	}
}

func anyContains(diags []string, substr string) bool {
	for _, d := range diags {
		if strings.Contains(d, substr) {
			return true
		}
	}
	return false
}
