package graph

import "testing"

func TestNewSeedsRootThing(t *testing.T) {
	g := New(10)
	c, ok := g.GetSchema(NoConcept)
	if !ok {
		t.Fatal("expected root thing concept to exist")
	}
	if c.Label != "thing" || c.Kind != KindThing || !c.Abstract {
		t.Fatalf("unexpected root concept: %+v", c)
	}
}

func TestCommitSchemaUpsertAndDelete(t *testing.T) {
	g := New(10)
	person := SchemaConcept{ID: 1, Label: "person", Kind: KindEntityType, Super: NoConcept}
	g.CommitSchema([]SchemaConcept{person}, nil)

	got, ok := g.GetSchemaByLabel("person")
	if !ok || got.ID != 1 {
		t.Fatalf("GetSchemaByLabel: got %+v, ok=%v", got, ok)
	}

	g.CommitSchema(nil, []ConceptID{1})
	if _, ok := g.GetSchema(1); ok {
		t.Fatal("expected schema concept to be deleted")
	}
	if _, ok := g.GetSchemaByLabel("person"); ok {
		t.Fatal("expected label index entry to be removed on delete")
	}
}

func TestGetSchemaReturnsIndependentCopy(t *testing.T) {
	g := New(10)
	c := SchemaConcept{
		ID: 1, Label: "person", Kind: KindEntityType, Super: NoConcept,
		Keys:  map[ConceptID]bool{10: true},
		Plays: map[ConceptID]bool{20: true},
	}
	g.CommitSchema([]SchemaConcept{c}, nil)

	got, _ := g.GetSchema(1)
	got.Keys[99] = true
	got.Plays[99] = true

	fresh, _ := g.GetSchema(1)
	if fresh.Keys[99] || fresh.Plays[99] {
		t.Fatal("mutating a returned SchemaConcept copy leaked into committed state")
	}
}

func TestGetInstanceReturnsIndependentCopy(t *testing.T) {
	g := New(10)
	th := Thing{
		ID: 1, TypeID: 2, Kind: KindEntity,
		Attributes: map[ConceptID][]ConceptID{3: {4}},
	}
	g.CommitInstances([]Thing{th}, nil)

	got, _ := g.GetInstance(1)
	got.Attributes[3] = append(got.Attributes[3], 5)

	fresh, _ := g.GetInstance(1)
	if len(fresh.Attributes[3]) != 1 {
		t.Fatal("mutating a returned Thing copy leaked into committed state")
	}
}

func TestAttachInstanceOpensNewShardAtThreshold(t *testing.T) {
	g := New(2)
	typeID := ConceptID(1)

	s0 := g.AttachInstance(typeID)
	s1 := g.AttachInstance(typeID)
	if s0 != s1 {
		t.Fatalf("expected first two attaches to share a shard, got %d and %d", s0, s1)
	}
	s2 := g.AttachInstance(typeID)
	if s2 == s0 {
		t.Fatalf("expected a new shard after hitting the threshold, still got %d", s2)
	}

	shards := g.ShardsForType(typeID)
	if len(shards) != 2 {
		t.Fatalf("ShardsForType: got %v, want 2 shards", shards)
	}
}

func TestOpenShardForcesNewShard(t *testing.T) {
	g := New(100)
	typeID := ConceptID(1)
	first := g.AttachInstance(typeID)
	forced := g.OpenShard(typeID)
	if forced == first {
		t.Fatalf("OpenShard did not open a new shard: got %d, same as %d", forced, first)
	}
	next := g.AttachInstance(typeID)
	if next != forced {
		t.Fatalf("expected subsequent attach to use forced shard %d, got %d", forced, next)
	}
}

func TestAttributesByValue(t *testing.T) {
	g := New(10)
	g.CommitInstances([]Thing{
		{ID: 1, TypeID: 2, Kind: KindAttribute, Value: "alice"},
		{ID: 2, TypeID: 2, Kind: KindAttribute, Value: "bob"},
		{ID: 3, TypeID: 3, Kind: KindEntity},
	}, nil)

	got := g.AttributesByValue("alice")
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("AttributesByValue(alice): got %+v", got)
	}
}

func TestInstancesByType(t *testing.T) {
	g := New(10)
	g.CommitInstances([]Thing{
		{ID: 1, TypeID: 2, Kind: KindEntity},
		{ID: 2, TypeID: 2, Kind: KindEntity},
		{ID: 3, TypeID: 3, Kind: KindEntity},
	}, nil)

	got := g.InstancesByType(2)
	if len(got) != 2 {
		t.Fatalf("InstancesByType(2): got %d instances, want 2", len(got))
	}
}
