package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nornicgraph/nornicgraph/internal/graph"
)

func TestMemoryVertexStoreSchemaRoundTrip(t *testing.T) {
	s := NewMemoryVertexStore()
	concepts := []graph.SchemaConcept{
		{ID: 1, Label: "person", Kind: graph.KindEntityType},
	}
	require.NoError(t, s.SaveSchema("ks1", concepts))

	got, err := s.LoadSchema("ks1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "person", got[0].Label)

	// Must be empty for a keyspace that was never saved.
	empty, err := s.LoadSchema("ks2")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestMemoryVertexStoreInstanceRoundTrip(t *testing.T) {
	s := NewMemoryVertexStore()
	things := []graph.Thing{{ID: 1, TypeID: 2, Kind: graph.KindEntity}}
	require.NoError(t, s.SaveInstances("ks1", things))

	got, err := s.LoadInstances("ks1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, graph.ConceptID(1), got[0].ID)
}

func TestMemoryVertexStoreKeyspaces(t *testing.T) {
	s := NewMemoryVertexStore()
	require.NoError(t, s.SaveSchema("ks1", nil))
	require.NoError(t, s.SaveInstances("ks2", nil))

	keyspaces, err := s.Keyspaces()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ks1", "ks2"}, keyspaces)
}

func TestMemoryVertexStoreLoadReturnsIndependentCopy(t *testing.T) {
	s := NewMemoryVertexStore()
	require.NoError(t, s.SaveSchema("ks1", []graph.SchemaConcept{{ID: 1, Label: "person"}}))

	got, err := s.LoadSchema("ks1")
	require.NoError(t, err)
	got[0].Label = "mutated"

	fresh, err := s.LoadSchema("ks1")
	require.NoError(t, err)
	require.Equal(t, "person", fresh[0].Label)
}
