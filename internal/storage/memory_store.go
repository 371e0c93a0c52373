package storage

import (
	"sync"

	"github.com/nornicgraph/nornicgraph/internal/graph"
)

// MemoryVertexStore is an in-process VertexStore, grounded on
// pkg/storage/memory.go's map-of-structs-behind-a-mutex shape. Used
// by tests and by any deployment that doesn't need durability across
// restarts.
type MemoryVertexStore struct {
	mu        sync.Mutex
	schema    map[string][]graph.SchemaConcept
	instances map[string][]graph.Thing
}

// NewMemoryVertexStore creates an empty in-memory store.
func NewMemoryVertexStore() *MemoryVertexStore {
	return &MemoryVertexStore{
		schema:    make(map[string][]graph.SchemaConcept),
		instances: make(map[string][]graph.Thing),
	}
}

func (m *MemoryVertexStore) LoadSchema(keyspace string) ([]graph.SchemaConcept, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.schema[keyspace]
	out := make([]graph.SchemaConcept, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryVertexStore) SaveSchema(keyspace string, concepts []graph.SchemaConcept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]graph.SchemaConcept, len(concepts))
	copy(cp, concepts)
	m.schema[keyspace] = cp
	return nil
}

func (m *MemoryVertexStore) LoadInstances(keyspace string) ([]graph.Thing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.instances[keyspace]
	out := make([]graph.Thing, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryVertexStore) SaveInstances(keyspace string, things []graph.Thing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]graph.Thing, len(things))
	copy(cp, things)
	m.instances[keyspace] = cp
	return nil
}

func (m *MemoryVertexStore) Keyspaces() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for k := range m.schema {
		seen[k] = true
	}
	for k := range m.instances {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemoryVertexStore) Close() error { return nil }

var _ VertexStore = (*MemoryVertexStore)(nil)
