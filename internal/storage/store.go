// Package storage provides the two out-of-scope collaborators
// spec.md §4.6 names: a VertexStore for durable concept persistence,
// and an idpool.IDAuthority for remote block allocation. Each is
// defined as a narrow interface with a Badger-backed production
// implementation (grounded on pkg/storage/badger.go's key-prefix
// scheme) and an in-memory reference implementation (grounded on
// pkg/storage/memory.go) for tests.
package storage

import "github.com/nornicgraph/nornicgraph/internal/graph"

// VertexStore persists one keyspace's schema and instance graph.
// Persistence here is snapshot-based rather than write-through: the
// Graph (internal/graph) is the live working copy every Transaction
// reads and writes, and a VertexStore is loaded once when a keyspace
// is opened and saved back on an explicit flush. Spec.md treats the
// on-disk backend as an opaque, out-of-scope collaborator; this
// snapshot boundary is this repository's concrete choice of where
// that collaborator plugs in — see DESIGN.md.
type VertexStore interface {
	LoadSchema(keyspace string) ([]graph.SchemaConcept, error)
	SaveSchema(keyspace string, concepts []graph.SchemaConcept) error

	LoadInstances(keyspace string) ([]graph.Thing, error)
	SaveInstances(keyspace string, things []graph.Thing) error

	// Keyspaces lists every keyspace with persisted data, so a server
	// can rehydrate its session set on startup.
	Keyspaces() ([]string, error)

	Close() error
}
