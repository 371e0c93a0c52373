// Package server implements the Server component of spec.md §4.5: it
// multiplexes keyspaces, each a schema+instance graph with its own
// Session and ID Block Pool, over one shared VertexStore and
// IDAuthority.
//
// Grounded on pkg/multidb/manager.go's DatabaseManager: a mutex-
// guarded map of per-keyspace state, backed by one shared storage
// engine, with CreateDatabase/GetStorage/DropDatabase/Close renamed
// to this domain's CreateKeyspace/OpenKeyspace/DropKeyspace/Close.
package server

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/nornicgraph/nornicgraph/internal/config"
	"github.com/nornicgraph/nornicgraph/internal/graph"
	"github.com/nornicgraph/nornicgraph/internal/idpool"
	"github.com/nornicgraph/nornicgraph/internal/session"
	"github.com/nornicgraph/nornicgraph/internal/storage"
)

// keyspaceState holds everything one open keyspace needs.
type keyspaceState struct {
	g    *graph.Graph
	ids  *idpool.Pool
	sess *session.Session
}

// Server owns the shared collaborators (storage.VertexStore,
// idpool.IDAuthority) and the set of currently open keyspaces.
type Server struct {
	mu sync.RWMutex

	cfg       *config.Config
	authority idpool.IDAuthority
	store     storage.VertexStore

	keyspaces map[string]*keyspaceState
	closed    bool
}

// New constructs a Server. authority and store are the out-of-scope
// collaborators spec.md §4.6 names; callers typically pass
// internal/storage's Badger-backed implementations in production and
// its in-memory ones in tests.
func New(cfg *config.Config, authority idpool.IDAuthority, store storage.VertexStore) *Server {
	return &Server{
		cfg:       cfg,
		authority: authority,
		store:     store,
		keyspaces: make(map[string]*keyspaceState),
	}
}

// partitionFor deterministically maps a keyspace name to the
// partition id its ID Block Pool requests blocks under, so restarting
// a server and reopening the same keyspace resumes from the same
// partition without needing separate persisted metadata.
func partitionFor(keyspace string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(keyspace))
	return int(h.Sum32() >> 1) // keep it non-negative
}

// CreateKeyspace creates a new, empty keyspace and opens it.
func (s *Server) CreateKeyspace(keyspace string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServerClosed
	}
	if _, ok := s.keyspaces[keyspace]; ok {
		return nil, ErrKeyspaceExists
	}
	return s.openLocked(keyspace, nil, nil)
}

// OpenKeyspace opens an existing keyspace, rehydrating it from the
// VertexStore if it has persisted data, or returns the already-open
// Session if one exists.
func (s *Server) OpenKeyspace(keyspace string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServerClosed
	}
	if st, ok := s.keyspaces[keyspace]; ok {
		return st.sess, nil
	}

	schemaConcepts, err := s.store.LoadSchema(keyspace)
	if err != nil {
		return nil, err
	}
	instances, err := s.store.LoadInstances(keyspace)
	if err != nil {
		return nil, err
	}
	return s.openLocked(keyspace, schemaConcepts, instances)
}

func (s *Server) openLocked(keyspace string, schemaConcepts []graph.SchemaConcept, instances []graph.Thing) (*session.Session, error) {
	g := graph.New(s.cfg.Database.ShardingThreshold)
	g.CommitSchema(schemaConcepts, nil)
	g.CommitInstances(instances, nil)

	pool, err := idpool.New(s.authority, partitionFor(keyspace), 0, s.cfg.ID.UpperBound, s.cfg.ID.RenewTimeout, s.cfg.ID.RenewBufferPercentage)
	if err != nil {
		return nil, err
	}

	sess := session.New(keyspace, g, pool)
	s.keyspaces[keyspace] = &keyspaceState{g: g, ids: pool, sess: sess}
	return sess, nil
}

// Session returns the Session for an already-open keyspace.
func (s *Server) Session(keyspace string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrServerClosed
	}
	st, ok := s.keyspaces[keyspace]
	if !ok {
		return nil, ErrKeyspaceNotFound
	}
	return st.sess, nil
}

// ListKeyspaces returns the names of every currently open keyspace.
func (s *Server) ListKeyspaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keyspaces))
	for name := range s.keyspaces {
		out = append(out, name)
	}
	return out
}

// Flush persists a keyspace's current graph state to the VertexStore.
func (s *Server) Flush(keyspace string) error {
	s.mu.RLock()
	st, ok := s.keyspaces[keyspace]
	s.mu.RUnlock()
	if !ok {
		return ErrKeyspaceNotFound
	}
	if err := s.store.SaveSchema(keyspace, st.g.AllSchema()); err != nil {
		return err
	}
	return s.store.SaveInstances(keyspace, st.g.AllInstances())
}

// DropKeyspace flushes, closes, and forgets a keyspace. The
// underlying persisted data is left in the VertexStore; spec.md names
// no destructive keyspace-delete operation.
func (s *Server) DropKeyspace(ctx context.Context, keyspace string) error {
	s.mu.Lock()
	st, ok := s.keyspaces[keyspace]
	if !ok {
		s.mu.Unlock()
		return ErrKeyspaceNotFound
	}
	delete(s.keyspaces, keyspace)
	s.mu.Unlock()

	flushErr := s.store.SaveSchema(keyspace, st.g.AllSchema())
	if flushErr == nil {
		flushErr = s.store.SaveInstances(keyspace, st.g.AllInstances())
	}
	if err := st.sess.Close(ctx); err != nil {
		return err
	}
	if err := st.ids.Close(); err != nil {
		return err
	}
	return flushErr
}

// Close flushes and closes every open keyspace, then the shared
// VertexStore.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	keyspaces := s.keyspaces
	s.keyspaces = make(map[string]*keyspaceState)
	s.mu.Unlock()

	for name, st := range keyspaces {
		_ = s.store.SaveSchema(name, st.g.AllSchema())
		_ = s.store.SaveInstances(name, st.g.AllInstances())
		_ = st.sess.Close(ctx)
		_ = st.ids.Close()
	}
	return s.store.Close()
}

// flushInterval is the cadence a production deployment should run
// Flush on a timer at (cmd/nornicgraphd wires this); kept here as the
// documented default rather than a magic number at the call site.
const flushInterval = 30 * time.Second

// FlushInterval returns the default periodic flush cadence.
func FlushInterval() time.Duration { return flushInterval }
