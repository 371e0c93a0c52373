// Package session implements the Session component of spec.md §4.4:
// a per-keyspace transaction factory that enforces at most one open
// transaction per owner and closes every outstanding transaction when
// the session itself closes.
//
// Grounded on pkg/multidb/manager.go's mutex-guarded-map-of-state
// shape, narrowed from "one map of databases" to "one map of open
// transactions by owner".
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nornicgraph/nornicgraph/internal/graph"
	"github.com/nornicgraph/nornicgraph/internal/idpool"
	"github.com/nornicgraph/nornicgraph/internal/txn"
)

// Session is the entry point for opening transactions against one
// keyspace. Safe for concurrent use by multiple owners.
type Session struct {
	mu sync.Mutex

	keyspace string
	g        *graph.Graph
	ids      *idpool.Pool

	open   map[uuid.UUID]*txn.Transaction
	closed bool
}

// New creates a Session over an already-constructed keyspace graph
// and id pool. The caller (internal/server) owns their lifecycle.
func New(keyspace string, g *graph.Graph, ids *idpool.Pool) *Session {
	return &Session{
		keyspace: keyspace,
		g:        g,
		ids:      ids,
		open:     make(map[uuid.UUID]*txn.Transaction),
	}
}

// Keyspace returns the name this session was opened against.
func (s *Session) Keyspace() string { return s.keyspace }

// OpenTransaction opens a new transaction bound to owner, the caller-
// supplied token standing in for the OS-thread affinity spec.md §4.3
// describes (see DESIGN.md). Returns ErrConcurrentTransactionOnThread
// if owner already has a transaction open on this session, and
// ErrSessionClosed once the session itself is closed.
func (s *Session) OpenTransaction(owner uuid.UUID, mode txn.Mode) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if _, ok := s.open[owner]; ok {
		return nil, ErrConcurrentTransactionOnThread
	}

	t := txn.New(s.g, s.ids, mode)
	if err := t.Open(owner, s.releaseOwner); err != nil {
		return nil, err
	}
	s.open[owner] = t
	return t, nil
}

// releaseOwner is passed to each Transaction as its onClose callback,
// so a committed or closed transaction frees its owner's slot without
// the caller having to tell the session directly.
func (s *Session) releaseOwner(owner uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, owner)
}

// Close closes every outstanding transaction and marks the session
// unusable for further OpenTransaction calls. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	outstanding := make(map[uuid.UUID]*txn.Transaction, len(s.open))
	for owner, t := range s.open {
		outstanding[owner] = t
	}
	s.mu.Unlock()

	for owner, t := range outstanding {
		_ = t.Close(owner)
	}
	return nil
}
