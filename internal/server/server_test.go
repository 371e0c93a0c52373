package server

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nornicgraph/nornicgraph/internal/config"
	"github.com/nornicgraph/nornicgraph/internal/storage"
	"github.com/nornicgraph/nornicgraph/internal/txn"
)

func newTestServer(t *testing.T) (*Server, storage.VertexStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	store := storage.NewMemoryVertexStore()
	authority := storage.NewLocalAuthority(0)
	return New(cfg, authority, store), store
}

func TestCreateKeyspaceThenSession(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.CreateKeyspace("ks1"); err != nil {
		t.Fatalf("CreateKeyspace: %v", err)
	}
	if _, err := s.CreateKeyspace("ks1"); !errors.Is(err, ErrKeyspaceExists) {
		t.Fatalf("second CreateKeyspace: got %v, want ErrKeyspaceExists", err)
	}
	sess, err := s.Session("ks1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.Keyspace() != "ks1" {
		t.Fatalf("Keyspace: got %q", sess.Keyspace())
	}
}

func TestSessionUnknownKeyspace(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.Session("missing"); !errors.Is(err, ErrKeyspaceNotFound) {
		t.Fatalf("Session(missing): got %v, want ErrKeyspaceNotFound", err)
	}
}

func TestFlushAndReopenRehydratesState(t *testing.T) {
	s, store := newTestServer(t)
	sess, err := s.CreateKeyspace("ks1")
	if err != nil {
		t.Fatalf("CreateKeyspace: %v", err)
	}

	owner := uuid.New()
	tx, err := sess.OpenTransaction(owner, txn.ReadWrite)
	if err != nil {
		t.Fatalf("OpenTransaction: %v", err)
	}
	ctx := context.Background()
	if _, err := tx.PutEntityType(ctx, owner, "person", 0); err != nil {
		t.Fatalf("PutEntityType: %v", err)
	}
	if err := tx.Commit(ctx, owner); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := s.Flush("ks1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	schemaConcepts, err := store.LoadSchema("ks1")
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	found := false
	for _, c := range schemaConcepts {
		if c.Label == "person" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected flushed store to contain the committed person type: %+v", schemaConcepts)
	}

	// Simulate a restart: a fresh server over the same store reopens
	// the keyspace and sees the persisted schema.
	s2 := New(config.DefaultConfig(), storage.NewLocalAuthority(0), store)
	sess2, err := s2.OpenKeyspace("ks1")
	if err != nil {
		t.Fatalf("OpenKeyspace: %v", err)
	}
	owner2 := uuid.New()
	tx2, err := sess2.OpenTransaction(owner2, txn.ReadOnly)
	if err != nil {
		t.Fatalf("OpenTransaction on reopened keyspace: %v", err)
	}
	c, ok, err := tx2.GetSchemaConcept(owner2, "person")
	if err != nil || !ok {
		t.Fatalf("expected rehydrated schema to contain person: ok=%v err=%v", ok, err)
	}
	if c.Label != "person" {
		t.Fatalf("unexpected rehydrated concept: %+v", c)
	}
}

func TestDropKeyspace(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.CreateKeyspace("ks1"); err != nil {
		t.Fatalf("CreateKeyspace: %v", err)
	}
	if err := s.DropKeyspace(context.Background(), "ks1"); err != nil {
		t.Fatalf("DropKeyspace: %v", err)
	}
	if _, err := s.Session("ks1"); !errors.Is(err, ErrKeyspaceNotFound) {
		t.Fatalf("Session after drop: got %v, want ErrKeyspaceNotFound", err)
	}
}

func TestServerCloseRejectsFurtherUse(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.CreateKeyspace("ks1"); err != nil {
		t.Fatalf("CreateKeyspace: %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.CreateKeyspace("ks2"); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("CreateKeyspace after close: got %v, want ErrServerClosed", err)
	}
}
