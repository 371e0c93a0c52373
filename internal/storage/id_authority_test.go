package storage

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestLocalAuthorityHandsOutDisjointBlocks(t *testing.T) {
	a := NewLocalAuthority(10)
	ctx := context.Background()

	b1, err := a.GetIDBlock(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), b1.NumIDs())
	require.Equal(t, uint64(0), b1.ID(0))

	b2, err := a.GetIDBlock(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), b2.ID(0))

	// A different namespace starts its own counter from zero.
	b3, err := a.GetIDBlock(ctx, 0, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), b3.ID(0))

	require.True(t, a.SupportsInterruption())
}

func TestLocalAuthorityDefaultsBlockSize(t *testing.T) {
	a := NewLocalAuthority(0)
	b, err := a.GetIDBlock(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, defaultBlockSize, b.NumIDs())
}

func TestBadgerIDAuthorityPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)

	a := NewBadgerIDAuthority(db, 5)
	ctx := context.Background()
	b1, err := a.GetIDBlock(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), b1.ID(0))
	require.False(t, a.SupportsInterruption())

	require.NoError(t, db.Close())

	db2, err := badger.Open(opts)
	require.NoError(t, err)
	defer db2.Close()

	a2 := NewBadgerIDAuthority(db2, 5)
	b2, err := a2.GetIDBlock(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(5), b2.ID(0))
}
