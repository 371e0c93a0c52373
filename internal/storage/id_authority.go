package storage

import (
	"context"
	"encoding/binary"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nornicgraph/nornicgraph/internal/idpool"
)

const defaultBlockSize = uint64(10000)

// contiguousBlock is the concrete idpool.IDBlock both authorities
// below hand out: a run of contiguous integers starting at Start.
type contiguousBlock struct {
	start uint64
	count uint64
}

func (b *contiguousBlock) NumIDs() uint64 { return b.count }
func (b *contiguousBlock) ID(index uint64) uint64 { return b.start + index }

// LocalAuthority is an in-process idpool.IDAuthority, grounded on
// pkg/storage/memory.go's in-memory-engine convention. Used for tests
// and single-process deployments where id allocation never needs to
// cross a process boundary.
type LocalAuthority struct {
	mu        sync.Mutex
	blockSize uint64
	next      map[[2]int]uint64
}

// NewLocalAuthority creates a LocalAuthority handing out blocks of
// blockSize ids; blockSize <= 0 uses defaultBlockSize.
func NewLocalAuthority(blockSize uint64) *LocalAuthority {
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	return &LocalAuthority{blockSize: blockSize, next: make(map[[2]int]uint64)}
}

func (a *LocalAuthority) GetIDBlock(ctx context.Context, partition, namespace int) (idpool.IDBlock, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := [2]int{partition, namespace}
	start := a.next[key]
	a.next[key] = start + a.blockSize
	return &contiguousBlock{start: start, count: a.blockSize}, nil
}

// SupportsInterruption reports true: allocation here is pure
// in-process bookkeeping, so a cancelled context is always safe to
// honor rather than park.
func (a *LocalAuthority) SupportsInterruption() bool { return true }

var _ idpool.IDAuthority = (*LocalAuthority)(nil)

// BadgerIDAuthority persists each (partition, namespace)'s next-free-
// id counter as a Badger key, so allocation survives a process
// restart. Grounded on pkg/storage/badger.go's key-prefix convention.
type BadgerIDAuthority struct {
	db        *badger.DB
	blockSize uint64
}

// NewBadgerIDAuthority wraps an already-open Badger database (the
// same one a BadgerVertexStore may use, under a disjoint key prefix).
func NewBadgerIDAuthority(db *badger.DB, blockSize uint64) *BadgerIDAuthority {
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	return &BadgerIDAuthority{db: db, blockSize: blockSize}
}

const prefixIDCounter = byte(0xF0)

func idCounterKey(partition, namespace int) []byte {
	key := make([]byte, 1+8+8)
	key[0] = prefixIDCounter
	binary.BigEndian.PutUint64(key[1:9], uint64(partition))
	binary.BigEndian.PutUint64(key[9:17], uint64(namespace))
	return key
}

func (a *BadgerIDAuthority) GetIDBlock(ctx context.Context, partition, namespace int) (idpool.IDBlock, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var start uint64
	key := idCounterKey(partition, namespace)
	err := a.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch err {
		case nil:
			if err := item.Value(func(val []byte) error {
				start = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
			start = 0
		default:
			return err
		}

		var next [8]byte
		binary.BigEndian.PutUint64(next[:], start+a.blockSize)
		return txn.Set(key, next[:])
	})
	if err != nil {
		return nil, err
	}
	return &contiguousBlock{start: start, count: a.blockSize}, nil
}

// SupportsInterruption reports false: once the Badger transaction has
// been submitted there is no clean mid-flight cancellation, matching
// the real-world remote/disk-backed authorities StandardIDPool was
// designed around.
func (a *BadgerIDAuthority) SupportsInterruption() bool { return false }

var _ idpool.IDAuthority = (*BadgerIDAuthority)(nil)
