package idpool

import "context"

// IDBlock is a half-open range [lo, hi) of 64-bit integers, consumed
// sequentially. It exposes nothing beyond its size and per-index value
// so a pool never needs to know how an authority represents a block.
type IDBlock interface {
	// NumIDs returns how many IDs this block holds.
	NumIDs() uint64

	// ID returns the id at the given index, 0 <= index < NumIDs().
	ID(index uint64) uint64
}

// IDAuthority is the remote, possibly-partitioned block allocator a
// Pool draws from. Partition and namespace scope the allocation (e.g.
// a keyspace's vertex ids and its relation ids are separate
// namespaces within one partition).
type IDAuthority interface {
	// GetIDBlock fetches the next block for (partition, namespace).
	// Implementations should honor ctx cancellation promptly.
	GetIDBlock(ctx context.Context, partition, namespace int) (IDBlock, error)

	// SupportsInterruption reports whether an in-flight GetIDBlock
	// call can be cancelled via ctx. If false, a timed-out call is
	// parked instead of cancelled (see Pool.Close).
	SupportsInterruption() bool
}

// staticBlock is an IDBlock with a fixed size that panics on access,
// used for the pool's bootstrap and exhaustion sentinels. Sentinels
// are always referenced through a *staticBlock so identity (not
// value) comparison distinguishes them from one another and from any
// block a real IDAuthority could return.
type staticBlock struct {
	numIDs uint64
}

func (b *staticBlock) NumIDs() uint64 { return b.numIDs }

func (b *staticBlock) ID(index uint64) uint64 {
	panic("idpool: ID called on a sentinel block")
}

// uninitializedBlock is the pool's starting state: zero ids, so the
// very first NextID call always triggers a rotation.
var uninitializedBlock IDBlock = &staticBlock{numIDs: 0}

// exhaustionBlock is published by the background worker when the
// authority reports the partition/namespace is permanently drained.
var exhaustionBlock IDBlock = &staticBlock{numIDs: 0}
