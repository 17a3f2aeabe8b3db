// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract pooling APIs: the balanceable-pool capability set and
// the allocator facade contract.

package api

// BalancePool is the capability set a memory pool exposes to the balancer.
// A pool that runs dry picks a donor pool and asks it to move a bounded
// chunk of free memory over.
type BalancePool interface {
	// BalanceCount returns the pool's current number of free bytes.
	BalanceCount() uint64

	// BalanceMoveTo carves a bounded chunk out of this pool and donates it
	// to target. The chunk is never more than half of this pool's free
	// bytes and never more than the largest single buddy block.
	BalanceMoveTo(target BalancePool)

	// KFree returns a block to this pool.
	KFree(p PAddr, size uint64)
}

// Allocator is the facade the rest of a kernel calls.
type Allocator interface {
	// Alloc returns a block of size bytes labelled name for tracing, or
	// ok=false when memory is exhausted. An empty name defaults to "kmem".
	Alloc(name string, size uint64) (p PAddr, ok bool)

	// Free returns a block of exactly size bytes. Freeing a pointer that
	// no buddy window contains panics.
	Free(p PAddr, size uint64)
}
