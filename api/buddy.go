// File: api/buddy.go
// Package api defines the BuddyAllocator contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// BuddyStats is a snapshot of a buddy allocator's free memory.
type BuddyStats struct {
	// Free is the total number of free bytes.
	Free uint64
	// NFree[o] is the number of free blocks of order o, where a block of
	// order o spans PageSize<<o bytes.
	NFree []uint64
}

// BuddyAllocator is the contract consumed by the kalloc core. An
// implementation manages a contiguous window of physical memory and is
// seeded with an initial free subrange inside that window.
//
// Implementations need not be thread-safe; the core pins every buddy
// behind its own spinlock and holds it across any call.
type BuddyAllocator interface {
	// Alloc returns a block of at least size bytes, rounded up internally
	// to a power-of-two multiple of PageSize. The second result is false
	// when no block fits; Alloc never panics.
	Alloc(size uint64) (PAddr, bool)

	// Free returns a block previously handed out with exactly this size.
	Free(p PAddr, size uint64)

	// Contains reports whether p falls inside the managed window. O(1).
	Contains(p PAddr) bool

	// Empty reports whether the allocator has no free blocks.
	Empty() bool

	// Stats returns the current free-memory snapshot.
	Stats() BuddyStats
}
