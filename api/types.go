// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared physical-memory types and design constants.

package api

// PAddr is a physical address: a byte offset into the managed physical
// memory arena. The low megabyte is scrubbed from the memory map during
// init and never handed out, so 0 doubles as the null address.
type PAddr uint64

// Design constants.
const (
	// PageShift and PageSize define the allocation granule.
	PageShift = 12
	PageSize  = uint64(1) << PageShift

	// MaxNUMANodes bounds the number of NUMA nodes a topology may report.
	MaxNUMANodes = 8

	// ExtraBuddies is the margin added to the CPU count when sizing the
	// buddy table. A CPU's memory region may span a physical memory hole,
	// producing more than one buddy per CPU.
	ExtraBuddies = 16

	// PtrLinkBytes is the span at the start of each page that a buddy
	// allocator may use for free-list links. The poison checker skips it.
	PtrLinkBytes = 2 * 8
)

// Poison sentinels used when memset debugging is enabled.
const (
	PoisonFree  = byte(0x01) // block sits on a free list
	PoisonAlloc = byte(0x02) // block was just handed out
)

// PageRoundUp rounds p up to the next page boundary.
func PageRoundUp(p PAddr) PAddr {
	return (p + PAddr(PageSize) - 1) &^ (PAddr(PageSize) - 1)
}

// PageRoundDown rounds p down to a page boundary.
func PageRoundDown(p PAddr) PAddr {
	return p &^ (PAddr(PageSize) - 1)
}
