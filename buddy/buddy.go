// File: buddy/buddy.go
// Package buddy implements a power-of-two splitter/coalescer over a
// contiguous window of physical memory.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// An Allocator is bound at construction to a managed window
// [windowBase, windowBase+windowSize) and seeded with one free subrange
// inside that window. Blocks are power-of-two multiples of the page size,
// aligned to their own size relative to the window base, which keeps
// buddy pairing sound for windows that do not start at address zero.
//
// The allocator carries no locking of its own; callers serialize access
// (the kalloc core pins every Allocator behind a spinlock).

package buddy

import (
	"math/bits"

	"github.com/momentics/hioload-kalloc/api"
)

const (
	// MaxOrder is the largest block order. A block of order o spans
	// api.PageSize<<o bytes.
	MaxOrder = 10

	// MaxSize is the largest single allocation.
	MaxSize = api.PageSize << MaxOrder
)

// Allocator is a single buddy allocator. The zero value is not usable;
// construct with New.
type Allocator struct {
	windowBase api.PAddr
	windowSize uint64

	// free[o] holds the offsets (from windowBase) of free blocks of
	// order o. Map-backed lists give O(1) removal by address during
	// coalescing.
	free [MaxOrder + 1]map[uint64]struct{}

	freeBytes uint64
}

// New constructs an allocator managing [windowBase, windowBase+windowSize)
// with [freeBase, freeBase+freeSize) initially free. The free subrange is
// trimmed to page boundaries and clipped to the window.
func New(windowBase api.PAddr, windowSize uint64, freeBase api.PAddr, freeSize uint64) *Allocator {
	a := &Allocator{
		windowBase: windowBase,
		windowSize: windowSize,
	}
	for o := range a.free {
		a.free[o] = make(map[uint64]struct{})
	}

	base := api.PageRoundUp(freeBase)
	end := api.PageRoundDown(freeBase + api.PAddr(freeSize))
	if base < windowBase {
		base = api.PageRoundUp(windowBase)
	}
	if winEnd := windowBase + api.PAddr(windowSize); end > winEnd {
		end = api.PageRoundDown(winEnd)
	}

	// Seed the free lists greedily: at each step take the largest block
	// that is size-aligned at the current offset and still fits.
	for base < end {
		off := uint64(base - windowBase)
		o := MaxOrder
		for o > 0 {
			sz := blockSize(o)
			if off%sz == 0 && uint64(end-base) >= sz {
				break
			}
			o--
		}
		a.free[o][off] = struct{}{}
		a.freeBytes += blockSize(o)
		base += api.PAddr(blockSize(o))
	}
	return a
}

func blockSize(order int) uint64 {
	return api.PageSize << order
}

// sizeToOrder returns the order of the smallest block holding size bytes.
func sizeToOrder(size uint64) int {
	if size <= api.PageSize {
		return 0
	}
	pages := (size + api.PageSize - 1) / api.PageSize
	return 64 - bits.LeadingZeros64(pages-1)
}

// Alloc returns a block of at least size bytes, rounded up internally to
// a power-of-two multiple of the page size. It never panics; the second
// result is false when no block fits.
func (a *Allocator) Alloc(size uint64) (api.PAddr, bool) {
	if size == 0 || size > MaxSize {
		return 0, false
	}
	want := sizeToOrder(size)

	// Find the smallest order with a free block.
	o := want
	for o <= MaxOrder && len(a.free[o]) == 0 {
		o++
	}
	if o > MaxOrder {
		return 0, false
	}
	var off uint64
	for off = range a.free[o] {
		break
	}
	delete(a.free[o], off)

	// Split down to the wanted order; the upper halves go back free.
	for o > want {
		o--
		a.free[o][off+blockSize(o)] = struct{}{}
	}
	a.freeBytes -= blockSize(want)
	return a.windowBase + api.PAddr(off), true
}

// Free returns a block previously allocated with exactly this size,
// coalescing it with its buddy as far up as possible.
func (a *Allocator) Free(p api.PAddr, size uint64) {
	o := sizeToOrder(size)
	off := uint64(p - a.windowBase)
	for o < MaxOrder {
		buddyOff := off ^ blockSize(o)
		if _, ok := a.free[o][buddyOff]; !ok {
			break
		}
		delete(a.free[o], buddyOff)
		if buddyOff < off {
			off = buddyOff
		}
		o++
	}
	a.free[o][off] = struct{}{}
	a.freeBytes += blockSize(sizeToOrder(size))
}

// Contains reports whether p falls inside the managed window.
func (a *Allocator) Contains(p api.PAddr) bool {
	return p >= a.windowBase && p < a.windowBase+api.PAddr(a.windowSize)
}

// Empty reports whether the allocator has no free blocks.
func (a *Allocator) Empty() bool {
	return a.freeBytes == 0
}

// Stats returns the current free-memory snapshot.
func (a *Allocator) Stats() api.BuddyStats {
	s := api.BuddyStats{
		Free:  a.freeBytes,
		NFree: make([]uint64, MaxOrder+1),
	}
	for o := range a.free {
		s.NFree[o] = uint64(len(a.free[o]))
	}
	return s
}

var _ api.BuddyAllocator = (*Allocator)(nil)
