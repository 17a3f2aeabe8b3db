// File: kalloc/slab.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// These slabs aren't really slabs. They're just pre-sized and pre-named
// allocation classes over the facade.

package kalloc

import (
	"math/bits"

	"github.com/momentics/hioload-kalloc/api"
)

// SlabKind names one fixed-size allocation class.
type SlabKind int

const (
	SlabStack SlabKind = iota // kernel stacks
	SlabPerf                  // perf ring buffers
	SlabWQ                    // work queues
	slabMax
)

// Per-kind size constants; orders derive from them at init.
const (
	kstackSize = 2 * api.PageSize
	kperfSize  = 16 * api.PageSize
	wqSize     = api.PageSize
)

type slabInfo struct {
	name  string
	order uint
}

func (k *Allocator) initSlabs() {
	k.slabs[SlabStack] = slabInfo{"kstack", ceilLog2(kstackSize)}
	k.slabs[SlabPerf] = slabInfo{"kperf", ceilLog2(kperfSize)}
	k.slabs[SlabWQ] = slabInfo{"wq", ceilLog2(wqSize)}
}

// SlabAlloc allocates one block of the kind's class size.
func (k *Allocator) SlabAlloc(kind SlabKind) (api.PAddr, bool) {
	s := &k.slabs[kind]
	return k.Alloc(s.name, uint64(1)<<s.order)
}

// SlabFree frees a block obtained from SlabAlloc of the same kind.
func (k *Allocator) SlabFree(kind SlabKind, p api.PAddr) {
	s := &k.slabs[kind]
	k.Free(p, uint64(1)<<s.order)
}

// ceilLog2 returns the smallest e with 1<<e >= v; v must be positive.
func ceilLog2(v uint64) uint {
	return uint(bits.Len64(v - 1))
}
