// File: kalloc/kalloc.go
// Package kalloc is the physical page allocator facade: topology-aware
// buddy pools, per-CPU hot page caches and work stealing.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// An Allocator is created with New over a simulated physical memory
// arena, boots with a bump allocator, and switches to the full machinery
// once InitKalloc has bound the firmware map to the NUMA topology.
//
// Locking: one spinlock per buddy; at most one buddy lock is held at a
// time. Hot page cache mutations happen under the owning CPU's irq lock,
// the library's stand-in for disabling local interrupts.

package kalloc

import (
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/momentics/hioload-kalloc/api"
	"github.com/momentics/hioload-kalloc/buddy"
	"github.com/momentics/hioload-kalloc/internal/arena"
	"github.com/momentics/hioload-kalloc/internal/concurrency"
	"github.com/momentics/hioload-kalloc/physmap"
	"github.com/momentics/hioload-kalloc/stats"
)

// lockedBuddy pairs a buddy allocator with its spinlock. Identity is the
// index in the buddy table, stable for the allocator's lifetime.
type lockedBuddy struct {
	lock  concurrency.Spinlock
	alloc *buddy.Allocator
}

// cpuMem is one CPU's allocator state. Only CPU i mutates cpuMem[i], and
// only under its irq lock.
type cpuMem struct {
	irq   concurrency.Spinlock
	steal stealOrder
	pool  int // home mempool index for balance mode

	// Hot page cache of recently freed pages.
	hot  []api.PAddr
	nhot int
}

// Allocator is the allocator facade.
type Allocator struct {
	cfg    Config
	arena  *arena.Arena
	tracer api.Tracer
	ctr    *stats.Counters

	kinited atomic.Bool

	// Boot bump allocator state; also the post-init kernel reservation
	// boundary.
	bootLock concurrency.Spinlock
	newend   api.PAddr

	// Usable physical memory; consumed during init.
	mem physmap.Map

	buddies      []*lockedBuddy
	maxBuddies   int
	mempools     []*memPool
	poolsByLimit []int // mempool indices sorted by limit
	cpuMem       []cpuMem
	bal          balancer

	pageInfo     []PageInfo
	pageInfoLen  uint64
	pageInfoBase api.PAddr

	slabs        [slabMax]slabInfo
	hotPages     int
	managedBytes uint64
}

var _ api.Allocator = (*Allocator)(nil)

// New creates an allocator over a fresh arena of cfg.MemBytes. Until
// InitKalloc runs, only page-size boot allocations are served.
func New(cfg *Config) (*Allocator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.CPU == nil {
		c.CPU = AffinityCPU{}
	}
	if c.Tracer == nil {
		c.Tracer = api.NopTracer()
	}
	if c.Counters == nil {
		c.Counters = stats.New()
	}
	if c.HotPages < 2 {
		c.HotPages = 2
	}
	c.HotPages &^= 1 // flush logic halves the cache

	a, err := arena.New(c.MemBytes)
	if err != nil {
		return nil, err
	}
	k := &Allocator{
		cfg:      c,
		arena:    a,
		tracer:   c.Tracer,
		ctr:      c.Counters,
		newend:   c.KernelEnd,
		hotPages: c.HotPages,
	}
	k.bal = balancer{k: k}
	return k, nil
}

// Release returns the arena to the OS. The allocator must not be used
// afterwards.
func (k *Allocator) Release() error {
	return k.arena.Release()
}

// Initialized reports whether InitKalloc has completed.
func (k *Allocator) Initialized() bool {
	return k.kinited.Load()
}

// Counters returns the allocator's event counters.
func (k *Allocator) Counters() *stats.Counters {
	return k.ctr
}

// Bytes returns the n bytes of memory backing physical address p, so
// callers can actually use what they allocated.
func (k *Allocator) Bytes(p api.PAddr, n uint64) []byte {
	return k.arena.Bytes(uint64(p), n)
}

func (k *Allocator) currentCPU() int {
	cpu := k.cfg.CPU.CurrentCPU()
	if n := len(k.cpuMem); cpu < 0 || cpu >= n {
		// Host CPU ids can exceed the simulated topology; fold them.
		cpu = ((cpu % n) + n) % n
	}
	return cpu
}

// Alloc returns a block of size bytes labelled name for tracing, or
// ok=false when memory is exhausted. Before init only page-size boot
// allocations are accepted.
func (k *Allocator) Alloc(name string, size uint64) (api.PAddr, bool) {
	if !k.kinited.Load() {
		if size != api.PageSize {
			panic("kalloc: boot allocator supports only page-size allocations")
		}
		return k.pgalloc(), true
	}

	var res api.PAddr
	var ok bool
	if k.cfg.LoadBalance {
		res, ok = k.allocBalance(size)
	} else {
		res, ok = k.allocSteal(size)
	}
	if !ok {
		klog.Errorf("kalloc: out of memory (%d bytes)", size)
		k.ctr.OutOfMemory.Inc()
		return 0, false
	}
	k.postAlloc(res, size, name)
	return res, true
}

// allocSteal serves a request by walking the CPU's steal order, with the
// hot page cache absorbing page-size traffic.
func (k *Allocator) allocSteal(size uint64) (api.PAddr, bool) {
	cpu := k.currentCPU()
	mem := &k.cpuMem[cpu]

	if size == api.PageSize {
		mem.irq.Lock()
		if mem.nhot == 0 {
			k.refillHot(cpu, mem)
		}
		if mem.nhot > 0 {
			mem.nhot--
			res := mem.hot[mem.nhot]
			mem.irq.Unlock()
			k.ctr.PageAlloc.Inc()
			return res, true
		}
		mem.irq.Unlock()
		// The refill completed zero pages; we're probably out of memory,
		// but drop through to the more aggressive general path.
	}

	var res api.PAddr
	var ok bool
	mem.steal.forEach(func(idx int) bool {
		lb := k.buddies[idx]
		lb.lock.Lock()
		res, ok = lb.alloc.Alloc(size)
		lb.lock.Unlock()
		return !ok
	})
	return res, ok
}

// refillHot pulls page-size blocks along the steal order until the cache
// is half full or the order is exhausted. Called with mem.irq held.
func (k *Allocator) refillHot(cpu int, mem *cpuMem) {
	k.ctr.HotListRefill.Inc()
	it := mem.steal.iter()
	if it.done() {
		return
	}
	lb := k.buddies[it.index()]
	lb.lock.Lock()
	for mem.nhot < k.hotPages/2 {
		p, ok := lb.alloc.Alloc(api.PageSize)
		if !ok {
			// Move to the next allocator.
			it.next()
			if it.done() {
				break
			}
			lb.lock.Unlock()
			lb = k.buddies[it.index()]
			lb.lock.Lock()
			if !mem.steal.isLocal(it.index()) {
				klog.V(2).Infof("kalloc: cpu %d stealing hot list from buddy %d", cpu, it.index())
			}
			continue
		}
		mem.hot[mem.nhot] = p
		mem.nhot++
		if !mem.steal.isLocal(it.index()) {
			k.ctr.HotListSteal.Inc()
		}
	}
	lb.lock.Unlock()
}

// allocBalance serves a request from the CPU's home pool, invoking the
// balancer and retrying once when the pool runs dry.
func (k *Allocator) allocBalance(size uint64) (api.PAddr, bool) {
	cpu := k.currentCPU()
	mem := &k.cpuMem[cpu]

	if size == api.PageSize {
		mem.irq.Lock()
		if mem.nhot > 0 {
			mem.nhot--
			res := mem.hot[mem.nhot]
			mem.irq.Unlock()
			k.ctr.PageAlloc.Inc()
			return res, true
		}
		mem.irq.Unlock()
	}

	pool := k.mempools[mem.pool]
	if res, ok := pool.kalloc(size); ok {
		return res, true
	}
	k.bal.balance(mem.pool)
	return pool.kalloc(size)
}

// postAlloc runs the poison protocol and labels the block for tracing.
func (k *Allocator) postAlloc(p api.PAddr, size uint64, name string) {
	if k.cfg.AllocMemset && size <= 16384 {
		k.checkPoison(p, size)
		k.arena.Fill(uint64(p), size, api.PoisonAlloc)
	}
	if name == "" {
		name = "kmem"
	}
	k.tracer.LabelBlock(p, size, name)
}

// checkPoison verifies that freed memory still carries the free sentinel,
// ignoring the buddy free-list link area at the start of each page.
func (k *Allocator) checkPoison(p api.PAddr, size uint64) {
	if size <= api.PtrLinkBytes {
		return
	}
	b := k.arena.Bytes(uint64(p), size)
	for i := uint64(0); i < size; i++ {
		if (uint64(p)+i)%api.PageSize < api.PtrLinkBytes {
			continue
		}
		if b[i] != api.PoisonFree {
			panic(fmt.Sprintf("kalloc: free memory was overwritten at %#x+%#x\n%s",
				p, i, hex.Dump(b)))
		}
	}
}

// Free returns a block of exactly size bytes. Page-size frees land in the
// hot page cache; freeing a pointer no buddy window contains panics.
func (k *Allocator) Free(p api.PAddr, size uint64) {
	if !k.kinited.Load() {
		// The boot allocator never frees.
		return
	}

	// Fill with junk to catch dangling refs.
	if k.cfg.AllocMemset {
		k.arena.Fill(uint64(p), size, api.PoisonFree)
	}
	k.tracer.UnlabelBlock(p)

	cpu := k.currentCPU()
	mem := &k.cpuMem[cpu]

	if size == api.PageSize {
		mem.irq.Lock()
		if mem.nhot == k.hotPages {
			k.flushHot(cpu, mem)
		}
		mem.hot[mem.nhot] = p
		mem.nhot++
		mem.irq.Unlock()
		k.ctr.PageFree.Inc()
		return
	}

	if k.cfg.LoadBalance {
		k.kfreePool(mem, p, size)
		return
	}

	// Find the first allocator in steal order whose window contains p.
	// This checks the local allocators first and resolves overlapping
	// windows to the first match.
	freed := false
	mem.steal.forEach(func(idx int) bool {
		lb := k.buddies[idx]
		if !lb.alloc.Contains(p) {
			return true
		}
		lb.lock.Lock()
		lb.alloc.Free(p, size)
		lb.lock.Unlock()
		freed = true
		return false
	})
	if !freed {
		panic(fmt.Sprintf("kfree: pointer %#x is not in an allocated region", p))
	}
}

// flushHot returns the older half of the hot page cache to the owning
// buddies. The half is sorted by address so consecutive pages usually hit
// the same buddy and the lock can be reused across them. Called with
// mem.irq held.
func (k *Allocator) flushHot(cpu int, mem *cpuMem) {
	k.ctr.HotListFlush.Inc()
	half := k.hotPages / 2
	slices.Sort(mem.hot[:half])

	if k.cfg.LoadBalance {
		for _, p := range mem.hot[:half] {
			k.kfreePool(mem, p, api.PageSize)
		}
	} else {
		var lb *lockedBuddy
		remote := false
		for _, p := range mem.hot[:half] {
			// Do we still hold the right buddy?
			if lb == nil || !lb.alloc.Contains(p) {
				if lb != nil {
					lb.lock.Unlock()
					lb = nil
				}
				idx := -1
				mem.steal.forEach(func(i int) bool {
					if k.buddies[i].alloc.Contains(p) {
						idx = i
						return false
					}
					return true
				})
				if idx < 0 {
					panic(fmt.Sprintf("kfree: pointer %#x is not in an allocated region", p))
				}
				lb = k.buddies[idx]
				remote = !mem.steal.isLocal(idx)
				if remote {
					klog.V(2).Infof("kalloc: cpu %d returning hot list to buddy %d", cpu, idx)
				}
				lb.lock.Lock()
			}
			lb.alloc.Free(p, api.PageSize)
			if remote {
				k.ctr.HotListRemoteFree.Inc()
			}
		}
		if lb != nil {
			lb.lock.Unlock()
		}
	}

	// Shift the hot page list down.
	copy(mem.hot, mem.hot[half:k.hotPages])
	mem.nhot = k.hotPages - half
}

// kfreePool returns p to the pool whose home range contains it.
func (k *Allocator) kfreePool(mem *cpuMem, p api.PAddr, size uint64) {
	pool := mem.pool
	mp := k.mempools[pool]
	if !(mp.base <= p && p < mp.limit) {
		// Memory from a remote pool; which one? Home ranges are disjoint,
		// so a binary search over the table sorted by limit finds it.
		i := sort.Search(len(k.poolsByLimit), func(i int) bool {
			return k.mempools[k.poolsByLimit[i]].limit > p
		})
		if i == len(k.poolsByLimit) || p < k.mempools[k.poolsByLimit[i]].base {
			panic(fmt.Sprintf("kfree: pointer %#x is not in an allocated region", p))
		}
		pool = k.poolsByLimit[i]
		klog.V(2).Infof("kalloc: returning %#x to pool %d", p, pool)
	}
	k.mempools[pool].kfree(p, size)
}
