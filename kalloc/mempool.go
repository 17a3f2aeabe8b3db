// File: kalloc/mempool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A memPool views one locked buddy as a balanceable pool. The pool's
// home range is the portion of the buddy's memory that originated on its
// NUMA node; in balance mode the buddy's managed window spans all of
// physical memory so donated blocks can come home to a different pool.

package kalloc

import (
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-kalloc/api"
	"github.com/momentics/hioload-kalloc/buddy"
)

type memPool struct {
	k     *Allocator
	buddy int // the buddy backing this pool; it can contain any phys mem

	// Home range: this pool's local memory.
	base  api.PAddr
	limit api.PAddr // first address beyond the local memory
}

var _ api.BalancePool = (*memPool)(nil)

// BalanceCount returns the pool's free bytes.
func (m *memPool) BalanceCount() uint64 {
	lb := m.k.buddies[m.buddy]
	lb.lock.Lock()
	s := lb.alloc.Stats()
	lb.lock.Unlock()
	return s.Free
}

// BalanceMoveTo carves one block out of this pool and donates it to
// target: at most half of the free bytes, and at most the largest single
// buddy block.
func (m *memPool) BalanceMoveTo(target api.BalancePool) {
	avail := m.BalanceCount()
	size := min(buddy.MaxSize, avail/2)
	if size < api.PageSize {
		return
	}
	lb := m.k.buddies[m.buddy]
	lb.lock.Lock()
	res, ok := lb.alloc.Alloc(size)
	lb.lock.Unlock()
	if !ok {
		return
	}
	klog.V(2).Infof("kalloc: balance moved %d bytes at %#x from buddy %d", size, res, m.buddy)
	// Not exactly hot list stealing, but it is stealing.
	m.k.ctr.HotListSteal.Inc()
	target.KFree(res, size)
}

// KFree returns a block to this pool.
func (m *memPool) KFree(p api.PAddr, size uint64) {
	m.kfree(p, size)
}

func (m *memPool) containsLocal(p api.PAddr) bool {
	return m.base <= p && p < m.limit
}

func (m *memPool) kalloc(size uint64) (api.PAddr, bool) {
	lb := m.k.buddies[m.buddy]
	lb.lock.Lock()
	res, ok := lb.alloc.Alloc(size)
	lb.lock.Unlock()
	return res, ok
}

func (m *memPool) kfree(p api.PAddr, size uint64) {
	lb := m.k.buddies[m.buddy]
	lb.lock.Lock()
	lb.alloc.Free(p, size)
	lb.lock.Unlock()
}

// balancer implements the cross-pool donation protocol: when a pool is
// exhausted it picks the donor with the most free memory and triggers one
// bounded transfer. If no donor has memory the machine is exhausted and
// the caller surfaces out-of-memory.
type balancer struct {
	k *Allocator
}

func (b *balancer) balance(acceptor int) {
	acc := b.k.mempools[acceptor]
	var donor *memPool
	var best uint64
	for i, mp := range b.k.mempools {
		if i == acceptor {
			continue
		}
		if c := mp.BalanceCount(); c > best {
			best, donor = c, mp
		}
	}
	if donor == nil || best == 0 {
		return
	}
	donor.BalanceMoveTo(acc)
}
