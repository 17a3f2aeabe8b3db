// File: kalloc/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Introspection helpers: the per-CPU memory dump and the accounting
// queries the conservation checks rely on.

package kalloc

import (
	"fmt"

	"github.com/momentics/hioload-kalloc/api"
)

// DumpState reports, for every CPU, the free-memory stats of the buddies
// in its local range.
func (k *Allocator) DumpState() map[string]any {
	out := make(map[string]any, len(k.cpuMem))
	for i := range k.cpuMem {
		mem := &k.cpuMem[i]
		if len(mem.steal.segments) == 0 {
			continue
		}
		local := mem.steal.local()
		per := make([]map[string]any, 0, local.high-local.low)
		for b := local.low; b < local.high; b++ {
			lb := k.buddies[b]
			lb.lock.Lock()
			s := lb.alloc.Stats()
			lb.lock.Unlock()
			per = append(per, map[string]any{
				"buddy": b,
				"free":  s.Free,
				"nfree": s.NFree,
			})
		}
		out[fmt.Sprintf("cpu%d", i)] = per
	}
	return out
}

// StealOrders renders every CPU's steal order, local segment first.
func (k *Allocator) StealOrders() []string {
	out := make([]string, len(k.cpuMem))
	for i := range k.cpuMem {
		out[i] = k.cpuMem[i].steal.String()
	}
	return out
}

// FreeBytes sums the free bytes of every buddy.
func (k *Allocator) FreeBytes() uint64 {
	var total uint64
	for _, lb := range k.buddies {
		lb.lock.Lock()
		total += lb.alloc.Stats().Free
		lb.lock.Unlock()
	}
	return total
}

// HotPageBytes sums the bytes parked in the per-CPU hot page caches.
func (k *Allocator) HotPageBytes() uint64 {
	var total uint64
	for i := range k.cpuMem {
		mem := &k.cpuMem[i]
		mem.irq.Lock()
		total += uint64(mem.nhot) * api.PageSize
		mem.irq.Unlock()
	}
	return total
}

// ManagedBytes returns the total bytes handed to the buddies at init.
func (k *Allocator) ManagedBytes() uint64 {
	return k.managedBytes
}

// Buddies returns the number of buddy allocators.
func (k *Allocator) Buddies() int {
	return len(k.buddies)
}
