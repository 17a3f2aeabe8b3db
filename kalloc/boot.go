// File: kalloc/boot.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package kalloc

import "github.com/momentics/hioload-kalloc/api"

// pgalloc is the simple page allocator used to get off the ground during
// boot: bump newend by a page, zero-fill, return the old boundary. After
// InitKalloc the boot allocator is quiescent; newend marks the kernel
// reservation removed from the memory map.
func (k *Allocator) pgalloc() api.PAddr {
	k.bootLock.Lock()
	p := api.PageRoundUp(k.newend)
	k.newend = p + api.PAddr(api.PageSize)
	k.bootLock.Unlock()
	k.arena.Zero(uint64(p), api.PageSize)
	return p
}
