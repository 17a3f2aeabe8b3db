// File: kalloc/pageinfo.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package kalloc

import (
	"fmt"

	"github.com/momentics/hioload-kalloc/api"
)

// PageInfo is the per-page metadata record. The array is sized and placed
// once during init and never restructured; only per-page fields change.
type PageInfo struct {
	Refcnt uint64
	Flags  uint64
}

// pageInfoSize is the footprint of one PageInfo in the metadata array.
const pageInfoSize = 16

// PageInfoFor returns the metadata record of the page containing p. Pages
// below the metadata array itself are untracked and return an error.
func (k *Allocator) PageInfoFor(p api.PAddr) (*PageInfo, error) {
	if p < k.pageInfoBase {
		return nil, fmt.Errorf("kalloc: page %#x below tracked range", p)
	}
	idx := uint64(p-k.pageInfoBase) / api.PageSize
	if idx >= k.pageInfoLen {
		return nil, fmt.Errorf("kalloc: page %#x beyond tracked range", p)
	}
	return &k.pageInfo[idx], nil
}
