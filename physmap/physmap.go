// File: physmap/physmap.go
// Package physmap maintains a canonical set of usable physical memory regions.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Firmware memory maps arrive dirty: out of order, overlapping, sometimes
// with later records overriding earlier ones. This package is the one
// place that canonicalization lives. A Map is an ordered sequence of
// disjoint, non-adjacent, non-empty [base,end) regions sorted by base.

package physmap

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-kalloc/api"
)

// Region is one half-open physical address range [Base, End).
type Region struct {
	Base, End uint64
}

// Map is a set of usable physical memory regions. The zero value is an
// empty map ready for use. Map is not safe for concurrent mutation; it is
// only mutated during single-threaded init.
type Map struct {
	regions []Region
}

// Regions returns the region list in sorted order, without overlaps.
// The returned slice is owned by the map and must not be mutated.
func (m *Map) Regions() []Region {
	return m.regions
}

// Empty reports whether no usable memory remains.
func (m *Map) Empty() bool {
	return len(m.regions) == 0
}

// Add inserts [base,end), merging with any overlapping or adjacent
// regions. The merged span is re-inserted so merges cascade.
func (m *Map) Add(base, end uint64) {
	if base >= end {
		return
	}
	// Scan for overlap
	i := 0
	for ; i < len(m.regions); i++ {
		r := m.regions[i]
		if end >= r.Base && base <= r.End {
			// Found an overlapping (or adjacent) region
			newBase := min(base, r.Base)
			newEnd := max(end, r.End)
			// Re-add the expanded region, since it might overlap another
			m.regions = slices.Delete(m.regions, i, i+1)
			m.Add(newBase, newEnd)
			return
		}
		if r.Base >= base {
			// Found the insertion point
			break
		}
	}
	m.regions = slices.Insert(m.regions, i, Region{base, end})
}

// Remove subtracts [base,end) from the map. Each existing region is
// either removed, split in two, or truncated on one side.
func (m *Map) Remove(base, end uint64) {
	if base >= end {
		return
	}
	for i := 0; i < len(m.regions); i++ {
		r := &m.regions[i]
		switch {
		case r.Base < base && end < r.End:
			// Hole strictly inside: split this region
			m.regions = slices.Insert(m.regions, i+1, Region{end, r.End})
			m.regions[i].End = base
		case base <= r.Base && r.End <= end:
			// Completely covered: drop the region
			m.regions = slices.Delete(m.regions, i, i+1)
			i--
		case base <= r.Base && end > r.Base:
			// Left truncate
			r.Base = end
		case base < r.End && end >= r.End:
			// Right truncate
			r.End = base
		}
	}
}

// RemoveMap subtracts every region of o.
func (m *Map) RemoveMap(o *Map) {
	for _, r := range o.regions {
		m.Remove(r.Base, r.End)
	}
}

// Intersect keeps only the bytes present in both maps, implemented by
// removing everything in the complement of o.
func (m *Map) Intersect(o *Map) {
	if len(o.regions) == 0 {
		m.regions = m.regions[:0]
		return
	}
	prevEnd := uint64(0)
	for _, r := range o.regions {
		m.Remove(prevEnd, r.Base)
		prevEnd = r.End
	}
	m.Remove(prevEnd, math.MaxUint64)
}

// Bytes returns the total number of usable bytes.
func (m *Map) Bytes() uint64 {
	var total uint64
	for _, r := range m.regions {
		total += r.End - r.Base
	}
	return total
}

// Base returns the lowest base address, or 0 for an empty map.
func (m *Map) Base() uint64 {
	if len(m.regions) == 0 {
		return 0
	}
	return m.regions[0].Base
}

// Max returns the first physical address above all regions.
func (m *Map) Max() uint64 {
	if len(m.regions) == 0 {
		return 0
	}
	return m.regions[len(m.regions)-1].End
}

// BytesAfter returns the number of usable bytes at or after p.
func (m *Map) BytesAfter(p api.PAddr) uint64 {
	pa := uint64(p)
	var total uint64
	for _, r := range m.regions {
		if r.Base > pa {
			total += r.End - r.Base
		} else if r.Base <= pa && pa <= r.End {
			total += r.End - pa
		}
	}
	return total
}

// MaxAlloc returns the number of bytes from p to the end of the region
// containing it.
func (m *Map) MaxAlloc(p api.PAddr) (uint64, error) {
	pa := uint64(p)
	for _, r := range m.regions {
		if r.Base <= pa && pa <= r.End {
			return r.End - pa, nil
		}
	}
	return 0, errors.Errorf("physmap: bad start address %#x", pa)
}

// Alloc finds the first region at or after start where an align-aligned
// run of size bytes fits and returns the aligned address. align must be a
// power of two or zero. Addresses right at the end of a region are
// accepted as a start, in case the caller allocated up to the last byte.
func (m *Map) Alloc(start api.PAddr, size, align uint64) (api.PAddr, error) {
	pa := uint64(start)
	for _, r := range m.regions {
		if pa < r.Base {
			pa = r.Base
		}
		if r.Base <= pa && pa <= r.End {
			// Align now, so it doesn't matter if alignment pushes pa
			// outside of a known region.
			if align != 0 {
				pa = (pa + align - 1) &^ (align - 1)
			}
			if pa+size <= r.End {
				return api.PAddr(pa), nil
			}
			// Not enough space; move to the next region.
			pa = 0
		}
	}
	if pa == 0 {
		return 0, errors.Errorf("physmap: out of memory allocating %d bytes at %#x", size, start)
	}
	return 0, errors.Errorf("physmap: bad start address %#x", pa)
}

// String renders the map as space-separated inclusive base-last ranges,
// for init logging.
func (m *Map) String() string {
	var b strings.Builder
	for i, r := range m.regions {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%#x-%#x", r.Base, r.End-1)
	}
	return b.String()
}
