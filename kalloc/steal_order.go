// File: kalloc/steal_order.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A stealOrder tracks the order a CPU steals memory in. It always starts
// with the CPU's local buddy allocators and works out from there: first
// the local subnode range, then the NUMA node, then the whole machine.

package kalloc

import (
	"fmt"
	"strings"
)

// segment is a half-open range [low, high) of buddy table indices.
type segment struct {
	low, high int
}

// stealOrder is an ordered list of pairwise disjoint segments. The first
// segment is the local range by convention and stays first.
type stealOrder struct {
	// Three stealing strata, so at most five segments.
	segments []segment
}

// add inserts a range of buddy indices to steal from, automatically
// subtracting out any ranges already present.
func (s *stealOrder) add(low, high int) {
	for _, seg := range s.segments {
		if low >= seg.low && high <= seg.high {
			// Already covered, nothing to add.
			return
		} else if low < seg.low && high > seg.high {
			// Split in two. Do the upper half first, to desynchronize
			// the stealing order of different cores.
			s.add(seg.high, high)
			high = seg.low
		} else if low < seg.low && high > seg.low {
			// Straddles the low boundary
			high = seg.low
		} else if low < seg.high && high > seg.high {
			// Straddles the high boundary
			low = seg.high
		}
	}
	if low >= high {
		return
	}
	// Try to merge into the last segment, unless it is the local range:
	// that one must stay identifiable as "local".
	if len(s.segments) > 1 {
		last := &s.segments[len(s.segments)-1]
		if last.high == low {
			last.high = high
			return
		} else if high == last.low {
			last.low = low
			return
		}
	}
	s.segments = append(s.segments, segment{low, high})
}

// local returns the range of buddy allocators local to this order: the
// first range that was added.
func (s *stealOrder) local() segment {
	return s.segments[0]
}

func (s *stealOrder) isLocal(index int) bool {
	l := s.local()
	return l.low <= index && index < l.high
}

// forEach visits every index of every segment in order until fn returns
// false.
func (s *stealOrder) forEach(fn func(index int) bool) {
	for _, seg := range s.segments {
		for i := seg.low; i < seg.high; i++ {
			if !fn(i) {
				return
			}
		}
	}
}

// stealIter steps through the order one index at a time; refill uses it
// to hop buddies while juggling their locks.
type stealIter struct {
	order *stealOrder
	seg   int
	pos   int
}

func (s *stealOrder) iter() stealIter {
	it := stealIter{order: s}
	if len(s.segments) > 0 {
		it.pos = s.segments[0].low
	} else {
		it.seg = len(s.segments)
	}
	return it
}

func (it *stealIter) done() bool {
	return it.seg >= len(it.order.segments)
}

func (it *stealIter) index() int {
	return it.pos
}

func (it *stealIter) next() {
	it.pos++
	if it.pos == it.order.segments[it.seg].high {
		it.seg++
		if it.seg < len(it.order.segments) {
			it.pos = it.order.segments[it.seg].low
		}
	}
}

// String renders the order as "<local> remote...", one-index segments as
// a bare number.
func (s *stealOrder) String() string {
	var b strings.Builder
	for i, seg := range s.segments {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i == 0 {
			b.WriteByte('<')
		}
		if seg.low == seg.high-1 {
			fmt.Fprintf(&b, "%d", seg.low)
		} else {
			fmt.Fprintf(&b, "%d..%d", seg.low, seg.high-1)
		}
		if i == 0 {
			b.WriteByte('>')
		}
	}
	return b.String()
}
