// File: kalloc/steal_order_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package kalloc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func collect(s *stealOrder) []int {
	var out []int
	s.forEach(func(i int) bool {
		out = append(out, i)
		return true
	})
	return out
}

func TestStealOrderThreeStrata(t *testing.T) {
	// Local [2,4), node [0,6), machine [0,10).
	var s stealOrder
	s.add(2, 4)
	s.add(0, 6)
	s.add(0, 10)

	require.Equal(t, segment{2, 4}, s.local())

	// The node range fills in around the local range; the global range
	// contributes only the remainder. Every index is visited once, local
	// indices first.
	want := []int{2, 3, 4, 5, 0, 1, 6, 7, 8, 9}
	if diff := cmp.Diff(want, collect(&s)); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}

	for _, seg := range s.segments {
		require.Less(t, seg.low, seg.high)
	}
	require.LessOrEqual(t, len(s.segments), 5)
}

func TestStealOrderDuplicateAddIsNoop(t *testing.T) {
	var s stealOrder
	s.add(1, 3)
	s.add(1, 3)
	s.add(1, 3)
	require.Equal(t, []segment{{1, 3}}, s.segments)
}

func TestStealOrderContainedAddCancelsOut(t *testing.T) {
	var s stealOrder
	s.add(0, 8)
	// Entirely inside the existing segment: nothing to add.
	s.add(2, 5)
	require.Equal(t, []segment{{0, 8}}, s.segments)
}

func TestStealOrderStraddles(t *testing.T) {
	var s stealOrder
	s.add(4, 8)
	s.add(2, 6)  // straddles the low boundary, keeps [2,4)
	s.add(6, 10) // straddles the high boundary, keeps [8,10)

	require.Equal(t, segment{4, 8}, s.local())
	want := []int{4, 5, 6, 7, 2, 3, 8, 9}
	require.Equal(t, want, collect(&s))
}

func TestStealOrderNeverMergesIntoLocal(t *testing.T) {
	var s stealOrder
	s.add(0, 2)
	// Adjacent to the local segment, but the local range must stay
	// identifiable, so this becomes a separate segment.
	s.add(2, 4)
	require.Equal(t, []segment{{0, 2}, {2, 4}}, s.segments)
	require.True(t, s.isLocal(1))
	require.False(t, s.isLocal(2))
}

func TestStealOrderMergesIntoLastSegment(t *testing.T) {
	var s stealOrder
	s.add(0, 2)
	s.add(4, 6)
	s.add(6, 8) // adjacent to the last non-local segment: merged
	require.Equal(t, []segment{{0, 2}, {4, 8}}, s.segments)
}

func TestStealOrderIterator(t *testing.T) {
	var s stealOrder
	s.add(3, 5)
	s.add(0, 7)

	var got []int
	for it := s.iter(); !it.done(); it.next() {
		got = append(got, it.index())
	}
	require.Equal(t, collect(&s), got)

	empty := stealOrder{}
	it := empty.iter()
	require.True(t, it.done())
}

func TestStealOrderString(t *testing.T) {
	var s stealOrder
	s.add(2, 3)
	s.add(0, 6)
	str := s.String()
	require.Contains(t, str, "<2>")
}
