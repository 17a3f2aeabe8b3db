// File: buddy/buddy_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package buddy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-kalloc/api"
)

const pg = api.PageSize

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New(0x100000, 64*pg, 0x100000, 64*pg)
	before := a.Stats()

	p, ok := a.Alloc(pg)
	require.True(t, ok)
	require.True(t, a.Contains(p))
	require.Equal(t, before.Free-pg, a.Stats().Free)

	a.Free(p, pg)
	require.Equal(t, before, a.Stats())
}

func TestAllocRoundsUpToPowerOfTwo(t *testing.T) {
	a := New(0, 64*pg, 0, 64*pg)
	before := a.Stats().Free

	// Three pages round up to a four-page block.
	p, ok := a.Alloc(3 * pg)
	require.True(t, ok)
	require.Equal(t, before-4*pg, a.Stats().Free)
	a.Free(p, 3*pg)
	require.Equal(t, before, a.Stats().Free)
}

func TestSplitAndCoalesce(t *testing.T) {
	// A window with exactly one max-order block.
	a := New(0, MaxSize, 0, MaxSize)
	require.Equal(t, uint64(1), a.Stats().NFree[MaxOrder])

	p1, ok := a.Alloc(pg)
	require.True(t, ok)
	p2, ok := a.Alloc(pg)
	require.True(t, ok)
	require.NotEqual(t, p1, p2)

	a.Free(p1, pg)
	a.Free(p2, pg)

	// Everything coalesced back into the single top block.
	s := a.Stats()
	require.Equal(t, uint64(MaxSize), s.Free)
	require.Equal(t, uint64(1), s.NFree[MaxOrder])
	for o := 0; o < MaxOrder; o++ {
		require.Zero(t, s.NFree[o], "order %d should be empty", o)
	}
}

func TestExhaustionAndOversize(t *testing.T) {
	a := New(0, 4*pg, 0, 4*pg)

	_, ok := a.Alloc(MaxSize + 1)
	require.False(t, ok, "oversize allocation must fail")

	var got []api.PAddr
	for {
		p, ok := a.Alloc(pg)
		if !ok {
			break
		}
		got = append(got, p)
	}
	require.Len(t, got, 4)
	require.True(t, a.Empty())

	_, ok = a.Alloc(pg)
	require.False(t, ok)

	for _, p := range got {
		a.Free(p, pg)
	}
	require.Equal(t, uint64(4*pg), a.Stats().Free)
}

func TestWindowWiderThanFreeSubrange(t *testing.T) {
	// Manage 64 pages but only the middle 16 start out free; the rest of
	// the window can still receive frees (balancer donations work this way).
	a := New(0, 64*pg, api.PAddr(16*pg), 16*pg)
	require.Equal(t, uint64(16*pg), a.Stats().Free)
	require.True(t, a.Contains(0))
	require.True(t, a.Contains(api.PAddr(63*pg)))
	require.False(t, a.Contains(api.PAddr(64*pg)))

	// A block outside the free subrange but inside the window comes home.
	a.Free(api.PAddr(48*pg), 8*pg)
	require.Equal(t, uint64(24*pg), a.Stats().Free)

	p, ok := a.Alloc(8 * pg)
	require.True(t, ok)
	require.True(t, a.Contains(p))
}

func TestUnalignedFreeSubrangeIsTrimmed(t *testing.T) {
	a := New(0, 16*pg, 0x100, 2*pg)
	// [0x100, 0x100+2pg) trims to [pg, 2pg): one page.
	require.Equal(t, pg, a.Stats().Free)
}
