// File: kalloc/mempool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tests for the coarse mempool/balancer routing mode.

package kalloc_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-kalloc/api"
	"github.com/momentics/hioload-kalloc/buddy"
	"github.com/momentics/hioload-kalloc/fake"
	"github.com/momentics/hioload-kalloc/kalloc"
)

func balanceConfig(mem uint64, cpu *fake.CPU) *kalloc.Config {
	cfg := testConfig(mem, cpu)
	cfg.LoadBalance = true
	return cfg
}

func TestBalanceMovesBoundedChunk(t *testing.T) {
	// Two nodes, one CPU each. CPU 0 drains its home pool; the next
	// allocation triggers one balance transfer of exactly
	// min(MaxSize, donorFree/2) = MaxSize bytes from the donor.
	cfg := balanceConfig(64<<20, fake.NewCPU(0))
	k := newAlloc(t, cfg, 2, 1)

	d0 := localFree(t, k, "cpu1")
	require.Greater(t, d0, uint64(2*buddy.MaxSize), "donor must be rich enough for a full-size steal")

	var donated api.PAddr
	for i := 0; ; i++ {
		require.Less(t, i, 64, "balance never triggered")
		p, ok := k.Alloc("", buddy.MaxSize)
		require.True(t, ok)
		if d := localFree(t, k, "cpu1"); d != d0 {
			// The donor lost exactly one maximal block.
			require.Equal(t, d0-buddy.MaxSize, d)
			donated = p
			break
		}
	}

	// The block that satisfied the balanced allocation came out of the
	// donor's home memory.
	require.GreaterOrEqual(t, uint64(donated), uint64(32<<20))

	// Freeing it routes it back to the donor pool by home range.
	k.Free(donated, buddy.MaxSize)
	require.Equal(t, d0, localFree(t, k, "cpu1"))
}

func TestBalanceRetriesOnceThenFails(t *testing.T) {
	cfg := balanceConfig(8<<20, fake.NewCPU(0))
	k := newAlloc(t, cfg, 1, 1)
	ctr := k.Counters()

	// A single pool has no donor: draining it must end in a soft OOM.
	for {
		if _, ok := k.Alloc("", pg); !ok {
			break
		}
	}
	require.Equal(t, 1.0, testutil.ToFloat64(ctr.OutOfMemory))
}

func TestBalanceModeHotCache(t *testing.T) {
	cfg := balanceConfig(16<<20, fake.NewCPU(0))
	k := newAlloc(t, cfg, 1, 1)

	// Page traffic still rides the hot cache: LIFO holds.
	p, ok := k.Alloc("", pg)
	require.True(t, ok)
	k.Free(p, pg)
	q, ok := k.Alloc("", pg)
	require.True(t, ok)
	require.Equal(t, p, q)
}

func TestBalanceModeFreeUnknownPointerPanics(t *testing.T) {
	cfg := balanceConfig(16<<20, fake.NewCPU(0))
	k := newAlloc(t, cfg, 1, 1)
	require.Panics(t, func() { k.Free(0x2000, 2*pg) })
}
