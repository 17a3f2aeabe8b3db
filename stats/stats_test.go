// File: stats/stats_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounterNames(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.PageAlloc.Inc()
	c.OutOfMemory.Inc()
	c.OutOfMemory.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"kalloc_page_alloc_count",
		"kalloc_page_free_count",
		"kalloc_hot_list_refill_count",
		"kalloc_hot_list_flush_count",
		"kalloc_hot_list_steal_count",
		"kalloc_hot_list_remote_free_count",
		"kalloc_out_of_memory",
	} {
		require.True(t, names[want], "missing counter %s", want)
	}

	require.Equal(t, 2.0, testutil.ToFloat64(c.OutOfMemory))
}

func TestDoubleRegisterFails(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	require.Error(t, c.Register(reg))
}
