// File: stats/stats.go
// Package stats exports the allocator's event counters.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Counters are plain prometheus counters so an embedding process can
// expose them on its own registry; without a registry attached they are
// still safe to increment and simply go nowhere. Increments happen on
// allocation fast paths and may race; lost updates are tolerated.

package stats

import (
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

// Counters holds one instance of every allocator counter.
type Counters struct {
	PageAlloc         prometheus.Counter
	PageFree          prometheus.Counter
	HotListRefill     prometheus.Counter
	HotListFlush      prometheus.Counter
	HotListSteal      prometheus.Counter
	HotListRemoteFree prometheus.Counter
	OutOfMemory       prometheus.Counter
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// New creates a fresh, unregistered counter set.
func New() *Counters {
	return &Counters{
		PageAlloc:         counter("kalloc_page_alloc_count", "Page-size allocations served from the hot page cache."),
		PageFree:          counter("kalloc_page_free_count", "Page-size frees accepted."),
		HotListRefill:     counter("kalloc_hot_list_refill_count", "Hot page cache refills."),
		HotListFlush:      counter("kalloc_hot_list_flush_count", "Hot page cache half-flushes."),
		HotListSteal:      counter("kalloc_hot_list_steal_count", "Pages pulled from non-local buddies into hot page caches, plus balancer transfers."),
		HotListRemoteFree: counter("kalloc_hot_list_remote_free_count", "Hot page cache pages flushed back to non-local buddies in steal-order mode."),
		OutOfMemory:       counter("kalloc_out_of_memory", "Allocations that found no memory."),
	}
}

// Register attaches every counter to r.
func (c *Counters) Register(r prometheus.Registerer) error {
	var errs *multierror.Error
	for _, col := range c.collectors() {
		if err := r.Register(col); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// MustRegister attaches every counter to r and panics on conflicts.
func (c *Counters) MustRegister(r prometheus.Registerer) {
	r.MustRegister(c.collectors()...)
}

func (c *Counters) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.PageAlloc, c.PageFree,
		c.HotListRefill, c.HotListFlush,
		c.HotListSteal, c.HotListRemoteFree,
		c.OutOfMemory,
	}
}
