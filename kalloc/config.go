// File: kalloc/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package kalloc

import (
	"github.com/momentics/hioload-kalloc/affinity"
	"github.com/momentics/hioload-kalloc/api"
	"github.com/momentics/hioload-kalloc/stats"
)

// Config holds parameters immutable per allocator instance.
type Config struct {
	MemBytes  uint64    // Size of the simulated physical memory arena
	KernelEnd api.PAddr // First address after the loaded kernel image

	HotPages    int  // Per-CPU hot page cache depth (even)
	AllocMemset bool // Poison freed/allocated memory and verify on alloc
	LoadBalance bool // Mempool/balancer routing instead of steal order
	BuddyPerCPU bool // One buddy subnode per CPU instead of one per node

	CPU      api.CPUAccessor // Identifies the executing CPU
	Tracer   api.Tracer      // Allocation labelling backend
	Counters *stats.Counters // Event counters
}

// DefaultConfig returns default configuration values: a 256 MiB machine
// with the kernel image ending at 2 MiB, per-CPU subnodes and a 128-entry
// hot page cache.
func DefaultConfig() *Config {
	return &Config{
		MemBytes:    256 << 20,
		KernelEnd:   2 << 20,
		HotPages:    128,
		AllocMemset: false,
		LoadBalance: false,
		BuddyPerCPU: true,
		CPU:         AffinityCPU{},
		Tracer:      api.NopTracer(),
		Counters:    stats.New(),
	}
}

// AffinityCPU is the default CPUAccessor: it asks the scheduler which CPU
// the calling thread runs on. Callers that pin their threads get stable
// locality; unpinned callers still get correct, if shifting, answers.
type AffinityCPU struct{}

// CurrentCPU implements api.CPUAccessor.
func (AffinityCPU) CurrentCPU() int { return affinity.CurrentCPU() }

var _ api.CPUAccessor = AffinityCPU{}
