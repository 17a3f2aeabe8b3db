// File: kalloc/bench_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package kalloc_test

import (
	"testing"

	"github.com/momentics/hioload-kalloc/api"
	"github.com/momentics/hioload-kalloc/fake"
	"github.com/momentics/hioload-kalloc/kalloc"
)

func benchAllocator(b *testing.B, cpu api.CPUAccessor) *kalloc.Allocator {
	b.Helper()
	cfg := kalloc.DefaultConfig()
	cfg.MemBytes = 128 << 20
	cfg.CPU = cpu
	k, err := kalloc.New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = k.Release() })
	err = k.InitKalloc(fake.FlatFirmware(cfg.MemBytes), fake.UniformTopology(2, 2, cfg.MemBytes))
	if err != nil {
		b.Fatal(err)
	}
	return k
}

func BenchmarkPageAllocFree(b *testing.B) {
	k := benchAllocator(b, fake.NewCPU(0))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, ok := k.Alloc("", api.PageSize)
		if !ok {
			b.Fatal("out of memory")
		}
		k.Free(p, api.PageSize)
	}
}

func BenchmarkPageAllocFreeParallel(b *testing.B) {
	k := benchAllocator(b, kalloc.AffinityCPU{})
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			p, ok := k.Alloc("", api.PageSize)
			if !ok {
				b.Fatal("out of memory")
			}
			k.Free(p, api.PageSize)
		}
	})
}

func BenchmarkLargeAllocFree(b *testing.B) {
	k := benchAllocator(b, fake.NewCPU(0))
	size := 8 * api.PageSize
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, ok := k.Alloc("", size)
		if !ok {
			b.Fatal("out of memory")
		}
		k.Free(p, size)
	}
}
