// File: cmd/kallocbench/main.go
// kallocbench drives the allocator's control surface against a synthetic
// machine and reports per-CPU and global counters.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-kalloc/control"
	"github.com/momentics/hioload-kalloc/fake"
	"github.com/momentics/hioload-kalloc/kalloc"
)

type options struct {
	memMB   int
	nodes   int
	cpus    int // per node
	batch   int
	rounds  int
	balance bool
	memset  bool
	hot     int
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "kallocbench",
		Short: "Benchmark the NUMA-aware physical page allocator on a synthetic machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
		SilenceUsage: true,
	}
	cmd.Flags().IntVar(&opts.memMB, "mem", 256, "machine memory in MiB")
	cmd.Flags().IntVar(&opts.nodes, "nodes", 2, "NUMA nodes")
	cmd.Flags().IntVar(&opts.cpus, "cpus", 2, "CPUs per node")
	cmd.Flags().IntVar(&opts.batch, "batch", 512, "pages per bulk op")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 16, "alloc/free rounds")
	cmd.Flags().BoolVar(&opts.balance, "balance", false, "use the mempool/balancer routing mode")
	cmd.Flags().BoolVar(&opts.memset, "memset", false, "poison and verify memory contents")
	cmd.Flags().IntVar(&opts.hot, "hot-pages", 128, "per-CPU hot page cache depth")

	klog.InitFlags(nil)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg := kalloc.DefaultConfig()
	cfg.MemBytes = uint64(opts.memMB) << 20
	cfg.LoadBalance = opts.balance
	cfg.AllocMemset = opts.memset
	cfg.HotPages = opts.hot

	k, err := kalloc.New(cfg)
	if err != nil {
		return err
	}
	defer k.Release()

	err = k.InitKalloc(
		fake.FlatFirmware(cfg.MemBytes),
		fake.UniformTopology(opts.nodes, opts.cpus, cfg.MemBytes))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if err := k.Counters().Register(reg); err != nil {
		return err
	}

	fmt.Printf("machine: %d MiB, %d nodes x %d cpus, %d buddies, %d MiB managed\n",
		opts.memMB, opts.nodes, opts.cpus, k.Buddies(), k.ManagedBytes()>>20)
	for cpu, order := range k.StealOrders() {
		fmt.Printf("  cpu %d steal order %s\n", cpu, order)
	}

	bench := control.NewBench(k)
	defer bench.Close()

	ncore := opts.nodes * opts.cpus
	if _, err := bench.Do(ncore, opts.batch, control.OpConfigure); err != nil {
		return err
	}
	for r := 0; r < opts.rounds; r++ {
		if _, err := bench.Do(ncore, opts.batch, control.OpAlloc); err != nil {
			return err
		}
		if _, err := bench.Do(ncore, opts.batch, control.OpFree); err != nil {
			return err
		}
	}

	fmt.Printf("%-6s %10s %10s %10s %10s %10s %14s\n",
		"cpu", "nop", "nrun", "nalloc", "nfree", "ndelay", "ncycles")
	for i, s := range bench.Snapshot() {
		fmt.Printf("cpu%-3d %10d %10d %10d %10d %10d %14d\n",
			i, s.NOp, s.NRun, s.NAlloc, s.NFree, s.NDelay, s.NCycles)
	}

	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			fmt.Printf("%s %v\n", f.GetName(), m.GetCounter().GetValue())
		}
	}
	return nil
}
