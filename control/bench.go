// File: control/bench.go
// Package control is the allocator's benchmark control surface: a
// device-file-like endpoint accepting (ncore, batch, op) triples and
// returning per-CPU statistics.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Each configured CPU gets a worker goroutine locked to an OS thread and
// pinned (best effort) to that CPU, so bulk ops exercise the allocator's
// per-CPU fast paths the way kernel threads would.

package control

import (
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-kalloc/affinity"
	"github.com/momentics/hioload-kalloc/api"
	"github.com/momentics/hioload-kalloc/kalloc"
)

// Op codes accepted by Do.
const (
	OpConfigure = 0 // reconfigure (ncore, batch)
	OpAlloc     = 1 // bulk page allocation
	OpFree      = 2 // bulk page free
)

// CPUStats is one worker's counters.
type CPUStats struct {
	NDelay  uint64 // allocations that came back empty
	NFree   uint64 // pages freed
	NRun    uint64 // ops completed
	NCycles uint64 // nanoseconds spent inside ops
	NOp     uint64 // ops received
	NAlloc  uint64 // pages allocated
}

type opRequest struct {
	code  int
	batch int
	done  *sync.WaitGroup
}

// worker drives one CPU's share of the benchmark load.
type worker struct {
	id    int
	alloc *kalloc.Allocator

	mu     sync.Mutex
	cond   *sync.Cond
	ops    *queue.Queue // pending opRequest, guarded by mu
	closed bool
	stats  CPUStats
	done   chan struct{}

	// pages is only touched by the worker goroutine.
	pages []api.PAddr
}

func newWorker(id int, alloc *kalloc.Allocator) *worker {
	w := &worker{id: id, alloc: alloc, ops: queue.New(), done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *worker) submit(req opRequest) {
	w.mu.Lock()
	w.ops.Add(req)
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *worker) snapshot() CPUStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *worker) stop() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *worker) run() {
	defer close(w.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := affinity.SetAffinity(w.id); err != nil {
		klog.V(2).Infof("bench: worker %d not pinned: %v", w.id, err)
	}
	for {
		w.mu.Lock()
		for w.ops.Length() == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.ops.Length() == 0 && w.closed {
			w.mu.Unlock()
			w.drain()
			return
		}
		req := w.ops.Remove().(opRequest)
		w.mu.Unlock()

		delta := w.exec(req)
		w.mu.Lock()
		w.stats.NOp += delta.NOp
		w.stats.NAlloc += delta.NAlloc
		w.stats.NFree += delta.NFree
		w.stats.NDelay += delta.NDelay
		w.stats.NRun += delta.NRun
		w.stats.NCycles += delta.NCycles
		w.mu.Unlock()
		req.done.Done()
	}
}

func (w *worker) exec(req opRequest) CPUStats {
	delta := CPUStats{NOp: 1}
	start := time.Now()
	switch req.code {
	case OpAlloc:
		for i := 0; i < req.batch; i++ {
			p, ok := w.alloc.Alloc("bench", api.PageSize)
			if !ok {
				delta.NDelay++
				continue
			}
			w.pages = append(w.pages, p)
			delta.NAlloc++
		}
	case OpFree:
		n := min(req.batch, len(w.pages))
		for i := 0; i < n; i++ {
			p := w.pages[len(w.pages)-1]
			w.pages = w.pages[:len(w.pages)-1]
			w.alloc.Free(p, api.PageSize)
			delta.NFree++
		}
	}
	delta.NRun = 1
	delta.NCycles = uint64(time.Since(start).Nanoseconds())
	return delta
}

// drain returns any pages the worker still holds.
func (w *worker) drain() {
	for _, p := range w.pages {
		w.alloc.Free(p, api.PageSize)
	}
	w.pages = nil
}

// Bench is the control surface over one allocator.
type Bench struct {
	alloc  *kalloc.Allocator
	cfg    *ConfigStore
	probes *DebugProbes

	mu      sync.Mutex
	workers []*worker
}

var _ api.Control = (*Bench)(nil)

// NewBench creates an idle control surface; OpConfigure starts workers.
func NewBench(k *kalloc.Allocator) *Bench {
	b := &Bench{
		alloc:  k,
		cfg:    NewConfigStore(BenchConfig{NCore: 1, Batch: 32}),
		probes: NewDebugProbes(),
	}
	b.probes.RegisterProbe("kmem", func() any { return k.DumpState() })
	b.probes.RegisterProbe("stealorder", func() any { return k.StealOrders() })
	return b
}

// Do executes one control request and returns the per-CPU stats of every
// configured worker.
func (b *Bench) Do(ncore, batch, op int) ([]CPUStats, error) {
	if ncore <= 0 {
		return nil, errors.Errorf("bench: ncore %d out of range", ncore)
	}
	switch op {
	case OpConfigure:
		b.configure(ncore, batch)
		return b.Snapshot(), nil
	case OpAlloc, OpFree:
		b.mu.Lock()
		if ncore > len(b.workers) {
			b.mu.Unlock()
			return nil, errors.Errorf("bench: %d cores requested, %d configured", ncore, len(b.workers))
		}
		targets := b.workers[:ncore]
		b.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(len(targets))
		for _, w := range targets {
			w.submit(opRequest{code: op, batch: batch, done: &wg})
		}
		wg.Wait()
		return b.Snapshot(), nil
	default:
		return nil, errors.Errorf("bench: unknown op %d", op)
	}
}

func (b *Bench) configure(ncore, batch int) {
	b.mu.Lock()
	old := b.workers
	b.workers = make([]*worker, ncore)
	for i := range b.workers {
		b.workers[i] = newWorker(i, b.alloc)
	}
	b.mu.Unlock()
	for _, w := range old {
		w.stop()
	}
	for _, w := range old {
		<-w.done
	}
	b.cfg.Set(BenchConfig{NCore: ncore, Batch: batch})
}

// Snapshot returns every worker's counters.
func (b *Bench) Snapshot() []CPUStats {
	b.mu.Lock()
	workers := make([]*worker, len(b.workers))
	copy(workers, b.workers)
	b.mu.Unlock()

	out := make([]CPUStats, len(workers))
	for i, w := range workers {
		out[i] = w.snapshot()
	}
	return out
}

// Close stops all workers, waiting until their pages are returned.
func (b *Bench) Close() {
	b.mu.Lock()
	workers := b.workers
	b.workers = nil
	b.mu.Unlock()
	for _, w := range workers {
		w.stop()
	}
	for _, w := range workers {
		<-w.done
	}
}

// GetConfig implements api.Control.
func (b *Bench) GetConfig() map[string]any {
	cfg := b.cfg.Get()
	return map[string]any{"ncore": cfg.NCore, "batch": cfg.Batch}
}

// SetConfig implements api.Control: recognized keys are ncore and batch.
func (b *Bench) SetConfig(cfg map[string]any) error {
	cur := b.cfg.Get()
	ncore, batch := cur.NCore, cur.Batch
	if v, ok := cfg["ncore"]; ok {
		n, ok := v.(int)
		if !ok {
			return errors.Errorf("bench: ncore must be an int, got %T", v)
		}
		ncore = n
	}
	if v, ok := cfg["batch"]; ok {
		n, ok := v.(int)
		if !ok {
			return errors.Errorf("bench: batch must be an int, got %T", v)
		}
		batch = n
	}
	_, err := b.Do(ncore, batch, OpConfigure)
	return err
}

// Stats implements api.Control.
func (b *Bench) Stats() map[string]any {
	out := make(map[string]any)
	for i, s := range b.Snapshot() {
		out[cpuKey(i)] = s
	}
	return out
}

// OnReload implements api.Control.
func (b *Bench) OnReload(fn func()) {
	b.cfg.OnChange(func(BenchConfig) { fn() })
}

// RegisterDebugProbe implements api.Control.
func (b *Bench) RegisterDebugProbe(name string, fn func() any) {
	b.probes.RegisterProbe(name, fn)
}

// DumpState returns the output of every registered probe.
func (b *Bench) DumpState() map[string]any {
	return b.probes.DumpState()
}

func cpuKey(i int) string {
	return "cpu" + strconv.Itoa(i)
}
