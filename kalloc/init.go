// File: kalloc/init.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// InitKalloc binds the firmware memory map to the NUMA topology: clean
// the map, carve out the kernel reservation and the page metadata array,
// construct node-local buddy allocators, assign them to CPUs and wire
// every CPU's steal order.

package kalloc

import (
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-kalloc/api"
	"github.com/momentics/hioload-kalloc/buddy"
	"github.com/momentics/hioload-kalloc/physmap"
)

// InitKalloc initializes the buddy pools from the firmware map and NUMA
// topology. It must be called exactly once, before any concurrent use;
// afterwards the global tables are read-only.
func (k *Allocator) InitKalloc(fw api.FirmwareMap, topo api.Topology) error {
	if k.kinited.Load() {
		return api.ErrAlreadyInited
	}

	if err := k.parseFirmware(fw); err != nil {
		return err
	}

	// Consider the first megabyte of memory unusable.
	k.mem.Remove(0, 1<<20)
	klog.V(1).Infof("kalloc: scrubbed memory map: %s", k.mem.String())

	// Round newend up to a page boundary so allocations are aligned.
	k.newend = api.PageRoundUp(k.newend)

	if err := k.placePageInfo(); err != nil {
		return err
	}

	// Remove memory before newend from the memory map.
	k.mem.Remove(0, uint64(k.newend))
	klog.V(1).Infof("kalloc: %d mbytes", k.mem.Bytes()/(1<<20))

	nodes, err := topo.Nodes()
	if err != nil {
		return errors.Wrap(err, "kalloc: topology discovery failed")
	}
	if len(nodes) == 0 {
		return errors.New("kalloc: topology has no nodes")
	}
	if len(nodes) > api.MaxNUMANodes {
		return errors.Wrapf(api.ErrTooManyNodes, "topology has %d nodes", len(nodes))
	}

	ncpu := 0
	for _, n := range nodes {
		for _, c := range n.CPUs {
			if c < 0 {
				return errors.Errorf("kalloc: node %d has negative CPU id %d", n.ID, c)
			}
			if c+1 > ncpu {
				ncpu = c + 1
			}
		}
	}
	if ncpu == 0 {
		return errors.New("kalloc: topology has no CPUs")
	}
	k.maxBuddies = ncpu + api.ExtraBuddies
	k.cpuMem = make([]cpuMem, ncpu)
	for i := range k.cpuMem {
		k.cpuMem[i].hot = make([]api.PAddr, k.hotPages)
	}

	// In balance mode every buddy manages a window spanning all of
	// physical memory, so blocks can migrate between pools during
	// BalanceMoveTo. Only the buddy's own subrange starts out free.
	wholeBase := api.PAddr(k.mem.Base())
	wholeSize := k.mem.Max() - k.mem.Base()

	for _, node := range nodes {
		// Intersect the node's memory ranges with the physical memory map
		// to get the available memory in the node.
		var nodeMem physmap.Map
		for _, mr := range node.Mems {
			nodeMem.Add(mr.Base, mr.Base+mr.Length)
		}
		nodeMem.Intersect(&k.mem)
		// Remove this node from the map, in case nodes overlap.
		k.mem.RemoveMap(&nodeMem)

		if k.cfg.AllocMemset {
			klog.V(1).Infof("kalloc: clearing node %d", node.ID)
			for _, r := range nodeMem.Regions() {
				k.arena.Fill(r.Base, r.End-r.Base, api.PoisonFree)
			}
		}

		// Divide the node into subnodes buddy allocators.
		subnodes := 1
		if k.cfg.BuddyPerCPU && len(node.CPUs) > 0 {
			subnodes = len(node.CPUs)
		}
		sizeLimit := (nodeMem.Bytes() + uint64(subnodes) - 1) / uint64(subnodes)

		nodeLow := len(k.buddies)
		for _, reg := range nodeMem.Regions() {
			base := api.PageRoundUp(api.PAddr(reg.Base))
			end := api.PageRoundDown(api.PAddr(reg.End))
			for base < end {
				subsize := min(uint64(end-base), sizeLimit)
				var b *buddy.Allocator
				if k.cfg.LoadBalance {
					b = buddy.New(wholeBase, wholeSize, base, subsize)
				} else {
					// The buddy can manage any page within this region.
					b = buddy.New(api.PAddr(reg.Base), reg.End-reg.Base, base, subsize)
				}
				if !b.Empty() {
					if len(k.buddies) == k.maxBuddies {
						return errors.Wrapf(api.ErrTooManyBuddies, "node %d", node.ID)
					}
					k.managedBytes += b.Stats().Free
					k.buddies = append(k.buddies, &lockedBuddy{alloc: b})
					k.mempools = append(k.mempools, &memPool{
						k:     k,
						buddy: len(k.buddies) - 1,
						base:  base,
						limit: base + api.PAddr(subsize),
					})
				}
				base += api.PAddr(subsize)
			}
		}
		nodeBuddies := len(k.buddies) - nodeLow
		if nodeBuddies == 0 {
			if len(node.CPUs) > 0 {
				klog.Warningf("kalloc: node %d has no usable memory; its CPUs will only steal", node.ID)
			}
			continue
		}

		// Associate buddies with CPUs: divvy the subnodes up round-robin.
		// With more CPUs than subnodes adjacent CPUs share a subnode.
		for ci, cpu := range node.CPUs {
			mem := &k.cpuMem[cpu]
			cpuLow := nodeLow + ci*nodeBuddies/len(node.CPUs)
			cpuHigh := nodeLow + (ci+1)*nodeBuddies/len(node.CPUs)
			if cpuLow == cpuHigh {
				cpuHigh++
			}
			// First allocate from the subnodes assigned to this CPU, then
			// steal from the whole node (a no-op with a single subnode).
			mem.steal.add(cpuLow, cpuHigh)
			mem.steal.add(nodeLow, nodeLow+nodeBuddies)
			mem.nhot = 0
			mem.pool = cpuLow
		}
	}

	if len(k.buddies) == 0 {
		return errors.New("kalloc: no usable memory")
	}

	// Finally, allow every CPU to steal from any buddy.
	for i := range k.cpuMem {
		k.cpuMem[i].steal.add(0, len(k.buddies))
	}
	if klog.V(2).Enabled() {
		for i := range k.cpuMem {
			klog.V(2).Infof("kalloc: cpu %d steal order %s", i, k.cpuMem[i].steal.String())
		}
	}

	if !k.mem.Empty() {
		return errors.Wrapf(api.ErrTopologyMissing, "left over: %s", k.mem.String())
	}

	k.sortPools()
	k.initSlabs()
	k.kinited.Store(true)
	return nil
}

// parseFirmware canonicalizes the firmware memory map: add and merge the
// usable records first, then remove the unusable ones. The order matters:
// a reserved record wins over every usable record it overlaps, wherever
// either appears in the list.
func (k *Allocator) parseFirmware(fw api.FirmwareMap) error {
	recs, err := fw.Records()
	if err != nil {
		return errors.Wrap(err, "kalloc: reading firmware map")
	}
	if len(recs) == 0 {
		return api.ErrNoFirmwareMap
	}

	var errs *multierror.Error
	for _, r := range recs {
		kind := "usable"
		if !r.Usable {
			kind = "reserved"
		}
		klog.V(1).Infof("e820: %#x-%#x %s", r.Base, r.Base+r.Length-1, kind)
		switch {
		case r.Length == 0:
			errs = multierror.Append(errs, errors.Errorf("zero-length record at %#x", r.Base))
		case r.Base+r.Length < r.Base:
			errs = multierror.Append(errs, errors.Errorf("record at %#x overflows", r.Base))
		case r.Base+r.Length > k.arena.Size():
			errs = multierror.Append(errs, errors.Errorf("record %#x-%#x beyond end of memory",
				r.Base, r.Base+r.Length))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return errors.Wrap(err, "kalloc: bad firmware map")
	}

	for _, r := range recs {
		if r.Usable {
			k.mem.Add(r.Base, r.Base+r.Length)
		}
	}
	for _, r := range recs {
		if !r.Usable {
			k.mem.Remove(r.Base, r.Base+r.Length)
		}
	}
	return nil
}

// placePageInfo sizes and places the page metadata array. Try allocating
// it at the current beginning of free memory: if that works, it only has
// to track the pages after itself. Otherwise re-size it to cover all of
// memory and punch its footprint out of the map.
func (k *Allocator) placePageInfo() error {
	max := k.mem.Max()
	k.pageInfoLen = 1 + (max-uint64(k.newend))/(pageInfoSize+api.PageSize)
	bytes := k.pageInfoLen * pageInfoSize

	pa, err := k.mem.Alloc(k.newend, bytes, 0)
	if err != nil {
		return errors.Wrap(err, "kalloc: placing page metadata array")
	}
	if pa == k.newend {
		// Only the physical pages following the array need tracking.
		k.newend = api.PageRoundUp(pa + api.PAddr(bytes))
		k.pageInfoBase = k.newend
	} else {
		klog.V(1).Info("kalloc: first memory hole too small for page metadata array")
		k.pageInfoLen = 1 + max/api.PageSize
		bytes = k.pageInfoLen * pageInfoSize
		pa, err = k.mem.Alloc(k.newend, bytes, 0)
		if err != nil {
			return errors.Wrap(err, "kalloc: placing page metadata array")
		}
		k.pageInfoBase = 0
		// Mark the array as a hole so the buddies below don't claim it.
		k.mem.Remove(uint64(pa), uint64(pa)+bytes)
	}
	k.pageInfo = make([]PageInfo, k.pageInfoLen)
	return nil
}

// sortPools builds the limit-sorted index used by kfreePool's binary
// search. Home ranges are disjoint, so sorting by limit is sufficient.
func (k *Allocator) sortPools() {
	k.poolsByLimit = make([]int, len(k.mempools))
	for i := range k.poolsByLimit {
		k.poolsByLimit[i] = i
	}
	sort.Slice(k.poolsByLimit, func(a, b int) bool {
		return k.mempools[k.poolsByLimit[a]].limit < k.mempools[k.poolsByLimit[b]].limit
	})
}
