// File: fake/topology.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import "github.com/momentics/hioload-kalloc/api"

// Topology is a canned NUMA layout.
type Topology struct {
	Ns  []api.NUMANode
	Err error
}

var _ api.Topology = (*Topology)(nil)

// Nodes implements api.Topology.
func (t *Topology) Nodes() ([]api.NUMANode, error) {
	return t.Ns, t.Err
}

// UniformTopology splits [0, memBytes) evenly across nodes, each with
// cpusPerNode CPUs numbered consecutively across nodes.
func UniformTopology(nodes, cpusPerNode int, memBytes uint64) *Topology {
	t := &Topology{}
	per := memBytes / uint64(nodes)
	for n := 0; n < nodes; n++ {
		node := api.NUMANode{ID: n}
		for c := 0; c < cpusPerNode; c++ {
			node.CPUs = append(node.CPUs, n*cpusPerNode+c)
		}
		node.Mems = []api.MemRange{{Base: uint64(n) * per, Length: per}}
		t.Ns = append(t.Ns, node)
	}
	return t
}
