// File: fake/cpu.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync/atomic"

	"github.com/momentics/hioload-kalloc/api"
)

// CPU is a settable CPUAccessor: tests move the "current CPU" by hand.
type CPU struct {
	id atomic.Int64
}

var _ api.CPUAccessor = (*CPU)(nil)

// NewCPU returns an accessor pinned to id.
func NewCPU(id int) *CPU {
	c := &CPU{}
	c.id.Store(int64(id))
	return c
}

// Set moves the current CPU.
func (c *CPU) Set(id int) {
	c.id.Store(int64(id))
}

// CurrentCPU implements api.CPUAccessor.
func (c *CPU) CurrentCPU() int {
	return int(c.id.Load())
}
