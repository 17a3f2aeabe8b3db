// Package api
// Author: momentics <momentics@gmail.com>
//
// Allocation labelling contract for tracing backends.

package api

// Tracer labels live allocations for tracing tools. Calls are no-ops
// unless a collector is attached.
type Tracer interface {
	// LabelBlock tags a just-allocated block with its requesting subsystem.
	LabelBlock(p PAddr, size uint64, name string)

	// UnlabelBlock drops the tag when the block is freed.
	UnlabelBlock(p PAddr)
}

// NopTracer returns a Tracer that discards all labels.
func NopTracer() Tracer { return nopTracer{} }

type nopTracer struct{}

func (nopTracer) LabelBlock(PAddr, uint64, string) {}
func (nopTracer) UnlabelBlock(PAddr)               {}
