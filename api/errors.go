// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values for hioload-kalloc.

package api

import "fmt"

// Init-time errors, plus ErrNotSupported for platform features such as
// CPU pinning. Runtime misuse (invalid free, poison corruption) is fatal
// and panics instead; allocation exhaustion is soft and reported through
// the Alloc ok result.
var (
	ErrNoFirmwareMap   = fmt.Errorf("firmware has no memory map")
	ErrTopologyMissing = fmt.Errorf("physical memory regions missing from NUMA map")
	ErrTooManyNodes    = fmt.Errorf("too many NUMA nodes")
	ErrTooManyBuddies  = fmt.Errorf("buddy allocator table overflow")
	ErrAlreadyInited   = fmt.Errorf("allocator already initialized")
	ErrNotSupported    = fmt.Errorf("operation not supported")
)
