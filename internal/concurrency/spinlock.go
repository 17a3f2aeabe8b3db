// File: internal/concurrency/spinlock.go
// Package concurrency provides the low-level synchronization primitives
// of the allocator core.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"runtime"
	"sync/atomic"
)

// Spinlock is a test-and-set spin lock. It stands in for the kernel's
// interrupt-disabling spin lock: critical sections under it are short
// and never block, so spinning with an occasional yield beats parking.
//
// The zero value is an unlocked lock.
type Spinlock struct {
	state atomic.Uint32
}

// Lock spins until the lock is acquired.
func (l *Spinlock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		for l.state.Load() != 0 {
			runtime.Gosched()
		}
	}
}

// TryLock acquires the lock without spinning; false if already held.
func (l *Spinlock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock.
func (l *Spinlock) Unlock() {
	l.state.Store(0)
}
