// Package control
// Author: momentics <momentics@gmail.com>
//
// Benchmark control surface, configuration store, and debug introspection
// layer for hioload-kalloc.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Change observers for reconfiguration
//   - Per-CPU benchmark workers pinned to their cores
//   - State export, debug hooks, and probe registration
package control
