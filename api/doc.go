// Package api
// Author: momentics <momentics@gmail.com>
//
// Contracts of the hioload-kalloc physical page allocator: the buddy pool
// and balance pool capability sets, collaborator interfaces for firmware
// memory maps, NUMA topology and per-CPU identification, tracing and
// control surfaces, and the shared address/constant definitions.
package api
