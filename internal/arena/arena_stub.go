//go:build !linux
// +build !linux

// File: internal/arena/arena_stub.go
// Author: momentics <momentics@gmail.com>
//
// Heap backing for platforms without the mmap path.

package arena

func newPlatform(size uint64) (*Arena, error) {
	return &Arena{mem: make([]byte, size)}, nil
}
