//go:build linux
// +build linux

// File: internal/arena/arena_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux backing: anonymous private mmap via golang.org/x/sys/unix.

package arena

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func newPlatform(size uint64) (*Arena, error) {
	pg := uint64(unix.Getpagesize())
	length := int((size + pg - 1) &^ (pg - 1))

	mem, err := unix.Mmap(-1, 0, length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "arena: mmap of %d bytes failed", length)
	}
	a := &Arena{mem: mem}
	a.release = func() error { return unix.Munmap(mem) }
	return a, nil
}
