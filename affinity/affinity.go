// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity and CPU identification.
// Platform-specific implementations are located in separate files
// (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

// SetAffinity pins the current OS thread to a given logical CPU on
// supported platforms. On unsupported platforms returns an error.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// CurrentCPU returns the logical CPU the calling thread runs on, or 0
// when the platform cannot tell. Combined with SetAffinity and a locked
// OS thread, this is the library's default CPUAccessor.
func CurrentCPU() int {
	return currentCPUPlatform()
}
