// File: fake/firmware.go
// Package fake provides synthetic firmware maps, topologies and CPU
// accessors for tests and benchmarks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import "github.com/momentics/hioload-kalloc/api"

// Firmware is a canned firmware memory map.
type Firmware struct {
	Recs []api.FirmwareRecord
	Err  error
}

var _ api.FirmwareMap = (*Firmware)(nil)

// Records implements api.FirmwareMap.
func (f *Firmware) Records() ([]api.FirmwareRecord, error) {
	return f.Recs, f.Err
}

// FlatFirmware describes a machine whose memory is one usable region
// [0, bytes).
func FlatFirmware(bytes uint64) *Firmware {
	return &Firmware{Recs: []api.FirmwareRecord{
		{Base: 0, Length: bytes, Usable: true},
	}}
}
