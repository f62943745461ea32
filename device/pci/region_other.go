//go:build !linux

package pci

import "nvfb/kernel"

var errUnsupportedPlatform = &kernel.Error{Module: "pci", Message: "BAR mapping is only supported on linux"}

// MappedRegion is unavailable on this platform.
type MappedRegion struct{}

// Claim always fails on this platform.
func (d *Device) Claim(bar int) (*MappedRegion, error) { return nil, errUnsupportedPlatform }

func (r *MappedRegion) Release() error               { return nil }
func (r *MappedRegion) Size() uint32                 { return 0 }
func (r *MappedRegion) Read8(off uint32) uint8       { return 0 }
func (r *MappedRegion) Read16(off uint32) uint16     { return 0 }
func (r *MappedRegion) Read32(off uint32) uint32     { return 0 }
func (r *MappedRegion) Write8(off uint32, v uint8)   {}
func (r *MappedRegion) Write16(off uint32, v uint16) {}
func (r *MappedRegion) Write32(off uint32, v uint32) {}
