package nvidia

import (
	"nvfb/device"
	"nvfb/device/video/nvidia/nvreg"
)

// VgaIO provides access to the adapter registers. MMIO holds the control
// registers and the legacy VGA ports; VRAM is the linear framebuffer.
// Every access is passed straight through to the underlying region.
type VgaIO struct {
	mmio device.Region
	vram device.Region
}

// NewVgaIO returns a VgaIO over the supplied register and memory windows.
func NewVgaIO(mmio, vram device.Region) *VgaIO {
	return &VgaIO{mmio: mmio, vram: vram}
}

// Reg8 reads the byte register at off.
func (v *VgaIO) Reg8(off uint32) uint8 { return v.mmio.Read8(off) }

// Reg16 reads the 16-bit register at off.
func (v *VgaIO) Reg16(off uint32) uint16 { return v.mmio.Read16(off) }

// Reg32 reads the 32-bit register at off.
func (v *VgaIO) Reg32(off uint32) uint32 { return v.mmio.Read32(off) }

// SetReg8 writes the byte register at off.
func (v *VgaIO) SetReg8(off uint32, val uint8) { v.mmio.Write8(off, val) }

// SetReg16 writes the 16-bit register at off.
func (v *VgaIO) SetReg16(off uint32, val uint16) { v.mmio.Write16(off, val) }

// SetReg32 writes the 32-bit register at off.
func (v *VgaIO) SetReg32(off uint32, val uint32) { v.mmio.Write32(off, val) }

// VideoRAM returns the framebuffer window.
func (v *VgaIO) VideoRAM() device.Region { return v.vram }

// Indexed latches index into indexPort and reads the register from dataPort.
func (v *VgaIO) Indexed(indexPort, dataPort uint32, index uint8) uint8 {
	v.mmio.Write8(indexPort, index)
	return v.mmio.Read8(dataPort)
}

// SetIndexed latches index into indexPort and writes val to dataPort.
func (v *VgaIO) SetIndexed(indexPort, dataPort uint32, index, val uint8) {
	v.mmio.Write8(indexPort, index)
	v.mmio.Write8(dataPort, val)
}

// CRT reads a CRT controller register.
func (v *VgaIO) CRT(index uint8) uint8 {
	return v.Indexed(nvreg.CRTCIndex, nvreg.CRTCData, index)
}

// SetCRT writes a CRT controller register.
func (v *VgaIO) SetCRT(index, val uint8) {
	v.SetIndexed(nvreg.CRTCIndex, nvreg.CRTCData, index, val)
}

// SEQ reads a sequencer register.
func (v *VgaIO) SEQ(index uint8) uint8 {
	return v.Indexed(nvreg.SeqIndex, nvreg.SeqData, index)
}

// SetSEQ writes a sequencer register.
func (v *VgaIO) SetSEQ(index, val uint8) {
	v.SetIndexed(nvreg.SeqIndex, nvreg.SeqData, index, val)
}

// GRPH reads a graphics controller register.
func (v *VgaIO) GRPH(index uint8) uint8 {
	return v.Indexed(nvreg.GrphIndex, nvreg.GrphData, index)
}

// SetGRPH writes a graphics controller register.
func (v *VgaIO) SetGRPH(index, val uint8) {
	v.SetIndexed(nvreg.GrphIndex, nvreg.GrphData, index, val)
}

// ATT reads an attribute controller register. The status read resets the
// index/data flip-flop; the palette address source bit is kept set so the
// display is not blanked.
func (v *VgaIO) ATT(index uint8) uint8 {
	v.Stat()
	v.mmio.Write8(nvreg.AttrIndex, index|nvreg.AttrPAS)
	return v.mmio.Read8(nvreg.AttrDataRead)
}

// SetATT writes an attribute controller register.
func (v *VgaIO) SetATT(index, val uint8) {
	v.Stat()
	v.mmio.Write8(nvreg.AttrIndex, index|nvreg.AttrPAS)
	v.mmio.Write8(nvreg.AttrIndex, val)
}

// Misc reads the miscellaneous output register.
func (v *VgaIO) Misc() uint8 { return v.mmio.Read8(nvreg.MiscRead) }

// SetMisc writes the miscellaneous output register.
func (v *VgaIO) SetMisc(val uint8) { v.mmio.Write8(nvreg.MiscWrite, val) }

// Stat returns input status register #1.
func (v *VgaIO) Stat() uint8 { return v.mmio.Read8(nvreg.InputStatus1) }

// DACMask reads the palette mask.
func (v *VgaIO) DACMask() uint8 { return v.mmio.Read8(nvreg.PalMask) }

// SetDACMask writes the palette mask.
func (v *VgaIO) SetDACMask(mask uint8) { v.mmio.Write8(nvreg.PalMask, mask) }

// SetDACWriteIndex selects the palette entry written by the next three
// SetDACData calls.
func (v *VgaIO) SetDACWriteIndex(index uint8) { v.mmio.Write8(nvreg.PalWriteIndex, index) }

// SetDACReadIndex selects the palette entry returned by the next three
// DACData calls.
func (v *VgaIO) SetDACReadIndex(index uint8) { v.mmio.Write8(nvreg.PalReadIndex, index) }

// DACData reads the next color component of the selected palette entry.
func (v *VgaIO) DACData() uint8 { return v.mmio.Read8(nvreg.PalData) }

// SetDACData writes the next color component of the selected palette entry.
func (v *VgaIO) SetDACData(val uint8) { v.mmio.Write8(nvreg.PalData, val) }

// Unlock enables writes to the extended CRTC registers and clears the
// write protection of CRTC registers 0-7.
func (v *VgaIO) Unlock() {
	v.SetCRT(nvreg.CRTCLock, nvreg.UnlockKey)
	v.SetCRT(nvreg.CRTCVSyncEnd, v.CRT(nvreg.CRTCVSyncEnd)&^nvreg.CRTCProtect)
}

// Lock disables writes to the extended CRTC registers.
func (v *VgaIO) Lock() {
	v.SetCRT(nvreg.CRTCLock, nvreg.LockKey)
}
