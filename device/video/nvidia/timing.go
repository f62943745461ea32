package nvidia

import (
	"nvfb/device/video/nvidia/nvreg"
)

// crtcField is a masked CRTC write. Bits outside mask keep their value.
type crtcField struct {
	index uint8
	value uint8
	mask  uint8
}

// crtcTiming holds the CRTC representation of a display mode before it is
// split into register fields.
type crtcTiming struct {
	hTotal, hDispEnd, hBlankStart, hBlankEnd, hSyncStart, hSyncEnd uint32
	vTotal, vDispEnd, vBlankStart, vBlankEnd, vSyncStart, vSyncEnd uint32
	lineCompare                                                  uint32
}

// lineCompareOff keeps the memory address counter from being reset.
const lineCompareOff = 0x3ff

func crtcTimingFor(mode DisplayMode) crtcTiming {
	t := crtcTiming{
		hTotal:     mode.HTotal/8 - 5,
		hDispEnd:   mode.Width/8 - 1,
		hSyncStart: mode.HSyncStart / 8,
		hSyncEnd:   mode.HSyncEnd / 8,

		vTotal:     mode.VTotal - 2,
		vDispEnd:   mode.Height - 1,
		vSyncStart: mode.VSyncStart,
		vSyncEnd:   mode.VSyncEnd,

		lineCompare: lineCompareOff,
	}
	t.hBlankStart = t.hDispEnd
	t.hBlankEnd = t.hTotal + 4
	t.vBlankStart = t.vDispEnd
	t.vBlankEnd = t.vTotal + 1
	return t
}

// bit moves bit src of v to bit dst.
func bit(v uint32, src, dst uint) uint8 {
	return uint8((v >> src & 1) << dst)
}

// calcCRTCTiming returns the CRTC fields that encode mode. Values that do
// not fit the standard registers have their high bits spread over the
// overflow, maximum scan line, HEB, LSR and EBR registers.
func calcCRTCTiming(mode DisplayMode) []crtcField {
	t := crtcTimingFor(mode)

	overflow := bit(t.vTotal, 8, 0) |
		bit(t.vDispEnd, 8, 1) |
		bit(t.vSyncStart, 8, 2) |
		bit(t.vBlankStart, 8, 3) |
		bit(t.lineCompare, 8, 4) |
		bit(t.vTotal, 9, 5) |
		bit(t.vDispEnd, 9, 6) |
		bit(t.vSyncStart, 9, 7)

	maxScanLine := bit(t.vBlankStart, 9, 5) |
		bit(t.lineCompare, 9, 6)

	heb := bit(t.hTotal, 8, 0) |
		bit(t.hDispEnd, 8, 1) |
		bit(t.hBlankStart, 8, 2) |
		bit(t.hSyncStart, 8, 3) |
		bit(t.lineCompare, 8, 4)

	lsr := bit(t.vTotal, 10, 0) |
		bit(t.vDispEnd, 10, 1) |
		bit(t.vSyncStart, 10, 2) |
		bit(t.vBlankStart, 10, 3) |
		bit(t.hBlankEnd, 6, 4)

	ebr := bit(t.vTotal, 11, 0) |
		bit(t.vDispEnd, 11, 2) |
		bit(t.vSyncStart, 11, 4) |
		bit(t.vBlankStart, 11, 6)

	return []crtcField{
		{nvreg.CRTCHTotal, uint8(t.hTotal), 0xff},
		{nvreg.CRTCHDispEnd, uint8(t.hDispEnd), 0xff},
		{nvreg.CRTCHBlankStart, uint8(t.hBlankStart), 0xff},
		// Bit 7 enables vertical retrace register access.
		{nvreg.CRTCHBlankEnd, uint8(t.hBlankEnd&0x1f) | 0x80, 0xff},
		{nvreg.CRTCHSyncStart, uint8(t.hSyncStart), 0xff},
		{nvreg.CRTCHSyncEnd, uint8(t.hSyncEnd&0x1f) | uint8(t.hBlankEnd&0x20)<<2, 0xff},
		{nvreg.CRTCVTotal, uint8(t.vTotal), 0xff},
		{nvreg.CRTCOverflow, overflow, 0xff},
		{nvreg.CRTCPresetRowScan, 0, 0xff},
		{nvreg.CRTCMaxScanLine, maxScanLine, 0x7f},
		{nvreg.CRTCVSyncStart, uint8(t.vSyncStart), 0xff},
		// Keep bits 4-6 and leave CRTC 0-7 unprotected.
		{nvreg.CRTCVSyncEnd, uint8(t.vSyncEnd & 0x0f), 0x8f},
		{nvreg.CRTCVDispEnd, uint8(t.vDispEnd), 0xff},
		{nvreg.CRTCVBlankStart, uint8(t.vBlankStart), 0xff},
		{nvreg.CRTCVBlankEnd, uint8(t.vBlankEnd), 0xff},
		{nvreg.CRTCLineCompare, uint8(t.lineCompare), 0xff},
		{nvreg.CRTCHEB, heb, 0x1f},
		{nvreg.CRTCLSR, lsr, 0x3f},
		{nvreg.CRTCEBR, ebr, 0x55},
	}
}

// merge applies the field to the current register value.
func (f crtcField) merge(cur uint8) uint8 {
	return cur&^f.mask | f.value&f.mask
}

const (
	// largeScreenOff is set in CRTCRepaint1 for modes narrower than 1280
	// pixels.
	largeScreenOff = 0x04

	miscNegHSync = 0x40
	miscNegVSync = 0x80
)

// applyTiming programs the CRTC for mode. Every register is updated with a
// read-modify-write so bits that share a register with timing values are
// preserved.
func applyTiming(io *VgaIO, mode DisplayMode) {
	io.Unlock()

	for _, f := range calcCRTCTiming(mode) {
		io.SetCRT(f.index, f.merge(io.CRT(f.index)))
	}

	repaint1 := io.CRT(nvreg.CRTCRepaint1)
	if mode.Width >= 1280 {
		repaint1 &^= largeScreenOff
	} else {
		repaint1 |= largeScreenOff
	}
	io.SetCRT(nvreg.CRTCRepaint1, repaint1)

	io.SetMisc(syncPolarity(io.Misc(), mode.Flags))
}

func syncPolarity(misc uint8, flags ModeFlags) uint8 {
	misc |= miscNegHSync | miscNegVSync
	if flags&PositiveHSync != 0 {
		misc &^= miscNegHSync
	}
	if flags&PositiveVSync != 0 {
		misc &^= miscNegVSync
	}
	return misc
}

// setPitch programs the scan line pitch in units of 8 bytes.
func setPitch(io *VgaIO, bytesPerLine uint32) {
	offset := bytesPerLine / 8
	io.SetCRT(nvreg.CRTCPitchLow, uint8(offset))
	io.SetCRT(nvreg.CRTCRepaint0, io.CRT(nvreg.CRTCRepaint0)&0x1f|uint8((offset&0x700)>>3))
}

// pitch returns the scan line pitch in bytes.
func pitch(io *VgaIO) uint32 {
	offset := uint32(io.CRT(nvreg.CRTCPitchLow)) | uint32(io.CRT(nvreg.CRTCRepaint0)&0xe0)<<3
	return offset * 8
}

// setStartAddress sets the framebuffer offset of the first visible pixel.
func setStartAddress(io *VgaIO, ai *archInfo, addr uint32) {
	if ai.crtcStartAddr {
		// Address bits 2-17 go into the standard registers, bits 18-23
		// into REPAINT0 and HEB.
		io.SetCRT(nvreg.CRTCFBStartLow, uint8(addr>>2))
		io.SetCRT(nvreg.CRTCFBStartHigh, uint8(addr>>10))
		io.SetCRT(nvreg.CRTCRepaint0, io.CRT(nvreg.CRTCRepaint0)&0xe0|uint8(addr>>18)&0x1f)
		io.SetCRT(nvreg.CRTCHEB, io.CRT(nvreg.CRTCHEB)&0xdf|uint8(addr>>18)&0x20)
	} else {
		io.SetReg32(nvreg.NV10FBStart, addr&^3)
	}

	// The byte offset within the first dword goes into the pixel panning
	// register.
	io.SetATT(nvreg.AttrHorPixelPan, io.ATT(nvreg.AttrHorPixelPan)&0xf9|uint8(addr&3)<<1)
}

// startAddress is the inverse of setStartAddress.
func startAddress(io *VgaIO, ai *archInfo) uint32 {
	var addr uint32
	if ai.crtcStartAddr {
		addr = uint32(io.CRT(nvreg.CRTCFBStartLow))<<2 |
			uint32(io.CRT(nvreg.CRTCFBStartHigh))<<10 |
			uint32(io.CRT(nvreg.CRTCRepaint0)&0x1f)<<18 |
			uint32(io.CRT(nvreg.CRTCHEB)&0x20)<<18
	} else {
		addr = io.Reg32(nvreg.NV10FBStart) &^ 3
	}

	return addr | uint32(io.ATT(nvreg.AttrHorPixelPan)>>1&3)
}
