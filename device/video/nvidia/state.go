package nvidia

import (
	"fmt"
	"strings"

	"nvfb/device/video/nvidia/nvreg"
)

// extCRTC lists the extended CRTC registers captured by VgaState, in the
// order they are restored.
var extCRTC = [...]uint8{
	nvreg.CRTCRepaint0,
	nvreg.CRTCRepaint1,
	nvreg.CRTCArb0,
	nvreg.CRTCArb1,
	nvreg.CRTCLSR,
	nvreg.CRTCPixel,
	nvreg.CRTCHEB,
	nvreg.CRTCCurCtl0,
	nvreg.CRTCCurCtl1,
	nvreg.CRTCCurCtl2,
	nvreg.CRTCEBR,
}

// VgaState is a snapshot of the adapter's display registers: the standard
// VGA register blocks, the palette, the extended CRTC registers and the
// 32-bit control registers that affect the display.
type VgaState struct {
	Seq     [nvreg.NumSeq]uint8
	CRTC    [nvreg.NumStdCRTC]uint8
	Grph    [nvreg.NumGrph]uint8
	Attr    [nvreg.NumAttr]uint8
	Misc    uint8
	PalMask uint8
	Palette [256][3]uint8

	// Ext holds the extended CRTC registers in extCRTC order.
	Ext [len(extCRTC)]uint8

	PLLSelect    uint32
	PixelPLL     uint32
	DACGenCtrl   uint32
	CursorConfig uint32
	CursorAddr   uint32 // NV10 and later
	FBStart      uint32 // NV10 and later
	FBConfig     uint32
	PowerUp      uint32

	// AccelOffsets and AccelPitches are the acceleration engine per-buffer
	// offset and pitch registers; which registers they map to depends on
	// the architecture.
	AccelOffsets []uint32
	AccelPitches []uint32
}

// ext returns a pointer to the captured value of an extended CRTC register.
func (s *VgaState) ext(index uint8) *uint8 {
	for i, reg := range extCRTC {
		if reg == index {
			return &s.Ext[i]
		}
	}
	panic(fmt.Sprintf("nvidia: CRTC 0x%02x is not part of the saved state", index))
}

// SaveFromHardware captures the current register state. Only index latches
// are written.
func (s *VgaState) SaveFromHardware(io *VgaIO, arch Architecture) error {
	ai, err := arch.info()
	if err != nil {
		return err
	}

	s.Misc = io.Misc()
	for i := range s.Seq {
		s.Seq[i] = io.SEQ(uint8(i))
	}
	for i := range s.CRTC {
		s.CRTC[i] = io.CRT(uint8(i))
	}
	for i, reg := range extCRTC {
		s.Ext[i] = io.CRT(reg)
	}
	for i := range s.Grph {
		s.Grph[i] = io.GRPH(uint8(i))
	}
	for i := range s.Attr {
		s.Attr[i] = io.ATT(uint8(i))
	}

	s.PalMask = io.DACMask()
	io.SetDACReadIndex(0)
	for i := range s.Palette {
		for c := range s.Palette[i] {
			s.Palette[i][c] = io.DACData()
		}
	}

	s.PLLSelect = io.Reg32(nvreg.PLLSelect)
	s.PixelPLL = io.Reg32(nvreg.PixelPLL)
	s.DACGenCtrl = io.Reg32(nvreg.DACGenCtrl)
	s.CursorConfig = io.Reg32(nvreg.CursorConfig)
	if !ai.crtcStartAddr {
		s.CursorAddr = io.Reg32(nvreg.NV10CursorAddr)
		s.FBStart = io.Reg32(nvreg.NV10FBStart)
	}
	s.FBConfig = io.Reg32(nvreg.FBConfig0)
	s.PowerUp = io.Reg32(nvreg.PwrUpCtrl)

	s.AccelOffsets = readRegs(io, ai.offsetRegs)
	s.AccelPitches = readRegs(io, ai.pitchRegs)
	return nil
}

func readRegs(io *VgaIO, regs []uint32) []uint32 {
	vals := make([]uint32, len(regs))
	for i, reg := range regs {
		vals[i] = io.Reg32(reg)
	}
	return vals
}

// RestoreToHardware writes the state back. The sequencer is held in
// synchronous reset while it is reprogrammed and CRTC 0-7 are written with
// the protect bit cleared; the saved protect bit is restored last.
func (s *VgaState) RestoreToHardware(io *VgaIO, arch Architecture) error {
	ai, err := arch.info()
	if err != nil {
		return err
	}

	io.Unlock()
	io.SetMisc(s.Misc)

	io.SetSEQ(nvreg.SeqReset, 0x01)
	for i := 1; i < len(s.Seq); i++ {
		io.SetSEQ(uint8(i), s.Seq[i])
	}
	io.SetSEQ(nvreg.SeqReset, s.Seq[nvreg.SeqReset])

	io.SetCRT(nvreg.CRTCVSyncEnd, s.CRTC[nvreg.CRTCVSyncEnd]&^nvreg.CRTCProtect)
	for i := range s.CRTC {
		val := s.CRTC[i]
		if i == nvreg.CRTCVSyncEnd {
			val &^= nvreg.CRTCProtect
		}
		io.SetCRT(uint8(i), val)
	}
	for i, reg := range extCRTC {
		io.SetCRT(reg, s.Ext[i])
	}
	io.SetCRT(nvreg.CRTCVSyncEnd, s.CRTC[nvreg.CRTCVSyncEnd])

	for i := range s.Grph {
		io.SetGRPH(uint8(i), s.Grph[i])
	}
	for i := range s.Attr {
		io.SetATT(uint8(i), s.Attr[i])
	}

	io.SetDACMask(s.PalMask)
	io.SetDACWriteIndex(0)
	for i := range s.Palette {
		for c := range s.Palette[i] {
			io.SetDACData(s.Palette[i][c])
		}
	}

	io.Lock()

	io.SetReg32(nvreg.PLLSelect, s.PLLSelect)
	io.SetReg32(nvreg.PixelPLL, s.PixelPLL)
	io.SetReg32(nvreg.DACGenCtrl, s.DACGenCtrl)
	io.SetReg32(nvreg.CursorConfig, s.CursorConfig)
	if !ai.crtcStartAddr {
		io.SetReg32(nvreg.NV10CursorAddr, s.CursorAddr)
		io.SetReg32(nvreg.NV10FBStart, s.FBStart)
	}
	io.SetReg32(nvreg.FBConfig0, s.FBConfig)
	io.SetReg32(nvreg.PwrUpCtrl, s.PowerUp)

	if len(s.AccelOffsets) != len(ai.offsetRegs) || len(s.AccelPitches) != len(ai.pitchRegs) {
		return fmt.Errorf("nvidia: saved acceleration registers do not match %s", arch)
	}
	for i, reg := range ai.offsetRegs {
		io.SetReg32(reg, s.AccelOffsets[i])
	}
	for i, reg := range ai.pitchRegs {
		io.SetReg32(reg, s.AccelPitches[i])
	}

	return nil
}

// Standard VGA graphics mode register values.
var (
	graphicsSeq  = [nvreg.NumSeq]uint8{0x03, 0x01, 0x0f, 0x00, 0x0e}
	graphicsGrph = [nvreg.NumGrph]uint8{0x00, 0x00, 0x00, 0x00, 0x00, 0x40, 0x05, 0x0f, 0xff}
)

const (
	// miscGraphics selects color I/O addressing, enables video RAM and
	// selects the external (PLL) clock.
	miscGraphics = 0x2f

	seqScreenOff = 0x20
	powerUpAll   = 0x13111111

	// DACGenCtrl values; 16 bpp additionally selects the 565 layout.
	dacGenCtrlDefault = 0x00100100
	dacGenCtrl565     = 0x00101100

	// cursorFormat32x32 selects a 32x32 A1R5G5B5 cursor.
	cursorFormat32x32 = 0x02000100

	pixelDepthMask = 0x03
)

// pixelDepthCode returns the CRTC pixel register depth field for bpp.
func pixelDepthCode(bpp int) (uint8, error) {
	switch bpp {
	case 8:
		return 1, nil
	case 15, 16:
		return 2, nil
	case 32:
		return 3, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedDepth, bpp)
}

// CalcForConfiguration replaces the state with the one needed to display
// cfg. The current register contents are read only to preserve bits that do
// not depend on the mode. pll is the clock solution for cfg's pixel clock.
func (s *VgaState) CalcForConfiguration(cfg *Configuration, arch Architecture, io *VgaIO, pll ClockSolution) error {
	ai, err := arch.info()
	if err != nil {
		return err
	}
	depth, err := pixelDepthCode(cfg.BitsPerPixel)
	if err != nil {
		return err
	}

	mode := cfg.Mode
	bytesPerLine := cfg.BytesPerLine()
	offset := bytesPerLine / 8

	// Keep the sequencer in its current reset state and the display off
	// if it is off now; DPMS state is restored separately.
	s.Seq = graphicsSeq
	s.Seq[nvreg.SeqReset] = io.SEQ(nvreg.SeqReset)
	s.Seq[nvreg.SeqClockMode] |= io.SEQ(nvreg.SeqClockMode) & seqScreenOff

	for i := range s.CRTC {
		s.CRTC[i] = io.CRT(uint8(i))
	}
	for i, reg := range extCRTC {
		s.Ext[i] = io.CRT(reg)
	}

	for _, f := range calcCRTCTiming(mode) {
		if f.index < nvreg.NumStdCRTC {
			s.CRTC[f.index] = f.merge(s.CRTC[f.index])
		} else {
			p := s.ext(f.index)
			*p = f.merge(*p)
		}
	}

	s.CRTC[nvreg.CRTCCursorStart] = 0x20 // text cursor off
	s.CRTC[nvreg.CRTCCursorEnd] = 0x00
	s.CRTC[nvreg.CRTCUnderline] = 0x00
	s.CRTC[nvreg.CRTCModeControl] = 0xc3
	s.CRTC[nvreg.CRTCPitchLow] = uint8(offset)
	*s.ext(nvreg.CRTCRepaint0) = uint8((offset & 0x700) >> 3)

	repaint1 := s.ext(nvreg.CRTCRepaint1)
	*repaint1 = *repaint1&0xc0 | cfg.ScreenFlags&0x3b
	if mode.Width < 1280 {
		*repaint1 |= largeScreenOff
	}

	*s.ext(nvreg.CRTCArb0) = cfg.Arbitration0
	*s.ext(nvreg.CRTCArb1) = cfg.Arbitration1

	pixel := s.ext(nvreg.CRTCPixel)
	*pixel = *pixel&^pixelDepthMask | depth

	if ai.crtcStartAddr {
		addr := uint32(startOffset)
		s.CRTC[nvreg.CRTCFBStartLow] = uint8(addr >> 2)
		s.CRTC[nvreg.CRTCFBStartHigh] = uint8(addr >> 10)
		*s.ext(nvreg.CRTCRepaint0) |= uint8(addr>>18) & 0x1f
		heb := s.ext(nvreg.CRTCHEB)
		*heb = *heb&0xdf | uint8(addr>>18)&0x20

		// Cursor bitmap at offset 0, hidden.
		*s.ext(nvreg.CRTCCurCtl0) = uint8(cursorOffset>>11) << 2
		*s.ext(nvreg.CRTCCurCtl1) = 0x80 | uint8(cursorOffset>>17)
		*s.ext(nvreg.CRTCCurCtl2) = uint8(cursorOffset >> 24)
	} else {
		*s.ext(nvreg.CRTCCurCtl0) &^= cursorVisible
		s.CursorAddr = cursorOffset
		s.FBStart = startOffset
	}

	s.Grph = graphicsGrph
	for i := range s.Attr {
		s.Attr[i] = uint8(i)
	}
	s.Attr[nvreg.AttrModeControl] = 0x01
	if cfg.BitsPerPixel == 8 {
		s.Attr[nvreg.AttrModeControl] = 0x41
	}
	s.Attr[0x11] = 0x00
	s.Attr[0x12] = 0x0f
	s.Attr[nvreg.AttrHorPixelPan] = 0x00
	s.Attr[0x14] = 0x00

	s.Misc = syncPolarity(miscGraphics, mode.Flags)

	s.PalMask = 0xff
	for i := range s.Palette {
		v := uint8(i)
		s.Palette[i] = [3]uint8{v, v, v}
	}

	s.PLLSelect = pllSelectC
	s.PixelPLL = pll.Packed()
	s.DACGenCtrl = dacGenCtrlDefault
	if cfg.BitsPerPixel == 16 {
		s.DACGenCtrl = dacGenCtrl565
	}
	s.CursorConfig = cursorFormat32x32
	s.FBConfig = io.Reg32(nvreg.FBConfig0)
	if ai.fbConfig != 0 {
		s.FBConfig = ai.fbConfig
	}
	s.PowerUp = powerUpAll

	s.AccelOffsets = make([]uint32, len(ai.offsetRegs))
	for i := range s.AccelOffsets {
		s.AccelOffsets[i] = startOffset
	}
	s.AccelPitches = make([]uint32, len(ai.pitchRegs))
	for i := range s.AccelPitches {
		s.AccelPitches[i] = bytesPerLine & 0xffff
	}

	return nil
}

// String returns a register dump of the state.
func (s *VgaState) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "misc=%02x seq=% x\n", s.Misc, s.Seq[:])
	fmt.Fprintf(&sb, "crtc=% x\n", s.CRTC[:])
	fmt.Fprintf(&sb, "ext=% x\n", s.Ext[:])
	fmt.Fprintf(&sb, "grph=% x\n", s.Grph[:])
	fmt.Fprintf(&sb, "attr=% x\n", s.Attr[:])
	fmt.Fprintf(&sb, "pllsel=%08x pll=%08x genctrl=%08x curconf=%08x curaddr=%08x fbstart=%08x fbconfig=%08x pwrup=%08x",
		s.PLLSelect, s.PixelPLL, s.DACGenCtrl, s.CursorConfig, s.CursorAddr, s.FBStart, s.FBConfig, s.PowerUp)
	return sb.String()
}
