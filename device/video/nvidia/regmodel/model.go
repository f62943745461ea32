// Package regmodel implements a software model of the NVidia register
// window. It behaves like the adapter's BAR0 as far as the mode-set code can
// observe: VGA index/data latches, the attribute controller flip-flop,
// DAC auto-increment, the extended register lock and the CRTC 0-7 write
// protect bit. Command FIFO free-space registers and the input status
// register can be driven by hooks so tests can simulate a busy engine or a
// vertical retrace signal.
package regmodel

import (
	"nvfb/device"
	"nvfb/device/video/nvidia/nvreg"
)

// Size is the size of the modelled MMIO window.
const Size = 0x1000000

// DefaultFIFOFree is returned by FIFO free-space registers when no hook is
// installed; it reports 256 free words.
const DefaultFIFOFree = 0x0400

// Access describes a single write that reached the model.
type Access struct {
	Width uint8
	Off   uint32
	Value uint32

	// Index is the latched register index for indexed port writes.
	Index uint8
}

// Model is a software stand-in for the BAR0 register window. The zero value
// is not usable; use New.
type Model struct {
	dwords map[uint32]uint32

	crtc [256]uint8
	seq  [256]uint8
	grph [256]uint8
	attr [0x20]uint8
	misc uint8

	crtcIndex uint8
	seqIndex  uint8
	grphIndex uint8
	attrIndex uint8

	// attrData is true when the next attribute port write is a data byte.
	attrData bool

	palette    [256][3]uint8
	palMask    uint8
	palWrite   uint8
	palRead    uint8
	palWriteC  uint8
	palReadC   uint8
	unlocked   bool
	recording  bool
	accessLog  []Access
	fifoFreeFn func(off uint32) uint16
	statFn     func() uint8
	ddcFn      func() uint8
}

var _ device.Region = (*Model)(nil)

// New returns a locked model with all registers cleared.
func New() *Model {
	return &Model{
		dwords: make(map[uint32]uint32),
	}
}

// SetFIFOFreeHook installs a function that supplies the contents of the
// 16-bit command FIFO free-space registers. The function receives the offset
// being read.
func (m *Model) SetFIFOFreeHook(fn func(off uint32) uint16) { m.fifoFreeFn = fn }

// SetStatusHook installs a function that supplies the contents of input
// status register #1.
func (m *Model) SetStatusHook(fn func() uint8) { m.statFn = fn }

// SetDDCHook installs a function that supplies the contents of the DDC
// CRTC register.
func (m *Model) SetDDCHook(fn func() uint8) { m.ddcFn = fn }

// Record enables or disables the write log.
func (m *Model) Record(on bool) {
	m.recording = on
}

// Log returns the writes recorded since the last call to ResetLog.
func (m *Model) Log() []Access { return m.accessLog }

// ResetLog discards the recorded writes.
func (m *Model) ResetLog() { m.accessLog = m.accessLog[:0] }

// Size returns the size of the window.
func (m *Model) Size() uint32 { return Size }

// Unlocked reports whether the extended CRTC registers accept writes.
func (m *Model) Unlocked() bool { return m.unlocked }

// CRTC returns the contents of a CRTC register without going through the
// index latch.
func (m *Model) CRTC(index uint8) uint8 { return m.crtc[index] }

// SEQ returns the contents of a sequencer register.
func (m *Model) SEQ(index uint8) uint8 { return m.seq[index] }

// GRPH returns the contents of a graphics controller register.
func (m *Model) GRPH(index uint8) uint8 { return m.grph[index] }

// ATT returns the contents of an attribute controller register.
func (m *Model) ATT(index uint8) uint8 { return m.attr[index&0x1f] }

// Misc returns the miscellaneous output register.
func (m *Model) Misc() uint8 { return m.misc }

// PaletteEntry returns the RGB triple of a DAC entry.
func (m *Model) PaletteEntry(index uint8) [3]uint8 { return m.palette[index] }

// PaletteMask returns the DAC pixel mask.
func (m *Model) PaletteMask() uint8 { return m.palMask }

// Reg32 returns the contents of a 32-bit register.
func (m *Model) Reg32(off uint32) uint32 { return m.dwords[off&^3] }

// Poke writes a 32-bit register directly, bypassing the port logic and the
// write log. Tests use it to set strap registers.
func (m *Model) Poke(off, v uint32) { m.dwords[off&^3] = v }

// PokeCRTC sets a CRTC register directly, ignoring the lock.
func (m *Model) PokeCRTC(index, v uint8) { m.crtc[index] = v }

// PokeSEQ sets a sequencer register directly.
func (m *Model) PokeSEQ(index, v uint8) { m.seq[index] = v }

func (m *Model) record(width uint8, off, v uint32, index uint8) {
	if m.recording {
		m.accessLog = append(m.accessLog, Access{Width: width, Off: off, Value: v, Index: index})
	}
}

// Read8 implements device.Region.
func (m *Model) Read8(off uint32) uint8 {
	switch off {
	case nvreg.MiscRead:
		return m.misc
	case nvreg.SeqIndex:
		return m.seqIndex
	case nvreg.SeqData:
		return m.seq[m.seqIndex]
	case nvreg.GrphIndex:
		return m.grphIndex
	case nvreg.GrphData:
		return m.grph[m.grphIndex]
	case nvreg.CRTCIndex:
		return m.crtcIndex
	case nvreg.CRTCData:
		return m.readCRTC(m.crtcIndex)
	case nvreg.InputStatus1:
		m.attrData = false
		if m.statFn != nil {
			return m.statFn()
		}
		return 0
	case nvreg.AttrDataRead:
		return m.attr[m.attrIndex]
	case nvreg.PalMask:
		return m.palMask
	case nvreg.PalData:
		v := m.palette[m.palRead][m.palReadC]
		if m.palReadC++; m.palReadC == 3 {
			m.palReadC = 0
			m.palRead++
		}
		return v
	}

	return uint8(m.dwords[off&^3] >> ((off & 3) * 8))
}

func (m *Model) readCRTC(index uint8) uint8 {
	switch index {
	case nvreg.CRTCLock:
		if m.unlocked {
			return 0x03
		}
		return 0x00
	case nvreg.CRTCDDC:
		if m.ddcFn != nil {
			return m.ddcFn()
		}
	}

	return m.crtc[index]
}

// Read16 implements device.Region.
func (m *Model) Read16(off uint32) uint16 {
	switch off {
	case nvreg.ROPFIFOFree, nvreg.ClipFIFOFree, nvreg.PatFIFOFree, nvreg.BmpFIFOFree:
		if m.fifoFreeFn != nil {
			return m.fifoFreeFn(off)
		}
		return DefaultFIFOFree
	}

	return uint16(m.dwords[off&^3] >> ((off & 2) * 8))
}

// Read32 implements device.Region.
func (m *Model) Read32(off uint32) uint32 {
	return m.dwords[off&^3]
}

// Write8 implements device.Region.
func (m *Model) Write8(off uint32, v uint8) {
	switch off {
	case nvreg.MiscWrite:
		m.record(8, off, uint32(v), 0)
		m.misc = v
	case nvreg.SeqIndex:
		m.seqIndex = v
	case nvreg.SeqData:
		m.record(8, off, uint32(v), m.seqIndex)
		m.seq[m.seqIndex] = v
	case nvreg.GrphIndex:
		m.grphIndex = v
	case nvreg.GrphData:
		m.record(8, off, uint32(v), m.grphIndex)
		m.grph[m.grphIndex] = v
	case nvreg.CRTCIndex:
		m.crtcIndex = v
	case nvreg.CRTCData:
		m.record(8, off, uint32(v), m.crtcIndex)
		m.writeCRTC(m.crtcIndex, v)
	case nvreg.AttrIndex:
		if !m.attrData {
			m.attrIndex = v & 0x1f
		} else {
			m.record(8, off, uint32(v), m.attrIndex)
			m.attr[m.attrIndex] = v
		}
		m.attrData = !m.attrData
	case nvreg.PalMask:
		m.record(8, off, uint32(v), 0)
		m.palMask = v
	case nvreg.PalWriteIndex:
		m.palWrite, m.palWriteC = v, 0
	case nvreg.PalReadIndex:
		m.palRead, m.palReadC = v, 0
	case nvreg.PalData:
		m.record(8, off, uint32(v), m.palWrite)
		m.palette[m.palWrite][m.palWriteC] = v
		if m.palWriteC++; m.palWriteC == 3 {
			m.palWriteC = 0
			m.palWrite++
		}
	default:
		m.record(8, off, uint32(v), 0)
		shift := (off & 3) * 8
		m.dwords[off&^3] = m.dwords[off&^3]&^(0xff<<shift) | uint32(v)<<shift
	}
}

func (m *Model) writeCRTC(index, v uint8) {
	switch {
	case index == nvreg.CRTCLock:
		m.unlocked = v == nvreg.UnlockKey
		return
	case index >= nvreg.NumStdCRTC && !m.unlocked:
		return
	case index <= nvreg.CRTCOverflow && m.crtc[nvreg.CRTCVSyncEnd]&nvreg.CRTCProtect != 0:
		return
	}

	m.crtc[index] = v
}

// Write16 implements device.Region.
func (m *Model) Write16(off uint32, v uint16) {
	m.record(16, off, uint32(v), 0)
	shift := (off & 2) * 8
	m.dwords[off&^3] = m.dwords[off&^3]&^(0xffff<<shift) | uint32(v)<<shift
}

// Write32 implements device.Region.
func (m *Model) Write32(off uint32, v uint32) {
	m.record(32, off, v, 0)
	m.dwords[off&^3] = v
}
