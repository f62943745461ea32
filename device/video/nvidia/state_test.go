package nvidia

import (
	"errors"
	"strings"
	"testing"

	"nvfb/device/video/nvidia/nvreg"
	"nvfb/device/video/nvidia/regmodel"
)

// modelSnapshot captures every register block the state code touches.
type modelSnapshot struct {
	crtc    [256]uint8
	seq     [256]uint8
	grph    [256]uint8
	attr    [0x20]uint8
	misc    uint8
	palMask uint8
	palette [256][3]uint8
	regs    map[uint32]uint32
}

func snapshot(m *regmodel.Model, regs []uint32) modelSnapshot {
	s := modelSnapshot{misc: m.Misc(), palMask: m.PaletteMask(), regs: make(map[uint32]uint32)}
	for i := range s.crtc {
		s.crtc[i] = m.CRTC(uint8(i))
		s.seq[i] = m.SEQ(uint8(i))
		s.grph[i] = m.GRPH(uint8(i))
		s.palette[i] = m.PaletteEntry(uint8(i))
	}
	for i := range s.attr {
		s.attr[i] = m.ATT(uint8(i))
	}
	for _, reg := range regs {
		s.regs[reg] = m.Reg32(reg)
	}
	return s
}

func stateRegs(ai *archInfo) []uint32 {
	regs := []uint32{
		nvreg.PLLSelect, nvreg.PixelPLL, nvreg.DACGenCtrl, nvreg.CursorConfig,
		nvreg.FBConfig0, nvreg.PwrUpCtrl,
	}
	if !ai.crtcStartAddr {
		regs = append(regs, nvreg.NV10CursorAddr, nvreg.NV10FBStart)
	}
	regs = append(regs, ai.offsetRegs...)
	return append(regs, ai.pitchRegs...)
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	for _, arch := range allArchitectures {
		for _, seed := range []uint32{1, 0xdeadbeef, 0x12345678} {
			ai, _ := arch.info()
			regs := stateRegs(ai)

			m, _, io := newTestIO(t)
			m.Scramble(seed, regs...)
			before := snapshot(m, regs)

			var s VgaState
			if err := s.SaveFromHardware(io, arch); err != nil {
				t.Fatalf("[%s seed %x] save: %v", arch, seed, err)
			}

			// Clobber everything the state covers before restoring.
			m.Scramble(seed^0x5a5a5a5a, regs...)

			if err := s.RestoreToHardware(io, arch); err != nil {
				t.Fatalf("[%s seed %x] restore: %v", arch, seed, err)
			}

			after := snapshot(m, regs)
			compareSnapshots(t, arch, seed, before, after)
		}
	}
}

func compareSnapshots(t *testing.T, arch Architecture, seed uint32, before, after modelSnapshot) {
	t.Helper()

	for i := 0; i < nvreg.NumStdCRTC; i++ {
		if before.crtc[i] != after.crtc[i] {
			t.Errorf("[%s seed %x] CRTC 0x%02x: expected 0x%02x; got 0x%02x", arch, seed, i, before.crtc[i], after.crtc[i])
		}
	}
	for _, reg := range extCRTC {
		if before.crtc[reg] != after.crtc[reg] {
			t.Errorf("[%s seed %x] CRTC 0x%02x: expected 0x%02x; got 0x%02x", arch, seed, reg, before.crtc[reg], after.crtc[reg])
		}
	}
	for i := 0; i < nvreg.NumSeq; i++ {
		if before.seq[i] != after.seq[i] {
			t.Errorf("[%s seed %x] SEQ 0x%02x: expected 0x%02x; got 0x%02x", arch, seed, i, before.seq[i], after.seq[i])
		}
	}
	for i := 0; i < nvreg.NumGrph; i++ {
		if before.grph[i] != after.grph[i] {
			t.Errorf("[%s seed %x] GRPH 0x%02x: expected 0x%02x; got 0x%02x", arch, seed, i, before.grph[i], after.grph[i])
		}
	}
	for i := 0; i < nvreg.NumAttr; i++ {
		if before.attr[i] != after.attr[i] {
			t.Errorf("[%s seed %x] ATT 0x%02x: expected 0x%02x; got 0x%02x", arch, seed, i, before.attr[i], after.attr[i])
		}
	}
	if before.misc != after.misc {
		t.Errorf("[%s seed %x] misc: expected 0x%02x; got 0x%02x", arch, seed, before.misc, after.misc)
	}
	if before.palMask != after.palMask {
		t.Errorf("[%s seed %x] palette mask: expected 0x%02x; got 0x%02x", arch, seed, before.palMask, after.palMask)
	}
	if before.palette != after.palette {
		t.Errorf("[%s seed %x] palette contents differ", arch, seed)
	}
	for reg, exp := range before.regs {
		if got := after.regs[reg]; got != exp {
			t.Errorf("[%s seed %x] register 0x%06x: expected 0x%08x; got 0x%08x", arch, seed, reg, exp, got)
		}
	}
}

func TestRestoreLeavesExtendedRegistersLocked(t *testing.T) {
	m, _, io := newTestIO(t)
	bootState(m)

	var s VgaState
	if err := s.SaveFromHardware(io, NV10); err != nil {
		t.Fatal(err)
	}
	io.Unlock()
	if err := s.RestoreToHardware(io, NV10); err != nil {
		t.Fatal(err)
	}

	if m.Unlocked() {
		t.Fatal("expected the extended registers to be locked after restore")
	}
}

func TestStateUnknownArchitecture(t *testing.T) {
	_, _, io := newTestIO(t)

	var s VgaState
	if err := s.SaveFromHardware(io, Architecture(9)); !errors.Is(err, ErrUnknownArchitecture) {
		t.Errorf("expected save to fail with ErrUnknownArchitecture; got %v", err)
	}
	if err := s.RestoreToHardware(io, Architecture(9)); !errors.Is(err, ErrUnknownArchitecture) {
		t.Errorf("expected restore to fail with ErrUnknownArchitecture; got %v", err)
	}
}

func TestRestoreMismatchedArchitecture(t *testing.T) {
	_, _, io := newTestIO(t)

	var s VgaState
	if err := s.SaveFromHardware(io, NV04); err != nil {
		t.Fatal(err)
	}
	if err := s.RestoreToHardware(io, NV20); err == nil {
		t.Fatal("expected restoring an NV04 snapshot on NV20 to fail")
	}
}

func TestCalcForConfiguration(t *testing.T) {
	cfg, err := DefaultConfigurations().Lookup("1024x768x32")
	if err != nil {
		t.Fatal(err)
	}
	sol := ClockSolution{M: 10, N: 96, P: 1, FreqKHz: 64800}

	t.Run("NV10", func(t *testing.T) {
		m, _, io := newTestIO(t)
		bootState(m)

		var s VgaState
		if err := s.CalcForConfiguration(cfg, NV10, io, sol); err != nil {
			t.Fatal(err)
		}

		specs := []struct {
			name     string
			got, exp uint32
		}{
			{"CR13", uint32(s.CRTC[nvreg.CRTCPitchLow]), 0x00},
			{"REPAINT0 pitch bits", uint32(*s.ext(nvreg.CRTCRepaint0) & 0xe0), 0x40},
			{"pixel depth", uint32(*s.ext(nvreg.CRTCPixel) & pixelDepthMask), 3},
			{"REPAINT1 large screen", uint32(*s.ext(nvreg.CRTCRepaint1) & largeScreenOff), largeScreenOff},
			{"arbitration 0", uint32(*s.ext(nvreg.CRTCArb0)), 0x04},
			{"arbitration 1", uint32(*s.ext(nvreg.CRTCArb1)), 0x40},
			{"PLL", s.PixelPLL, 1<<16 | 96<<8 | 10},
			{"PLL select", s.PLLSelect, pllSelectC},
			{"FB start", s.FBStart, startOffset},
			{"cursor address", s.CursorAddr, cursorOffset},
			{"cursor visible", uint32(*s.ext(nvreg.CRTCCurCtl0) & cursorVisible), 0},
			{"DAC general control", s.DACGenCtrl, dacGenCtrlDefault},
			{"power up", s.PowerUp, powerUpAll},
			{"mode control", uint32(s.CRTC[nvreg.CRTCModeControl]), 0xc3},
			{"attribute mode", uint32(s.Attr[nvreg.AttrModeControl]), 0x01},
			{"misc", uint32(s.Misc), uint32(syncPolarity(miscGraphics, 0))},
			{"palette 200", uint32(s.Palette[200][1]), 200},
		}

		for specIndex, spec := range specs {
			if spec.got != spec.exp {
				t.Errorf("[spec %d] %s: expected 0x%x; got 0x%x", specIndex, spec.name, spec.exp, spec.got)
			}
		}

		for i, off := range s.AccelOffsets {
			if off != startOffset {
				t.Errorf("expected acceleration offset %d to be %d; got %d", i, startOffset, off)
			}
		}
		for i, p := range s.AccelPitches {
			if p != 4096 {
				t.Errorf("expected acceleration pitch %d to be 4096; got %d", i, p)
			}
		}
	})

	t.Run("NV04 start address", func(t *testing.T) {
		m, _, io := newTestIO(t)
		bootState(m)

		var s VgaState
		if err := s.CalcForConfiguration(cfg, NV04, io, sol); err != nil {
			t.Fatal(err)
		}

		if got := uint32(s.CRTC[nvreg.CRTCFBStartHigh])<<10 | uint32(s.CRTC[nvreg.CRTCFBStartLow])<<2; got != startOffset {
			t.Errorf("expected CRTC start address %d; got %d", startOffset, got)
		}
		if got := s.FBConfig; got != 0x1114 {
			t.Errorf("expected NV04 framebuffer config 0x1114; got 0x%x", got)
		}
		if got := *s.ext(nvreg.CRTCCurCtl1); got&0x80 == 0 {
			t.Errorf("expected cursor control 1 to select the cursor bitmap; got 0x%02x", got)
		}
	})

	t.Run("unsupported depth", func(t *testing.T) {
		_, _, io := newTestIO(t)
		bad := *cfg
		bad.BitsPerPixel = 24

		var s VgaState
		if err := s.CalcForConfiguration(&bad, NV10, io, sol); !errors.Is(err, ErrUnsupportedDepth) {
			t.Fatalf("expected ErrUnsupportedDepth; got %v", err)
		}
	})
}

func TestVgaStateString(t *testing.T) {
	var s VgaState
	s.Misc = 0x2f
	if out := s.String(); !strings.Contains(out, "misc=2f") {
		t.Fatalf("expected state dump to contain the misc register; got %q", out)
	}
}
