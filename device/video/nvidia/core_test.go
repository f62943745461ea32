package nvidia

import (
	"bytes"
	"errors"
	"image"
	"log/slog"
	"strings"
	"testing"
	"time"

	"nvfb/device"
	"nvfb/device/video/nvidia/nvreg"
	"nvfb/device/video/nvidia/regmodel"
)

type testCore struct {
	*Core
	m        *regmodel.Model
	vram     device.MemRegion
	releases int
}

func newTestCore(t *testing.T, arch Architecture, opts Options) *testCore {
	t.Helper()

	m, vram, _ := newTestIO(t)
	bootState(m)

	tc := &testCore{m: m, vram: vram}
	core, err := NewCore(Resources{
		MMIO: m,
		VRAM: vram,
		Release: func() error {
			tc.releases++
			return nil
		},
	}, Chipset{DeviceID: 0xffff, Name: "test adapter", Arch: arch}, opts)
	if err != nil {
		t.Fatal(err)
	}
	tc.Core = core
	return tc
}

func mustLookup(t *testing.T, name string) *Configuration {
	t.Helper()

	cfg, err := DefaultConfigurations().Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestNewCoreUnknownArchitecture(t *testing.T) {
	m, vram, _ := newTestIO(t)
	if _, err := NewCore(Resources{MMIO: m, VRAM: vram}, Chipset{Arch: Architecture(7)}, Options{}); !errors.Is(err, ErrUnknownArchitecture) {
		t.Fatalf("expected ErrUnknownArchitecture; got %v", err)
	}
}

func TestCoreDetection(t *testing.T) {
	specs := []struct {
		arch   Architecture
		strap  uint32
		crystl uint32
		expMB  uint32
		expXtl uint32
	}{
		{NV04, 0x00000000, 0x00, 32, Crystal13500KHz},
		{NV04, 0x00000001, 0x00, 4, Crystal13500KHz},
		{NV04, 0x00000002, 0x40, 8, Crystal14318KHz},
		{NV04, 0x00000003, 0x00, 16, Crystal13500KHz},
		{NV04, 0x00003100, 0x00, 8, Crystal13500KHz},
		{NV10, 0x00200000, 0x00, 2, Crystal13500KHz},
		{NV20, 0x02000000, 0x40, 32, Crystal14318KHz},
		{NV30, 0x08000000, 0x00, 128, Crystal13500KHz},
		{NV10, 0x00300000, 0x00, 16, Crystal13500KHz},
	}

	for specIndex, spec := range specs {
		m, vram, _ := newTestIO(t)
		if spec.arch == NV04 {
			m.Poke(nvreg.NV4StrapInfo, spec.strap)
		} else {
			m.Poke(nvreg.NV10StrapInfo, spec.strap)
		}
		m.Poke(nvreg.StrapInfo2, spec.crystl)
		m.Record(true)

		c, err := NewCore(Resources{MMIO: m, VRAM: vram}, Chipset{Arch: spec.arch}, Options{})
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if got := c.MemorySizeMB(); got != spec.expMB {
			t.Errorf("[spec %d] expected %d MB; got %d", specIndex, spec.expMB, got)
		}
		if got := c.CrystalKHz(); got != spec.expXtl {
			t.Errorf("[spec %d] expected %d kHz crystal; got %d", specIndex, spec.expXtl, got)
		}
		if n := len(m.Log()); n != 0 {
			t.Errorf("[spec %d] expected detection to be read only; got %d writes", specIndex, n)
		}
	}
}

func TestCoreMaxVCOOverride(t *testing.T) {
	m, vram, _ := newTestIO(t)
	chip, _ := LookupChipset(0x0286)

	c, err := NewCore(Resources{MMIO: m, VRAM: vram}, chip, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if c.maxVCOKHz != 200000 {
		t.Fatalf("expected chipset VCO limit 200000; got %d", c.maxVCOKHz)
	}

	chip, _ = LookupChipset(0x0250)
	if c, err = NewCore(Resources{MMIO: m, VRAM: vram}, chip, Options{}); err != nil {
		t.Fatal(err)
	}
	if c.maxVCOKHz != 350000 {
		t.Fatalf("expected architecture VCO limit 350000; got %d", c.maxVCOKHz)
	}
}

func TestCoreOpen(t *testing.T) {
	tc := newTestCore(t, NV10, Options{})
	cfg := mustLookup(t, "1024x768x32")

	surf, err := tc.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		name     string
		got, exp uint32
	}{
		{"pixel PLL", tc.m.Reg32(nvreg.PixelPLL), 0x0001600a},
		{"PLL select", tc.m.Reg32(nvreg.PLLSelect), pllSelectC},
		{"CR13", uint32(tc.m.CRTC(nvreg.CRTCPitchLow)), 0x00},
		{"REPAINT0 pitch bits", uint32(tc.m.CRTC(nvreg.CRTCRepaint0) & 0xe0), 0x40},
		{"FB start", tc.m.Reg32(nvreg.NV10FBStart), startOffset},
		{"power up", tc.m.Reg32(nvreg.PwrUpCtrl), powerUpAll},
		{"pixel depth", uint32(tc.m.CRTC(nvreg.CRTCPixel) & pixelDepthMask), 3},
		{"screen on", uint32(tc.m.SEQ(nvreg.SeqClockMode) & seqScreenOff), 0},
		{"syncs on", uint32(tc.m.CRTC(nvreg.CRTCRepaint1) & (repaint1HSyncOff | repaint1VSyncOff)), 0},
		{"cursor hidden", uint32(tc.m.CRTC(nvreg.CRTCCurCtl0) & cursorVisible), 0},
		{"clip size", tc.m.Reg32(nvreg.ClipSize), clipMaxSize},
		{"engine pitch", tc.m.Reg32(nvreg.Pitch0), 4096},
	}
	for specIndex, spec := range specs {
		if spec.got != spec.exp {
			t.Errorf("[spec %d] %s: expected 0x%x; got 0x%x", specIndex, spec.name, spec.exp, spec.got)
		}
	}

	if !tc.m.Unlocked() {
		t.Error("expected the extended registers to stay unlocked while open")
	}
	if tc.Configuration() != cfg {
		t.Errorf("expected Configuration to return the open configuration")
	}
	if surf.Width() != 1024 || surf.Height() != 768 || surf.BitsPerPixel() != 32 {
		t.Errorf("unexpected surface geometry %dx%dx%d", surf.Width(), surf.Height(), surf.BitsPerPixel())
	}

	exp := crtcTimingFor(cfg.Mode)
	if got := decodeTiming(tc.m); got.hTotal != exp.hTotal || got.vTotal != exp.vTotal || got.vSyncStart != exp.vSyncStart {
		t.Errorf("expected CRTC timing %+v; got %+v", exp, got)
	}

	if _, err := tc.Open(cfg); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("expected ErrAlreadyOpen; got %v", err)
	}
}

func TestCoreOpenClearsFramebuffer(t *testing.T) {
	tc := newTestCore(t, NV20, Options{})
	cfg := mustLookup(t, "640x480x16")
	for off := uint32(0); off < uint32(len(tc.vram)); off += 4 {
		tc.vram.Write32(off, 0xdeadbeef)
	}

	if _, err := tc.Open(cfg); err != nil {
		t.Fatal(err)
	}

	end := startOffset + cfg.BytesPerLine()*cfg.Mode.Height
	for off := uint32(0); off < end; off += 4 {
		if got := tc.vram.Read32(off); got != 0 {
			t.Fatalf("expected video memory to be cleared; got 0x%x at offset %d", got, off)
		}
	}
	if got := tc.vram.Read32(end); got != 0xdeadbeef {
		t.Errorf("expected memory past the visible screen to be left alone; got 0x%x", got)
	}
}

func TestCoreOpenRejectsBeforeWriting(t *testing.T) {
	base := mustLookup(t, "640x480x8")

	badDepth := *base
	badDepth.BitsPerPixel = 24

	badClock := *base
	badClock.Mode.PixelClockKHz = 400000

	badTiming := *base
	badTiming.Mode.HSyncEnd = base.Mode.HSyncStart

	specs := []struct {
		name string
		cfg  *Configuration
		exp  error
	}{
		{"nil", nil, ErrUnsupportedConfig},
		{"depth", &badDepth, ErrUnsupportedDepth},
		{"clock", &badClock, ErrUnsolvableClock},
		{"timing", &badTiming, ErrUnsupportedConfig},
		// 1280x1024x32 does not fit the 4MB strap of bootState.
		{"memory", mustLookup(t, "1280x1024x32"), ErrUnsupportedConfig},
	}

	for specIndex, spec := range specs {
		tc := newTestCore(t, NV10, Options{})
		tc.m.Record(true)

		if _, err := tc.Open(spec.cfg); !errors.Is(err, spec.exp) {
			t.Errorf("[spec %d] %s: expected %v; got %v", specIndex, spec.name, spec.exp, err)
		}
		if n := len(tc.m.Log()); n != 0 {
			t.Errorf("[spec %d] %s: expected no register writes; got %d", specIndex, spec.name, n)
		}
		if tc.Configuration() != nil {
			t.Errorf("[spec %d] %s: expected no configuration after a failed open", specIndex, spec.name)
		}
	}
}

func TestCoreOpenRollback(t *testing.T) {
	defer func(orig func(time.Duration)) {
		sleepFn = orig
	}(sleepFn)
	sleepFn = func(time.Duration) {}

	tc := newTestCore(t, NV10, Options{Poll: PollConfig{Interval: time.Millisecond, MaxPolls: 2}})
	regs := stateRegs(tc.info)
	before := snapshot(tc.m, regs)

	tc.m.SetFIFOFreeHook(func(uint32) uint16 { return 0 })
	if _, err := tc.Open(mustLookup(t, "800x600x16")); !errors.Is(err, ErrDeviceUnresponsive) {
		t.Fatalf("expected ErrDeviceUnresponsive; got %v", err)
	}

	compareSnapshots(t, NV10, 0, before, snapshot(tc.m, regs))
	if tc.m.Unlocked() {
		t.Error("expected the extended registers to be locked after a rollback")
	}
	if tc.releases != 0 {
		t.Errorf("expected a failed open to keep the register windows; got %d releases", tc.releases)
	}

	// The core stays usable once the engine drains its FIFO.
	tc.m.SetFIFOFreeHook(nil)
	if _, err := tc.Open(mustLookup(t, "800x600x16")); err != nil {
		t.Fatalf("expected open to succeed after the rollback; got %v", err)
	}
}

func TestCoreClose(t *testing.T) {
	for _, arch := range allArchitectures {
		tc := newTestCore(t, arch, Options{})
		regs := stateRegs(tc.info)
		before := snapshot(tc.m, regs)

		if err := tc.Close(); !errors.Is(err, ErrNotOpen) {
			t.Errorf("[%s] expected ErrNotOpen before open; got %v", arch, err)
		}

		surf, err := tc.Open(mustLookup(t, "800x600x32"))
		if err != nil {
			t.Fatalf("[%s] open: %v", arch, err)
		}
		tc.HardwareCursor().SetCursorVisible(true)

		if err := tc.Close(); err != nil {
			t.Fatalf("[%s] close: %v", arch, err)
		}

		compareSnapshots(t, arch, 0, before, snapshot(tc.m, regs))
		if tc.m.Unlocked() {
			t.Errorf("[%s] expected the extended registers to be locked after close", arch)
		}
		if tc.releases != 1 {
			t.Errorf("[%s] expected the register windows to be released once; got %d", arch, tc.releases)
		}
		if tc.Configuration() != nil {
			t.Errorf("[%s] expected no configuration after close", arch)
		}
		if err := surf.FillRect(0, 0, 1, 1, 0, PaintMode); !errors.Is(err, ErrNotOpen) {
			t.Errorf("[%s] expected the surface to be detached; got %v", arch, err)
		}

		if err := tc.Close(); !errors.Is(err, ErrNotOpen) {
			t.Errorf("[%s] expected ErrNotOpen on a second close; got %v", arch, err)
		}
		if _, err := tc.Open(mustLookup(t, "800x600x32")); !errors.Is(err, errReleased) {
			t.Errorf("[%s] expected errReleased after close; got %v", arch, err)
		}
	}
}

func TestCoreReleaseError(t *testing.T) {
	tc := newTestCore(t, NV10, Options{})
	errRelease := errors.New("release failed")
	tc.res.Release = func() error { return errRelease }

	if _, err := tc.Open(mustLookup(t, "640x480x8")); err != nil {
		t.Fatal(err)
	}
	if err := tc.Close(); !errors.Is(err, errRelease) {
		t.Fatalf("expected the release error to be returned; got %v", err)
	}
	if !tc.released {
		t.Fatal("expected the core to be marked released")
	}
}

func TestDPMS(t *testing.T) {
	tc := newTestCore(t, NV10, Options{})

	tc.setDPMS(dpmsOff)
	if got := tc.m.SEQ(nvreg.SeqClockMode); got&seqScreenOff == 0 {
		t.Errorf("expected the screen to be off; SEQ1 0x%02x", got)
	}
	if got := tc.m.SEQ(nvreg.SeqReset); got != 0x01 {
		t.Errorf("expected the sequencer to stay in reset while off; got 0x%02x", got)
	}
	if got := tc.m.CRTC(nvreg.CRTCRepaint1) & 0xc0; got != 0xc0 {
		t.Errorf("expected both syncs to be off; REPAINT1 0x%02x", got)
	}
	if got := tc.dpms(); got != dpmsOff {
		t.Errorf("expected %+v; got %+v", dpmsOff, got)
	}

	standby := dpmsState{hsync: false, vsync: true}
	tc.setDPMS(standby)
	if got := tc.dpms(); got != standby {
		t.Errorf("expected %+v; got %+v", standby, got)
	}

	tc.setDPMS(dpmsOn)
	if got := tc.m.SEQ(nvreg.SeqReset); got != 0x03 {
		t.Errorf("expected the sequencer to leave reset; got 0x%02x", got)
	}
	if got := tc.dpms(); got != dpmsOn {
		t.Errorf("expected %+v; got %+v", dpmsOn, got)
	}
	if got := tc.m.CRTC(nvreg.CRTCRepaint1) & 0x3f; got != 0x3c {
		t.Errorf("expected the other REPAINT1 bits to be preserved; got 0x%02x", got)
	}
}

func TestOpenKeepsDisplayPowerState(t *testing.T) {
	tc := newTestCore(t, NV20, Options{})
	tc.m.PokeSEQ(nvreg.SeqClockMode, seqScreenOff)
	tc.m.PokeCRTC(nvreg.CRTCRepaint1, 0x3c|repaint1VSyncOff)
	exp := dpmsState{display: false, hsync: true, vsync: false}

	if _, err := tc.Open(mustLookup(t, "640x480x16")); err != nil {
		t.Fatal(err)
	}
	if got := tc.dpms(); got != exp {
		t.Errorf("expected the power state found at open (%+v); got %+v", exp, got)
	}

	if err := tc.Close(); err != nil {
		t.Fatal(err)
	}
	tc.io.Unlock()
	if got := tc.dpms(); got != exp {
		t.Errorf("expected the power state found at open after close (%+v); got %+v", exp, got)
	}
}

func TestCoreStateString(t *testing.T) {
	specs := []struct {
		state coreState
		exp   string
	}{
		{stateClosed, "closed"},
		{stateOpening, "opening"},
		{stateOpen, "open"},
		{stateClosing, "closing"},
		{coreState(9), "invalid"},
	}

	for specIndex, spec := range specs {
		if got := spec.state.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

// releasableRegion fails every access after its window was released, the
// way an unmapped BAR does.
type releasableRegion struct {
	device.Region
	released bool
}

func (r *releasableRegion) check() {
	if r.released {
		panic("access to released register window")
	}
}

func (r *releasableRegion) Read8(off uint32) uint8   { r.check(); return r.Region.Read8(off) }
func (r *releasableRegion) Read16(off uint32) uint16 { r.check(); return r.Region.Read16(off) }
func (r *releasableRegion) Read32(off uint32) uint32 { r.check(); return r.Region.Read32(off) }

func (r *releasableRegion) Write8(off uint32, v uint8)   { r.check(); r.Region.Write8(off, v) }
func (r *releasableRegion) Write16(off uint32, v uint16) { r.check(); r.Region.Write16(off, v) }
func (r *releasableRegion) Write32(off uint32, v uint32) { r.check(); r.Region.Write32(off, v) }

func TestCoreCloseDetachesCursorAndDDC(t *testing.T) {
	m, vram, _ := newTestIO(t)
	bootState(m)

	mmio := &releasableRegion{Region: m}
	core, err := NewCore(Resources{
		MMIO: mmio,
		VRAM: vram,
		Release: func() error {
			mmio.released = true
			return nil
		},
	}, Chipset{DeviceID: 0xffff, Name: "test adapter", Arch: NV10}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := core.Open(mustLookup(t, "640x480x8")); err != nil {
		t.Fatal(err)
	}
	cur := core.HardwareCursor()
	if err := core.Close(); err != nil {
		t.Fatal(err)
	}

	cur.SetCursorVisible(true)
	cur.SetCursorPosition(10, 20)
	cur.Close()
	if err := cur.SetCursorImage(image.NewNRGBA(image.Rect(0, 0, CursorWidth, CursorHeight))); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected SetCursorImage to fail with ErrNotOpen; got %v", err)
	}

	core.SetupDDC1()
	if _, err := core.GetDDC1Bit(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected GetDDC1Bit to fail with ErrNotOpen; got %v", err)
	}
	core.CloseDDC1()
}

func TestCoreOpenLogsProgrammedMode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tc := newTestCore(t, NV04, Options{Logger: logger})
	if _, err := tc.Open(mustLookup(t, "1024x768x16")); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, exp := range []string{"pitch=2048", "start=2048"} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected the mode set log to contain %q; got:\n%s", exp, out)
		}
	}
}
