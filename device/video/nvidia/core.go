package nvidia

import (
	"errors"
	"io"
	"log/slog"

	"nvfb/device"
	"nvfb/device/video/nvidia/nvreg"
	"nvfb/kernel"
)

var errReleased = &kernel.Error{Module: "nvidia", Message: "register windows already released"}

// Resources are the two register windows of one adapter. Release, when
// set, is called once by Core.Close.
type Resources struct {
	MMIO    device.Region
	VRAM    device.Region
	Release func() error
}

// Options tune a Core. The zero value selects the defaults.
type Options struct {
	// Logger receives the driver's diagnostics. Nil discards them.
	Logger *slog.Logger

	// Poll bounds the acceleration FIFO waits.
	Poll PollConfig

	// DDCSpinLimit bounds each vertical retrace wait of GetDDC1Bit.
	DDCSpinLimit int
}

// DefaultDDCSpinLimit is the number of status register reads after which a
// DDC retrace wait gives up.
const DefaultDDCSpinLimit = 1 << 20

type coreState uint8

const (
	stateClosed coreState = iota
	stateOpening
	stateOpen
	stateClosing
)

func (s coreState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	}
	return "invalid"
}

// Core sequences the mode-set components of one adapter. It is not safe
// for concurrent use; one goroutine is expected to drive the device.
type Core struct {
	io     *VgaIO
	chip   Chipset
	info   *archInfo
	res    Resources
	log    *slog.Logger
	acc    *Accelerator
	cursor *HardwareCursor

	crystalKHz uint32
	maxVCOKHz  uint32
	memSizeMB  uint32
	ddcSpin    int

	state     coreState
	released  bool
	saved     VgaState
	savedDPMS dpmsState
	cfg       *Configuration
	surface   *Surface
}

// NewCore binds a Core to the register windows of chip and detects the
// reference crystal and the amount of video memory. Only read accesses
// are made.
func NewCore(res Resources, chip Chipset, opts Options) (*Core, error) {
	ai, err := chip.Arch.info()
	if err != nil {
		return nil, err
	}

	vio := NewVgaIO(res.MMIO, res.VRAM)
	acc, err := NewAccelerator(vio, chip.Arch, opts.Poll)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Core{
		io:         vio,
		chip:       chip,
		info:       ai,
		res:        res,
		log:        logger,
		acc:        acc,
		cursor:     newHardwareCursor(vio, ai),
		crystalKHz: detectCrystal(vio),
		maxVCOKHz:  ai.maxVCOKHz,
		ddcSpin:    opts.DDCSpinLimit,
	}
	if chip.MaxVCOKHz != 0 {
		c.maxVCOKHz = chip.MaxVCOKHz
	}
	if c.ddcSpin <= 0 {
		c.ddcSpin = DefaultDDCSpinLimit
	}
	c.memSizeMB = c.detectMemorySize()

	c.log.Info("adapter detected",
		"chip", chip.Name,
		"arch", chip.Arch,
		"memory_mb", c.memSizeMB,
		"crystal_khz", c.crystalKHz,
		"max_vco_khz", c.maxVCOKHz,
	)
	return c, nil
}

// MemorySizeMB returns the detected amount of video memory.
func (c *Core) MemorySizeMB() uint32 { return c.memSizeMB }

// CrystalKHz returns the detected PLL reference frequency.
func (c *Core) CrystalKHz() uint32 { return c.crystalKHz }

// HardwareCursor returns the cursor controller of the adapter.
func (c *Core) HardwareCursor() *HardwareCursor { return c.cursor }

// Configuration returns the configuration set by the last successful Open
// or nil while closed.
func (c *Core) Configuration() *Configuration {
	if c.state != stateOpen {
		return nil
	}
	return c.cfg
}

var nv04PrivateMemMB = [4]uint32{32, 4, 8, 16}

func (c *Core) detectMemorySize() uint32 {
	if c.chip.Arch == NV04 {
		strap := c.io.Reg32(nvreg.NV4StrapInfo)
		if strap&0x100 != 0 {
			c.log.Debug("unified memory architecture")
			return ((strap&0xf000)>>12)*2 + 2
		}
		return nv04PrivateMemMB[strap&3]
	}

	strap := c.io.Reg32(nvreg.NV10StrapInfo)
	switch size := (strap & 0x0ff00000) >> 20; size {
	case 2, 4, 8, 16, 32, 64, 128:
		return size
	}
	c.log.Warn("unknown memory size, assuming 16MB", "strap", strap)
	return 16
}

// Open sets the display mode described by cfg and returns a surface for
// drawing into it. The configuration, the clock and the pixel depth are
// checked before the hardware is touched; a failure after that restores
// the state found at entry.
func (c *Core) Open(cfg *Configuration) (*Surface, error) {
	switch {
	case c.released:
		return nil, errReleased
	case c.state != stateClosed:
		return nil, ErrAlreadyOpen
	case cfg == nil:
		return nil, ErrUnsupportedConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := c.acc.formatWrites(cfg.BitsPerPixel); err != nil {
		return nil, err
	}
	if need := uint64(startOffset) + uint64(cfg.BytesPerLine())*uint64(cfg.Mode.Height); need > uint64(c.memSizeMB)<<20 {
		c.log.Warn("configuration does not fit video memory", "config", cfg.Name, "need", need)
		return nil, ErrUnsupportedConfig
	}
	sol, err := SolveClock(cfg.Mode.PixelClockKHz, c.crystalKHz, c.maxVCOKHz, c.chip.Arch)
	if err != nil {
		return nil, err
	}

	c.state = stateOpening
	if err := c.saved.SaveFromHardware(c.io, c.chip.Arch); err != nil {
		c.state = stateClosed
		return nil, err
	}

	c.io.Unlock()
	c.savedDPMS = c.dpms()
	c.setDPMS(dpmsOff)

	// Power up every function block.
	c.io.SetReg32(nvreg.PwrUpCtrl, powerUpAll)

	if err := c.setMode(cfg, sol); err != nil {
		c.log.Error("mode set failed, restoring previous state", "config", cfg.Name, "err", err)
		if rerr := c.restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		c.state = stateClosed
		return nil, err
	}
	c.log.Debug("crtc programmed",
		"pitch", pitch(c.io),
		"start", startAddress(c.io, c.info),
	)

	c.setDPMS(c.savedDPMS)
	c.cfg = cfg
	c.surface = newSurface(c, cfg)
	c.state = stateOpen

	c.log.Info("mode set", "config", cfg.Name, "pll", sol)
	return c.surface, nil
}

func (c *Core) setMode(cfg *Configuration, sol ClockSolution) error {
	var state VgaState
	if err := state.CalcForConfiguration(cfg, c.chip.Arch, c.io, sol); err != nil {
		return err
	}
	if err := state.RestoreToHardware(c.io, c.chip.Arch); err != nil {
		return err
	}
	c.io.Unlock()

	bpl := cfg.BytesPerLine()
	programPLL(c.io, sol)
	c.setPalette(1.0)
	setPitch(c.io, bpl)
	setStartAddress(c.io, c.info, startOffset)
	applyTiming(c.io, cfg.Mode)
	c.cursor.Init()

	if err := c.acc.Init(startOffset, bpl, c.memSizeMB, cfg.BitsPerPixel); err != nil {
		return err
	}

	vram := c.io.VideoRAM()
	end := startOffset + bpl*uint32(cfg.Mode.Height)
	for off := uint32(startOffset); off < end; off += 4 {
		vram.Write32(off, 0)
	}
	return nil
}

// restore writes the state saved by Open back and re-applies the display
// power state found at that time.
func (c *Core) restore() error {
	c.setDPMS(dpmsOff)
	c.io.Unlock()
	err := c.saved.RestoreToHardware(c.io, c.chip.Arch)
	c.setDPMS(c.savedDPMS)
	c.io.Lock()
	return err
}

// Close restores the state found by Open and releases the register
// windows.
func (c *Core) Close() error {
	if c.state != stateOpen {
		return ErrNotOpen
	}

	c.state = stateClosing
	c.cursor.Close()
	err := c.restore()

	if c.surface != nil {
		c.surface.core = nil
		c.surface = nil
	}
	c.cfg = nil

	if c.res.Release != nil {
		if rerr := c.res.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	c.released = true
	c.state = stateClosed

	c.log.Info("display restored")
	return err
}

type dpmsState struct {
	display, hsync, vsync bool
}

var (
	dpmsOn  = dpmsState{display: true, hsync: true, vsync: true}
	dpmsOff = dpmsState{}
)

const (
	repaint1HSyncOff = 0x80
	repaint1VSyncOff = 0x40
)

func (c *Core) dpms() dpmsState {
	repaint1 := c.io.CRT(nvreg.CRTCRepaint1)
	return dpmsState{
		display: c.io.SEQ(nvreg.SeqClockMode)&seqScreenOff == 0,
		hsync:   repaint1&repaint1HSyncOff == 0,
		vsync:   repaint1&repaint1VSyncOff == 0,
	}
}

// setDPMS enters synchronous reset, switches the display output and the
// sync signals, and leaves reset again if the display is on. The
// extended registers are left unlocked.
func (c *Core) setDPMS(s dpmsState) {
	c.io.SetSEQ(nvreg.SeqReset, 0x01)

	clk := c.io.SEQ(nvreg.SeqClockMode)
	if s.display {
		c.io.SetSEQ(nvreg.SeqClockMode, clk&^seqScreenOff)
		c.io.SetSEQ(nvreg.SeqReset, 0x03)
	} else {
		c.io.SetSEQ(nvreg.SeqClockMode, clk|seqScreenOff)
	}

	c.io.SetCRT(nvreg.CRTCLock, nvreg.UnlockKey)
	repaint1 := c.io.CRT(nvreg.CRTCRepaint1) &^ (repaint1HSyncOff | repaint1VSyncOff)
	if !s.hsync {
		repaint1 |= repaint1HSyncOff
	}
	if !s.vsync {
		repaint1 |= repaint1VSyncOff
	}
	c.io.SetCRT(nvreg.CRTCRepaint1, repaint1)
}

// setPalette loads a gray ramp scaled by brightness.
func (c *Core) setPalette(brightness float64) {
	c.io.SetDACMask(0xff)
	for i := 0; i < 256; i++ {
		v := min(int(float64(i)*brightness), 255)
		c.io.SetDACWriteIndex(uint8(i))
		c.io.SetDACData(uint8(v))
		c.io.SetDACData(uint8(v))
		c.io.SetDACData(uint8(v))
	}
}
