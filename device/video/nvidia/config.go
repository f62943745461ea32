package nvidia

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModeFlags carries the sync polarity of a display mode.
type ModeFlags uint8

const (
	PositiveHSync ModeFlags = 1 << iota
	PositiveVSync
)

// DisplayMode describes the timing of a video mode. Horizontal values are in
// pixels, vertical values in lines.
type DisplayMode struct {
	Name          string
	PixelClockKHz uint32

	Width      uint32
	HSyncStart uint32
	HSyncEnd   uint32
	HTotal     uint32

	Height     uint32
	VSyncStart uint32
	VSyncEnd   uint32
	VTotal     uint32

	Flags ModeFlags
}

func (m DisplayMode) String() string {
	return fmt.Sprintf("%dx%d@%dkHz h(%d %d %d) v(%d %d %d)",
		m.Width, m.Height, m.PixelClockKHz,
		m.HSyncStart, m.HSyncEnd, m.HTotal,
		m.VSyncStart, m.VSyncEnd, m.VTotal)
}

// Validate checks that the mode can be expressed in the CRTC registers.
func (m DisplayMode) Validate() error {
	switch {
	case m.PixelClockKHz == 0:
		return fmt.Errorf("%w: %s: zero pixel clock", ErrUnsupportedConfig, m.Name)
	case m.Width == 0 || m.Height == 0:
		return fmt.Errorf("%w: %s: empty display area", ErrUnsupportedConfig, m.Name)
	case m.Width%8 != 0 || m.HTotal%8 != 0:
		return fmt.Errorf("%w: %s: horizontal values must be multiples of 8", ErrUnsupportedConfig, m.Name)
	case !(m.Width <= m.HSyncStart && m.HSyncStart < m.HSyncEnd && m.HSyncEnd <= m.HTotal):
		return fmt.Errorf("%w: %s: horizontal timing out of order", ErrUnsupportedConfig, m.Name)
	case !(m.Height <= m.VSyncStart && m.VSyncStart < m.VSyncEnd && m.VSyncEnd <= m.VTotal):
		return fmt.Errorf("%w: %s: vertical timing out of order", ErrUnsupportedConfig, m.Name)
	case m.HTotal/8-5 > 0x1ff:
		return fmt.Errorf("%w: %s: horizontal total too large", ErrUnsupportedConfig, m.Name)
	case m.Width/8-1 > 0x1ff || m.HSyncStart/8 > 0x1ff:
		// Display end, blank start and sync start are 9 bit fields.
		return fmt.Errorf("%w: %s: horizontal display or sync start too large", ErrUnsupportedConfig, m.Name)
	case m.VTotal-2 > 0xfff:
		return fmt.Errorf("%w: %s: vertical total too large", ErrUnsupportedConfig, m.Name)
	case m.VSyncStart > 0xfff:
		return fmt.Errorf("%w: %s: vertical sync start too large", ErrUnsupportedConfig, m.Name)
	}

	return nil
}

// ColorModel describes how pixel values are laid out in video memory.
type ColorModel uint8

const (
	// ColorIndexed8 uses the DAC palette, which is loaded with a gray ramp.
	ColorIndexed8 ColorModel = iota
	ColorRGB555
	ColorRGB565
	ColorXRGB8888
)

func (c ColorModel) String() string {
	switch c {
	case ColorIndexed8:
		return "indexed8"
	case ColorRGB555:
		return "rgb555"
	case ColorRGB565:
		return "rgb565"
	case ColorXRGB8888:
		return "xrgb8888"
	}
	return fmt.Sprintf("ColorModel(%d)", uint8(c))
}

func colorModelFor(bpp int) (ColorModel, error) {
	switch bpp {
	case 8:
		return ColorIndexed8, nil
	case 15:
		return ColorRGB555, nil
	case 16:
		return ColorRGB565, nil
	case 32:
		return ColorXRGB8888, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedDepth, bpp)
}

// Configuration is a display mode combined with a pixel depth and the
// memory arbitration values that suit it.
type Configuration struct {
	Name     string
	VESAMode uint16

	Mode         DisplayMode
	BitsPerPixel int
	ColorModel   ColorModel

	// Arbitration0 and Arbitration1 are the CRTC FIFO burst size and low
	// watermark.
	Arbitration0 uint8
	Arbitration1 uint8

	// ScreenFlags is merged into CRTC repaint register 1.
	ScreenFlags uint8
}

// BytesPerPixel returns the size of a pixel in video memory.
func (c *Configuration) BytesPerPixel() uint32 {
	return uint32(c.BitsPerPixel+1) / 8
}

// BytesPerLine returns the pitch of a scan line.
func (c *Configuration) BytesPerLine() uint32 {
	return c.Mode.Width * c.BytesPerPixel()
}

// Validate checks the configuration before any register is touched.
func (c *Configuration) Validate() error {
	model, err := colorModelFor(c.BitsPerPixel)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsupportedConfig, c.Name, err)
	}
	if model != c.ColorModel {
		return fmt.Errorf("%w: %s: color model %s does not match %d bpp", ErrUnsupportedConfig, c.Name, c.ColorModel, c.BitsPerPixel)
	}
	if offset := c.BytesPerLine() / 8; offset > 0x7ff {
		return fmt.Errorf("%w: %s: scan line pitch too large", ErrUnsupportedConfig, c.Name)
	}

	return c.Mode.Validate()
}

func (c *Configuration) String() string {
	return c.Name
}

// VESA compatible timings.
var (
	mode640x480 = DisplayMode{
		Name: "640x480", PixelClockKHz: 25175,
		Width: 640, HSyncStart: 656, HSyncEnd: 752, HTotal: 800,
		Height: 480, VSyncStart: 490, VSyncEnd: 492, VTotal: 525,
	}
	mode800x600 = DisplayMode{
		Name: "800x600", PixelClockKHz: 40000,
		Width: 800, HSyncStart: 840, HSyncEnd: 968, HTotal: 1056,
		Height: 600, VSyncStart: 601, VSyncEnd: 605, VTotal: 628,
		Flags: PositiveHSync | PositiveVSync,
	}
	mode1024x768 = DisplayMode{
		Name: "1024x768", PixelClockKHz: 65000,
		Width: 1024, HSyncStart: 1048, HSyncEnd: 1184, HTotal: 1344,
		Height: 768, VSyncStart: 771, VSyncEnd: 777, VTotal: 806,
	}
	mode1280x1024 = DisplayMode{
		Name: "1280x1024", PixelClockKHz: 108000,
		Width: 1280, HSyncStart: 1328, HSyncEnd: 1440, HTotal: 1688,
		Height: 1024, VSyncStart: 1025, VSyncEnd: 1028, VTotal: 1066,
		Flags: PositiveHSync | PositiveVSync,
	}
)

// arbitration returns the FIFO burst size and low watermark for a pixel
// depth; deeper modes drain the CRTC FIFO faster and need an earlier refill.
func arbitration(bpp int) (uint8, uint8) {
	switch bpp {
	case 8:
		return 0x03, 0x20
	case 15, 16:
		return 0x03, 0x30
	default:
		return 0x04, 0x40
	}
}

func newConfiguration(vesa uint16, mode DisplayMode, bpp int) *Configuration {
	model, err := colorModelFor(bpp)
	if err != nil {
		panic(err)
	}

	arb0, arb1 := arbitration(bpp)
	return &Configuration{
		Name:         fmt.Sprintf("%sx%d", mode.Name, bpp),
		VESAMode:     vesa,
		Mode:         mode,
		BitsPerPixel: bpp,
		ColorModel:   model,
		Arbitration0: arb0,
		Arbitration1: arb1,
	}
}

var builtinConfigurations = []*Configuration{
	newConfiguration(0x101, mode640x480, 8),
	newConfiguration(0x110, mode640x480, 15),
	newConfiguration(0x111, mode640x480, 16),
	newConfiguration(0x112, mode640x480, 32),
	newConfiguration(0x103, mode800x600, 8),
	newConfiguration(0x113, mode800x600, 15),
	newConfiguration(0x114, mode800x600, 16),
	newConfiguration(0x115, mode800x600, 32),
	newConfiguration(0x105, mode1024x768, 8),
	newConfiguration(0x116, mode1024x768, 15),
	newConfiguration(0x117, mode1024x768, 16),
	newConfiguration(0x118, mode1024x768, 32),
	newConfiguration(0x119, mode1280x1024, 15),
	newConfiguration(0x11a, mode1280x1024, 16),
	newConfiguration(0x11b, mode1280x1024, 32),
}

// ConfigSet is a collection of configurations that can be searched by name
// or VESA mode number.
type ConfigSet struct {
	configs []*Configuration
	byName  map[string]*Configuration
	byVESA  map[uint16]*Configuration
}

// DefaultConfigurations returns a set containing the built-in VESA
// compatible configurations.
func DefaultConfigurations() *ConfigSet {
	set := &ConfigSet{
		byName: make(map[string]*Configuration),
		byVESA: make(map[uint16]*Configuration),
	}
	for _, cfg := range builtinConfigurations {
		set.add(cfg)
	}
	return set
}

// add inserts cfg or replaces the configuration of the same name. A
// replacement without a VESA number inherits the one it replaces. The
// configuration added last owns its VESA number.
func (s *ConfigSet) add(cfg *Configuration) {
	old, exists := s.byName[cfg.Name]
	if !exists {
		s.configs = append(s.configs, cfg)
	} else {
		if cfg.VESAMode == 0 {
			cfg.VESAMode = old.VESAMode
		}
		if s.byVESA[old.VESAMode] == old {
			delete(s.byVESA, old.VESAMode)
		}
		for i, existing := range s.configs {
			if existing == old {
				s.configs[i] = cfg
			}
		}
	}

	s.byName[cfg.Name] = cfg
	if cfg.VESAMode != 0 {
		s.byVESA[cfg.VESAMode] = cfg
	}
}

// List returns the configurations sorted by resolution and depth.
func (s *ConfigSet) List() []*Configuration {
	out := make([]*Configuration, len(s.configs))
	copy(out, s.configs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Mode.Width != b.Mode.Width {
			return a.Mode.Width < b.Mode.Width
		}
		if a.Mode.Height != b.Mode.Height {
			return a.Mode.Height < b.Mode.Height
		}
		return a.BitsPerPixel < b.BitsPerPixel
	})
	return out
}

// Lookup returns the configuration with the given name, e.g. "1024x768x32".
func (s *ConfigSet) Lookup(name string) (*Configuration, error) {
	if cfg, ok := s.byName[name]; ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("%w: no configuration named %q", ErrUnsupportedConfig, name)
}

// LookupVESA returns the configuration equivalent to a VESA mode number.
// Loaded entries take precedence over built-in ones with the same number.
func (s *ConfigSet) LookupVESA(mode uint16) (*Configuration, error) {
	if cfg, ok := s.byVESA[mode]; ok && mode != 0 {
		return cfg, nil
	}
	return nil, fmt.Errorf("%w: no configuration for VESA mode 0x%x", ErrUnsupportedConfig, mode)
}

// modeEntry is the on-disk form of a configuration.
type modeEntry struct {
	Name       string `yaml:"name"`
	VESA       uint16 `yaml:"vesa"`
	ClockKHz   uint32 `yaml:"clock_khz"`
	Width      uint32 `yaml:"width"`
	HSyncStart uint32 `yaml:"hsync_start"`
	HSyncEnd   uint32 `yaml:"hsync_end"`
	HTotal     uint32 `yaml:"htotal"`
	Height     uint32 `yaml:"height"`
	VSyncStart uint32 `yaml:"vsync_start"`
	VSyncEnd   uint32 `yaml:"vsync_end"`
	VTotal     uint32 `yaml:"vtotal"`
	HSyncPos   bool   `yaml:"positive_hsync"`
	VSyncPos   bool   `yaml:"positive_vsync"`
	Depths     []int  `yaml:"depths"`

	// Arbitration optionally overrides the per-depth defaults.
	Arbitration []uint8 `yaml:"arbitration"`
	ScreenFlags uint8   `yaml:"screen_flags"`
}

type configFile struct {
	Modes []modeEntry `yaml:"modes"`
}

// Load parses a YAML mode list and adds one configuration per mode and
// depth to the set. Entries replace built-in configurations with the same
// name. Every entry is validated; the set is not modified if any entry is
// invalid.
//
//	modes:
//	  - name: 1152x864
//	    clock_khz: 108000
//	    width: 1152
//	    hsync_start: 1216
//	    hsync_end: 1344
//	    htotal: 1600
//	    height: 864
//	    vsync_start: 865
//	    vsync_end: 868
//	    vtotal: 900
//	    positive_hsync: true
//	    positive_vsync: true
//	    depths: [16, 32]
func (s *ConfigSet) Load(r io.Reader) error {
	var file configFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse mode list: %w", ErrUnsupportedConfig, err)
	}

	var parsed []*Configuration
	for i, entry := range file.Modes {
		if entry.Name == "" {
			entry.Name = fmt.Sprintf("%dx%d", entry.Width, entry.Height)
		}
		if len(entry.Depths) == 0 {
			return fmt.Errorf("%w: mode %d (%s): no depths listed", ErrUnsupportedConfig, i, entry.Name)
		}
		if n := len(entry.Arbitration); n != 0 && n != 2 {
			return fmt.Errorf("%w: mode %d (%s): arbitration needs exactly 2 values", ErrUnsupportedConfig, i, entry.Name)
		}

		mode := DisplayMode{
			Name:          entry.Name,
			PixelClockKHz: entry.ClockKHz,
			Width:         entry.Width,
			HSyncStart:    entry.HSyncStart,
			HSyncEnd:      entry.HSyncEnd,
			HTotal:        entry.HTotal,
			Height:        entry.Height,
			VSyncStart:    entry.VSyncStart,
			VSyncEnd:      entry.VSyncEnd,
			VTotal:        entry.VTotal,
		}
		if entry.HSyncPos {
			mode.Flags |= PositiveHSync
		}
		if entry.VSyncPos {
			mode.Flags |= PositiveVSync
		}

		for _, bpp := range entry.Depths {
			model, err := colorModelFor(bpp)
			if err != nil {
				return fmt.Errorf("%w: mode %d (%s): %w", ErrUnsupportedConfig, i, entry.Name, err)
			}

			arb0, arb1 := arbitration(bpp)
			if len(entry.Arbitration) == 2 {
				arb0, arb1 = entry.Arbitration[0], entry.Arbitration[1]
			}

			cfg := &Configuration{
				Name:         fmt.Sprintf("%sx%d", entry.Name, bpp),
				VESAMode:     entry.VESA,
				Mode:         mode,
				BitsPerPixel: bpp,
				ColorModel:   model,
				Arbitration0: arb0,
				Arbitration1: arb1,
				ScreenFlags:  entry.ScreenFlags,
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("mode %d: %w", i, err)
			}
			parsed = append(parsed, cfg)
		}
	}

	for _, cfg := range parsed {
		s.add(cfg)
	}
	return nil
}
