// Command nvmodeset sets a display mode on an NVidia adapter, draws a test
// pattern into it and restores the previous display state on exit.
//
//	nvmodeset -list
//	nvmodeset -mode 1024x768x32 -hold 5s
//	nvmodeset -dry-run -chip 0x0110 -mode 800x600x16 -image logo.png
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"nvfb/device"
	"nvfb/device/video/nvidia"
	"nvfb/device/video/nvidia/nvreg"
	"nvfb/device/video/nvidia/regmodel"
	"nvfb/kernel/kfmt"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[nvmodeset] error: %s\n", err.Error())
	os.Exit(1)
}

type options struct {
	list       bool
	mode       string
	vesa       string
	configFile string
	dryRun     bool
	chip       string
	hold       time.Duration
	imageFile  string
	cursorFile string
	ddcBits    int
	noAccel    bool
	verbose    bool
}

func parseFlags() options {
	var opts options
	flag.BoolVar(&opts.list, "list", false, "list the supported chipsets and configurations and exit")
	flag.StringVar(&opts.mode, "mode", "1024x768x32", "configuration to set")
	flag.StringVar(&opts.vesa, "vesa", "", "VESA mode number to set instead of -mode (e.g. 0x118)")
	flag.StringVar(&opts.configFile, "config", "", "YAML file with additional display modes")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "run against a software register model instead of the hardware")
	flag.StringVar(&opts.chip, "chip", "0x0110", "PCI device ID emulated by -dry-run")
	flag.DurationVar(&opts.hold, "hold", 3*time.Second, "time to keep the mode before restoring the display")
	flag.StringVar(&opts.imageFile, "image", "", "image to scale onto the screen")
	flag.StringVar(&opts.cursorFile, "cursor", "", "image to load into the hardware cursor")
	flag.IntVar(&opts.ddcBits, "ddc-bits", 0, "number of DDC1 bits to read from the monitor")
	flag.BoolVar(&opts.noAccel, "no-accel", false, "draw with the CPU instead of the 2D engine")
	flag.BoolVar(&opts.verbose, "v", false, "print driver log output as it is produced")
	flag.Parse()
	return opts
}

func loadConfigurations(path string) (*nvidia.ConfigSet, error) {
	set := nvidia.DefaultConfigurations()
	if path == "" {
		return set, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := set.Load(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

func selectConfiguration(set *nvidia.ConfigSet, opts options) (*nvidia.Configuration, error) {
	if opts.vesa == "" {
		return set.Lookup(opts.mode)
	}

	mode, err := strconv.ParseUint(opts.vesa, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid VESA mode %q: %w", opts.vesa, err)
	}
	return set.LookupVESA(uint16(mode))
}

func listAll(w io.Writer, set *nvidia.ConfigSet) {
	fmt.Fprintln(w, "chipsets:")
	for _, chip := range nvidia.Chipsets() {
		fmt.Fprintf(w, "  %04x:%04x  %-4s  %s\n", nvidia.VendorID, chip.DeviceID, chip.Arch, chip.Name)
	}

	fmt.Fprintln(w, "configurations:")
	for _, cfg := range set.List() {
		vesa := "     "
		if cfg.VESAMode != 0 {
			vesa = fmt.Sprintf("0x%03x", cfg.VESAMode)
		}
		fmt.Fprintf(w, "  %-14s %s  %-8s %s\n", cfg.Name, vesa, cfg.ColorModel, cfg.Mode)
	}
}

// display is the part of the driver the command needs.
type display interface {
	Open(*nvidia.Configuration) (*nvidia.Surface, error)
	Close() error
}

type adapter struct {
	display
	core *nvidia.Core
}

func openHardware(logw io.Writer) (*adapter, error) {
	for _, drv := range device.ProbeAll() {
		nv, ok := drv.(*nvidia.Driver)
		if !ok {
			continue
		}
		if err := nv.DriverInit(logw); err != nil {
			return nil, fmt.Errorf("%s: %w", nv.Device(), err)
		}
		return &adapter{display: nv, core: nv.Core()}, nil
	}
	return nil, errors.New("no supported NVidia adapter found")
}

func openModel(logw io.Writer, chipID string) (*adapter, error) {
	id, err := strconv.ParseUint(chipID, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid chip ID %q: %w", chipID, err)
	}
	chip, ok := nvidia.LookupChipset(uint16(id))
	if !ok {
		return nil, fmt.Errorf("unsupported chip ID 0x%04x", id)
	}

	m := regmodel.New()
	m.Poke(nvreg.NV10StrapInfo, 32<<20)
	m.Poke(nvreg.NV4StrapInfo, 0)

	// Toggle the retrace bit so DDC1 reads make progress.
	var reads uint
	m.SetStatusHook(func() uint8 {
		reads++
		if reads&2 != 0 {
			return nvreg.StatVRetrace
		}
		return 0
	})

	logger := slog.New(slog.NewTextHandler(kfmt.NewPrefixWriter(logw, "[nvidia] "), &slog.HandlerOptions{Level: slog.LevelDebug}))
	core, err := nvidia.NewCore(nvidia.Resources{
		MMIO: m,
		VRAM: make(device.MemRegion, 32<<20),
	}, chip, nvidia.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &adapter{display: core, core: core}, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func rgbColor(rgb uint32) color.RGBA {
	return color.RGBA{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb), A: 0xff}
}

// drawPattern fills the screen with color bars and inverts a frame around
// them.
func drawPattern(s *nvidia.Surface) error {
	bars := []uint32{0xffffff, 0xffff00, 0x00ffff, 0x00ff00, 0xff00ff, 0xff0000, 0x0000ff, 0x000000}
	w, h := s.Width(), s.Height()
	barWidth := w / len(bars)

	for i, rgb := range bars {
		c := s.ConvertColor(rgbColor(rgb))
		if err := s.FillRect(i*barWidth, 0, barWidth, h, c, nvidia.PaintMode); err != nil {
			return err
		}
	}

	border := h / 16
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, w, border),
		image.Rect(0, h-border, w, h),
	} {
		if err := s.InvertRect(r.Min.X, r.Min.Y, r.Dx(), r.Dy()); err != nil {
			return err
		}
	}
	return nil
}

func run(opts options, logw io.Writer) error {
	set, err := loadConfigurations(opts.configFile)
	if err != nil {
		return err
	}
	if opts.list {
		listAll(os.Stdout, set)
		return nil
	}

	cfg, err := selectConfiguration(set, opts)
	if err != nil {
		return err
	}

	var ad *adapter
	if opts.dryRun {
		ad, err = openModel(logw, opts.chip)
	} else {
		ad, err = openHardware(logw)
	}
	if err != nil {
		return err
	}

	if opts.ddcBits > 0 {
		if err := readDDC(ad.core, opts.ddcBits); err != nil {
			return err
		}
	}

	surf, err := ad.Open(cfg)
	if err != nil {
		return err
	}
	surf.SetAccelerated(!opts.noAccel)

	drawErr := draw(ad.core, surf, opts)
	if drawErr == nil {
		time.Sleep(opts.hold)
	}
	return errors.Join(drawErr, ad.Close())
}

func draw(core *nvidia.Core, surf *nvidia.Surface, opts options) error {
	if err := drawPattern(surf); err != nil {
		return err
	}

	if opts.imageFile != "" {
		img, err := loadImage(opts.imageFile)
		if err != nil {
			return err
		}
		w, h := surf.Width()/2, surf.Height()/2
		dr := image.Rect(w/2, h/2, w/2+w, h/2+h)
		if err := surf.DrawScaled(img, dr); err != nil {
			return err
		}
	}

	if opts.cursorFile != "" {
		img, err := loadImage(opts.cursorFile)
		if err != nil {
			return err
		}
		cur := core.HardwareCursor()
		if err := cur.SetCursorImage(img); err != nil {
			return err
		}
		cur.SetCursorPosition(surf.Width()/2, surf.Height()/2)
		cur.SetCursorVisible(true)
	}
	return nil
}

func readDDC(core *nvidia.Core, bits int) error {
	core.SetupDDC1()
	defer core.CloseDDC1()

	out := make([]byte, 0, bits)
	for i := 0; i < bits; i++ {
		bit, err := core.GetDDC1Bit()
		if err != nil {
			return err
		}
		if bit {
			out = append(out, '1')
		} else {
			out = append(out, '0')
		}
	}
	fmt.Printf("ddc1: %s\n", out)
	return nil
}

func main() {
	opts := parseFlags()

	// Driver output is kept in memory and only shown when something fails.
	logBuf := kfmt.NewRingBuffer(kfmt.DefaultRingBufferSize)
	var logw io.Writer = logBuf
	if opts.verbose {
		logw = os.Stderr
	}

	if err := run(opts, logw); err != nil {
		if logBuf.Len() != 0 {
			io.Copy(os.Stderr, logBuf)
		}
		exit(err)
	}
}
