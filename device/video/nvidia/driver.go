package nvidia

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"nvfb/device"
	"nvfb/device/pci"
	"nvfb/kernel/kfmt"
)

const (
	mmioBAR = 0
	vramBAR = 1

	// mmioWindowSize is the size of the register window every supported
	// chip decodes.
	mmioWindowSize = 0x1000000
)

// claimedRegion is a register window that must be handed back when the
// driver is done with it.
type claimedRegion interface {
	device.Region
	Release() error
}

var claimBARFn = func(dev *pci.Device, bar int) (claimedRegion, error) {
	r, err := dev.Claim(bar)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Driver binds the mode-set core to one PCI adapter. It implements
// device.Driver.
type Driver struct {
	dev  *pci.Device
	chip Chipset
	opts Options

	log  *slog.Logger
	core *Core
}

// NewDriver returns a driver for dev. No resources are claimed until
// DriverInit is called.
func NewDriver(dev *pci.Device, chip Chipset) *Driver {
	return &Driver{dev: dev, chip: chip}
}

// SetOptions replaces the options used for the next core created by the
// driver. The logger is overridden by DriverInit.
func (d *Driver) SetOptions(opts Options) { d.opts = opts }

// DriverName returns the name of this driver.
func (d *Driver) DriverName() string {
	return "nvidia_fb"
}

// DriverVersion returns the version of this driver.
func (d *Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// Chipset returns the adapter model the driver was probed for.
func (d *Driver) Chipset() Chipset { return d.chip }

// Device returns the PCI function driven by this driver.
func (d *Driver) Device() *pci.Device { return d.dev }

// Core returns the mode-set core or nil before DriverInit succeeds.
func (d *Driver) Core() *Core { return d.core }

// DriverInit claims the register and memory windows of the adapter and
// detects its configuration. Log output goes to w.
func (d *Driver) DriverInit(w io.Writer) error {
	d.log = slog.New(slog.NewTextHandler(kfmt.NewPrefixWriter(w, "[nvidia] "), &slog.HandlerOptions{Level: slog.LevelDebug}))
	d.log.Info("found adapter", "pci", d.dev.Addr, "chip", d.chip.Name, "rev", fmt.Sprintf("0x%02x", d.dev.Revision))

	return d.attach()
}

func (d *Driver) attach() error {
	mmio, err := claimBARFn(d.dev, mmioBAR)
	if err != nil {
		return err
	}
	if mmio.Size() < mmioWindowSize {
		mmio.Release()
		return fmt.Errorf("%w: %s BAR%d is %d bytes", pci.ErrNoSuchResource, d.dev.Addr, mmioBAR, mmio.Size())
	}

	vram, err := claimBARFn(d.dev, vramBAR)
	if err != nil {
		mmio.Release()
		return err
	}

	opts := d.opts
	opts.Logger = d.log
	core, err := NewCore(Resources{
		MMIO: mmio,
		VRAM: vram,
		Release: func() error {
			return errors.Join(vram.Release(), mmio.Release())
		},
	}, d.chip, opts)
	if err != nil {
		vram.Release()
		mmio.Release()
		return err
	}

	d.core = core
	return nil
}

// Open sets the display mode cfg. The adapter windows are claimed again
// if a previous Close released them.
func (d *Driver) Open(cfg *Configuration) (*Surface, error) {
	if d.core == nil || d.core.released {
		if d.log == nil {
			d.log = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		if err := d.attach(); err != nil {
			return nil, err
		}
	}
	return d.core.Open(cfg)
}

// Close restores the display state found by Open and releases the
// adapter windows.
func (d *Driver) Close() error {
	if d.core == nil {
		return ErrNotOpen
	}
	return d.core.Close()
}
