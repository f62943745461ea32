package nvidia

import (
	"nvfb/device"
	"nvfb/device/pci"
)

// VendorID is the PCI vendor ID of NVidia.
const VendorID = 0x10de

// Chipset describes one supported adapter model.
type Chipset struct {
	DeviceID uint16
	Name     string
	Arch     Architecture

	// MaxVCOKHz overrides the architecture's PLL VCO limit when non-zero.
	MaxVCOKHz uint32
}

var chipsets = []Chipset{
	{DeviceID: 0x0020, Name: "RIVA TNT", Arch: NV04},
	{DeviceID: 0x0028, Name: "RIVA TNT2", Arch: NV04},
	{DeviceID: 0x0029, Name: "RIVA TNT2 Ultra", Arch: NV04},
	{DeviceID: 0x002c, Name: "Vanta", Arch: NV04},
	{DeviceID: 0x002d, Name: "RIVA TNT2 Model 64", Arch: NV04},
	{DeviceID: 0x0100, Name: "GeForce 256", Arch: NV10},
	{DeviceID: 0x0101, Name: "GeForce DDR", Arch: NV10},
	{DeviceID: 0x0110, Name: "GeForce2 MX/MX 400", Arch: NV10},
	{DeviceID: 0x0150, Name: "GeForce2 GTS", Arch: NV10},
	{DeviceID: 0x0170, Name: "GeForce4 MX 460", Arch: NV10},
	{DeviceID: 0x0171, Name: "GeForce4 MX 440", Arch: NV10},
	{DeviceID: 0x0200, Name: "GeForce3", Arch: NV20},
	{DeviceID: 0x0250, Name: "GeForce4 Ti 4600", Arch: NV20},
	{DeviceID: 0x0281, Name: "GeForce4 Ti 4200 AGP 8x", Arch: NV20},
	{DeviceID: 0x0286, Name: "GeForce4 4200 Go", Arch: NV20, MaxVCOKHz: 200000},
	{DeviceID: 0x0301, Name: "GeForce FX 5800 Ultra", Arch: NV30},
	{DeviceID: 0x0311, Name: "GeForce FX 5600 Ultra", Arch: NV30},
	{DeviceID: 0x0322, Name: "GeForce FX 5200", Arch: NV30},
}

// LookupChipset returns the chipset entry for a PCI device ID.
func LookupChipset(deviceID uint16) (Chipset, bool) {
	for _, c := range chipsets {
		if c.DeviceID == deviceID {
			return c, true
		}
	}
	return Chipset{}, false
}

// Chipsets returns the supported adapter models.
func Chipsets() []Chipset {
	return append([]Chipset(nil), chipsets...)
}

var (
	sysfsRoot = pci.DefaultSysfsRoot
	scanFn    = pci.Scan
)

// Probe returns a driver for every supported adapter on the PCI bus.
func Probe() ([]*Driver, error) {
	devices, err := scanFn(sysfsRoot)
	if err != nil {
		return nil, err
	}

	var drivers []*Driver
	for _, dev := range devices {
		if dev.Vendor != VendorID || dev.BaseClass() != pci.ClassDisplay {
			continue
		}
		if chip, ok := LookupChipset(dev.DeviceID); ok {
			drivers = append(drivers, NewDriver(dev, chip))
		}
	}
	return drivers, nil
}

func probeForNvidiaFb() device.Driver {
	drivers, err := Probe()
	if err != nil || len(drivers) == 0 {
		return nil
	}
	return drivers[0]
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderPCI,
		Probe: probeForNvidiaFb,
	})
}
