// Package pci enumerates PCI devices through the Linux sysfs interface and
// maps their base address registers into the process address space.
package pci

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"nvfb/kernel"
)

// DefaultSysfsRoot is the directory where the kernel publishes one entry per
// PCI function.
const DefaultSysfsRoot = "/sys/bus/pci/devices"

// ClassDisplay is the PCI base class code of display controllers.
const ClassDisplay = 0x03

var (
	// ErrResourceBusy is returned by Claim when another process holds the
	// exclusive claim on a BAR.
	ErrResourceBusy = &kernel.Error{Module: "pci", Message: "resource is claimed by another process"}

	// ErrNoSuchResource is returned by Claim for BARs that the device does
	// not implement.
	ErrNoSuchResource = &kernel.Error{Module: "pci", Message: "no such resource"}

	errBadAttribute = &kernel.Error{Module: "pci", Message: "malformed sysfs attribute"}
)

// Device describes a single PCI function.
type Device struct {
	// Addr is the domain:bus:device.function address, e.g. "0000:01:00.0".
	Addr string

	Vendor   uint16
	DeviceID uint16

	// Class holds the 24-bit class code (base class, subclass, prog-if).
	Class    uint32
	Revision uint8

	path string
}

// BaseClass returns the upper byte of the class code.
func (d *Device) BaseClass() uint8 {
	return uint8(d.Class >> 16)
}

func (d *Device) String() string {
	return fmt.Sprintf("%s [%04x:%04x] class %06x rev %02x", d.Addr, d.Vendor, d.DeviceID, d.Class, d.Revision)
}

// Scan returns the PCI functions listed under root sorted by address. Entries
// with unreadable attributes are skipped.
func Scan(root string) ([]*Device, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	var devices []*Device
	for _, entry := range entries {
		dev, err := readDevice(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Addr < devices[j].Addr })
	return devices, nil
}

func readDevice(path string) (*Device, error) {
	dev := &Device{Addr: filepath.Base(path), path: path}

	vendor, err := readHexAttr(path, "vendor", 16)
	if err != nil {
		return nil, err
	}
	device, err := readHexAttr(path, "device", 16)
	if err != nil {
		return nil, err
	}
	class, err := readHexAttr(path, "class", 24)
	if err != nil {
		return nil, err
	}

	dev.Vendor = uint16(vendor)
	dev.DeviceID = uint16(device)
	dev.Class = uint32(class)

	// Older kernels do not publish the revision attribute.
	if rev, err := readHexAttr(path, "revision", 8); err == nil {
		dev.Revision = uint8(rev)
	}

	return dev, nil
}

func readHexAttr(dir, name string, bits int) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, err
	}

	text := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	v, err := strconv.ParseUint(text, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %q", errBadAttribute, dir, name, text)
	}

	return v, nil
}

func (d *Device) resourcePath(bar int) string {
	return filepath.Join(d.path, "resource"+strconv.Itoa(bar))
}
