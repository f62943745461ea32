package device

import (
	"io"
	"sort"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer. A nil
	// writer discards all output.
	DriverInit(io.Writer) error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it. It returns nil if the
// hardware is not present.
type ProbeFn func() Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hardware detection code.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver must be probed before
	// any bus enumeration takes place.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderPCI specifies that the driver is discovered by scanning
	// the PCI bus.
	DetectOrderPCI DetectOrder = 0

	// DetectOrderLast specifies that the driver must be probed after all
	// other drivers. Fallback drivers use this.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver-defined struct that is passed to calls to RegisterDriver.
type DriverInfo struct {
	// Order specifies at which stage of the hardware detection process
	// this driver's probe function should be invoked.
	Order DetectOrder

	// Probe is the driver's probe function.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap swaps 2 elements of the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less is used by the sort package to sort the list by DetectOrder.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var registeredDrivers DriverInfoList

// RegisterDriver adds the supplied driver info to the list of drivers that
// get probed during hardware detection. Drivers call it from an init() block.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}

// ProbeAll sorts the registered drivers by detect order, invokes each probe
// function and returns the drivers that detected their hardware.
func ProbeAll() []Driver {
	list := make(DriverInfoList, len(registeredDrivers))
	copy(list, registeredDrivers)
	sort.Stable(list)

	var found []Driver
	for _, info := range list {
		if info.Probe == nil {
			continue
		}

		if drv := info.Probe(); drv != nil {
			found = append(found, drv)
		}
	}

	return found
}
