package nvidia

import (
	"nvfb/device/pci"
	"nvfb/kernel"
)

var (
	// ErrUnsupportedConfig is returned for display modes or configurations
	// that fail validation. Nothing is written to the hardware.
	ErrUnsupportedConfig = &kernel.Error{Module: "nvidia", Message: "unsupported configuration"}

	// ErrUnsupportedDepth is returned for pixel depths other than 8, 15,
	// 16 and 32 bits per pixel.
	ErrUnsupportedDepth = &kernel.Error{Module: "nvidia", Message: "unsupported bits per pixel"}

	// ErrUnsolvableClock is returned when no PLL divider combination
	// produces an in-range VCO frequency for the requested pixel clock.
	ErrUnsolvableClock = &kernel.Error{Module: "nvidia", Message: "no PLL divider combination reaches the requested pixel clock"}

	// ErrResourceBusy is returned when the adapter's register or memory
	// window is claimed by someone else.
	ErrResourceBusy = pci.ErrResourceBusy

	// ErrUnknownArchitecture indicates a programming error: an
	// architecture value outside the supported set reached a code path
	// that depends on it.
	ErrUnknownArchitecture = &kernel.Error{Module: "nvidia", Message: "unknown architecture"}

	// ErrDeviceUnresponsive is returned when a polled hardware condition
	// does not become true within the configured poll budget.
	ErrDeviceUnresponsive = &kernel.Error{Module: "nvidia", Message: "device unresponsive"}

	// ErrAlreadyOpen is returned by Open when a mode is already set.
	ErrAlreadyOpen = &kernel.Error{Module: "nvidia", Message: "device already open"}

	// ErrNotOpen is returned by Close and the drawing entry points when no
	// mode is set.
	ErrNotOpen = &kernel.Error{Module: "nvidia", Message: "device not open"}
)
