package nvidia

import (
	"fmt"

	"nvfb/device/video/nvidia/nvreg"
)

// SetupDDC1 prepares a DDC1 readout by enabling the extended CRTC
// registers that carry the DDC lines. It does nothing once the register
// windows are released.
func (c *Core) SetupDDC1() {
	if c.released {
		return
	}
	c.io.SetCRT(nvreg.CRTCLock, nvreg.UnlockKey)
}

// GetDDC1Bit waits for the start of the next vertical retrace and samples
// the DDC data line. The monitor clocks one bit per frame.
func (c *Core) GetDDC1Bit() (bool, error) {
	if c.released {
		return false, ErrNotOpen
	}
	if err := c.waitRetrace(true); err != nil {
		return false, err
	}
	if err := c.waitRetrace(false); err != nil {
		return false, err
	}

	return c.io.CRT(nvreg.CRTCDDC)&nvreg.DDCSDARead != 0, nil
}

// waitRetrace spins while the vertical retrace bit equals inRetrace.
func (c *Core) waitRetrace(inRetrace bool) error {
	for spins := 0; spins < c.ddcSpin; spins++ {
		if (c.io.Stat()&nvreg.StatVRetrace != 0) != inRetrace {
			return nil
		}
	}
	return fmt.Errorf("%w: vertical retrace bit stuck at %t after %d reads",
		ErrDeviceUnresponsive, inRetrace, c.ddcSpin)
}

// CloseDDC1 ends a DDC1 readout. The extended registers stay unlocked
// since the display mode code relies on them.
func (c *Core) CloseDDC1() {}
