package nvidia

import (
	"fmt"

	"nvfb/device/video/nvidia/nvreg"
)

// Reference crystal frequencies.
const (
	Crystal13500KHz = 13500
	Crystal14318KHz = 14318
)

const (
	minVCOKHz = 128000

	// pllSelectC routes the pixel clock from PLL register set C.
	pllSelectC = 0x10000700
)

// ClockSolution holds the pixel PLL dividers for a target frequency.
type ClockSolution struct {
	M, N, P uint32

	// FreqKHz is the frequency the dividers actually produce.
	FreqKHz uint32
}

// Packed returns the PixelPLL register value for the solution.
func (s ClockSolution) Packed() uint32 {
	return s.P<<16 | s.N<<8 | s.M
}

func (s ClockSolution) String() string {
	return fmt.Sprintf("M=%d N=%d P=%d (%d kHz)", s.M, s.N, s.P, s.FreqKHz)
}

// pllLimits returns the inclusive post divider and feedback divider ranges.
func pllLimits(crystalKHz uint32, narrow bool) (highP, lowM, highM uint32) {
	highP, lowM, highM = 4, 7, 13
	if crystalKHz == Crystal14318KHz {
		lowM, highM = 8, 14
	}
	if narrow {
		highP--
		highM--
	}
	return highP, lowM, highM
}

// SolveClock searches the PLL divider space for the combination whose output
// is closest to targetKHz. The post divider P is scanned in the outer loop
// and the feedback divider M in the inner loop, both ascending; on equal
// error the first combination found wins. Candidates whose VCO frequency
// (target << P) lies outside [128000, maxVCOKHz] are skipped, as are
// candidates whose N does not fit the 8-bit divider field.
func SolveClock(targetKHz, crystalKHz, maxVCOKHz uint32, arch Architecture) (ClockSolution, error) {
	ai, err := arch.info()
	if err != nil {
		return ClockSolution{}, err
	}
	if targetKHz == 0 || crystalKHz == 0 {
		return ClockSolution{}, fmt.Errorf("%w: target %d kHz, crystal %d kHz", ErrUnsolvableClock, targetKHz, crystalKHz)
	}

	var (
		best             ClockSolution
		bestDelta        uint32
		found            bool
		highP, lowM, hiM = pllLimits(crystalKHz, ai.narrowPLL)
	)

	for p := uint32(0); p <= highP; p++ {
		vco := targetKHz << p
		if vco < minVCOKHz || vco > maxVCOKHz {
			continue
		}

		for m := lowM; m <= hiM; m++ {
			n := ((targetKHz * m) / crystalKHz) << p
			if n < 1 || n > 0xff {
				continue
			}

			freq := (crystalKHz * n / m) >> p
			delta := freq - targetKHz
			if freq < targetKHz {
				delta = targetKHz - freq
			}

			if !found || delta < bestDelta {
				best = ClockSolution{M: m, N: n, P: p, FreqKHz: freq}
				bestDelta = delta
				found = true
			}
		}
	}

	if !found {
		return ClockSolution{}, fmt.Errorf("%w: target %d kHz, crystal %d kHz, VCO range %d-%d kHz",
			ErrUnsolvableClock, targetKHz, crystalKHz, minVCOKHz, maxVCOKHz)
	}

	return best, nil
}

// programPLL selects PLL register set C and loads the dividers.
func programPLL(io *VgaIO, sol ClockSolution) {
	io.SetReg32(nvreg.PLLSelect, pllSelectC)
	io.SetReg32(nvreg.PixelPLL, sol.Packed())
}

// detectCrystal returns the reference crystal frequency from the strap
// register.
func detectCrystal(io *VgaIO) uint32 {
	if io.Reg32(nvreg.StrapInfo2)&0x40 != 0 {
		return Crystal14318KHz
	}
	return Crystal13500KHz
}
