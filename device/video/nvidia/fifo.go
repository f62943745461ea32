package nvidia

import (
	"fmt"
	"time"
)

// PollConfig bounds the busy-wait loops that wait for the acceleration
// engine's command FIFO.
type PollConfig struct {
	// Interval is the sleep between two polls.
	Interval time.Duration

	// MaxPolls is the number of sleeps after which the device is
	// considered unresponsive.
	MaxPolls int
}

// DefaultPollConfig waits up to 5 seconds in 10ms steps.
var DefaultPollConfig = PollConfig{
	Interval: 10 * time.Millisecond,
	MaxPolls: 500,
}

var sleepFn = time.Sleep

// waitFIFO polls the 16-bit free-space register reg until at least words
// 32-bit command words fit in the FIFO.
func (a *Accelerator) waitFIFO(reg uint32, words uint16) error {
	for polls := 0; ; polls++ {
		free := a.io.Reg16(reg) >> 2
		if free >= words {
			return nil
		}

		if polls >= a.poll.MaxPolls {
			return fmt.Errorf("%w: FIFO 0x%06x has room for %d of %d words after %d polls",
				ErrDeviceUnresponsive, reg, free, words, polls)
		}

		sleepFn(a.poll.Interval)
	}
}
