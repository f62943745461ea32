package regmodel

// Scramble fills every VGA register block, the DAC and the supplied 32-bit
// registers with pseudo-random values derived from seed. The lock state is
// left unchanged.
func (m *Model) Scramble(seed uint32, regs ...uint32) {
	x := seed | 1
	next := func() uint32 {
		// xorshift32
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		return x
	}

	for i := range m.crtc {
		m.crtc[i] = uint8(next())
	}
	for i := range m.seq {
		m.seq[i] = uint8(next())
	}
	for i := range m.grph {
		m.grph[i] = uint8(next())
	}
	for i := range m.attr {
		m.attr[i] = uint8(next())
	}
	for i := range m.palette {
		for c := range m.palette[i] {
			m.palette[i][c] = uint8(next())
		}
	}

	m.misc = uint8(next())
	m.palMask = uint8(next())

	for _, off := range regs {
		m.dwords[off&^3] = next()
	}
}
