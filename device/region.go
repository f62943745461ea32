package device

// Region is a window of device registers or device memory. Offsets are
// relative to the start of the window. Accesses are unbuffered and each call
// results in exactly one bus transaction; callers are responsible for using
// offsets that are in range and naturally aligned for the access width.
type Region interface {
	Read8(off uint32) uint8
	Read16(off uint32) uint16
	Read32(off uint32) uint32

	Write8(off uint32, v uint8)
	Write16(off uint32, v uint16)
	Write32(off uint32, v uint32)

	// Size returns the size of the window in bytes.
	Size() uint32
}

// MemRegion is a Region backed by a plain byte slice. It is used for
// off-screen buffers and by tests that need a video memory stand-in.
type MemRegion []byte

// Read8 returns the byte at off.
func (m MemRegion) Read8(off uint32) uint8 { return m[off] }

// Read16 returns the little-endian 16-bit value at off.
func (m MemRegion) Read16(off uint32) uint16 {
	return uint16(m[off]) | uint16(m[off+1])<<8
}

// Read32 returns the little-endian 32-bit value at off.
func (m MemRegion) Read32(off uint32) uint32 {
	return uint32(m[off]) | uint32(m[off+1])<<8 | uint32(m[off+2])<<16 | uint32(m[off+3])<<24
}

// Write8 stores v at off.
func (m MemRegion) Write8(off uint32, v uint8) { m[off] = v }

// Write16 stores v at off in little-endian order.
func (m MemRegion) Write16(off uint32, v uint16) {
	m[off] = uint8(v)
	m[off+1] = uint8(v >> 8)
}

// Write32 stores v at off in little-endian order.
func (m MemRegion) Write32(off uint32, v uint32) {
	m[off] = uint8(v)
	m[off+1] = uint8(v >> 8)
	m[off+2] = uint8(v >> 16)
	m[off+3] = uint8(v >> 24)
}

// Size returns the length of the backing slice.
func (m MemRegion) Size() uint32 { return uint32(len(m)) }
