package nvidia

import (
	"nvfb/device/video/nvidia/nvreg"
)

// Accelerator drives the 2D engine of the adapter: the PFIFO command
// queue, the PGRAPH context tables and the rectangle fill/invert
// sub-channels.
type Accelerator struct {
	io   *VgaIO
	arch Architecture
	info *archInfo
	poll PollConfig
}

// NewAccelerator returns an accelerator bound to io. A zero poll config
// is replaced by DefaultPollConfig.
func NewAccelerator(io *VgaIO, arch Architecture, poll PollConfig) (*Accelerator, error) {
	ai, err := arch.info()
	if err != nil {
		return nil, err
	}

	if poll.Interval <= 0 && poll.MaxPolls <= 0 {
		poll = DefaultPollConfig
	}

	return &Accelerator{io: io, arch: arch, info: ai, poll: poll}, nil
}

// depthFormat holds the engine surface format words of one color depth.
type depthFormat struct {
	formats     uint32
	bpixel      uint32
	bpixelShort uint32
	stride      uint32
	strideNV04  uint32

	// ctx is written to context word 1 of sets 0, 1, 3, 4, 5 and 9 and
	// to word 2 of set 9; set 2 gets ctxSet2.
	ctx     uint32
	ctxSet2 uint32

	// Context word 1 of sets B/C and D, for NV04 and for later chips.
	// Set E only exists on NV10 and later.
	ctxBCNV04, ctxBC uint32
	ctxDNV04, ctxD   uint32
	ctxE             uint32
}

var depthFormats = map[int]depthFormat{
	8: {
		formats: 0x1010, bpixel: 0x00111111, bpixelShort: 0x21,
		stride: 0x03020202, strideNV04: 0x03020202,
		ctx: 0x302, ctxSet2: 0x202,
		ctxBCNV04: 0, ctxBC: 0,
		ctxDNV04: 0x302, ctxD: 0,
		ctxE: 0x302,
	},
	15: {
		formats: 0x2071, bpixel: 0x00226222, bpixelShort: 0x42,
		stride: 0x09080808, strideNV04: 0x09080808,
		ctx: 0x902, ctxSet2: 0x802,
		ctxBCNV04: 0x702, ctxBC: 0x902,
		ctxDNV04: 0x902, ctxD: 0x902,
		ctxE: 0x902,
	},
	16: {
		formats: 0x50c2, bpixel: 0x00556555, bpixelShort: 0xa5,
		stride: 0x000b0b0c, strideNV04: 0x0c0b0b0b,
		ctx: 0xc02, ctxSet2: 0xb02,
		ctxBCNV04: 0x702, ctxBC: 0xc02,
		ctxDNV04: 0xc02, ctxD: 0xc02,
		ctxE: 0xc02,
	},
	32: {
		formats: 0x70e5, bpixel: 0x0077d777, bpixelShort: 0xe7,
		stride: 0x0e0d0d0d, strideNV04: 0x0e0d0d0d,
		ctx: 0xe02, ctxSet2: 0xd02,
		ctxBCNV04: 0xe02, ctxBC: 0xe02,
		ctxDNV04: 0xe02, ctxD: 0xe02,
		ctxE: 0xe02,
	},
}

// formatWrites returns the register writes that select the surface format
// for bpp on the accelerator's architecture.
func (a *Accelerator) formatWrites(bpp int) ([]regWrite, error) {
	f, ok := depthFormats[bpp]
	if !ok {
		return nil, ErrUnsupportedDepth
	}

	ai := a.info
	bpixel, stride := f.bpixel, f.stride
	if ai.shortPixel {
		bpixel = f.bpixelShort
	}
	if ai.legacyFormat {
		stride = f.strideNV04
	}

	w := []regWrite{
		{nvreg.Formats, f.formats},
		{nvreg.BPixel, bpixel},
		{nvreg.StrideFmt, stride},
		{nvreg.CtxReg(0, 1), f.ctx},
		{nvreg.CtxReg(1, 1), f.ctx},
		{nvreg.CtxReg(2, 1), f.ctxSet2},
		{nvreg.CtxReg(3, 1), f.ctx},
		{nvreg.CtxReg(4, 1), f.ctx},
		{nvreg.CtxReg(5, 1), f.ctx},
		{nvreg.CtxReg(9, 1), f.ctx},
		{nvreg.CtxReg(9, 2), f.ctx},
	}

	if ai.legacyFormat {
		return append(w,
			regWrite{nvreg.CtxReg(0xb, 1), f.ctxBCNV04},
			regWrite{nvreg.CtxReg(0xc, 1), f.ctxBCNV04},
			regWrite{nvreg.CtxReg(0xd, 1), f.ctxDNV04},
		), nil
	}

	w = append(w,
		regWrite{nvreg.CtxReg(0xb, 1), f.ctxBC},
		regWrite{nvreg.CtxReg(0xc, 1), f.ctxBC},
		regWrite{nvreg.CtxReg(0xd, 1), f.ctxD},
	)
	if ai.ctxSetE {
		w = append(w, regWrite{nvreg.CtxReg(0xe, 1), f.ctxE})
	}
	return w, nil
}

var (
	ptimerInit = []regWrite{
		{nvreg.PTNumerator, 8},
		{nvreg.PTDenominatr, 3},
		{nvreg.PTIntEn, 0},
		{nvreg.PTIntStat, 0xffffffff},
	}

	// Stop the caches, point them at the PRAMIN tables and restart them.
	pfifoInit = []regWrite{
		{nvreg.PFCaches, 0},
		{nvreg.PFCach1Psh0, 0},
		{nvreg.PFCach1Pul0, 0},
		{nvreg.PFCach1Psh1, 0},
		{nvreg.PFCach1DMAI, 0},
		{nvreg.PFCach0Psh0, 0},
		{nvreg.PFCach0Pul0, 0},
		{nvreg.PFRamHT, 0x03000100},
		{nvreg.PFRamFC, 0x00000110},
		{nvreg.PFRamRO, 0x00000112},
		{nvreg.PFSize, 0x0000ffff},
		{nvreg.PFCach1Hash, 0x0000ffff},
		{nvreg.PFIntEn, 0},
		{nvreg.PFIntStat, 0xffffffff},
		{nvreg.PFCach0Pul1, 1},
		{nvreg.PFCach1Psh0, 1},
		{nvreg.PFCach1Pul0, 1},
		{nvreg.PFCach1Pul1, 1},
		{nvreg.PFCaches, 1},
	}

	secondHashValues = [...]uint32{
		0x80011142, 0x80011143, 0x80011144, 0x8001114b,
		0x8001114c, 0x8001114d, 0x8001114e, 0x8001114f,
	}

	// Class words of context sets 0-5 and 9-C.
	ctxClassLow  = [...]uint32{0x01008043, 0x01008019, 0x01008018, 0x01008021, 0x0100805f, 0x0100804b}
	ctxClassHigh = [...]uint32{0x01008058, 0x01008059, 0x0100805a, 0x0100805b}

	// accelFIFOObjects are the object handles bound to sub-channels 0-7.
	accelFIFOObjects = [...]uint32{
		0x80000000, 0x80000001, 0x80000002, 0x80000010,
		0x80000011, 0x80000012, 0x80000016, 0x80000014,
	}
)

const (
	ctxOperand    = 0x11401140
	ctxPatternSet = 0x00000d01
	ctxSet6Class  = 0x0100a048
	ctxSetEClass  = 0x0300a01c
	ctxCtlEnable  = 0x10010100

	clipMaxSize = 0x80008000
)

func (a *Accelerator) write(writes []regWrite) {
	for _, w := range writes {
		a.io.SetReg32(w.reg, w.val)
	}
}

func (a *Accelerator) setCtx(n uint32, words ...uint32) {
	for i, v := range words {
		a.io.SetReg32(nvreg.CtxReg(n, uint32(i)), v)
	}
}

// programPRAMIN fills the object hash table and the context sets.
func (a *Accelerator) programPRAMIN() {
	ai := a.info

	for i := uint32(0); i < 7; i++ {
		val := 0x80011145 + i
		if i == 6 {
			val = ai.hashValue6
		}
		a.io.SetReg32(nvreg.HashTable+i*8, 0x80000010+i)
		a.io.SetReg32(nvreg.HashTable+i*8+4, val)
	}
	for i := 0; i < ai.secondHashSet; i++ {
		off := uint32(nvreg.HashTable2 + i*8)
		a.io.SetReg32(off, 0x80000000+uint32(i))
		a.io.SetReg32(off+4, secondHashValues[i])
	}

	a.io.SetReg32(nvreg.CtxRoot, 0x00003000)
	a.io.SetReg32(nvreg.CtxRoot+4, 0x01ffffff)
	a.io.SetReg32(nvreg.CtxRoot+8, 2)
	a.io.SetReg32(nvreg.CtxRoot+12, 2)

	// Word 1 of sets 0-5 and 9-E carries the surface format and is
	// written by formatWrites.
	for n, class := range ctxClassLow {
		a.io.SetReg32(nvreg.CtxReg(uint32(n), 0), class)
		a.io.SetReg32(nvreg.CtxReg(uint32(n), 2), 0)
		a.io.SetReg32(nvreg.CtxReg(uint32(n), 3), 0)
	}
	a.setCtx(6, ctxSet6Class, ctxPatternSet, ctxOperand, 0)
	a.setCtx(7, ai.ctx7, ctxPatternSet, ctxOperand, 0)
	a.setCtx(8, ai.ctx8, ctxPatternSet, ctxOperand, 0)
	for i, class := range ctxClassHigh {
		n := uint32(9 + i)
		a.io.SetReg32(nvreg.CtxReg(n, 0), class)
		a.io.SetReg32(nvreg.CtxReg(n, 2), ctxOperand)
		a.io.SetReg32(nvreg.CtxReg(n, 3), 0)
	}
	for _, set := range []struct {
		n     uint32
		class uint32
		ok    bool
	}{
		{0xd, ai.ctxD, true},
		{0xe, ctxSetEClass, ai.ctxSetE},
	} {
		if !set.ok {
			continue
		}
		a.io.SetReg32(nvreg.CtxReg(set.n, 0), set.class)
		a.io.SetReg32(nvreg.CtxReg(set.n, 2), ctxOperand)
		a.io.SetReg32(nvreg.CtxReg(set.n, 3), 0)
	}
}

func (a *Accelerator) clearCaches() {
	for s := uint32(1); s <= nvreg.NumCacheSets; s++ {
		for w := uint32(1); w <= nvreg.NumCacheWords; w++ {
			if s > 4 && w == 1 && !a.info.nv10Caches {
				continue
			}
			a.io.SetReg32(nvreg.CacheReg(s, w), 0)
		}
	}

	if a.info.nv10Caches {
		for i := uint32(0); i < 5; i++ {
			a.io.SetReg32(nvreg.NV10CtxSw1+i*4, 0)
		}
	}
}

// copyTiling mirrors the memory controller tile setup into the engine and
// resets the transform pipe.
func (a *Accelerator) copyTiling() {
	for i := uint32(0); i < nvreg.NumTiles; i++ {
		a.io.SetReg32(nvreg.NV10FBTile0+i*0x10, 0)
	}

	if a.info.tileWhat {
		a.io.SetReg32(nvreg.NV20What0, a.io.Reg32(nvreg.NV20FBWhat0))
		a.io.SetReg32(nvreg.NV20What1, a.io.Reg32(nvreg.NV20FBWhat1))
	}

	for i := uint32(0); i < nvreg.NumTiles; i++ {
		for w := uint32(0); w < 16; w += 4 {
			src := nvreg.NV10FBTile0 + i*0x10 + w
			dst := nvreg.NV10Tile0 + i*0x10 + w
			a.io.SetReg32(dst, a.io.Reg32(src))
		}
	}

	a.io.SetReg32(nvreg.NV10XFMode0, 0x10000000)
	a.io.SetReg32(nvreg.NV10XFMode1, 0)
	a.pipe(0x0040, 8)
	a.pipe(0x0200, make([]uint32, 48)...)
	a.pipe(0x0040, 0)
	a.pipe(0x0800, make([]uint32, 256)...)
	a.io.SetReg32(nvreg.NV10XFMode0, 0x30000000)
	a.io.SetReg32(nvreg.NV10XFMode1, 4)

	for _, run := range []struct{ addr, n uint32 }{
		{0x6400, 236}, {0x6800, 188}, {0x6c00, 12}, {0x7000, 76},
		{0x7400, 48}, {0x7800, 48}, {0x4400, 32}, {0x0000, 16},
		{0x0040, 4},
	} {
		a.pipe(run.addr, make([]uint32, run.n)...)
	}
}

func (a *Accelerator) pipe(addr uint32, data ...uint32) {
	a.io.SetReg32(nvreg.NV10PipeAddr, addr)
	for _, d := range data {
		a.io.SetReg32(nvreg.NV10PipeData, d)
	}
}

// Init brings up the 2D engine for a framebuffer of memSizeMB megabytes
// whose visible surface starts at fbOffset with bytesPerRow bytes per
// line. An unsupported bpp fails before any register is touched.
func (a *Accelerator) Init(fbOffset, bytesPerRow, memSizeMB uint32, bpp int) error {
	formats, err := a.formatWrites(bpp)
	if err != nil {
		return err
	}

	ai := a.info

	a.write(ptimerInit)
	if ai.fbConfig != 0 {
		a.io.SetReg32(nvreg.FBConfig0, ai.fbConfig)
	}
	a.write(pfifoInit)
	a.programPRAMIN()
	a.write(ai.graphDebug)
	a.clearCaches()

	limit := memSizeMB<<20 - 1
	n := min(len(ai.bufferBases), len(ai.bufferLimits), nv04Buffers)
	for _, reg := range ai.bufferBases[:n] {
		a.io.SetReg32(reg, 0)
	}
	for _, reg := range ai.bufferLimits[:n] {
		a.io.SetReg32(reg, limit)
	}
	for _, reg := range ai.bufferBases[n:] {
		a.io.SetReg32(reg, 0)
	}
	for _, reg := range ai.bufferLimits[n:] {
		a.io.SetReg32(reg, limit)
	}

	a.io.SetReg32(nvreg.AccIntEn, 0)
	a.io.SetReg32(nvreg.AccIntStat, 0xffffffff)
	a.io.SetReg32(ai.ctxCtlReg, ctxCtlEnable)
	a.io.SetReg32(ai.accStatReg, 0xffffffff)
	a.io.SetReg32(nvreg.FIFOEnable, 1)
	a.io.SetReg32(nvreg.PatShape, 0)
	a.io.SetReg32(ai.surfTypeReg, 1)

	a.write(formats)
	if ai.nv30Extras {
		a.io.SetReg32(nvreg.Debug3, a.io.Reg32(nvreg.Debug3)|1)
		a.io.SetReg32(nvreg.NV30What, a.io.Reg32(nvreg.NV30What)|0x00040000)
	}

	for _, reg := range ai.offsetRegs {
		a.io.SetReg32(reg, fbOffset)
	}
	for _, reg := range ai.pitchRegs {
		a.io.SetReg32(reg, bytesPerRow&0xffff)
	}

	if ai.tiling {
		a.copyTiling()
	}

	for i, obj := range accelFIFOObjects {
		a.io.SetReg32(nvreg.FIFOBase+uint32(i)*nvreg.FIFOStride, obj)
	}

	if err := a.waitFIFO(nvreg.ClipFIFOFree, 2); err != nil {
		return err
	}
	a.io.SetReg32(nvreg.ClipTopLeft, 0)
	a.io.SetReg32(nvreg.ClipSize, clipMaxSize)
	return nil
}

const (
	ropCopy   = 0xcc
	ropInvert = 0x55
)

func (a *Accelerator) setupPattern(rop uint8, color uint32) error {
	if err := a.waitFIFO(nvreg.PatFIFOFree, 5); err != nil {
		return err
	}
	a.io.SetReg32(nvreg.PatShapeCmd, 0)
	a.io.SetReg32(nvreg.PatColor0, 0xffffffff)
	a.io.SetReg32(nvreg.PatColor1, 0xffffffff)
	a.io.SetReg32(nvreg.PatMono1, 0xffffffff)
	a.io.SetReg32(nvreg.PatMono2, 0xffffffff)

	if err := a.waitFIFO(nvreg.ROPFIFOFree, 1); err != nil {
		return err
	}
	a.io.SetReg32(nvreg.ROP3, uint32(rop))

	if err := a.waitFIFO(nvreg.BmpFIFOFree, 1); err != nil {
		return err
	}
	a.io.SetReg32(nvreg.BmpColor1A, color)
	return nil
}

func (a *Accelerator) rect(x, y, w, h uint32) error {
	if err := a.waitFIFO(nvreg.BmpFIFOFree, 2); err != nil {
		return err
	}
	a.io.SetReg32(nvreg.BmpRectPos, x<<16|y&0xffff)
	a.io.SetReg32(nvreg.BmpRectSize, w<<16|h&0xffff)
	return nil
}

// SetupRectangle prepares the engine for solid fills with the given
// device color.
func (a *Accelerator) SetupRectangle(color uint32) error {
	return a.setupPattern(ropCopy, color)
}

// FillRectangle fills a rectangle with the color passed to the last
// SetupRectangle call.
func (a *Accelerator) FillRectangle(x, y, w, h uint32) error {
	return a.rect(x, y, w, h)
}

// SetupInvertRectangle prepares the engine for destination inversion.
func (a *Accelerator) SetupInvertRectangle() error {
	return a.setupPattern(ropInvert, 0)
}

// InvertRectangle inverts every pixel of a rectangle.
func (a *Accelerator) InvertRectangle(x, y, w, h uint32) error {
	return a.rect(x, y, w, h)
}
