package nvidia

import (
	"fmt"

	"nvfb/device/video/nvidia/nvreg"
)

// Architecture identifies a hardware generation. The generations differ in
// register layout; every generation specific decision is taken from the
// archInfo entry returned by info.
type Architecture uint8

// The supported architectures.
const (
	NV04 Architecture = iota + 1
	NV10
	NV20
	NV30
)

func (a Architecture) String() string {
	if ai, ok := archTable[a]; ok {
		return ai.name
	}
	return fmt.Sprintf("Architecture(%d)", uint8(a))
}

// archInfo holds the generation specific constants for one architecture.
type archInfo struct {
	name string

	// maxVCOKHz is the upper bound of the pixel PLL VCO.
	maxVCOKHz uint32

	// narrowPLL restricts the post divider to 0..3 and drops the top
	// feedback divider value.
	narrowPLL bool

	// crtcStartAddr selects the CRTC start-address layout (24 address
	// bits split over four CRTC registers) instead of NV10FBStart. The
	// same generations also split the hardware cursor address over three
	// CRTC registers.
	crtcStartAddr bool

	// fbConfig, when non-zero, is written to FBConfig0 before the PRAMIN
	// tables are programmed.
	fbConfig uint32

	// secondHashSet is the number of entries of the second hash table set.
	secondHashSet int
	hashValue6    uint32

	// ctx7, ctx8 and ctxD are the class words of context sets 7, 8 and D.
	ctx7, ctx8, ctxD uint32
	ctxSetE          bool

	// graphDebug lists the PGRAPH debug register writes, in order.
	graphDebug []regWrite

	// nv10Caches enables word 1 of cache sets 5-8 and the context switch
	// registers.
	nv10Caches bool

	// bufferBases and bufferLimits are the accessible memory range
	// registers of the acceleration engine.
	bufferBases  []uint32
	bufferLimits []uint32

	ctxCtlReg    uint32
	accStatReg   uint32
	surfTypeReg  uint32
	offsetRegs   []uint32
	pitchRegs    []uint32
	tiling       bool
	tileWhat     bool
	nv30Extras   bool
	shortPixel   bool
	legacyFormat bool
}

type regWrite struct {
	reg uint32
	val uint32
}

func regRange(first uint32, n int) []uint32 {
	regs := make([]uint32, n)
	for i := range regs {
		regs[i] = first + uint32(i)*4
	}
	return regs
}

func concat(lists ...[]uint32) []uint32 {
	var out []uint32
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

var (
	nv04Debug = []regWrite{
		{nvreg.Debug0, 0x1231c001},
		{nvreg.Debug1, 0x72111101},
		{nvreg.Debug2, 0x11d5f071},
		{nvreg.Debug3, 0x10d4ff31},
	}

	// Assert reset for most function blocks, configure them, release the
	// reset and disable the blocks that are not used.
	nv10Debug = []regWrite{
		{nvreg.Debug0, 0x0003ffff},
		{nvreg.Debug1, 0x00118701},
		{nvreg.Debug2, 0x24f82ad9},
		{nvreg.Debug3, 0x55de0030},
		{nvreg.Debug0, 0x00000000},
		{nvreg.NV10Debug4, 0x00000000},
	}

	nv04Buffers = 4
	nv10Buffers = 6
)

var archTable = map[Architecture]*archInfo{
	NV04: {
		name:          "NV04",
		maxVCOKHz:     250000,
		narrowPLL:     true,
		crtcStartAddr: true,
		fbConfig:      0x00001114,
		secondHashSet: 7,
		hashValue6:    0x8001114f,
		ctx7:          0x0300a054,
		ctx8:          0x0300a055,
		ctxD:          0x0300a01c,
		graphDebug:    nv04Debug,
		bufferBases:   regRange(nvreg.BBase0, nv04Buffers),
		bufferLimits:  regRange(nvreg.BLimit0, nv04Buffers),
		ctxCtlReg:     nvreg.NV04CtxCtl,
		accStatReg:    nvreg.NV04AccStat,
		surfTypeReg:   nvreg.NV04SurfType,
		offsetRegs:    regRange(nvreg.Offset0, 6),
		pitchRegs:     regRange(nvreg.Pitch0, 5),
		legacyFormat:  true,
	},
	NV10: {
		name:          "NV10",
		maxVCOKHz:     350000,
		secondHashSet: 8,
		hashValue6:    0x80011150,
		ctx7:          0x0300a094,
		ctx8:          0x0300a095,
		ctxD:          0x00000093,
		ctxSetE:       true,
		graphDebug:    nv10Debug,
		nv10Caches:    true,
		bufferBases:   regRange(nvreg.BBase0, nv10Buffers),
		bufferLimits:  regRange(nvreg.BLimit0, nv10Buffers),
		ctxCtlReg:     nvreg.NV10CtxCtl,
		accStatReg:    nvreg.NV10AccStat,
		surfTypeReg:   nvreg.NV10SurfType,
		offsetRegs:    regRange(nvreg.Offset0, 6),
		pitchRegs:     regRange(nvreg.Pitch0, 5),
		tiling:        true,
	},
	NV20: {
		name:          "NV20",
		maxVCOKHz:     350000,
		secondHashSet: 8,
		hashValue6:    0x80011150,
		ctx7:          0x0300a094,
		ctx8:          0x0300a095,
		ctxD:          0x00000093,
		ctxSetE:       true,
		graphDebug:    nv10Debug,
		nv10Caches:    true,
		bufferBases:   regRange(nvreg.BBase0, nv10Buffers),
		bufferLimits:  concat(regRange(nvreg.BLimit0, nv10Buffers), regRange(nvreg.NV20BLimit6, 4)),
		ctxCtlReg:     nvreg.NV10CtxCtl,
		accStatReg:    nvreg.NV10AccStat,
		surfTypeReg:   nvreg.NV10SurfType,
		offsetRegs:    regRange(nvreg.NV20Offset0, 4),
		pitchRegs:     regRange(nvreg.NV20Pitch0, 4),
		tiling:        true,
		tileWhat:      true,
	},
	NV30: {
		name:          "NV30",
		maxVCOKHz:     350000,
		secondHashSet: 8,
		hashValue6:    0x80011150,
		ctx7:          0x0300a094,
		ctx8:          0x0300a095,
		ctxD:          0x00000093,
		ctxSetE:       true,
		graphDebug:    nv10Debug,
		nv10Caches:    true,
		bufferBases:   regRange(nvreg.BBase0, nv10Buffers),
		bufferLimits:  concat(regRange(nvreg.BLimit0, nv10Buffers), regRange(nvreg.NV20BLimit6, 4)),
		ctxCtlReg:     nvreg.NV10CtxCtl,
		accStatReg:    nvreg.NV10AccStat,
		surfTypeReg:   nvreg.NV10SurfType,
		offsetRegs:    regRange(nvreg.NV20Offset0, 4),
		pitchRegs:     regRange(nvreg.NV20Pitch0, 4),
		tiling:        true,
		tileWhat:      true,
		nv30Extras:    true,
		shortPixel:    true,
	},
}

// info returns the constant table of the architecture.
func (a Architecture) info() (*archInfo, error) {
	ai, ok := archTable[a]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownArchitecture, uint8(a))
	}
	return ai, nil
}
