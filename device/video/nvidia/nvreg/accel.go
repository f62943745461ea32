package nvreg

// PTIMER
const (
	PTIntStat    = 0x009100
	PTIntEn      = 0x009140
	PTNumerator  = 0x009200
	PTDenominatr = 0x009210
)

// PFIFO
const (
	PFIntStat   = 0x002100
	PFIntEn     = 0x002140
	PFRamHT     = 0x002210
	PFRamFC     = 0x002214
	PFRamRO     = 0x002218
	PFCaches    = 0x002500
	PFSize      = 0x00250c
	PFCach0Psh0 = 0x003000
	PFCach0Pul0 = 0x003050
	PFCach0Pul1 = 0x003054
	PFCach1Psh0 = 0x003200
	PFCach1Psh1 = 0x003204
	PFCach1DMAI = 0x00322c
	PFCach1Pul0 = 0x003250
	PFCach1Pul1 = 0x003254
	PFCach1Hash = 0x003258
)

// PRAMIN hash table and context table.
const (
	// HashTable holds (handle, value) pairs 8 bytes apart. The second set
	// starts at HashTable2.
	HashTable  = 0x710000
	HashTable2 = 0x710080

	// CtxRoot holds the 4 context words of the root set; numbered sets
	// start at CtxSet0, 16 bytes apart.
	CtxRoot = 0x711400
	CtxSet0 = 0x711420
)

// CtxReg returns the offset of context word w (0-3) of numbered set n.
func CtxReg(n, w uint32) uint32 {
	return CtxSet0 + n*0x10 + w*4
}

// PGRAPH
const (
	Debug0     = 0x400080
	Debug1     = 0x400084
	Debug2     = 0x400088
	Debug3     = 0x40008c
	NV10Debug4 = 0x400090

	AccIntStat = 0x400100
	AccIntEn   = 0x400140
	NV10CtxCtl = 0x400144

	NV10CtxSw1 = 0x40014c

	// Cache state sets: CacheBase + 4*(set-1) + 0x20*(word-1), sets 1-8,
	// words 1-5. Word 1 of sets 5-8 exists only on NV10 and later.
	CacheBase = 0x400160

	NV04CtxCtl = 0x400170

	Formats = 0x400618
	Offset0 = 0x400640
	BBase0  = 0x400658
	Pitch0  = 0x400670
	BLimit0 = 0x400684

	NV04SurfType = 0x40070c
	NV10SurfType = 0x400710
	NV04AccStat  = 0x400710
	NV10AccStat  = 0x400714
	FIFOEnable   = 0x400720
	BPixel       = 0x400724
	PatShape     = 0x400810

	NV20Offset0 = 0x400820
	StrideFmt   = 0x400830
	NV20Pitch0  = 0x400850
	NV20BLimit6 = 0x400864
	NV30What    = 0x400890
	NV20What0   = 0x4009a4
	NV20What1   = 0x4009a8

	// NV10Tile0 is the first of 8 acceleration tile descriptors, 16 bytes
	// apart: address, end, pitch, status.
	NV10Tile0 = 0x400b00

	NV10XFMode0   = 0x400f40
	NV10XFMode1   = 0x400f44
	NV10PipeAddr  = 0x400f50
	NV10PipeData  = 0x400f54
	NV20FBWhat0   = 0x100200
	NV20FBWhat1   = 0x100204
	NV10FBTile0   = 0x100240
	NumTiles      = 8
	NumCacheSets  = 8
	NumCacheWords = 5
)

// CacheReg returns the offset of word w (1-5) of cache set s (1-8).
func CacheReg(s, w uint32) uint32 {
	return CacheBase + 4*(s-1) + 0x20*(w-1)
}

// Command FIFO sub-channels.
const (
	FIFOBase   = 0x800000
	FIFOStride = 0x2000

	ROPFIFOFree = 0x800010
	ROP3        = 0x800300

	ClipFIFOFree = 0x802010
	ClipTopLeft  = 0x802300
	ClipSize     = 0x802304

	PatFIFOFree = 0x804010
	PatShapeCmd = 0x804308
	PatColor0   = 0x804310
	PatColor1   = 0x804314
	PatMono1    = 0x804318
	PatMono2    = 0x80431c

	BmpFIFOFree = 0x80a010
	BmpColor1A  = 0x80a3fc
	BmpRectPos  = 0x80a400
	BmpRectSize = 0x80a404
)
