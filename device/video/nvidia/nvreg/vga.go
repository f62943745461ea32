// Package nvreg contains the MMIO register map of NVidia NV4 to NV30 class
// graphics adapters. Offsets are relative to the start of BAR0.
package nvreg

// 32-bit control registers.
const (
	PwrUpCtrl     = 0x000200
	NV4StrapInfo  = 0x100000
	FBConfig0     = 0x100200
	NV10StrapInfo = 0x10020c
	StrapInfo2    = 0x101000

	NV10FBStart    = 0x600800
	NV10CursorAddr = 0x60080c
	CursorConfig   = 0x600810

	CursorPos  = 0x680300
	PixelPLL   = 0x680508
	PLLSelect  = 0x68050c
	DACGenCtrl = 0x680600
)

// Legacy VGA ports mirrored into the MMIO window.
const (
	MiscWrite = 0x0c03c2
	MiscRead  = 0x0c03cc

	SeqIndex = 0x0c03c4
	SeqData  = 0x0c03c5

	GrphIndex = 0x0c03ce
	GrphData  = 0x0c03cf

	// The attribute controller uses a single port for both the index and
	// the data byte; an internal flip-flop selects which one the next write
	// goes to. Reading InputStatus1 resets the flip-flop to index mode.
	AttrIndex    = 0x6013c0
	AttrDataRead = 0x6013c1

	CRTCIndex    = 0x6013d4
	CRTCData     = 0x6013d5
	InputStatus1 = 0x6013da

	PalMask       = 0x6813c6
	PalReadIndex  = 0x6813c7
	PalWriteIndex = 0x6813c8
	PalData       = 0x6813c9
)

// CRTC register indices.
const (
	CRTCHTotal        = 0x00
	CRTCHDispEnd      = 0x01
	CRTCHBlankStart   = 0x02
	CRTCHBlankEnd     = 0x03
	CRTCHSyncStart    = 0x04
	CRTCHSyncEnd      = 0x05
	CRTCVTotal        = 0x06
	CRTCOverflow      = 0x07
	CRTCPresetRowScan = 0x08
	CRTCMaxScanLine   = 0x09
	CRTCCursorStart   = 0x0a
	CRTCCursorEnd     = 0x0b
	CRTCFBStartHigh   = 0x0c
	CRTCFBStartLow    = 0x0d
	CRTCVSyncStart    = 0x10
	CRTCVSyncEnd      = 0x11
	CRTCVDispEnd      = 0x12
	CRTCPitchLow      = 0x13
	CRTCUnderline     = 0x14
	CRTCVBlankStart   = 0x15
	CRTCVBlankEnd     = 0x16
	CRTCModeControl   = 0x17
	CRTCLineCompare   = 0x18

	// Extended registers; writable only while unlocked.
	CRTCRepaint0 = 0x19
	CRTCRepaint1 = 0x1a
	CRTCArb0     = 0x1b
	CRTCLock     = 0x1f
	CRTCArb1     = 0x20
	CRTCLSR      = 0x25
	CRTCPixel    = 0x28
	CRTCHEB      = 0x2d
	CRTCCurCtl2  = 0x2f
	CRTCCurCtl1  = 0x30
	CRTCCurCtl0  = 0x31
	CRTCDDC      = 0x3e
	CRTCEBR      = 0x41

	// NumStdCRTC is the number of standard VGA CRTC registers.
	NumStdCRTC = 0x19
)

// Values for CRTCLock.
const (
	UnlockKey = 0x57
	LockKey   = 0x99
)

// CRTCProtect is the write-protect bit for CRTC 0-7 in CRTCVSyncEnd.
const CRTCProtect = 0x80

// Sequencer, attribute controller and status bits.
const (
	SeqReset     = 0x00
	SeqClockMode = 0x01
	NumSeq       = 5

	NumGrph = 9

	AttrModeControl = 0x10
	AttrHorPixelPan = 0x13
	NumAttr         = 0x15

	// AttrPAS is the palette address source bit of the attribute index.
	// Clearing it blanks the display.
	AttrPAS = 0x20

	// StatVRetrace is the vertical retrace bit of InputStatus1.
	StatVRetrace = 0x08

	// DDCSDARead is the data-line bit of CRTCDDC.
	DDCSDARead = 0x08
)
