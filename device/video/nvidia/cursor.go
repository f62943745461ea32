package nvidia

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"nvfb/device/video/nvidia/nvreg"
)

// Hardware cursor geometry.
const (
	CursorWidth  = 32
	CursorHeight = 32

	// The cursor bitmap is stored as A1R5G5B5 at the start of video
	// memory; the visible screen follows it.
	cursorBytes  = CursorWidth * CursorHeight * 2
	cursorOffset = 0
	startOffset  = cursorBytes

	cursorVisible = 0x01
)

// HardwareCursor controls the 32x32 overlay cursor. Once the Core it
// belongs to is closed the cursor is detached: the setters do nothing and
// SetCursorImage returns ErrNotOpen.
type HardwareCursor struct {
	io       *VgaIO
	info     *archInfo
	detached bool
}

func newHardwareCursor(io *VgaIO, ai *archInfo) *HardwareCursor {
	return &HardwareCursor{io: io, info: ai}
}

// Init clears the cursor bitmap, points the hardware at it, selects the
// 32x32 A1R5G5B5 format and hides the cursor.
func (c *HardwareCursor) Init() {
	vram := c.io.VideoRAM()
	for off := uint32(0); off < cursorBytes; off += 4 {
		vram.Write32(cursorOffset+off, 0)
	}

	if c.info.crtcStartAddr {
		c.io.SetCRT(nvreg.CRTCCurCtl0, uint8(cursorOffset>>11)<<2)
		c.io.SetCRT(nvreg.CRTCCurCtl1, 0x80|uint8(cursorOffset>>17))
		c.io.SetCRT(nvreg.CRTCCurCtl2, uint8(cursorOffset>>24))
	} else {
		c.io.SetReg32(nvreg.NV10CursorAddr, cursorOffset)
	}

	c.io.SetReg32(nvreg.CursorConfig, cursorFormat32x32)
	c.SetCursorVisible(false)
}

// SetCursorVisible shows or hides the cursor.
func (c *HardwareCursor) SetCursorVisible(visible bool) {
	if c.detached {
		return
	}
	ctl := c.io.CRT(nvreg.CRTCCurCtl0)
	if visible {
		ctl |= cursorVisible
	} else {
		ctl &^= cursorVisible
	}
	c.io.SetCRT(nvreg.CRTCCurCtl0, ctl)
}

// SetCursorPosition moves the top left corner of the cursor to (x, y).
func (c *HardwareCursor) SetCursorPosition(x, y int) {
	if c.detached {
		return
	}
	c.io.SetReg32(nvreg.CursorPos, cursorPos(x, y))
}

func cursorPos(x, y int) uint32 {
	return uint32(y&0xffff)<<16 | uint32(x&0xffff)
}

// SetCursorImage uploads img as the cursor bitmap. Images of a different
// size are scaled to 32x32. Pixels with an alpha below 50% are
// transparent.
func (c *HardwareCursor) SetCursorImage(img image.Image) error {
	if c.detached {
		return ErrNotOpen
	}
	if img == nil || img.Bounds().Empty() {
		return ErrUnsupportedConfig
	}

	dst := image.NewNRGBA(image.Rect(0, 0, CursorWidth, CursorHeight))
	if img.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	vram := c.io.VideoRAM()
	for y := 0; y < CursorHeight; y++ {
		for x := 0; x < CursorWidth; x++ {
			off := uint32(cursorOffset + (y*CursorWidth+x)*2)
			vram.Write16(off, argb1555(dst.NRGBAAt(x, y)))
		}
	}
	return nil
}

func argb1555(p color.NRGBA) uint16 {
	if p.A < 0x80 {
		return 0
	}
	return 0x8000 | uint16(p.R>>3)<<10 | uint16(p.G>>3)<<5 | uint16(p.B>>3)
}

// Close hides the cursor and detaches it from the register windows.
func (c *HardwareCursor) Close() {
	c.SetCursorVisible(false)
	c.detached = true
}
