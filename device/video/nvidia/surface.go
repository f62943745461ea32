package nvidia

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"nvfb/device"
)

// DrawMode selects how drawing primitives combine with video memory.
type DrawMode uint8

const (
	// PaintMode overwrites the destination.
	PaintMode DrawMode = iota

	// XorMode combines the destination with the source color.
	XorMode
)

// Surface is the visible framebuffer of an open mode. It implements
// draw.Image so the standard image packages can render into it. A surface
// becomes unusable once the Core that returned it is closed.
type Surface struct {
	core  *Core
	vram  device.Region
	acc   *Accelerator
	accel bool

	model  ColorModel
	width  int
	height int
	bpp    int
	bytes  uint32
	pitch  uint32
	start  uint32
}

func newSurface(c *Core, cfg *Configuration) *Surface {
	return &Surface{
		core:   c,
		vram:   c.io.VideoRAM(),
		acc:    c.acc,
		accel:  true,
		model:  cfg.ColorModel,
		width:  int(cfg.Mode.Width),
		height: int(cfg.Mode.Height),
		bpp:    cfg.BitsPerPixel,
		bytes:  cfg.BytesPerPixel(),
		pitch:  cfg.BytesPerLine(),
		start:  startOffset,
	}
}

// Width returns the width of the surface in pixels.
func (s *Surface) Width() int { return s.width }

// Height returns the height of the surface in pixels.
func (s *Surface) Height() int { return s.height }

// BitsPerPixel returns the pixel depth of the surface.
func (s *Surface) BitsPerPixel() int { return s.bpp }

// SetAccelerated enables or disables the use of the 2D engine for fills.
func (s *Surface) SetAccelerated(on bool) { s.accel = on }

// Bounds implements image.Image.
func (s *Surface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.width, s.height)
}

// ColorModel implements image.Image. Colors are quantized to the pixel
// format of the mode.
func (s *Surface) ColorModel() color.Model {
	return color.ModelFunc(func(c color.Color) color.Color {
		return s.decode(s.ConvertColor(c))
	})
}

// At implements image.Image.
func (s *Surface) At(x, y int) color.Color {
	if s.core == nil || !(image.Point{x, y}).In(s.Bounds()) {
		return color.RGBA{}
	}
	return s.decode(s.read(s.offset(x, y)))
}

// Set implements draw.Image. Writes outside the surface or to a closed
// surface are dropped.
func (s *Surface) Set(x, y int, c color.Color) {
	if s.core == nil || !(image.Point{x, y}).In(s.Bounds()) {
		return
	}
	s.write(s.offset(x, y), s.ConvertColor(c))
}

// ConvertColor returns the device encoding of c.
func (s *Surface) ConvertColor(c color.Color) uint32 {
	switch s.model {
	case ColorIndexed8:
		// The palette holds a gray ramp.
		return uint32(color.GrayModel.Convert(c).(color.Gray).Y)
	case ColorRGB555:
		p := color.RGBAModel.Convert(c).(color.RGBA)
		return uint32(p.R>>3)<<10 | uint32(p.G>>3)<<5 | uint32(p.B>>3)
	case ColorRGB565:
		p := color.RGBAModel.Convert(c).(color.RGBA)
		return uint32(p.R>>3)<<11 | uint32(p.G>>2)<<5 | uint32(p.B>>3)
	default:
		p := color.RGBAModel.Convert(c).(color.RGBA)
		return uint32(p.R)<<16 | uint32(p.G)<<8 | uint32(p.B)
	}
}

func expand5(v uint32) uint8 { return uint8(v<<3 | v>>2) }
func expand6(v uint32) uint8 { return uint8(v<<2 | v>>4) }

func (s *Surface) decode(v uint32) color.Color {
	switch s.model {
	case ColorIndexed8:
		return color.Gray{Y: uint8(v)}
	case ColorRGB555:
		return color.RGBA{R: expand5(v >> 10 & 0x1f), G: expand5(v >> 5 & 0x1f), B: expand5(v & 0x1f), A: 0xff}
	case ColorRGB565:
		return color.RGBA{R: expand5(v >> 11 & 0x1f), G: expand6(v >> 5 & 0x3f), B: expand5(v & 0x1f), A: 0xff}
	default:
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
	}
}

func (s *Surface) offset(x, y int) uint32 {
	return s.start + uint32(y)*s.pitch + uint32(x)*s.bytes
}

func (s *Surface) read(off uint32) uint32 {
	switch s.bytes {
	case 1:
		return uint32(s.vram.Read8(off))
	case 2:
		return uint32(s.vram.Read16(off))
	default:
		return s.vram.Read32(off)
	}
}

func (s *Surface) write(off, v uint32) {
	switch s.bytes {
	case 1:
		s.vram.Write8(off, uint8(v))
	case 2:
		s.vram.Write16(off, uint16(v))
	default:
		s.vram.Write32(off, v)
	}
}

func (s *Surface) plot(off, c uint32, mode DrawMode) {
	if mode == XorMode {
		c ^= s.read(off)
	}
	s.write(off, c)
}

// clip returns the part of the rectangle that lies on the surface.
func (s *Surface) clip(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h).Intersect(s.Bounds())
}

func (s *Surface) softFill(r image.Rectangle, c uint32, mode DrawMode) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := s.offset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			s.plot(off, c, mode)
			off += s.bytes
		}
	}
}

// FillRect fills a rectangle with the device color c. The rectangle is
// clipped to the surface. Paint mode fills go through the 2D engine.
func (s *Surface) FillRect(x, y, w, h int, c uint32, mode DrawMode) error {
	if s.core == nil {
		return ErrNotOpen
	}

	r := s.clip(x, y, w, h)
	if r.Empty() {
		return nil
	}

	if s.accel && mode == PaintMode {
		if err := s.acc.SetupRectangle(c); err != nil {
			return err
		}
		return s.acc.FillRectangle(uint32(r.Min.X), uint32(r.Min.Y), uint32(r.Dx()), uint32(r.Dy()))
	}

	s.softFill(r, c, mode)
	return nil
}

// InvertRect inverts every pixel of a rectangle.
func (s *Surface) InvertRect(x, y, w, h int) error {
	if s.core == nil {
		return ErrNotOpen
	}

	r := s.clip(x, y, w, h)
	if r.Empty() {
		return nil
	}

	if s.accel {
		if err := s.acc.SetupInvertRectangle(); err != nil {
			return err
		}
		return s.acc.InvertRectangle(uint32(r.Min.X), uint32(r.Min.Y), uint32(r.Dx()), uint32(r.Dy()))
	}

	s.softFill(r, uint32(1)<<(s.bytes*8)-1, XorMode)
	return nil
}

// DrawPixel sets a single pixel to the device color c.
func (s *Surface) DrawPixel(x, y int, c uint32, mode DrawMode) error {
	if s.core == nil {
		return ErrNotOpen
	}
	if !(image.Point{x, y}).In(s.Bounds()) {
		return nil
	}
	s.plot(s.offset(x, y), c, mode)
	return nil
}

// DrawRaster copies the sr part of img to dp.
func (s *Surface) DrawRaster(img image.Image, sr image.Rectangle, dp image.Point) error {
	if s.core == nil {
		return ErrNotOpen
	}
	dr := image.Rectangle{Min: dp, Max: dp.Add(sr.Size())}
	draw.Draw(s, dr, img, sr.Min, draw.Src)
	return nil
}

// DrawScaled scales img to fill dr.
func (s *Surface) DrawScaled(img image.Image, dr image.Rectangle) error {
	if s.core == nil {
		return ErrNotOpen
	}
	draw.ApproxBiLinear.Scale(s, dr, img, img.Bounds(), draw.Src, nil)
	return nil
}

// DrawAlphaRaster composites the sr part of img over the surface at dp
// using the alpha channel of img.
func (s *Surface) DrawAlphaRaster(img image.Image, sr image.Rectangle, dp image.Point) error {
	if s.core == nil {
		return ErrNotOpen
	}
	dr := image.Rectangle{Min: dp, Max: dp.Add(sr.Size())}
	draw.Draw(s, dr, img, sr.Min, draw.Over)
	return nil
}

// CopyArea copies the w x h rectangle at (x, y) by (dx, dy) pixels. Source
// and destination may overlap. Both are clipped to the surface.
func (s *Surface) CopyArea(x, y, w, h, dx, dy int) error {
	if s.core == nil {
		return ErrNotOpen
	}

	delta := image.Pt(dx, dy)
	dst := s.clip(x, y, w, h).Add(delta).Intersect(s.Bounds())
	if dst.Empty() {
		return nil
	}
	src := dst.Sub(delta)

	// Rows are copied away from the destination so that no source row is
	// overwritten before it was read.
	first, last, step := 0, dst.Dy()-1, 1
	if dy > 0 {
		first, last, step = last, first, -1
	}

	row := make([]uint32, dst.Dx())
	for r := first; ; r += step {
		srcOff := s.offset(src.Min.X, src.Min.Y+r)
		for i := range row {
			row[i] = s.read(srcOff)
			srcOff += s.bytes
		}

		dstOff := s.offset(dst.Min.X, dst.Min.Y+r)
		for _, v := range row {
			s.write(dstOff, v)
			dstOff += s.bytes
		}

		if r == last {
			break
		}
	}
	return nil
}
