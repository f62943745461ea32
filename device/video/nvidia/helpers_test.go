package nvidia

import (
	"testing"

	"nvfb/device"
	"nvfb/device/video/nvidia/nvreg"
	"nvfb/device/video/nvidia/regmodel"
)

// testVRAMSize is large enough for 1024x768x32 plus the cursor bitmap.
const testVRAMSize = 4 << 20

// newTestIO returns a register model, a video memory stand-in and a VgaIO
// bound to both.
func newTestIO(t *testing.T) (*regmodel.Model, device.MemRegion, *VgaIO) {
	t.Helper()

	m := regmodel.New()
	vram := make(device.MemRegion, testVRAMSize)
	return m, vram, NewVgaIO(m, vram)
}

// bootState loads register values resembling a text mode left behind by
// the firmware.
func bootState(m *regmodel.Model) {
	seq := [nvreg.NumSeq]uint8{0x03, 0x00, 0x03, 0x00, 0x02}
	for i, v := range seq {
		m.PokeSEQ(uint8(i), v)
	}

	crtc := [nvreg.NumStdCRTC]uint8{
		0x5f, 0x4f, 0x50, 0x82, 0x55, 0x81, 0xbf, 0x1f,
		0x00, 0x4f, 0x0d, 0x0e, 0x00, 0x00, 0x00, 0x00,
		0x9c, 0x8e, 0x8f, 0x28, 0x1f, 0x96, 0xb9, 0xa3,
		0xff,
	}
	for i, v := range crtc {
		m.PokeCRTC(uint8(i), v)
	}
	m.PokeCRTC(nvreg.CRTCRepaint0, 0x00)
	m.PokeCRTC(nvreg.CRTCRepaint1, 0x3c)
	m.PokeCRTC(nvreg.CRTCArb0, 0x24)
	m.PokeCRTC(nvreg.CRTCArb1, 0x10)
	m.PokeCRTC(nvreg.CRTCPixel, 0x00)

	m.Poke(nvreg.StrapInfo2, 0x00000000)
	m.Poke(nvreg.NV10StrapInfo, 0x00400000)
	m.Poke(nvreg.NV4StrapInfo, 0x00000003)
	m.Poke(nvreg.PwrUpCtrl, 0x13110011)
	m.Poke(nvreg.PixelPLL, 0x0001a20b)
	m.Poke(nvreg.PLLSelect, 0x10000100)
	m.Poke(nvreg.DACGenCtrl, 0x00100000)
}

var allArchitectures = []Architecture{NV04, NV10, NV20, NV30}
