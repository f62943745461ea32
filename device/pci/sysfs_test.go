package pci

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeDevice struct {
	addr  string
	attrs map[string]string
	bars  map[int]int
}

func makeSysfs(t *testing.T, devices ...fakeDevice) string {
	t.Helper()

	root := t.TempDir()
	for _, dev := range devices {
		dir := filepath.Join(root, dev.addr)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}

		for name, value := range dev.attrs {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
				t.Fatal(err)
			}
		}

		for bar, size := range dev.bars {
			path := filepath.Join(dir, "resource"+string(rune('0'+bar)))
			if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}

	return root
}

func geforce(addr string) fakeDevice {
	return fakeDevice{
		addr: addr,
		attrs: map[string]string{
			"vendor":   "0x10de\n",
			"device":   "0x0110\n",
			"class":    "0x030000\n",
			"revision": "0xa1\n",
		},
		bars: map[int]int{0: 4096, 1: 8192},
	}
}

func TestScan(t *testing.T) {
	bridge := fakeDevice{
		addr: "0000:00:00.0",
		attrs: map[string]string{
			"vendor": "0x8086\n",
			"device": "0x1237\n",
			"class":  "0x060000\n",
		},
	}
	broken := fakeDevice{
		addr: "0000:00:1f.0",
		attrs: map[string]string{
			"vendor": "bogus\n",
			"device": "0x1237\n",
			"class":  "0x060000\n",
		},
	}

	root := makeSysfs(t, geforce("0000:01:00.0"), bridge, broken)

	devices, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := 2, len(devices); got != exp {
		t.Fatalf("expected Scan to return %d devices; got %d", exp, got)
	}

	specs := []struct {
		addr      string
		vendor    uint16
		device    uint16
		baseClass uint8
		revision  uint8
	}{
		{"0000:00:00.0", 0x8086, 0x1237, 0x06, 0},
		{"0000:01:00.0", 0x10de, 0x0110, ClassDisplay, 0xa1},
	}

	for specIndex, spec := range specs {
		dev := devices[specIndex]
		if dev.Addr != spec.addr || dev.Vendor != spec.vendor || dev.DeviceID != spec.device ||
			dev.BaseClass() != spec.baseClass || dev.Revision != spec.revision {
			t.Errorf("[spec %d] unexpected device: %s", specIndex, dev)
		}
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a not-exist error; got %v", err)
	}
}
