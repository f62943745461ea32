package nvidia

import (
	"errors"
	"testing"

	"nvfb/device/video/nvidia/nvreg"
)

func TestDDC1(t *testing.T) {
	tc := newTestCore(t, NV10, Options{})

	tc.SetupDDC1()
	if !tc.m.Unlocked() {
		t.Fatal("expected SetupDDC1 to unlock the extended registers")
	}

	// Two status reads inside a retrace, two outside and then a new
	// retrace; the sample must be taken after the last transition.
	var reads int
	tc.m.SetStatusHook(func() uint8 {
		reads++
		switch {
		case reads <= 2, reads >= 5:
			return nvreg.StatVRetrace
		default:
			return 0
		}
	})

	var sda uint8
	ddcReads := 0
	tc.m.SetDDCHook(func() uint8 {
		ddcReads++
		if reads < 5 {
			t.Errorf("expected the DDC line to be sampled at the start of a retrace; status reads %d", reads)
		}
		return sda
	})

	for specIndex, spec := range []struct {
		line uint8
		exp  bool
	}{
		{nvreg.DDCSDARead, true},
		{0, false},
		{0xff &^ nvreg.DDCSDARead, false},
	} {
		reads, sda = 0, spec.line
		got, err := tc.GetDDC1Bit()
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}
		if got != spec.exp {
			t.Errorf("[spec %d] expected bit %t; got %t", specIndex, spec.exp, got)
		}
	}
	if ddcReads != 3 {
		t.Errorf("expected one DDC read per bit; got %d", ddcReads)
	}

	tc.CloseDDC1()
}

func TestDDC1StuckRetrace(t *testing.T) {
	specs := []struct {
		status uint8
	}{
		{nvreg.StatVRetrace},
		{0},
	}

	for specIndex, spec := range specs {
		tc := newTestCore(t, NV20, Options{DDCSpinLimit: 16})
		tc.SetupDDC1()

		reads := 0
		tc.m.SetStatusHook(func() uint8 {
			reads++
			return spec.status
		})

		if _, err := tc.GetDDC1Bit(); !errors.Is(err, ErrDeviceUnresponsive) {
			t.Fatalf("[spec %d] expected ErrDeviceUnresponsive; got %v", specIndex, err)
		}

		// A stuck retrace bit fails the first wait; a missing one the
		// second.
		exp := 16
		if spec.status == 0 {
			exp = 1 + 16
		}
		if reads != exp {
			t.Errorf("[spec %d] expected %d status reads; got %d", specIndex, exp, reads)
		}
	}
}

func TestDefaultDDCSpinLimit(t *testing.T) {
	tc := newTestCore(t, NV10, Options{})
	if tc.ddcSpin != DefaultDDCSpinLimit {
		t.Fatalf("expected the default spin limit %d; got %d", DefaultDDCSpinLimit, tc.ddcSpin)
	}
}
