package mm

import "testing"

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		virtAddr uintptr
		expPage  Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4097, Page(1)},
		{100 * PageSize, Page(100)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.virtAddr); got != spec.expPage {
			t.Errorf("[spec %d] expected page for address 0x%x to be %d; got %d", specIndex, spec.virtAddr, spec.expPage, got)
		}
	}
}

func TestPageAddress(t *testing.T) {
	if exp, got := uintptr(42*PageSize), Page(42).Address(); got != exp {
		t.Fatalf("expected page address to be 0x%x; got 0x%x", exp, got)
	}
}

func TestFrameValid(t *testing.T) {
	if InvalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}

	if !Frame(0).Valid() {
		t.Error("expected Frame(0).Valid() to return true")
	}
}

func TestSwapSlotValid(t *testing.T) {
	if InvalidSwapSlot.Valid() {
		t.Error("expected InvalidSwapSlot.Valid() to return false")
	}

	if !SwapSlot(7).Valid() {
		t.Error("expected SwapSlot(7).Valid() to return true")
	}
}
