package vmm

import (
	"testing"

	"github.com/TranNgocDuy3692/pintos/kernel/mm"
	"github.com/TranNgocDuy3692/pintos/kernel/mm/swap"
)

func TestPageKindTransitions(t *testing.T) {
	specs := []struct {
		kind           PageKind
		expSwap        PageKind
		expNoSwap      PageKind
		expHasSwapFlag bool
	}{
		{PageFile, PageFileSwap, PageFile, false},
		{PageMmf, PageMmfSwap, PageMmf, false},
		{PageSwap, PageSwap, PageSwap, true},
		{PageFileSwap, PageFileSwap, PageFile, true},
		{PageMmfSwap, PageMmfSwap, PageMmf, true},
	}

	for specIndex, spec := range specs {
		if got := spec.kind.withSwap(); got != spec.expSwap {
			t.Errorf("[spec %d] expected %s.withSwap() to be %s; got %s", specIndex, spec.kind, spec.expSwap, got)
		}
		if got := spec.kind.withoutSwap(); got != spec.expNoSwap {
			t.Errorf("[spec %d] expected %s.withoutSwap() to be %s; got %s", specIndex, spec.kind, spec.expNoSwap, got)
		}
		if got := spec.kind.hasSwap(); got != spec.expHasSwapFlag {
			t.Errorf("[spec %d] expected %s.hasSwap() to be %t; got %t", specIndex, spec.kind, spec.expHasSwapFlag, got)
		}
	}
}

func TestPageKindString(t *testing.T) {
	if exp, got := "file+swap", PageFileSwap.String(); got != exp {
		t.Fatalf("expected String() to return %q; got %q", exp, got)
	}
	if exp, got := "unknown", PageKind(99).String(); got != exp {
		t.Fatalf("expected String() for a bogus kind to return %q; got %q", exp, got)
	}
}

func TestPageTableInsertRejectsDuplicates(t *testing.T) {
	pt := NewPageTable()
	file := &memFile{data: make([]byte, mm.PageSize)}
	vaddr := uintptr(3 * mm.PageSize)

	if err := pt.InsertFile(file, 0, vaddr, 100, mm.PageSize-100, true); err != nil {
		t.Fatal(err)
	}

	// The same page registered through either insert path must be rejected,
	// not overwritten.
	if err := pt.InsertFile(file, 0, vaddr+1, 200, 0, false); err != ErrDuplicateDescriptor {
		t.Fatalf("expected ErrDuplicateDescriptor; got %v", err)
	}
	if err := pt.InsertMmf(file, 0, vaddr, 100); err != ErrDuplicateDescriptor {
		t.Fatalf("expected ErrDuplicateDescriptor; got %v", err)
	}

	desc := pt.Lookup(mm.PageFromAddress(vaddr))
	if desc == nil {
		t.Fatal("expected the original descriptor to survive")
	}
	if exp, got := PageFile, desc.Kind(); got != exp {
		t.Fatalf("expected kind %s; got %s", exp, got)
	}
	if !desc.writable {
		t.Fatal("expected the original descriptor's payload to survive")
	}
}

func TestPageTableLookupRemove(t *testing.T) {
	pt := NewPageTable()
	file := &memFile{data: make([]byte, mm.PageSize)}

	if got := pt.Lookup(mm.Page(1)); got != nil {
		t.Fatalf("expected lookup on an empty table to return nil; got %v", got)
	}

	if err := pt.InsertMmf(file, 0, uintptr(mm.PageSize), mm.PageSize); err != nil {
		t.Fatal(err)
	}
	if exp, got := 1, pt.Len(); got != exp {
		t.Fatalf("expected table length %d; got %d", exp, got)
	}

	pt.Remove(mm.Page(1))
	if got := pt.Lookup(mm.Page(1)); got != nil {
		t.Fatal("expected descriptor to be removed")
	}

	// Removing again is a no-op.
	pt.Remove(mm.Page(1))
	if exp, got := 0, pt.Len(); got != exp {
		t.Fatalf("expected table length %d; got %d", exp, got)
	}
}

func TestPageTableDestroyAllReleasesSlots(t *testing.T) {
	dev := swap.NewDevice(2)
	preAlloc := dev.FreeSlots()

	slot, err := dev.WriteNewSlot(make([]byte, mm.PageSize))
	if err != nil {
		t.Fatal(err)
	}

	pt := NewPageTable()
	if err := pt.insert(&PageDescriptor{kind: PageSwap, page: mm.Page(9), slot: slot}); err != nil {
		t.Fatal(err)
	}

	pt.DestroyAll(dev)

	if exp, got := preAlloc, dev.FreeSlots(); got != exp {
		t.Fatalf("expected free slot count to return to %d; got %d", exp, got)
	}
	if exp, got := 0, pt.Len(); got != exp {
		t.Fatalf("expected table length after destroy to be %d; got %d", exp, got)
	}

	// A second destroy finds no entries and releases nothing further.
	pt.DestroyAll(dev)
	if exp, got := preAlloc, dev.FreeSlots(); got != exp {
		t.Fatalf("expected free slot count to remain %d; got %d", exp, got)
	}
}

func TestPageTableDestroyAllSkipsFileKinds(t *testing.T) {
	dev := swap.NewDevice(1)
	pt := NewPageTable()
	file := &memFile{data: make([]byte, mm.PageSize)}

	if err := pt.InsertFile(file, 0, 0, 10, mm.PageSize-10, false); err != nil {
		t.Fatal(err)
	}

	pt.DestroyAll(dev)
	if exp, got := 1, dev.FreeSlots(); got != exp {
		t.Fatalf("expected no slot to be released; free count %d, want %d", got, exp)
	}
}

func TestWriteBackShortWrite(t *testing.T) {
	// A file smaller than the recorded range cannot absorb the page.
	desc := &PageDescriptor{
		kind:      PageMmf,
		file:      &memFile{data: make([]byte, 100)},
		readBytes: 200,
	}

	if err := desc.writeBack(make([]byte, mm.PageSize)); err != errFileWrite {
		t.Fatalf("expected errFileWrite; got %v", err)
	}
}
