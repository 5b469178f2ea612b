package vmm

import (
	"sync"

	"github.com/TranNgocDuy3692/pintos/kernel/mm"
)

// AddressSpace is the surface this subsystem requires from the kernel's
// paging layer. Each process owns exactly one AddressSpace; the eviction
// path may consult a different process's AddressSpace while it holds the
// eviction lock.
type AddressSpace interface {
	// Map establishes a mapping between a virtual page and a physical
	// frame. It returns false when the paging layer cannot install the
	// mapping.
	Map(page mm.Page, frame mm.Frame, writable bool) bool

	// Unmap tears down the mapping for the given page.
	Unmap(page mm.Page)

	// Accessed returns the access bit of the page's mapping.
	Accessed(page mm.Page) bool

	// SetAccessed updates the access bit of the page's mapping.
	SetAccessed(page mm.Page, flag bool)

	// Dirty returns the dirty bit of the page's mapping.
	Dirty(page mm.Page) bool

	// Writable returns true if the page's mapping permits writes.
	Writable(page mm.Page) bool
}

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

const (
	// FlagPresent marks an entry whose page is backed by a frame.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW marks an entry that permits writes.
	FlagRW

	// FlagAccessed marks an entry whose page has been read or written
	// since the flag was last cleared.
	FlagAccessed

	// FlagDirty marks an entry whose page has been written since it was
	// mapped.
	FlagDirty
)

const pteFrameShift = 12

// pageTableEntry encodes a mapped frame index and a set of flags.
type pageTableEntry uint64

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint64(*pte) &^ uint64(flags))
}

// Frame returns the physical frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame(uint64(pte) >> pteFrameShift)
}

// SetFrame updates the page table entry to point to the given frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = pageTableEntry(uint64(*pte)&((1<<pteFrameShift)-1) | uint64(frame)<<pteFrameShift)
}

// PageDir is a map-backed AddressSpace implementation. On real hardware the
// MMU maintains the access and dirty bits; PageDir instead exposes
// SetAccessed and SetDirty so the surrounding kernel (or a test) can drive
// them explicitly.
type PageDir struct {
	mu      sync.Mutex
	entries map[mm.Page]*pageTableEntry
}

// NewPageDir returns an empty address space.
func NewPageDir() *PageDir {
	return &PageDir{entries: make(map[mm.Page]*pageTableEntry)}
}

// Map installs a mapping from page to frame. Installing over a present
// mapping fails; callers must Unmap first.
func (pd *PageDir) Map(page mm.Page, frame mm.Frame, writable bool) bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	if old := pd.entries[page]; old != nil && old.HasFlags(FlagPresent) {
		return false
	}

	var pte pageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent)
	if writable {
		pte.SetFlags(FlagRW)
	}
	pd.entries[page] = &pte
	return true
}

// Unmap removes the mapping for the given page, discarding its access and
// dirty bits.
func (pd *PageDir) Unmap(page mm.Page) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	delete(pd.entries, page)
}

// Accessed returns the access bit for page, or false if page is not mapped.
func (pd *PageDir) Accessed(page mm.Page) bool {
	return pd.hasFlags(page, FlagAccessed)
}

// SetAccessed updates the access bit for page. It has no effect on pages
// without a present mapping.
func (pd *PageDir) SetAccessed(page mm.Page, flag bool) {
	pd.setFlags(page, FlagAccessed, flag)
}

// Dirty returns the dirty bit for page, or false if page is not mapped.
func (pd *PageDir) Dirty(page mm.Page) bool {
	return pd.hasFlags(page, FlagDirty)
}

// SetDirty updates the dirty bit for page. It has no effect on pages without
// a present mapping.
func (pd *PageDir) SetDirty(page mm.Page, flag bool) {
	pd.setFlags(page, FlagDirty, flag)
}

// Writable returns true if page is mapped with write permission.
func (pd *PageDir) Writable(page mm.Page) bool {
	return pd.hasFlags(page, FlagRW)
}

// FrameAt returns the frame mapped at page, or mm.InvalidFrame if page has
// no present mapping.
func (pd *PageDir) FrameAt(page mm.Page) mm.Frame {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	if pte := pd.entries[page]; pte != nil && pte.HasFlags(FlagPresent) {
		return pte.Frame()
	}
	return mm.InvalidFrame
}

func (pd *PageDir) hasFlags(page mm.Page, flags PageTableEntryFlag) bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	pte := pd.entries[page]
	return pte != nil && pte.HasFlags(flags)
}

func (pd *PageDir) setFlags(page mm.Page, flags PageTableEntryFlag, set bool) {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	pte := pd.entries[page]
	if pte == nil || !pte.HasFlags(FlagPresent) {
		return
	}

	if set {
		pte.SetFlags(flags)
	} else {
		pte.ClearFlags(flags)
	}
}

var _ AddressSpace = (*PageDir)(nil)
