package vmm

import (
	"io"
	"sync"

	"github.com/TranNgocDuy3692/pintos/kernel"
	"github.com/TranNgocDuy3692/pintos/kernel/mm"
)

var (
	// ErrDuplicateDescriptor is returned when inserting a descriptor for
	// a page that already has one. The caller owns undoing any partial
	// setup it performed before the insertion.
	ErrDuplicateDescriptor = &kernel.Error{Module: "vmm", Message: "a descriptor for this page already exists"}

	errFileWrite = &kernel.Error{Module: "vmm", Message: "write-back to the mapped file failed"}
)

// File is the borrowed handle through which file-backed and memory-mapped
// pages reach their backing bytes. Handles are owned by the file system
// layer; this package never opens or closes them.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// PageKind identifies how a page's content is reconstructed when it is
// demand-loaded. A page evicted while its permanent kind is file-backed or
// memory-mapped temporarily carries the swap variant of its kind until it is
// reloaded.
type PageKind uint8

const (
	// PageFile describes a page populated from a byte range of a file.
	PageFile PageKind = iota

	// PageMmf describes a memory-mapped file page: populated from the
	// file and written back to it at the same offset when evicted dirty.
	PageMmf

	// PageSwap describes an anonymous page whose only backing store is a
	// swap slot.
	PageSwap

	// PageFileSwap describes a file-backed page whose latest content
	// currently lives in a swap slot.
	PageFileSwap

	// PageMmfSwap describes a memory-mapped page that was evicted clean
	// into a swap slot.
	PageMmfSwap
)

// String implements fmt.Stringer.
func (k PageKind) String() string {
	switch k {
	case PageFile:
		return "file"
	case PageMmf:
		return "mmf"
	case PageSwap:
		return "swap"
	case PageFileSwap:
		return "file+swap"
	case PageMmfSwap:
		return "mmf+swap"
	}
	return "unknown"
}

// hasSwap returns true for kinds whose descriptor references a swap slot.
func (k PageKind) hasSwap() bool {
	return k == PageSwap || k == PageFileSwap || k == PageMmfSwap
}

// withSwap returns the kind a page transitions to when its content is moved
// to a swap slot at eviction time.
func (k PageKind) withSwap() PageKind {
	switch k {
	case PageFile:
		return PageFileSwap
	case PageMmf:
		return PageMmfSwap
	}
	return k
}

// withoutSwap returns the kind a page reverts to once its content no longer
// lives in a swap slot.
func (k PageKind) withoutSwap() PageKind {
	switch k {
	case PageFileSwap:
		return PageFile
	case PageMmfSwap:
		return PageMmf
	}
	return k
}

// PageDescriptor supplements the hardware page table with the information
// needed to reconstruct one virtual page's content on demand.
type PageDescriptor struct {
	kind PageKind
	page mm.Page

	// file-backed payload; file is borrowed, never owned.
	file      File
	ofs       int64
	readBytes int
	zeroBytes int
	writable  bool

	// swap payload; slot is only meaningful for kinds with hasSwap set.
	slot         mm.SwapSlot
	swapWritable bool

	// loaded is true while the page's content occupies a mapped frame.
	loaded bool
}

// Kind returns the descriptor's current kind.
func (d *PageDescriptor) Kind() PageKind { return d.kind }

// Page returns the virtual page this descriptor covers.
func (d *PageDescriptor) Page() mm.Page { return d.page }

// Loaded returns true while the page's content occupies a mapped frame.
func (d *PageDescriptor) Loaded() bool { return d.loaded }

// Slot returns the swap slot holding the page's content. It is only valid
// for kinds that reference a swap slot.
func (d *PageDescriptor) Slot() mm.SwapSlot { return d.slot }

// writeBack copies the page's bytes to the mapped file at the recorded
// offset. Only memory-mapped pages are ever written back.
func (d *PageDescriptor) writeBack(buf []byte) *kernel.Error {
	if n, err := d.file.WriteAt(buf[:d.readBytes], d.ofs); n < d.readBytes || err != nil {
		return errFileWrite
	}
	return nil
}

// PageTable is a process's supplemental page table: an associative map from
// virtual page to the descriptor that can reconstruct its content. It is
// created when the process starts and destroyed exactly once at exit.
type PageTable struct {
	mu      sync.Mutex
	entries map[mm.Page]*PageDescriptor
}

// NewPageTable returns an empty supplemental page table.
func NewPageTable() *PageTable {
	return &PageTable{entries: make(map[mm.Page]*PageDescriptor)}
}

// InsertFile registers a file-backed page: readBytes bytes read from file at
// ofs, followed by zeroBytes zero-filled bytes. The read and zero lengths
// must not span past the end of the page.
func (pt *PageTable) InsertFile(file File, ofs int64, vaddr uintptr, readBytes, zeroBytes int, writable bool) *kernel.Error {
	return pt.insert(&PageDescriptor{
		kind:      PageFile,
		page:      mm.PageFromAddress(vaddr),
		file:      file,
		ofs:       ofs,
		readBytes: readBytes,
		zeroBytes: zeroBytes,
		writable:  writable,
	})
}

// InsertMmf registers a memory-mapped file page: readBytes bytes read from
// file at ofs with the remainder of the page zero-filled. Dirty content is
// written back to the same offset when the page is evicted.
func (pt *PageTable) InsertMmf(file File, ofs int64, vaddr uintptr, readBytes int) *kernel.Error {
	return pt.insert(&PageDescriptor{
		kind:      PageMmf,
		page:      mm.PageFromAddress(vaddr),
		file:      file,
		ofs:       ofs,
		readBytes: readBytes,
	})
}

// insert adds a descriptor, rejecting duplicate keys.
func (pt *PageTable) insert(desc *PageDescriptor) *kernel.Error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if _, exists := pt.entries[desc.page]; exists {
		return ErrDuplicateDescriptor
	}

	pt.entries[desc.page] = desc
	return nil
}

// Lookup returns the descriptor covering the given page, or nil.
func (pt *PageTable) Lookup(page mm.Page) *PageDescriptor {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.entries[page]
}

// Remove discards the descriptor covering the given page, if any.
func (pt *PageTable) Remove(page mm.Page) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.entries, page)
}

// Len returns the number of descriptors in the table.
func (pt *PageTable) Len() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.entries)
}

// DestroyAll releases every swap slot still referenced by the table's
// descriptors and discards all entries. It must run once at process exit so
// that no swap space leaks.
func (pt *PageTable) DestroyAll(store SwapStore) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	for page, desc := range pt.entries {
		if desc.kind.hasSwap() {
			store.ReleaseSlot(desc.slot)
		}
		delete(pt.entries, page)
	}
}
