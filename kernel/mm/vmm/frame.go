package vmm

import (
	"container/list"
	"sync"

	"github.com/TranNgocDuy3692/pintos/kernel"
	"github.com/TranNgocDuy3692/pintos/kernel/mm"
)

var (
	errNoVictim      = &kernel.Error{Module: "vmm", Message: "frame table holds no evictable frame"}
	errOwnerNotFound = &kernel.Error{Module: "vmm", Message: "eviction victim's owner is not registered"}
)

// FrameTableEntry records the ownership and mapping of one resident frame.
type FrameTableEntry struct {
	frame mm.Frame
	tid   ThreadID

	// Weak reference to the owning mapping. as stays nil between
	// allocation and Bind; the frame cannot be evicted in that window.
	as    AddressSpace
	vaddr uintptr
	page  mm.Page
}

// Frame returns the frame this entry describes.
func (e *FrameTableEntry) Frame() mm.Frame { return e.frame }

// TID returns the thread that owns the frame.
func (e *FrameTableEntry) TID() ThreadID { return e.tid }

// Page returns the virtual page the frame backs, if the entry is bound.
func (e *FrameTableEntry) Page() mm.Page { return e.page }

// Bound returns true once Bind has recorded the frame's mapping.
func (e *FrameTableEntry) Bound() bool { return e.as != nil }

// FrameTable is the global registry of resident frames. It owns each frame
// it tracks for as long as the frame stays resident and drives eviction when
// the page pool is exhausted.
type FrameTable struct {
	pool  FramePool
	swap  SwapStore
	procs *ProcessTable

	// mu guards membership of entries. evictMu serializes the whole
	// select/preserve/reassign sequence so that at most one eviction is
	// in flight system-wide.
	mu      sync.Mutex
	evictMu sync.Mutex

	// entries holds *FrameTableEntry values in clock-scan order; spared
	// victims move to the back.
	entries *list.List
}

// NewFrameTable returns a frame table drawing frames from pool, preserving
// evicted content on store and resolving frame owners through procs.
func NewFrameTable(pool FramePool, store SwapStore, procs *ProcessTable) *FrameTable {
	return &FrameTable{
		pool:    pool,
		swap:    store,
		procs:   procs,
		entries: list.New(),
	}
}

// Allocate obtains a frame from the pool and registers it under the calling
// thread. When the pool is exhausted a victim frame is evicted and reused;
// if eviction cannot produce a frame either, the error is unrecoverable and
// the caller owns the decision to halt.
func (ft *FrameTable) Allocate(tid ThreadID, zero bool) (mm.Frame, *kernel.Error) {
	if frame := ft.pool.Request(zero); frame.Valid() {
		ft.mu.Lock()
		ft.entries.PushBack(&FrameTableEntry{frame: frame, tid: tid})
		ft.mu.Unlock()
		return frame, nil
	}

	return ft.evict(tid)
}

// Free removes the frame's entry and returns the frame to the pool. Calling
// Free again for the same frame is a no-op.
func (ft *FrameTable) Free(frame mm.Frame) {
	ft.mu.Lock()
	var removed bool
	for e := ft.entries.Front(); e != nil; e = e.Next() {
		if e.Value.(*FrameTableEntry).frame == frame {
			ft.entries.Remove(e)
			removed = true
			break
		}
	}
	ft.mu.Unlock()

	if removed {
		ft.pool.Release(frame)
	}
}

// Bind records the mapping installed for a previously allocated frame.
// Allocation necessarily precedes mapping, so the owner and mapping fields
// are filled in separately.
func (ft *FrameTable) Bind(frame mm.Frame, as AddressSpace, vaddr uintptr) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if fte := ft.lookupLocked(frame); fte != nil {
		fte.as = as
		fte.vaddr = vaddr
		fte.page = mm.PageFromAddress(vaddr)
	}
}

// Lookup returns the entry registered for frame, or nil.
func (ft *FrameTable) Lookup(frame mm.Frame) *FrameTableEntry {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.lookupLocked(frame)
}

// Size returns the number of resident frames tracked by the table.
func (ft *FrameTable) Size() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.entries.Len()
}

func (ft *FrameTable) lookupLocked(frame mm.Frame) *FrameTableEntry {
	for e := ft.entries.Front(); e != nil; e = e.Next() {
		if fte := e.Value.(*FrameTableEntry); fte.frame == frame {
			return fte
		}
	}
	return nil
}

// freeOwnedBy tears down the mappings of every frame owned by tid and
// returns the frames to the pool. It runs under the eviction lock: an
// eviction that resolved tid before the owner was unregistered may still be
// saving one of these frames, and releasing that frame mid-save would let
// the pool issue it a second time while the evictor hands it out too.
func (ft *FrameTable) freeOwnedBy(tid ThreadID) {
	ft.evictMu.Lock()
	defer ft.evictMu.Unlock()

	for _, fte := range ft.ownedBy(tid) {
		if fte.as != nil {
			fte.as.Unmap(fte.page)
		}
		ft.Free(fte.frame)
	}
}

// ownedBy snapshots the entries currently owned by tid.
func (ft *FrameTable) ownedBy(tid ThreadID) []*FrameTableEntry {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var owned []*FrameTableEntry
	for e := ft.entries.Front(); e != nil; e = e.Next() {
		if fte := e.Value.(*FrameTableEntry); fte.tid == tid {
			owned = append(owned, fte)
		}
	}
	return owned
}

// evict selects a victim frame, preserves its content and hands the frame to
// the requesting thread. Selection, preservation and ownership reassignment
// form one system-wide critical section: interleaved evictions could save
// the same victim twice or issue one reclaimed frame to two threads.
func (ft *FrameTable) evict(tid ThreadID) (mm.Frame, *kernel.Error) {
	ft.evictMu.Lock()
	defer ft.evictMu.Unlock()

	fte := ft.selectVictim()
	if fte == nil {
		return mm.InvalidFrame, errNoVictim
	}

	if err := ft.saveEvicted(fte); err != nil {
		return mm.InvalidFrame, err
	}

	fte.tid = tid
	fte.as = nil
	fte.vaddr = 0
	fte.page = 0

	return fte.frame, nil
}

// selectVictim runs a second-chance scan over the table in list order. A
// mapping with a clear access bit is selected and rotated to the back; a set
// bit is cleared and the scan moves on. The first pass clears every set bit
// it encounters, so if it finds no victim the second pass must stop at the
// first inspectable entry. Unbound entries and entries whose owner is no
// longer registered have no access bit to inspect and are skipped.
func (ft *FrameTable) selectVictim() *FrameTableEntry {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	for round := 0; round < 2; round++ {
		for e := ft.entries.Front(); e != nil; e = e.Next() {
			fte := e.Value.(*FrameTableEntry)
			if fte.as == nil {
				continue
			}

			owner, ok := ft.procs.Lookup(fte.tid)
			if !ok {
				continue
			}

			if owner.AddrSpace.Accessed(fte.page) {
				owner.AddrSpace.SetAccessed(fte.page, false)
				continue
			}

			ft.entries.MoveToBack(e)
			return fte
		}
	}

	return nil
}

// saveEvicted relocates the victim's content so that it can be reconstructed
// later, then zeroes the frame and tears down the victim's mapping. Dirty
// memory-mapped pages go back to their file; everything else that is dirty
// or has no file backing goes to a swap slot. A clean file-backed page needs
// no write at all since its content can be re-read from the file.
func (ft *FrameTable) saveEvicted(fte *FrameTableEntry) *kernel.Error {
	owner, ok := ft.procs.Lookup(fte.tid)
	if !ok {
		return errOwnerNotFound
	}

	pages := owner.Pages()
	desc := pages.Lookup(fte.page)
	if desc == nil {
		// Anonymous page evicted for the first time; from here on its
		// only backing store is swap.
		desc = &PageDescriptor{kind: PageSwap, page: fte.page}
		if err := pages.insert(desc); err != nil {
			return err
		}
	}

	buf := ft.pool.Bytes(fte.frame)
	dirty := owner.AddrSpace.Dirty(fte.page)

	switch {
	case dirty && desc.kind == PageMmf:
		if err := desc.writeBack(buf); err != nil {
			return err
		}
	case dirty || desc.kind != PageFile:
		slot, err := ft.swap.WriteNewSlot(buf)
		if err != nil {
			return err
		}
		desc.slot = slot
		desc.kind = desc.kind.withSwap()
	}

	desc.swapWritable = fte.as.Writable(fte.page)
	desc.loaded = false

	clearPage(buf)
	owner.AddrSpace.Unmap(fte.page)

	return nil
}

func clearPage(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
