// Package vmm implements the kernel's virtual memory core: a global frame
// table with clock/second-chance eviction, per-process supplemental page
// tables describing how each virtual page's content is reconstructed, a
// demand-load dispatcher invoked by the page-fault handler and a stack
// growth hook.
//
// The physical page pool, the swap device and the paging layer are external
// collaborators injected through the FramePool, SwapStore and AddressSpace
// interfaces.
package vmm

import (
	"github.com/TranNgocDuy3692/pintos/kernel"
	"github.com/TranNgocDuy3692/pintos/kernel/mm"
)

// FramePool is the bounded physical page allocator. Request signals
// exhaustion by returning mm.InvalidFrame; Bytes exposes the frame's backing
// window so page content can be populated and preserved.
type FramePool interface {
	Request(zero bool) mm.Frame
	Release(frame mm.Frame)
	Bytes(frame mm.Frame) []byte
	FreeCount() int
}

// SwapStore is the block-addressed backing store absorbing evicted pages.
type SwapStore interface {
	WriteNewSlot(p []byte) (mm.SwapSlot, *kernel.Error)
	ReadSlot(slot mm.SwapSlot, dst []byte) *kernel.Error
	ReleaseSlot(slot mm.SwapSlot)
}

// Manager wires the page pool, the swap store, the frame table and the
// process registry into the demand-paging core. One Manager exists for the
// kernel's lifetime; it is constructed explicitly rather than living in
// package globals so that its state stays injectable.
type Manager struct {
	pool   FramePool
	swap   SwapStore
	frames *FrameTable
	procs  *ProcessTable
}

// NewManager initializes the virtual memory subsystem on top of the given
// page pool and swap store.
func NewManager(pool FramePool, store SwapStore) *Manager {
	procs := NewProcessTable()
	return &Manager{
		pool:   pool,
		swap:   store,
		frames: NewFrameTable(pool, store, procs),
		procs:  procs,
	}
}

// Frames returns the global frame table.
func (m *Manager) Frames() *FrameTable { return m.frames }

// CreateProcess registers a process's virtual memory state: its address
// space and a fresh supplemental page table.
func (m *Manager) CreateProcess(tid ThreadID, as AddressSpace) (*Process, *kernel.Error) {
	p := &Process{ID: tid, AddrSpace: as, pages: NewPageTable()}
	if err := m.procs.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// TeardownProcess releases every frame the process still owns, releases the
// swap slots its descriptors still reference and unregisters the process.
// The process is unregistered first so that a concurrent eviction resolving
// its thread id observes the defined not-found case instead of half-freed
// state. The frame release serializes with eviction: an eviction that
// resolved the owner before Unregister ran finishes saving its victim
// before any of the process's frames go back to the pool, and once it
// finishes the victim frame belongs to the requesting thread and is no
// longer freed here.
func (m *Manager) TeardownProcess(p *Process) {
	m.procs.Unregister(p.ID)
	m.frames.freeOwnedBy(p.ID)
	p.pages.DestroyAll(m.swap)
}
