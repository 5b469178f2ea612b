package vmm

import (
	"sync"

	"github.com/TranNgocDuy3692/pintos/kernel"
)

var errProcessExists = &kernel.Error{Module: "vmm", Message: "a process with this thread id is already registered"}

// ThreadID identifies the kernel thread that owns a process's address space.
type ThreadID uint32

// Process groups the per-process virtual memory state: the address space
// managed by the paging layer and the supplemental page table managed here.
type Process struct {
	// ID is the owning thread's identifier.
	ID ThreadID

	// AddrSpace is the process's page directory, owned by the paging layer.
	AddrSpace AddressSpace

	pages *PageTable
}

// Pages returns the process's supplemental page table.
func (p *Process) Pages() *PageTable { return p.pages }

// ProcessTable resolves thread identifiers to their process handles. The
// eviction path uses it to reach a victim's supplemental page table; the
// lookup is fallible because the owner may already be tearing down.
type ProcessTable struct {
	mu    sync.Mutex
	procs map[ThreadID]*Process
}

// NewProcessTable returns an empty registry.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{procs: make(map[ThreadID]*Process)}
}

// Register adds a process to the registry, rejecting duplicate thread ids.
func (pt *ProcessTable) Register(p *Process) *kernel.Error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if _, exists := pt.procs[p.ID]; exists {
		return errProcessExists
	}

	pt.procs[p.ID] = p
	return nil
}

// Unregister removes the process registered under tid, if any.
func (pt *ProcessTable) Unregister(tid ThreadID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.procs, tid)
}

// Lookup returns the process registered under tid.
func (pt *ProcessTable) Lookup(tid ThreadID) (*Process, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[tid]
	return p, ok
}
