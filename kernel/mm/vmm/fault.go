package vmm

import (
	"github.com/TranNgocDuy3692/pintos/kernel"
	"github.com/TranNgocDuy3692/pintos/kernel/mm"
)

var (
	// ErrMapFailed is returned when the paging layer cannot install a
	// mapping. The fault handler owns the recovery policy, typically
	// terminating only the faulting process.
	ErrMapFailed = &kernel.Error{Module: "vmm", Message: "paging layer could not install the mapping"}

	// ErrNoDescriptor is returned for fault addresses with no
	// supplemental page table entry.
	ErrNoDescriptor = &kernel.Error{Module: "vmm", Message: "no descriptor covers the faulting address"}

	errFileRead = &kernel.Error{Module: "vmm", Message: "short read from backing file"}
)

// LoadPage reconstructs the content of the faulting page into a fresh frame
// and installs its mapping, dispatching on the descriptor kind. The
// page-fault handler calls it for addresses the supplemental page table
// knows about; any failure is surfaced once with no retry.
func (m *Manager) LoadPage(p *Process, vaddr uintptr) *kernel.Error {
	desc := p.pages.Lookup(mm.PageFromAddress(vaddr))
	if desc == nil {
		return ErrNoDescriptor
	}

	switch desc.kind {
	case PageFile:
		return m.loadFromFile(p, desc)
	case PageMmf, PageMmfSwap:
		return m.loadMmf(p, desc)
	case PageSwap, PageFileSwap:
		return m.loadFromSwap(p, desc)
	}

	return ErrNoDescriptor
}

// loadFromFile populates a frame with the descriptor's recorded byte range,
// zero-fills the remainder and installs the mapping with the recorded
// writable bit.
func (m *Manager) loadFromFile(p *Process, desc *PageDescriptor) *kernel.Error {
	frame, err := m.frames.Allocate(p.ID, false)
	if err != nil {
		return err
	}

	buf := m.pool.Bytes(frame)
	if n, _ := desc.file.ReadAt(buf[:desc.readBytes], desc.ofs); n < desc.readBytes {
		m.frames.Free(frame)
		return errFileRead
	}
	clearPage(buf[desc.readBytes : desc.readBytes+desc.zeroBytes])

	if !p.AddrSpace.Map(desc.page, frame, desc.writable) {
		m.frames.Free(frame)
		return ErrMapFailed
	}
	m.frames.Bind(frame, p.AddrSpace, desc.page.Address())

	desc.loaded = true
	return nil
}

// loadMmf populates a memory-mapped page from its file. The reload source is
// always the file, never a stale swap slot, so a swap-carrying kind reverts
// to plain mmf and its slot is released.
func (m *Manager) loadMmf(p *Process, desc *PageDescriptor) *kernel.Error {
	frame, err := m.frames.Allocate(p.ID, false)
	if err != nil {
		return err
	}

	buf := m.pool.Bytes(frame)
	if n, _ := desc.file.ReadAt(buf[:desc.readBytes], desc.ofs); n < desc.readBytes {
		m.frames.Free(frame)
		return errFileRead
	}
	clearPage(buf[desc.readBytes:])

	if !p.AddrSpace.Map(desc.page, frame, true) {
		m.frames.Free(frame)
		return ErrMapFailed
	}
	m.frames.Bind(frame, p.AddrSpace, desc.page.Address())

	if desc.kind == PageMmfSwap {
		m.swap.ReleaseSlot(desc.slot)
		desc.slot = mm.InvalidSwapSlot
		desc.kind = desc.kind.withoutSwap()
	}

	desc.loaded = true
	return nil
}

// loadFromSwap installs the mapping with the writable bit recorded at
// eviction time and copies the slot's content back into the frame. The slot
// is consumed by the load: a pure swap page sheds its descriptor entirely
// while a file-backed page becomes file-derivable again.
func (m *Manager) loadFromSwap(p *Process, desc *PageDescriptor) *kernel.Error {
	frame, err := m.frames.Allocate(p.ID, false)
	if err != nil {
		return err
	}

	if !p.AddrSpace.Map(desc.page, frame, desc.swapWritable) {
		m.frames.Free(frame)
		return ErrMapFailed
	}

	if err := m.swap.ReadSlot(desc.slot, m.pool.Bytes(frame)); err != nil {
		p.AddrSpace.Unmap(desc.page)
		m.frames.Free(frame)
		return err
	}
	m.frames.Bind(frame, p.AddrSpace, desc.page.Address())
	m.swap.ReleaseSlot(desc.slot)

	if desc.kind == PageSwap {
		p.pages.Remove(desc.page)
		return nil
	}

	desc.slot = mm.InvalidSwapSlot
	desc.kind = desc.kind.withoutSwap()
	desc.loaded = true
	return nil
}

// GrowStack maps a zero-filled writable frame at the page containing vaddr.
// The caller has already decided that vaddr lies inside the legal stack
// auto-extension region. No descriptor is created: if the page is later
// evicted, the clean-anonymous-page rule creates a swap-backed one.
func (m *Manager) GrowStack(p *Process, vaddr uintptr) *kernel.Error {
	frame, err := m.frames.Allocate(p.ID, true)
	if err != nil {
		return err
	}

	page := mm.PageFromAddress(vaddr)
	if !p.AddrSpace.Map(page, frame, true) {
		m.frames.Free(frame)
		return ErrMapFailed
	}
	m.frames.Bind(frame, p.AddrSpace, page.Address())

	return nil
}
