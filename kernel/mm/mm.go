// Package mm declares the memory primitives shared by the physical page
// pool, the swap device and the virtual memory manager.
package mm

import "math"

const (
	// PageShift is equal to log2(PageSize). This constant is used when we
	// need to convert an address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = 1 << PageShift
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address where this Page begins.
func (p Page) Address() uintptr {
	return uintptr(p) << PageShift
}

// PageFromAddress returns the Page that contains the given virtual address.
// This function can handle both page-aligned and not aligned addresses; in
// the latter case, the input address will be rounded down to the page that
// contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^uintptr(PageSize-1)) >> PageShift)
}

// SwapSlot describes a block index on the swap device. Each slot holds
// exactly one frame's worth of bytes.
type SwapSlot uintptr

const (
	// InvalidSwapSlot is returned by the swap device when no free slot
	// can be reserved.
	InvalidSwapSlot = SwapSlot(math.MaxUint64)
)

// Valid returns true if this is a valid swap slot.
func (s SwapSlot) Valid() bool {
	return s != InvalidSwapSlot
}
