// Package swap implements the block-addressed backing store used to absorb
// evicted anonymous pages. The device is divided into fixed-size slots, each
// holding exactly one frame's worth of bytes, tracked with a free bitmap in
// the same way the pmm pool tracks frames.
package swap

import (
	"math/bits"
	"sync"

	"github.com/TranNgocDuy3692/pintos/kernel"
	"github.com/TranNgocDuy3692/pintos/kernel/mm"
)

var (
	// ErrDeviceFull is returned when no free slot exists to absorb a
	// page. There is no backing store behind the swap device, so the
	// caller cannot recover from this condition.
	ErrDeviceFull = &kernel.Error{Module: "swap", Message: "no free swap slot available"}

	errSlotNotAllocated = &kernel.Error{Module: "swap", Message: "swap slot is not allocated"}
)

// Device is a bounded, slot-addressed store for evicted page contents.
type Device struct {
	mu sync.Mutex

	// slab holds the backing bytes for every slot on the device.
	slab []byte

	// freeBitmap tracks used/free slots. A set bit indicates a slot
	// holding page bytes.
	freeBitmap []uint64

	freeSlots  int
	totalSlots int
}

// NewDevice allocates a swap device with room for slotCount pages.
func NewDevice(slotCount int) *Device {
	return &Device{
		slab:       make([]byte, slotCount*mm.PageSize),
		freeBitmap: make([]uint64, (slotCount+63)>>6),
		freeSlots:  slotCount,
		totalSlots: slotCount,
	}
}

// WriteNewSlot reserves a free slot, copies one page of bytes into it and
// returns its index. ErrDeviceFull is returned when every slot is in use.
func (d *Device) WriteNewSlot(p []byte) (mm.SwapSlot, *kernel.Error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.freeSlots == 0 {
		return mm.InvalidSwapSlot, ErrDeviceFull
	}

	for blockIndex, block := range d.freeBitmap {
		if block == ^uint64(0) {
			continue
		}

		bitIndex := bits.TrailingZeros64(^block)
		slot := mm.SwapSlot(blockIndex<<6 + bitIndex)
		if int(slot) >= d.totalSlots {
			break
		}

		d.freeBitmap[blockIndex] |= 1 << uint(bitIndex)
		d.freeSlots--
		copy(d.slotBytes(slot), p)
		return slot, nil
	}

	return mm.InvalidSwapSlot, ErrDeviceFull
}

// ReadSlot copies the contents of an allocated slot into dst. Reading a slot
// that is not allocated indicates a stale descriptor and fails.
func (d *Device) ReadSlot(slot mm.SwapSlot, dst []byte) *kernel.Error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.allocated(slot) {
		return errSlotNotAllocated
	}

	copy(dst, d.slotBytes(slot))
	return nil
}

// ReleaseSlot returns a slot to the device. Releasing a slot that is already
// free has no effect.
func (d *Device) ReleaseSlot(slot mm.SwapSlot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.allocated(slot) {
		return
	}

	d.freeBitmap[int(slot)>>6] &^= 1 << uint(slot&63)
	d.freeSlots++
}

// FreeSlots returns the number of slots that are currently available.
func (d *Device) FreeSlots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freeSlots
}

func (d *Device) allocated(slot mm.SwapSlot) bool {
	// Unsigned comparison so mm.InvalidSwapSlot lands in the out of
	// range case rather than producing a negative bitmap index.
	if slot >= mm.SwapSlot(d.totalSlots) {
		return false
	}
	return d.freeBitmap[int(slot)>>6]&(1<<uint(slot&63)) != 0
}

func (d *Device) slotBytes(slot mm.SwapSlot) []byte {
	offset := int(slot) * mm.PageSize
	return d.slab[offset : offset+mm.PageSize : offset+mm.PageSize]
}
