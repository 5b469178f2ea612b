// Package pmm implements the bounded pool of physical memory frames that
// backs user pages. Frames are tracked with a free bitmap; each bitmap bit i
// corresponds to frame i in the pool's backing slab.
package pmm

import (
	"math/bits"
	"sync"

	"github.com/TranNgocDuy3692/pintos/kernel"
	"github.com/TranNgocDuy3692/pintos/kernel/mm"
)

var (
	errFrameNotAllocated = &kernel.Error{Module: "pmm", Message: "attempt to release a frame that is not allocated"}
	errFrameOutOfRange   = &kernel.Error{Module: "pmm", Message: "frame index exceeds the pool size"}
)

// Pool is a bounded physical frame allocator. The pool hands out frame
// indices into a fixed backing slab and signals exhaustion by returning
// mm.InvalidFrame.
type Pool struct {
	mu sync.Mutex

	// slab holds the backing bytes for every frame in the pool.
	slab []byte

	// freeBitmap tracks used/free frames in the pool. A set bit
	// indicates a reserved frame.
	freeBitmap []uint64

	// freeCount tracks the available frames so that exhaustion can be
	// detected without scanning the bitmap.
	freeCount int

	totalFrames int
}

// NewPool allocates a pool backed by frameCount frames.
func NewPool(frameCount int) *Pool {
	return &Pool{
		slab:        make([]byte, frameCount*mm.PageSize),
		freeBitmap:  make([]uint64, (frameCount+63)>>6),
		freeCount:   frameCount,
		totalFrames: frameCount,
	}
}

// Request reserves the next free frame in the pool, optionally zero-filling
// its contents, and returns mm.InvalidFrame when the pool is exhausted.
func (p *Pool) Request(zero bool) mm.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeCount == 0 {
		return mm.InvalidFrame
	}

	for blockIndex, block := range p.freeBitmap {
		if block == ^uint64(0) {
			continue
		}

		bitIndex := bits.TrailingZeros64(^block)
		frame := mm.Frame(blockIndex<<6 + bitIndex)
		if int(frame) >= p.totalFrames {
			break
		}

		p.freeBitmap[blockIndex] |= 1 << uint(bitIndex)
		p.freeCount--

		if zero {
			buf := p.frameBytes(frame)
			for i := range buf {
				buf[i] = 0
			}
		}

		return frame
	}

	return mm.InvalidFrame
}

// Release returns a reserved frame to the pool. Releasing a frame that is
// not currently reserved indicates corrupted allocator state and panics.
func (p *Pool) Release(frame mm.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Unsigned comparison so mm.InvalidFrame lands in the out of range
	// case rather than producing a negative bitmap index.
	if frame >= mm.Frame(p.totalFrames) {
		panic(errFrameOutOfRange)
	}

	blockIndex, mask := int(frame)>>6, uint64(1)<<uint(frame&63)
	if p.freeBitmap[blockIndex]&mask == 0 {
		panic(errFrameNotAllocated)
	}

	p.freeBitmap[blockIndex] &^= mask
	p.freeCount++
}

// Bytes returns the PageSize-byte window that backs the given frame. This is
// the equivalent of the frame's kernel virtual address.
func (p *Pool) Bytes(frame mm.Frame) []byte {
	return p.frameBytes(frame)
}

func (p *Pool) frameBytes(frame mm.Frame) []byte {
	offset := int(frame) * mm.PageSize
	return p.slab[offset : offset+mm.PageSize : offset+mm.PageSize]
}

// FreeCount returns the number of frames that are currently available.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeCount
}
