// Package memory implements the kernel's memory core: the physical frame
// bitmap allocator, the four-level virtual memory manager, and the
// freestanding heap. It is grounded on the bump/first-fit allocator idiom
// the teacher uses for DMA buffers (dma.Region) but reworked into a bitmap
// allocator over fixed 4 KiB frames, per the memory core data model.
package memory

import (
	"sync"

	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// FrameSize is the fixed physical frame size this allocator manages.
const FrameSize = 4096

// RegionKind classifies a memory region reported by the boot protocol.
type RegionKind int

const (
	Available RegionKind = iota
	Reserved
	ACPIReclaimable
	ACPINVS
	Bad
	Kernel
	BootloaderReclaimable
)

// Region describes one entry of the boot-time physical memory map.
type Region struct {
	Base uint64
	Size uint64
	Kind RegionKind
}

// PMM is the physical frame allocator: a bitmap indexed by frame number,
// one bit per FrameSize-sized frame, covering [0, highestAddress).
//
// Invariants (component design §4.1): the bitmap size matches the highest
// usable address; freeing a frame flips exactly one bit; an allocation of N
// contiguous frames succeeds only when a run of N clear bits exists.
type PMM struct {
	mu sync.Mutex

	bitmap    []byte
	numFrames uint64
	free      uint64
	total     uint64
}

// frameIndex and bit helpers.
func frameBit(bitmap []byte, i uint64) bool {
	return bitmap[i/8]&(1<<(i%8)) != 0
}

func setFrameBit(bitmap []byte, i uint64) {
	bitmap[i/8] |= 1 << (i % 8)
}

func clearFrameBit(bitmap []byte, i uint64) {
	bitmap[i/8] &^= 1 << (i % 8)
}

// Init builds the bitmap sized to the highest address referenced by any
// region, marks every frame allocated, then clears the frames backed by
// Available regions, incrementing the free counter as each bit flips
// (component design §4.1).
func (p *PMM) Init(regions []Region) {
	var highest uint64

	for _, r := range regions {
		if end := r.Base + r.Size; end > highest {
			highest = end
		}
	}

	p.numFrames = (highest + FrameSize - 1) / FrameSize
	p.bitmap = make([]byte, (p.numFrames+7)/8)

	for i := range p.bitmap {
		p.bitmap[i] = 0xff
	}

	p.free = 0
	p.total = p.numFrames

	for _, r := range regions {
		if r.Kind != Available {
			continue
		}

		start := r.Base / FrameSize
		end := (r.Base + r.Size) / FrameSize

		for i := start; i < end && i < p.numFrames; i++ {
			if frameBit(p.bitmap, i) {
				clearFrameBit(p.bitmap, i)
				p.free++
			}
		}
	}
}

// TotalFrames returns the number of frames tracked by the bitmap.
func (p *PMM) TotalFrames() uint64 {
	return p.total
}

// FreeFrames returns the number of currently unallocated frames.
func (p *PMM) FreeFrames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}

// Alloc finds the first clear bit, sets it, and returns the frame's
// physical base address. Returns (0, OutOfMemory) on failure; callers
// treat the zero physical address as the out-of-memory sentinel.
func (p *PMM) Alloc() (uint64, status.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := uint64(0); i < p.numFrames; i++ {
		if !frameBit(p.bitmap, i) {
			setFrameBit(p.bitmap, i)
			p.free--
			return i * FrameSize, status.Success
		}
	}

	return 0, status.OutOfMemory
}

// AllocContiguous scans for the first run of n clear bits, marks them all
// allocated, and returns the base address of the run. Bits are only set
// once a complete run has been found, so a request that cannot be
// satisfied leaves the bitmap unchanged.
func (p *PMM) AllocContiguous(n int) (uint64, status.Status) {
	if n <= 0 {
		return 0, status.InvalidParam
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	need := uint64(n)

	var i uint64
	for i = 0; i+need <= p.numFrames; i++ {
		if frameBit(p.bitmap, i) {
			continue
		}

		run := uint64(0)
		for run < need && !frameBit(p.bitmap, i+run) {
			run++
		}

		if run == need {
			for j := uint64(0); j < need; j++ {
				setFrameBit(p.bitmap, i+j)
			}
			p.free -= need
			return i * FrameSize, status.Success
		}

		// No rollback needed: the scan only ever marks bits after
		// confirming the full run is clear, so nothing was touched.
		i += run
	}

	return 0, status.OutOfMemory
}

// Free clears the bit for the frame at the given physical address,
// adjusting the free counter. Freeing an address that is not frame-aligned
// or out of range is a no-op reported as InvalidParam.
func (p *PMM) Free(addr uint64) status.Status {
	if addr%FrameSize != 0 {
		return status.InvalidParam
	}

	i := addr / FrameSize

	p.mu.Lock()
	defer p.mu.Unlock()

	if i >= p.numFrames {
		return status.InvalidParam
	}

	if frameBit(p.bitmap, i) {
		clearFrameBit(p.bitmap, i)
		p.free++
	}

	return status.Success
}

// FreeContiguous frees n frames starting at addr.
func (p *PMM) FreeContiguous(addr uint64, n int) status.Status {
	for i := 0; i < n; i++ {
		if s := p.Free(addr + uint64(i)*FrameSize); s != status.Success {
			return s
		}
	}

	return status.Success
}
