package memory

import (
	"unsafe"

	"github.com/dmorton63/qaiosplus-sub000/kernel/klog"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// heapAlign is the allocation granularity (component design §4.3: "rounded
// up to 16-byte alignment").
const heapAlign = 16

// blockHeader prefixes every block in the heap's doubly linked list,
// whether free or in use.
type blockHeader struct {
	size uint64 // payload size, excluding this header
	used bool
	prev *blockHeader
	next *blockHeader
}

const headerSize = unsafe.Sizeof(blockHeader{})

// Heap is a single free-list allocator over one contiguous virtual range,
// matching the component design's "initial static region must be large
// enough" constraint (no expansion in this core).
type Heap struct {
	start *blockHeader
	end   uintptr
}

// Init carves a single free block spanning the given byte range.
func (h *Heap) Init(base uintptr, size uintptr) {
	h.start = (*blockHeader)(unsafe.Pointer(base))
	*h.start = blockHeader{size: uint64(size - headerSize)}
	h.end = base + size
}

func roundUp(n uintptr) uintptr {
	return (n + heapAlign - 1) &^ (heapAlign - 1)
}

func (b *blockHeader) payload() uintptr {
	return uintptr(unsafe.Pointer(b)) + headerSize
}

func blockAt(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

// Alloc finds the first free block large enough for size bytes (rounded up
// to 16-byte alignment). If the block has at least size+header+16 bytes to
// spare it is split, leaving the remainder as a new free block (component
// design §4.3). Returns 0 with OutOfMemory if no block fits.
func (h *Heap) Alloc(size uintptr) (uintptr, status.Status) {
	size = roundUp(size)

	for b := h.start; b != nil; b = b.next {
		if b.used || uintptr(b.size) < size {
			continue
		}

		if uintptr(b.size) >= size+headerSize+heapAlign {
			h.split(b, size)
		}

		b.used = true
		return b.payload(), status.Success
	}

	klog.Errorf("heap: allocation of %d bytes failed", size)
	return 0, status.OutOfMemory
}

func (h *Heap) split(b *blockHeader, size uintptr) {
	remainder := uintptr(b.size) - size - headerSize

	newAddr := b.payload() + size
	newBlock := blockAt(newAddr)
	*newBlock = blockHeader{
		size: uint64(remainder),
		prev: b,
		next: b.next,
	}

	if b.next != nil {
		b.next.prev = newBlock
	}

	b.next = newBlock
	b.size = uint64(size)
}

// Free marks the block at addr unused and coalesces it with both
// neighbours if they are also free. A double-free (the used flag already
// false) is detected and logged without corrupting the list.
func (h *Heap) Free(addr uintptr) status.Status {
	b := blockAt(addr - headerSize)

	if !b.used {
		klog.Errorf("heap: double free at %#x", addr)
		return status.InvalidParam
	}

	b.used = false

	if b.next != nil && !b.next.used {
		h.coalesce(b, b.next)
	}

	if b.prev != nil && !b.prev.used {
		h.coalesce(b.prev, b)
	}

	return status.Success
}

// coalesce merges the next block's payload (and its header) into prev.
func (h *Heap) coalesce(prev, next *blockHeader) {
	prev.size += uint64(headerSize) + next.size
	prev.next = next.next

	if next.next != nil {
		next.next.prev = prev
	}
}

// Realloc returns addr unchanged if newSize already fits in the existing
// block; otherwise it allocates a new block, copies min(oldSize, newSize)
// bytes, and frees the old block.
func (h *Heap) Realloc(addr uintptr, newSize uintptr) (uintptr, status.Status) {
	b := blockAt(addr - headerSize)

	newSize = roundUp(newSize)
	if uintptr(b.size) >= newSize {
		return addr, status.Success
	}

	newAddr, s := h.Alloc(newSize)
	if s != status.Success {
		return 0, s
	}

	oldSize := uintptr(b.size)
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), oldSize)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(newAddr)), oldSize)
	copy(dst, src)

	h.Free(addr)

	return newAddr, status.Success
}

// Extent returns the total bytes spanned by the heap's backing region,
// header and payload bytes of every block included (used by property tests
// to check the block-accounting invariant).
func (h *Heap) Extent() uintptr {
	return h.end - uintptr(unsafe.Pointer(h.start))
}

// sumBlocks walks the list summing header+payload size of every block; used
// by tests to assert the invariant that it always equals Extent().
func (h *Heap) sumBlocks() uintptr {
	var total uintptr
	for b := h.start; b != nil; b = b.next {
		total += headerSize + uintptr(b.size)
	}
	return total
}
