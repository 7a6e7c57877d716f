package memory

import (
	"unsafe"

	"github.com/dmorton63/qaiosplus-sub000/amd64"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// PageFlag is a bit in a page table entry (component design §3: "flag set
// {Present, Writable, User, WriteThrough, NoCache, Accessed, Dirty, Large,
// Global, NoExecute}").
type PageFlag uint64

const (
	Present      PageFlag = 1 << 0
	Writable     PageFlag = 1 << 1
	User         PageFlag = 1 << 2
	WriteThrough PageFlag = 1 << 3
	NoCache      PageFlag = 1 << 4
	Accessed     PageFlag = 1 << 5
	Dirty        PageFlag = 1 << 6
	Large        PageFlag = 1 << 7
	Global       PageFlag = 1 << 8
	NoExecute    PageFlag = 1 << 63

	addrMask = 0x000ffffffffff000
)

const entries = 512

// pageTable is the raw 512-entry, 8-byte-per-entry on-disk/in-memory shape
// shared by all four paging levels (PML4/PDPT/PD/PT).
type pageTable [entries]uint64

// VMM is the virtual memory manager: a four-level page table walker over
// physical frames handed out by a PMM. Physical frames are accessed through
// the bootloader's higher-half direct map (hhdm), since once paging is live
// the kernel cannot assume physical addresses are identity mapped.
type VMM struct {
	PMM  *PMM
	HHDM uint64

	kernelPML4 uint64 // physical address, template for the upper half
}

func (v *VMM) ptr(phys uint64) *pageTable {
	return (*pageTable)(unsafe.Pointer(uintptr(phys + v.HHDM)))
}

// indices splits a canonical virtual address into its four page-table
// indices plus the in-page byte offset.
func indices(virt uint64) (pml4, pdpt, pd, pt, off int) {
	return int((virt >> 39) & 0x1ff),
		int((virt >> 30) & 0x1ff),
		int((virt >> 21) & 0x1ff),
		int((virt >> 12) & 0x1ff),
		int(virt & 0xfff)
}

// NewAddressSpace allocates a fresh PML4 and copies the upper-half (kernel)
// entries from the running address space (component design §4.2). Indices
// 256..511 conventionally hold the kernel's half of a canonical 48-bit
// address space; the lower half is left empty for the new space's own
// mappings.
func (v *VMM) NewAddressSpace() (uint64, status.Status) {
	phys, s := v.PMM.Alloc()
	if s != status.Success {
		return 0, s
	}

	table := v.ptr(phys)
	for i := range table {
		table[i] = 0
	}

	if v.kernelPML4 != 0 {
		kernel := v.ptr(v.kernelPML4)
		for i := 256; i < entries; i++ {
			table[i] = kernel[i]
		}
	}

	return phys, status.Success
}

// SetKernelTemplate records the PML4 whose upper half is copied into every
// subsequently created address space. It does not load CR3; switching
// address spaces is done by SwitchTo.
func (v *VMM) SetKernelTemplate(pml4 uint64) {
	v.kernelPML4 = pml4
}

// walk descends from pml4Phys to the leaf PT entry for virt, allocating
// intermediate tables as needed when create is true. It returns the PT
// table and the leaf index, or NotFound if an intermediate table is absent
// and create is false.
func (v *VMM) walk(pml4Phys, virt uint64, create bool) (*pageTable, int, status.Status) {
	i4, i3, i2, i1, _ := indices(virt)

	pml4 := v.ptr(pml4Phys)

	next := func(table *pageTable, idx int) (*pageTable, status.Status) {
		entry := table[idx]

		if entry&uint64(Present) == 0 {
			if !create {
				return nil, status.NotFound
			}

			frame, s := v.PMM.Alloc()
			if s != status.Success {
				return nil, s
			}

			child := v.ptr(frame)
			for i := range child {
				child[i] = 0
			}

			table[idx] = frame | uint64(Present|Writable)
			return child, status.Success
		}

		return v.ptr(entry & addrMask), status.Success
	}

	pdpt, s := next(pml4, i4)
	if s != status.Success {
		return nil, 0, s
	}

	pd, s := next(pdpt, i3)
	if s != status.Success {
		return nil, 0, s
	}

	pt, s := next(pd, i2)
	if s != status.Success {
		return nil, 0, s
	}

	return pt, i1, status.Success
}

// Map installs a mapping from virt to phys with the given flags, allocating
// any missing intermediate tables. Present is always implied.
func (v *VMM) Map(pml4Phys, virt, phys uint64, flags PageFlag) status.Status {
	pt, idx, s := v.walk(pml4Phys, virt, true)
	if s != status.Success {
		return s
	}

	pt[idx] = (phys & addrMask) | uint64(flags|Present)
	return status.Success
}

// Unmap clears the leaf PTE for virt and invalidates the TLB entry for
// exactly that page. Unmapping an address with no mapping is a no-op
// reported as NotFound.
func (v *VMM) Unmap(pml4Phys, virt uint64) status.Status {
	pt, idx, s := v.walk(pml4Phys, virt, false)
	if s != status.Success {
		return s
	}

	if pt[idx]&uint64(Present) == 0 {
		return status.NotFound
	}

	pt[idx] = 0
	amd64.InvalidatePage(uintptr(virt))

	return status.Success
}

// Translate walks the four levels and returns the physical address
// corresponding to virt (mapped physical page plus offset), or zero with
// NotFound if any level is absent.
func (v *VMM) Translate(pml4Phys, virt uint64) (uint64, status.Status) {
	pt, idx, s := v.walk(pml4Phys, virt, false)
	if s != status.Success {
		return 0, status.NotFound
	}

	entry := pt[idx]
	if entry&uint64(Present) == 0 {
		return 0, status.NotFound
	}

	_, _, _, _, off := indices(virt)
	return (entry & addrMask) | uint64(off), status.Success
}

// MapRange maps count consecutive pages starting at virt to consecutive
// physical frames starting at phys. On the first failure it rolls back
// every page mapped so far in this call, leaving no partial mapping
// (component design §4.2).
func (v *VMM) MapRange(pml4Phys, virt, phys uint64, count int, flags PageFlag) status.Status {
	for i := 0; i < count; i++ {
		off := uint64(i) * FrameSize

		if s := v.Map(pml4Phys, virt+off, phys+off, flags); s != status.Success {
			for j := 0; j < i; j++ {
				v.Unmap(pml4Phys, virt+uint64(j)*FrameSize)
			}

			return s
		}
	}

	return status.Success
}

// AllocateRange maps count pages starting at the caller-supplied virtual
// address start, allocating a physical frame for each one, and returns
// start. It keeps no virtual cursor of its own: choosing a free virtual
// range is left to the caller. On failure partway through, the pages
// mapped so far are unmapped and their physical frames freed.
func (v *VMM) AllocateRange(pml4Phys, start uint64, count int, flags PageFlag) (uint64, status.Status) {
	for i := 0; i < count; i++ {
		virt := start + uint64(i)*FrameSize

		frame, s := v.PMM.Alloc()
		if s != status.Success {
			for j := 0; j < i; j++ {
				pv := start + uint64(j)*FrameSize
				if phys, s := v.Translate(pml4Phys, pv); s == status.Success {
					v.PMM.Free(phys &^ 0xfff)
				}
				v.Unmap(pml4Phys, pv)
			}

			return 0, s
		}

		if s := v.Map(pml4Phys, virt, frame, flags); s != status.Success {
			v.PMM.Free(frame)

			for j := 0; j < i; j++ {
				pv := start + uint64(j)*FrameSize
				if phys, s := v.Translate(pml4Phys, pv); s == status.Success {
					v.PMM.Free(phys &^ 0xfff)
				}
				v.Unmap(pml4Phys, pv)
			}

			return 0, s
		}
	}

	return start, status.Success
}

// SwitchTo loads pml4Phys into CR3, activating that address space.
func (v *VMM) SwitchTo(pml4Phys uint64) {
	amd64.WriteCR3(pml4Phys)
}
