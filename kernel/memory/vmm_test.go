package memory_test

import (
	"testing"
	"unsafe"

	"github.com/dmorton63/qaiosplus-sub000/kernel/memory"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/stretchr/testify/require"
)

// newTestVMM backs "physical memory" with an ordinary Go byte slice and
// treats its address as the HHDM base, so physical address 0 in the PMM
// corresponds to the first byte of backing. This exercises the page-table
// walking logic on the host without any real MMU.
func newTestVMM(t *testing.T, frames int) *memory.VMM {
	t.Helper()

	backing := make([]byte, frames*memory.FrameSize)
	hhdm := uint64(uintptr(unsafe.Pointer(&backing[0])))

	pmm := &memory.PMM{}
	pmm.Init([]memory.Region{{Base: 0, Size: uint64(len(backing)), Kind: memory.Available}})

	return &memory.VMM{PMM: pmm, HHDM: hhdm}
}

func TestVMMMapTranslateUnmap(t *testing.T) {
	v := newTestVMM(t, 64)

	pml4, s := v.NewAddressSpace()
	require.Equal(t, status.Success, s)

	const virt = uint64(0x400000)
	phys, s := v.PMM.Alloc()
	require.Equal(t, status.Success, s)

	require.Equal(t, status.Success, v.Map(pml4, virt, phys, memory.Writable))

	got, s := v.Translate(pml4, virt+0x123)
	require.Equal(t, status.Success, s)
	require.Equal(t, phys+0x123, got)

	require.Equal(t, status.Success, v.Unmap(pml4, virt))

	_, s = v.Translate(pml4, virt)
	require.Equal(t, status.NotFound, s)
}

func TestVMMUnmapOfUnmappedIsNotFound(t *testing.T) {
	v := newTestVMM(t, 64)

	pml4, _ := v.NewAddressSpace()

	require.Equal(t, status.NotFound, v.Unmap(pml4, 0x800000))
}

func TestVMMMapRangeRollsBackOnFailure(t *testing.T) {
	v := newTestVMM(t, 16)

	pml4, _ := v.NewAddressSpace()

	// exhaust the pool so the range mapping's intermediate-table
	// allocation eventually fails partway through
	var drained []uint64
	for {
		addr, s := v.PMM.Alloc()
		if s != status.Success {
			break
		}
		drained = append(drained, addr)
	}

	for _, a := range drained {
		v.PMM.Free(a)
	}

	// Re-allocate almost all frames, leaving only one so intermediate
	// table allocation for a multi-page MapRange fails.
	for i := 0; i < len(drained)-1; i++ {
		v.PMM.Alloc()
	}

	s := v.MapRange(pml4, 0x1000000, 0, 4, memory.Writable)
	require.NotEqual(t, status.Success, s)

	for i := 0; i < 4; i++ {
		_, s := v.Translate(pml4, 0x1000000+uint64(i)*memory.FrameSize)
		require.Equal(t, status.NotFound, s, "MapRange must leave no partial mapping")
	}
}
