package memory_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/memory"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/stretchr/testify/require"
)

func newTestPMM(t *testing.T) (*memory.PMM, uint64) {
	t.Helper()

	pmm := &memory.PMM{}
	regions := []memory.Region{
		{Base: 0, Size: 1 << 20, Kind: memory.Reserved},
		{Base: 1 << 20, Size: 15 << 20, Kind: memory.Available},
	}
	pmm.Init(regions)

	return pmm, pmm.FreeFrames()
}

func TestPMMAllocFreeRoundTrip(t *testing.T) {
	pmm, initialFree := newTestPMM(t)

	const n = 64
	addrs := make([]uint64, n)
	seen := make(map[uint64]bool)

	for i := range addrs {
		addr, s := pmm.Alloc()
		require.Equal(t, status.Success, s)
		require.False(t, seen[addr], "duplicate frame returned")
		seen[addr] = true
		addrs[i] = addr
	}

	require.Equal(t, initialFree-n, pmm.FreeFrames())

	for _, addr := range addrs {
		require.Equal(t, status.Success, pmm.Free(addr))
	}

	require.Equal(t, initialFree, pmm.FreeFrames())
}

func TestPMMContiguousDoesNotOverlap(t *testing.T) {
	pmm, _ := newTestPMM(t)

	a, s := pmm.AllocContiguous(8)
	require.Equal(t, status.Success, s)

	b, s := pmm.AllocContiguous(8)
	require.Equal(t, status.Success, s)

	// ranges [a, a+8*FrameSize) and [b, b+8*FrameSize) must be disjoint
	aEnd := a + 8*memory.FrameSize
	bEnd := b + 8*memory.FrameSize
	require.True(t, aEnd <= b || bEnd <= a)
}

func TestPMMOutOfMemory(t *testing.T) {
	pmm, initialFree := newTestPMM(t)

	_, s := pmm.AllocContiguous(int(initialFree) + 1)
	require.Equal(t, status.OutOfMemory, s)

	// failed contiguous allocation must not have marked any frame
	require.Equal(t, initialFree, pmm.FreeFrames())
}

func TestPMMBitCountInvariant(t *testing.T) {
	pmm, initialFree := newTestPMM(t)

	var allocated []uint64
	for i := 0; i < 10; i++ {
		addr, s := pmm.Alloc()
		require.Equal(t, status.Success, s)
		allocated = append(allocated, addr)
	}

	require.Equal(t, pmm.TotalFrames()-pmm.FreeFrames(), pmm.TotalFrames()-initialFree+uint64(len(allocated)))

	for _, addr := range allocated[:5] {
		require.Equal(t, status.Success, pmm.Free(addr))
	}

	require.Equal(t, initialFree-5, pmm.FreeFrames())
}
