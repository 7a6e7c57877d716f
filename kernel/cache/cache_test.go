package cache_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/cache"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/stretchr/testify/require"
)

const sectorSize = 512

func newDevice(t *testing.T, sectors int) *block.MemoryDevice {
	t.Helper()
	return block.NewMemoryDevice(make([]byte, sectors*sectorSize), sectorSize)
}

func sectorBuf(b byte) []byte {
	buf := make([]byte, sectorSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestReadMissThenHit(t *testing.T) {
	dev := newDevice(t, 4)
	dev.WriteSector(1, sectorBuf(0x42))

	c := cache.New(dev, 2*sectorSize)

	buf := make([]byte, sectorSize)
	require.Equal(t, status.Success, c.ReadSector(1, buf))
	require.Equal(t, sectorBuf(0x42), buf)

	// corrupt the device directly; a cache hit must not see it
	dev.WriteSector(1, sectorBuf(0xFF))

	buf2 := make([]byte, sectorSize)
	require.Equal(t, status.Success, c.ReadSector(1, buf2))
	require.Equal(t, sectorBuf(0x42), buf2)
}

func TestWriteThenFlushReachesDevice(t *testing.T) {
	dev := newDevice(t, 4)
	c := cache.New(dev, 2*sectorSize)

	require.Equal(t, status.Success, c.WriteSector(0, sectorBuf(0x7A)))
	require.Equal(t, status.Success, c.Flush())

	onDisk := make([]byte, sectorSize)
	dev.ReadSector(0, onDisk)
	require.Equal(t, sectorBuf(0x7A), onDisk)
}

func TestDirtyEvictionWritesBackBeforeReplacing(t *testing.T) {
	dev := newDevice(t, 8)
	c := cache.New(dev, 2*sectorSize) // capacity 2 entries

	require.Equal(t, status.Success, c.WriteSector(0, sectorBuf(1)))
	require.Equal(t, status.Success, c.WriteSector(1, sectorBuf(2)))

	// touch sector 0 so sector 1 becomes the LRU tail, then bring in a
	// third sector, forcing eviction of sector 1 (dirty).
	buf := make([]byte, sectorSize)
	c.ReadSector(0, buf)
	require.Equal(t, status.Success, c.WriteSector(2, sectorBuf(3)))

	onDisk := make([]byte, sectorSize)
	dev.ReadSector(1, onDisk)
	require.Equal(t, sectorBuf(2), onDisk, "dirty tail must be written back on eviction")
}

func TestEvictedSectorReloadsCorrectlyNotStaleHashEntry(t *testing.T) {
	dev := newDevice(t, 8)
	c := cache.New(dev, 2*sectorSize)

	require.Equal(t, status.Success, c.WriteSector(0, sectorBuf(1)))
	require.Equal(t, status.Success, c.WriteSector(1, sectorBuf(2)))

	// evict sector 0 (LRU tail) by loading sector 2
	require.Equal(t, status.Success, c.WriteSector(2, sectorBuf(3)))

	// sector 0 must now be a true miss, re-fetched from the device, not
	// confused with a stale hash-chain entry pointing at a reused slot
	dev.WriteSector(0, sectorBuf(0x99))

	buf := make([]byte, sectorSize)
	require.Equal(t, status.Success, c.ReadSector(0, buf))
	require.Equal(t, sectorBuf(0x99), buf)
}

func TestInvalidateDropsWithoutWriteback(t *testing.T) {
	dev := newDevice(t, 4)
	c := cache.New(dev, 2*sectorSize)

	c.WriteSector(0, sectorBuf(5))
	c.Invalidate()

	onDisk := make([]byte, sectorSize)
	dev.ReadSector(0, onDisk)
	require.Equal(t, sectorBuf(0), onDisk, "invalidate must not write back")

	buf := make([]byte, sectorSize)
	require.Equal(t, status.Success, c.ReadSector(0, buf))
	require.Equal(t, sectorBuf(0), buf)
}
