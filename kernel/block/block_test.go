package block_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/stretchr/testify/require"
)

func newFilledDevice(t *testing.T, sectors int) *block.MemoryDevice {
	t.Helper()

	const sectorSize = 512
	data := make([]byte, sectors*sectorSize)
	for i := range data {
		data[i] = byte(i)
	}

	return block.NewMemoryDevice(data, sectorSize)
}

func TestMemoryDeviceReadWriteRoundTrip(t *testing.T) {
	d := newFilledDevice(t, 4)

	buf := make([]byte, 512)
	require.Equal(t, status.Success, d.ReadSector(2, buf))

	patched := make([]byte, 512)
	copy(patched, buf)
	patched[0] = 0xAA

	require.Equal(t, status.Success, d.WriteSector(2, patched))

	readBack := make([]byte, 512)
	require.Equal(t, status.Success, d.ReadSector(2, readBack))
	require.Equal(t, patched, readBack)
}

func TestMemoryDeviceOutOfRangeIsInvalidParam(t *testing.T) {
	d := newFilledDevice(t, 2)

	buf := make([]byte, 512)
	require.Equal(t, status.InvalidParam, d.ReadSector(2, buf))
}

func TestReadSectorsMultiSector(t *testing.T) {
	d := newFilledDevice(t, 4)

	buf := make([]byte, 512*3)
	require.Equal(t, status.Success, d.ReadSectors(1, 3, buf))

	single := make([]byte, 512)
	d.ReadSector(1, single)
	require.Equal(t, single, buf[:512])
}

func TestOffsetDeviceTranslatesLBA(t *testing.T) {
	d := newFilledDevice(t, 10)

	ov, s := block.NewOffsetDevice(d, 4, 4)
	require.Equal(t, status.Success, s)
	require.Equal(t, uint64(4), ov.SectorCount())

	viaOffset := make([]byte, 512)
	require.Equal(t, status.Success, ov.ReadSector(1, viaOffset))

	direct := make([]byte, 512)
	require.Equal(t, status.Success, d.ReadSector(5, direct))

	require.Equal(t, direct, viaOffset)
}

func TestOffsetDeviceRejectsOutOfRange(t *testing.T) {
	d := newFilledDevice(t, 10)

	ov, s := block.NewOffsetDevice(d, 4, 4)
	require.Equal(t, status.Success, s)

	buf := make([]byte, 512)
	require.Equal(t, status.InvalidParam, ov.ReadSector(4, buf))
}

func TestNewOffsetDeviceRejectsOverrun(t *testing.T) {
	d := newFilledDevice(t, 4)

	_, s := block.NewOffsetDevice(d, 2, 4)
	require.Equal(t, status.InvalidParam, s)
}
