package block

import "github.com/dmorton63/qaiosplus-sub000/kernel/status"

// MemoryDevice is a RAM-backed Device, used for the boot ramdisk and in
// host tests of code layered above block.Device.
type MemoryDevice struct {
	sectorSize int
	data       []byte
}

// NewMemoryDevice wraps an existing byte slice as a Device with the given
// sector size; size must be a multiple of sectorSize.
func NewMemoryDevice(data []byte, sectorSize int) *MemoryDevice {
	return &MemoryDevice{sectorSize: sectorSize, data: data}
}

// RawBytes exposes the backing storage directly, for tests that need to
// assemble or inspect an on-disk image below the sector-oriented API.
func (m *MemoryDevice) RawBytes() []byte { return m.data }

func (m *MemoryDevice) SectorSize() int { return m.sectorSize }

func (m *MemoryDevice) SectorCount() uint64 {
	return uint64(len(m.data) / m.sectorSize)
}

func (m *MemoryDevice) ReadSector(lba uint64, buf []byte) status.Status {
	if lba >= m.SectorCount() || len(buf) < m.sectorSize {
		return status.InvalidParam
	}

	off := int(lba) * m.sectorSize
	copy(buf, m.data[off:off+m.sectorSize])

	return status.Success
}

func (m *MemoryDevice) WriteSector(lba uint64, buf []byte) status.Status {
	if lba >= m.SectorCount() || len(buf) < m.sectorSize {
		return status.InvalidParam
	}

	off := int(lba) * m.sectorSize
	copy(m.data[off:off+m.sectorSize], buf)

	return status.Success
}

func (m *MemoryDevice) ReadSectors(lba uint64, n int, buf []byte) status.Status {
	return Single{Self: m}.ReadSectors(lba, n, buf)
}

func (m *MemoryDevice) WriteSectors(lba uint64, n int, buf []byte) status.Status {
	return Single{Self: m}.WriteSectors(lba, n, buf)
}
