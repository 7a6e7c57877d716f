// Package block defines the abstract block-device interface shared by
// every storage backend in the kernel (ATA-PIO, the ramdisk, and any
// partition view layered over either), plus an offset wrapper that exposes
// a single partition as its own zero-based device.
package block

import "github.com/dmorton63/qaiosplus-sub000/kernel/status"

// Device is the minimal contract a block device must satisfy to be
// mounted by the sector cache, the VFS, or the volume manager: a fixed
// sector size, a sector count, and sector-granular read/write.
type Device interface {
	SectorSize() int
	SectorCount() uint64

	ReadSector(lba uint64, buf []byte) status.Status
	WriteSector(lba uint64, buf []byte) status.Status

	ReadSectors(lba uint64, n int, buf []byte) status.Status
	WriteSectors(lba uint64, n int, buf []byte) status.Status
}

// ReadSectors and WriteSectors default implementations for a device that
// only natively knows how to do one sector at a time (MemoryDevice wraps
// itself in Single this way). Embed Single in a device to get these for
// free.
type Single struct {
	Self Device
}

func (s Single) ReadSectors(lba uint64, n int, buf []byte) status.Status {
	size := s.Self.SectorSize()

	for i := 0; i < n; i++ {
		off := i * size
		if st := s.Self.ReadSector(lba+uint64(i), buf[off:off+size]); st != status.Success {
			return st
		}
	}

	return status.Success
}

func (s Single) WriteSectors(lba uint64, n int, buf []byte) status.Status {
	size := s.Self.SectorSize()

	for i := 0; i < n; i++ {
		off := i * size
		if st := s.Self.WriteSector(lba+uint64(i), buf[off:off+size]); st != status.Success {
			return st
		}
	}

	return status.Success
}
