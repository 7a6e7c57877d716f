package block

import "github.com/dmorton63/qaiosplus-sub000/kernel/status"

// OffsetDevice wraps a Device to expose a partition-local LBA range
// [startLBA, startLBA+count) of the underlying device as its own
// zero-based device.
type OffsetDevice struct {
	base     Device
	startLBA uint64
	count    uint64
}

// NewOffsetDevice validates that [startLBA, startLBA+count) lies within
// base's extent before returning the view.
func NewOffsetDevice(base Device, startLBA, count uint64) (*OffsetDevice, status.Status) {
	if count == 0 || startLBA+count > base.SectorCount() {
		return nil, status.InvalidParam
	}

	return &OffsetDevice{base: base, startLBA: startLBA, count: count}, status.Success
}

func (o *OffsetDevice) SectorSize() int { return o.base.SectorSize() }

func (o *OffsetDevice) SectorCount() uint64 { return o.count }

func (o *OffsetDevice) translate(lba uint64, n int) (uint64, status.Status) {
	if uint64(n) > o.count || lba+uint64(n) > o.count {
		return 0, status.InvalidParam
	}

	return o.startLBA + lba, status.Success
}

func (o *OffsetDevice) ReadSector(lba uint64, buf []byte) status.Status {
	abs, s := o.translate(lba, 1)
	if s != status.Success {
		return s
	}

	return o.base.ReadSector(abs, buf)
}

func (o *OffsetDevice) WriteSector(lba uint64, buf []byte) status.Status {
	abs, s := o.translate(lba, 1)
	if s != status.Success {
		return s
	}

	return o.base.WriteSector(abs, buf)
}

func (o *OffsetDevice) ReadSectors(lba uint64, n int, buf []byte) status.Status {
	abs, s := o.translate(lba, n)
	if s != status.Success {
		return s
	}

	return o.base.ReadSectors(abs, n, buf)
}

func (o *OffsetDevice) WriteSectors(lba uint64, n int, buf []byte) status.Status {
	abs, s := o.translate(lba, n)
	if s != status.Success {
		return s
	}

	return o.base.WriteSectors(abs, n, buf)
}
