// Package ata implements a 28-bit LBA ATA-PIO block device over the legacy
// primary/secondary IDE command ports, using the classical register
// sequence: select drive, program sector count and LBA, issue command,
// poll status, transfer one sector of 256 words by string I/O.
package ata

import (
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

const (
	primaryBase    = 0x1F0
	primaryControl = 0x3F6

	regData     = 0
	regError    = 1
	regSecCount = 2
	regLBALow   = 3
	regLBAMid   = 4
	regLBAHigh  = 5
	regDrive    = 6
	regStatus   = 7
	regCommand  = 7

	statusERR = 1 << 0
	statusDRQ = 1 << 3
	statusSRV = 1 << 4
	statusDF  = 1 << 5
	statusRDY = 1 << 6
	statusBSY = 1 << 7

	cmdReadSectors  = 0x20
	cmdWriteSectors = 0x30
	cmdFlushCache   = 0xE7
	cmdIdentify     = 0xEC

	driveLBA = 0xE0

	sectorWords = 256

	// spinLimit bounds every busy-wait loop so a missing or wedged drive
	// reports Timeout instead of hanging the caller forever.
	spinLimit = 1_000_000
)

// Device is an ATA-PIO disk addressed with 28-bit LBA.
type Device struct {
	base    uint16
	control uint16
	slave   bool

	sectorCount uint64
}

// NewPrimaryMaster opens the primary channel's master drive and issues
// IDENTIFY DEVICE to learn its addressable sector count.
func NewPrimaryMaster() (*Device, status.Status) {
	return open(primaryBase, primaryControl, false)
}

// NewPrimarySlave opens the primary channel's slave drive.
func NewPrimarySlave() (*Device, status.Status) {
	return open(primaryBase, primaryControl, true)
}

func open(base, control uint16, slave bool) (*Device, status.Status) {
	d := &Device{base: base, control: control, slave: slave}

	var id [256]uint16
	if s := d.identify(&id); s != status.Success {
		return nil, s
	}

	// words 60-61 hold the 28-bit LBA total sector count.
	d.sectorCount = uint64(id[60]) | uint64(id[61])<<16

	return d, status.Success
}

func (d *Device) selectByte() uint8 {
	b := uint8(driveLBA)
	if d.slave {
		b |= 1 << 4
	}
	return b
}

func (d *Device) readStatus() uint8 {
	return reg.In8(d.base + regStatus)
}

// waitNotBusy spins until BSY clears, returning Timeout if it never does.
func (d *Device) waitNotBusy() status.Status {
	for i := 0; i < spinLimit; i++ {
		if d.readStatus()&statusBSY == 0 {
			return status.Success
		}
	}

	return status.Timeout
}

// waitDRQ spins until DRQ sets or ERR/DF sets, after BSY has cleared.
func (d *Device) waitDRQ() status.Status {
	for i := 0; i < spinLimit; i++ {
		s := d.readStatus()

		if s&(statusERR|statusDF) != 0 {
			return status.Error
		}

		if s&statusDRQ != 0 {
			return status.Success
		}
	}

	return status.Timeout
}

func (d *Device) identify(id *[256]uint16) status.Status {
	reg.Out8(d.base+regDrive, d.selectByte())
	reg.Out8(d.base+regSecCount, 0)
	reg.Out8(d.base+regLBALow, 0)
	reg.Out8(d.base+regLBAMid, 0)
	reg.Out8(d.base+regLBAHigh, 0)
	reg.Out8(d.base+regCommand, cmdIdentify)

	if d.readStatus() == 0 {
		return status.NotFound
	}

	if s := d.waitNotBusy(); s != status.Success {
		return s
	}

	if s := d.waitDRQ(); s != status.Success {
		return s
	}

	for i := 0; i < sectorWords; i++ {
		id[i] = reg.In16(d.base + regData)
	}

	return status.Success
}

func (d *Device) programLBA(lba uint32, count uint8) {
	reg.Out8(d.base+regDrive, d.selectByte()|uint8((lba>>24)&0x0F))
	reg.Out8(d.base+regSecCount, count)
	reg.Out8(d.base+regLBALow, uint8(lba))
	reg.Out8(d.base+regLBAMid, uint8(lba>>8))
	reg.Out8(d.base+regLBAHigh, uint8(lba>>16))
}

func (d *Device) SectorSize() int { return 512 }

func (d *Device) SectorCount() uint64 { return d.sectorCount }

func (d *Device) checkRange(lba uint64, n int) status.Status {
	if n <= 0 || lba+uint64(n) > d.sectorCount || lba > 0x0FFFFFFF {
		return status.InvalidParam
	}
	return status.Success
}

// ReadSector reads one 512-byte sector at lba into buf.
func (d *Device) ReadSector(lba uint64, buf []byte) status.Status {
	return d.ReadSectors(lba, 1, buf)
}

// ReadSectors reads n consecutive sectors starting at lba into buf, which
// must be at least n*512 bytes.
func (d *Device) ReadSectors(lba uint64, n int, buf []byte) status.Status {
	if s := d.checkRange(lba, n); s != status.Success {
		return s
	}

	if len(buf) < n*d.SectorSize() {
		return status.InvalidParam
	}

	d.programLBA(uint32(lba), uint8(n))
	reg.Out8(d.base+regCommand, cmdReadSectors)

	for sector := 0; sector < n; sector++ {
		if s := d.waitNotBusy(); s != status.Success {
			return s
		}

		if s := d.waitDRQ(); s != status.Success {
			return s
		}

		off := sector * d.SectorSize()
		for w := 0; w < sectorWords; w++ {
			word := reg.In16(d.base + regData)
			buf[off+2*w] = uint8(word)
			buf[off+2*w+1] = uint8(word >> 8)
		}
	}

	return status.Success
}

// WriteSector writes one 512-byte sector at lba from buf.
func (d *Device) WriteSector(lba uint64, buf []byte) status.Status {
	return d.WriteSectors(lba, 1, buf)
}

// WriteSectors writes n consecutive sectors starting at lba from buf.
// Status is read between each sector's transfer; an error aborts the
// remaining sectors.
func (d *Device) WriteSectors(lba uint64, n int, buf []byte) status.Status {
	if s := d.checkRange(lba, n); s != status.Success {
		return s
	}

	if len(buf) < n*d.SectorSize() {
		return status.InvalidParam
	}

	d.programLBA(uint32(lba), uint8(n))
	reg.Out8(d.base+regCommand, cmdWriteSectors)

	for sector := 0; sector < n; sector++ {
		if s := d.waitNotBusy(); s != status.Success {
			return s
		}

		if s := d.waitDRQ(); s != status.Success {
			return s
		}

		off := sector * d.SectorSize()
		for w := 0; w < sectorWords; w++ {
			word := uint16(buf[off+2*w]) | uint16(buf[off+2*w+1])<<8
			reg.Out16(d.base+regData, word)
		}

		st := d.readStatus()
		if st&(statusERR|statusDF) != 0 {
			return status.Error
		}
	}

	reg.Out8(d.base+regCommand, cmdFlushCache)
	return d.waitNotBusy()
}
