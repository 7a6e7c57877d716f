package boot

import (
	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/block/ata"
	"github.com/dmorton63/qaiosplus-sub000/kernel/klog"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/volume"
)

// Classic MBR layout (one 512-byte sector): four 16-byte partition entries
// starting at offset 0x1BE, each holding a type byte at offset 4 and a
// little-endian starting LBA and sector count at offsets 8 and 12, and the
// 0x55AA boot signature at offset 510.
const (
	mbrPartitionTableOffset = 0x1BE
	mbrPartitionEntrySize   = 16
	mbrPartitionCount       = 4
	mbrSignatureOffset      = 510

	mbrTypeOffset  = 4
	mbrLBAOffset   = 8
	mbrCountOffset = 12
)

// fatPartitionTypes lists the MBR partition type bytes this kernel treats
// as FAT: FAT12, FAT16 (two encodings), FAT16 LBA, and FAT32 (CHS and LBA).
var fatPartitionTypes = map[byte]bool{
	0x01: true, 0x04: true, 0x06: true, 0x0E: true,
	0x0B: true, 0x0C: true,
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// firstFATPartition scans the four MBR entries in sector 0 and returns the
// start LBA and sector count of the first one carrying a FAT type byte.
func firstFATPartition(sector []byte) (startLBA, count uint64, ok bool) {
	if len(sector) < 512 || sector[mbrSignatureOffset] != 0x55 || sector[mbrSignatureOffset+1] != 0xAA {
		return 0, 0, false
	}

	for i := 0; i < mbrPartitionCount; i++ {
		entry := sector[mbrPartitionTableOffset+i*mbrPartitionEntrySize:]

		partType := entry[mbrTypeOffset]
		if partType == 0 || !fatPartitionTypes[partType] {
			continue
		}

		lba := le32(entry[mbrLBAOffset:])
		sectors := le32(entry[mbrCountOffset:])
		if sectors == 0 {
			continue
		}

		return uint64(lba), uint64(sectors), true
	}

	return 0, 0, false
}

// probeSharedIDEVolume implements the legacy IDE shared volume: the
// primary master drive's MBR is read, its first FAT-typed partition is
// exposed as a zero-based offset device, and mounted read-write as
// QFS_SHARED at /shared. Any failure along the way is non-fatal to boot.
func probeSharedIDEVolume(k *Kernel) status.Status {
	dev, s := ata.NewPrimaryMaster()
	if s != status.Success {
		return s
	}

	sector := make([]byte, dev.SectorSize())
	if s := dev.ReadSector(0, sector); s != status.Success {
		return s
	}

	startLBA, count, ok := firstFATPartition(sector)
	if !ok {
		return status.NotFound
	}

	view, s := block.NewOffsetDevice(dev, startLBA, count)
	if s != status.Success {
		return s
	}

	if s := k.Volumes.Register("QFS_SHARED", "/shared", volume.FATAuto, view, true); s != status.Success {
		return s
	}

	klog.Infof("boot: mounted legacy IDE shared volume at /shared (lba=%d count=%d)", startLBA, count)
	return status.Success
}
