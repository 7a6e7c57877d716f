package fat

import (
	"encoding/binary"

	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// table provides FAT entry read/write on top of the cache/device, with a
// single sector-sized scratch buffer reused across calls.
type table struct {
	dev    block.Device
	layout Layout
	buf    []byte
	loaded int // sector currently held in buf, -1 if none
}

func newTable(dev block.Device, layout Layout) *table {
	return &table{dev: dev, layout: layout, buf: make([]byte, layout.SectorSize), loaded: -1}
}

func (t *table) entrySize() int {
	if t.layout.Kind == FAT16 {
		return 2
	}
	return 4
}

func (t *table) entryLocation(cluster int) (sector int, offset int) {
	byteOffset := cluster * t.entrySize()
	sector = t.layout.FatStart + byteOffset/t.layout.SectorSize
	offset = byteOffset % t.layout.SectorSize
	return
}

func (t *table) load(sector int) status.Status {
	if t.loaded == sector {
		return status.Success
	}

	if s := t.dev.ReadSector(uint64(sector), t.buf); s != status.Success {
		return s
	}

	t.loaded = sector
	return status.Success
}

// Get reads the FAT entry for cluster.
func (t *table) Get(cluster int) (uint32, status.Status) {
	sector, offset := t.entryLocation(cluster)
	if s := t.load(sector); s != status.Success {
		return 0, s
	}

	if t.layout.Kind == FAT16 {
		return uint32(binary.LittleEndian.Uint16(t.buf[offset:])), status.Success
	}

	return binary.LittleEndian.Uint32(t.buf[offset:]) & 0x0FFFFFFF, status.Success
}

// Set writes the FAT entry for cluster. FAT32 writes preserve the upper 4
// reserved bits; FAT16 writes replicate across every FAT copy.
func (t *table) Set(cluster int, value uint32) status.Status {
	sector, offset := t.entryLocation(cluster)
	if s := t.load(sector); s != status.Success {
		return s
	}

	if t.layout.Kind == FAT16 {
		binary.LittleEndian.PutUint16(t.buf[offset:], uint16(value))
	} else {
		existing := binary.LittleEndian.Uint32(t.buf[offset:])
		merged := (existing & 0xF0000000) | (value & 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(t.buf[offset:], merged)
	}

	if s := t.dev.WriteSector(uint64(sector), t.buf); s != status.Success {
		return s
	}

	if t.layout.Kind == FAT16 {
		for i := 1; i < t.layout.NumFATs; i++ {
			mirror := sector + i*t.layout.SectorsPerFat
			if s := t.dev.WriteSector(uint64(mirror), t.buf); s != status.Success {
				return s
			}
		}
	}

	return status.Success
}

func (t *table) isFree(entry uint32) bool {
	return entry == 0
}

// allocateCluster scans FAT entries 2..totalClusters+2 for the first free
// entry, marks it end-of-chain, zero-fills its data cluster, and returns
// its index.
func (t *table) allocateCluster() (int, status.Status) {
	totalClusters := t.layout.TotalSectors / t.layout.SectorsPerCluster

	for c := 2; c < totalClusters+2; c++ {
		entry, s := t.Get(c)
		if s != status.Success {
			return 0, s
		}

		if !t.isFree(entry) {
			continue
		}

		var eoc uint32 = 0xFFFF
		if t.layout.Kind == FAT32 {
			eoc = 0x0FFFFFFF
		}

		if s := t.Set(c, eoc); s != status.Success {
			return 0, s
		}

		if s := t.zeroCluster(c); s != status.Success {
			return 0, s
		}

		return c, status.Success
	}

	return 0, status.OutOfMemory
}

func (t *table) zeroCluster(cluster int) status.Status {
	zero := make([]byte, t.layout.ClusterSize())
	startSector := t.layout.ClusterToSector(cluster)

	return t.dev.WriteSectors(uint64(startSector), t.layout.SectorsPerCluster, zero)
}

// freeChain walks from start, marking each cluster entry free, stopping at
// EOC or a bad-cluster marker.
func (t *table) freeChain(start int) status.Status {
	cluster := start

	for cluster >= 2 {
		entry, s := t.Get(cluster)
		if s != status.Success {
			return s
		}

		if s := t.Set(cluster, 0); s != status.Success {
			return s
		}

		if t.layout.isEOC(entry) || entry == t.layout.eocThreshold()-1 || entry == 0 {
			break
		}

		cluster = int(entry)
	}

	return status.Success
}
