// Package fat implements FAT16 and FAT32 over a block.Device: BIOS
// Parameter Block parsing, directory iteration with VFAT long-name
// reconstruction, cluster-chain read, and FAT16 write support.
package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const BootSectorSize = 512

// bpb is the on-disk BIOS Parameter Block, read with encoding/binary the
// same way a raw boot sector is decoded elsewhere in the pack: byte arrays
// for fields needing explicit little-endian decoding, scalar types for
// fields whose size matches a Go integer exactly.
type bpb struct {
	Ignored           [3]byte
	OEMName           [8]byte
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFat16   uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	// FAT32-only extension
	SectorsPerFat32 uint32
	Flags           uint16
	Version         uint16
	RootCluster     uint32
	InfoSector      uint16
	BackupBoot      uint16
	Reserved12      [12]byte
	DriveNumber     uint8
	Reserved1       uint8
	BootSignature   uint8
	VolumeID        [4]byte
	VolumeLabel     [11]byte
	FilesystemType  [8]byte

	Padding [420]byte
	Marker  uint16
}

// Kind distinguishes the two supported FAT generations.
type Kind int

const (
	FAT16 Kind = iota
	FAT32
)

// Layout is the computed geometry derived from the boot sector, used by
// every subsequent cluster/sector address translation.
type Layout struct {
	Kind Kind

	SectorSize        int
	SectorsPerCluster int
	ReservedSectors   int
	NumFATs           int
	RootEntryCount    int
	SectorsPerFat     int
	TotalSectors      int

	RootCluster int // FAT32 only

	FatStart       int
	RootDirStart   int // FAT16 only
	RootDirSectors int // FAT16 only
	DataStart      int
}

func (l Layout) ClusterSize() int {
	return l.SectorSize * l.SectorsPerCluster
}

// ClusterToSector maps a cluster number (first data cluster is 2) to the
// first absolute sector of its data.
func (l Layout) ClusterToSector(cluster int) int {
	return l.DataStart + (cluster-2)*l.SectorsPerCluster
}

// eocThreshold returns the value at or above which a FAT entry marks
// end-of-chain for this layout's kind.
func (l Layout) eocThreshold() uint32 {
	if l.Kind == FAT16 {
		return 0xFFF8
	}
	return 0x0FFFFFF8
}

func (l Layout) isEOC(entry uint32) bool {
	return entry >= l.eocThreshold()
}

// ParseBootSector decodes a 512-byte boot sector and classifies it as
// FAT32 when the 16-bit sectors-per-FAT field is zero or the cluster count
// exceeds 65524, and as FAT16 otherwise. FAT12 volumes are not detected;
// they are classified as FAT16.
func ParseBootSector(sector []byte) (Layout, error) {
	if len(sector) != BootSectorSize {
		return Layout{}, fmt.Errorf("fat: boot sector must be %d bytes, got %d", BootSectorSize, len(sector))
	}

	var b bpb
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &b); err != nil {
		return Layout{}, fmt.Errorf("fat: decoding boot sector: %w", err)
	}

	if b.Marker != 0xAA55 {
		return Layout{}, fmt.Errorf("fat: invalid boot sector signature 0x%04x", b.Marker)
	}

	totalSectors := int(b.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = int(b.TotalSectors32)
	}

	sectorsPerFat := int(b.SectorsPerFat16)
	kind := FAT16

	rootDirSectors := ((int(b.RootEntryCount)*32 + int(b.SectorSize) - 1) / int(b.SectorSize))
	fatStart := int(b.ReservedSectors)

	dataStartIfFat16 := fatStart + int(b.NumFATs)*sectorsPerFat + rootDirSectors
	clusterCount := 0
	if b.SectorsPerCluster > 0 {
		clusterCount = (totalSectors - dataStartIfFat16) / int(b.SectorsPerCluster)
	}

	if sectorsPerFat == 0 || clusterCount > 65524 {
		kind = FAT32
		sectorsPerFat = int(b.SectorsPerFat32)
	}

	l := Layout{
		Kind:              kind,
		SectorSize:        int(b.SectorSize),
		SectorsPerCluster: int(b.SectorsPerCluster),
		ReservedSectors:   int(b.ReservedSectors),
		NumFATs:           int(b.NumFATs),
		RootEntryCount:    int(b.RootEntryCount),
		SectorsPerFat:     sectorsPerFat,
		TotalSectors:      totalSectors,
		FatStart:          fatStart,
	}

	if kind == FAT16 {
		l.RootDirStart = fatStart + l.NumFATs*sectorsPerFat
		l.RootDirSectors = rootDirSectors
		l.DataStart = l.RootDirStart + rootDirSectors
	} else {
		l.RootCluster = int(b.RootCluster)
		l.DataStart = fatStart + l.NumFATs*sectorsPerFat
	}

	return l, nil
}
