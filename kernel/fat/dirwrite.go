package fat

import (
	"strings"

	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// shortNameInvalid mirrors the FAT 8.3 forbidden-character set (the
// punctuation bytes reserved for path/wildcard metacharacters); anything
// matching is replaced with '_' during synthesis.
func shortNameInvalid(c byte) bool {
	switch c {
	case '"', '*', '+', ',', '/', ':', ';', '<', '=', '>', '?', '[', '\\', ']', '|':
		return true
	}
	return false
}

// copyShortNameField uppercases s, strips spaces, substitutes forbidden
// bytes, and copies at most len(dst) bytes into dst (already space-padded
// by the caller).
func copyShortNameField(dst []byte, s string) {
	s = strings.ToUpper(s)

	i := 0
	for j := 0; j < len(s) && i < len(dst); j++ {
		c := s[j]
		if c == ' ' {
			continue
		}
		if shortNameInvalid(c) {
			c = '_'
		}
		dst[i] = c
		i++
	}
}

// encodeShortName synthesizes an 8.3 short name: uppercase, split on the
// last '.', base and extension truncated/padded to 8 and 3 bytes. Names
// already in 8.3 form (the root-directory create path's only input today)
// round-trip byte for byte.
func encodeShortName(name string) [11]byte {
	base := name
	ext := ""

	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base = name[:i]
		ext = name[i+1:]
	}

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	copyShortNameField(out[0:8], base)
	copyShortNameField(out[8:11], ext)

	return out
}

// writeRawDirEntry encodes a 32-byte short-name directory entry into buf.
// Timestamps are left zeroed: this kernel has no wall-clock source wired
// into the FAT layer.
func writeRawDirEntry(buf []byte, name [11]byte, attr Attribute, startCluster int, size uint32) {
	copy(buf[0:11], name[:])
	buf[11] = byte(attr)

	for i := 12; i < 28; i++ {
		buf[i] = 0
	}

	putLE16(buf[20:], uint16(startCluster>>16))
	putLE16(buf[26:], uint16(startCluster))
	putLE32(buf[28:], size)
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// writeRootDirEntry finds name's slot in the FAT16 root directory — an
// existing short-name entry to overwrite, or the first free/deleted slot
// for a new one — and writes its attribute, start cluster, and size.
// Restricted to FAT16, whose root directory is a fixed-size region rather
// than a cluster chain; FAT32 and non-root FAT16 directory create/rewrite
// remain unimplemented (see DESIGN.md).
func (fs *FS) writeRootDirEntry(name string, startCluster int, size uint32) status.Status {
	if fs.layout.Kind != FAT16 {
		return status.NotSupported
	}

	shortName := encodeShortName(name)
	entriesPerSector := fs.layout.SectorSize / dirEntrySize

	freeSector, freeOffset := -1, -1

scan:
	for i := 0; i < fs.layout.RootDirSectors; i++ {
		sector := fs.layout.RootDirStart + i
		buf := make([]byte, fs.layout.SectorSize)

		if s := fs.dev.ReadSector(uint64(sector), buf); s != status.Success {
			return s
		}

		for e := 0; e < entriesPerSector; e++ {
			off := e * dirEntrySize
			entry := buf[off : off+dirEntrySize]

			switch entry[0] {
			case entryFree:
				if freeSector == -1 {
					freeSector, freeOffset = sector, off
				}
				break scan
			case entryDeleted:
				if freeSector == -1 {
					freeSector, freeOffset = sector, off
				}
				continue
			}

			attr := Attribute(entry[11])
			if attr&attrLFN == attrLFN || attr&AttrVolumeID != 0 {
				continue
			}

			if string(entry[0:11]) == string(shortName[:]) {
				writeRawDirEntry(entry, shortName, AttrArchive, startCluster, size)
				return fs.dev.WriteSector(uint64(sector), buf)
			}
		}
	}

	if freeSector == -1 {
		return status.OutOfMemory
	}

	buf := make([]byte, fs.layout.SectorSize)
	if s := fs.dev.ReadSector(uint64(freeSector), buf); s != status.Success {
		return s
	}

	writeRawDirEntry(buf[freeOffset:freeOffset+dirEntrySize], shortName, AttrArchive, startCluster, size)

	return fs.dev.WriteSector(uint64(freeSector), buf)
}
