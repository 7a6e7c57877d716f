package fat_test

import (
	"encoding/binary"
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/fat"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/stretchr/testify/require"
)

const sectorSize = 512

// buildFAT16Image assembles a minimal, valid FAT16 boot sector + FAT +
// root directory + data region by hand, the way a disk image fixture
// would be built for a filesystem test without a real mkfs tool.
type fat16Image struct {
	dev            *block.MemoryDevice
	sectorsPerFat  int
	reserved       int
	numFATs        int
	rootEntries    int
	rootDirStart   int
	rootDirSectors int
	dataStart      int
	sectorsPerClus int
	totalSectors   int
}

func buildFAT16Image(t *testing.T) *fat16Image {
	t.Helper()

	const (
		reserved       = 1
		numFATs        = 2
		rootEntries    = 16
		sectorsPerFat  = 1
		sectorsPerClus = 1
		totalSectors   = 64
	)

	rootDirSectors := (rootEntries*32 + sectorSize - 1) / sectorSize
	rootDirStart := reserved + numFATs*sectorsPerFat
	dataStart := rootDirStart + rootDirSectors

	data := make([]byte, totalSectors*sectorSize)

	boot := data[0:sectorSize]
	boot[11], boot[12] = byte(sectorSize), byte(sectorSize>>8)
	boot[13] = sectorsPerClus
	boot[14], boot[15] = byte(reserved), byte(reserved>>8)
	boot[16] = numFATs
	binary.LittleEndian.PutUint16(boot[17:], uint16(rootEntries))
	binary.LittleEndian.PutUint16(boot[19:], uint16(totalSectors))
	boot[21] = 0xF8
	binary.LittleEndian.PutUint16(boot[22:], uint16(sectorsPerFat))
	boot[510], boot[511] = 0x55, 0xAA

	img := &fat16Image{
		dev:            block.NewMemoryDevice(data, sectorSize),
		sectorsPerFat:  sectorsPerFat,
		reserved:       reserved,
		numFATs:        numFATs,
		rootEntries:    rootEntries,
		rootDirStart:   rootDirStart,
		rootDirSectors: rootDirSectors,
		dataStart:      dataStart,
		sectorsPerClus: sectorsPerClus,
		totalSectors:   totalSectors,
	}

	// FAT[0] and FAT[1] reserved entries, conventionally media-byte-derived.
	img.setFATEntry(0, 0xFFF8)
	img.setFATEntry(1, 0xFFFF)

	return img
}

func (img *fat16Image) fatBuf(copyIdx int) []byte {
	start := (img.reserved + copyIdx*img.sectorsPerFat) * sectorSize
	return img.dev.RawBytes()[start : start+img.sectorsPerFat*sectorSize]
}

func (img *fat16Image) setFATEntry(cluster int, value uint16) {
	for c := 0; c < img.numFATs; c++ {
		buf := img.fatBuf(c)
		binary.LittleEndian.PutUint16(buf[cluster*2:], value)
	}
}

func (img *fat16Image) writeCluster(cluster int, content []byte) {
	start := (img.dataStart + (cluster-2)*img.sectorsPerClus) * sectorSize
	copy(img.dev.RawBytes()[start:start+sectorSize], content)
}

// addRootFile writes an 8.3-only short-name entry (no LFN) for name.ext
// into root directory slot idx, pointing at startCluster with size bytes.
func (img *fat16Image) addRootFile(idx int, shortName [11]byte, startCluster int, size uint32) {
	off := img.rootDirStart*sectorSize + idx*32
	buf := img.dev.RawBytes()[off : off+32]

	copy(buf[0:11], shortName[:])
	buf[11] = 0x20 // ATTR_ARCHIVE
	binary.LittleEndian.PutUint16(buf[26:], uint16(startCluster))
	binary.LittleEndian.PutUint32(buf[28:], size)
}

func sfnBytes(base, ext string) [11]byte {
	var b [11]byte
	for i := range b {
		b[i] = ' '
	}
	copy(b[0:8], base)
	copy(b[8:11], ext)
	return b
}

func TestParseBootSectorClassifiesFAT16(t *testing.T) {
	img := buildFAT16Image(t)

	sector := make([]byte, sectorSize)
	img.dev.ReadSector(0, sector)

	layout, err := fat.ParseBootSector(sector)
	require.NoError(t, err)
	require.Equal(t, fat.FAT16, layout.Kind)
	require.Equal(t, img.rootDirStart, layout.RootDirStart)
	require.Equal(t, img.dataStart, layout.DataStart)
}

func TestMountReadRootFile(t *testing.T) {
	img := buildFAT16Image(t)

	content := []byte("hello, qaiosplus")
	img.writeCluster(2, content)
	img.addRootFile(0, sfnBytes("HELLO", "TXT"), 2, uint32(len(content)))

	fs, s := fat.Mount(img.dev)
	require.Equal(t, status.Success, s)

	entries, s := fs.ReadDir("/")
	require.Equal(t, status.Success, s)
	require.Len(t, entries, 1)
	require.Equal(t, "HELLO.TXT", entries[0].Name)
	require.Equal(t, uint32(len(content)), entries[0].Size)

	f, s := fs.Open("/HELLO.TXT", fat.ReadOnly)
	require.Equal(t, status.Success, s)

	buf := make([]byte, len(content))
	n, s := f.Read(buf)
	require.Equal(t, status.Success, s)
	require.Equal(t, len(content), n)
	require.Equal(t, content, buf)
}

func TestOpenMissingFileIsNotFound(t *testing.T) {
	img := buildFAT16Image(t)

	fs, s := fat.Mount(img.dev)
	require.Equal(t, status.Success, s)

	_, s = fs.Open("/NOPE.TXT", fat.ReadOnly)
	require.Equal(t, status.NotFound, s)
}

func TestRootWriteCreateThenReadBack(t *testing.T) {
	img := buildFAT16Image(t)

	fs, s := fat.Mount(img.dev)
	require.Equal(t, status.Success, s)

	f, s := fs.Open("/NEW.TXT", fat.WriteCreate)
	require.Equal(t, status.Success, s)

	payload := []byte("written from the root directory")
	n, s := f.Write(payload)
	require.Equal(t, status.Success, s)
	require.Equal(t, len(payload), n)
	require.Equal(t, status.Success, f.Close())

	entries, s := fs.ReadDir("/")
	require.Equal(t, status.Success, s)
	require.Len(t, entries, 1)
	require.Equal(t, "NEW.TXT", entries[0].Name)
	require.Equal(t, uint32(len(payload)), entries[0].Size)

	reopened, s := fs.Open("/NEW.TXT", fat.ReadOnly)
	require.Equal(t, status.Success, s)

	readBack := make([]byte, len(payload))
	n, s = reopened.Read(readBack)
	require.Equal(t, status.Success, s)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)
}

// TestOpenNewWriteCloseReopenMatchesDemoScenario exercises the exact
// sequence spec.md's ramdisk-round-trip scenario names: open a new file,
// write its contents, close, reopen for read, and get back the same bytes.
func TestOpenNewWriteCloseReopenMatchesDemoScenario(t *testing.T) {
	img := buildFAT16Image(t)

	fs, s := fat.Mount(img.dev)
	require.Equal(t, status.Success, s)

	f, s := fs.Open("/QFSDEMO.TXT", fat.WriteCreate)
	require.Equal(t, status.Success, s)

	payload := []byte("QAIOS+ FileIO demo\n")
	require.Len(t, payload, 19)

	n, s := f.Write(payload)
	require.Equal(t, status.Success, s)
	require.Equal(t, len(payload), n)
	require.Equal(t, status.Success, f.Close())

	reopened, s := fs.Open("/QFSDEMO.TXT", fat.ReadOnly)
	require.Equal(t, status.Success, s)
	require.Equal(t, uint32(19), reopened.Size())

	readBack := make([]byte, 19)
	n, s = reopened.Read(readBack)
	require.Equal(t, status.Success, s)
	require.Equal(t, 19, n)
	require.Equal(t, payload, readBack)
}

func TestCaseInsensitiveLookup(t *testing.T) {
	img := buildFAT16Image(t)

	content := []byte("x")
	img.writeCluster(2, content)
	img.addRootFile(0, sfnBytes("MIXED", "TXT"), 2, uint32(len(content)))

	fs, s := fat.Mount(img.dev)
	require.Equal(t, status.Success, s)

	_, s = fs.Open("/mixed.txt", fat.ReadOnly)
	require.Equal(t, status.Success, s)
}
