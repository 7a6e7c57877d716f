package volume_test

import (
	"encoding/binary"
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
	"github.com/dmorton63/qaiosplus-sub000/kernel/volume"
	"github.com/stretchr/testify/require"
)

const sectorSize = 512

// minimalFAT16Device builds just enough of a valid FAT16 boot sector for
// probeKind/fat.Mount to succeed; no files are populated.
func minimalFAT16Device(t *testing.T) *block.MemoryDevice {
	t.Helper()

	const (
		reserved      = 1
		numFATs       = 2
		rootEntries   = 16
		sectorsPerFat = 1
		totalSectors  = 64
	)

	data := make([]byte, totalSectors*sectorSize)
	boot := data[:sectorSize]

	boot[11], boot[12] = byte(sectorSize), byte(sectorSize>>8)
	boot[13] = 1
	boot[14], boot[15] = byte(reserved), byte(reserved>>8)
	boot[16] = numFATs
	binary.LittleEndian.PutUint16(boot[17:], uint16(rootEntries))
	binary.LittleEndian.PutUint16(boot[19:], uint16(totalSectors))
	boot[21] = 0xF8
	binary.LittleEndian.PutUint16(boot[22:], uint16(sectorsPerFat))
	boot[510], boot[511] = 0x55, 0xAA

	return block.NewMemoryDevice(data, sectorSize)
}

func TestRegisterAndMountFATAuto(t *testing.T) {
	v := vfs.New()
	m := volume.New(v)

	dev := minimalFAT16Device(t)

	s := m.Register("boot", "/boot", volume.FATAuto, dev, true)
	require.Equal(t, status.Success, s)
	require.True(t, m.Mounted("boot"))

	// mounted filesystem should now answer VFS directory listing requests
	h, s := v.OpenDir("/boot")
	require.Equal(t, status.Success, s)
	require.Equal(t, status.Success, v.CloseDir(h))
}

func TestRegisterRejectsDuplicateNameOrPath(t *testing.T) {
	v := vfs.New()
	m := volume.New(v)

	devA := minimalFAT16Device(t)
	devB := minimalFAT16Device(t)

	require.Equal(t, status.Success, m.Register("boot", "/boot", volume.FATAuto, devA, false))
	require.Equal(t, status.InvalidParam, m.Register("boot", "/other", volume.FATAuto, devB, false))
	require.Equal(t, status.InvalidParam, m.Register("other", "/boot", volume.FATAuto, devB, false))
}

func TestUnregisterUnmountsAndRemoves(t *testing.T) {
	v := vfs.New()
	m := volume.New(v)

	dev := minimalFAT16Device(t)
	require.Equal(t, status.Success, m.Register("boot", "/boot", volume.FATAuto, dev, true))

	require.Equal(t, status.Success, m.Unregister("boot"))
	require.False(t, m.Mounted("boot"))

	_, s := v.OpenDir("/boot")
	require.Equal(t, status.NotFound, s)
}

// TestWriteCreateThenReadBackThroughVFS exercises directory-entry
// persistence end to end through the mounted VFS, not just fat.FS
// directly: write a new file, close it, and reopen through the volume's
// mount point to confirm the bytes survive.
func TestWriteCreateThenReadBackThroughVFS(t *testing.T) {
	v := vfs.New()
	m := volume.New(v)

	dev := minimalFAT16Device(t)
	require.Equal(t, status.Success, m.Register("boot", "/boot", volume.FATAuto, dev, true))

	h, s := v.Open("/boot/NEW.TXT", vfs.WriteCreate)
	require.Equal(t, status.Success, s)

	payload := []byte("through the volume manager")
	n, s := v.Write(h, payload)
	require.Equal(t, status.Success, s)
	require.Equal(t, len(payload), n)
	require.Equal(t, status.Success, v.Close(h))

	h2, s := v.Open("/boot/NEW.TXT", vfs.ReadOnly)
	require.Equal(t, status.Success, s)

	readBack := make([]byte, len(payload))
	n, s = v.Read(h2, readBack)
	require.Equal(t, status.Success, s)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)
	require.Equal(t, status.Success, v.Close(h2))
}

func TestMountDeferredUntilExplicitMountCall(t *testing.T) {
	v := vfs.New()
	m := volume.New(v)

	dev := minimalFAT16Device(t)
	require.Equal(t, status.Success, m.Register("boot", "/boot", volume.FATAuto, dev, false))
	require.False(t, m.Mounted("boot"))

	require.Equal(t, status.Success, m.Mount("boot"))
	require.True(t, m.Mounted("boot"))
}
