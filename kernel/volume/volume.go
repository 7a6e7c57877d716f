// Package volume implements a small registry of named volumes, each
// backed by a block device and mounted into the VFS under a fixed path.
package volume

import (
	"sync"

	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/fat"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
)

// Kind names the filesystem a volume is declared to hold. FATAuto probes
// the boot sector and chooses FAT16 or FAT32 by the cluster-count rules
// in fat.ParseBootSector.
type Kind int

const (
	FATAuto Kind = iota
	FAT16
	FAT32
)

type volumeEntry struct {
	name      string
	mountPath string
	kind      Kind
	device    block.Device
	mounted   bool
}

// Manager is the process-wide volume registry.
type Manager struct {
	mu      sync.Mutex
	vfs     *vfs.VFS
	volumes []volumeEntry
}

func New(v *vfs.VFS) *Manager {
	return &Manager{vfs: v}
}

// Register validates uniqueness of name and mountPath, then optionally
// mounts the volume immediately.
func (m *Manager) Register(name, mountPath string, kind Kind, dev block.Device, mountNow bool) status.Status {
	m.mu.Lock()
	for _, v := range m.volumes {
		if v.name == name || v.mountPath == mountPath {
			m.mu.Unlock()
			return status.InvalidParam
		}
	}

	entry := volumeEntry{name: name, mountPath: mountPath, kind: kind, device: dev}
	m.volumes = append(m.volumes, entry)
	idx := len(m.volumes) - 1
	m.mu.Unlock()

	if mountNow {
		return m.mountIndex(idx)
	}

	return status.Success
}

func probeKind(dev block.Device) (Kind, status.Status) {
	sector := make([]byte, dev.SectorSize())
	if s := dev.ReadSector(0, sector); s != status.Success {
		return 0, s
	}

	layout, err := fat.ParseBootSector(sector)
	if err != nil {
		return 0, status.Error
	}

	if layout.Kind == fat.FAT32 {
		return FAT32, status.Success
	}

	return FAT16, status.Success
}

func (m *Manager) mountIndex(idx int) status.Status {
	m.mu.Lock()
	entry := m.volumes[idx]
	m.mu.Unlock()

	kind := entry.kind
	if kind == FATAuto {
		probed, s := probeKind(entry.device)
		if s != status.Success {
			return s
		}
		kind = probed
	}

	fs, s := fat.Mount(entry.device)
	if s != status.Success {
		return s
	}

	if s := m.vfs.MkdirAll(entry.mountPath); s != status.Success && s != status.NotSupported && s != status.NotFound {
		return s
	}

	if s := m.vfs.Mount(entry.mountPath, fat.Adapter{FS: fs}); s != status.Success {
		return s
	}

	m.mu.Lock()
	m.volumes[idx].mounted = true
	m.volumes[idx].kind = kind
	m.mu.Unlock()

	return status.Success
}

// Mount mounts a previously registered but not-yet-mounted volume by name.
func (m *Manager) Mount(name string) status.Status {
	idx, s := m.find(name)
	if s != status.Success {
		return s
	}

	return m.mountIndex(idx)
}

func (m *Manager) find(name string) (int, status.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, v := range m.volumes {
		if v.name == name {
			return i, status.Success
		}
	}

	return 0, status.NotFound
}

// Unregister unmounts (if mounted) and removes name from the registry.
func (m *Manager) Unregister(name string) status.Status {
	idx, s := m.find(name)
	if s != status.Success {
		return s
	}

	m.mu.Lock()
	entry := m.volumes[idx]
	m.mu.Unlock()

	if entry.mounted {
		if s := m.vfs.Unmount(entry.mountPath); s != status.Success {
			return s
		}
	}

	m.mu.Lock()
	m.volumes = append(m.volumes[:idx], m.volumes[idx+1:]...)
	m.mu.Unlock()

	return status.Success
}

// Mounted reports whether name is currently mounted.
func (m *Manager) Mounted(name string) bool {
	idx, s := m.find(name)
	if s != status.Success {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumes[idx].mounted
}
