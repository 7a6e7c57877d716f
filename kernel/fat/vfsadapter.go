package fat

import (
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
)

// Adapter exposes a mounted FS as a vfs.Filesystem, translating between
// the VFS's backend-agnostic OpenMode/DirEntry and FAT's own.
type Adapter struct {
	*FS
}

func translateMode(mode vfs.OpenMode) OpenMode {
	switch mode {
	case vfs.WriteCreate:
		return WriteCreate
	case vfs.WriteAppend:
		return WriteAppend
	default:
		return ReadOnly
	}
}

func (a Adapter) Open(path string, mode vfs.OpenMode) (vfs.FileHandle, status.Status) {
	f, s := a.FS.Open(path, translateMode(mode))
	if s != status.Success {
		return nil, s
	}
	return f, status.Success
}

func (a Adapter) ReadDir(path string) ([]vfs.DirEntry, status.Status) {
	entries, s := a.FS.ReadDir(path)
	if s != status.Success {
		return nil, s
	}

	out := make([]vfs.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = vfs.DirEntry{Name: e.Name, IsDir: e.IsDir(), Size: uint64(e.Size)}
	}

	return out, status.Success
}
