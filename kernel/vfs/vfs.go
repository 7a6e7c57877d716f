// Package vfs implements a small virtual filesystem layer: a mount table
// resolved by longest matching prefix, handle-table-indexed file and
// directory operations, and the path utilities every filesystem backend
// and the volume manager rely on.
package vfs

import (
	"strings"
	"sync"

	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// OpenMode selects read vs. write/create/append semantics, mirrored from
// the backing filesystem's own OpenMode so callers never import fat
// directly.
type OpenMode int

const (
	ReadOnly OpenMode = iota
	WriteCreate
	WriteAppend
)

// DirEntry is a filesystem-agnostic directory listing entry.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  uint64
}

// FileHandle is the contract a mounted filesystem's open file satisfies.
type FileHandle interface {
	Read(buf []byte) (int, status.Status)
	Write(buf []byte) (int, status.Status)
	Close() status.Status
}

// Filesystem is the contract a backend (fat.FS, a future implementation)
// must satisfy to be mounted.
type Filesystem interface {
	Open(path string, mode OpenMode) (FileHandle, status.Status)
	ReadDir(path string) ([]DirEntry, status.Status)
}

type mountEntry struct {
	prefix string
	fs     Filesystem
}

// VFS is the process-wide mount table plus file/directory handle arenas.
// Back-references from a handle to its filesystem are small integer
// handles into these arenas rather than raw pointers.
type VFS struct {
	mu     sync.Mutex
	mounts []mountEntry

	files      map[int]FileHandle
	dirs       map[int][]DirEntry
	nextHandle int
}

func New() *VFS {
	return &VFS{
		files:      make(map[int]FileHandle),
		dirs:       make(map[int][]DirEntry),
		nextHandle: 1,
	}
}

// Mount registers fs at prefix. prefix must begin with '/'.
func (v *VFS) Mount(prefix string, fs Filesystem) status.Status {
	if !strings.HasPrefix(prefix, "/") {
		return status.InvalidParam
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.mounts = append(v.mounts, mountEntry{prefix: normalizeMount(prefix), fs: fs})
	return status.Success
}

// Unmount removes the mount registered at exactly prefix.
func (v *VFS) Unmount(prefix string) status.Status {
	prefix = normalizeMount(prefix)

	v.mu.Lock()
	defer v.mu.Unlock()

	for i, m := range v.mounts {
		if m.prefix == prefix {
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			return status.Success
		}
	}

	return status.NotFound
}

func normalizeMount(prefix string) string {
	if prefix == "/" {
		return ""
	}
	return strings.TrimSuffix(prefix, "/")
}

// resolvePath picks the mount entry with the longest prefix whose match
// ends at a component boundary (end of string, or the next path byte is
// '/'), comparing case-insensitively. The relative path handed back
// always begins with '/'.
func (v *VFS) resolvePath(path string) (Filesystem, string, status.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()

	bestLen := -1
	var best *mountEntry

	for i := range v.mounts {
		m := &v.mounts[i]

		if !strings.HasPrefix(strings.ToLower(path), strings.ToLower(m.prefix)) {
			continue
		}

		rest := path[len(m.prefix):]
		if rest != "" && rest[0] != '/' {
			continue
		}

		if len(m.prefix) > bestLen {
			bestLen = len(m.prefix)
			best = m
		}
	}

	if best == nil {
		return nil, "", status.NotFound
	}

	rel := path[len(best.prefix):]
	if rel == "" {
		rel = "/"
	}

	return best.fs, rel, status.Success
}

func (v *VFS) allocHandle() int {
	h := v.nextHandle
	v.nextHandle++
	return h
}

// Open resolves path through the mount table and opens it on the backing
// filesystem, returning an integer handle.
func (v *VFS) Open(path string, mode OpenMode) (int, status.Status) {
	if !Valid(path) {
		return 0, status.InvalidParam
	}

	fs, rel, s := v.resolvePath(path)
	if s != status.Success {
		return 0, s
	}

	f, s := fs.Open(rel, mode)
	if s != status.Success {
		return 0, s
	}

	v.mu.Lock()
	h := v.allocHandle()
	v.files[h] = f
	v.mu.Unlock()

	return h, status.Success
}

func (v *VFS) Read(handle int, buf []byte) (int, status.Status) {
	v.mu.Lock()
	f, ok := v.files[handle]
	v.mu.Unlock()

	if !ok {
		return 0, status.NotFound
	}

	return f.Read(buf)
}

func (v *VFS) Write(handle int, buf []byte) (int, status.Status) {
	v.mu.Lock()
	f, ok := v.files[handle]
	v.mu.Unlock()

	if !ok {
		return 0, status.NotFound
	}

	return f.Write(buf)
}

// Close always deletes the handle after calling through to the backing
// filesystem's close, even if that close reports an error.
func (v *VFS) Close(handle int) status.Status {
	v.mu.Lock()
	f, ok := v.files[handle]
	delete(v.files, handle)
	v.mu.Unlock()

	if !ok {
		return status.NotFound
	}

	return f.Close()
}

// OpenDir resolves path and lists it, returning a handle onto the
// resulting entry slice.
func (v *VFS) OpenDir(path string) (int, status.Status) {
	if !Valid(path) {
		return 0, status.InvalidParam
	}

	fs, rel, s := v.resolvePath(path)
	if s != status.Success {
		return 0, s
	}

	entries, s := fs.ReadDir(rel)
	if s != status.Success {
		return 0, s
	}

	v.mu.Lock()
	h := v.allocHandle()
	v.dirs[h] = entries
	v.mu.Unlock()

	return h, status.Success
}

func (v *VFS) ReadDirEntries(handle int) ([]DirEntry, status.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, ok := v.dirs[handle]
	if !ok {
		return nil, status.NotFound
	}

	return entries, status.Success
}

// CloseDir always deletes the handle.
func (v *VFS) CloseDir(handle int) status.Status {
	v.mu.Lock()
	_, ok := v.dirs[handle]
	delete(v.dirs, handle)
	v.mu.Unlock()

	if !ok {
		return status.NotFound
	}

	return status.Success
}

// MkdirAll resolves path against the longest matching mount. It creates
// no directories: it returns NotFound when no mount covers path, Success
// when path is the root of the covering mount, and NotSupported for any
// other path. The volume manager treats NotFound and NotSupported as
// "nothing to do" before mounting.
func (v *VFS) MkdirAll(path string) status.Status {
	_, rel, s := v.resolvePath(path)
	if s != status.Success {
		return s
	}

	if rel == "/" {
		return status.Success
	}

	return status.NotSupported
}
