package fat

import (
	"strings"

	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// FS is a mounted FAT16 or FAT32 filesystem over a block.Device.
type FS struct {
	dev    block.Device
	layout Layout
	fat    *table
}

// Mount reads and parses the boot sector from dev's first sector.
func Mount(dev block.Device) (*FS, status.Status) {
	sector := make([]byte, dev.SectorSize())
	if s := dev.ReadSector(0, sector); s != status.Success {
		return nil, s
	}

	layout, err := ParseBootSector(sector)
	if err != nil {
		return nil, status.Error
	}

	return &FS{dev: dev, layout: layout, fat: newTable(dev, layout)}, status.Success
}

func (fs *FS) Layout() Layout { return fs.layout }

// readRegion reads the raw bytes of the root directory (FAT16) or a
// cluster chain starting at startCluster (FAT32 root, or any subdirectory).
func (fs *FS) readRegion(startCluster int) ([]byte, status.Status) {
	if fs.layout.Kind == FAT16 && startCluster == 0 {
		buf := make([]byte, fs.layout.RootDirSectors*fs.layout.SectorSize)
		if s := fs.dev.ReadSectors(uint64(fs.layout.RootDirStart), fs.layout.RootDirSectors, buf); s != status.Success {
			return nil, s
		}
		return buf, status.Success
	}

	var out []byte
	cluster := startCluster

	for cluster >= 2 && !fs.layout.isEOC(uint32(cluster)) {
		chunk := make([]byte, fs.layout.ClusterSize())
		sector := fs.layout.ClusterToSector(cluster)

		if s := fs.dev.ReadSectors(uint64(sector), fs.layout.SectorsPerCluster, chunk); s != status.Success {
			return nil, s
		}

		out = append(out, chunk...)

		next, s := fs.fat.Get(cluster)
		if s != status.Success {
			return nil, s
		}

		if fs.layout.isEOC(next) || next == 0 {
			break
		}
		cluster = int(next)
	}

	return out, status.Success
}

func rootStartCluster(layout Layout) int {
	if layout.Kind == FAT32 {
		return layout.RootCluster
	}
	return 0
}

// lookup resolves a '/'-separated path (already validated by the VFS) to
// its directory entry, starting from the root.
func (fs *FS) lookup(path string) (DirEntry, status.Status) {
	path = strings.Trim(path, "/")

	entry := DirEntry{StartCluster: rootStartCluster(fs.layout), Attr: AttrDir}
	if path == "" {
		return entry, status.Success
	}

	components := strings.Split(path, "/")

	for _, comp := range components {
		region, s := fs.readRegion(entry.StartCluster)
		if s != status.Success {
			return DirEntry{}, s
		}

		found := false
		var next DirEntry

		iterDirectory(region, func(d DirEntry) bool {
			if strings.EqualFold(d.Name, comp) {
				next = d
				found = true
				return false
			}
			return true
		})

		if !found {
			return DirEntry{}, status.NotFound
		}

		entry = next
	}

	return entry, status.Success
}

// OpenMode selects read vs. write/create semantics for Open.
type OpenMode int

const (
	ReadOnly OpenMode = iota
	WriteCreate
	WriteAppend
)

// File is an open handle onto a FAT file. Read and (FAT16-only) Write
// operate on position, with Close rewriting the directory entry if dirty.
type File struct {
	fs           *FS
	name         string // 8.3 name, for the directory entry write-back on Close
	startCluster int
	size         uint32
	position     uint32
	dirty        bool
}

// Open resolves path and returns a read handle. FAT16 write/create is
// restricted to the root directory in this implementation; anything else
// requesting WriteCreate/WriteAppend outside the root returns NotSupported.
func (fs *FS) Open(path string, mode OpenMode) (*File, status.Status) {
	entry, s := fs.lookup(path)
	name := baseName(path)

	if mode == ReadOnly {
		if s != status.Success {
			return nil, s
		}
		if entry.IsDir() {
			return nil, status.InvalidParam
		}

		return &File{fs: fs, name: name, startCluster: entry.StartCluster, size: entry.Size}, status.Success
	}

	if fs.layout.Kind != FAT16 || !isRootPath(path) {
		return nil, status.NotSupported
	}

	if s == status.Success {
		if mode == WriteCreate {
			if s := fs.fat.freeChain(entry.StartCluster); s != status.Success {
				return nil, s
			}
			return &File{fs: fs, name: name, startCluster: 0, size: 0, dirty: true}, status.Success
		}

		f := &File{fs: fs, name: name, startCluster: entry.StartCluster, size: entry.Size}
		f.position = entry.Size // append: seek to end
		return f, status.Success
	}

	return &File{fs: fs, name: name, startCluster: 0, size: 0, dirty: true}, status.Success
}

func isRootPath(path string) bool {
	path = strings.Trim(path, "/")
	return !strings.Contains(path, "/")
}

// baseName returns the last '/'-separated component of path, the name a
// directory entry is filed under.
func baseName(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (f *File) Size() uint32 { return f.size }

// Read copies up to len(buf) bytes starting at the current position,
// advancing it. Returns the number of bytes read.
func (f *File) Read(buf []byte) (int, status.Status) {
	if f.position >= f.size {
		return 0, status.Success
	}

	remaining := f.size - f.position
	if uint32(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	clusterSize := uint32(f.fs.layout.ClusterSize())
	total := 0

	cluster := f.startCluster
	skip := f.position / clusterSize
	for i := uint32(0); i < skip && cluster >= 2; i++ {
		next, s := f.fs.fat.Get(cluster)
		if s != status.Success {
			return total, s
		}
		if f.fs.layout.isEOC(next) || next == 0 {
			return total, status.Success
		}
		cluster = int(next)
	}

	posInCluster := f.position % clusterSize

	for len(buf) > 0 && cluster >= 2 && !f.fs.layout.isEOC(uint32(cluster)) {
		chunk := make([]byte, clusterSize)
		sector := f.fs.layout.ClusterToSector(cluster)

		if s := f.fs.dev.ReadSectors(uint64(sector), f.fs.layout.SectorsPerCluster, chunk); s != status.Success {
			return total, s
		}

		n := copy(buf, chunk[posInCluster:])
		buf = buf[n:]
		total += n
		f.position += uint32(n)
		posInCluster = 0

		if len(buf) == 0 {
			break
		}

		next, s := f.fs.fat.Get(cluster)
		if s != status.Success {
			return total, s
		}
		if f.fs.layout.isEOC(next) || next == 0 {
			break
		}
		cluster = int(next)
	}

	return total, status.Success
}

// Write copies buf into the file starting at the current position (FAT16
// only), allocating clusters as needed and extending the file size, then
// advances position. Sparse regions (writes beyond a gap) are not
// supported: the file must be extended contiguously from its current end.
func (f *File) Write(buf []byte) (int, status.Status) {
	if f.fs.layout.Kind != FAT16 {
		return 0, status.NotSupported
	}

	clusterSize := uint32(f.fs.layout.ClusterSize())

	if f.startCluster == 0 {
		c, s := f.fs.fat.allocateCluster()
		if s != status.Success {
			return 0, s
		}
		f.startCluster = c
	}

	total := 0

	for len(buf) > 0 {
		clusterIndex := f.position / clusterSize
		posInCluster := f.position % clusterSize

		cluster := f.startCluster
		for i := uint32(0); i < clusterIndex; i++ {
			next, s := f.fs.fat.Get(cluster)
			if s != status.Success {
				return total, s
			}

			if f.fs.layout.isEOC(next) || next == 0 {
				newCluster, s := f.fs.fat.allocateCluster()
				if s != status.Success {
					return total, s
				}
				if s := f.fs.fat.Set(cluster, uint32(newCluster)); s != status.Success {
					return total, s
				}
				cluster = newCluster
			} else {
				cluster = int(next)
			}
		}

		scratch := make([]byte, clusterSize)
		sector := f.fs.layout.ClusterToSector(cluster)

		if s := f.fs.dev.ReadSectors(uint64(sector), f.fs.layout.SectorsPerCluster, scratch); s != status.Success {
			return total, s
		}

		n := copy(scratch[posInCluster:], buf)

		if s := f.fs.dev.WriteSectors(uint64(sector), f.fs.layout.SectorsPerCluster, scratch); s != status.Success {
			return total, s
		}

		buf = buf[n:]
		total += n
		f.position += uint32(n)

		if f.position > f.size {
			f.size = f.position
			f.dirty = true
		}
	}

	return total, status.Success
}

// Close rewrites the directory entry (8.3 name, start cluster, size) if
// the file is dirty, creating a new root-directory slot the first time a
// file is written. Only reachable for FAT16 root files: Open rejects
// WriteCreate/WriteAppend everywhere else, so nothing else can leave
// dirty set.
func (f *File) Close() status.Status {
	if !f.dirty {
		return status.Success
	}

	if s := f.fs.writeRootDirEntry(f.name, f.startCluster, f.size); s != status.Success {
		return s
	}

	f.dirty = false
	return status.Success
}

// ReadDir lists the resolved entries of the directory at path.
func (fs *FS) ReadDir(path string) ([]DirEntry, status.Status) {
	entry, s := fs.lookup(path)
	if s != status.Success {
		return nil, s
	}
	if !entry.IsDir() {
		return nil, status.InvalidParam
	}

	region, s := fs.readRegion(entry.StartCluster)
	if s != status.Success {
		return nil, s
	}

	var out []DirEntry
	iterDirectory(region, func(d DirEntry) bool {
		out = append(out, d)
		return true
	})

	return out, status.Success
}
