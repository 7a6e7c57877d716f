// Package cache implements an LRU, write-back sector cache sitting in
// front of a block.Device: reads and writes go through a fixed pool of
// entries indexed by a 256-bucket hash table and ordered by a doubly
// linked LRU list, so repeat access to hot sectors never reaches the
// underlying device.
package cache

import (
	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// empty is the sentinel sector id marking an unused entry.
const empty = ^uint64(0)

const buckets = 256

type entry struct {
	sector uint64
	data   []byte
	dirty  bool

	// LRU list links, intrusive within the entry pool.
	lruPrev, lruNext int

	// hash chain link, intrusive within the entry pool.
	hashNext int
}

// Cache is a fixed-capacity, write-back sector cache over a single
// block.Device.
type Cache struct {
	dev        block.Device
	sectorSize int

	entries []entry
	hash    [buckets]int // head index into entries, or -1

	lruHead, lruTail int // indices into entries, or -1
}

// New sizes the cache to hold sizeBytes/sectorSize entries over dev.
func New(dev block.Device, sizeBytes int) *Cache {
	sectorSize := dev.SectorSize()
	count := sizeBytes / sectorSize
	if count < 1 {
		count = 1
	}

	c := &Cache{
		dev:        dev,
		sectorSize: sectorSize,
		entries:    make([]entry, count),
		lruHead:    -1,
		lruTail:    -1,
	}

	for i := range c.hash {
		c.hash[i] = -1
	}

	for i := range c.entries {
		c.entries[i] = entry{
			sector:   empty,
			data:     make([]byte, sectorSize),
			lruPrev:  -1,
			lruNext:  -1,
			hashNext: -1,
		}
	}

	return c
}

func bucket(sector uint64) int {
	return int(sector % buckets)
}

func (c *Cache) hashFind(sector uint64) int {
	for i := c.hash[bucket(sector)]; i != -1; i = c.entries[i].hashNext {
		if c.entries[i].sector == sector {
			return i
		}
	}
	return -1
}

func (c *Cache) hashInsert(idx int) {
	b := bucket(c.entries[idx].sector)
	c.entries[idx].hashNext = c.hash[b]
	c.hash[b] = idx
}

// hashRemove unlinks idx from its bucket's chain regardless of whether the
// entry is clean or dirty: every eviction path must call this, or the
// hash table keeps pointing at a slot that has since been repurposed.
func (c *Cache) hashRemove(idx int) {
	sector := c.entries[idx].sector
	if sector == empty {
		return
	}

	b := bucket(sector)

	if c.hash[b] == idx {
		c.hash[b] = c.entries[idx].hashNext
		c.entries[idx].hashNext = -1
		return
	}

	for i := c.hash[b]; i != -1; i = c.entries[i].hashNext {
		if c.entries[i].hashNext == idx {
			c.entries[i].hashNext = c.entries[idx].hashNext
			c.entries[idx].hashNext = -1
			return
		}
	}
}

func (c *Cache) lruUnlink(idx int) {
	e := &c.entries[idx]

	if e.lruPrev != -1 {
		c.entries[e.lruPrev].lruNext = e.lruNext
	} else {
		c.lruHead = e.lruNext
	}

	if e.lruNext != -1 {
		c.entries[e.lruNext].lruPrev = e.lruPrev
	} else {
		c.lruTail = e.lruPrev
	}

	e.lruPrev, e.lruNext = -1, -1
}

func (c *Cache) lruPushFront(idx int) {
	e := &c.entries[idx]
	e.lruPrev = -1
	e.lruNext = c.lruHead

	if c.lruHead != -1 {
		c.entries[c.lruHead].lruPrev = idx
	}

	c.lruHead = idx

	if c.lruTail == -1 {
		c.lruTail = idx
	}
}

func (c *Cache) touch(idx int) {
	if c.lruHead == idx {
		return
	}

	c.lruUnlink(idx)
	c.lruPushFront(idx)
}

// writeBack flushes idx to the device if dirty.
func (c *Cache) writeBack(idx int) status.Status {
	e := &c.entries[idx]
	if !e.dirty {
		return status.Success
	}

	if s := c.dev.WriteSector(e.sector, e.data); s != status.Success {
		return s
	}

	e.dirty = false
	return status.Success
}

// acquire returns a free or evicted entry ready to be filled with sector.
// On eviction the outgoing entry is written back if dirty and always
// unlinked from the hash table, on every path.
func (c *Cache) acquire(sector uint64) (int, status.Status) {
	for i := range c.entries {
		if c.entries[i].sector == empty {
			c.lruPushFront(i)
			return i, status.Success
		}
	}

	idx := c.lruTail
	if idx == -1 {
		return -1, status.OutOfMemory
	}

	if s := c.writeBack(idx); s != status.Success {
		return -1, s
	}

	c.hashRemove(idx)
	c.lruUnlink(idx)
	c.lruPushFront(idx)

	return idx, status.Success
}

// ReadSector returns sector's contents, fetching from the device on miss.
func (c *Cache) ReadSector(sector uint64, buf []byte) status.Status {
	if idx := c.hashFind(sector); idx != -1 {
		c.touch(idx)
		copy(buf, c.entries[idx].data)
		return status.Success
	}

	idx, s := c.acquire(sector)
	if s != status.Success {
		return s
	}

	e := &c.entries[idx]
	if s := c.dev.ReadSector(sector, e.data); s != status.Success {
		e.sector = empty
		return s
	}

	e.sector = sector
	e.dirty = false
	c.hashInsert(idx)

	copy(buf, e.data)
	return status.Success
}

// WriteSector installs or updates sector's entry and marks it dirty;
// nothing reaches the device until Flush or eviction.
func (c *Cache) WriteSector(sector uint64, buf []byte) status.Status {
	if idx := c.hashFind(sector); idx != -1 {
		copy(c.entries[idx].data, buf)
		c.entries[idx].dirty = true
		c.touch(idx)
		return status.Success
	}

	idx, s := c.acquire(sector)
	if s != status.Success {
		return s
	}

	e := &c.entries[idx]
	copy(e.data, buf)
	e.sector = sector
	e.dirty = true
	c.hashInsert(idx)

	return status.Success
}

// SectorSize reports the underlying device's sector size, so Cache itself
// satisfies block.Device and can be layered under the VFS/volume manager
// exactly like any other block device.
func (c *Cache) SectorSize() int { return c.sectorSize }

// SectorCount reports the underlying device's sector count.
func (c *Cache) SectorCount() uint64 { return c.dev.SectorCount() }

// ReadSectors reads n consecutive sectors starting at lba, one cache
// lookup at a time.
func (c *Cache) ReadSectors(lba uint64, n int, buf []byte) status.Status {
	for i := 0; i < n; i++ {
		off := i * c.sectorSize
		if s := c.ReadSector(lba+uint64(i), buf[off:off+c.sectorSize]); s != status.Success {
			return s
		}
	}
	return status.Success
}

// WriteSectors writes n consecutive sectors starting at lba, one cache
// update at a time.
func (c *Cache) WriteSectors(lba uint64, n int, buf []byte) status.Status {
	for i := 0; i < n; i++ {
		off := i * c.sectorSize
		if s := c.WriteSector(lba+uint64(i), buf[off:off+c.sectorSize]); s != status.Success {
			return s
		}
	}
	return status.Success
}

// Flush writes back every dirty entry.
func (c *Cache) Flush() status.Status {
	for i := range c.entries {
		if c.entries[i].sector == empty {
			continue
		}

		if s := c.writeBack(i); s != status.Success {
			return s
		}
	}

	return status.Success
}

// Invalidate drops every entry without writing back, clearing both the
// hash table and the LRU list.
func (c *Cache) Invalidate() {
	for i := range c.hash {
		c.hash[i] = -1
	}

	c.lruHead, c.lruTail = -1, -1

	for i := range c.entries {
		c.entries[i] = entry{
			sector:   empty,
			data:     c.entries[i].data,
			lruPrev:  -1,
			lruNext:  -1,
			hashNext: -1,
		}
	}
}
