// Package blockcache implements a fixed-capacity, write-back, LRU cache of
// 512-byte sectors sitting in front of a block device. It mediates every
// disk access made by the rest of the filesystem: misses fault in a sector
// from the device, dirty sectors are flushed on eviction or Sync, and an
// entry that is pinned (held by more than the cache itself) is never
// evicted.
//
// The eviction-refusal fallback and dirty-bitmap bookkeeping are grounded
// in the design direction of dargueta-disko's
// file_systems/common/blockcache package (bitmap-backed dirty tracking,
// callback-style fetch/flush), adapted from a full-preload cache into a
// bounded LRU with pinning, since that source package preloads the entire
// device rather than evicting.
package blockcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/boljen/go-bitmap"
)

const (
	// SectorSize is the fixed cache line size: one FAT32 logical sector.
	SectorSize = 512

	// Limit is the maximum number of resident sectors.
	Limit = 64
)

// Device is the minimal block-addressed storage surface the cache reads
// and writes whole sectors from/to.
type Device interface {
	ReadBlocks(dst []byte, startBlock int64) (int, error)
	WriteBlocks(data []byte, startBlock int64) (int, error)
}

// entry is one resident (or read-through) sector. Bulk content access goes
// through its own lock so that structural cache operations (insert/evict)
// and content reads/writes can proceed independently, per the filesystem >
// FAT > cache > entry lock ordering.
type entry struct {
	sector int64
	mu     sync.RWMutex
	buf    [SectorSize]byte
	dirty  bool
	refs   int
	elem   *list.Element
}

// Cache is a bounded LRU cache of disk sectors, owned by one mounted
// filesystem (never a package-level singleton, so multiple volumes can be
// mounted concurrently in one process).
type Cache struct {
	mu  sync.Mutex // guards lru/idx structure and evictRefusals/dirtyBitmap
	dev Device
	lru *list.List // front = most-recently-used
	idx map[int64]*entry

	// dirtyBitmap tracks, over a fixed-size ring keyed by sector%Limit,
	// which resident slots are currently dirty; it exists purely as an
	// auxiliary diagnostic structure distinct from entry.dirty, mirroring
	// the bitmap-tracked cache idiom from dargueta-disko.
	dirtyBitmap   *bitmap.Threadsafe
	evictRefusals uint64
}

func New(dev Device) *Cache {
	return &Cache{
		dev:         dev,
		lru:         list.New(),
		idx:         make(map[int64]*entry, Limit),
		dirtyBitmap: bitmap.NewTS(Limit),
	}
}

// Handle is a pinning, reference-counted reference to one cached sector.
// The cache entry it refers to cannot be evicted while any Handle on it is
// outstanding. Callers must call Release when done. A Handle obtained
// during an eviction-refusal fallback is not cache-resident: it reads
// straight from the device and flushes straight back to it.
type Handle struct {
	c   *Cache
	e   *entry
	dev Device // set only for read-through (non-resident) handles
}

// Get returns a pinned handle to the sector, faulting it in from the
// device on a miss and promoting it to most-recently-used on a hit.
func (c *Cache) Get(sector int64) (*Handle, error) {
	c.mu.Lock()
	if e, ok := c.idx[sector]; ok {
		c.lru.MoveToFront(e.elem)
		e.refs++
		c.mu.Unlock()
		return &Handle{c: c, e: e}, nil
	}

	if len(c.idx) >= Limit && !c.evictLocked() {
		c.evictRefusals++
		c.mu.Unlock()
		return c.readThrough(sector)
	}

	e := &entry{sector: sector, refs: 1}
	if _, err := c.dev.ReadBlocks(e.buf[:], sector); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("blockcache: read sector %d: %w", sector, err)
	}
	e.elem = c.lru.PushFront(e)
	c.idx[sector] = e
	c.mu.Unlock()
	return &Handle{c: c, e: e}, nil
}

// readThrough serves a sector outside the cache entirely, because every
// resident entry is pinned and none could be evicted.
func (c *Cache) readThrough(sector int64) (*Handle, error) {
	e := &entry{sector: sector, refs: 1}
	if _, err := c.dev.ReadBlocks(e.buf[:], sector); err != nil {
		return nil, fmt.Errorf("blockcache: read-through sector %d: %w", sector, err)
	}
	return &Handle{c: nil, e: e, dev: c.dev}, nil
}

// evictLocked tries to evict the least-recently-used entry with no
// outstanding Handle (refcount 0, held only by the cache itself). Caller
// holds c.mu already. Returns false if no evictable entry exists.
func (c *Cache) evictLocked() bool {
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.refs > 0 {
			continue
		}
		if e.dirty {
			if _, err := c.dev.WriteBlocks(e.buf[:], e.sector); err != nil {
				continue // can't safely drop a dirty sector we failed to flush
			}
			e.dirty = false
		}
		c.lru.Remove(el)
		delete(c.idx, e.sector)
		c.dirtyBitmap.Set(int(e.sector%Limit), false)
		return true
	}
	return false
}

// EvictRefusals returns the running count of insertions that could not
// evict anything because every resident entry was pinned. A nonzero,
// growing value indicates over-pinning and a silent fallback to uncached
// device I/O.
func (c *Cache) EvictRefusals() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictRefusals
}

// Release decrements the handle's pin. A read-through handle (not
// cache-resident) is simply discarded; any dirty write on it was already
// flushed synchronously.
func (h *Handle) Release() {
	if h.c == nil {
		return
	}
	h.c.mu.Lock()
	h.e.refs--
	h.c.mu.Unlock()
}

// ReadWith applies f to a read-only view of size n at offset within the
// sector.
func (h *Handle) ReadWith(offset, n int, f func(b []byte)) error {
	if offset < 0 || n < 0 || offset+n > SectorSize {
		return fmt.Errorf("blockcache: out of bounds view offset=%d n=%d", offset, n)
	}
	h.e.mu.RLock()
	f(h.e.buf[offset : offset+n])
	h.e.mu.RUnlock()
	return nil
}

// ModifyWith applies f to a mutable view of size n at offset and marks the
// sector dirty. For a read-through handle the sector is flushed to the
// device immediately, since there is no cache entry to hold the dirty bit.
func (h *Handle) ModifyWith(offset, n int, f func(b []byte)) error {
	if offset < 0 || n < 0 || offset+n > SectorSize {
		return fmt.Errorf("blockcache: out of bounds view offset=%d n=%d", offset, n)
	}
	h.e.mu.Lock()
	f(h.e.buf[offset : offset+n])
	h.e.mu.Unlock()
	return h.markDirty()
}

// Bytes exposes the full 512-byte buffer for bulk copy (the read_at/
// write_at fast paths). Callers that mutate it directly must call
// MarkDirty afterwards.
func (h *Handle) Bytes() []byte {
	return h.e.buf[:]
}

// MarkDirty flags the sector as needing flush, for callers that mutated
// Bytes() directly in bulk (e.g. zeroing a freshly allocated cluster).
func (h *Handle) MarkDirty() error {
	return h.markDirty()
}

func (h *Handle) markDirty() error {
	if h.c == nil {
		// Read-through: there is no cache to defer the write, so commit now.
		if _, err := h.dev.WriteBlocks(h.e.buf[:], h.e.sector); err != nil {
			return fmt.Errorf("blockcache: read-through flush sector %d: %w", h.e.sector, err)
		}
		return nil
	}
	h.e.mu.Lock()
	h.e.dirty = true
	h.e.mu.Unlock()
	h.c.mu.Lock()
	h.c.dirtyBitmap.Set(int(h.e.sector%Limit), true)
	h.c.mu.Unlock()
	return nil
}

// Sync flushes every dirty resident entry without dropping them.
func (c *Cache) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		e.mu.Lock()
		dirty := e.dirty
		if dirty {
			_, err := c.dev.WriteBlocks(e.buf[:], e.sector)
			if err == nil {
				e.dirty = false
			} else {
				e.mu.Unlock()
				return fmt.Errorf("blockcache: sync sector %d: %w", e.sector, err)
			}
		}
		e.mu.Unlock()
		if dirty {
			c.dirtyBitmap.Set(int(e.sector%Limit), false)
		}
	}
	return nil
}

// SyncAll flushes every dirty entry and drops all resident entries.
func (c *Cache) SyncAll() error {
	if err := c.Sync(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.idx = make(map[int64]*entry, Limit)
	return nil
}
