// Package fatmgr implements the cluster-chain allocation fabric: reading
// and writing 32-bit FAT entries through the block cache, walking and
// growing chains, and handing out free clusters.
//
// Grounded in soypat-fat's clusterstat/put_clusterstat/create_chain/
// remove_chain functions in fat.go, generalized from that package's
// inline window-based access into the spec's explicit next_of/set_next/
// cluster-chain-cursor operation set, and retargeted to read/write through
// an injected blockcache.Cache rather than a single shared window.
package fatmgr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/boljen/go-bitmap"

	"github.com/nilfs-go/fat32/internal/blockcache"
	"github.com/nilfs-go/fat32/internal/ondisk"
)

// ErrCorrupt is returned when a FAT entry violates the chain invariant:
// any successor other than a sentinel must be >= 2.
var ErrCorrupt = errors.New("fatmgr: corrupt cluster chain")

// Manager reads and writes FAT#1 (authoritative), located by its first
// sector, and keeps a free-list hint queue. FAT#2 is not tracked here: it
// is written only at format time and never resynced afterward.
type Manager struct {
	cache        *blockcache.Cache
	fat1Sector   int64 // first sector of FAT#1
	totalEntries uint32

	mu      sync.Mutex
	recycle []uint32

	// free is a fast existence-check bitmap mirroring each cluster's
	// free/allocated state, indexed by cluster-ondisk.ClusterFirstValid.
	// It is maintained alongside every FAT entry mutation so AllocateOne's
	// fallback scan never has to fault in a FAT sector just to learn a
	// cluster is taken.
	free *bitmap.Threadsafe
}

// New constructs a Manager over an already-initialized FAT region,
// building its free-cluster bitmap by scanning every entry once up
// front (mirroring dargueta-disko's full-preload cache idiom, here
// applied to FAT existence-checking rather than sector contents).
func New(cache *blockcache.Cache, fat1Sector int64, totalEntries uint32) *Manager {
	m := &Manager{
		cache:        cache,
		fat1Sector:   fat1Sector,
		totalEntries: totalEntries,
		free:         bitmap.NewTS(int(totalEntries - ondisk.ClusterFirstValid)),
	}
	for c := uint32(ondisk.ClusterFirstValid); c < totalEntries; c++ {
		raw, err := m.readEntry(c)
		if err != nil {
			continue // leave the bit at its zero value (allocated); a real
			// read failure will resurface on the next direct access anyway.
		}
		if raw&ondisk.ClusterEntryMask == ondisk.ClusterFree {
			m.free.Set(int(c-ondisk.ClusterFirstValid), true)
		}
	}
	return m
}

func (m *Manager) markAllocated(cluster uint32) {
	m.free.Set(int(cluster-ondisk.ClusterFirstValid), false)
}

func (m *Manager) markFree(cluster uint32) {
	m.free.Set(int(cluster-ondisk.ClusterFirstValid), true)
}

func (m *Manager) entryLocation(cluster uint32) (sector int64, offset int) {
	byteOff := int64(cluster) * 4
	sector = m.fat1Sector + byteOff/blockcache.SectorSize
	offset = int(byteOff % blockcache.SectorSize)
	return sector, offset
}

func (m *Manager) readEntry(cluster uint32) (uint32, error) {
	sector, offset := m.entryLocation(cluster)
	h, err := m.cache.Get(sector)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	var raw uint32
	err = h.ReadWith(offset, 4, func(b []byte) {
		raw = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	})
	return raw, err
}

func (m *Manager) writeEntry(cluster, value uint32) error {
	sector, offset := m.entryLocation(cluster)
	h, err := m.cache.Get(sector)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.ModifyWith(offset, 4, func(b []byte) {
		b[0] = byte(value)
		b[1] = byte(value >> 8)
		b[2] = byte(value >> 16)
		b[3] = byte(value >> 24)
	})
}

// NextOf returns the successor cluster, or ok=false if cluster is the end
// of its chain (EOC sentinel).
func (m *Manager) NextOf(cluster uint32) (next uint32, ok bool, err error) {
	raw, err := m.readEntry(cluster)
	if err != nil {
		return 0, false, err
	}
	link := raw & ondisk.ClusterEntryMask
	if link >= ondisk.ClusterEOCMin || link == ondisk.ClusterBad {
		return 0, false, nil
	}
	if link != ondisk.ClusterFree && link < ondisk.ClusterFirstValid {
		return 0, false, fmt.Errorf("%w: cluster %d points to reserved id %d", ErrCorrupt, cluster, link)
	}
	return link, true, nil
}

// SetNext writes a 28-bit successor link for cluster, preserving the high
// 4 reserved bits already on disk.
func (m *Manager) SetNext(cluster, value uint32) error {
	raw, err := m.readEntry(cluster)
	if err != nil {
		return err
	}
	high := raw & ondisk.ClusterHighMask
	if err := m.writeEntry(cluster, high|(value&ondisk.ClusterEntryMask)); err != nil {
		return err
	}
	m.markAllocated(cluster)
	return nil
}

// SetEOC marks cluster as the terminal cluster of its chain.
func (m *Manager) SetEOC(cluster uint32) error {
	return m.SetNext(cluster, ondisk.ClusterEOCMin)
}

// Free zeroes a FAT entry, releasing the cluster back to the free pool.
func (m *Manager) Free(cluster uint32) error {
	raw, err := m.readEntry(cluster)
	if err != nil {
		return err
	}
	high := raw & ondisk.ClusterHighMask
	if err := m.writeEntry(cluster, high); err != nil {
		return err
	}
	m.markFree(cluster)
	return nil
}

// ChainLen returns the number of clusters in the chain starting at start
// (0 if start == 0, meaning "no chain allocated yet").
func (m *Manager) ChainLen(start uint32) (int, error) {
	if start == 0 {
		return 0, nil
	}
	n := 1
	cur := start
	for {
		next, ok, err := m.NextOf(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
		cur = next
		if uint32(n) > m.totalEntries {
			return 0, fmt.Errorf("%w: chain from %d exceeds volume cluster count", ErrCorrupt, start)
		}
	}
}

// ChainTail walks to and returns the last cluster of the chain.
func (m *Manager) ChainTail(start uint32) (uint32, error) {
	if start == 0 {
		return 0, fmt.Errorf("fatmgr: empty chain has no tail")
	}
	cur := start
	for {
		next, ok, err := m.NextOf(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return cur, nil
		}
		cur = next
	}
}

// GetClusterAt returns the cluster id at the given zero-based index in
// the chain starting at start.
func (m *Manager) GetClusterAt(start uint32, index int) (uint32, error) {
	cur := start
	for i := 0; i < index; i++ {
		next, ok, err := m.NextOf(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("fatmgr: index %d beyond chain end", index)
		}
		cur = next
	}
	return cur, nil
}

// GetAll returns every cluster id in the chain, in order.
func (m *Manager) GetAll(start uint32) ([]uint32, error) {
	if start == 0 {
		return nil, nil
	}
	out := []uint32{start}
	cur := start
	for {
		next, ok, err := m.NextOf(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, next)
		cur = next
		if uint32(len(out)) > m.totalEntries {
			return nil, fmt.Errorf("%w: chain from %d exceeds volume cluster count", ErrCorrupt, start)
		}
	}
}

// Cursor is a navigable, non-restartable walk over a cluster chain.
// current == 0 is the "before-first" state; Advance reads the FAT to
// learn the next successor. Refresh rebuilds the cursor over a new chain.
type Cursor struct {
	m        *Manager
	mu       sync.RWMutex
	start    uint32
	previous uint32
	current  uint32
}

func (m *Manager) NewCursor(start uint32) *Cursor {
	return &Cursor{m: m, start: start}
}

// Advance moves the cursor to the next cluster, returning ok=false at the
// end of the chain.
func (c *Cursor) Advance() (cluster uint32, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == 0 {
		if c.start == 0 {
			return 0, false, nil
		}
		c.current = c.start
		return c.current, true, nil
	}
	next, ok, err := c.m.NextOf(c.current)
	if err != nil || !ok {
		return 0, false, err
	}
	c.previous = c.current
	c.current = next
	return c.current, true, nil
}

// Current returns the cluster the cursor currently sits on (0 before the
// first Advance).
func (c *Cursor) Current() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Refresh resets the cursor onto a new chain start, discarding any prior
// position; it is not possible to rewind an in-progress walk otherwise.
func (c *Cursor) Refresh(start uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = start
	c.previous = 0
	c.current = 0
}

// AllocateOne returns a free cluster id, preferring the recycle queue and
// falling back to a linear scan of the FAT starting just past hintAfter.
func (m *Manager) AllocateOne(hintAfter uint32) (uint32, error) {
	m.mu.Lock()
	if n := len(m.recycle); n > 0 {
		c := m.recycle[n-1]
		m.recycle = m.recycle[:n-1]
		m.mu.Unlock()
		m.markAllocated(c)
		return c, nil
	}
	m.mu.Unlock()

	start := hintAfter + 1
	if start < ondisk.ClusterFirstValid {
		start = ondisk.ClusterFirstValid
	}
	for pass := 0; pass < 2; pass++ {
		from, to := start, m.totalEntries
		if pass == 1 {
			from, to = ondisk.ClusterFirstValid, start
		}
		for c := from; c < to; c++ {
			if !m.free.Get(int(c - ondisk.ClusterFirstValid)) {
				continue
			}
			m.markAllocated(c)
			return c, nil
		}
	}
	return 0, fmt.Errorf("fatmgr: no free cluster available")
}

// Recycle pushes cluster onto the free-list hint queue. It does not zero
// the FAT entry; callers (typically Free, above) do that.
func (m *Manager) Recycle(cluster uint32) {
	m.mu.Lock()
	m.recycle = append(m.recycle, cluster)
	m.mu.Unlock()
}

// CreateChain allocates n new clusters, chaining them together and
// terminating the last with EOC, returning the first cluster id. If
// tailOf is nonzero, the new chain is appended after it (tailOf's FAT
// entry is updated to point at the first new cluster).
func (m *Manager) CreateChain(n int, tailOf uint32) (first uint32, allocated []uint32, err error) {
	if n <= 0 {
		return 0, nil, fmt.Errorf("fatmgr: CreateChain requires n > 0")
	}
	hint := tailOf
	clusters := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		c, err := m.AllocateOne(hint)
		if err != nil {
			for _, done := range clusters {
				m.Free(done)
			}
			return 0, nil, err
		}
		clusters = append(clusters, c)
		hint = c
	}
	for i, c := range clusters {
		if i+1 < len(clusters) {
			if err := m.SetNext(c, clusters[i+1]); err != nil {
				return 0, nil, err
			}
		} else {
			if err := m.SetEOC(c); err != nil {
				return 0, nil, err
			}
		}
	}
	if tailOf != 0 {
		if err := m.SetNext(tailOf, clusters[0]); err != nil {
			return 0, nil, err
		}
	}
	return clusters[0], clusters, nil
}

// RemoveChain frees every cluster in the chain starting at start, pushing
// each onto the recycle queue.
func (m *Manager) RemoveChain(start uint32) (freed int, err error) {
	if start == 0 {
		return 0, nil
	}
	clusters, err := m.GetAll(start)
	if err != nil {
		return 0, err
	}
	for _, c := range clusters {
		if err := m.Free(c); err != nil {
			return freed, err
		}
		m.Recycle(c)
		freed++
	}
	return freed, nil
}
