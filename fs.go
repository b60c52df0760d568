// Package fat32 implements a read/write FAT32 filesystem over an abstract
// block device: cluster-chain allocation, a write-back LRU block cache,
// short/long directory records, and a virtual-file handle abstraction.
//
// Logging follows the teacher's (github.com/soypat/fat) convention of an
// *slog.Logger field with small level-gated helper methods, rather than a
// global logger; a nil logger discards everything.
package fat32

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nilfs-go/fat32/internal/blockcache"
	"github.com/nilfs-go/fat32/internal/fatmgr"
	"github.com/nilfs-go/fat32/internal/ondisk"
)

// geometry is the immutable, once-parsed volume layout.
type geometry struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	fatSize           uint32
	rootCluster       uint32
	fsInfoSector      uint16
	totalSectors      uint32

	firstDataSector  uint32
	clusterSize      uint32
	dataSectorCount  uint32
	dataClusterCount uint32
	fat1Sector       int64
	fat2Sector       int64
}

func geometryFromBPB(b *ondisk.BootSector) (geometry, error) {
	if b.BytsPerSec != blockcache.SectorSize {
		return geometry{}, fmt.Errorf("%w: unsupported sector size %d", ErrCorrupt, b.BytsPerSec)
	}
	if !b.IsFAT32() {
		return geometry{}, fmt.Errorf("%w: volume is not FAT32", ErrCorrupt)
	}
	if b.NumFATs != 2 {
		return geometry{}, fmt.Errorf("%w: expected 2 FATs, got %d", ErrCorrupt, b.NumFATs)
	}
	if b.SecPerClus == 0 || (b.SecPerClus&(b.SecPerClus-1)) != 0 {
		return geometry{}, fmt.Errorf("%w: sectors-per-cluster must be a power of two, got %d", ErrCorrupt, b.SecPerClus)
	}

	g := geometry{
		bytesPerSector:    b.BytsPerSec,
		sectorsPerCluster: b.SecPerClus,
		reservedSectors:   b.RsvdSecCnt,
		numFATs:           b.NumFATs,
		fatSize:           b.FATSz32,
		rootCluster:       b.RootClus,
		fsInfoSector:      b.FSInfoSec,
		totalSectors:      b.TotSec32,
	}
	g.firstDataSector = uint32(g.reservedSectors) + uint32(g.numFATs)*g.fatSize
	g.clusterSize = uint32(g.sectorsPerCluster) * uint32(g.bytesPerSector)
	if g.totalSectors < g.firstDataSector {
		return geometry{}, fmt.Errorf("%w: total sectors smaller than reserved+FAT region", ErrCorrupt)
	}
	g.dataSectorCount = g.totalSectors - g.firstDataSector
	g.dataClusterCount = g.dataSectorCount / uint32(g.sectorsPerCluster)
	g.fat1Sector = int64(g.reservedSectors)
	g.fat2Sector = g.fat1Sector + int64(g.fatSize)
	return g, nil
}

// clusterByteOffset returns the byte offset from the start of the volume
// of the first byte of cluster id c (c >= 2).
func (g geometry) clusterByteOffset(c uint32) int64 {
	return (int64(g.firstDataSector) + int64(c-2)*int64(g.sectorsPerCluster)) * int64(g.bytesPerSector)
}

// FS is a mounted FAT32 filesystem. It owns its block cache and FAT
// manager (not package-level singletons), so multiple volumes can be
// mounted concurrently in one process. Zero value is not mounted; call
// Mount or Format first.
type FS struct {
	// mu is the filesystem-level writer lock from the lock-order
	// discipline filesystem > FAT > block-cache > entry. It guards
	// geometry-adjacent mutable state (free count, next-free hint) and
	// must never be held while calling into the FAT manager/cache.
	mu sync.RWMutex

	device BlockDevice
	cache  *blockcache.Cache
	fat    *fatmgr.Manager
	geom   geometry

	freeCount uint32
	nextFree  uint32

	rootSDE ondisk.ShortEntry

	// Logger is the teacher's slog-based tracing idiom: nil discards.
	Logger *slog.Logger

	// Clock resolves the Open Question on timestamp policy: populate
	// SDE timestamps from this seam, defaulting to time.Now, overridable
	// in tests for determinism.
	Clock func() time.Time

	mounted bool
}

func (fs *FS) now() time.Time {
	if fs.Clock != nil {
		return fs.Clock()
	}
	return time.Now()
}

func (fs *FS) trace(msg string, args ...any) {
	if fs.Logger != nil {
		fs.Logger.Debug(msg, args...)
	}
}
func (fs *FS) warn(msg string, args ...any) {
	if fs.Logger != nil {
		fs.Logger.Warn(msg, args...)
	}
}
func (fs *FS) logerror(msg string, args ...any) {
	if fs.Logger != nil {
		fs.Logger.Error(msg, args...)
	}
}

// Mount parses the boot sector and FSInfo sector of device and prepares
// the filesystem for use. blockSize must be 512, the fixed FAT32 cache
// line; device need not natively use 512-byte blocks if wrapped through
// an adapter that presents them that way.
func (fs *FS) Mount(device BlockDevice, blockSize int, mode Mode) error {
	if blockSize != blockcache.SectorSize {
		return fmt.Errorf("%w: block size must be %d, got %d", ErrCorrupt, blockcache.SectorSize, blockSize)
	}
	fs.device = device
	fs.cache = blockcache.New(device)

	var raw [ondisk.BPBSize]byte
	if _, err := device.ReadBlocks(raw[:], 0); err != nil {
		return fmt.Errorf("%w: reading boot sector: %v", ErrDevice, err)
	}
	var bpb ondisk.BootSector
	if err := bpb.Decode(raw[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	geom, err := geometryFromBPB(&bpb)
	if err != nil {
		return err
	}
	fs.geom = geom
	fs.fat = fatmgr.New(fs.cache, geom.fat1Sector, geom.dataClusterCount+ondisk.ClusterFirstValid)

	var fsinfoRaw [ondisk.FSInfoSize]byte
	if _, err := device.ReadBlocks(fsinfoRaw[:], int64(geom.fsInfoSector)); err != nil {
		return fmt.Errorf("%w: reading FSInfo sector: %v", ErrDevice, err)
	}
	var fsinfo ondisk.FSInfo
	if err := fsinfo.Decode(fsinfoRaw[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !fsinfo.Valid() {
		return fmt.Errorf("%w: FSInfo signature mismatch", ErrCorrupt)
	}
	fs.freeCount = fsinfo.FreeCount
	fs.nextFree = fsinfo.NextFree

	fs.rootSDE = ondisk.ShortEntry{Attr: ondisk.AttrDirEntry}
	fs.rootSDE.SetFirstCluster(geom.rootCluster)

	fs.mounted = true
	fs.trace("mounted FAT32 volume", "root_cluster", geom.rootCluster, "data_clusters", geom.dataClusterCount, "free_count", fs.freeCount)
	return nil
}

// checkMounted reports ErrNotMounted if the filesystem has not completed
// Mount/Format yet. It takes fs.mu only for the duration of the read, per
// the lock-order discipline: fs.mu must never be held across a call into
// the FAT manager or block cache.
func (fs *FS) checkMounted() error {
	fs.mu.RLock()
	mounted := fs.mounted
	fs.mu.RUnlock()
	if !mounted {
		return ErrNotMounted
	}
	return nil
}

// DataSectorCount returns the number of sectors in the data region
// (total sectors minus reserved and FAT regions), exposed because it is
// the quantity exercised directly by the mkfs sizing scenario.
func (fs *FS) DataSectorCount() uint32 { return fs.geom.dataSectorCount }

// DataClusterCount returns the number of allocatable clusters.
func (fs *FS) DataClusterCount() uint32 { return fs.geom.dataClusterCount }

// FreeClusterCount returns the current free-cluster count as mirrored in
// memory (and kept in lockstep with the on-disk FSInfo sector).
func (fs *FS) FreeClusterCount() uint32 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.freeCount
}

// adjustFreeCount updates the in-memory free-cluster counter and writes
// it through to the cached FSInfo sector; the two must change together
// per the spec's shared-resource discipline.
func (fs *FS) adjustFreeCount(delta int32) error {
	fs.mu.Lock()
	if delta < 0 && uint32(-delta) > fs.freeCount {
		fs.freeCount = 0
	} else {
		fs.freeCount = uint32(int64(fs.freeCount) + int64(delta))
	}
	newCount := fs.freeCount
	fs.mu.Unlock()
	return fs.writeFSInfoFreeCount(newCount)
}

func (fs *FS) writeFSInfoFreeCount(count uint32) error {
	h, err := fs.cache.Get(int64(fs.geom.fsInfoSector))
	if err != nil {
		return err
	}
	defer h.Release()
	return h.ModifyWith(488, 4, func(b []byte) {
		b[0] = byte(count)
		b[1] = byte(count >> 8)
		b[2] = byte(count >> 16)
		b[3] = byte(count >> 24)
	})
}

// EvictRefusals reports how many cache insertions had to fall back to
// uncached device I/O because every resident sector was pinned.
func (fs *FS) EvictRefusals() uint64 {
	return fs.cache.EvictRefusals()
}

// Sync flushes every dirty cache entry to the device without dropping
// them from the cache.
func (fs *FS) Sync() error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	return fs.cache.Sync()
}

// SyncAll flushes every dirty entry and drops the entire cache.
func (fs *FS) SyncAll() error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	return fs.cache.SyncAll()
}
