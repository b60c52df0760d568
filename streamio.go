package fat32

import (
	"fmt"
)

// firstSectorOfCluster returns the first sector index of cluster c.
func (g geometry) firstSectorOfCluster(c uint32) int64 {
	return int64(g.firstDataSector) + int64(c-2)*int64(g.sectorsPerCluster)
}

// clusterIndexOf splits a byte offset within a cluster chain into the
// zero-based index of the cluster it falls in and the byte offset within
// that cluster.
func (g geometry) clusterIndexOf(offset int64) (index uint32, within int64) {
	cs := int64(g.clusterSize)
	return uint32(offset / cs), offset % cs
}

// streamReadAt reads into dst starting at byte offset off within the
// cluster chain beginning at first, stopping early (returning a short
// count, no error) if the chain ends before dst is filled.
func (fs *FS) streamReadAt(first uint32, off int64, dst []byte) (int, error) {
	if len(dst) == 0 || first == 0 {
		return 0, nil
	}
	g := fs.geom
	n := 0
	for n < len(dst) {
		clusterIdx, within := g.clusterIndexOf(off + int64(n))
		cluster, err := fs.fat.GetClusterAt(first, int(clusterIdx))
		if err != nil {
			return n, nil // chain ended short.
		}
		sector := g.firstSectorOfCluster(cluster) + within/int64(g.bytesPerSector)
		sectorOff := int(within % int64(g.bytesPerSector))
		want := len(dst) - n
		if room := int(g.bytesPerSector) - sectorOff; want > room {
			want = room
		}
		h, err := fs.cache.Get(sector)
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrDevice, err)
		}
		err = h.ReadWith(sectorOff, want, func(b []byte) { copy(dst[n:n+want], b) })
		h.Release()
		if err != nil {
			return n, err
		}
		n += want
	}
	return n, nil
}

// streamWriteAt writes src at byte offset off within the chain beginning
// at first. The chain must already be long enough to hold the write;
// callers extend it first via growChain.
func (fs *FS) streamWriteAt(first uint32, off int64, src []byte) (int, error) {
	if len(src) == 0 || first == 0 {
		return 0, nil
	}
	g := fs.geom
	n := 0
	for n < len(src) {
		clusterIdx, within := g.clusterIndexOf(off + int64(n))
		cluster, err := fs.fat.GetClusterAt(first, int(clusterIdx))
		if err != nil {
			return n, fmt.Errorf("%w: write past end of allocated chain", ErrCorrupt)
		}
		sector := g.firstSectorOfCluster(cluster) + within/int64(g.bytesPerSector)
		sectorOff := int(within % int64(g.bytesPerSector))
		want := len(src) - n
		if room := int(g.bytesPerSector) - sectorOff; want > room {
			want = room
		}
		h, err := fs.cache.Get(sector)
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrDevice, err)
		}
		err = h.ModifyWith(sectorOff, want, func(b []byte) { copy(b, src[n:n+want]) })
		h.Release()
		if err != nil {
			return n, err
		}
		n += want
	}
	return n, nil
}

// zeroCluster overwrites an entire cluster with zero bytes, used when
// growing a directory or a sparse file extension.
func (fs *FS) zeroCluster(cluster uint32) error {
	g := fs.geom
	var zero [blockcacheSectorSize]byte
	start := g.firstSectorOfCluster(cluster)
	for i := 0; i < int(g.sectorsPerCluster); i++ {
		h, err := fs.cache.Get(start + int64(i))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDevice, err)
		}
		err = h.ModifyWith(0, len(zero), func(b []byte) { copy(b, zero[:]) })
		h.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// growChain appends clusters to a chain until it holds at least
// minClusters clusters total, returning the (possibly unchanged) first
// cluster (allocating one if the chain was previously empty).
func (fs *FS) growChain(first uint32, minClusters int) (uint32, error) {
	if first != 0 {
		have, err := fs.fat.ChainLen(first)
		if err != nil {
			return 0, err
		}
		if have >= minClusters {
			return first, nil
		}
		tail, err := fs.fat.ChainTail(first)
		if err != nil {
			return 0, err
		}
		_, allocated, err := fs.fat.CreateChain(minClusters-have, tail)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrOutOfSpace, err)
		}
		if err := fs.adjustFreeCount(-int32(len(allocated))); err != nil {
			return 0, err
		}
		for _, c := range allocated {
			if err := fs.zeroCluster(c); err != nil {
				return 0, err
			}
		}
		return first, nil
	}
	newFirst, allocated, err := fs.fat.CreateChain(minClusters, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfSpace, err)
	}
	if err := fs.adjustFreeCount(-int32(len(allocated))); err != nil {
		return 0, err
	}
	for _, c := range allocated {
		if err := fs.zeroCluster(c); err != nil {
			return 0, err
		}
	}
	return newFirst, nil
}

// freeChain releases an entire cluster chain back to the free pool.
func (fs *FS) freeChain(first uint32) error {
	if first == 0 {
		return nil
	}
	freed, err := fs.fat.RemoveChain(first)
	if err != nil {
		return err
	}
	return fs.adjustFreeCount(int32(freed))
}

const blockcacheSectorSize = 512
