package fat32

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/nilfs-go/fat32/internal/ondisk"
)

// CheckReport summarizes a read-only consistency walk of the volume.
type CheckReport struct {
	ClustersVisited  int
	CrossLinked      []uint32
	OrphanChains     []uint32
	FreeCountOnDisk  uint32
	FreeCountCounted uint32
}

// Check performs the read-only consistency walk from SPEC_FULL.md §4.5:
// it walks every live file/directory's cluster chain from the root,
// recording which clusters are reachable, then separately scans the FAT
// for allocated-but-unreached ("orphan") chains, and cross-checks the
// FSInfo free-cluster count against an independent count of zero FAT
// entries. Every violation found is aggregated (not short-circuited) via
// go-multierror, grounded in dargueta-disko's error-aggregation idiom
// for its own consistency-check passes.
func (fs *FS) Check() (CheckReport, error) {
	if err := fs.checkMounted(); err != nil {
		return CheckReport{}, err
	}

	owner := make(map[uint32]uint32) // cluster -> chain-head cluster that claims it
	var merr *multierror.Error
	var crossLinked []uint32

	claim := func(first uint32, context string) {
		chain, err := fs.fat.GetAll(first)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: walking chain at cluster %d: %w", context, first, err))
			return
		}
		for _, c := range chain {
			if prior, seen := owner[c]; seen && prior != first {
				crossLinked = append(crossLinked, c)
				merr = multierror.Append(merr, fmt.Errorf("%w: cluster %d claimed by both chain %d and chain %d", ErrCorrupt, c, prior, first))
				continue
			}
			owner[c] = first
		}
	}

	claim(fs.geom.rootCluster, "root directory")
	var walk func(dirFirst uint32, path string)
	walk = func(dirFirst uint32, path string) {
		entries, err := fs.listDirectory(dirFirst)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("listing %s: %w", path, err))
			return
		}
		for _, e := range entries {
			first := e.sde.FirstCluster()
			if first != 0 {
				claim(first, path+"/"+e.name)
			}
			if e.sde.IsDir() && first != 0 {
				walk(first, path+"/"+e.name)
			}
		}
	}
	walk(fs.geom.rootCluster, "")

	var freeCounted uint32
	var orphans []uint32
	for c := uint32(ondisk.ClusterFirstValid); c < fs.geom.dataClusterCount+ondisk.ClusterFirstValid; c++ {
		if _, claimed := owner[c]; claimed {
			continue
		}
		isFree, err := fs.clusterIsFree(c)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("reading FAT entry %d: %w", c, err))
			continue
		}
		if isFree {
			freeCounted++
		} else {
			orphans = append(orphans, c)
		}
	}
	if len(orphans) > 0 {
		merr = multierror.Append(merr, fmt.Errorf("%w: %d allocated clusters are unreachable from any directory entry", ErrCorrupt, len(orphans)))
	}

	report := CheckReport{
		ClustersVisited:  len(owner),
		CrossLinked:      crossLinked,
		OrphanChains:     orphans,
		FreeCountOnDisk:  fs.FreeClusterCount(),
		FreeCountCounted: freeCounted,
	}
	if report.FreeCountOnDisk != report.FreeCountCounted {
		merr = multierror.Append(merr, fmt.Errorf("%w: FSInfo free count %d disagrees with counted %d", ErrCorrupt, report.FreeCountOnDisk, report.FreeCountCounted))
	}
	fs.trace("check complete",
		"clusters_visited", report.ClustersVisited,
		"data_region_size", humanize.Bytes(uint64(fs.geom.dataClusterCount)*uint64(fs.geom.clusterSize)))
	return report, merr.ErrorOrNil()
}

// clusterIsFree reports whether a data cluster's FAT entry is the
// zero/free sentinel, the independent ground truth Check() cross-checks
// the in-memory free counter against.
func (fs *FS) clusterIsFree(c uint32) (bool, error) {
	return fs.fatEntryRaw(c) == ondisk.ClusterFree, nil
}

func (fs *FS) fatEntryRaw(c uint32) uint32 {
	sector, offset := fatEntryLocation(fs.geom.fat1Sector, c)
	h, err := fs.cache.Get(sector)
	if err != nil {
		return ondisk.ClusterBad
	}
	defer h.Release()
	var v uint32
	h.ReadWith(offset, 4, func(b []byte) {
		v = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	})
	return v & ondisk.ClusterEntryMask
}

func fatEntryLocation(fat1Sector int64, cluster uint32) (sector int64, offset int) {
	sector = fat1Sector + int64(cluster)*4/blockcacheSectorSize
	offset = int(int64(cluster)*4) % blockcacheSectorSize
	return sector, offset
}
