package fat32

import (
	"strings"
	"time"
)

// FileInfo describes one directory entry, grounded in the teacher's
// exported.go FileInfo (fsize/fdate/ftime/fattrib/altname/fname), with
// the two name representations split into their own fields and times
// decoded rather than left as packed FAT fields.
type FileInfo struct {
	Name          string
	AlternateName string
	Size          int64
	ModTime       time.Time
	IsDir         bool
	ReadOnly      bool
	Hidden        bool
	System        bool
}

// fileInfoFromEntry builds the listing view of an entry. An entry with no
// long-name records preceding it is listed under its 8.3 name lowercased;
// AlternateName always carries the uppercase 8.3 form.
func fileInfoFromEntry(e dirEntry) FileInfo {
	alt := shortEntryDisplayName(e.sde.RawName())
	name := e.name
	if name == "" || len(e.ldePos) == 0 {
		name = strings.ToLower(alt)
	}
	return FileInfo{
		Name:          name,
		AlternateName: alt,
		Size:          int64(e.sde.FileSize),
		ModTime:       fromFATTime(e.sde.WrtDate, e.sde.WrtTime, 0),
		IsDir:         e.sde.IsDir(),
		ReadOnly:      e.sde.Attr&0x01 != 0,
		Hidden:        e.sde.Attr&0x02 != 0,
		System:        e.sde.Attr&0x04 != 0,
	}
}

// Stat returns the file's current metadata as a FileInfo.
func (f *File) Stat() (FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:    f.name,
		Size:    int64(f.size),
		ModTime: f.fs.now(),
		IsDir:   false,
	}, nil
}

// Stat returns the directory's current metadata as a FileInfo. Size
// reports the directory's allocated cluster-chain bytes: unlike a file's
// SDE, a directory's on-disk FileSize field is always 0, so the only
// meaningful "size" is how much space its chain actually occupies.
func (d *Dir) Stat() (FileInfo, error) {
	d.mu.Lock()
	if err := d.checkOpen(); err != nil {
		d.mu.Unlock()
		return FileInfo{}, err
	}
	first := d.firstCluster
	fs := d.fs
	name := d.name
	d.mu.Unlock()

	n, err := fs.fat.ChainLen(first)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:  name,
		Size:  int64(n) * int64(fs.geom.clusterSize),
		IsDir: true,
	}, nil
}
