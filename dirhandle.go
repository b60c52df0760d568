package fat32

import (
	"github.com/nilfs-go/fat32/internal/ondisk"
)

// Dir is an open handle to a directory.
type Dir struct {
	node
}

// OpenDir opens an existing directory, or the root if name is "" or "/".
func (fs *FS) OpenDir(name string) (*Dir, error) {
	if err := fs.checkMounted(); err != nil {
		return nil, err
	}
	e, parentFirst, _, isRoot, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	if isRoot {
		return &Dir{node: node{fs: fs, name: "/", isDir: true, firstCluster: fs.geom.rootCluster}}, nil
	}
	if !e.sde.IsDir() {
		return nil, ErrNotDirectory
	}
	return &Dir{node: node{
		fs: fs, name: name, isDir: true,
		firstCluster: e.sde.FirstCluster(),
		parentFirst:  parentFirst,
		sdePos:       e.sdePos,
	}}, nil
}

// Close invalidates the handle; directories have no dirty metadata of
// their own beyond what Mkdir/Remove already committed.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}

// ForEachFile invokes callback for every live entry in order, stopping
// and returning its error the first time callback returns a non-nil one.
func (d *Dir) ForEachFile(callback func(*FileInfo) error) error {
	d.mu.Lock()
	first := d.firstCluster
	fs := d.fs
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	entries, err := fs.listDirectory(first)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fi := fileInfoFromEntry(e)
		if err := callback(&fi); err != nil {
			return err
		}
	}
	return nil
}

// Mkdir creates a new, empty subdirectory at name (including its "."
// and ".." self-references), grounded in the teacher's dir.register
// plus the FAT32-specific convention of seeding every new directory's
// first cluster with those two entries.
func (fs *FS) Mkdir(name string) error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	_, parentFirst, leaf, isRoot, err := fs.resolve(name)
	if err == nil {
		return ErrExist
	}
	if err != ErrNotFound {
		return err
	}
	if isRoot {
		return ErrExist
	}

	first, err := fs.growChain(0, 1)
	if err != nil {
		return err
	}
	if err := fs.seedDotEntries(first, parentFirst); err != nil {
		_ = fs.freeChain(first)
		return err
	}
	if _, _, err := fs.createInDirectory(parentFirst, leaf, ondisk.AttrDirEntry, first); err != nil {
		_ = fs.freeChain(first)
		return err
	}
	return nil
}

// seedDotEntries writes the "." (self) and ".." (parent) short entries
// that every FAT32 subdirectory's first cluster begins with. The root
// has neither: it is addressed directly by BPB.RootClus.
func (fs *FS) seedDotEntries(selfCluster, parentCluster uint32) error {
	now := fs.now()
	date, clock, tenth := toFATTime(now)
	mk := func(name string, cluster uint32) ondisk.ShortEntry {
		se := ondisk.ShortEntry{
			Attr: ondisk.AttrDirEntry,
			CrtTimeTenth: tenth, CrtTime: clock, CrtDate: date,
			LstAccDate: date, WrtTime: clock, WrtDate: date,
		}
		copy(se.Name[:], name)
		for i := len(name); i < 8; i++ {
			se.Name[i] = ' '
		}
		se.Ext = [3]byte{' ', ' ', ' '}
		se.SetFirstCluster(cluster)
		return se
	}
	dot := mk(".", selfCluster)
	dotdot := mk("..", parentCluster)
	if err := fs.writeRecords(selfCluster, 0, nil, dot); err != nil {
		return err
	}
	if err := fs.writeRecords(selfCluster, ondisk.EntrySize, nil, dotdot); err != nil {
		return err
	}
	return nil
}

// Remove deletes a file or an empty directory at name.
func (fs *FS) Remove(name string) error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	e, parentFirst, _, isRoot, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if isRoot {
		return ErrAccessDenied
	}
	if e.sde.IsDir() {
		entries, err := fs.listDirectory(e.sde.FirstCluster())
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return ErrNotEmpty
		}
	}
	if err := fs.freeChain(e.sde.FirstCluster()); err != nil {
		return err
	}
	return fs.removeFromDirectory(parentFirst, e)
}
