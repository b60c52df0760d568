package fat32

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nilfs-go/fat32/internal/ondisk"
)

// splitPath breaks a slash-separated path into non-empty components.
func splitPath(name string) []string {
	parts := strings.Split(name, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// resolve walks name from the root directory, returning the matched
// entry, the first cluster of the directory that contains it, and the
// leaf path component (for callers that go on to create or replace it).
// When only the leaf is missing, the error is ErrNotFound and the parent
// cluster and leaf are still returned. name == "" or "/" resolves the
// root itself (isRoot=true, since the root has no SDE of its own).
func (fs *FS) resolve(name string) (e dirEntry, parentFirst uint32, leaf string, isRoot bool, err error) {
	parts := splitPath(name)
	if len(parts) == 0 {
		return dirEntry{}, 0, "", true, nil
	}
	cur := fs.geom.rootCluster
	for i, part := range parts {
		found, err := fs.findInDirectory(cur, part)
		if err != nil {
			if err == ErrNotFound && i == len(parts)-1 {
				return dirEntry{}, cur, part, false, err
			}
			return dirEntry{}, 0, "", false, err
		}
		if i == len(parts)-1 {
			return found, cur, part, false, nil
		}
		if !found.sde.IsDir() {
			return dirEntry{}, 0, "", false, ErrNotDirectory
		}
		cur = found.sde.FirstCluster()
	}
	panic("unreachable")
}

// node is the shared identity behind a File and a Dir handle.
type node struct {
	mu           sync.Mutex
	fs           *FS
	name         string
	isDir        bool
	firstCluster uint32
	size         uint32
	parentFirst  uint32
	sdePos       position
	closed       bool
}

func (n *node) checkOpen() error {
	if n.closed {
		return ErrClosed
	}
	return nil
}

// syncDirEntry writes the node's current size/first-cluster/mtime back
// to its SDE in the parent directory, mirroring the teacher's f_sync
// updating the directory entry on close/flush.
func (n *node) syncDirEntry() error {
	if n.sdePos == 0 && n.parentFirst == 0 && n.name == "" {
		return nil // root has no SDE of its own.
	}
	var raw [ondisk.EntrySize]byte
	if _, err := n.fs.streamReadAt(n.parentFirst, int64(n.sdePos), raw[:]); err != nil {
		return err
	}
	var se ondisk.ShortEntry
	if err := se.Decode(raw[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	se.SetFirstCluster(n.firstCluster)
	se.FileSize = n.size
	now := n.fs.now()
	date, clock, _ := toFATTime(now)
	se.WrtDate, se.WrtTime = date, clock
	se.LstAccDate = date
	out, err := se.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	_, err = n.fs.streamWriteAt(n.parentFirst, int64(n.sdePos), out)
	return err
}

// File is an open handle to a regular file's byte stream.
type File struct {
	node
	mode   Mode
	offset int64
	dirty  bool
}

// OpenFile opens or creates name per mode (ModeRead/ModeWrite/ModeCreate/
// ModeCreateAlways/ModeOpenExisting/ModeAppend, combinable as ModeRW).
func (fs *FS) OpenFile(name string, mode Mode) (*File, error) {
	if err := fs.checkMounted(); err != nil {
		return nil, err
	}
	e, parentFirst, leaf, isRoot, err := fs.resolve(name)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	exists := err == nil
	truncated := false
	if isRoot {
		return nil, ErrIsDirectory
	}
	if exists && e.sde.IsDir() {
		return nil, ErrIsDirectory
	}

	if !exists {
		if mode&(ModeCreate|ModeCreateAlways) == 0 {
			return nil, ErrNotFound
		}
		se, pos, err := fs.createInDirectory(parentFirst, leaf, ondisk.AttrArchive, 0)
		if err != nil {
			return nil, err
		}
		e = dirEntry{sde: se, sdePos: pos}
	} else if mode&ModeCreateAlways != 0 {
		if err := fs.freeChain(e.sde.FirstCluster()); err != nil {
			return nil, err
		}
		e.sde.SetFirstCluster(0)
		e.sde.FileSize = 0
		truncated = true
	} else if mode&ModeOpenExisting == 0 && mode&(ModeCreate|ModeCreateAlways) != 0 {
		return nil, ErrExist
	}

	f := &File{
		node: node{
			fs:           fs,
			name:         name,
			firstCluster: e.sde.FirstCluster(),
			size:         e.sde.FileSize,
			parentFirst:  parentFirst,
			sdePos:       e.sdePos,
		},
		mode:  mode,
		dirty: truncated,
	}
	if mode&ModeAppend != 0 {
		f.offset = int64(f.size)
	}
	return f, nil
}

// Read reads up to len(p) bytes at the current offset, advancing it.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.mode&ModeRead == 0 {
		return 0, ErrAccessDenied
	}
	remain := int64(f.size) - f.offset
	if remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := f.fs.streamReadAt(f.firstCluster, f.offset, p)
	f.offset += int64(n)
	return n, err
}

// Write writes p at the current offset, growing the file as needed, and
// advances the offset.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.mode&ModeWrite == 0 {
		return 0, ErrAccessDenied
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := f.offset + int64(len(p))
	neededClusters := 0
	if end > 0 {
		cs := int64(f.fs.geom.clusterSize)
		neededClusters = int((end + cs - 1) / cs)
	}
	first, err := f.fs.growChain(f.firstCluster, neededClusters)
	if err != nil {
		return 0, err
	}
	f.firstCluster = first
	n, err := f.fs.streamWriteAt(f.firstCluster, f.offset, p)
	f.offset += int64(n)
	if uint32(end) > f.size && end <= int64(^uint32(0)) {
		f.size = uint32(end)
	}
	f.dirty = true
	return n, err
}

// Seek repositions the offset; whence follows io.Seeker conventions
// (0=start, 1=current, 2=end).
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = f.offset
	case 2:
		base = int64(f.size)
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ErrInvalidName, whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("%w: negative seek position", ErrOutOfBounds)
	}
	f.offset = pos
	return pos, nil
}

// Truncate resizes the file to size, freeing or growing its cluster
// chain as needed.
func (f *File) Truncate(size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.mode&ModeWrite == 0 {
		return ErrAccessDenied
	}
	cs := uint32(f.fs.geom.clusterSize)
	neededClusters := 0
	if size > 0 {
		neededClusters = int((size + cs - 1) / cs)
	}
	if neededClusters == 0 {
		if err := f.fs.freeChain(f.firstCluster); err != nil {
			return err
		}
		f.firstCluster = 0
	} else {
		have, err := f.fs.fat.ChainLen(f.firstCluster)
		if err != nil && f.firstCluster != 0 {
			return err
		}
		if f.firstCluster == 0 || have < neededClusters {
			first, err := f.fs.growChain(f.firstCluster, neededClusters)
			if err != nil {
				return err
			}
			f.firstCluster = first
		} else if have > neededClusters {
			tailToKeep, err := f.fs.fat.GetClusterAt(f.firstCluster, neededClusters-1)
			if err != nil {
				return err
			}
			next, ok, err := f.fs.fat.NextOf(tailToKeep)
			if err != nil {
				return err
			}
			if ok {
				if err := f.fs.freeChain(next); err != nil {
					return err
				}
				if err := f.fs.fat.SetEOC(tailToKeep); err != nil {
					return err
				}
			}
		}
	}
	f.size = size
	f.dirty = true
	return nil
}

// Sync flushes the node's directory entry (size, first cluster, mtime).
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}
	if err := f.syncDirEntry(); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Close flushes pending metadata and invalidates the handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	if f.dirty {
		if err := f.syncDirEntry(); err != nil {
			return err
		}
	}
	return nil
}

// Size reports the file's current logical length.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.size)
}
