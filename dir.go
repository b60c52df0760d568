package fat32

import (
	"fmt"
	"strings"

	"github.com/nilfs-go/fat32/internal/ondisk"
)

// position locates one 32-byte record within a directory stream as a
// byte offset measured from the start of the directory's own cluster
// chain. It is resolved to a concrete (cluster, offset-in-cluster) pair
// only by streamReadAt/streamWriteAt, so a directory growing underneath
// an open handle never invalidates positions recorded earlier.
type position int64

// dirEntry is one resolved record: its short entry, its composed
// display name (long name if present, else the 8.3 rendering), and the
// positions of every record (LDEs then the SDE) that make it up.
type dirEntry struct {
	sde       ondisk.ShortEntry
	name      string
	sdePos    position
	ldePos    []position
	totalRecs int
}

// dirScanner walks a directory stream (root or subdirectory) 32 bytes at
// a time, grounded in the teacher's dir.read/dir.find forward-scan
// (fat.go's dir.find), generalized to operate on byte offsets into the
// chain rather than the teacher's single 512-byte window.
type dirScanner struct {
	fs    *FS
	first uint32 // 0 for an empty/unallocated directory
	pos   int64
}

func (fs *FS) newDirScanner(first uint32) *dirScanner {
	return &dirScanner{fs: fs, first: first}
}

// next reads the next record, accumulating any long-name groups that
// precede a short entry. Returns ok=false once a free (end-of-table)
// entry is reached.
func (ds *dirScanner) next() (entry dirEntry, ok bool, err error) {
	var lde []position
	var lgroups [][13]uint16
	var expectOrd int
	var checksum uint8
	for {
		var raw [ondisk.EntrySize]byte
		n, err := ds.fs.streamReadAt(ds.first, ds.pos, raw[:])
		if err != nil {
			return dirEntry{}, false, err
		}
		if n < ondisk.EntrySize {
			return dirEntry{}, false, nil // chain exhausted, no more records
		}
		recPos := position(ds.pos)
		ds.pos += ondisk.EntrySize

		if raw[0] == ondisk.NameFree {
			return dirEntry{}, false, nil
		}
		if raw[0] == ondisk.NameDeleted {
			lde = nil
			lgroups = nil
			expectOrd = 0
			continue
		}
		if raw[11]&ondisk.AttrLongName == ondisk.AttrLongName {
			var le ondisk.LongEntry
			if err := le.Decode(raw[:]); err != nil {
				return dirEntry{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			if le.IsLast() {
				lgroups = make([][13]uint16, le.Order())
				lde = make([]position, le.Order())
				expectOrd = le.Order()
				checksum = le.Chksum
			}
			ord := le.Order()
			if expectOrd == 0 || ord != expectOrd || ord < 1 || ord > len(lgroups) || le.Chksum != checksum {
				// Orphaned/out-of-sequence LFN part; resync on the next SDE.
				lde = nil
				lgroups = nil
				expectOrd = 0
				continue
			}
			lgroups[ord-1] = le.Group()
			lde[ord-1] = recPos
			expectOrd--
			continue
		}

		var se ondisk.ShortEntry
		if err := se.Decode(raw[:]); err != nil {
			return dirEntry{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		name := shortEntryDisplayName(se.RawName())
		if expectOrd == 0 && len(lgroups) > 0 && ondisk.ShortNameChecksum(se.RawName()) == checksum {
			name = joinLongName(lgroups)
		}
		return dirEntry{sde: se, name: name, sdePos: recPos, ldePos: lde, totalRecs: len(lde) + 1}, true, nil
	}
}

// shortEntryDisplayName renders an 11-byte raw short name as "BASE.EXT"
// (or just "BASE" with no extension), trimming trailing space padding.
func shortEntryDisplayName(raw [11]byte) string {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if base == "" {
		return ""
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// findInDirectory scans first for name (case-insensitively), returning
// ErrNotFound if absent.
func (fs *FS) findInDirectory(first uint32, name string) (dirEntry, error) {
	target := upperCaser.String(name)
	ds := fs.newDirScanner(first)
	for {
		e, ok, err := ds.next()
		if err != nil {
			return dirEntry{}, err
		}
		if !ok {
			return dirEntry{}, ErrNotFound
		}
		if upperCaser.String(e.name) == target {
			return e, nil
		}
	}
}

// listDirectory returns every live entry in first, skipping the "." and
// ".." self-references.
func (fs *FS) listDirectory(first uint32) ([]dirEntry, error) {
	var out []dirEntry
	ds := fs.newDirScanner(first)
	for {
		e, ok, err := ds.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if e.name == "." || e.name == ".." {
			continue
		}
		out = append(out, e)
	}
}

// allocateRecordRun finds (or creates, by growing the chain) nent
// contiguous free 32-byte slots in first's stream, returning the byte
// offset of the first slot and the directory's (possibly newly
// allocated) first cluster.
func (fs *FS) allocateRecordRun(first uint32, nent int) (uint32, position, error) {
	const entSize = ondisk.EntrySize
	if first == 0 {
		var err error
		first, err = fs.growChain(0, 1)
		if err != nil {
			return 0, 0, err
		}
	}
	run := 0
	runStart := int64(0)
	var pos int64
	for {
		var raw [entSize]byte
		n, err := fs.streamReadAt(first, pos, raw[:])
		if err != nil {
			return 0, 0, err
		}
		if n < entSize {
			// Ran off the end of the allocated chain: grow by one cluster
			// and keep counting free slots into the fresh (zeroed) space.
			haveClusters, err := fs.fat.ChainLen(first)
			if err != nil {
				return 0, 0, err
			}
			if _, err := fs.growChain(first, haveClusters+1); err != nil {
				return 0, 0, err
			}
			continue
		}
		if raw[0] == ondisk.NameFree || raw[0] == ondisk.NameDeleted {
			if run == 0 {
				runStart = pos
			}
			run++
			if run == nent {
				return first, position(runStart), nil
			}
		} else {
			run = 0
		}
		pos += entSize
	}
}

// writeRecords writes the prepared LDE+SDE record set starting at
// runStart within first's stream.
func (fs *FS) writeRecords(first uint32, runStart position, ldes []ondisk.LongEntry, sde ondisk.ShortEntry) error {
	off := int64(runStart)
	for _, le := range ldes {
		raw, err := le.Encode()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if _, err := fs.streamWriteAt(first, off, raw); err != nil {
			return err
		}
		off += ondisk.EntrySize
	}
	raw, err := sde.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := fs.streamWriteAt(first, off, raw); err != nil {
		return err
	}
	return nil
}

// createInDirectory synthesizes and writes a new directory record set
// for name inside parentFirst, returning the written short entry and the
// byte offset of its SDE (for use as sdePos in a handle).
func (fs *FS) createInDirectory(parentFirst uint32, name string, attr uint8, firstCluster uint32) (ondisk.ShortEntry, position, error) {
	longName, err := validateLongName(name)
	if err != nil {
		return ondisk.ShortEntry{}, 0, err
	}
	if _, err := fs.findInDirectory(parentFirst, longName); err == nil {
		return ondisk.ShortEntry{}, 0, ErrExist
	} else if err != ErrNotFound {
		return ondisk.ShortEntry{}, 0, err
	}

	raw, fitsShort := basename8_3(longName)
	needLFN := !fitsShort
	if !fitsShort {
		raw = fs.synthesizeUniqueShortName(parentFirst, longName)
	}

	var ldes []ondisk.LongEntry
	if needLFN {
		groups := splitLongName(longName)
		checksum := ondisk.ShortNameChecksum(raw)
		for i, g := range groups {
			var le ondisk.LongEntry
			ord := uint8(i + 1)
			if i == len(groups)-1 {
				ord |= ondisk.LastLongEntry
			}
			le.Ord = ord
			le.Attr = ondisk.AttrLongName
			le.Chksum = checksum
			le.SetGroup(g)
			ldes = append(ldes, le)
		}
		// Physical write order is last-group-first (highest order first).
		for i, j := 0, len(ldes)-1; i < j; i, j = i+1, j-1 {
			ldes[i], ldes[j] = ldes[j], ldes[i]
		}
	}

	now := fs.now()
	fatDate, fatTime, fatTenth := toFATTime(now)
	sde := ondisk.ShortEntry{
		Name:         [8]byte{}, Ext: [3]byte{},
		Attr:         attr,
		CrtTimeTenth: fatTenth,
		CrtTime:      fatTime,
		CrtDate:      fatDate,
		LstAccDate:   fatDate,
		WrtTime:      fatTime,
		WrtDate:      fatDate,
	}
	copy(sde.Name[:], raw[0:8])
	copy(sde.Ext[:], raw[8:11])
	sde.SetFirstCluster(firstCluster)

	nent := len(ldes) + 1
	first, runStart, err := fs.allocateRecordRun(parentFirst, nent)
	if err != nil {
		return ondisk.ShortEntry{}, 0, err
	}
	if err := fs.writeRecords(first, runStart, ldes, sde); err != nil {
		return ondisk.ShortEntry{}, 0, err
	}
	sdePos := runStart + position(len(ldes)*ondisk.EntrySize)
	return sde, sdePos, nil
}

// synthesizeUniqueShortName applies the ~1..~N collision search, falling
// back to a checksum-derived tag beyond maxShortNameCollisionAttempts.
func (fs *FS) synthesizeUniqueShortName(parentFirst uint32, longName string) [11]byte {
	for n := 1; n <= maxShortNameCollisionAttempts; n++ {
		candidate := synthesizeShortName(longName, fmt.Sprintf("~%d", n))
		if !fs.shortNameTaken(parentFirst, candidate) {
			return candidate
		}
	}
	return synthesizeShortName(longName, checksumTag(longName))
}

func (fs *FS) shortNameTaken(parentFirst uint32, raw [11]byte) bool {
	ds := fs.newDirScanner(parentFirst)
	for {
		e, ok, err := ds.next()
		if err != nil || !ok {
			return false
		}
		if e.sde.RawName() == raw {
			return true
		}
	}
}

// removeFromDirectory marks every record of a found entry (its LDEs then
// its SDE) deleted.
func (fs *FS) removeFromDirectory(first uint32, e dirEntry) error {
	mark := func(pos position) error {
		var b [1]byte
		b[0] = ondisk.NameDeleted
		_, err := fs.streamWriteAt(first, int64(pos), b[:])
		return err
	}
	for _, p := range e.ldePos {
		if err := mark(p); err != nil {
			return err
		}
	}
	return mark(e.sdePos)
}
