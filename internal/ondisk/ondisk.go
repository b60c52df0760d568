// Package ondisk decodes and encodes the fixed-layout records that make up
// a FAT32 volume: the boot sector (BPB), the FSInfo sector, and the two
// flavors of 32-byte directory record (short and long).
//
// Every record here is decoded from a byte slice copied out of the block
// cache, never from a reinterpreted pointer into cache memory: packed
// on-disk layouts are handled with github.com/go-restruct/restruct, which
// walks the struct field by field the way encoding/binary does, just with
// less boilerplate for the wide records (BPB, FSInfo).
package ondisk

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
)

const (
	SectorSize = 512
	BPBSize    = 512
	FSInfoSize = 512
	EntrySize  = 32

	FSInfoLeadSig  = 0x41615252
	FSInfoStrucSig = 0x61417272
	FSInfoTrailSig = 0xAA550000
	BootSig        = 0xAA55

	// AttrLongName is the attribute byte combination marking a record as a
	// long-name entry rather than a short directory entry.
	AttrLongName = 0x0F

	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolumeID = 0x08
	AttrDirEntry = 0x10
	AttrArchive  = 0x20

	// LastLongEntry is OR'd into the order byte of the logically-last
	// (physically-first) long entry in a set.
	LastLongEntry = 0x40

	NameDeleted      = 0xE5
	NameFree         = 0x00
	NameEscapedE5    = 0x05
	NameEscapedE5Raw = 0xE5

	ClusterFree       = 0
	ClusterBad        = 0x0FFFFFF7
	ClusterEOCMin     = 0x0FFFFFF8
	ClusterEntryMask  = 0x0FFFFFFF
	ClusterHighMask   = 0xF0000000
	ClusterFirstValid = 2
)

// BootSector is the FAT32 BIOS Parameter Block, bytes 0..511 of sector 0.
type BootSector struct {
	JmpBoot        [3]byte
	OEMName        [8]byte
	BytsPerSec     uint16
	SecPerClus     uint8
	RsvdSecCnt     uint16
	NumFATs        uint8
	RootEntCnt     uint16
	TotSec16       uint16
	Media          uint8
	FATSz16        uint16
	SecPerTrk      uint16
	NumHeads       uint16
	HiddSec        uint32
	TotSec32       uint32
	FATSz32        uint32
	ExtFlags       uint16
	FSVer          uint16
	RootClus       uint32
	FSInfoSec      uint16
	BkBootSec      uint16
	Reserved       [12]byte
	DrvNum         uint8
	Reserved1      uint8
	BootSig        uint8
	VolID          uint32
	VolLab         [11]byte
	FilSysType     [8]byte
	BootCode       [420]byte
	SignatureWord  uint16
}

// Decode parses a 512-byte boot sector. It does not validate FAT32-ness;
// callers apply that policy (see IsFAT32, called from fs.go in package fat32).
func (b *BootSector) Decode(raw []byte) error {
	if len(raw) != BPBSize {
		return fmt.Errorf("ondisk: boot sector must be %d bytes, got %d", BPBSize, len(raw))
	}
	if err := restruct.Unpack(raw, binary.LittleEndian, b); err != nil {
		return fmt.Errorf("ondisk: decode boot sector: %w", err)
	}
	return nil
}

// Encode serializes the boot sector back to 512 bytes.
func (b *BootSector) Encode() ([]byte, error) {
	buf, err := restruct.Pack(binary.LittleEndian, b)
	if err != nil {
		return nil, fmt.Errorf("ondisk: encode boot sector: %w", err)
	}
	if len(buf) != BPBSize {
		return nil, fmt.Errorf("ondisk: encoded boot sector has wrong size %d", len(buf))
	}
	return buf, nil
}

// IsFAT32 reports whether the parsed geometry satisfies the FAT32
// discriminator from the specification: zero root-entry count, zero
// 16-bit total sectors and FAT size, nonzero 32-bit counterparts.
func (b *BootSector) IsFAT32() bool {
	return b.RootEntCnt == 0 && b.TotSec16 == 0 && b.TotSec32 != 0 &&
		b.FATSz16 == 0 && b.FATSz32 != 0 && b.SignatureWord == BootSig
}

// FSInfo is the auxiliary sector caching the free-cluster count and the
// next-free-cluster allocation hint.
type FSInfo struct {
	LeadSig   uint32
	Reserved1 [480]byte
	StrucSig  uint32
	FreeCount uint32
	NextFree  uint32
	Reserved2 [12]byte
	TrailSig  uint32
}

func (f *FSInfo) Decode(raw []byte) error {
	if len(raw) != FSInfoSize {
		return fmt.Errorf("ondisk: fsinfo sector must be %d bytes, got %d", FSInfoSize, len(raw))
	}
	if err := restruct.Unpack(raw, binary.LittleEndian, f); err != nil {
		return fmt.Errorf("ondisk: decode fsinfo: %w", err)
	}
	return nil
}

func (f *FSInfo) Encode() ([]byte, error) {
	buf, err := restruct.Pack(binary.LittleEndian, f)
	if err != nil {
		return nil, fmt.Errorf("ondisk: encode fsinfo: %w", err)
	}
	return buf, nil
}

// Valid checks the lead/struct/trail signatures.
func (f *FSInfo) Valid() bool {
	return f.LeadSig == FSInfoLeadSig && f.StrucSig == FSInfoStrucSig && f.TrailSig == FSInfoTrailSig
}

// ShortEntry is a short (8.3) directory record, 32 bytes.
type ShortEntry struct {
	Name         [8]byte
	Ext          [3]byte
	Attr         uint8
	NTRes        uint8
	CrtTimeTenth uint8
	CrtTime      uint16
	CrtDate      uint16
	LstAccDate   uint16
	FstClusHI    uint16
	WrtTime      uint16
	WrtDate      uint16
	FstClusLO    uint16
	FileSize     uint32
}

func (s *ShortEntry) Decode(raw []byte) error {
	if len(raw) != EntrySize {
		return fmt.Errorf("ondisk: short entry must be %d bytes, got %d", EntrySize, len(raw))
	}
	return restruct.Unpack(raw, binary.LittleEndian, s)
}

func (s *ShortEntry) Encode() ([]byte, error) {
	return restruct.Pack(binary.LittleEndian, s)
}

// RawName returns the 11 raw name bytes (Name||Ext) used for the checksum
// and for uppercase 8.3 comparisons.
func (s *ShortEntry) RawName() [11]byte {
	var out [11]byte
	copy(out[:8], s.Name[:])
	copy(out[8:], s.Ext[:])
	return out
}

// FirstCluster joins the high/low cluster halves.
func (s *ShortEntry) FirstCluster() uint32 {
	return uint32(s.FstClusHI)<<16 | uint32(s.FstClusLO)
}

// SetFirstCluster splits a cluster id across the high/low fields.
func (s *ShortEntry) SetFirstCluster(c uint32) {
	s.FstClusHI = uint16(c >> 16)
	s.FstClusLO = uint16(c)
}

// IsFree reports whether this slot has never held data or was deleted.
func (s *ShortEntry) IsFree() bool {
	return s.Name[0] == NameFree || s.Name[0] == NameDeleted
}

// IsEnd reports whether this slot marks the end of the directory stream.
func (s *ShortEntry) IsEnd() bool {
	return s.Name[0] == NameFree
}

func (s *ShortEntry) IsDeleted() bool {
	return s.Name[0] == NameDeleted
}

func (s *ShortEntry) IsLongNamePart() bool {
	return s.Attr&AttrLongName == AttrLongName
}

func (s *ShortEntry) IsDir() bool {
	return s.Attr&AttrDirEntry != 0
}

// LongEntry is a 32-byte long-filename record carrying 13 UTF-16 code
// units of one group of a long name.
type LongEntry struct {
	Ord       uint8
	Name1     [5]uint16
	Attr      uint8
	Type      uint8
	Chksum    uint8
	Name2     [6]uint16
	FstClusLO uint16
	Name3     [2]uint16
}

func (l *LongEntry) Decode(raw []byte) error {
	if len(raw) != EntrySize {
		return fmt.Errorf("ondisk: long entry must be %d bytes, got %d", EntrySize, len(raw))
	}
	return restruct.Unpack(raw, binary.LittleEndian, l)
}

func (l *LongEntry) Encode() ([]byte, error) {
	return restruct.Pack(binary.LittleEndian, l)
}

// Group returns the 13 UTF-16 code units carried by this entry, in order.
func (l *LongEntry) Group() [13]uint16 {
	var g [13]uint16
	copy(g[0:5], l.Name1[:])
	copy(g[5:11], l.Name2[:])
	copy(g[11:13], l.Name3[:])
	return g
}

// SetGroup packs 13 UTF-16 code units into the three name fields.
func (l *LongEntry) SetGroup(g [13]uint16) {
	copy(l.Name1[:], g[0:5])
	copy(l.Name2[:], g[5:11])
	copy(l.Name3[:], g[11:13])
}

func (l *LongEntry) IsDeleted() bool {
	return l.Ord == NameDeleted
}

func (l *LongEntry) Order() int {
	return int(l.Ord &^ LastLongEntry)
}

func (l *LongEntry) IsLast() bool {
	return l.Ord&LastLongEntry != 0
}

// ShortNameChecksum computes the FAT 8.3 checksum that binds a set of long
// entries to their short entry: at each of the 11 raw name bytes the
// accumulator is rotated right by one bit within an 8-bit register, then
// the byte is added, truncated back to 8 bits.
func ShortNameChecksum(rawName [11]byte) uint8 {
	var sum uint8
	for _, b := range rawName {
		sum = (sum >> 1) + (sum << 7) + b
	}
	return sum
}
