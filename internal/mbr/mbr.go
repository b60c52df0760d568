// Package mbr decodes the subset of the legacy Master Boot Record
// partition table that fat32's partition-discovery path needs: the
// boot signature and the four partition table entries, read-only.
package mbr

import (
	"encoding/binary"
	"fmt"
)

const (
	pteOffset        = 446
	pteLen           = 16
	bootSignatureOff = 510

	// BootSignature is the magic value at the end of a valid MBR sector.
	BootSignature = 0xAA55
)

// BootSector is a Master Boot Record, read-only over its backing
// 512-byte sector slice.
type BootSector struct {
	data []byte
}

// ToBootSector wraps the first 512 bytes of start as a BootSector.
// start must be at least 512 bytes long.
func ToBootSector(start []byte) (BootSector, error) {
	if len(start) < 512 {
		return BootSector{}, fmt.Errorf("mbr boot sector short read: need 512 bytes, got %d", len(start))
	}
	return BootSector{data: start[:512:512]}, nil
}

// BootSignature returns the boot signature; compare against the
// package constant of the same name to recognize a valid MBR.
func (bs *BootSector) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bootSignatureOff : bootSignatureOff+2])
}

// PartitionTable returns the idx'th of the four partition table entries.
func (bs *BootSector) PartitionTable(idx int) PartitionTableEntry {
	if idx < 0 || idx > 3 {
		panic("mbr: invalid partition table index")
	}
	return PartitionTableEntry{data: [pteLen]byte(bs.data[pteOffset+idx*pteLen : pteOffset+(idx+1)*pteLen])}
}

// PartitionTableEntry is one of the four partition table entries in an
// MBR: its type, size and location. See
// https://en.wikipedia.org/wiki/Master_boot_record#PTE.
type PartitionTableEntry struct {
	data [pteLen]byte
}

// PartitionType returns the type byte identifying the partition's
// filesystem or role (FAT32, NTFS, Linux, extended, ...).
func (pte *PartitionTableEntry) PartitionType() PartitionType {
	return PartitionType(pte.data[4])
}

// StartLBA returns the partition's starting sector in LBA form.
func (pte *PartitionTableEntry) StartLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[8:12])
}

// NumberOfLBA returns the number of sectors in the partition.
func (pte *PartitionTableEntry) NumberOfLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[12:16])
}

// PartitionType identifies the content of an MBR partition table entry.
type PartitionType byte

const (
	PartitionTypeUnused   PartitionType = 0x00
	PartitionTypeFAT12    PartitionType = 0x01
	PartitionTypeFAT16    PartitionType = 0x04
	PartitionTypeExtended PartitionType = 0x05
	PartitionTypeFAT32CHS PartitionType = 0x0B
	PartitionTypeFAT32LBA PartitionType = 0x0C
	PartitionTypeNTFS     PartitionType = 0x07 // Also includes exFAT.
	PartitionTypeLinux    PartitionType = 0x83
	PartitionTypeFreeBSD  PartitionType = 0xA5
	PartitionTypeAppleHFS PartitionType = 0xAF
)
