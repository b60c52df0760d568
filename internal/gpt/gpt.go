// Package gpt decodes the subset of the GUID Partition Table format
// fat32's partition-discovery path needs: the protective header and
// partition-entry array, read-only.
package gpt

import (
	"encoding/binary"
	"fmt"
)

// Signature is the magic value at the start of a valid GPT header,
// "EFI PART" read as a little-endian uint64.
const Signature uint64 = 0x5452415020494645

const (
	headerSize = 92
	entrySize  = 128
)

// Header is a GPT header, read-only over the backing 92-byte sector
// slice it was constructed from.
type Header struct {
	data []byte
}

// ToHeader wraps the first headerSize bytes of start as a Header. start
// must be at least headerSize bytes long.
func ToHeader(start []byte) (Header, error) {
	if len(start) < headerSize {
		return Header{}, fmt.Errorf("gpt header short read: need %d bytes, got %d", headerSize, len(start))
	}
	return Header{data: start[:headerSize:headerSize]}, nil
}

// Signature returns the header's 8-byte magic; compare against Signature.
func (h *Header) Signature() uint64 {
	return binary.LittleEndian.Uint64(h.data[0:8])
}

// PartitionEntryLBA returns the LBA of the start of the partition entry array.
func (h *Header) PartitionEntryLBA() int64 {
	return int64(binary.LittleEndian.Uint64(h.data[72:80]))
}

// NumberOfPartitionEntries returns the number of entries in the partition array.
func (h *Header) NumberOfPartitionEntries() uint32 {
	return binary.LittleEndian.Uint32(h.data[80:84])
}

// SizeOfPartitionEntry returns the byte size of each partition entry, usually 128.
func (h *Header) SizeOfPartitionEntry() uint32 {
	return binary.LittleEndian.Uint32(h.data[84:88])
}

// PartitionEntry is a single GPT partition entry, read-only over its
// backing 128-byte slice.
type PartitionEntry struct {
	data []byte
}

// ToPartitionEntry wraps the first entrySize bytes of start as a
// PartitionEntry. start must be at least entrySize bytes long.
func ToPartitionEntry(start []byte) (PartitionEntry, error) {
	if len(start) < entrySize {
		return PartitionEntry{}, fmt.Errorf("gpt partition entry short read: need %d bytes, got %d", entrySize, len(start))
	}
	return PartitionEntry{data: start[:entrySize:entrySize]}, nil
}

// PartitionTypeGUID returns the GUID identifying the partition's content type.
func (p *PartitionEntry) PartitionTypeGUID() (guid [16]byte) {
	copy(guid[:], p.data[0:16])
	return guid
}

// FirstLBA returns the first LBA of the partition.
func (p *PartitionEntry) FirstLBA() int64 {
	return int64(binary.LittleEndian.Uint64(p.data[32:40]))
}

// LastLBA returns the last LBA of the partition (inclusive).
func (p *PartitionEntry) LastLBA() int64 {
	return int64(binary.LittleEndian.Uint64(p.data[40:48]))
}
