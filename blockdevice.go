package fat32

import "fmt"

// BlockDevice is the port the core consumes from its host: a sector-
// addressed, whole-block read/write/erase surface. An SD card, a raw
// disk file, or an in-memory buffer can all implement it. byte_offset is
// expressed as a block index, not a byte offset: ReadBlocks(dst,
// startBlock) reads len(dst) bytes beginning at startBlock*BlockSize().
type BlockDevice interface {
	ReadBlocks(dst []byte, startBlock int64) (int, error)
	WriteBlocks(data []byte, startBlock int64) (int, error)
	EraseBlocks(startBlock, numBlocks int64) error
}

// SizedBlockDevice additionally reports its geometry; Format uses its Size
// as the volume's total sector count when FormatConfig.TotalSectors is 0.
// A nonzero TotalSectors is not checked against Size.
type SizedBlockDevice interface {
	BlockDevice
	Size() int64
	BlockSize() int
}

// offsetDevice presents a sub-range of an underlying device as if it were
// a standalone device starting at block 0, letting Mount/Format operate
// directly on one partition of a whole-disk image located via the MBR/GPT
// partition-discovery helpers in partition.go.
type offsetDevice struct {
	base      BlockDevice
	startLBA  int64
	lbaCount  int64
}

func (o *offsetDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if startBlock < 0 {
		return 0, fmt.Errorf("%w: negative start block", ErrOutOfBounds)
	}
	return o.base.ReadBlocks(dst, o.startLBA+startBlock)
}

func (o *offsetDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if startBlock < 0 {
		return 0, fmt.Errorf("%w: negative start block", ErrOutOfBounds)
	}
	return o.base.WriteBlocks(data, o.startLBA+startBlock)
}

func (o *offsetDevice) EraseBlocks(startBlock, numBlocks int64) error {
	return o.base.EraseBlocks(o.startLBA+startBlock, numBlocks)
}
