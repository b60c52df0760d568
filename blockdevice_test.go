package fat32

import (
	"errors"
	"fmt"
)

// memDevice is an in-memory BlockDevice backed by a flat []byte buffer,
// grounded in the teacher's BytesBlocks fixture from fat_test.go, trimmed
// to the sector-addressed subset this package's BlockDevice interface
// needs (no blkIdxer: tests only ever use the one fixed 512-byte size).
type memDevice struct {
	buf []byte
}

func newMemDevice(numSectors int) *memDevice {
	return &memDevice{buf: make([]byte, numSectors*blockcacheSectorSize)}
}

func (d *memDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if startBlock < 0 {
		return 0, errors.New("memDevice: negative start block")
	}
	off := startBlock * blockcacheSectorSize
	end := off + int64(len(dst))
	if end > int64(len(d.buf)) {
		return 0, fmt.Errorf("memDevice: read past end of buffer: %d > %d", end, len(d.buf))
	}
	return copy(dst, d.buf[off:end]), nil
}

func (d *memDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if startBlock < 0 {
		return 0, errors.New("memDevice: negative start block")
	}
	off := startBlock * blockcacheSectorSize
	end := off + int64(len(data))
	if end > int64(len(d.buf)) {
		return 0, fmt.Errorf("memDevice: write past end of buffer: %d > %d", end, len(d.buf))
	}
	return copy(d.buf[off:end], data), nil
}

func (d *memDevice) EraseBlocks(startBlock, numBlocks int64) error {
	off := startBlock * blockcacheSectorSize
	end := off + numBlocks*blockcacheSectorSize
	if off < 0 || end > int64(len(d.buf)) {
		return errors.New("memDevice: erase out of range")
	}
	clear(d.buf[off:end])
	return nil
}

func (d *memDevice) Size() int64 { return int64(len(d.buf)) }

func (d *memDevice) BlockSize() int { return blockcacheSectorSize }
