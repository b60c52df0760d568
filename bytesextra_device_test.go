package fat32

import (
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// seekerDevice adapts an io.ReadWriteSeeker to BlockDevice, grounded in
// dargueta-disko's blockcache.WrapSlice (file_systems/common/blockcache/
// blockcache.go), which backs its own block cache the same way. Used
// alongside memDevice so the suite exercises both a direct-buffer
// BlockDevice and one layered over the stdlib stream interfaces.
type seekerDevice struct {
	rws io.ReadWriteSeeker
	n   int64 // total sectors
}

func newSeekerDevice(numSectors int) *seekerDevice {
	buf := make([]byte, numSectors*blockcacheSectorSize)
	return &seekerDevice{rws: bytesextra.NewReadWriteSeeker(buf), n: int64(numSectors)}
}

func (d *seekerDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if _, err := d.rws.Seek(startBlock*blockcacheSectorSize, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(d.rws, dst)
}

func (d *seekerDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if _, err := d.rws.Seek(startBlock*blockcacheSectorSize, io.SeekStart); err != nil {
		return 0, err
	}
	return d.rws.Write(data)
}

func (d *seekerDevice) EraseBlocks(startBlock, numBlocks int64) error {
	zero := make([]byte, numBlocks*blockcacheSectorSize)
	_, err := d.WriteBlocks(zero, startBlock)
	return err
}

func (d *seekerDevice) Size() int64 { return d.n * blockcacheSectorSize }

func (d *seekerDevice) BlockSize() int { return blockcacheSectorSize }
