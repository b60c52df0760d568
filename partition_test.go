package fat32

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeMBRFAT32Entry stamps a minimal legacy MBR onto sector 0 of disk,
// with partition table entry 0 describing a FAT32LBA partition starting
// at startLBA and spanning numLBA sectors.
func writeMBRFAT32Entry(t *testing.T, disk *memDevice, startLBA, numLBA uint32) {
	t.Helper()
	var sector [blockcacheSectorSize]byte
	const pteOffset = 446
	sector[pteOffset+4] = 0x0C // mbr.PartitionTypeFAT32LBA
	binary.LittleEndian.PutUint32(sector[pteOffset+8:], startLBA)
	binary.LittleEndian.PutUint32(sector[pteOffset+12:], numLBA)
	binary.LittleEndian.PutUint16(sector[510:], 0xAA55)
	_, err := disk.WriteBlocks(sector[:], 0)
	require.NoError(t, err)
}

// TestFindVolumeMBR reproduces the partition-discovery scenario: a
// whole-disk image with a legacy MBR pointing at a FAT32 volume one
// sector in. FindVolume must locate it and hand back a device whose
// block 0 is the volume's own boot sector, not the disk's MBR.
func TestFindVolumeMBR(t *testing.T) {
	const volumeSectors = 0x4000
	disk := newMemDevice(1 + volumeSectors)
	writeMBRFAT32Entry(t, disk, 1, volumeSectors)

	volume := &offsetDevice{base: disk, startLBA: 1, lbaCount: volumeSectors}
	_, err := Format(volume, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      volumeSectors,
		FATSize:           64,
	})
	require.NoError(t, err)

	found, err := FindVolume(disk, nil)
	require.NoError(t, err)

	var fs FS
	require.NoError(t, fs.Mount(found, blockcacheSectorSize, ModeRW))
	require.NoError(t, fs.Mkdir("/partitioned"))
	dir, err := fs.OpenDir("/partitioned")
	require.NoError(t, err)
	stat, err := dir.Stat()
	require.NoError(t, err)
	require.True(t, stat.IsDir)
}

// TestFindVolumeNoPartition checks the failure path: a disk with no
// recognizable GPT or MBR FAT32 partition reports ErrNotFound.
func TestFindVolumeNoPartition(t *testing.T) {
	disk := newMemDevice(1 + 0x4000)
	_, err := FindVolume(disk, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestMountPartitioned exercises the FindVolume+Mount convenience
// wrapper end to end.
func TestMountPartitioned(t *testing.T) {
	const volumeSectors = 0x4000
	disk := newMemDevice(1 + volumeSectors)
	writeMBRFAT32Entry(t, disk, 1, volumeSectors)

	volume := &offsetDevice{base: disk, startLBA: 1, lbaCount: volumeSectors}
	_, err := Format(volume, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      volumeSectors,
		FATSize:           64,
	})
	require.NoError(t, err)

	fs, err := MountPartitioned(disk, blockcacheSectorSize, ModeRW, nil)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/viaPartition"))
}
