package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFormatScenario1 reproduces the literal end-to-end sizing scenario:
// spc=8, rsvd=32, fat_sz=64, total=0x4000 sectors. The data region must
// come out to 0x4000 - 32 - 2*64 = 16224 sectors, the free cluster count
// must be every data cluster but the root's, and the freshly formatted
// root directory must occupy exactly one cluster.
func TestFormatScenario1(t *testing.T) {
	dev := newMemDevice(0x4000)
	fs, err := Format(dev, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      0x4000,
		FATSize:           64,
	})
	require.NoError(t, err)

	// The literal scenario's formula (total - rsvd - 2*fat_sz) yields the
	// data region's sector count; the free *cluster* count is that many
	// sectors divided by spc, less the one cluster the root directory
	// itself consumes at format time.
	require.Equal(t, uint32(16224), fs.DataSectorCount())
	require.Equal(t, fs.DataClusterCount()-1, fs.FreeClusterCount())

	root, err := fs.OpenDir("/")
	require.NoError(t, err)
	n, err := fs.fat.ChainLen(root.firstCluster)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// TestFormatDerivesFATSize exercises the fixed-point search path (no
// FATSize override) on the same device this package's tests otherwise
// use a literal FATSize for, so both Format code paths get covered.
func TestFormatDerivesFATSize(t *testing.T) {
	dev := newMemDevice(0x4000)
	fs, err := Format(dev, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      0x4000,
	})
	require.NoError(t, err)
	require.True(t, fs.DataClusterCount() > 0)
}

// TestFormatTooSmall checks that an undersized volume fails cleanly
// rather than producing a corrupt geometry.
func TestFormatTooSmall(t *testing.T) {
	dev := newMemDevice(64)
	_, err := Format(dev, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      64,
		FATSize:           64,
	})
	require.ErrorIs(t, err, ErrInvalidName)
}

// TestFormatOverSeekerDevice checks the seekerDevice fixture works
// identically to memDevice for Format+Mount.
func TestFormatOverSeekerDevice(t *testing.T) {
	dev := newSeekerDevice(0x4000)
	fs, err := Format(dev, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      0x4000,
		FATSize:           64,
	})
	require.NoError(t, err)
	require.Equal(t, uint32(16224), fs.DataSectorCount())
}
