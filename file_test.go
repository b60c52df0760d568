package fat32

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func formatScratch(t *testing.T, numSectors int) *FS {
	t.Helper()
	dev := newMemDevice(numSectors)
	fs, err := Format(dev, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      uint32(numSectors),
		FATSize:           64,
	})
	require.NoError(t, err)
	return fs
}

// TestFileCreateWriteRead reproduces scenario 2: create, list, write at
// offset 0, read it back, and check the reported size.
func TestFileCreateWriteRead(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	f, err := fs.OpenFile("/hello", ModeRW|ModeCreate)
	require.NoError(t, err)

	var names []string
	root, err := fs.OpenDir("/")
	require.NoError(t, err)
	require.NoError(t, root.ForEachFile(func(fi *FileInfo) error {
		names = append(names, fi.Name)
		return nil
	}))
	// "hello" fits the 8.3 short-name mold, so it is stored as the
	// uppercase short name HELLO with no long-name records, and a listing
	// shows such a name lowercased.
	require.Equal(t, []string{"hello"}, names)

	n, err := f.Write([]byte("world"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, int64(5), f.Size())

	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	require.NoError(t, f.Close())
}

// TestFileWriteAtGrowsChain reproduces scenario 4: a 5000-byte write (with
// an 8-sector/4096-byte cluster size) must span exactly two clusters, and
// a read across the cluster boundary must return contiguous bytes.
func TestFileWriteAtGrowsChain(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	f, err := fs.OpenFile("/big", ModeRW|ModeCreate)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0xAB}, 5000)
	n, err := f.Write(payload)
	require.NoError(t, err)
	require.Equal(t, 5000, n)
	require.Equal(t, int64(5000), f.Size())

	chainLen, err := fs.fat.ChainLen(f.firstCluster)
	require.NoError(t, err)
	require.Equal(t, 2, chainLen)

	_, err = f.Seek(4096, 0)
	require.NoError(t, err)
	buf := make([]byte, 904)
	n, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 904, n)
	require.Equal(t, bytes.Repeat([]byte{0xAB}, 904), buf)

	require.NoError(t, f.Close())
}

// TestFileReadAtEOFReturnsZero checks the boundary law: reading at an
// offset equal to the file's size returns zero bytes, together with io.EOF.
func TestFileReadAtEOFReturnsZero(t *testing.T) {
	fs := formatScratch(t, 0x4000)
	f, err := fs.OpenFile("/empty", ModeRW|ModeCreate)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := f.Read(buf)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 0, n)
}

// TestFileWriteReadRoundTrip checks the round-trip law at a handful of
// offsets within a multi-cluster file.
func TestFileWriteReadRoundTrip(t *testing.T) {
	fs := formatScratch(t, 0x4000)
	f, err := fs.OpenFile("/rt", ModeRW|ModeCreate)
	require.NoError(t, err)

	offsets := []int64{0, 100, 4095, 4096, 8000}
	for _, off := range offsets {
		payload := []byte{byte(off), byte(off >> 8), 0xFF, 0x00}
		_, err := f.Seek(off, 0)
		require.NoError(t, err)
		_, err = f.Write(payload)
		require.NoError(t, err)

		_, err = f.Seek(off, 0)
		require.NoError(t, err)
		back := make([]byte, len(payload))
		_, err = f.Read(back)
		require.NoError(t, err)
		require.Equal(t, payload, back)
	}
	require.NoError(t, f.Close())
}

// TestFileClearAndRecycle reproduces scenario 6: write, truncate to zero
// (freeing the chain), check free_count is restored, then create a new
// file and confirm its first cluster comes from the freed chain (the
// recycle queue), not a fresh high-water allocation.
func TestFileClearAndRecycle(t *testing.T) {
	fs := formatScratch(t, 0x4000)
	before := fs.FreeClusterCount()

	f, err := fs.OpenFile("/scratch", ModeRW|ModeCreate)
	require.NoError(t, err)
	_, err = f.Write(bytes.Repeat([]byte{1}, 100))
	require.NoError(t, err)
	freedCluster := f.firstCluster

	require.NoError(t, f.Truncate(0))
	require.NoError(t, f.Close())
	require.Equal(t, before, fs.FreeClusterCount())

	g, err := fs.OpenFile("/scratch2", ModeRW|ModeCreate)
	require.NoError(t, err)
	_, err = g.Write([]byte{1})
	require.NoError(t, err)
	require.Equal(t, freedCluster, g.firstCluster)
	require.NoError(t, g.Close())
}

// TestFileModeOpenExisting checks that opening a missing file without
// ModeCreate fails, and that ModeOpenExisting|ModeCreate on an existing
// file opens it rather than erroring.
func TestFileModeOpenExisting(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	_, err := fs.OpenFile("/missing", ModeRead)
	require.ErrorIs(t, err, ErrNotFound)

	f, err := fs.OpenFile("/present", ModeRW|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := fs.OpenFile("/present", ModeRW|ModeCreate|ModeOpenExisting)
	require.NoError(t, err)
	require.NoError(t, f2.Close())
}
