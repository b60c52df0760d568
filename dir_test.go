package fat32

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMkdirAndStat reproduces scenario 3: create a directory, confirm it
// lists no entries, that Stat reports one cluster's worth of bytes, and
// that its on-disk SDE file size is 0.
func TestMkdirAndStat(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	require.NoError(t, fs.Mkdir("/dir"))

	sub, err := fs.OpenDir("/dir")
	require.NoError(t, err)

	var names []string
	require.NoError(t, sub.ForEachFile(func(fi *FileInfo) error {
		names = append(names, fi.Name)
		return nil
	}))
	require.Empty(t, names)

	info, err := sub.Stat()
	require.NoError(t, err)
	require.True(t, info.IsDir)
	require.Equal(t, int64(8*512), info.Size)

	e, err := fs.findInDirectory(fs.geom.rootCluster, "dir")
	require.NoError(t, err)
	require.Equal(t, uint32(0), e.sde.FileSize)
}

// TestMkdirDuplicateAndRemove checks ErrExist on a duplicate Mkdir, and
// that Remove refuses a non-empty directory but succeeds once emptied.
func TestMkdirDuplicateAndRemove(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	require.NoError(t, fs.Mkdir("/a"))
	require.ErrorIs(t, fs.Mkdir("/a"), ErrExist)

	f, err := fs.OpenFile("/a/file.txt", ModeRW|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.ErrorIs(t, fs.Remove("/a"), ErrNotEmpty)

	require.NoError(t, fs.Remove("/a/file.txt"))
	require.NoError(t, fs.Remove("/a"))

	_, err = fs.OpenDir("/a")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestRemoveDoesNotShrinkParentChain checks the boundary law that
// deleting every entry in a directory leaves its cluster chain length
// unchanged, by creating 40 files inside it (which still fit in its one
// cluster), then removing them all.
func TestRemoveDoesNotShrinkParentChain(t *testing.T) {
	fs := formatScratch(t, 0x4000)
	require.NoError(t, fs.Mkdir("/d"))

	dir, err := fs.OpenDir("/d")
	require.NoError(t, err)

	const n = 40 // one cluster (4096B) / 32B per SDE = 128 entries; 40 forces no growth, kept small and fast
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("/d/f%d.txt", i)
		f, err := fs.OpenFile(name, ModeRW|ModeCreate)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	grown, err := fs.fat.ChainLen(dir.firstCluster)
	require.NoError(t, err)

	var dirNames []string
	require.NoError(t, dir.ForEachFile(func(fi *FileInfo) error {
		dirNames = append(dirNames, fi.Name)
		return nil
	}))
	require.Len(t, dirNames, n)
	for _, name := range dirNames {
		require.NoError(t, fs.Remove("/d/"+name))
	}

	shrunk, err := fs.fat.ChainLen(dir.firstCluster)
	require.NoError(t, err)
	require.Equal(t, grown, shrunk)

	remaining, err := fs.listDirectory(dir.firstCluster)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

// TestDirRoundTrip checks create -> find_by_name preserves a long name's
// case, while a short-fitting name comes back uppercased.
func TestDirRoundTrip(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	f, err := fs.OpenFile("/MixedCase.txt", ModeRW|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	e, err := fs.findInDirectory(fs.geom.rootCluster, "MixedCase.txt")
	require.NoError(t, err)
	require.Equal(t, "MixedCase.txt", e.name)

	f2, err := fs.OpenFile("/plain.txt", ModeRW|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f2.Close())
	e2, err := fs.findInDirectory(fs.geom.rootCluster, "plain.txt")
	require.NoError(t, err)
	require.Equal(t, "PLAIN.TXT", e2.name)
}

// TestLongNameRecordCount reproduces scenario 5: a 13-UTF-16-unit name
// fits one LDE (2 records total including the SDE); a 14-unit name needs
// two LDEs (3 records total).
func TestLongNameRecordCount(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	name13 := "ABCDEFGHIJKLM" // 13 units; exceeds the 8-char short-name base
	f, err := fs.OpenFile("/"+name13, ModeRW|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	e, err := fs.findInDirectory(fs.geom.rootCluster, name13)
	require.NoError(t, err)
	require.Equal(t, 2, e.totalRecs)
	require.Len(t, e.ldePos, 1)

	name14 := "ABCDEFGHIJKLMN" // 14 units
	f2, err := fs.OpenFile("/"+name14, ModeRW|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, f2.Close())
	e2, err := fs.findInDirectory(fs.geom.rootCluster, name14)
	require.NoError(t, err)
	require.Equal(t, 3, e2.totalRecs)
	require.Len(t, e2.ldePos, 2)
}
