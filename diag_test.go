package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckCleanVolume(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	require.NoError(t, fs.Mkdir("/a"))
	f, err := fs.OpenFile("/a/file.txt", ModeRW|ModeCreate)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	report, err := fs.Check()
	require.NoError(t, err)
	require.Empty(t, report.OrphanChains)
	require.Equal(t, report.FreeCountOnDisk, report.FreeCountCounted)
}

func TestCheckDetectsOrphanChain(t *testing.T) {
	fs := formatScratch(t, 0x4000)

	f, err := fs.OpenFile("/leaked.txt", ModeRW|ModeCreate)
	require.NoError(t, err)
	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Manually delete the directory record without freeing its chain, so
	// the chain stays allocated with no directory entry reaching it.
	e, err := fs.findInDirectory(fs.geom.rootCluster, "leaked.txt")
	require.NoError(t, err)
	require.NoError(t, fs.removeFromDirectory(fs.geom.rootCluster, e))

	report, err := fs.Check()
	require.Error(t, err)
	require.NotEmpty(t, report.OrphanChains)
}

func TestCheckOnUnmountedFS(t *testing.T) {
	var fs FS
	_, err := fs.Check()
	require.ErrorIs(t, err, ErrNotMounted)
}
