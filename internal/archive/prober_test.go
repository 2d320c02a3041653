package archive

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunogt/rar2fs/internal/cache"
	"github.com/nunogt/rar2fs/internal/decoder"
	"github.com/nunogt/rar2fs/internal/rarconfig"
)

func TestSanitizeRelativeStripsLeadingSlashAndTraversal(t *testing.T) {
	got, err := sanitizeRelative("/movie/../cd1.mkv")
	require.NoError(t, err)
	assert.Equal(t, "movie/cd1.mkv", got)
}

func TestSanitizeRelativeNormalizesBackslashes(t *testing.T) {
	got, err := sanitizeRelative(`movie\cd1.mkv`)
	require.NoError(t, err)
	assert.Equal(t, "movie/cd1.mkv", got)
}

func TestSanitizeRelativeRejectsEmpty(t *testing.T) {
	_, err := sanitizeRelative("/")
	assert.Error(t, err)
}

func TestModeForDirectoryAndFile(t *testing.T) {
	assert.Equal(t, uint32(os.ModeDir)|0755, modeFor(&decoder.Header{IsDir: true}))
	assert.Equal(t, uint32(0644), modeFor(&decoder.Header{IsDir: false}))
}

func TestOrNowFillsZeroTime(t *testing.T) {
	fixed := time.Unix(12345, 0)
	assert.Equal(t, fixed, orNow(fixed))
	assert.False(t, orNow(time.Time{}).IsZero())
}

func TestVirtualMemberPathPrefixesMountDir(t *testing.T) {
	dir := t.TempDir()
	p := &Prober{Config: rarconfig.NewTable(dir)}

	got, err := p.virtualMemberPath(dir+"/movie.rar", "library/movie", "cd1.r00")
	require.NoError(t, err)
	assert.Equal(t, "library/movie/cd1.r00", got)
}

func TestMaterializeAncestryLockedCreatesIntermediateDirs(t *testing.T) {
	p := &Prober{Dirs: cache.NewDirCache()}

	st := &cache.Stat{Size: 10}
	p.materializeAncestryLocked("library", "library/movie/extras/poster.jpg", st, false)

	extras := p.Dirs.Get("library/movie/extras")
	require.NotNil(t, extras)
	extras.Close()
	names := make([]string, 0)
	for _, e := range extras.Entries() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "poster.jpg")

	movie := p.Dirs.Get("library/movie")
	require.NotNil(t, movie)
	movie.Close()
	found := false
	for _, e := range movie.Entries() {
		if e.Name == "extras" {
			found = true
			assert.Equal(t, cache.TypeDirectory, e.Type)
		}
	}
	assert.True(t, found, "intermediate directory must be registered in its own parent listing")
}

func TestMaterializeAncestryLockedStopsAtMountRelDir(t *testing.T) {
	p := &Prober{Dirs: cache.NewDirCache()}
	p.materializeAncestryLocked("library/movie", "library/movie/cd1.mkv", &cache.Stat{}, false)

	assert.Nil(t, p.Dirs.Get("library"), "ancestry walk must not escape the archive's own mount directory")
}
