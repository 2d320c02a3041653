package rarfs

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunogt/rar2fs/internal/options"
)

func newTestFileSystem(t *testing.T, sourceRoot string) *FileSystem {
	t.Helper()
	opts := options.New()
	logger := log.New(io.Discard, "", 0)
	state := NewState(sourceRoot, opts, logger, logger)
	return New(state)
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSystem(t, dir)

	r, err := fs.resolve("")
	require.NoError(t, err)
	assert.True(t, r.isDir)
	assert.Equal(t, dir, r.hostPath)
}

func TestResolvePassthroughFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello"), 0o644))

	fs := newTestFileSystem(t, dir)

	r, err := fs.resolve("readme.txt")
	require.NoError(t, err)
	assert.False(t, r.isDir)
	assert.Equal(t, filepath.Join(dir, "readme.txt"), r.hostPath)
	assert.Equal(t, uint64(5), r.attrs.Size)
}

func TestResolvePassthroughDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	fs := newTestFileSystem(t, dir)

	r, err := fs.resolve("sub")
	require.NoError(t, err)
	assert.True(t, r.isDir)
}

func TestResolveMissingPathReturnsNotExist(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSystem(t, dir)

	_, err := fs.resolve("nope.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestResolveNestedPassthroughFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "file.txt"), []byte("abc"), 0o644))

	fs := newTestFileSystem(t, dir)

	r, err := fs.resolve("sub/file.txt")
	require.NoError(t, err)
	assert.False(t, r.isDir)
	assert.Equal(t, uint64(3), r.attrs.Size)
}
