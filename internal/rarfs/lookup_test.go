package rarfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookUpInodeResolvesPassthroughChild(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))

	fs := newTestFileSystem(t, dir)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "readme.txt"}
	require.NoError(t, fs.LookUpInode(context.Background(), op))
	assert.NotEqual(t, fuseops.InodeID(0), op.Entry.Child)
	assert.Equal(t, uint64(2), op.Entry.Attributes.Size)
}

func TestLookUpInodeUnknownNameReturnsENOENT(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSystem(t, dir)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "nope"}
	err := fs.LookUpInode(context.Background(), op)
	assert.Equal(t, fuse.ENOENT, err)
}

func TestLookUpInodeUnknownParentReturnsENOENT(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSystem(t, dir)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.InodeID(99999), Name: "anything"}
	err := fs.LookUpInode(context.Background(), op)
	assert.Equal(t, fuse.ENOENT, err)
}

func TestGetInodeAttributesForRoot(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSystem(t, dir)

	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	require.NoError(t, fs.GetInodeAttributes(context.Background(), op))
	assert.True(t, op.Attributes.Mode.IsDir())
}

func TestForgetInodeDropsTableEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))
	fs := newTestFileSystem(t, dir)

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "readme.txt"}
	require.NoError(t, fs.LookUpInode(context.Background(), lookup))

	forget := &fuseops.ForgetInodeOp{ID: lookup.Entry.Child}
	require.NoError(t, fs.ForgetInode(context.Background(), forget))

	assert.Nil(t, fs.inodes.byInode(lookup.Entry.Child))
}
