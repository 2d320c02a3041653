package rarfs

import (
	"context"
	"os"
	"path"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent := fs.inodes.byInode(op.Parent)
	if parent == nil {
		return fuse.ENOENT
	}

	virtual := path.Join(parent.path, op.Name)
	if parent.path == "" {
		virtual = op.Name
	}

	r, err := fs.resolve(virtual)
	if err != nil {
		if os.IsNotExist(err) {
			return fuse.ENOENT
		}
		fs.state.ErrorLogger.Printf("rarfs: LookUpInode %s: %v", virtual, err)
		return fuse.EIO
	}

	rec := fs.inodes.lookup(virtual, r.isDir)
	op.Entry.Child = rec.id
	op.Entry.Attributes = r.attrs
	op.Entry.AttributesExpiration = expiresIn(cacheExpiration)
	op.Entry.EntryExpiration = expiresIn(cacheExpiration)
	return nil
}

func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	rec := fs.inodes.byInode(op.Inode)
	if rec == nil {
		return fuse.ENOENT
	}

	r, err := fs.resolve(rec.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fuse.ENOENT
		}
		fs.state.ErrorLogger.Printf("rarfs: GetInodeAttributes %s: %v", rec.path, err)
		return fuse.EIO
	}

	op.Attributes = r.attrs
	op.AttributesExpiration = expiresIn(cacheExpiration)
	return nil
}

// ForgetInode drops our side of the inode table entry; the filesystem never
// mutates so there is nothing else to reclaim.
func (fs *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.inodes.forget(op.ID)
	return nil
}
