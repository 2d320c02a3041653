package rarfs

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/cache"
	"github.com/nunogt/rar2fs/internal/decoder"
	"github.com/nunogt/rar2fs/internal/options"
	"github.com/nunogt/rar2fs/internal/readengine"
	"github.com/nunogt/rar2fs/internal/volume"
)

// xattrMethod is the name of the supplemented "user.method" extended
// attribute (SPEC_FULL.md), reporting the RAR compression method of the
// backing member so tools like `getfattr` can tell a stored file from a
// compressed one without reading it.
const xattrMethod = "user.method"

func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	rec := fs.inodes.byInode(op.Inode)
	if rec == nil {
		return fuse.ENOENT
	}

	r, err := fs.resolve(rec.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fuse.ENOENT
		}
		return fuse.EIO
	}
	if r.isDir {
		return fuse.EIO
	}

	op.UseDirectIO = fs.state.Opts.Bool(options.DirectIO)

	if r.rec == nil {
		// Passthrough: served directly from the host file, no read-engine
		// handle needed; ReadFile opens it fresh on every call.
		return nil
	}

	h, err := fs.newReadHandle(r.rec)
	if err != nil {
		fs.state.ErrorLogger.Printf("rarfs: OpenFile %s: %v", rec.path, err)
		return fuse.EIO
	}

	if h.Mode == readengine.ModePiped {
		if err := h.Open(ctx); err != nil {
			fs.state.ErrorLogger.Printf("rarfs: spawning producer for %s: %v", rec.path, err)
			return fuse.EIO
		}
	}

	id := fs.allocHandle()
	fs.mu.Lock()
	fs.fileHandles[id] = h
	fs.mu.Unlock()
	op.Handle = id
	return nil
}

// newReadHandle builds the read-engine handle for an archive-backed
// record, choosing the raw or piped path per §4.6.
func (fs *FileSystem) newReadHandle(rec *cache.Record) (*readengine.Handle, error) {
	if rec.Has(cache.FlagRaw) {
		var scheme *volume.Scheme
		if rec.Has(cache.FlagMultipart) {
			s, ok := volume.Detect(rec.ArchivePath)
			if !ok {
				return nil, errors.Errorf("readengine: %s looks multipart but no naming scheme matched", rec.ArchivePath)
			}
			scheme = s
		}
		return readengine.NewRawHandle(rec, scheme), nil
	}

	password := fs.passwordFor(rec.ArchivePath)
	seekLength := fs.state.Opts.Int(options.SeekLength)
	saveEOF := fs.state.Opts.Bool(options.SaveEOF)
	if entry, _ := fs.state.Config.Lookup(rec.ArchivePath); entry != nil {
		if entry.HasSeekLength() {
			seekLength = entry.SeekLength
		}
		if entry.HasSaveEOF() {
			saveEOF = entry.SaveEOF
		}
	}

	memberName := rec.MemberName
	opener := func() (*decoder.Archive, error) {
		a, err := decoder.Open(rec.ArchivePath, password)
		if err != nil {
			return nil, err
		}
		for {
			h, err := a.NextHeader()
			if err != nil {
				a.Close()
				return nil, err
			}
			if h.Name == memberName {
				return a, nil
			}
		}
	}

	h := readengine.NewPipedHandle(rec, seekLength, saveEOF, opener)
	h.SetSemaphore(fs.state.Workers)
	return h, nil
}

func (fs *FileSystem) passwordFor(archivePath string) string {
	entry, err := fs.state.Config.Lookup(archivePath)
	if err != nil || entry == nil {
		return ""
	}
	return entry.Password
}

func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	rec := fs.inodes.byInode(op.Inode)
	if rec == nil {
		return fuse.ENOENT
	}

	fs.mu.Lock()
	h := fs.fileHandles[op.Handle]
	fs.mu.Unlock()

	if h == nil {
		// Passthrough path: no handle was allocated at open time.
		r, err := fs.resolve(rec.path)
		if err != nil || r.hostPath == "" {
			return fuse.EIO
		}
		f, err := os.Open(r.hostPath)
		if err != nil {
			return fuse.EIO
		}
		defer f.Close()
		n, err := f.ReadAt(op.Dst, op.Offset)
		op.BytesRead = n
		if err != nil && err != io.EOF {
			return fuse.EIO
		}
		return nil
	}

	n, err := h.ReadAt(ctx, op.Offset, op.Dst)
	op.BytesRead = n
	if err != nil && err != io.EOF {
		fs.state.ErrorLogger.Printf("rarfs: ReadFile %s: %v", rec.path, err)
		return fuse.EIO
	}
	return nil
}

func (fs *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	h := fs.fileHandles[op.Handle]
	delete(fs.fileHandles, op.Handle)
	fs.mu.Unlock()

	if h != nil {
		return h.Release()
	}
	return nil
}

func (fs *FileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	rec := fs.inodes.byInode(op.Inode)
	if rec == nil {
		return fuse.ENOENT
	}
	r, err := fs.resolve(rec.path)
	if err != nil {
		return fuse.ENOENT
	}
	if r.rec != nil {
		op.Target = r.rec.LinkTarget
		return nil
	}
	if r.hostPath != "" {
		target, err := os.Readlink(r.hostPath)
		if err != nil {
			return fuse.EIO
		}
		op.Target = target
		return nil
	}
	return fuse.EIO
}

func (fs *FileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	rec := fs.inodes.byInode(op.Inode)
	if rec == nil {
		return fuse.ENOENT
	}
	if op.Name != xattrMethod {
		return fuse.ENOSYS
	}
	r, err := fs.resolve(rec.path)
	if err != nil || r.rec == nil {
		return fuse.ENOSYS
	}

	value := methodName(r.rec.Method)
	if len(op.Dst) < len(value) {
		return syscall.ERANGE
	}
	op.BytesRead = copy(op.Dst, value)
	return nil
}

func (fs *FileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	rec := fs.inodes.byInode(op.Inode)
	if rec == nil {
		return fuse.ENOENT
	}
	r, err := fs.resolve(rec.path)
	if err != nil || r.rec == nil {
		op.BytesRead = 0
		return nil
	}

	names := xattrMethod + "\x00"
	if len(op.Dst) < len(names) {
		return syscall.ERANGE
	}
	op.BytesRead = copy(op.Dst, names)
	return nil
}

// methodName renders a RAR compression method id as the short label
// exposed through the "user.method" xattr.
func methodName(m int) string {
	switch m {
	case 0x30:
		return "store"
	case 0x31:
		return "fastest"
	case 0x32:
		return "fast"
	case 0x33:
		return "normal"
	case 0x34:
		return "good"
	case 0x35:
		return "best"
	default:
		return "unknown"
	}
}
