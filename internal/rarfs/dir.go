package rarfs

import (
	"context"
	"os"
	"path"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/nunogt/rar2fs/internal/archive"
	"github.com/nunogt/rar2fs/internal/cache"
)

// dirHandleState is the per-open-directory snapshot handed out by OpenDir
// and walked by successive ReadDir calls. §3's directory cache entry is
// shared/mutable across opens; a handle instead captures one immutable
// ordered slice at open time, so a concurrent probe triggered by another
// client can't shift offsets out from under an in-progress readdir (the
// "stable within one open" guarantee named in the Ordering Guarantees
// notes).
type dirHandleState struct {
	path    string
	entries []fuseops.Dirent
}

// OpenDir materializes the directory's listing (source-root passthrough
// children merged with archive-derived children, §4.4/§4.7) and stashes it
// under a fresh handle ID.
func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	rec := fs.inodes.byInode(op.Inode)
	if rec == nil {
		return fuse.ENOENT
	}

	entries, err := fs.buildDirListing(rec.path)
	if err != nil {
		fs.state.ErrorLogger.Printf("rarfs: OpenDir %s: %v", rec.path, err)
		return fuse.EIO
	}

	h := fs.allocHandle()
	fs.mu.Lock()
	fs.dirHandles[h] = &dirHandleState{path: rec.path, entries: entries}
	fs.mu.Unlock()

	op.Handle = h
	return nil
}

// buildDirListing returns the dot-free, offset-ordered Dirent list for
// virtual, combining the materialized directory cache entry (if any) with a
// fresh scan of the corresponding source directory for passthrough
// children. Continuation volumes and successfully probed archive files are
// left out of the scan.
func (fs *FileSystem) buildDirListing(virtual string) ([]fuseops.Dirent, error) {
	if err := fs.ensureProbed(virtual); err != nil {
		return nil, err
	}

	dl := cache.NewDirList()
	fs.state.Filenames.RLock()
	if existing := fs.state.Dirs.Get(virtual); existing != nil {
		dl.Concat(existing.Clone())
	}
	fs.state.Filenames.RUnlock()

	hostDir := archive.ResolveSourcePath(fs.state.SourceRoot, virtual)
	hostEntries, err := os.ReadDir(hostDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, e := range hostEntries {
		name := e.Name()
		cv := path.Join(virtual, name)

		_, kind := fs.state.Filenames.GetCloned(cv)
		switch kind {
		case cache.KindLoopFS, cache.KindRecord:
			continue // continuation volume, or already represented via the archive-derived branch
		case cache.KindMiss:
			if !e.IsDir() {
				// ensureProbed resolved every plain file in this directory
				// to either Record, LocalFS or LoopFS; a lingering Miss
				// here means a successfully-probed archive, hidden in
				// favor of the directory materialized from its members.
				continue
			}
		}

		fi, err := e.Info()
		if err != nil {
			continue
		}
		typ := cache.TypeRegular
		if fi.IsDir() {
			typ = cache.TypeDirectory
		} else if fi.Mode()&os.ModeSymlink != 0 {
			typ = cache.TypeLink
		}
		st := &cache.Stat{
			Mode:  uint32(fi.Mode()),
			Size:  fi.Size(),
			Mtime: fi.ModTime(),
			Nlink: 1,
		}
		dl.Add(name, typ, st, true)
	}

	dl.Close()

	out := make([]fuseops.Dirent, 0, len(dl.Entries()))
	var off fuseops.DirOffset = 1
	for _, e := range dl.Entries() {
		out = append(out, fuseops.Dirent{
			Offset: off,
			Inode:  fs.inodes.lookup(path.Join(virtual, e.Name), e.Type == cache.TypeDirectory).id,
			Name:   e.Name,
			Type:   direntType(e.Type),
		})
		off++
	}
	return out, nil
}

func direntType(t cache.EntryType) fuseops.DirentType {
	switch t {
	case cache.TypeDirectory:
		return fuseops.DT_Dir
	case cache.TypeLink:
		return fuseops.DT_Link
	case cache.TypeRegular:
		return fuseops.DT_File
	default:
		return fuseops.DT_Unknown
	}
}

func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	hs := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if hs == nil {
		return fuse.ENOENT
	}

	if int(op.Offset) > len(hs.entries) {
		return nil
	}

	remaining := hs.entries[op.Offset:]
	for _, d := range remaining {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	return nil
}
