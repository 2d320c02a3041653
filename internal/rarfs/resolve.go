package rarfs

import (
	"os"
	"path"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/nunogt/rar2fs/internal/archive"
	"github.com/nunogt/rar2fs/internal/cache"
)

// resolved is what resolve produces for one virtual path: enough to answer
// LookUpInode/GetInodeAttributes and to decide how OpenFile/ReadFile should
// serve it.
type resolved struct {
	attrs fuseops.InodeAttributes
	isDir bool

	// rec is non-nil when the path is backed by an archive member.
	rec *cache.Record
	// hostPath is non-nil (non-empty) when the path is a source-root
	// passthrough.
	hostPath string
}

// resolve answers what virtual (an already-canonical, slash-separated,
// root-relative path, "" meaning the mount root) refers to, probing its
// parent directory on first sight the way §2's data flow describes: a miss
// in the filename cache triggers a probe of the containing directory, not
// of the single path in question, since probing is an archive-at-a-time
// operation.
func (fs *FileSystem) resolve(virtual string) (*resolved, error) {
	if virtual == "" {
		fi, err := os.Lstat(fs.state.SourceRoot)
		if err != nil {
			return nil, err
		}
		return &resolved{attrs: attrsFromHostFileInfo(fi), isDir: true, hostPath: fs.state.SourceRoot}, nil
	}

	parent := path.Dir(virtual)
	if parent == "." {
		parent = ""
	}
	if err := fs.ensureProbed(parent); err != nil {
		return nil, err
	}

	if rec, kind := fs.state.Filenames.GetCloned(virtual); kind == cache.KindRecord {
		isDir := rec.Has(cache.FlagForceDir) || os.FileMode(rec.Stat.Mode).IsDir()
		return &resolved{attrs: attrsFromStat(&rec.Stat), isDir: isDir, rec: rec}, nil
	}

	fs.state.Filenames.RLock()
	dl := fs.state.Dirs.Get(virtual)
	fs.state.Filenames.RUnlock()
	if dl != nil {
		now := time.Now()
		return &resolved{
			attrs: fuseops.InodeAttributes{
				Size:  0,
				Nlink: 1,
				Mode:  os.ModeDir | 0755,
				Mtime: now,
				Atime: now,
				Ctime: now,
				Uid:   uint32(os.Getuid()),
				Gid:   uint32(os.Getgid()),
			},
			isDir: true,
		}, nil
	}

	hostPath := archive.ResolveSourcePath(fs.state.SourceRoot, virtual)
	if fi, err := os.Lstat(hostPath); err == nil {
		return &resolved{attrs: attrsFromHostFileInfo(fi), isDir: fi.IsDir(), hostPath: hostPath}, nil
	}

	return nil, os.ErrNotExist
}
