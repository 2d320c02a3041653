package rarfs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/nunogt/rar2fs/internal/cache"
)

// attrsFromStat converts a cache.Stat into the kernel-facing
// fuseops.InodeAttributes (§3 says Stat "mirrors POSIX fields"; the
// conversion itself is the callback layer's job per SPEC_FULL.md).
func attrsFromStat(st *cache.Stat) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  uint64(st.Size),
		Nlink: orOne(st.Nlink),
		Mode:  os.FileMode(st.Mode),
		Mtime: orNow(st.Mtime),
		Atime: orNow(st.Mtime),
		Ctime: orNow(st.Mtime),
		Uid:   st.Uid,
		Gid:   st.Gid,
	}
}

// attrsFromHostFileInfo converts a passthrough host os.FileInfo into
// kernel-facing attributes, used for the source-root passthrough path
// (§3: "passthrough wins" ties).
func attrsFromHostFileInfo(fi os.FileInfo) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  uint64(fi.Size()),
		Nlink: 1,
		Mode:  fi.Mode(),
		Mtime: fi.ModTime(),
		Atime: fi.ModTime(),
		Ctime: fi.ModTime(),
		Uid:   uint32(os.Getuid()),
		Gid:   uint32(os.Getgid()),
	}
}

func orOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// cacheExpiration (used for both entry and attribute expiry) is long because archive-backed
// content never spontaneously mutates (matching memFS's rationale in the
// teacher: "We don't spontaneously mutate, so the kernel can cache as long
// as it wants").
const cacheExpiration = 365 * 24 * time.Hour

func expiresIn(d time.Duration) time.Time { return time.Now().Add(d) }
