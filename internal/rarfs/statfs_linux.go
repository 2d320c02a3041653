//go:build linux

package rarfs

import "golang.org/x/sys/unix"

// syscallStatfs is the subset of statfs(2) fields §6's statfs callback
// needs to report.
type syscallStatfs struct {
	Blocks uint64
	BFree  uint64
	BAvail uint64
	Bsize  int64
}

func statfs(path string, out *syscallStatfs) error {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return err
	}
	out.Blocks = st.Blocks
	out.BFree = st.Bfree
	out.BAvail = st.Bavail
	out.Bsize = int64(st.Bsize)
	return nil
}
