package rarfs

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/jacobsa/fuse/fuseops"
)

// inodeRecord is the adaptation layer between the kernel's inode-ID space
// and the path-keyed filename cache described in §3/§4.2: jacobsa/fuse
// speaks in fuseops.InodeID, everything downstream of it speaks in virtual
// paths, and this table bridges the two, mirroring the inode table pattern
// jacobsa/fuse's own sample filesystems use.
type inodeRecord struct {
	id    fuseops.InodeID
	path  string // virtual path, "" for the root
	isDir bool
}

// inodeTable owns the live inode → path mapping and its reverse index, so
// that a LookUpInode for an already-seen child returns the same inode ID
// every time within one mount (required for kernel dentry caching to be
// coherent, even though this filesystem never mutates).
type inodeTable struct {
	mu       sync.Mutex
	byID     map[fuseops.InodeID]*inodeRecord
	byPath   map[string]fuseops.InodeID
	nextFree uint64
	fake     bool
}

func newInodeTable(fakeInode bool) *inodeTable {
	t := &inodeTable{
		byID:     make(map[fuseops.InodeID]*inodeRecord),
		byPath:   make(map[string]fuseops.InodeID),
		nextFree: uint64(fuseops.RootInodeID) + 1,
		fake:     fakeInode,
	}
	root := &inodeRecord{id: fuseops.RootInodeID, path: "", isDir: true}
	t.byID[fuseops.RootInodeID] = root
	t.byPath[""] = fuseops.RootInodeID
	return t
}

// lookup returns the inode record for path, creating one if this is the
// first time the path has been seen. isDir must reflect the path's type
// as known at call time; it is not updated on subsequent lookups since
// archive-backed paths never change type during a mount.
func (t *inodeTable) lookup(path string, isDir bool) *inodeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byPath[path]; ok {
		return t.byID[id]
	}

	var id fuseops.InodeID
	if t.fake {
		id = fuseops.InodeID(fakeInodeNumber(path))
	} else {
		id = fuseops.InodeID(atomic.AddUint64(&t.nextFree, 1) - 1)
	}

	rec := &inodeRecord{id: id, path: path, isDir: isDir}
	t.byID[id] = rec
	t.byPath[path] = id
	return rec
}

// byInode returns the record for a previously issued inode ID, or nil if
// it has been forgotten (or never existed).
func (t *inodeTable) byInode(id fuseops.InodeID) *inodeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// forget drops an inode's table entry, per ForgetInode (§6).
func (t *inodeTable) forget(id fuseops.InodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.byID[id]; ok {
		delete(t.byPath, rec.path)
		delete(t.byID, id)
	}
}

// fakeInodeNumber derives a stable inode number from a virtual path, so
// repeated mounts of the same source tree hand out the same numbers (the
// fake-inode presentation option named in §4.1 and supplemented in
// SPEC_FULL.md).
func fakeInodeNumber(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	v := h.Sum64()
	if v <= uint64(fuseops.RootInodeID) {
		v += uint64(fuseops.RootInodeID) + 1
	}
	return v
}
