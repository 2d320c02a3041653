package cache

import "time"

// Flag is one bit of the packed flag group described in §3. The packing is
// a layout optimization only; each bit is an independent boolean read with
// Has and written with Set/Clear under the filename cache's writer lock.
type Flag uint32

const (
	FlagRaw Flag = 1 << iota
	FlagMultipart
	FlagForceDir
	FlagVsizeFixupNeeded
	FlagEncrypted
	FlagVsizeResolved
	FlagUnresolved
	FlagDryRunDone
	FlagCheckAtime
	FlagDirectIO
	FlagAVITested
	FlagSaveEOF
	FlagDetectionDeferred
	FlagIsNestedRAR
	FlagHideFromListing
)

// Stat mirrors the POSIX fields named in §3. Time fields use time.Time
// rather than raw epoch integers; conversion to kernel-facing values is the
// callback layer's job.
type Stat struct {
	Mode  uint32
	Size  int64
	Mtime time.Time
	Uid   uint32
	Gid   uint32
	Nlink uint32
}

// VType identifies a multi-volume naming scheme variant, as enumerated by
// the volume resolver (§4.5).
type VType int

const (
	VTypeNone VType = iota
	VTypeRxx        // name.rNN
	VTypePartDigits // name.partNN.rar
)

// Record is the canonical metadata entry for one virtual path (§3). All
// real records are owned by the cache that allocated them; callers that
// need to outlive the reader/writer lock must call Clone.
type Record struct {
	ArchivePath    string
	MemberName     string
	LinkTarget     string
	Stat           Stat
	Method         int

	// Raw-read geometry (§3).
	Offset         int64
	VsizeFirst     int64
	VsizeNext      int64
	VsizeRealFirst int64
	VsizeRealNext  int64
	VnoBase        int
	VnoFirst       int
	Vlen           int
	Vpos           int
	Vtype          VType

	// Nested-unpacking metadata.
	NestedDepth      int
	ParentArchivePath string

	flags uint32
}

// Has reports whether a flag bit is set. Safe to call while holding the
// cache's reader lock.
func (r *Record) Has(f Flag) bool {
	return r.flags&uint32(f) != 0
}

// Set turns a flag bit on. The caller must hold the cache writer lock.
func (r *Record) Set(f Flag) {
	r.flags |= uint32(f)
}

// Clear turns a flag bit off. The caller must hold the cache writer lock.
func (r *Record) Clear(f Flag) {
	r.flags &^= uint32(f)
}

// Clone deep-copies r into a new, cache-independent Record, per §4.2's
// clone/copy/free_clone trio. Go's GC makes free_clone a no-op; Clone alone
// is enough to let a reader drop the process lock and keep working.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
