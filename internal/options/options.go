// Package options implements the typed key/value registry consumed by every
// other component of the filesystem: I/O tuning, threading, feature toggles
// and presentation switches are all read through here rather than passed
// around as separate function arguments.
package options

import (
	"sync"

	"github.com/spf13/pflag"
)

// Kind identifies which representation a Value holds.
type Kind int

const (
	KindInt Kind = iota
	KindString
	KindBool
)

// Value is one entry in the registry: a single typed representation plus an
// occupancy bit so callers can distinguish "set to the zero value" from
// "never set".
type Value struct {
	Kind Kind
	set  bool
	i    int64
	s    string
	b    bool
}

// Recognized keys, grouped the way §4.1 groups them.
const (
	// I/O tuning
	SeekLength = "seek-length"
	SaveEOF    = "save-eof"
	DirectIO   = "direct-io"
	FlatOnly   = "flat-only"
	NoIdxMmap  = "no-idx-mmap"

	// Threading
	WorkerThreads = "worker-threads"

	// Feature toggles
	Recursive      = "recursive"
	RecursionDepth = "recursion-depth"
	MaxUnpackSize  = "max-unpack-size"

	// Presentation
	SourceRoot  = "source-root"
	FakeInode   = "fake-inode"
	MountOption = "mount-option"
)

const (
	defaultSeekLength     = int64(4 << 20) // 4 MiB
	defaultWorkerThreads  = int64(4)
	defaultRecursionDepth = int64(5)
	// MaxRecursionDepth is the absolute cap from §3; no configuration may
	// exceed it regardless of --recursion-depth.
	MaxRecursionDepth    = 10
	defaultMaxUnpackSize = int64(10 << 30) // 10 GiB
)

// Registry is the process-wide options store. Writes only happen at startup,
// before FUSE callbacks are registered; after that every method here is
// read-only and safe for concurrent callers.
type Registry struct {
	mu     sync.RWMutex
	values map[string]*Value
}

// New returns a registry pre-populated with the documented defaults.
func New() *Registry {
	r := &Registry{values: make(map[string]*Value)}
	r.setInt(SeekLength, defaultSeekLength)
	r.setBool(SaveEOF, false)
	r.setBool(DirectIO, false)
	r.setBool(FlatOnly, false)
	r.setBool(NoIdxMmap, false)
	r.setInt(WorkerThreads, defaultWorkerThreads)
	r.setBool(Recursive, false)
	r.setInt(RecursionDepth, defaultRecursionDepth)
	r.setInt(MaxUnpackSize, defaultMaxUnpackSize)
	r.setBool(FakeInode, false)
	return r
}

func (r *Registry) setInt(key string, v int64) {
	r.values[key] = &Value{Kind: KindInt, set: true, i: v}
}

func (r *Registry) setString(key string, v string) {
	r.values[key] = &Value{Kind: KindString, set: true, s: v}
}

func (r *Registry) setBool(key string, v bool) {
	r.values[key] = &Value{Kind: KindBool, set: true, b: v}
}

// SetInt overwrites an integer option. Intended for use at startup only.
func (r *Registry) SetInt(key string, v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setInt(key, v)
}

// SetString overwrites a string option. Intended for use at startup only.
func (r *Registry) SetString(key string, v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setString(key, v)
}

// SetBool overwrites a bool option. Intended for use at startup only.
func (r *Registry) SetBool(key string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setBool(key, v)
}

// Int returns the integer value for key, or 0 if unset.
func (r *Registry) Int(key string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[key]; ok && v.set {
		return v.i
	}
	return 0
}

// String returns the string value for key, or "" if unset.
func (r *Registry) String(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[key]; ok && v.set {
		return v.s
	}
	return ""
}

// Bool returns the bool value for key, or false if unset.
func (r *Registry) Bool(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[key]; ok && v.set {
		return v.b
	}
	return false
}

// IsSet reports whether key has ever been written, distinguishing "set to
// the zero value" from "never touched" per §4.1.
func (r *Registry) IsSet(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return ok && v.set
}

// BindFlags registers every CLI option in §6 onto fs, backed by this
// registry. Call Apply after fs.Parse to pull the parsed values back in.
func (r *Registry) BindFlags(fs *pflag.FlagSet) *CLIFlags {
	f := &CLIFlags{
		SeekLength:     fs.Int64("seek-length", r.Int(SeekLength), "bytes of forward seek absorbed by draining the pipe"),
		SaveEOF:        fs.Bool("save-eof", r.Bool(SaveEOF), "recorded on piped handles; the producer is still stopped on release and restart"),
		FlatOnly:       fs.Bool("flat-only", r.Bool(FlatOnly), "never materialize archives as directories"),
		NoIdxMmap:      fs.Bool("no-idx-mmap", r.Bool(NoIdxMmap), "never memory-map .r2i index files"),
		DirectIO:       fs.Bool("direct-io", r.Bool(DirectIO), "set direct I/O on opens"),
		Recursive:      fs.Bool("recursive", r.Bool(Recursive), "enable nested-archive unpacking"),
		RecursionDepth: fs.Int("recursion-depth", int(r.Int(RecursionDepth)), "max nested depth (1..10)"),
		MaxUnpackSize:  fs.Int64("max-unpack-size", r.Int(MaxUnpackSize), "cumulative byte cap across one recursive chain"),
		FakeInode:      fs.Bool("fake-inode", r.Bool(FakeInode), "derive inode numbers from a hash of the virtual path"),
	}
	return f
}

// CLIFlags holds the pflag handles bound by BindFlags.
type CLIFlags struct {
	SeekLength     *int64
	SaveEOF        *bool
	FlatOnly       *bool
	NoIdxMmap      *bool
	DirectIO       *bool
	Recursive      *bool
	RecursionDepth *int
	MaxUnpackSize  *int64
	FakeInode      *bool
}

// Apply copies parsed CLI values into the registry, clamping
// recursion-depth to the §3 hard cap.
func (r *Registry) Apply(f *CLIFlags) {
	r.SetInt(SeekLength, *f.SeekLength)
	r.SetBool(SaveEOF, *f.SaveEOF)
	r.SetBool(FlatOnly, *f.FlatOnly)
	r.SetBool(NoIdxMmap, *f.NoIdxMmap)
	r.SetBool(DirectIO, *f.DirectIO)
	r.SetBool(Recursive, *f.Recursive)

	depth := int64(*f.RecursionDepth)
	if depth > MaxRecursionDepth {
		depth = MaxRecursionDepth
	}
	if depth < 1 {
		depth = 1
	}
	r.SetInt(RecursionDepth, depth)
	r.SetInt(MaxUnpackSize, *f.MaxUnpackSize)
	r.SetBool(FakeInode, *f.FakeInode)
}
