// Package rarfs is the filesystem callback layer of §4.7: a
// fuseutil.FileSystem implementation that translates kernel callbacks into
// filename-cache lookups, directory-cache listings and read-engine
// operations. It owns no archive-specific logic itself — that lives in
// internal/archive, internal/volume, internal/readengine and
// internal/recursion — and is intentionally thin, the way jacobsa/fuse's
// own sample filesystems (memfs, roloopbackfs) are thin wrappers around a
// single in-memory model.
package rarfs

import (
	"context"
	"log"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/nunogt/rar2fs/internal/archive"
	"github.com/nunogt/rar2fs/internal/cache"
	"github.com/nunogt/rar2fs/internal/decoder"
	"github.com/nunogt/rar2fs/internal/options"
	"github.com/nunogt/rar2fs/internal/rarconfig"
	"github.com/nunogt/rar2fs/internal/readengine"
	"github.com/nunogt/rar2fs/internal/recursion"
	"github.com/nunogt/rar2fs/internal/volume"
)

// State is the single owner object described in §9's "Global mutable
// state" design note: created at mount, destroyed at unmount, and handed
// by borrowed reference to every component that needs it. State itself
// holds no lock: the process-wide reader/writer lock lives in Filenames and
// also guards Dirs; the per-archive config table locks on its own.
type State struct {
	SourceRoot string
	Opts       *options.Registry
	Config     *rarconfig.Table
	Filenames  *cache.FilenameCache
	Dirs       *cache.DirCache
	Prober     *archive.Prober

	// Workers bounds the number of concurrently running piped-read
	// producer goroutines to the worker-threads option (§6).
	Workers *semaphore.Weighted

	DebugLogger *log.Logger
	ErrorLogger *log.Logger
}

// NewState builds the process-wide owner object for one mount.
func NewState(sourceRoot string, opts *options.Registry, debugLogger, errorLogger *log.Logger) *State {
	workers := opts.Int(options.WorkerThreads)
	if workers < 1 {
		workers = 1
	}
	s := &State{
		SourceRoot:  sourceRoot,
		Opts:        opts,
		Config:      rarconfig.NewTable(sourceRoot),
		Filenames:   cache.New(),
		Dirs:        cache.NewDirCache(),
		Workers:     semaphore.NewWeighted(workers),
		DebugLogger: debugLogger,
		ErrorLogger: errorLogger,
	}
	s.Prober = &archive.Prober{
		Opts:       opts,
		Config:     s.Config,
		Filenames:  s.Filenames,
		Dirs:       s.Dirs,
		SourceRoot: sourceRoot,
		Logger:     errorLogger,
	}
	s.Prober.Recurse = s.recurse
	return s
}

// FileSystem is the fuseutil.FileSystem implementation mounted at the
// target directory.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	state  *State
	inodes *inodeTable

	mu          sync.Mutex
	dirHandles  map[fuseops.HandleID]*dirHandleState
	fileHandles map[fuseops.HandleID]*readengine.Handle
	nextHandle  uint64
}

var _ fuseutil.FileSystem = (*FileSystem)(nil)

// New builds a FileSystem ready to be passed to fuse.Mount.
func New(state *State) *FileSystem {
	return &FileSystem{
		state:       state,
		inodes:      newInodeTable(state.Opts.Bool(options.FakeInode)),
		dirHandles:  make(map[fuseops.HandleID]*dirHandleState),
		fileHandles: make(map[fuseops.HandleID]*readengine.Handle),
	}
}

func (fs *FileSystem) allocHandle() fuseops.HandleID {
	return fuseops.HandleID(atomic.AddUint64(&fs.nextHandle, 1))
}

func (fs *FileSystem) Init(ctx context.Context, op *fuseops.InitOp) error {
	return nil
}

func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	var st syscallStatfs
	if err := statfs(fs.state.SourceRoot, &st); err != nil {
		fs.state.ErrorLogger.Printf("statfs %s: %v", fs.state.SourceRoot, err)
		return nil // informational only, per SPEC_FULL.md
	}
	op.Blocks = st.Blocks
	op.BlocksFree = st.BFree
	op.BlocksAvailable = st.BAvail
	op.IoSize = uint32(st.Bsize)
	return nil
}

// recurse is the closure wired into archive.Prober.Recurse: it drives the
// recursion core (§4.8) using the already-open decoder.Archive positioned
// at the nested member's header.
func (s *State) recurse(ctx *recursion.Context, parentPath, memberName string, a *decoder.Archive, declaredSize int64, mtime time.Time) (*recursion.Unpacked, error) {
	useTempFile := false // prefer in-memory extraction; see Design Notes open question
	return recursion.Unpack(ctx, parentPath, memberName, a, declaredSize, mtime, useTempFile)
}

// ensureProbed makes sure the directory containing virtual has been
// probed at least once: either it is a plain source-root directory (no
// archive involved) or it contains/derives from an archive the prober
// needs to walk. The filename cache miss path (§2 data flow) funnels
// through here.
func (fs *FileSystem) ensureProbed(dir string) error {
	hostDir := archive.ResolveSourcePath(fs.state.SourceRoot, dir)
	entries, err := os.ReadDir(hostDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "rarfs: reading source directory %s", hostDir)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		hostPath := path.Join(hostDir, name)
		virtual := path.Join(dir, name)

		if _, kind := fs.state.Filenames.GetCloned(virtual); kind == cache.KindRecord || kind == cache.KindLocalFS || kind == cache.KindLoopFS {
			continue
		}

		if isContinuationVolume(hostPath) {
			// A non-first segment of a multi-volume set is never probed or
			// listed on its own; it is read through the first volume's
			// scheme (§4.5).
			fs.state.Filenames.MarkLoopFS(virtual)
			continue
		}

		if !isFirstVolumeCandidate(name) {
			fs.state.Filenames.MarkLocalFS(virtual)
			continue
		}

		if fs.state.Opts.Bool(options.FlatOnly) {
			// §6: flat-only refuses to materialize archives as
			// directories at all; the archive file passes through as-is.
			fs.state.Filenames.MarkLocalFS(virtual)
			continue
		}

		// Each top-level archive starts its own recursion chain.
		var recCtx *recursion.Context
		if fs.state.Opts.Bool(options.Recursive) {
			recCtx = recursion.NewContext(fs.state.Opts)
		}
		if err := fs.state.Prober.Probe(hostPath, dir, recCtx); err != nil {
			fs.state.ErrorLogger.Printf("rarfs: probing %s: %v", hostPath, err)
			fs.state.Filenames.MarkLocalFS(virtual)
		}
	}

	return nil
}

// isFirstVolumeCandidate reports whether name looks like it could be the
// first (or only) volume of an archive, the cheap filter applied before
// paying for a real decoder.Open per §4.4.
func isFirstVolumeCandidate(name string) bool {
	return len(name) >= 4 && name[len(name)-4:] == ".rar"
}

// isContinuationVolume reports whether hostPath matches a non-first segment
// of a known multi-volume naming scheme (§4.5): any ".rNN" member (always a
// continuation, never probed directly), or a ".partNN.rar" member whose
// number is not the set's first.
func isContinuationVolume(hostPath string) bool {
	scheme, ok := volume.Detect(hostPath)
	if !ok {
		return false
	}
	if scheme.VType() == cache.VTypeRxx {
		return true
	}
	return scheme.FirstVolumeNumber() > 1
}
