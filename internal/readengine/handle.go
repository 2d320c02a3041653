// Package readengine implements the read engine of §4.6: raw positional
// reads across volume files for stored members, and a cooperative pipe
// over the external decoder for compressed/encrypted members, unified
// behind one per-open I/O handle with seek/restart bookkeeping.
package readengine

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/nunogt/rar2fs/internal/cache"
	"github.com/nunogt/rar2fs/internal/decoder"
	"github.com/nunogt/rar2fs/internal/volume"
)

// State is the handle state machine of §4.7.
type State int32

const (
	StateInit State = iota
	StateStreaming
	StateDraining
	StateRestarting
	StatePoisoned
	StateReleased
)

// Mode selects which sub-path of §4.6 a handle uses.
type Mode int

const (
	ModeRaw Mode = iota
	ModePiped
)

// Stats accumulates the per-handle counters named in §4.6 ("accounted in
// the per-handle stats").
type Stats struct {
	BytesRead    int64
	RestartCount int64
}

// Handle is one open file's read-engine state, living strictly between
// `open` and `release` (§3).
type Handle struct {
	Mode Mode
	rec  *cache.Record // cloned snapshot taken at open time; geometry/flags don't change under a handle's feet

	state int32 // atomic State

	mu         sync.Mutex
	logicalOff int64

	// Raw path state.
	scheme    *volume.Scheme
	curVolume int
	curFile   *os.File
	curOff    int64 // file offset within curFile

	// Piped path state.
	seekLength  int64
	saveEOF     bool
	archiveOpen func() (*decoder.Archive, error)
	pipeR       *io.PipeReader
	pipeW       *io.PipeWriter
	cancel      context.CancelFunc
	producerErr atomic.Value // error

	// sem bounds the number of concurrently running producer goroutines
	// process-wide, per the worker-threads option (§6). Nil means unbounded.
	sem *semaphore.Weighted

	Stats Stats

	poisonErr error
}

// NewRawHandle constructs a handle for a stored member, geometry taken
// from rec (already resolved: FlagVsizeResolved must be set or the caller
// must be prepared to serve a best-effort single-volume read).
func NewRawHandle(rec *cache.Record, scheme *volume.Scheme) *Handle {
	return &Handle{
		Mode:  ModeRaw,
		rec:   rec,
		state: int32(StateInit),
		scheme: scheme,
	}
}

// NewPipedHandle constructs a handle for a compressed/encrypted member.
// archiveOpen is called once at open and again on every restart; it must
// return a fresh decoder.Archive positioned so that the first Read yields
// byte 0 of the member (i.e. NextHeader has already been advanced to the
// member of interest).
func NewPipedHandle(rec *cache.Record, seekLength int64, saveEOF bool, archiveOpen func() (*decoder.Archive, error)) *Handle {
	return &Handle{
		Mode:        ModePiped,
		rec:         rec,
		state:       int32(StateInit),
		seekLength:  seekLength,
		saveEOF:     saveEOF,
		archiveOpen: archiveOpen,
	}
}

// SetSemaphore bounds this handle's producer goroutine by sem, acquiring
// one unit of weight for the lifetime of each spawned producer. Must be
// called before Open.
func (h *Handle) SetSemaphore(sem *semaphore.Weighted) { h.sem = sem }

// State returns the current handle state.
func (h *Handle) State() State { return State(atomic.LoadInt32(&h.state)) }

func (h *Handle) setState(s State) { atomic.StoreInt32(&h.state, int32(s)) }

// Poison transitions the handle to the poisoned state, recording err as
// the error every subsequent Read returns, per §4.6's error semantics.
func (h *Handle) Poison(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.poisonErr = err
	h.setState(StatePoisoned)
}

// Offset returns the current logical offset.
func (h *Handle) Offset() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logicalOff
}

// Size returns the member's declared size, for SEEK_END/SEEK_HOLE.
func (h *Handle) Size() int64 { return h.rec.Stat.Size }

// Seek implements lseek (§4.6): SEEK_SET/CUR/END map directly;
// SEEK_DATA/SEEK_HOLE return "current offset" / "EOF offset" since
// archive-backed files have no holes.
func (h *Handle) Seek(off int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	const (
		SeekSet  = 0
		SeekCur  = 1
		SeekEnd  = 2
		SeekData = 3
		SeekHole = 4
	)

	var target int64
	switch whence {
	case SeekSet:
		target = off
	case SeekCur:
		target = h.logicalOff + off
	case SeekEnd:
		target = h.rec.Stat.Size + off
	case SeekData:
		return h.logicalOff, nil
	case SeekHole:
		return h.rec.Stat.Size, nil
	default:
		return 0, errors.Errorf("readengine: unsupported whence %d", whence)
	}
	if target < 0 {
		return 0, errors.New("readengine: negative offset")
	}
	h.logicalOff = target
	return target, nil
}

// Release tears the handle down: cancels any producer, closes the pipe
// and the raw file descriptor. Safe to call more than once.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.State() == StateReleased {
		return nil
	}

	var err error
	if h.cancel != nil {
		h.cancel()
	}
	if h.pipeR != nil {
		_ = h.pipeR.Close()
	}
	if h.curFile != nil {
		err = h.curFile.Close()
		h.curFile = nil
	}
	h.setState(StateReleased)
	return err
}
