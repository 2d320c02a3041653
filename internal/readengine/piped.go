package readengine

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/decoder"
)

// Open spawns the producer goroutine for a piped handle, per §4.6: the
// producer is the pipe's only writer, driving the decoder and streaming
// chunks to the consumer side held by this handle.
func (h *Handle) Open(ctx context.Context) error {
	if h.Mode != ModePiped {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spawnProducerLocked(ctx)
}

func (h *Handle) spawnProducerLocked(ctx context.Context) error {
	if h.sem != nil {
		if err := h.sem.Acquire(ctx, 1); err != nil {
			return errors.Wrap(err, "readengine: acquiring worker slot")
		}
	}

	a, err := h.archiveOpen()
	if err != nil {
		if h.sem != nil {
			h.sem.Release(1)
		}
		return errors.Wrap(err, "readengine: opening decoder for piped read")
	}

	pr, pw := io.Pipe()
	cctx, cancel := context.WithCancel(ctx)

	h.pipeR = pr
	h.pipeW = pw
	h.cancel = cancel
	h.producerErr.Store((error)(nil))

	go h.runProducer(cctx, a, pw)

	h.setState(StateStreaming)
	return nil
}

func (h *Handle) runProducer(ctx context.Context, a *decoder.Archive, pw *io.PipeWriter) {
	defer a.Close()
	if h.sem != nil {
		defer h.sem.Release(1)
	}

	buf := make([]byte, 64*1024)
	var total int64
	for {
		select {
		case <-ctx.Done():
			_ = pw.CloseWithError(ctx.Err())
			return
		default:
		}

		n, err := a.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, werr := pw.Write(buf[:n]); werr != nil {
				// Consumer went away (release/restart); nothing more to do.
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				_ = pw.Close()
				return
			}
			h.producerErr.Store(err)
			_ = pw.CloseWithError(err)
			return
		}
	}
}

// ReadPiped implements the piped path of §4.6: ordinary sequential consumption
// of the pipe, advancing the logical offset by exactly what was returned.
func (h *Handle) ReadPiped(p []byte) (int, error) {
	h.mu.Lock()
	pr := h.pipeR
	poisoned := h.State() == StatePoisoned
	perr := h.poisonErr
	h.mu.Unlock()

	if poisoned {
		return 0, perr
	}

	n, err := pr.Read(p)
	if n > 0 {
		h.mu.Lock()
		h.logicalOff += int64(n)
		h.Stats.BytesRead += int64(n)
		h.mu.Unlock()
	}
	if err != nil && err != io.EOF {
		if pe, ok := h.producerErr.Load().(error); ok && pe != nil {
			err = pe
		}
		h.Poison(err)
	}
	return n, err
}

// SeekPiped implements the seek-length/restart policy of §4.6 for the
// piped path: a forward seek within seekLength bytes drains the pipe; a
// larger forward seek, or any backward seek, restarts the producer.
func (h *Handle) SeekPiped(ctx context.Context, target int64) error {
	h.mu.Lock()
	cur := h.logicalOff
	h.mu.Unlock()

	if target == cur {
		return nil
	}

	if target > cur && target-cur <= h.seekLength {
		return h.drain(target - cur)
	}

	return h.restart(ctx, target)
}

// drain discards n bytes from the pipe without copying them to the
// caller, implementing the short-seek-forward absorption of §4.6.
func (h *Handle) drain(n int64) error {
	h.mu.Lock()
	h.setState(StateDraining)
	pr := h.pipeR
	h.mu.Unlock()

	_, err := io.CopyN(io.Discard, pr, n)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.poisonErr = errors.Wrap(err, "readengine: draining pipe for short seek")
		h.setState(StatePoisoned)
		return h.poisonErr
	}
	h.logicalOff += n
	h.setState(StateStreaming)
	return nil
}

// restart cancels the current producer, spawns a fresh one, and drains it
// up to target. Restarts are the single most expensive operation per
// §4.6 and are counted in Stats.
func (h *Handle) restart(ctx context.Context, target int64) error {
	h.mu.Lock()
	h.setState(StateRestarting)
	if h.cancel != nil {
		h.cancel()
	}
	if h.pipeR != nil {
		_ = h.pipeR.Close()
	}
	h.logicalOff = 0
	h.Stats.RestartCount++
	err := h.spawnProducerLocked(ctx)
	h.mu.Unlock()

	if err != nil {
		h.Poison(err)
		return err
	}
	if target == 0 {
		h.mu.Lock()
		h.setState(StateStreaming)
		h.mu.Unlock()
		return nil
	}
	return h.drain(target)
}
