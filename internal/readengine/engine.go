package readengine

import "context"

// ReadAt dispatches to the raw or piped path depending on h.Mode, first
// seeking if the requested offset differs from the handle's current
// logical offset — mirroring how a kernel read(2) at an arbitrary offset
// is served by FUSE's read callback (§4.7), which always carries an
// explicit offset rather than assuming sequential access.
func (h *Handle) ReadAt(ctx context.Context, off int64, p []byte) (int, error) {
	if h.Mode == ModeRaw {
		if _, err := h.Seek(off, 0); err != nil {
			return 0, err
		}
		return h.Read(p)
	}

	if off != h.Offset() {
		if err := h.SeekPiped(ctx, off); err != nil {
			return 0, err
		}
	}
	return h.ReadPiped(p)
}
