package readengine

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/cache"
)

// volumeSpan is one (volume, file offset, length) tuple produced by
// geometryFor, satisfied by a single positional read per §4.6.
type volumeSpan struct {
	VolumeNo int
	FileOff  int64
	Length   int64
}

// geometryFor translates a [off, off+length) request against a record's
// raw-read geometry into an ordered list of volume spans. It is a pure
// function so the volume-crossing arithmetic is unit-testable without real
// archive files.
func geometryFor(off, length int64, baseOffset, vsizeRealFirst, vsizeRealNext int64, vnoFirst int, multipart bool) []volumeSpan {
	if length <= 0 {
		return nil
	}

	if !multipart {
		return []volumeSpan{{VolumeNo: vnoFirst, FileOff: baseOffset + off, Length: length}}
	}

	var spans []volumeSpan
	remaining := length
	// Position within the member's logical byte stream.
	pos := off

	// First volume capacity starts at baseOffset and holds
	// vsizeRealFirst member bytes.
	if pos < vsizeRealFirst {
		n := vsizeRealFirst - pos
		if n > remaining {
			n = remaining
		}
		spans = append(spans, volumeSpan{VolumeNo: vnoFirst, FileOff: baseOffset + pos, Length: n})
		remaining -= n
		pos += n
	}
	pos -= vsizeRealFirst

	vol := vnoFirst + 1
	for remaining > 0 && vsizeRealNext > 0 {
		if pos < vsizeRealNext {
			n := vsizeRealNext - pos
			if n > remaining {
				n = remaining
			}
			// Subsequent volumes carry member data from the start of
			// their payload region; the header-skip offset is volume-
			// specific and resolved by the caller via vsize_first vs.
			// vsize_next, not represented here since geometryFor only
			// needs the payload-relative offset.
			spans = append(spans, volumeSpan{VolumeNo: vol, FileOff: pos, Length: n})
			remaining -= n
			pos += n
		}
		pos -= vsizeRealNext
		vol++
	}

	return spans
}

// Read implements the raw path of §4.6: Read(h, off, len) returns up to
// len bytes starting at the handle's current logical offset, crossing
// volume boundaries as needed, looping on short reads, returning a
// partial read only at true end-of-file.
func (h *Handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.State() == StatePoisoned {
		return 0, h.poisonErr
	}

	rec := h.rec
	multipart := rec.Has(cache.FlagMultipart)
	vsizeRealFirst := rec.VsizeRealFirst
	if !multipart {
		// Single-volume members never had the multipart fixup run; the
		// whole payload lives in one span starting at Offset.
		vsizeRealFirst = rec.Stat.Size
	}
	want := int64(len(p))
	if remaining := rec.Stat.Size - h.logicalOff; remaining < want {
		want = remaining
	}
	spans := geometryFor(h.logicalOff, want, rec.Offset, vsizeRealFirst, rec.VsizeRealNext, rec.VnoFirst, multipart)
	if len(spans) == 0 {
		return 0, io.EOF
	}

	total := 0
	for _, span := range spans {
		if err := h.ensureVolume(span.VolumeNo); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// A missing volume is never reported as an error: bytes
				// already read for this call are returned as a short read,
				// otherwise the read returns io.EOF. A gap in the middle of
				// a member is not told apart from the end of the set.
				if total > 0 {
					h.logicalOff += int64(total)
					h.Stats.BytesRead += int64(total)
					return total, nil
				}
				return 0, io.EOF
			}
			h.poisonErr = err
			h.setState(StatePoisoned)
			return total, err
		}

		buf := p[total : total+int(span.Length)]
		n, err := readFullAt(h.curFile, buf, span.FileOff)
		total += n
		if err != nil && err != io.EOF {
			h.poisonErr = errors.Wrap(err, "readengine: raw read")
			h.setState(StatePoisoned)
			h.logicalOff += int64(total)
			h.Stats.BytesRead += int64(total)
			return total, h.poisonErr
		}
		if n < int(span.Length) {
			// Short read at true EOF within this volume.
			break
		}
	}

	h.logicalOff += int64(total)
	h.Stats.BytesRead += int64(total)
	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

func readFullAt(f *os.File, buf []byte, off int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.ReadAt(buf[total:], off+int64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

// ensureVolume makes sure h.curFile refers to the volume numbered n,
// opening (and closing the previous descriptor) on a switch.
func (h *Handle) ensureVolume(n int) error {
	if h.curFile != nil && h.curVolume == n {
		return nil
	}
	if h.curFile != nil {
		_ = h.curFile.Close()
		h.curFile = nil
	}

	path := h.rec.ArchivePath
	if h.scheme != nil {
		path = h.scheme.PathFor(n)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	h.curFile = f
	h.curVolume = n
	return nil
}
