package recursion

import (
	"hash/fnv"
	"io"
	"os"
	"time"
)

const sampleSize = 4096

// Fingerprint is the triple described in §3/glossary: a 64-bit FNV-1a hash
// of the first 4 KiB XORed with the last 4 KiB then rehashed, paired with
// the archive's byte length and mtime. It is used only for in-memory cycle
// detection during recursive unpacking — never persisted, never used as a
// content-addressing key elsewhere.
type Fingerprint struct {
	Hash  uint64
	Size  int64
	Mtime time.Time
}

// Equal reports whether two fingerprints denote the same archive content
// for cycle-detection purposes.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Hash == o.Hash && f.Size == o.Size && f.Mtime.Equal(o.Mtime)
}

// FingerprintBytes computes a Fingerprint over an in-memory buffer (the
// common case: a nested archive already extracted into memory).
func FingerprintBytes(buf []byte, mtime time.Time) Fingerprint {
	head := buf
	if len(head) > sampleSize {
		head = head[:sampleSize]
	}
	tail := buf
	if len(tail) > sampleSize {
		tail = tail[len(tail)-sampleSize:]
	}

	hh := fnv.New64a()
	_, _ = hh.Write(head)
	ht := fnv.New64a()
	_, _ = ht.Write(tail)

	combined := hh.Sum64() ^ ht.Sum64()
	final := fnv.New64a()
	_ = writeUint64(final, combined)

	return Fingerprint{Hash: final.Sum64(), Size: int64(len(buf)), Mtime: mtime}
}

// FingerprintFile computes a Fingerprint by reading the head and tail of an
// on-disk file, for the (discouraged) temp-file fallback path.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Fingerprint{}, err
	}

	head := make([]byte, sampleSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Fingerprint{}, err
	}
	head = head[:n]

	tail := make([]byte, sampleSize)
	tailStart := st.Size() - int64(len(tail))
	if tailStart < 0 {
		tailStart = 0
	}
	n, err = f.ReadAt(tail, tailStart)
	if err != nil && err != io.EOF {
		return Fingerprint{}, err
	}
	tail = tail[:n]

	hh := fnv.New64a()
	_, _ = hh.Write(head)
	ht := fnv.New64a()
	_, _ = ht.Write(tail)

	combined := hh.Sum64() ^ ht.Sum64()
	final := fnv.New64a()
	_ = writeUint64(final, combined)

	return Fingerprint{Hash: final.Sum64(), Size: st.Size(), Mtime: st.ModTime()}, nil
}

func writeUint64(h io.Writer, v uint64) error {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	_, err := h.Write(b[:])
	return err
}
