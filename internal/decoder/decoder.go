// Package decoder adapts github.com/javi11/rardecode/v2 to the narrow
// interface §6 describes for the "archive decoder library" external
// collaborator: open, walk headers, extract one member's bytes, close.
// Every other component talks to this package, never to rardecode
// directly, so the rest of the tree stays decoupled from the third-party
// API's exact shape.
package decoder

import (
	"bytes"
	"io"
	"time"

	"github.com/javi11/rardecode/v2"
	"github.com/pkg/errors"
)

// Header describes one member as yielded by NextHeader, carrying exactly
// the fields the prober needs to fill in a filename cache record (§3/§4.4).
type Header struct {
	Name       string
	IsDir      bool
	Size       int64 // decoded size
	PackedSize int64
	Mtime      time.Time
	Method     int
	Encrypted  bool
	Stored     bool  // readable without decoding, i.e. raw=1 candidate
	DataOffset int64 // byte offset of the member's payload within its first volume, if known

	// VsizeRealFirst/VsizeRealNext are the real (on-disk) payload byte
	// counts the first volume and each continuation volume carry for this
	// member, resolved from rardecode.ListArchiveInfo's per-part geometry.
	// Both are 0 when that geometry could not be resolved (e.g. an
	// in-memory nested archive, where ListArchiveInfo has no path to open).
	VsizeRealFirst int64
	VsizeRealNext  int64

	Solid bool
}

// Archive is an open archive handle, positioned at "before first header"
// until NextHeader is called.
type Archive struct {
	r        *rardecode.Reader
	closer   io.Closer
	password string

	// partInfo maps a member name to its volume-by-volume layout, resolved
	// once at Open time via rardecode.ListArchiveInfo (§4.4 step 2's raw-read
	// geometry). Nil for in-memory archives, which have no path for
	// ListArchiveInfo to scan.
	partInfo map[string]rardecode.ArchiveFileInfo
}

// Open opens an archive from a path on disk. password may be empty.
func Open(path, password string) (*Archive, error) {
	var opts []rardecode.Option
	if password != "" {
		opts = append(opts, rardecode.Password(password))
	}
	r, err := rardecode.OpenReader(path, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "decoder: open %s", path)
	}
	return &Archive{r: &r.Reader, closer: r, password: password, partInfo: scanPartInfo(path, opts)}, nil
}

// OpenMemory opens an archive whose bytes already live in memory (the
// recursion core's in-memory extraction product, §4.8). rardecode has no
// native memory-backed volume source, so this wraps buf in a ReaderAt the
// library can seek over via its generic reader constructor. ListArchiveInfo
// needs a path to scan, so partInfo is left nil here; NextHeader then sets
// Method only for Stored members, from the header stream itself, and
// leaves DataOffset at zero.
func OpenMemory(buf []byte, password string) (*Archive, error) {
	var opts []rardecode.Option
	if password != "" {
		opts = append(opts, rardecode.Password(password))
	}
	r, err := rardecode.NewReader(bytes.NewReader(buf), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "decoder: open in-memory archive")
	}
	return &Archive{r: r, password: password}, nil
}

// scanPartInfo runs rardecode.ListArchiveInfo once against the first
// volume, keyed by member name, so NextHeader can resolve raw-read geometry
// without re-walking the archive. A scan failure (e.g. an archive
// ListArchiveInfo can't fully characterize, per its own "works best with
// stored files" caveat) is not fatal: the caller just gets the Stored-only
// fallback instead of per-volume geometry.
func scanPartInfo(path string, opts []rardecode.Option) map[string]rardecode.ArchiveFileInfo {
	infos, err := rardecode.ListArchiveInfo(path, opts...)
	if err != nil {
		return nil
	}
	byName := make(map[string]rardecode.ArchiveFileInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}
	return byName
}

// NextHeader advances to the next member, returning io.EOF when the
// archive is exhausted.
func (a *Archive) NextHeader() (*Header, error) {
	fh, err := a.r.Next()
	if err != nil {
		return nil, err
	}

	stored := !fh.IsDir && fh.UnPackedSize == fh.PackedSize && !fh.IsEncrypted()
	h := &Header{
		Name:       fh.Name,
		IsDir:      fh.IsDir,
		Size:       fh.UnPackedSize,
		PackedSize: fh.PackedSize,
		Mtime:      modTimeOf(fh),
		Encrypted:  fh.IsEncrypted(),
		Stored:     stored,
		Solid:      fh.IsSolid(),
	}

	if info, ok := a.partInfo[fh.Name]; ok {
		h.Method = methodCodeFor(stored, info.CompressionMethod)
		if len(info.Parts) > 0 {
			h.DataOffset = info.Parts[0].DataOffset
			h.VsizeRealFirst = info.Parts[0].PackedSize
		}
		if len(info.Parts) > 1 {
			h.VsizeRealNext = info.Parts[1].PackedSize
		}
	} else if stored {
		// No per-volume geometry available (in-memory archive, or the
		// scan simply didn't cover this member); store/no-store is still
		// derivable from the header stream alone.
		h.Method = methodStore
	}
	return h, nil
}

// RAR's classic file-header method byte (§6's "user.method" identifier):
// 0x30 is always "stored", 0x31-0x35 are the LZSS compression levels from
// fastest to best. rardecode/v2 doesn't surface that byte directly; its
// ListArchiveInfo instead reports a CompressionMethod string keyed by RAR
// format generation ("stored", "rar2.0", "rar2.9", "rar5.0", "rar7.0"),
// which carries no compression-intensity information. methodCodeFor maps
// what's actually available onto the closest classic code so the xattr at
// least distinguishes stored from compressed, and compressed archives by
// format generation; it cannot recover the true fastest/fast/normal/good/
// best level rardecode never exposes.
const (
	methodStore  = 0x30
	methodNormal = 0x33
	methodGood   = 0x34
	methodBest   = 0x35
)

func methodCodeFor(stored bool, compressionMethod string) int {
	if stored {
		return methodStore
	}
	switch compressionMethod {
	case "rar2.0":
		return methodNormal
	case "rar2.9":
		return methodGood
	case "rar5.0", "rar7.0":
		return methodBest
	default:
		return 0
	}
}

// Read pulls decoded bytes of the member most recently returned by
// NextHeader. It is the piped read path's only interaction with the
// decoder.
func (a *Archive) Read(p []byte) (int, error) {
	return a.r.Read(p)
}

// Close releases the archive handle.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func modTimeOf(fh *rardecode.FileHeader) time.Time {
	if !fh.ModificationTime.IsZero() {
		return fh.ModificationTime
	}
	return time.Time{}
}
