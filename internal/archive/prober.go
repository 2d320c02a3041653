// Package archive implements the archive probing and directory
// materialization pipeline of §4.4: given an archive path, walk its header
// stream once and populate the filename and directory caches.
package archive

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/cache"
	"github.com/nunogt/rar2fs/internal/decoder"
	"github.com/nunogt/rar2fs/internal/options"
	"github.com/nunogt/rar2fs/internal/rarconfig"
	"github.com/nunogt/rar2fs/internal/recursion"
	"github.com/nunogt/rar2fs/internal/volume"
)

// Prober owns the dependencies needed to walk one archive's header stream
// and populate the shared caches. One Prober is constructed per mount and
// reused across every Probe call.
type Prober struct {
	Opts       *options.Registry
	Config     *rarconfig.Table
	Filenames  *cache.FilenameCache
	Dirs       *cache.DirCache
	SourceRoot string
	Logger     Logger

	// Recurse is called for members that look like nested archives when
	// the recursive option is enabled. It is a function rather than a
	// direct dependency on package recursion to keep Prober usable in
	// tests without a real recursion context. mtime is the member's own
	// header mtime, passed through so cycle-detection fingerprints can be
	// derived from a stable value instead of wall-clock time.
	Recurse func(ctx *recursion.Context, parentPath, memberName string, a *decoder.Archive, declaredSize int64, mtime time.Time) (*recursion.Unpacked, error)
}

// Logger is the narrow logging surface the prober needs; satisfied by
// *log.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Probe opens archivePath (first volume of a set, or a standalone file),
// walks its header stream once, and writes filename/directory cache
// entries under the writer lock, per §4.4 step 5. mountRelDir is the
// virtual directory the archive itself lives in (its location relative to
// the source root), used to prefix member paths per step 1.
//
// recCtx may be nil when recursion is disabled or this call is itself
// already inside a recursive chain with no budget left to create a new
// one; the caller decides.
func (p *Prober) Probe(archivePath, mountRelDir string, recCtx *recursion.Context) error {
	return p.probeBuffer(archivePath, mountRelDir, nil, 0, recCtx)
}

// ProbeBuffer probes an in-memory archive (the recursion core's product),
// never touching disk for the archive itself, per §4.4's note that a
// nested prober call "operates on an in-memory buffer ... never on a
// temporary file on disk unless explicitly configured."
func (p *Prober) ProbeBuffer(virtualArchivePath, mountRelDir string, buf []byte, nestedDepth int, recCtx *recursion.Context) error {
	return p.probeBuffer(virtualArchivePath, mountRelDir, buf, nestedDepth, recCtx)
}

func (p *Prober) probeBuffer(archivePath, mountRelDir string, buf []byte, nestedDepth int, recCtx *recursion.Context) error {
	password := ""
	if entry, err := p.Config.Lookup(archivePath); err == nil && entry != nil {
		password = entry.Password
	} else if err != nil {
		return errors.Wrapf(err, "prober: config lookup for %s", archivePath)
	}

	var a *decoder.Archive
	var err error
	if buf != nil {
		a, err = decoder.OpenMemory(buf, password)
	} else {
		a, err = decoder.Open(archivePath, password)
	}
	if err != nil {
		// §4.4 "Unknown/invalid archives": the prober reports no members
		// and the archive itself is exposed as a passthrough.
		p.Filenames.MarkLocalFS(path.Join(mountRelDir, path.Base(archivePath)))
		if p.Logger != nil {
			p.Logger.Printf("prober: %s does not parse as an archive, exposing as plain file: %v", archivePath, err)
		}
		return nil
	}
	defer a.Close()

	scheme, multipart := volume.Detect(archivePath)

	type pending struct {
		header *decoder.Header
		path   string
	}
	var members []pending
	iterations := 0
	const maxHeaderIterations = 10000

	for {
		iterations++
		if iterations > maxHeaderIterations {
			return errors.Errorf("prober: %s exceeds %d header iterations, aborting walk", archivePath, maxHeaderIterations)
		}

		h, err := a.NextHeader()
		if err != nil {
			break // io.EOF or decoder-reported end; treated identically here
		}

		virtual, err := p.virtualMemberPath(archivePath, mountRelDir, h.Name)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Printf("prober: skipping unsafe member %q in %s: %v", h.Name, archivePath, err)
			}
			continue
		}

		isArchiveMember := !h.IsDir && volume.IsArchiveSuffix(h.Name)
		if isArchiveMember && p.Opts.Bool(options.Recursive) && recCtx != nil && p.Recurse != nil {
			unpacked, err := p.Recurse(recCtx, archivePath, h.Name, a, h.Size, h.Mtime)
			if err != nil {
				if p.Logger != nil {
					p.Logger.Printf("prober: nested unpack of %s!/%s declined: %v", archivePath, h.Name, err)
				}
				// Falls through: the member is still recorded as a plain
				// file below, per §4.4 step 4's "if disabled" branch and
				// §7's security-violation policy (skip the offending
				// member, continue the rest of the archive).
			} else {
				nestedVirtualArchive := virtual
				if err := p.ProbeBuffer(nestedVirtualArchive, path.Dir(virtual), unpacked.Bytes, unpacked.Depth, recCtx); err != nil {
					if p.Logger != nil {
						p.Logger.Printf("prober: probing nested archive %s failed: %v", nestedVirtualArchive, err)
					}
				}
				recursion.Done(recCtx)

				rec := p.Filenames.Alloc(virtual)
				rec.ArchivePath = archivePath
				rec.MemberName = h.Name
				rec.NestedDepth = nestedDepth + 1
				rec.ParentArchivePath = archivePath
				rec.Set(cache.FlagIsNestedRAR)
				rec.Set(cache.FlagHideFromListing)
				continue
			}
		}

		members = append(members, pending{header: h, path: virtual})
	}

	p.Filenames.WithWriter(func() {
		for _, m := range members {
			p.writeMemberLocked(archivePath, mountRelDir, m.header, m.path, scheme, multipart, nestedDepth)
		}
	})

	return nil
}

// virtualMemberPath computes the canonical in-mount path of a member,
// prefixing the archive's own mount-relative directory (§4.4 step 1) and
// applying any configured alias (§4.9).
func (p *Prober) virtualMemberPath(archivePath, mountRelDir, memberName string) (string, error) {
	clean, err := recursion.SanitizeMemberPath(memberName)
	if err != nil {
		return "", err
	}

	if entry, _ := p.Config.Lookup(archivePath); entry != nil {
		if renamed, ok := entry.Aliases[clean]; ok {
			clean = renamed
		}
	}

	full := path.Join(mountRelDir, clean)
	canon, ok := cache.CanonicalPath(full)
	if !ok {
		return "", errors.Errorf("member produces unsafe virtual path %q", full)
	}
	return canon, nil
}

func sanitizeRelative(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "/")
	for strings.Contains(name, "../") {
		name = strings.Replace(name, "../", "", 1)
	}
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		return "", errors.New("empty member name")
	}
	return name, nil
}

// writeMemberLocked fills in one filename cache record and its directory
// cache ancestry. The caller must hold the filename cache's writer lock.
func (p *Prober) writeMemberLocked(archivePath, mountRelDir string, h *decoder.Header, virtual string, scheme *volume.Scheme, multipart bool, nestedDepth int) {
	rec := p.Filenames.AllocLocked(virtual)
	rec.ArchivePath = archivePath
	rec.MemberName = h.Name
	rec.NestedDepth = nestedDepth
	rec.Method = h.Method
	rec.Stat = cache.Stat{
		Size:  h.Size,
		Mtime: orNow(h.Mtime),
		Nlink: 1,
		Mode:  modeFor(h),
	}

	if h.IsDir || (h.Size == 0 && strings.HasSuffix(h.Name, "/")) {
		rec.Set(cache.FlagForceDir)
	}

	if h.Encrypted {
		rec.Set(cache.FlagEncrypted)
	}

	if h.Stored && !h.Encrypted {
		rec.Set(cache.FlagRaw)
		rec.Offset = h.DataOffset
		if multipart {
			rec.Set(cache.FlagMultipart)
			rec.Vtype = scheme.VType()
			rec.VnoFirst = scheme.FirstVolumeNumber()
			rec.Vpos, rec.Vlen = scheme.NumberWindow()
			if h.VsizeRealFirst > 0 {
				// ListArchiveInfo resolved the per-volume payload sizes
				// directly; the fixup flag never needs to be consulted.
				rec.VsizeRealFirst = h.VsizeRealFirst
				rec.VsizeRealNext = h.VsizeRealNext
				rec.Set(cache.FlagVsizeResolved)
			} else {
				rec.Set(cache.FlagVsizeFixupNeeded)
			}
		} else {
			rec.VsizeRealFirst = h.Size
			rec.Set(cache.FlagVsizeResolved)
		}
	}

	if p.Opts.Bool(options.FlatOnly) {
		return
	}

	p.materializeAncestryLocked(mountRelDir, virtual, &rec.Stat, h.IsDir)
}

// materializeAncestryLocked registers virtual as a child of its parent
// directory listing, and ensures every intermediate directory component
// between mountRelDir and virtual's parent has at least an implicit entry.
func (p *Prober) materializeAncestryLocked(mountRelDir, virtual string, st *cache.Stat, isDir bool) {
	dir := path.Dir(virtual)
	name := path.Base(virtual)

	typ := cache.TypeRegular
	if isDir {
		typ = cache.TypeDirectory
	}

	p.Dirs.GetOrCreate(dir).Add(name, typ, st, false)

	// Walk upward creating implicit directory entries until we reach
	// mountRelDir, so `ls` on an intermediate path materialized only
	// through a deep member still works.
	for dir != mountRelDir && dir != "." && dir != "/" {
		parent := path.Dir(dir)
		base := path.Base(dir)
		p.Dirs.GetOrCreate(parent).Add(base, cache.TypeDirectory, nil, false)
		dir = parent
	}
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func modeFor(h *decoder.Header) uint32 {
	if h.IsDir {
		return uint32(os.ModeDir) | 0755
	}
	return 0644
}

// ResolveSourcePath maps a mount-relative directory back to a host path
// under the source root, used when deciding whether to treat a directory
// entry as a passthrough candidate before probing.
func ResolveSourcePath(sourceRoot, mountRelDir string) string {
	return filepath.Join(sourceRoot, filepath.FromSlash(mountRelDir))
}
