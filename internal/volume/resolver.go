// Package volume implements the multi-volume naming resolver of §4.5:
// detecting the naming scheme of a segmented archive and composing the
// path of volume k on demand.
package volume

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nunogt/rar2fs/internal/cache"
)

// maxVolumeIterations bounds worst-case walks of malformed name patterns,
// per §4.5.
const maxVolumeIterations = 1000

// variant describes one recognized naming scheme.
type variant struct {
	vtype cache.VType
	re    *regexp.Regexp
	// compose renders volume number n (1-based for .partNN.rar, 0-based
	// "r00" for .rNN) back into a file name given the regexp submatches.
	compose func(m []string, n int) string
}

var (
	// name.rNN : base, then ".r" + 2+ digit number.
	reRxx = regexp.MustCompile(`^(.*)\.r(\d{2,})$`)
	// name.partNN.rar, arbitrary digit width.
	rePartDigits = regexp.MustCompile(`^(.*)\.part(\d+)\.rar$`)
)

var variants = []variant{
	{
		vtype: cache.VTypePartDigits,
		re:    rePartDigits,
		compose: func(m []string, n int) string {
			width := len(m[2])
			return fmt.Sprintf("%s.part%0*d.rar", m[1], width, n)
		},
	},
	{
		vtype: cache.VTypeRxx,
		re:    reRxx,
		compose: func(m []string, n int) string {
			width := len(m[2])
			return fmt.Sprintf("%s.r%0*d", m[1], width, n)
		},
	},
}

// Scheme is the detected naming convention for one multi-volume archive,
// enough to compose any volume's path without re-matching every time.
type Scheme struct {
	vtype   cache.VType
	dir     string
	prefix  string
	width   int
	base    int // volume number parsed from the name passed to Detect
	compose func(m []string, n int) string
	matches []string
}

// Detect inspects firstVolumePath (the path the prober or cache record
// references as archive_path) and reports which naming variant it matches,
// if any. For a single-volume archive (no match) ok is false.
func Detect(firstVolumePath string) (s *Scheme, ok bool) {
	base := filepath.Base(firstVolumePath)
	dir := filepath.Dir(firstVolumePath)

	for _, v := range variants {
		m := v.re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		return &Scheme{
			vtype:   v.vtype,
			dir:     dir,
			width:   len(m[2]),
			base:    n,
			compose: v.compose,
			matches: m,
		}, true
	}
	return nil, false
}

// VType reports the detected naming scheme variant.
func (s *Scheme) VType() cache.VType { return s.vtype }

// NumberWindow reports the (position, length) of the numeric field within
// the base name, for §3's vpos/vlen fields. Position is relative to the
// full base name (dir stripped).
func (s *Scheme) NumberWindow() (pos, length int) {
	loc := s.numericSubmatchIndex()
	return loc[0], loc[1] - loc[0]
}

func (s *Scheme) numericSubmatchIndex() []int {
	// FindStringSubmatchIndex on the original base name recomputed lazily;
	// cheap enough relative to archive I/O that re-matching here avoids
	// carrying index state through Detect.
	base := s.matches[0]
	var re *regexp.Regexp
	for _, v := range variants {
		if v.vtype == s.vtype {
			re = v.re
			break
		}
	}
	idx := re.FindStringSubmatchIndex(base)
	// submatch 2 is the numeric group in both variants.
	return []int{idx[4], idx[5]}
}

// PathFor composes the path of volume n (same numbering convention as the
// detected scheme: 0-based for .rNN, matching the first volume's own
// number for .partNN.rar).
func (s *Scheme) PathFor(n int) string {
	name := s.compose(s.matches, n)
	return filepath.Join(s.dir, name)
}

// FirstVolumeNumber returns the numeric value encoded in the first volume's
// own name (vno_first in §3).
func (s *Scheme) FirstVolumeNumber() int { return s.base }

// Walk calls fn for each volume path starting at the first volume's own
// number, stopping at the first path fn reports as absent (fn returns
// false) or after maxVolumeIterations steps, whichever comes first. It
// never touches the filesystem itself; fn is expected to stat or open.
func Walk(s *Scheme, fn func(n int, path string) (cont bool)) {
	for i, n := 0, s.base; i < maxVolumeIterations; i, n = i+1, n+1 {
		if !fn(n, s.PathFor(n)) {
			return
		}
	}
}

// IsArchiveSuffix reports whether name looks like a RAR archive member
// name by extension, used by the prober to decide whether a member is
// itself a nested archive candidate (§4.4 step 4).
func IsArchiveSuffix(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".rar")
}
