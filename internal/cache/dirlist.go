package cache

import "sort"

// EntryType mirrors the four directory-entry kinds named in §4.3.
type EntryType int

const (
	TypeRegular EntryType = iota
	TypeDirectory
	TypeLink
	TypeOther
)

// DirEntry is one child of a materialized directory listing.
type DirEntry struct {
	Name  string
	Type  EntryType
	Hash  uint64
	Valid bool
	Stat  *Stat

	// passthrough records whether this entry came from the source root
	// rather than an archive; passthrough wins ties during Close.
	passthrough bool
}

// DirList is the materialized-so-far listing for one directory path,
// built by repeated Add calls and finalized by Close (§4.3).
type DirList struct {
	entries []*DirEntry
	closed  bool
}

// NewDirList returns an empty, open directory listing.
func NewDirList() *DirList {
	return &DirList{}
}

// Add appends one child entry. Duplicates are allowed during build; Close
// resolves them.
func (d *DirList) Add(name string, typ EntryType, stat *Stat, passthrough bool) {
	d.entries = append(d.entries, &DirEntry{
		Name:        name,
		Type:        typ,
		Hash:        pathHash(name),
		Valid:       true,
		Stat:        stat,
		passthrough: passthrough,
	})
}

// Close sorts the list by (name, type) and marks duplicates invalid, with
// passthrough entries taking priority over archive-backed ones, per §4.3.
// It is idempotent.
func (d *DirList) Close() {
	if d.closed {
		return
	}
	d.closed = true

	sort.SliceStable(d.entries, func(i, j int) bool {
		if d.entries[i].Name != d.entries[j].Name {
			return d.entries[i].Name < d.entries[j].Name
		}
		return d.entries[i].Type < d.entries[j].Type
	})

	for i := 0; i < len(d.entries); {
		j := i + 1
		for j < len(d.entries) && d.entries[j].Name == d.entries[i].Name && d.entries[j].Type == d.entries[i].Type {
			j++
		}
		if j-i > 1 {
			winner := i
			for k := i; k < j; k++ {
				if d.entries[k].passthrough {
					winner = k
					break
				}
			}
			for k := i; k < j; k++ {
				d.entries[k].Valid = k == winner
			}
		}
		i = j
	}
}

// Entries returns the valid entries of a closed list. Calling it before
// Close returns the raw, unresolved build order.
func (d *DirList) Entries() []*DirEntry {
	if !d.closed {
		return d.entries
	}
	out := make([]*DirEntry, 0, len(d.entries))
	for _, e := range d.entries {
		if e.Valid {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of d, open for further mutation regardless of
// whether d itself was closed.
func (d *DirList) Clone() *DirList {
	c := &DirList{entries: make([]*DirEntry, len(d.entries))}
	for i, e := range d.entries {
		ce := *e
		c.entries[i] = &ce
	}
	return c
}

// Concat appends another list's raw entries onto d (used when a directory
// receives contributions from several archives), and reopens d for a fresh
// Close pass.
func (d *DirList) Concat(other *DirList) {
	d.entries = append(d.entries, other.entries...)
	d.closed = false
}

func pathHash(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// DirCache maps a directory virtual path to its materialized listing,
// guarded by the same process-wide lock as FilenameCache (§5); the two
// share an owner (see the mount-level State type) rather than each
// maintaining a private mutex.
type DirCache struct {
	lists map[string]*DirList
}

// NewDirCache returns an empty directory cache.
func NewDirCache() *DirCache {
	return &DirCache{lists: make(map[string]*DirList)}
}

// GetOrCreate returns the listing for path, creating an empty open one if
// absent. Callers must hold the owning writer lock while mutating it.
func (dc *DirCache) GetOrCreate(path string) *DirList {
	l, ok := dc.lists[path]
	if !ok {
		l = NewDirList()
		dc.lists[path] = l
	}
	return l
}

// Get returns the listing for path, or nil if none has been materialized.
func (dc *DirCache) Get(path string) *DirList {
	return dc.lists[path]
}

// Invalidate drops the listing for path.
func (dc *DirCache) Invalidate(path string) {
	delete(dc.lists, path)
}
