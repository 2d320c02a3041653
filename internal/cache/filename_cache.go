// Package cache implements the process-wide filename cache and directory
// cache described in §3/§4.2/§4.3: a hash table from virtual path to
// archive-backed metadata, and a secondary per-directory listing cache
// built from it.
package cache

import (
	"hash/fnv"
	"sync"
)

// Kind distinguishes the three possible outcomes of a Get beyond "found a
// record": a real record, a passthrough sentinel, a dead-path sentinel, or
// a plain miss. Go cannot safely overload a pointer value with sentinel
// semantics (a nil *Record already means "miss"), so the sentinel is
// returned as a separate enum alongside the (always-nil) record pointer.
type Kind int

const (
	KindMiss Kind = iota
	KindRecord
	// KindLocalFS is the LOCAL_FS sentinel: path is a passthrough to the
	// source root.
	KindLocalFS
	// KindLoopFS is the LOOP_FS sentinel: path is a known dead loop or
	// otherwise permanently invalid path.
	KindLoopFS
)

// FilenameCache is the fixed-bucket, open-chaining hash table of §4.2,
// guarded by a single process-wide reader/writer lock per §5.
type FilenameCache struct {
	mu      sync.RWMutex
	buckets []bucket
}

type bucket struct {
	entries map[string]*Record
}

// defaultBucketCount is a prime chosen to spread typical archive trees (a
// few thousand members) across buckets without wasting much memory on an
// empty mount.
const defaultBucketCount = 4099

// New returns an empty filename cache.
func New() *FilenameCache {
	return NewWithBuckets(defaultBucketCount)
}

// NewWithBuckets returns an empty filename cache with an explicit bucket
// count, mainly useful in tests that want to force collisions.
func NewWithBuckets(n int) *FilenameCache {
	if n <= 0 {
		n = defaultBucketCount
	}
	c := &FilenameCache{buckets: make([]bucket, n)}
	for i := range c.buckets {
		c.buckets[i].entries = make(map[string]*Record)
	}
	return c
}

func (c *FilenameCache) bucketFor(path string) *bucket {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return &c.buckets[h.Sum64()%uint64(len(c.buckets))]
}

// sentinel markers stored in a bucket's map alongside real records.
var (
	localFSRecord = &Record{}
	loopFSRecord  = &Record{}
)

// Alloc returns a zeroed record for path, overwriting and freeing any prior
// entry for the same path. The caller must hold no other locks; Alloc takes
// the writer lock itself.
func (c *FilenameCache) Alloc(path string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Record{}
	c.bucketFor(path).entries[path] = r
	return r
}

// AllocLocked is Alloc for a caller that already holds the writer lock
// (e.g. from within WithWriter), such as the prober filling in many
// records under one critical section.
func (c *FilenameCache) AllocLocked(path string) *Record {
	r := &Record{}
	c.bucketFor(path).entries[path] = r
	return r
}

// MarkLocalFSLocked is MarkLocalFS for a caller already holding the writer
// lock.
func (c *FilenameCache) MarkLocalFSLocked(path string) {
	c.bucketFor(path).entries[path] = localFSRecord
}

// MarkLoopFSLocked is MarkLoopFS for a caller already holding the writer
// lock.
func (c *FilenameCache) MarkLoopFSLocked(path string) {
	c.bucketFor(path).entries[path] = loopFSRecord
}

// GetLocked is Get for a caller already holding either lock.
func (c *FilenameCache) GetLocked(path string) (*Record, Kind) {
	return c.getLocked(path)
}

// MarkLocalFS installs the LOCAL_FS sentinel for path.
func (c *FilenameCache) MarkLocalFS(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucketFor(path).entries[path] = localFSRecord
}

// MarkLoopFS installs the LOOP_FS sentinel for path.
func (c *FilenameCache) MarkLoopFS(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucketFor(path).entries[path] = loopFSRecord
}

// Get returns a borrowed record for path. The returned pointer is valid
// only while the caller holds a read lock (see RLock/RUnlock) or after
// calling Clone on it.
func (c *FilenameCache) Get(path string) (*Record, Kind) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getLocked(path)
}

func (c *FilenameCache) getLocked(path string) (*Record, Kind) {
	b := c.bucketFor(path)
	r, ok := b.entries[path]
	if !ok {
		return nil, KindMiss
	}
	switch r {
	case localFSRecord:
		return nil, KindLocalFS
	case loopFSRecord:
		return nil, KindLoopFS
	default:
		return r, KindRecord
	}
}

// GetCloned is Get followed by a Clone, for callers that want to drop the
// lock immediately (the common case on the read path, per §5).
func (c *FilenameCache) GetCloned(path string) (*Record, Kind) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, kind := c.getLocked(path)
	if kind != KindRecord {
		return nil, kind
	}
	return r.Clone(), KindRecord
}

// Invalidate drops the record for path, if any.
func (c *FilenameCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bucketFor(path).entries, path)
}

// InvalidateSubtree drops every entry whose path is prefix or a descendant
// of prefix (prefix/...), used when a source directory is rescanned.
func (c *FilenameCache) InvalidateSubtree(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.buckets {
		for p := range c.buckets[i].entries {
			if p == prefix || (len(p) > len(prefix) && p[:len(prefix)] == prefix && p[len(prefix)] == '/') {
				delete(c.buckets[i].entries, p)
			}
		}
	}
}

// RLock/RUnlock expose the underlying lock for callers that need to
// dereference a borrowed record across multiple operations without paying
// for a second Get (e.g. the read engine inspecting geometry fields).
func (c *FilenameCache) RLock()   { c.mu.RLock() }
func (c *FilenameCache) RUnlock() { c.mu.RUnlock() }

// WithWriter runs fn with the writer lock held, the only way the prober,
// resolver or Invalidate* family are allowed to mutate the cache per §5.
func (c *FilenameCache) WithWriter(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}
