// Package rarconfig parses the per-source ".rarconfig" file (§4.9): an
// INI-like file with one section per archive path, binding passwords,
// per-archive overrides of seek-length/save-eof, and member aliases.
package rarconfig

import (
	"path/filepath"
	"sync"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// Entry is the resolved configuration for one archive path.
type Entry struct {
	Password   string
	PasswordW  []uint16 // wide-string materialization, for decoders that want UTF-16
	SeekLength int64
	SaveEOF    bool
	set        struct {
		seekLength bool
		saveEOF    bool
	}

	// Aliases maps an original member name to the name it should be
	// presented as. Populated by load; both names must share the
	// same directory component (§4.9) or the alias is rejected.
	Aliases map[string]string
}

// HasSeekLength reports whether this entry overrides the global seek-length.
func (e *Entry) HasSeekLength() bool { return e.set.seekLength }

// HasSaveEOF reports whether this entry overrides the global save-eof.
func (e *Entry) HasSaveEOF() bool { return e.set.saveEOF }

// Table is the process-wide per-archive configuration table (§5): a single
// mutex serializes first-touch parsing of the underlying .rarconfig file so
// concurrent lookups from different mount threads don't race to parse it
// twice.
type Table struct {
	path string

	once    sync.Once
	loadErr error

	mu      sync.RWMutex
	entries map[string]*Entry
	global  *Entry
}

// NewTable returns a table backed by the ".rarconfig" file located directly
// under sourceRoot. Parsing is deferred to first touch.
func NewTable(sourceRoot string) *Table {
	return &Table{
		path:    filepath.Join(sourceRoot, ".rarconfig"),
		entries: make(map[string]*Entry),
	}
}

func (t *Table) ensureLoaded() error {
	t.once.Do(func() {
		t.loadErr = t.load()
	})
	return t.loadErr
}

func (t *Table) load() error {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: false, AllowShadows: true}, t.path)
	if err != nil {
		// Missing .rarconfig is not an error: most sources have none.
		if isNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "rarconfig: loading %s", t.path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sec := range cfg.Sections() {
		entry := &Entry{Aliases: make(map[string]string)}
		if sec.HasKey("password") {
			entry.Password = sec.Key("password").String()
			entry.PasswordW = utf16Of(entry.Password)
		}
		if sec.HasKey("seek-length") {
			v, err := sec.Key("seek-length").Int64()
			if err != nil {
				return errors.Wrapf(err, "rarconfig: [%s] seek-length", sec.Name())
			}
			entry.SeekLength = v
			entry.set.seekLength = true
		}
		if sec.HasKey("save-eof") {
			v, err := sec.Key("save-eof").Bool()
			if err != nil {
				return errors.Wrapf(err, "rarconfig: [%s] save-eof", sec.Name())
			}
			entry.SaveEOF = v
			entry.set.saveEOF = true
		}
		// A section may carry multiple "alias" lines; ini exposes those
		// as shadowed values of the same key.
		for _, raw := range sec.Key("alias").ValueWithShadows() {
			orig, renamed, err := parseAlias(raw)
			if err != nil {
				return errors.Wrapf(err, "rarconfig: [%s] alias %q", sec.Name(), raw)
			}
			if filepath.Dir(orig) != filepath.Dir(renamed) {
				// Cross-directory aliases are undefined per the Design Notes'
				// open question; treat them as a rejected collision.
				return errors.Errorf("rarconfig: [%s] alias %q -> %q crosses a directory boundary", sec.Name(), orig, renamed)
			}
			entry.Aliases[orig] = renamed
		}

		if sec.Name() == ini.DefaultSection {
			t.global = entry
			continue
		}
		// Section names are archive paths relative to the directory that
		// holds .rarconfig; Lookup is called with full source paths.
		t.entries[filepath.Join(filepath.Dir(t.path), sec.Name())] = entry
	}

	return nil
}

// Lookup returns the configuration entry for archivePath, or nil if none is
// configured. Errors from a malformed .rarconfig are sticky and returned on
// every call until the file is fixed and the table recreated.
func (t *Table) Lookup(archivePath string) (*Entry, error) {
	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[filepath.Clean(archivePath)]; ok {
		return e, nil
	}
	return nil, nil
}

// Global returns the [DEFAULT]-section entry, used as a fallback source of
// options-registry defaults, or nil if there is no .rarconfig file. The
// section is always present once the file exists, even with no bare keys.
func (t *Table) Global() (*Entry, error) {
	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.global, nil
}

func utf16Of(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

func isNotExist(err error) bool {
	type notExister interface{ IsNotExist() bool }
	if ne, ok := err.(notExister); ok {
		return ne.IsNotExist()
	}
	// go-ini wraps os errors; fall back to string-free detection via os.IsNotExist
	// through errors.Cause when available.
	return errors.Cause(err) != nil && isOSNotExist(errors.Cause(err))
}
