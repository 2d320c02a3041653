package rarconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rarconfig"), []byte(contents), 0o644))
}

func TestTableMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	tbl := NewTable(dir)

	entry, err := tbl.Lookup(filepath.Join(dir, "movie.rar"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestTableLookupReturnsPasswordAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[movie.rar]
password = hunter2
seek-length = 65536
save-eof = true
`)
	tbl := NewTable(dir)

	entry, err := tbl.Lookup(filepath.Join(dir, "movie.rar"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "hunter2", entry.Password)
	assert.True(t, entry.HasSeekLength())
	assert.Equal(t, int64(65536), entry.SeekLength)
	assert.True(t, entry.HasSaveEOF())
	assert.True(t, entry.SaveEOF)
}

func TestTableLookupUnconfiguredArchiveReturnsNil(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[movie.rar]
password = hunter2
`)
	tbl := NewTable(dir)

	entry, err := tbl.Lookup(filepath.Join(dir, "other.rar"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestTableParsesShadowedAliasLines(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[movie.rar]
alias = "cd1.r00", "disc1.r00"
alias = "cd2.r00", "disc2.r00"
`)
	tbl := NewTable(dir)

	entry, err := tbl.Lookup(filepath.Join(dir, "movie.rar"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "disc1.r00", entry.Aliases["cd1.r00"])
	assert.Equal(t, "disc2.r00", entry.Aliases["cd2.r00"])
}

func TestTableRejectsCrossDirectoryAlias(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[movie.rar]
alias = "cd1/file.r00", "other/file.r00"
`)
	tbl := NewTable(dir)

	_, err := tbl.Lookup(filepath.Join(dir, "movie.rar"))
	assert.Error(t, err)
}

func TestTableLoadsOnlyOnceAcrossLookups(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[movie.rar]
password = first
`)
	tbl := NewTable(dir)

	_, err := tbl.Lookup(filepath.Join(dir, "movie.rar"))
	require.NoError(t, err)

	// Rewriting the file after the first touch must not change the
	// already-parsed result (sync.Once guards first-touch parsing).
	writeConfig(t, dir, `
[movie.rar]
password = second
`)
	entry, err := tbl.Lookup(filepath.Join(dir, "movie.rar"))
	require.NoError(t, err)
	assert.Equal(t, "first", entry.Password)
}

func TestTableGlobalSection(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
password = globalpass

[movie.rar]
password = specific
`)
	tbl := NewTable(dir)

	global, err := tbl.Global()
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.Equal(t, "globalpass", global.Password)
}

func TestParseAliasRejectsMalformed(t *testing.T) {
	_, _, err := parseAlias("just one value")
	assert.Error(t, err)

	_, _, err = parseAlias(`"", "renamed"`)
	assert.Error(t, err)
}

func TestParseAliasStripsQuotesAndSpace(t *testing.T) {
	orig, renamed, err := parseAlias(`  "cd1.r00" , "disc1.r00"  `)
	require.NoError(t, err)
	assert.Equal(t, "cd1.r00", orig)
	assert.Equal(t, "disc1.r00", renamed)
}
