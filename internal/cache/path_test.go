package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPathNormalizesSeparatorsAndSlashes(t *testing.T) {
	p, ok := CanonicalPath(`\movie\\cd1.mkv\`)
	require.True(t, ok)
	assert.Equal(t, "movie/cd1.mkv", p)
}

func TestCanonicalPathStripsLeadingAndTrailingSlash(t *testing.T) {
	p, ok := CanonicalPath("/movie/cd1.mkv/")
	require.True(t, ok)
	assert.Equal(t, "movie/cd1.mkv", p)
}

func TestCanonicalPathRejectsTraversal(t *testing.T) {
	_, ok := CanonicalPath("movie/../etc/passwd")
	assert.False(t, ok)
}

func TestCanonicalPathRejectsDotSegment(t *testing.T) {
	_, ok := CanonicalPath("movie/./cd1.mkv")
	assert.False(t, ok)
}

func TestCanonicalPathRejectsEmpty(t *testing.T) {
	_, ok := CanonicalPath("")
	assert.False(t, ok)
}

func TestCanonicalPathRejectsTooLong(t *testing.T) {
	_, ok := CanonicalPath(strings.Repeat("a", 4097))
	assert.False(t, ok)
}

func TestCanonicalPathAcceptsMaxLength(t *testing.T) {
	_, ok := CanonicalPath(strings.Repeat("a", 4096))
	assert.True(t, ok)
}

func TestCanonicalPathAcceptsValidMultibyte(t *testing.T) {
	p, ok := CanonicalPath("movie/日本語.mkv")
	require.True(t, ok)
	assert.Equal(t, "movie/日本語.mkv", p)
}

func TestCanonicalPathRejectsInvalidUTF8(t *testing.T) {
	_, ok := CanonicalPath("movie/\xff\xfe.mkv")
	assert.False(t, ok)
}

func TestCanonicalPathRejectsOverlongEncoding(t *testing.T) {
	// 0xC0 0x80 is an overlong encoding of NUL.
	_, ok := CanonicalPath("movie/\xc0\x80.mkv")
	assert.False(t, ok)
}

func TestCanonicalPathRejectsCodepointBeyondMax(t *testing.T) {
	// 0xF4 0x90 0x80 0x80 decodes to U+110000, just past the Unicode max.
	_, ok := CanonicalPath("movie/\xf4\x90\x80\x80.mkv")
	assert.False(t, ok)
}
