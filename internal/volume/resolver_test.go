package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunogt/rar2fs/internal/cache"
)

func TestDetectPartDigits(t *testing.T) {
	s, ok := Detect("/mnt/source/movie.part02.rar")
	require.True(t, ok)
	assert.Equal(t, cache.VTypePartDigits, s.VType())
	assert.Equal(t, 2, s.FirstVolumeNumber())
	assert.Equal(t, "/mnt/source/movie.part05.rar", s.PathFor(5))
}

func TestDetectPartDigitsPreservesWidth(t *testing.T) {
	s, ok := Detect("/mnt/source/movie.part002.rar")
	require.True(t, ok)
	assert.Equal(t, "/mnt/source/movie.part010.rar", s.PathFor(10))
}

func TestDetectRxx(t *testing.T) {
	s, ok := Detect("/mnt/source/movie.r00")
	require.True(t, ok)
	assert.Equal(t, cache.VTypeRxx, s.VType())
	assert.Equal(t, 0, s.FirstVolumeNumber())
	assert.Equal(t, "/mnt/source/movie.r07", s.PathFor(7))
}

func TestDetectRxxRequiresTwoDigits(t *testing.T) {
	_, ok := Detect("/mnt/source/movie.r1")
	assert.False(t, ok, "single-digit .rN must not match the .rNN scheme")
}

func TestDetectNoMatch(t *testing.T) {
	_, ok := Detect("/mnt/source/movie.rar")
	assert.False(t, ok, "a bare .rar with no volume suffix is single-volume")
}

func TestNumberWindow(t *testing.T) {
	s, ok := Detect("/mnt/source/movie.part02.rar")
	require.True(t, ok)
	pos, length := s.NumberWindow()
	base := "movie.part02.rar"
	assert.Equal(t, "02", base[pos:pos+length])
}

func TestWalkStopsWhenCallerSaysSo(t *testing.T) {
	s, ok := Detect("/mnt/source/movie.part01.rar")
	require.True(t, ok)

	var seen []string
	Walk(s, func(n int, path string) bool {
		seen = append(seen, path)
		return n < 3
	})
	assert.Equal(t, []string{
		"/mnt/source/movie.part01.rar",
		"/mnt/source/movie.part02.rar",
		"/mnt/source/movie.part03.rar",
	}, seen)
}

func TestIsArchiveSuffix(t *testing.T) {
	assert.True(t, IsArchiveSuffix("movie.RAR"))
	assert.True(t, IsArchiveSuffix("movie.rar"))
	assert.False(t, IsArchiveSuffix("movie.r00"))
	assert.False(t, IsArchiveSuffix("movie.mkv"))
}
