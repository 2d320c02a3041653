package readengine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunogt/rar2fs/internal/cache"
)

func TestRawHandleReadAtSingleVolume(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "movie.rar")

	header := []byte("HEADERBYTES")
	payload := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(archivePath, append(append([]byte{}, header...), payload...), 0o644))

	rec := &cache.Record{
		ArchivePath: archivePath,
		Offset:      int64(len(header)),
		Stat:        cache.Stat{Size: int64(len(payload))},
	}

	h := NewRawHandle(rec, nil)
	buf := make([]byte, len(payload))
	n, err := h.ReadAt(context.Background(), 0, buf)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestRawHandleReadAtMidOffset(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "movie.rar")
	payload := []byte("0123456789")
	require.NoError(t, os.WriteFile(archivePath, payload, 0o644))

	rec := &cache.Record{ArchivePath: archivePath, Stat: cache.Stat{Size: int64(len(payload))}}
	h := NewRawHandle(rec, nil)

	buf := make([]byte, 4)
	n, err := h.ReadAt(context.Background(), 3, buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("3456"), buf)
}

func TestRawHandleReadAtPastEOFReturnsEOF(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "movie.rar")
	payload := []byte("short")
	require.NoError(t, os.WriteFile(archivePath, payload, 0o644))

	rec := &cache.Record{ArchivePath: archivePath, Stat: cache.Stat{Size: int64(len(payload))}}
	h := NewRawHandle(rec, nil)

	buf := make([]byte, 10)
	n, err := h.ReadAt(context.Background(), int64(len(payload)), buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestHandleSeekWhenceVariants(t *testing.T) {
	rec := &cache.Record{Stat: cache.Stat{Size: 100}}
	h := NewRawHandle(rec, nil)

	off, err := h.Seek(10, 0) // SeekSet
	require.NoError(t, err)
	assert.Equal(t, int64(10), off)

	off, err = h.Seek(5, 1) // SeekCur
	require.NoError(t, err)
	assert.Equal(t, int64(15), off)

	off, err = h.Seek(-10, 2) // SeekEnd
	require.NoError(t, err)
	assert.Equal(t, int64(90), off)
}

func TestHandleSeekRejectsNegativeOffset(t *testing.T) {
	rec := &cache.Record{Stat: cache.Stat{Size: 100}}
	h := NewRawHandle(rec, nil)

	_, err := h.Seek(-5, 0)
	assert.Error(t, err)
}

func TestHandlePoisonSetsStateAndSubsequentReadFails(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "movie.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("0123456789"), 0o644))

	rec := &cache.Record{ArchivePath: archivePath, Stat: cache.Stat{Size: 10}}
	h := NewRawHandle(rec, nil)

	poisonErr := errors.New("simulated volume read failure")
	h.Poison(poisonErr)
	assert.Equal(t, StatePoisoned, h.State())

	buf := make([]byte, 4)
	n, err := h.ReadAt(context.Background(), 0, buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, poisonErr, err)
}

func TestHandleReleaseIsIdempotent(t *testing.T) {
	rec := &cache.Record{Stat: cache.Stat{Size: 10}}
	h := NewRawHandle(rec, nil)
	assert.NoError(t, h.Release())
	assert.NoError(t, h.Release())
	assert.Equal(t, StateReleased, h.State())
}
