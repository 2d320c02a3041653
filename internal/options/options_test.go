package options

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPopulatesDocumentedDefaults(t *testing.T) {
	r := New()
	assert.Equal(t, defaultSeekLength, r.Int(SeekLength))
	assert.Equal(t, defaultWorkerThreads, r.Int(WorkerThreads))
	assert.Equal(t, defaultRecursionDepth, r.Int(RecursionDepth))
	assert.Equal(t, defaultMaxUnpackSize, r.Int(MaxUnpackSize))
	assert.False(t, r.Bool(Recursive))
	assert.False(t, r.Bool(FlatOnly))
}

func TestIsSetDistinguishesUnsetFromZero(t *testing.T) {
	r := New()
	assert.False(t, r.IsSet("never-touched"))

	r.SetInt("some-key", 0)
	assert.True(t, r.IsSet("some-key"))
	assert.Equal(t, int64(0), r.Int("some-key"))
}

func TestSettersOverwriteInPlace(t *testing.T) {
	r := New()
	r.SetBool(Recursive, true)
	r.SetString(SourceRoot, "/mnt/source")
	r.SetInt(WorkerThreads, 16)

	assert.True(t, r.Bool(Recursive))
	assert.Equal(t, "/mnt/source", r.String(SourceRoot))
	assert.Equal(t, int64(16), r.Int(WorkerThreads))
}

func TestApplyClampsRecursionDepthToHardCap(t *testing.T) {
	r := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := r.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--recursion-depth=99"}))
	r.Apply(flags)

	assert.Equal(t, int64(MaxRecursionDepth), r.Int(RecursionDepth))
}

func TestApplyClampsRecursionDepthToAtLeastOne(t *testing.T) {
	r := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := r.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--recursion-depth=0"}))
	r.Apply(flags)

	assert.Equal(t, int64(1), r.Int(RecursionDepth))
}

func TestApplyCopiesParsedFlagsIntoRegistry(t *testing.T) {
	r := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := r.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--seek-length=1048576",
		"--save-eof",
		"--flat-only",
		"--recursive",
		"--fake-inode",
	}))
	r.Apply(flags)

	assert.Equal(t, int64(1048576), r.Int(SeekLength))
	assert.True(t, r.Bool(SaveEOF))
	assert.True(t, r.Bool(FlatOnly))
	assert.True(t, r.Bool(Recursive))
	assert.True(t, r.Bool(FakeInode))
}
