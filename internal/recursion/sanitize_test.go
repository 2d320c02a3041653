package recursion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMemberPathCleanRelative(t *testing.T) {
	got, err := SanitizeMemberPath("docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs/readme.txt", got)
}

func TestSanitizeMemberPathNormalizesBackslashes(t *testing.T) {
	got, err := SanitizeMemberPath(`docs\sub\readme.txt`)
	require.NoError(t, err)
	assert.Equal(t, "docs/sub/readme.txt", got)
}

func TestSanitizeMemberPathStripsEmbeddedTraversal(t *testing.T) {
	got, err := SanitizeMemberPath("docs/../readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", got)
}

func TestSanitizeMemberPathRejectsAbsolute(t *testing.T) {
	_, err := SanitizeMemberPath("/etc/passwd")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSanitizeMemberPathRejectsDriveAbsolute(t *testing.T) {
	_, err := SanitizeMemberPath(`C:\Windows\system.ini`)
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSanitizeMemberPathStripsLeadingTraversal(t *testing.T) {
	got, err := SanitizeMemberPath("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", got, "leading \"..\" segments are stripped, not left to escape the archive root")
}

func TestSanitizeMemberPathRejectsEmpty(t *testing.T) {
	_, err := SanitizeMemberPath("")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSanitizeMemberPathRejectsEmptyAfterStripping(t *testing.T) {
	_, err := SanitizeMemberPath("./.")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSanitizeMemberPathRejectsTooLong(t *testing.T) {
	_, err := SanitizeMemberPath(strings.Repeat("a", 4097))
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSanitizeMemberPathRejectsInvalidUTF8(t *testing.T) {
	_, err := SanitizeMemberPath("docs/\xff\xfe.txt")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSanitizeMemberPathDropsDotSegments(t *testing.T) {
	got, err := SanitizeMemberPath("./docs/./readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs/readme.txt", got)
}
