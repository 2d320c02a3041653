package recursion

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsafePath is the sentinel cause wrapped by SanitizeMemberPath on
// rejection, so callers can distinguish "unsafe path" from I/O errors with
// errors.Cause / errors.Is-style comparison.
var ErrUnsafePath = errors.New("unsafe member path")

var driveLetterAbs = regexp.MustCompile(`^[A-Za-z]:[/\\]`)

// SanitizeMemberPath applies the six rules of §4.8 to a member name found
// inside a (possibly nested) archive, in one place so the prober and the
// recursion core see identical behavior. Alias targets from .rarconfig are
// not passed through it; the prober checks them with cache.CanonicalPath.
// It returns the cleaned, forward-slash path.
func SanitizeMemberPath(raw string) (string, error) {
	if raw == "" {
		return "", errors.Wrap(ErrUnsafePath, "empty path")
	}

	// 1. Reject absolute POSIX paths.
	if strings.HasPrefix(raw, "/") {
		return "", errors.Wrapf(ErrUnsafePath, "absolute path %q", raw)
	}

	// 2. Reject Windows-style drive-letter absolute paths.
	if driveLetterAbs.MatchString(raw) {
		return "", errors.Wrapf(ErrUnsafePath, "drive-absolute path %q", raw)
	}

	// 4. Normalize backslashes to forward slashes (done before traversal
	// stripping so mixed separators can't hide a "..").
	norm := strings.ReplaceAll(raw, "\\", "/")

	// 3. Strip all ".." segments; reject if a leading ".." remains.
	parts := strings.Split(norm, "/")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "..":
			continue
		case ".", "":
			continue
		default:
			cleaned = append(cleaned, p)
		}
	}
	result := strings.Join(cleaned, "/")
	if strings.HasPrefix(result, "..") {
		return "", errors.Wrapf(ErrUnsafePath, "traversal survives stripping %q", raw)
	}

	// 5. Validate UTF-8 (reject overlong sequences and codepoints beyond
	// U+10FFFF).
	if !validUTF8(result) {
		return "", errors.Wrapf(ErrUnsafePath, "invalid UTF-8 %q", raw)
	}

	// 6. Reject paths longer than 4096 bytes or empty after sanitization.
	if len(result) == 0 {
		return "", errors.Wrapf(ErrUnsafePath, "empty after sanitization %q", raw)
	}
	if len(result) > 4096 {
		return "", errors.Wrapf(ErrUnsafePath, "path too long (%d bytes)", len(result))
	}

	return result, nil
}

func validUTF8(s string) bool {
	for i := 0; i < len(s); {
		b := s[i]
		switch {
		case b < 0x80:
			i++
		case b&0xE0 == 0xC0:
			if i+1 >= len(s) || s[i+1]&0xC0 != 0x80 {
				return false
			}
			cp := (rune(b&0x1F) << 6) | rune(s[i+1]&0x3F)
			if cp < 0x80 { // overlong
				return false
			}
			i += 2
		case b&0xF0 == 0xE0:
			if i+2 >= len(s) || s[i+1]&0xC0 != 0x80 || s[i+2]&0xC0 != 0x80 {
				return false
			}
			cp := (rune(b&0x0F) << 12) | (rune(s[i+1]&0x3F) << 6) | rune(s[i+2]&0x3F)
			if cp < 0x800 {
				return false
			}
			i += 3
		case b&0xF8 == 0xF0:
			if i+3 >= len(s) || s[i+1]&0xC0 != 0x80 || s[i+2]&0xC0 != 0x80 || s[i+3]&0xC0 != 0x80 {
				return false
			}
			cp := (rune(b&0x07) << 18) | (rune(s[i+1]&0x3F) << 12) | (rune(s[i+2]&0x3F) << 6) | rune(s[i+3]&0x3F)
			if cp < 0x10000 || cp > 0x10FFFF {
				return false
			}
			i += 4
		default:
			return false
		}
	}
	return true
}
