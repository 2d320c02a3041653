package rarconfig

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// parseAlias parses an `alias = "orig_name", "new_name"` value, as written
// by a .rarconfig section, into its two component names.
func parseAlias(raw string) (orig, renamed string, err error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return "", "", errors.New("expected \"orig\", \"new\"")
	}
	orig = unquote(parts[0])
	renamed = unquote(parts[1])
	if orig == "" || renamed == "" {
		return "", "", errors.New("empty alias component")
	}
	return orig, renamed, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return s
}

func isOSNotExist(err error) bool {
	return os.IsNotExist(err)
}
