package securestore

import (
	"strings"

	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
)

// valid8Dot3 reports whether name is a valid 8.3 key: a 1-8 character
// base, an optional '.' followed by a 1-3 character extension, no path
// separators, and never "..".
func valid8Dot3(name string) bool {
	if name == "" || name == ".." || strings.ContainsAny(name, "/\\") {
		return false
	}

	base, ext, hasExt := strings.Cut(name, ".")

	if len(base) < 1 || len(base) > 8 {
		return false
	}

	if hasExt {
		if strings.Contains(ext, ".") {
			return false
		}
		if len(ext) < 1 || len(ext) > 3 {
			return false
		}
	}

	return true
}

// keyPath joins a validated 8.3 name with the store's base directory.
func keyPath(baseDir, name string) (string, bool) {
	if !valid8Dot3(name) {
		return "", false
	}

	return vfs.Join(baseDir, name), true
}
