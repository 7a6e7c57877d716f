package vfs

import "strings"

// Valid rejects paths containing NUL, LF, or CR, which would corrupt
// on-disk name fields or parsing downstream.
func Valid(path string) bool {
	return !strings.ContainsAny(path, "\x00\n\r")
}

// Dirname returns everything before the final '/', or "/" if there is
// none (or the path is already root).
func Dirname(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// Basename returns the final path component.
func Basename(path string) string {
	i := strings.LastIndexByte(path, '/')
	return path[i+1:]
}

// Extension returns the final '.'-delimited suffix of the base name,
// without the dot, or "" if there is none.
func Extension(path string) string {
	base := Basename(path)
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return base[i+1:]
}

// Join concatenates path components with exactly one '/' between them,
// regardless of whether either side already carries one.
func Join(components ...string) string {
	var b strings.Builder

	for i, c := range components {
		if c == "" {
			continue
		}

		if i > 0 && b.Len() > 0 && b.String()[b.Len()-1] != '/' && c[0] != '/' {
			b.WriteByte('/')
		}

		if i > 0 && b.Len() > 0 && b.String()[b.Len()-1] == '/' && c[0] == '/' {
			c = c[1:]
		}

		b.WriteString(c)
	}

	return b.String()
}

// EqualFold reports whether two paths are equal, ignoring case (FAT
// names are case-insensitive throughout).
func EqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
