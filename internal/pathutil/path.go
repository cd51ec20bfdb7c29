// Package pathutil maps slash-separated entry names to local file names.
package pathutil

import "strings"

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	// Remove trailing slash if present
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// FileName returns the local file name for an entry: the last element of
// name. It reports false when that element cannot name a file in a
// directory, such as "..", or contains a backslash or NUL byte.
func FileName(name string) (string, bool) {
	base := Base(name)
	switch base {
	case "", ".", "..":
		return "", false
	}
	if strings.ContainsAny(base, "\\\x00") {
		return "", false
	}
	return base, true
}
