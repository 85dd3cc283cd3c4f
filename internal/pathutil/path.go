// Package pathutil manipulates archive entry names, which use '\'
// separators.
package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
)

// Separator separates the elements of an entry name.
const Separator = `\`

// ErrUnsafe is returned for entry names that would leave a destination
// directory.
var ErrUnsafe = errors.New("pathutil: unsafe entry name")

// Base returns the last element of an entry name.
// If name is empty or ".", it returns ".".
func Base(name string) string {
	if name == "" || name == "." {
		return "."
	}
	name = strings.TrimSuffix(name, Separator)
	if i := strings.LastIndex(name, Separator); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Dir returns all but the last element of an entry name, or "." for
// top-level entries.
func Dir(name string) string {
	name = strings.TrimSuffix(name, Separator)
	if i := strings.LastIndex(name, Separator); i >= 0 {
		return name[:i]
	}
	return "."
}

// DirPrefix converts a directory to its prefix form.
// For ".", returns "" (empty prefix matches all).
func DirPrefix(dir string) string {
	if dir == "." || dir == "" {
		return ""
	}
	return strings.TrimSuffix(dir, Separator) + Separator
}

// Child extracts the immediate child of prefix from name and reports
// whether it is a subdirectory. name must start with prefix, ignoring case.
func Child(name, prefix string) (child string, isSubDir bool) {
	rel := name[len(prefix):]
	if i := strings.Index(rel, Separator); i >= 0 {
		return rel[:i], true
	}
	return rel, false
}

// HasPrefix reports whether name lies under prefix, ignoring case.
func HasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix)
}

// ToSlash returns name with '/' separators.
func ToSlash(name string) string {
	return strings.ReplaceAll(name, Separator, "/")
}

// Local returns name as a relative host path, rejecting names that are
// absolute or climb out of their root.
func Local(name string) (string, error) {
	rel := filepath.FromSlash(ToSlash(name))
	if !filepath.IsLocal(rel) {
		return "", ErrUnsafe
	}
	return rel, nil
}
