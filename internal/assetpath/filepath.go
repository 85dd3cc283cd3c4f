// Package assetpath models logical asset identifiers and their on-disk
// resolution.
//
// A [FilePath] names an asset by game directory, relative path (without
// extension, '/' separated) and [FileType]. The same relative path under
// different texture types forms a mip family.
package assetpath

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidPath is returned when a string cannot be parsed as a FilePath.
var ErrInvalidPath = errors.New("assetpath: invalid file path")

// FilePath is a logical content identifier.
type FilePath struct {
	Dir  GameDirectory
	Rel  string
	Type FileType
}

// Key is the case-folded identity of a FilePath, suitable as a map key.
type Key struct {
	Dir  GameDirectory
	Rel  string
	Type FileType
}

// New builds a FilePath from a relative filename that carries its
// extension. The type is derived from the extension.
func New(dir GameDirectory, relWithExt string) (FilePath, error) {
	rel := normalizeRel(relWithExt)
	if rel == "" {
		return FilePath{}, fmt.Errorf("%w: empty relative path", ErrInvalidPath)
	}
	ext := path.Ext(rel)
	t := TypeFromExtension(ext)
	if t == Unknown {
		return FilePath{}, fmt.Errorf("%w: %q: unknown extension", ErrInvalidPath, relWithExt)
	}
	return FilePath{Dir: dir, Rel: strings.TrimSuffix(rel, ext), Type: t}, nil
}

// MustNew is like [New] but panics on error. Intended for constants and tests.
func MustNew(dir GameDirectory, relWithExt string) FilePath {
	fp, err := New(dir, relWithExt)
	if err != nil {
		panic(err)
	}
	return fp
}

// ParseURI parses a serialized URI such as "content://Authored/a.png".
func ParseURI(s string) (FilePath, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return FilePath{}, fmt.Errorf("%w: %q: missing scheme", ErrInvalidPath, s)
	}
	dir := directoryFromScheme(scheme)
	if dir == DirUnknown {
		return FilePath{}, fmt.Errorf("%w: %q: unknown scheme", ErrInvalidPath, s)
	}
	return New(dir, rest)
}

// IsURI reports whether s looks like a serialized FilePath URI.
func IsURI(s string) bool {
	scheme, _, ok := strings.Cut(s, "://")
	return ok && directoryFromScheme(scheme) != DirUnknown
}

func normalizeRel(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	for strings.HasPrefix(s, "/") {
		s = s[1:]
	}
	return path.Clean("/" + s)[1:]
}

// IsValid reports whether fp names a concrete asset.
func (fp FilePath) IsValid() bool {
	return fp.Dir != DirUnknown && fp.Type != Unknown && fp.Rel != ""
}

// Key returns the case-folded identity of fp.
func (fp FilePath) Key() Key {
	return Key{Dir: fp.Dir, Rel: strings.ToLower(fp.Rel), Type: fp.Type}
}

// Equal compares two paths case-insensitively.
func (fp FilePath) Equal(other FilePath) bool {
	return fp.Key() == other.Key()
}

// WithType returns a copy of fp with the given type.
func (fp FilePath) WithType(t FileType) FilePath {
	fp.Type = t
	return fp
}

// RelativeFilename returns the relative path with the cooked extension.
func (fp FilePath) RelativeFilename() string {
	return fp.Rel + fp.Type.CookedExtension()
}

// RelativeFilenameInSource returns the relative path with the source extension.
func (fp FilePath) RelativeFilenameInSource() string {
	return fp.Rel + fp.Type.SourceExtension()
}

// BaseName returns the final path element without extension.
func (fp FilePath) BaseName() string {
	return path.Base(fp.Rel)
}

// URI returns the serialized form, e.g. "content://Authored/a.png".
func (fp FilePath) URI() string {
	if !fp.IsValid() {
		return ""
	}
	return fp.Dir.Scheme() + "://" + fp.RelativeFilenameInSource()
}

// String implements fmt.Stringer.
func (fp FilePath) String() string {
	return fp.URI()
}

// Compare orders paths by case-folded relative path, then type, then directory.
func Compare(a, b FilePath) int {
	if c := strings.Compare(strings.ToLower(a.Rel), strings.ToLower(b.Rel)); c != 0 {
		return c
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	switch {
	case a.Dir < b.Dir:
		return -1
	case a.Dir > b.Dir:
		return 1
	}
	return 0
}

// Source describes one input a cooked output depends on.
type Source struct {
	Path      FilePath
	Directory bool
	Sibling   bool
}
