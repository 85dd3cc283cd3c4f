package assetpath

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Layout resolves FilePaths to absolute filenames under a project base
// directory for one target platform.
type Layout struct {
	base     string
	platform Platform
}

// NewLayout returns a Layout rooted at base.
func NewLayout(base string, platform Platform) Layout {
	return Layout{base: filepath.Clean(base), platform: platform}
}

// Base returns the project base directory.
func (l Layout) Base() string { return l.base }

// Platform returns the target platform.
func (l Layout) Platform() Platform { return l.platform }

// Dir returns the absolute directory backing d.
func (l Layout) Dir(d GameDirectory) string {
	switch d {
	case DirConfig:
		return filepath.Join(l.base, "Data", "Config")
	case DirContent:
		return filepath.Join(l.base, "Data", l.platform.ContentDirName())
	case DirLog:
		return filepath.Join(l.base, "Data", "Log")
	case DirSave:
		return filepath.Join(l.base, "Data", "Save")
	case DirToolsBin:
		return filepath.Join(l.base, "Tools")
	case DirVideos:
		return filepath.Join(l.base, "Data", "Videos")
	default:
		return ""
	}
}

// SourceDir returns the directory holding authored content sources.
func (l Layout) SourceDir() string {
	return filepath.Join(l.base, "Source")
}

// SourceDirFor returns the source root for a game directory. Only
// content has a separate source tree.
func (l Layout) SourceDirFor(d GameDirectory) string {
	if d == DirContent {
		return l.SourceDir()
	}
	return l.Dir(d)
}

// Abs returns the absolute cooked filename of fp.
func (l Layout) Abs(fp FilePath) string {
	return filepath.Join(l.Dir(fp.Dir), filepath.FromSlash(fp.RelativeFilename()))
}

// AbsSource returns the absolute source filename of fp.
func (l Layout) AbsSource(fp FilePath) string {
	return filepath.Join(l.SourceDirFor(fp.Dir), filepath.FromSlash(fp.RelativeFilenameInSource()))
}

// FromAbs maps an absolute cooked filename back to a FilePath.
func (l Layout) FromAbs(abs string) (FilePath, error) {
	return l.fromAbs(abs, l.Dir)
}

// FromAbsSource maps an absolute source filename back to a FilePath.
func (l Layout) FromAbsSource(abs string) (FilePath, error) {
	return l.fromAbs(abs, l.SourceDirFor)
}

func (l Layout) fromAbs(abs string, dirOf func(GameDirectory) string) (FilePath, error) {
	abs = filepath.Clean(abs)
	for d := DirConfig; d < gameDirectoryCount; d++ {
		root := dirOf(d)
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return New(d, filepath.ToSlash(rel))
	}
	return FilePath{}, ErrInvalidPath
}

// ModTime returns the modification time of name in unix seconds, or 0 if
// it does not exist.
func ModTime(name string) uint64 {
	info, err := os.Stat(name)
	if err != nil {
		return 0
	}
	sec := info.ModTime().Unix()
	if sec <= 0 {
		return 0
	}
	return uint64(sec)
}

// SetModTime sets the modification time of name to sec unix seconds.
func SetModTime(name string, sec uint64) error {
	t := time.Unix(int64(sec), 0) //nolint:gosec // timestamps fit in int64
	return os.Chtimes(name, t, t)
}

// FileSize returns the size of name, or 0 if it does not exist.
func FileSize(name string) uint64 {
	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return 0
	}
	return uint64(info.Size()) //nolint:gosec // sizes are non-negative
}

// Exists reports whether name exists as a regular file.
func Exists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

// ListFiles returns every regular file under dir whose extension matches
// ext (case-insensitive); an empty ext matches every file. The result is
// sorted lexically.
func ListFiles(dir, ext string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext == "" || strings.EqualFold(filepath.Ext(p), ext) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
