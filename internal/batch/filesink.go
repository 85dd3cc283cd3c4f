package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/cook/internal/pathutil"
	"github.com/meigma/cook/internal/sar"
)

// ErrShortWrite is returned by Commit when fewer or more bytes were
// written than the entry's uncompressed size.
var ErrShortWrite = errors.New("batch: written size does not match entry")

// FileSink extracts entries below a directory. Each entry is staged in a
// hidden temp file next to its destination and renamed into place on
// Commit, so an interrupted extraction never leaves a truncated file
// under a real name.
type FileSink struct {
	root          string
	prefix        string
	overwrite     bool
	preserveTimes bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite replaces existing files instead of skipping them.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithPreserveTimes stamps extracted files with the entry's recorded
// modification time.
func WithPreserveTimes(preserve bool) FileSinkOption {
	return func(s *FileSink) {
		s.preserveTimes = preserve
	}
}

// WithPrefix limits extraction to entries under the archive directory
// dir. Matching is case-insensitive like archive lookups.
func WithPrefix(dir string) FileSinkOption {
	return func(s *FileSink) {
		s.prefix = pathutil.DirPrefix(dir)
	}
}

// NewFileSink returns a sink rooted at root.
func NewFileSink(root string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileSink) target(e sar.Entry) (string, error) {
	rel, err := pathutil.Local(e.Name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, e.Name)
	}
	return filepath.Join(s.root, rel), nil
}

// ShouldProcess filters by prefix and, unless overwriting, skips entries
// whose target already exists. Unsafe names pass so that Writer rejects
// them loudly instead of silently dropping them.
func (s *FileSink) ShouldProcess(e sar.Entry) bool {
	if !pathutil.HasPrefix(e.Name, s.prefix) {
		return false
	}
	if s.overwrite {
		return true
	}
	name, err := s.target(e)
	if err != nil {
		return true
	}
	_, err = os.Lstat(name)
	return errors.Is(err, os.ErrNotExist)
}

// Writer stages e in a temp file beside its target.
func (s *FileSink) Writer(e sar.Entry) (Committer, error) {
	name, err := s.target(e)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".sar-*")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", e.Name, err)
	}
	c := &stagedFile{f: f, target: name, want: e.UncompressedSize}
	if s.preserveTimes {
		c.mtime = time.Unix(int64(e.ModTime), 0) //nolint:gosec // archive timestamps are unix seconds
	}
	return c, nil
}

// stagedFile is one entry being written to its temp file.
type stagedFile struct {
	f      *os.File
	target string
	want   uint64
	n      uint64
	mtime  time.Time
}

func (c *stagedFile) Write(p []byte) (int, error) {
	n, err := c.f.Write(p)
	c.n += uint64(n) //nolint:gosec // n is never negative
	return n, err
}

// Commit checks the written size, stamps the time and renames the temp
// file over the target.
func (c *stagedFile) Commit() error {
	tmp := c.f.Name()
	if err := c.f.Close(); err != nil {
		return c.abort(tmp, fmt.Errorf("close %s: %w", tmp, err))
	}
	if c.n != c.want {
		return c.abort(tmp, fmt.Errorf("%w: %s: wrote %d of %d bytes", ErrShortWrite, c.target, c.n, c.want))
	}
	if !c.mtime.IsZero() {
		if err := os.Chtimes(tmp, c.mtime, c.mtime); err != nil {
			return c.abort(tmp, fmt.Errorf("set times on %s: %w", c.target, err))
		}
	}
	if err := os.Rename(tmp, c.target); err != nil {
		return c.abort(tmp, fmt.Errorf("rename to %s: %w", c.target, err))
	}
	return nil
}

func (c *stagedFile) abort(tmp string, err error) error {
	_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
	return err
}

// Discard drops the temp file.
func (c *stagedFile) Discard() error {
	_ = c.f.Close() //nolint:errcheck // the file is being removed
	return os.Remove(c.f.Name())
}
