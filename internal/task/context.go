package task

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/cookdb"
	"github.com/meigma/cook/internal/scc"
)

// ProgressFunc receives progress for a running batch.
type ProgressFunc func(task string, done, total int)

// Build identifies the build an archive is cooked for.
type Build struct {
	VersionMajor uint16
	Changelist   uint32
}

// Context carries the state shared by every task in one cook.
type Context struct {
	layout   assetpath.Layout
	db       *cookdb.DB
	scc      scc.Client
	logger   *slog.Logger
	progress ProgressFunc
	build    Build
	local    bool
	forceDic bool
	workers  int

	mu      sync.RWMutex
	sources [assetpath.TypeCount][]assetpath.FilePath
	seen    map[assetpath.Key]struct{}
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithSourceControl sets the source control client. The default is
// [scc.Null].
func WithSourceControl(client scc.Client) ContextOption {
	return func(c *Context) {
		c.scc = client
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) ContextOption {
	return func(c *Context) {
		c.progress = fn
	}
}

// WithBuild sets the build version stamped into archives.
func WithBuild(b Build) ContextOption {
	return func(c *Context) {
		c.build = b
	}
}

// WithLocal marks the cook as a local (developer) cook.
func WithLocal(local bool) ContextOption {
	return func(c *Context) {
		c.local = local
	}
}

// WithForceDictionary forces regeneration of compression dictionaries.
func WithForceDictionary(force bool) ContextOption {
	return func(c *Context) {
		c.forceDic = force
	}
}

// WithWorkers sets the worker count for parallel batches.
// Values <= 0 use runtime.GOMAXPROCS(0).
func WithWorkers(n int) ContextOption {
	return func(c *Context) {
		c.workers = n
	}
}

// NewContext returns a Context over db's layout.
func NewContext(db *cookdb.DB, opts ...ContextOption) *Context {
	c := &Context{
		layout: db.Layout(),
		db:     db,
		scc:    scc.Null{},
		build:  Build{VersionMajor: 1, Changelist: 1},
		seen:   make(map[assetpath.Key]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Log returns the context's logger, or a discarding logger.
func (c *Context) Log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Layout returns the project layout.
func (c *Context) Layout() assetpath.Layout { return c.layout }

// Platform returns the target platform.
func (c *Context) Platform() assetpath.Platform { return c.layout.Platform() }

// DB returns the cook database.
func (c *Context) DB() *cookdb.DB { return c.db }

// SourceControl returns the source control client.
func (c *Context) SourceControl() scc.Client { return c.scc }

// Build returns the build version.
func (c *Context) Build() Build { return c.build }

// Local reports whether this is a local cook.
func (c *Context) Local() bool { return c.local }

// ForceDictionary reports whether dictionaries must be regenerated.
func (c *Context) ForceDictionary() bool { return c.forceDic }

// Workers returns the number of pool goroutines for parallel batches.
func (c *Context) Workers() int {
	if c.workers > 0 {
		return c.workers
	}
	return runtime.GOMAXPROCS(0)
}

// Report publishes progress to the callback set by [WithProgress].
func (c *Context) Report(task string, done, total int) {
	if c.progress != nil {
		c.progress(task, done, total)
	}
}

// SourcesOfType returns the known source files of type t, in discovery
// order. Texture sources appear under every texture type.
func (c *Context) SourcesOfType(t assetpath.FileType) []assetpath.FilePath {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(t) >= len(c.sources) {
		return nil
	}
	out := make([]assetpath.FilePath, len(c.sources[t]))
	copy(out, c.sources[t])
	return out
}

// NeedsCooking reports whether sources of type t are converted by a task
// rather than used as-is.
func NeedsCooking(t assetpath.FileType) bool {
	switch t {
	case assetpath.Animation2D, assetpath.Effect, assetpath.Font, assetpath.FxBank,
		assetpath.Protobuf, assetpath.Script, assetpath.ScriptProject,
		assetpath.SceneAsset, assetpath.ScenePrefab, assetpath.SoundProject,
		assetpath.UIMovie:
		return true
	default:
		return t.IsTexture()
	}
}

// AddSources registers absolute source filenames. Files with unknown
// extensions or types that need no cooking are skipped; files already
// registered are ignored.
func (c *Context) AddSources(names ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		fp, ok, err := c.sourcePath(name)
		if err != nil {
			return err
		}
		if !ok || !NeedsCooking(fp.Type) {
			continue
		}
		key := fp.Key()
		if _, dup := c.seen[key]; dup {
			continue
		}
		c.seen[key] = struct{}{}
		if fp.Type.IsTexture() {
			for t := assetpath.LastTexture; t >= assetpath.FirstTexture; t-- {
				c.sources[t] = append(c.sources[t], fp.WithType(t))
			}
			continue
		}
		c.sources[fp.Type] = append(c.sources[fp.Type], fp)
	}
	return nil
}

// RemoveSources unregisters absolute source filenames.
func (c *Context) RemoveSources(names ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		fp, ok, err := c.sourcePath(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		key := fp.Key()
		if _, found := c.seen[key]; !found {
			continue
		}
		delete(c.seen, key)
		types := []assetpath.FileType{fp.Type}
		if fp.Type.IsTexture() {
			types = types[:0]
			for t := assetpath.FirstTexture; t <= assetpath.LastTexture; t++ {
				types = append(types, t)
			}
		}
		for _, t := range types {
			target := fp.WithType(t).Key()
			for i, have := range c.sources[t] {
				if have.Key() == target {
					c.sources[t] = append(c.sources[t][:i], c.sources[t][i+1:]...)
					break
				}
			}
		}
	}
	return nil
}

// sourcePath maps an absolute source filename to a content path. ok is
// false for files whose extension names no known type.
func (c *Context) sourcePath(name string) (assetpath.FilePath, bool, error) {
	if !assetpath.IsKnownExtension(filepath.Ext(name)) {
		return assetpath.FilePath{}, false, nil
	}
	rel, err := filepath.Rel(c.layout.SourceDir(), name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return assetpath.FilePath{}, false, fmt.Errorf("%w: %s: outside the source directory", ErrInvalidSourcePath, name)
	}
	fp, err := assetpath.New(assetpath.DirContent, filepath.ToSlash(rel))
	if err != nil {
		return assetpath.FilePath{}, false, fmt.Errorf("%w: %s: %w", ErrInvalidSourcePath, name, err)
	}
	if err := checkSourcePath(fp.Rel); err != nil {
		return assetpath.FilePath{}, false, fmt.Errorf("%w: %s: %w", ErrInvalidSourcePath, name, err)
	}
	return fp, true, nil
}

// ScanSources registers every file below the layout's source directory.
func (c *Context) ScanSources(ctx context.Context) error {
	var names []string
	root := c.layout.SourceDir()
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("task: scan %s: %w", root, err)
	}
	c.Log().Debug("scanned sources", "dir", root, "files", len(names))
	return c.AddSources(names...)
}
