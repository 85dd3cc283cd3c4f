// Package deps traces the cooked files reachable from the application's
// config documents.
//
// Tracing starts from every .json file in the config directory. Tables and
// arrays are walked structurally and every FilePath leaf becomes a
// dependency. Dependencies whose cooked payload can reference other files
// (animations, FX banks, scenes, sound projects and UI movies) are scanned
// in turn.
package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/datastore"
)

// Errors returned by the walker.
var (
	// ErrMissingDependencies is returned by [Walker.Walk] when one or more
	// referenced files do not exist. The walk still visits every root.
	ErrMissingDependencies = errors.New("deps: missing dependencies")
	// ErrScan is returned when a cooked payload cannot be scanned.
	ErrScan = errors.New("deps: dependency scan failed")
)

// Walker accumulates the dependency set of a project. It is not safe for
// concurrent use; once Walk returns its results may be read concurrently.
type Walker struct {
	layout  assetpath.Layout
	logger  *slog.Logger
	exclude func(assetpath.FilePath) bool

	roots   []assetpath.FilePath
	docs    map[assetpath.Key]any
	set     map[assetpath.Key]struct{}
	vec     []assetpath.FilePath
	missing []error
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

// WithExclude skips config documents for which fn returns true when
// gathering roots.
func WithExclude(fn func(assetpath.FilePath) bool) Option {
	return func(w *Walker) {
		w.exclude = fn
	}
}

// New returns an empty Walker.
func New(layout assetpath.Layout, opts ...Option) *Walker {
	w := &Walker{
		layout: layout,
		docs:   make(map[assetpath.Key]any),
		set:    make(map[assetpath.Key]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Walker) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.New(slog.DiscardHandler)
}

// LoadRoots parses every config document that is not excluded. Parsed
// documents are kept and returned by [Walker.Document].
func (w *Walker) LoadRoots(ctx context.Context) error {
	files, err := assetpath.ListFiles(w.layout.Dir(assetpath.DirConfig), assetpath.JSON.CookedExtension())
	if err != nil {
		return fmt.Errorf("deps: list config files: %w", err)
	}
	w.roots = w.roots[:0]
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		fp, err := w.layout.FromAbs(name)
		if err != nil {
			return fmt.Errorf("deps: %s: %w", name, err)
		}
		if w.exclude != nil && w.exclude(fp) {
			continue
		}
		doc, err := datastore.ParseFile(name)
		if err != nil {
			return fmt.Errorf("deps: load config %s: %w", fp, err)
		}
		w.roots = append(w.roots, fp)
		w.docs[fp.Key()] = doc
	}
	w.log().Debug("config roots loaded", "count", len(w.roots))
	return nil
}

// Roots returns the config documents loaded by [Walker.LoadRoots].
func (w *Walker) Roots() []assetpath.FilePath {
	return append([]assetpath.FilePath(nil), w.roots...)
}

// Document returns the parsed form of a root document. Callers must not
// modify the result.
func (w *Walker) Document(fp assetpath.FilePath) (any, bool) {
	doc, ok := w.docs[fp.Key()]
	return doc, ok
}

// Walk traces every root. Scan failures stop the walk immediately; missing
// files are collected and reported together once every root is visited.
func (w *Walker) Walk(ctx context.Context) error {
	for _, fp := range w.roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := w.docs[fp.Key()]
		var err error
		if isLocaleFile(fp) {
			err = w.walkLocale(fp, doc)
		} else {
			err = w.walkDocument(fp, doc)
		}
		if err != nil {
			return err
		}
	}
	if len(w.missing) > 0 {
		w.log().Warn("missing dependencies", "count", len(w.missing))
		return fmt.Errorf("%w: %w", ErrMissingDependencies, errors.Join(w.missing...))
	}
	w.log().Info("dependencies gathered", "roots", len(w.roots), "dependencies", len(w.vec))
	return nil
}

// Dependencies returns every dependency in discovery order. A texture
// contributes its whole mip family, lowest type first.
func (w *Walker) Dependencies() []assetpath.FilePath {
	return append([]assetpath.FilePath(nil), w.vec...)
}

// Contains reports whether fp was reached.
func (w *Walker) Contains(fp assetpath.FilePath) bool {
	_, ok := w.set[fp.Key()]
	return ok
}

// Missing returns the missing-file reports collected so far.
func (w *Walker) Missing() []error {
	return append([]error(nil), w.missing...)
}

func isLocaleFile(fp assetpath.FilePath) bool {
	return strings.HasPrefix(fp.Rel, "Loc/")
}

// shouldReportMissing lists the only references allowed to be absent:
// textures named by FX banks and JSON documents.
func shouldReportMissing(from, to assetpath.FilePath) bool {
	if to.Type.IsTexture() && (from.Type == assetpath.FxBank || from.Type == assetpath.JSON) {
		return false
	}
	return true
}

func (w *Walker) exists(fp assetpath.FilePath) bool {
	return assetpath.Exists(w.layout.Abs(fp))
}

func (w *Walker) reportMissing(from, to assetpath.FilePath) {
	if !shouldReportMissing(from, to) {
		return
	}
	err := fmt.Errorf("%s: dependency %q does not exist on disk",
		w.layout.AbsSource(from), w.layout.AbsSource(to))
	w.log().Error("missing dependency", "from", from.String(), "to", to.String())
	w.missing = append(w.missing, err)
}

// Add records to as a dependency of from and scans it when its type can
// reference further files.
func (w *Walker) Add(from, to assetpath.FilePath) error {
	if !w.exists(to) {
		w.reportMissing(from, to)
		return nil
	}
	if !w.insert(to) {
		return nil
	}

	var err error
	switch to.Type {
	case assetpath.Animation2D:
		err = w.scanAnimation2D(to)
	case assetpath.FxBank:
		err = w.scanFxBank(to)
	case assetpath.SceneAsset:
		err = w.scanSceneAsset(to)
	case assetpath.ScenePrefab:
		err = w.scanScenePrefab(to)
	case assetpath.SoundProject:
		err = w.scanSoundProject(to)
	case assetpath.UIMovie:
		err = w.scanUIMovie(to)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrScan, to, err)
	}
	return nil
}

// insert adds fp, or its whole mip family, and reports whether fp was new.
func (w *Walker) insert(fp assetpath.FilePath) bool {
	if !fp.Type.IsTexture() {
		if _, ok := w.set[fp.Key()]; ok {
			return false
		}
		w.set[fp.Key()] = struct{}{}
		w.vec = append(w.vec, fp)
		return true
	}
	for t := assetpath.FirstTexture; t <= assetpath.LastTexture; t++ {
		m := fp.WithType(t)
		if _, ok := w.set[m.Key()]; ok {
			return false
		}
		w.set[m.Key()] = struct{}{}
		w.vec = append(w.vec, m)
	}
	return true
}

// contentPathNear resolves name relative to the directory of fp.
func contentPathNear(fp assetpath.FilePath, name string) (assetpath.FilePath, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	return assetpath.New(assetpath.DirContent, path.Join(path.Dir(fp.Rel), name))
}
