package pkgcook

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/cookdb"
	"github.com/meigma/cook/internal/deps"
	"github.com/meigma/cook/internal/pkgconfig"
	"github.com/meigma/cook/internal/sar"
	"github.com/meigma/cook/internal/task"
)

// FileEntry is one file destined for an archive.
type FileEntry struct {
	Path    assetpath.FilePath
	ModTime uint64
	Size    uint64
}

func (e FileEntry) sortName() string {
	return strings.ToLower(e.Path.RelativeFilename())
}

// compareModTime orders by modification time, then by type descending so
// lower mips come first, then by name.
func compareModTime(a, b FileEntry) int {
	if c := cmp.Compare(a.ModTime, b.ModTime); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Path.Type, a.Path.Type); c != 0 {
		return c
	}
	return strings.Compare(a.sortName(), b.sortName())
}

// compareMips puts every non-texture first, then textures from the lowest
// mip to the highest.
func compareMips(a, b FileEntry) int {
	ta, tb := a.Path.Type.IsTexture(), b.Path.Type.IsTexture()
	switch {
	case ta && tb:
		return cmp.Compare(b.Path.Type, a.Path.Type)
	case tb:
		return -1
	case ta:
		return 1
	}
	return 0
}

// SortFiles orders list in place. Both orders are stable, so equal inputs
// always give the same archive layout.
func SortFiles(list []FileEntry, byModTime bool) {
	if byModTime {
		slices.SortStableFunc(list, compareModTime)
		return
	}
	slices.SortStableFunc(list, compareMips)
}

// builder holds the state of one package build.
type builder struct {
	c      *task.Context
	cfg    *pkgconfig.Config
	walker *deps.Walker
	pkg    *pkgconfig.Package
	layout assetpath.Layout

	localeArchive *sar.Reader
}

func newBuilder(c *task.Context, cfg *pkgconfig.Config, walker *deps.Walker, pkg *pkgconfig.Package) *builder {
	return &builder{c: c, cfg: cfg, walker: walker, pkg: pkg, layout: c.Layout()}
}

func (b *builder) close() {
	if b.localeArchive != nil {
		_ = b.localeArchive.Close() //nolint:errcheck // read-only
		b.localeArchive = nil
	}
}

// configArchive returns the path of a package archive named name in the
// config directory.
func (b *builder) configArchive(name, ext string) string {
	return filepath.Join(b.layout.Dir(assetpath.DirConfig), filepath.FromSlash(name)+ext)
}

func (b *builder) entry(fp assetpath.FilePath) FileEntry {
	name := b.layout.Abs(fp)
	return FileEntry{Path: fp, ModTime: assetpath.ModTime(name), Size: assetpath.FileSize(name)}
}

func (b *builder) useDictionary() bool {
	return b.pkg.CompressFiles && b.pkg.UseCompressionDictionary
}

func (b *builder) dictionaryPath() (assetpath.FilePath, error) {
	return assetpath.New(b.pkg.GameDirectory(), sar.DictionaryName(b.c.Platform()))
}

// openLocaleArchive opens the package's locale base archive once.
func (b *builder) openLocaleArchive() (*sar.Reader, error) {
	if b.localeArchive != nil {
		return b.localeArchive, nil
	}
	if b.pkg.LocaleBaseArchive == "" {
		return nil, fmt.Errorf("%w: no locale base archive configured", ErrLocale)
	}
	name := strings.TrimSuffix(b.pkg.LocaleBaseArchive, filepath.Ext(b.pkg.LocaleBaseArchive))
	r, err := sar.Open(b.configArchive(name, ".sar"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocale, err)
	}
	b.localeArchive = r
	return r, nil
}

// localeBaseEntry finds fp in the locale base archive.
func (b *builder) localeBaseEntry(fp assetpath.FilePath) (*sar.Reader, sar.Entry, error) {
	r, err := b.openLocaleArchive()
	if err != nil {
		return nil, sar.Entry{}, err
	}
	e, ok := r.Lookup(b.pkg.EntryName(fp))
	if !ok {
		return nil, sar.Entry{}, fmt.Errorf("%w: %s not found in locale base archive %s", ErrLocale, fp, b.pkg.LocaleBaseArchive)
	}
	return r, e, nil
}

// fileList assembles the package's files in archive order.
func (b *builder) fileList() ([]FileEntry, error) {
	var list []FileEntry
	seen := make(map[assetpath.Key]struct{})
	add := func(e FileEntry) {
		seen[e.Path.Key()] = struct{}{}
		list = append(list, e)
	}
	included := func(fp assetpath.FilePath) bool {
		if _, ok := seen[fp.Key()]; ok {
			return false
		}
		return b.pkg.ShouldIncludeFile(fp)
	}

	for _, fp := range b.pkg.Additional() {
		if _, ok := seen[fp.Key()]; ok {
			continue
		}
		e := b.entry(fp)
		if e.ModTime == 0 {
			return nil, fmt.Errorf("%w: additional include %s does not exist", ErrMissingFile, fp)
		}
		add(e)
	}

	if b.pkg.PopulateFromDependencies && b.walker != nil {
		for _, fp := range b.walker.Dependencies() {
			if !included(fp) {
				continue
			}
			e, err := b.dependencyEntry(fp)
			if err != nil {
				return nil, err
			}
			add(e)
		}
	}

	for _, pattern := range b.pkg.NonDependencySearchPatterns {
		fps, err := b.search(pattern)
		if err != nil {
			return nil, err
		}
		for _, fp := range fps {
			if included(fp) {
				add(b.entry(fp))
			}
		}
	}

	SortFiles(list, b.pkg.SortByModifiedTime)

	if b.useDictionary() {
		dict, err := b.dictionaryPath()
		if err != nil {
			return nil, err
		}
		list = slices.DeleteFunc(list, func(e FileEntry) bool { return e.Path.Equal(dict) })
		list = slices.Insert(list, 0, b.entry(dict))
	}
	return list, nil
}

// dependencyEntry stats a dependency, taking locale timestamps from the
// files their content is derived from.
func (b *builder) dependencyEntry(fp assetpath.FilePath) (FileEntry, error) {
	e := b.entry(fp)
	switch b.pkg.Classify(fp) {
	case pkgconfig.LocalePatchFile:
		base, err := b.pkg.LocaleBaseFor(fp)
		if err != nil {
			return FileEntry{}, fmt.Errorf("%w: %s: %w", ErrLocale, fp, err)
		}
		e.ModTime = assetpath.ModTime(b.layout.Abs(base))
		if e.ModTime == 0 {
			return FileEntry{}, fmt.Errorf("%w: locale base %s of %s does not exist", ErrMissingFile, base, fp)
		}
	case pkgconfig.LocaleBaseFile:
		_, archived, err := b.localeBaseEntry(fp)
		if err != nil {
			return FileEntry{}, err
		}
		e.ModTime = archived.ModTime
	}
	return e, nil
}

// searchExtension converts a search pattern to the extension it selects.
// "*.*" selects every file.
func searchExtension(pattern string) string {
	if pattern == "*.*" {
		return ""
	}
	return strings.TrimPrefix(pattern, "*")
}

// search lists the package root for files matching pattern. Files in the
// content directory whose source is gone are dropped.
func (b *builder) search(pattern string) ([]assetpath.FilePath, error) {
	dir := b.pkg.GameDirectory()
	base := b.layout.Dir(dir)
	root := filepath.Join(base, filepath.FromSlash(b.pkg.Root))
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: search directory %s", ErrMissingFile, root)
		}
		return nil, fmt.Errorf("pkgcook: %w", err)
	}
	names, err := assetpath.ListFiles(root, searchExtension(pattern))
	if err != nil {
		return nil, fmt.Errorf("pkgcook: list %s: %w", root, err)
	}

	var out []assetpath.FilePath
	for _, name := range names {
		rel, err := filepath.Rel(base, name)
		if err != nil {
			continue
		}
		fp, err := assetpath.New(dir, filepath.ToSlash(rel))
		if err != nil {
			b.c.Log().Debug("skipping unrecognised file", "package", b.pkg.Name, "file", name)
			continue
		}
		if dir == assetpath.DirContent && b.isOrphan(fp) {
			b.c.Log().Debug("skipping orphaned file", "package", b.pkg.Name, "file", fp)
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

// isOrphan reports whether a cooked file's source no longer exists. Sound
// banks have no per-file source and are always kept. Metadata documents
// belong to many-to-one outputs only.
func (b *builder) isOrphan(fp assetpath.FilePath) bool {
	switch fp.Type {
	case assetpath.SoundBank:
		return false
	case assetpath.JSON:
		owner, err := assetpath.New(assetpath.DirContent, fp.Rel)
		if err != nil || cookdb.IsOneToOne(owner.Type) {
			return true
		}
		return !assetpath.Exists(b.layout.AbsSource(owner))
	default:
		return !assetpath.Exists(b.layout.AbsSource(fp))
	}
}
