// Package cookdb decides whether cooked files are up to date and records
// the source dependencies of each cook.
//
// One-to-one types compare the source and cooked modification times.
// Other types keep a metadata file next to the cooked output
// ("<cooked>.json") listing versions, sources, siblings and directory
// sources with their recorded timestamps or file counts.
package cookdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/meigma/cook/internal/assetpath"
)

// ErrNoMetadata is returned when a file has no readable metadata.
var ErrNoMetadata = errors.New("cookdb: no metadata")

// Stamp is a recorded source or sibling timestamp.
type Stamp struct {
	Source    assetpath.FilePath
	Timestamp uint64
}

// DirectoryStamp is a recorded directory source file count.
type DirectoryStamp struct {
	Source    assetpath.FilePath
	FileCount uint32
}

// Metadata is the recorded state of one cook.
type Metadata struct {
	CookedTimestamp  uint64
	CookerVersion    uint32
	DataVersion      uint32
	DirectorySources []DirectoryStamp
	Siblings         []Stamp
	Sources          []Stamp
}

// DB is the cook database for one layout. It is safe for concurrent use.
type DB struct {
	layout assetpath.Layout
	logger *slog.Logger

	mu       sync.Mutex
	upToDate map[assetpath.Key]bool
	metadata map[assetpath.Key]*Metadata
	// dependents maps a source to the cooked files that recorded it.
	dependents map[assetpath.Key]map[assetpath.Key]assetpath.FilePath
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// New creates a database over layout.
func New(layout assetpath.Layout, opts ...Option) *DB {
	db := &DB{
		layout:     layout,
		upToDate:   make(map[assetpath.Key]bool),
		metadata:   make(map[assetpath.Key]*Metadata),
		dependents: make(map[assetpath.Key]map[assetpath.Key]assetpath.FilePath),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *DB) log() *slog.Logger {
	if db.logger != nil {
		return db.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Layout returns the database's layout.
func (db *DB) Layout() assetpath.Layout { return db.layout }

func normalize(fp assetpath.FilePath) assetpath.FilePath {
	if fp.Type.IsTexture() {
		fp.Type = assetpath.Texture0
	}
	return fp
}

// MetadataPath returns the metadata filename of a cooked file.
func (db *DB) MetadataPath(fp assetpath.FilePath) string {
	return db.layout.Abs(fp) + ".json"
}

func (db *DB) cookedTime(fp assetpath.FilePath) uint64 {
	return assetpath.ModTime(db.layout.Abs(fp))
}

func (db *DB) sourceTime(fp assetpath.FilePath) uint64 {
	return assetpath.ModTime(db.layout.AbsSource(fp))
}

// directoryFileCount counts files below a directory source. The source's
// type, when set, restricts the count to that source extension.
func (db *DB) directoryFileCount(dir assetpath.FilePath) uint32 {
	root := filepath.Join(db.layout.SourceDirFor(dir.Dir), filepath.FromSlash(dir.Rel))
	files, err := assetpath.ListFiles(root, dir.Type.SourceExtension())
	if err != nil {
		return 0
	}
	return uint32(len(files)) //nolint:gosec // directory listings are far below 4G entries
}

// CheckUpToDate reports whether the cooked file fp is current.
func (db *DB) CheckUpToDate(fp assetpath.FilePath) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := fp.Key()
	if ok, cached := db.upToDate[key]; cached {
		return ok
	}

	if IsOneToOne(fp.Type) {
		cooked := db.cookedTime(fp)
		if cooked != 0 && cooked == db.sourceTime(fp) {
			db.upToDate[key] = true
			return true
		}
		return false
	}

	md := db.resolveLocked(fp)
	if md == nil || !db.current(fp, md) {
		return false
	}
	db.upToDate[key] = true
	return true
}

func (db *DB) current(fp assetpath.FilePath, md *Metadata) bool {
	if md.CookerVersion != CookerVersion || md.DataVersion != DataVersion(fp.Type) {
		return false
	}
	if md.CookedTimestamp != db.cookedTime(fp) {
		return false
	}
	for _, s := range md.Siblings {
		if s.Timestamp != db.cookedTime(s.Source) {
			return false
		}
	}
	for _, s := range md.Sources {
		if s.Timestamp != db.sourceTime(s.Source) {
			return false
		}
	}
	for _, d := range md.DirectorySources {
		if d.FileCount != db.directoryFileCount(d.Source) {
			return false
		}
	}
	return true
}

// Metadata returns the recorded metadata of fp.
func (db *DB) Metadata(fp assetpath.FilePath) (Metadata, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	md := db.resolveLocked(fp)
	if md == nil {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNoMetadata, fp)
	}
	return *md, nil
}

func (db *DB) resolveLocked(fp assetpath.FilePath) *Metadata {
	key := fp.Key()
	if md, ok := db.metadata[key]; ok {
		return md
	}
	md, err := db.read(fp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			db.log().Debug("ignoring unreadable cook metadata", "path", fp.String(), "error", err)
		}
		return nil
	}
	db.metadata[key] = md
	db.addDependentsLocked(fp, md)
	return md
}

// UpdateMetadata records a successful cook of fp. One-to-one types have
// no metadata and are ignored.
func (db *DB) UpdateMetadata(fp assetpath.FilePath, cookedTimestamp uint64, sources []assetpath.Source) error {
	if IsOneToOne(fp.Type) {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	md := &Metadata{
		CookedTimestamp: cookedTimestamp,
		CookerVersion:   CookerVersion,
		DataVersion:     DataVersion(fp.Type),
		Sources:         []Stamp{},
	}
	for _, s := range sources {
		src := normalize(s.Path)
		switch {
		case s.Directory:
			md.DirectorySources = append(md.DirectorySources, DirectoryStamp{Source: src, FileCount: db.directoryFileCount(src)})
		case s.Sibling:
			md.Siblings = append(md.Siblings, Stamp{Source: src, Timestamp: db.cookedTime(src)})
		default:
			md.Sources = append(md.Sources, Stamp{Source: src, Timestamp: db.sourceTime(src)})
		}
	}
	if err := db.write(fp, md); err != nil {
		return err
	}

	key := fp.Key()
	db.removeDependentsLocked(fp)
	db.metadata[key] = md
	db.addDependentsLocked(fp, md)
	db.upToDate[key] = true
	return nil
}

// Invalidate drops cached state for fp and everything that recorded it
// as a source. Call it after changing a file on disk.
func (db *DB) Invalidate(fp assetpath.FilePath) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.invalidateLocked(fp, make(map[assetpath.Key]struct{}))
}

func (db *DB) invalidateLocked(fp assetpath.FilePath, seen map[assetpath.Key]struct{}) {
	key := fp.Key()
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}

	delete(db.upToDate, key)
	if _, ok := db.metadata[key]; ok {
		db.removeDependentsLocked(fp)
		delete(db.metadata, key)
	}
	for _, dep := range db.dependents[normalize(fp).Key()] {
		db.invalidateLocked(dep, seen)
	}
}

// Dependents returns the cooked files that recorded fp as a source, in
// stable order.
func (db *DB) Dependents(fp assetpath.FilePath) []assetpath.FilePath {
	db.mu.Lock()
	defer db.mu.Unlock()
	set := db.dependents[normalize(fp).Key()]
	out := make([]assetpath.FilePath, 0, len(set))
	for _, d := range set {
		out = append(out, d)
	}
	slices.SortFunc(out, assetpath.Compare)
	return out
}

func (db *DB) addDependentsLocked(fp assetpath.FilePath, md *Metadata) {
	add := func(src assetpath.FilePath) {
		k := normalize(src).Key()
		set := db.dependents[k]
		if set == nil {
			set = make(map[assetpath.Key]assetpath.FilePath)
			db.dependents[k] = set
		}
		set[fp.Key()] = fp
	}
	for _, s := range md.Sources {
		add(s.Source)
	}
	for _, s := range md.Siblings {
		add(s.Source)
	}
	for _, d := range md.DirectorySources {
		add(d.Source)
	}
}

func (db *DB) removeDependentsLocked(fp assetpath.FilePath) {
	key := fp.Key()
	for k, set := range db.dependents {
		delete(set, key)
		if len(set) == 0 {
			delete(db.dependents, k)
		}
	}
}

// On-disk metadata document.
type fileStamp struct {
	Source    string `json:"Source"`
	Timestamp uint64 `json:"Timestamp"`
}

type fileDirectoryStamp struct {
	FileCount uint32 `json:"FileCount"`
	Source    string `json:"Source"`
	Type      string `json:"Type,omitempty"`
}

type fileMetadata struct {
	CookedTimestamp  uint64               `json:"CookedTimestamp"`
	CookerVersion    uint32               `json:"CookerVersion"`
	DataVersion      uint32               `json:"DataVersion"`
	DirectorySources []fileDirectoryStamp `json:"DirectorySources,omitempty"`
	Siblings         []fileStamp          `json:"Siblings,omitempty"`
	Sources          []fileStamp          `json:"Sources"`
}

// directoryURI serializes a directory source, whose type only filters the
// listing and is not part of the path.
func directoryURI(fp assetpath.FilePath) string {
	return fp.Dir.Scheme() + "://" + fp.Rel
}

func parseDirectoryURI(s, typeName string) (assetpath.FilePath, error) {
	scheme, rel, ok := strings.Cut(s, "://")
	if !ok {
		return assetpath.FilePath{}, fmt.Errorf("%w: %q", assetpath.ErrInvalidPath, s)
	}
	dir := assetpath.DirectoryFromScheme(scheme)
	if dir == assetpath.DirUnknown {
		return assetpath.FilePath{}, fmt.Errorf("%w: %q: unknown scheme", assetpath.ErrInvalidPath, s)
	}
	return assetpath.FilePath{
		Dir:  dir,
		Rel:  strings.Trim(strings.ReplaceAll(rel, "\\", "/"), "/"),
		Type: assetpath.TypeFromName(typeName),
	}, nil
}

func (db *DB) write(fp assetpath.FilePath, md *Metadata) error {
	doc := fileMetadata{
		CookedTimestamp: md.CookedTimestamp,
		CookerVersion:   md.CookerVersion,
		DataVersion:     md.DataVersion,
		Sources:         []fileStamp{},
	}
	for _, d := range md.DirectorySources {
		e := fileDirectoryStamp{FileCount: d.FileCount, Source: directoryURI(d.Source)}
		if d.Source.Type != assetpath.Unknown {
			e.Type = d.Source.Type.String()
		}
		doc.DirectorySources = append(doc.DirectorySources, e)
	}
	for _, s := range md.Siblings {
		doc.Siblings = append(doc.Siblings, fileStamp{Source: s.Source.URI(), Timestamp: s.Timestamp})
	}
	for _, s := range md.Sources {
		doc.Sources = append(doc.Sources, fileStamp{Source: s.Source.URI(), Timestamp: s.Timestamp})
	}
	data, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return fmt.Errorf("cookdb: encode metadata for %s: %w", fp, err)
	}
	name := db.MetadataPath(fp)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("cookdb: %w", err)
	}
	if err := os.WriteFile(name, data, 0o644); err != nil { //nolint:gosec // cooked data is not secret
		return fmt.Errorf("cookdb: write metadata %s: %w", name, err)
	}
	return nil
}

func (db *DB) read(fp assetpath.FilePath) (*Metadata, error) {
	data, err := os.ReadFile(db.MetadataPath(fp))
	if err != nil {
		return nil, err
	}
	var doc fileMetadata
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Sources == nil {
		return nil, errors.New("missing Sources")
	}
	md := &Metadata{
		CookedTimestamp: doc.CookedTimestamp,
		CookerVersion:   doc.CookerVersion,
		DataVersion:     doc.DataVersion,
	}
	for _, d := range doc.DirectorySources {
		src, err := parseDirectoryURI(d.Source, d.Type)
		if err != nil {
			return nil, err
		}
		md.DirectorySources = append(md.DirectorySources, DirectoryStamp{Source: src, FileCount: d.FileCount})
	}
	parse := func(in []fileStamp) ([]Stamp, error) {
		out := make([]Stamp, 0, len(in))
		for _, s := range in {
			src, err := assetpath.ParseURI(s.Source)
			if err != nil {
				return nil, err
			}
			out = append(out, Stamp{Source: normalize(src), Timestamp: s.Timestamp})
		}
		return out, nil
	}
	if md.Siblings, err = parse(doc.Siblings); err != nil {
		return nil, err
	}
	if md.Sources, err = parse(doc.Sources); err != nil {
		return nil, err
	}
	return md, nil
}
