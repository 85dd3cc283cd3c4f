package pkgcook

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/sar"
	"github.com/meigma/cook/internal/task"
)

// manifestExtension is appended to a base archive's name for its
// manifest: the header and file table without the entry bodies.
const manifestExtension = ".sar_manifest"

// writeSar writes the base archive, the overflow archive and every
// variation of the base.
func (b *builder) writeSar(ctx context.Context) error {
	list, err := b.fileList()
	if err != nil {
		return err
	}
	base, overflow, err := b.resolveOverflow(list)
	if err != nil {
		return err
	}

	ext := b.pkg.SarExtension()
	baseOut := b.configArchive(b.pkg.Name, ext)
	if err := b.writeArchive(ctx, base, baseOut, archiveVariant{}); err != nil {
		return err
	}
	if err := b.writeManifest(ctx, baseOut); err != nil {
		return err
	}
	if b.pkg.Overflow != "" {
		if err := b.writeArchive(ctx, overflow, b.configArchive(b.pkg.Overflow, ext), archiveVariant{}); err != nil {
			return err
		}
	}
	if len(b.pkg.Variations) == 0 {
		return nil
	}

	r, err := sar.Open(baseOut)
	if err != nil {
		return fmt.Errorf("%w: open base archive: %w", ErrVariation, err)
	}
	defer r.Close()
	for i, file := range b.pkg.Variations {
		n := i + 1
		overrides, err := b.gatherVariations(baseOut, file)
		if err != nil {
			return err
		}
		out := fmt.Sprintf("%s_Variation_%d%s", strings.TrimSuffix(baseOut, ext), n, ext)
		v := archiveVariant{number: n, overrides: overrides, base: r}
		if err := b.writeArchive(ctx, base, out, v); err != nil {
			return err
		}
	}
	return nil
}

// archiveVariant describes a variation archive. The zero value is a plain
// archive.
type archiveVariant struct {
	number    int
	overrides Variations
	base      *sar.Reader
}

// codecs holds the compressors of one archive.
type codecs struct {
	plain    *compress.Codec
	dict     *compress.Codec
	dictPath assetpath.FilePath
}

func (c *codecs) forPath(fp assetpath.FilePath) *compress.Codec {
	if c == nil {
		return nil
	}
	if c.dict != nil && !fp.Equal(c.dictPath) {
		return c.dict
	}
	return c.plain
}

func (c *codecs) close() {
	if c == nil {
		return
	}
	if c.dict != nil {
		c.dict.Close()
	}
	c.plain.Close()
}

func listContains(list []FileEntry, fp assetpath.FilePath) bool {
	for _, e := range list {
		if e.Path.Equal(fp) {
			return true
		}
	}
	return false
}

// newCodecs prepares compression for list. The dictionary is only used
// when the archive carries it.
func (b *builder) newCodecs(ctx context.Context, list []FileEntry, v archiveVariant) (*codecs, error) {
	if !b.pkg.CompressFiles {
		return nil, nil
	}
	plain, err := compress.NewCodec(b.pkg.CompressionLevel())
	if err != nil {
		return nil, err
	}
	cs := &codecs{plain: plain}
	if !b.useDictionary() {
		return cs, nil
	}
	if cs.dictPath, err = b.dictionaryPath(); err != nil {
		cs.close()
		return nil, err
	}
	if !listContains(list, cs.dictPath) {
		return cs, nil
	}
	dict, err := b.dictionary(ctx, list, v.base != nil)
	if err != nil {
		cs.close()
		return nil, err
	}
	if len(dict) == 0 {
		return cs, nil
	}
	if cs.dict, err = compress.NewCodec(b.pkg.CompressionLevel(), compress.WithDictionary(dict)); err != nil {
		cs.close()
		return nil, err
	}
	return cs, nil
}

// dictionary returns the package's compression dictionary, training and
// saving a new one when none exists or regeneration is forced. Variations
// always reuse the dictionary of their base.
func (b *builder) dictionary(ctx context.Context, list []FileEntry, variation bool) ([]byte, error) {
	fp, err := b.dictionaryPath()
	if err != nil {
		return nil, err
	}
	name := b.layout.Abs(fp)
	generate := !variation && b.pkg.CompressionDictionarySize > 0 &&
		(b.c.ForceDictionary() || !assetpath.Exists(name))
	if !generate {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("pkgcook: read compression dictionary: %w", err)
		}
		return data, nil
	}

	samples := make([][]byte, 0, len(list))
	for _, e := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.Path.Equal(fp) {
			continue
		}
		data, err := b.readFileData(e)
		if err != nil {
			return nil, err
		}
		samples = append(samples, data)
	}
	dict, err := compress.TrainDictionary(samples, int(b.pkg.CompressionDictionarySize), b.pkg.CompressionLevel())
	if err != nil {
		return nil, fmt.Errorf("pkgcook: %w", err)
	}

	scc := b.c.SourceControl()
	if err := scc.OpenForEdit(ctx, name); err != nil {
		return nil, fmt.Errorf("pkgcook: open compression dictionary for edit: %w", err)
	}
	if err := task.WriteFinalOutput(name, dict); err != nil {
		return nil, fmt.Errorf("pkgcook: write compression dictionary: %w", err)
	}
	if err := scc.OpenForAdd(ctx, name); err != nil {
		return nil, fmt.Errorf("pkgcook: open compression dictionary for add: %w", err)
	}
	if err := scc.RevertUnchanged(ctx, name); err != nil {
		return nil, fmt.Errorf("pkgcook: revert unchanged compression dictionary: %w", err)
	}
	b.c.Log().Info("compression dictionary trained", "package", b.pkg.Name, "bytes", len(dict), "samples", len(samples))
	return dict, nil
}

// header returns the header of a new archive.
func (b *builder) header(variation int) sar.Header {
	build := b.c.Build()
	return sar.Header{
		GameDirectory:    b.pkg.GameDirectory(),
		Variation:        uint16(variation), //nolint:gosec // variation lists are short
		VersionMajor:     build.VersionMajor,
		Changelist:       build.Changelist,
		DirectoryQueries: b.pkg.SupportDirectoryQueries,
		Obfuscated:       b.pkg.Obfuscate,
		Platform:         b.c.Platform(),
	}
}

// writeArchive writes list to out through a temp file and commits it.
func (b *builder) writeArchive(ctx context.Context, list []FileEntry, out string, v archiveVariant) (err error) {
	delta, err := b.deltaSet()
	if err != nil {
		return err
	}
	cs, err := b.newCodecs(ctx, list, v)
	if err != nil {
		return err
	}
	defer cs.close()

	f, err := task.CreateTempFile(filepath.Dir(out))
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()      //nolint:errcheck // best-effort cleanup
			_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		}
	}()

	w, err := sar.NewWriter(f, b.header(v.number),
		sar.WithTableLevel(b.pkg.CompressionLevel()),
		sar.WithLogger(b.c.Log()))
	if err != nil {
		return err
	}
	skipped := 0
	for _, e := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		blob, err := b.encodeEntry(e, v, cs)
		if err != nil {
			return err
		}
		if delta.contains(e.Path, blob.Entry) {
			skipped++
			continue
		}
		if _, err := w.Write(blob); err != nil {
			return err
		}
	}
	h, err := w.Close()
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pkgcook: close %s: %w", tmp, err)
	}
	if err := b.finalize(ctx, tmp, out); err != nil {
		return err
	}
	b.c.Log().Info("archive written",
		"package", b.pkg.Name,
		"archive", filepath.Base(out),
		"entries", h.EntryCount,
		"delta_skipped", skipped,
		"bytes", h.TotalSize)
	return nil
}

// encodeEntry prepares e for the archive. Files a variation does not
// override are copied verbatim from the base archive.
func (b *builder) encodeEntry(e FileEntry, v archiveVariant, cs *codecs) (sar.Blob, error) {
	name := b.pkg.EntryName(e.Path)
	if v.base != nil && !v.overrides.Has(e.Path) {
		be, ok := v.base.Lookup(name)
		if !ok {
			return sar.Blob{}, fmt.Errorf("%w: variation %d: %s does not exist in the base archive", ErrVariation, v.number, e.Path)
		}
		raw, err := v.base.ReadRaw(be)
		if err != nil {
			return sar.Blob{}, fmt.Errorf("%w: variation %d: %w", ErrVariation, v.number, err)
		}
		be.Offset = 0
		return sar.Blob{Entry: be, Data: raw}, nil
	}

	data, err := b.readFileData(e)
	if err != nil {
		return sar.Blob{}, err
	}
	if v.base != nil {
		if data, err = b.applyVariation(v.number, e.Path, data, v.overrides[e.Path.Key()]); err != nil {
			return sar.Blob{}, err
		}
	}
	modTime := e.ModTime
	if cs != nil && e.Path.Equal(cs.dictPath) {
		modTime = assetpath.ModTime(b.layout.Abs(e.Path))
	}
	return sar.Encode(name, data, modTime, sar.EncodeOptions{
		Codec:     cs.forPath(e.Path),
		Obfuscate: b.pkg.Obfuscate,
	}), nil
}

// finalize moves a finished temp file to out. Packages kept in source
// control are opened for edit first, added afterwards, and reverted when
// the content did not change.
func (b *builder) finalize(ctx context.Context, tmp, out string) error {
	scc := b.c.SourceControl()
	tracked := b.pkg.IncludeInSourceControl
	if tracked {
		if err := scc.OpenForEdit(ctx, out); err != nil {
			return fmt.Errorf("pkgcook: open %s for edit: %w", out, err)
		}
	}
	if err := task.CommitTempFile(tmp, out); err != nil {
		return fmt.Errorf("pkgcook: commit %s: %w", out, err)
	}
	if !tracked {
		return nil
	}
	if err := scc.OpenForAdd(ctx, out); err != nil {
		return fmt.Errorf("pkgcook: open %s for add: %w", out, err)
	}
	if err := scc.RevertUnchanged(ctx, out); err != nil {
		return fmt.Errorf("pkgcook: revert unchanged %s: %w", out, err)
	}
	return nil
}

// writeManifest writes the header and file table of archive, followed by
// its stored dictionary entry when the package compresses against one.
func (b *builder) writeManifest(ctx context.Context, archive string) error {
	r, err := sar.Open(archive)
	if err != nil {
		return fmt.Errorf("pkgcook: manifest: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	buf.Write(r.RawHeader())
	buf.Write(r.RawTable())
	if b.useDictionary() {
		if e, ok := r.DictionaryEntry(); ok {
			raw, err := r.ReadRaw(e)
			if err != nil {
				return fmt.Errorf("pkgcook: manifest: %w", err)
			}
			buf.Write(raw)
		}
	}

	out := strings.TrimSuffix(archive, filepath.Ext(archive)) + manifestExtension
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := task.WriteFinalOutput(out, buf.Bytes()); err != nil {
		return fmt.Errorf("pkgcook: write manifest: %w", err)
	}
	return nil
}
