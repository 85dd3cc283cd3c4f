package pkgcook

import (
	"fmt"
	"os"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/datastore"
	"github.com/meigma/cook/internal/pkgconfig"
)

// readFileData returns the bytes stored for e before compression. Locale
// files are derived from the locale base archive; JSON documents are
// cooked or minified when the package asks for it.
func (b *builder) readFileData(e FileEntry) ([]byte, error) {
	fp := e.Path
	switch b.pkg.Classify(fp) {
	case pkgconfig.LocaleBaseFile:
		return b.readLocaleBase(fp)
	case pkgconfig.LocalePatchFile:
		return b.readLocalePatch(fp)
	}

	if fp.Type == assetpath.JSON && (b.pkg.CookJSON || b.pkg.MinifyJSON) {
		doc, ok := b.document(fp)
		if !ok {
			var err error
			if doc, err = datastore.ParseFile(b.layout.Abs(fp)); err != nil {
				return nil, fmt.Errorf("pkgcook: %s: %w", fp, err)
			}
		}
		return b.encodeDocument(fp, doc, b.pkg.CookJSON)
	}

	data, err := os.ReadFile(b.layout.Abs(fp))
	if err != nil {
		return nil, fmt.Errorf("pkgcook: %w", err)
	}
	return data, nil
}

func (b *builder) document(fp assetpath.FilePath) (any, bool) {
	if b.walker == nil {
		return nil, false
	}
	return b.walker.Document(fp)
}

func (b *builder) encodeDocument(fp assetpath.FilePath, doc any, cook bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if cook {
		data, err = datastore.Cook(doc)
	} else {
		data, err = datastore.Minify(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("pkgcook: %s: %w", fp, err)
	}
	return data, nil
}

// readArchivedDocument parses fp's content in the locale base archive.
func (b *builder) readArchivedDocument(fp assetpath.FilePath) (any, error) {
	r, e, err := b.localeBaseEntry(fp)
	if err != nil {
		return nil, err
	}
	data, err := r.Read(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLocale, fp, err)
	}
	doc, err := datastore.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in locale base archive: %w", ErrLocale, fp, err)
	}
	return doc, nil
}

func (b *builder) readLocaleBase(fp assetpath.FilePath) ([]byte, error) {
	if !b.pkg.CookJSON && !b.pkg.MinifyJSON {
		r, e, err := b.localeBaseEntry(fp)
		if err != nil {
			return nil, err
		}
		data, err := r.Read(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLocale, fp, err)
		}
		return data, nil
	}
	doc, err := b.readArchivedDocument(fp)
	if err != nil {
		return nil, err
	}
	return b.encodeDocument(fp, doc, b.pkg.CookJSON)
}

// readLocalePatch returns the difference between the archived locale base
// and its current on-disk version.
func (b *builder) readLocalePatch(fp assetpath.FilePath) ([]byte, error) {
	baseFile, err := b.pkg.LocaleBaseFor(fp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLocale, fp, err)
	}
	base, err := b.readArchivedDocument(baseFile)
	if err != nil {
		return nil, err
	}
	target, err := datastore.ParseFile(b.layout.Abs(baseFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocale, err)
	}
	return b.encodeDocument(fp, datastore.Diff(base, target), b.pkg.CookJSON)
}
