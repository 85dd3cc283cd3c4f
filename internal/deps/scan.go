package deps

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/cooktasks"
	"github.com/meigma/cook/internal/datastore"
)

func (w *Walker) readCooked(fp assetpath.FilePath) ([]byte, error) {
	data, err := os.ReadFile(w.layout.Abs(fp))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return data, nil
}

// readCompressed reads and decompresses a framed ZSTD payload.
func (w *Walker) readCompressed(fp assetpath.FilePath) ([]byte, error) {
	data, err := w.readCooked(fp)
	if err != nil {
		return nil, err
	}
	out, err := compress.ZstdDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

func (w *Walker) scanAnimation2D(fp assetpath.FilePath) error {
	data, err := w.readCooked(fp)
	if err != nil {
		return err
	}
	doc, err := cooktasks.DecodeAnimation2D(fp, data)
	if err != nil {
		return err
	}

	bases := make(map[string]struct{})
	for _, a := range cooktasks.AnimationAttachments(doc) {
		if err := w.Add(fp, a); err != nil {
			return err
		}
		bases[strings.ToLower(path.Base(a.RelativeFilenameInSource()))] = struct{}{}
	}
	return w.addPalettes(fp, bases)
}

// addPalettes adds every .png under the animation's source directory whose
// base filename matches a discovered attachment. Palettes are sibling image
// directories holding drop-in replacements of the base images.
func (w *Walker) addPalettes(fp assetpath.FilePath, bases map[string]struct{}) error {
	if len(bases) == 0 {
		return nil
	}
	dir := filepath.Dir(w.layout.AbsSource(fp))
	files, err := assetpath.ListFiles(dir, ".png")
	if err != nil {
		return fmt.Errorf("list palette images: %w", err)
	}
	for _, name := range files {
		if _, ok := bases[strings.ToLower(filepath.Base(name))]; !ok {
			continue
		}
		img, err := w.layout.FromAbsSource(name)
		if err != nil {
			return fmt.Errorf("palette image %s: %w", name, err)
		}
		if err := w.Add(fp, img); err != nil {
			return err
		}
	}
	return nil
}

// scanFxBank scrapes file references out of an FX bank's string data. Any
// run ending in a known extension, bounded by NUL or '"', is a candidate.
func (w *Walker) scanFxBank(fp assetpath.FilePath) error {
	data, err := w.readCompressed(fp)
	if err != nil {
		return err
	}
	for _, s := range scrapeFilenames(data) {
		dep, err := assetpath.ParseURI(s)
		if err != nil {
			if dep, err = assetpath.New(assetpath.DirContent, s); err != nil {
				continue
			}
		}
		if err := w.Add(fp, dep); err != nil {
			return err
		}
	}
	return nil
}

func isStringBound(c byte) bool { return c == 0 || c == '"' }

func scrapeFilenames(data []byte) []string {
	var out []string
	for i := 0; i < len(data); {
		if data[i] != '.' {
			i++
			continue
		}
		start := i
		end := start
		for end < len(data) && !isStringBound(data[end]) {
			end++
		}
		i = end
		if !assetpath.IsKnownExtension(string(data[start:end])) {
			continue
		}
		for start > 0 && !isStringBound(data[start-1]) {
			start--
		}
		if start < end {
			out = append(out, string(data[start:end]))
		}
	}
	return out
}

func (w *Walker) scanScenePrefab(fp assetpath.FilePath) error {
	data, err := w.readCompressed(fp)
	if err != nil {
		return err
	}
	doc, err := datastore.LoadCooked(data)
	if err != nil {
		return err
	}
	return w.walkDocument(fp, doc)
}

// Sound project bodies are cooked documents:
//
//	{"Banks": ["a.bank", ...], "Events": {"event": ["b.bank", ...]}}
//
// with names relative to the project's directory.
func (w *Walker) scanSoundProject(fp assetpath.FilePath) error {
	data, err := w.readCompressed(fp)
	if err != nil {
		return err
	}
	doc, err := datastore.LoadCooked(data)
	if err != nil {
		return err
	}
	t, ok := doc.(datastore.Table)
	if !ok {
		return fmt.Errorf("sound project body is %T, not a table", doc)
	}

	refs, err := soundRefs(fp, t["Banks"])
	if err != nil {
		return fmt.Errorf("bank list: %w", err)
	}
	if events, ok := t["Events"].(datastore.Table); ok {
		for _, k := range datastore.SortedKeys(events) {
			l, err := soundRefs(fp, events[k])
			if err != nil {
				return fmt.Errorf("event %s: %w", k, err)
			}
			refs = append(refs, l...)
		}
	}
	for _, dep := range refs {
		if err := w.Add(fp, dep); err != nil {
			return err
		}
	}
	return nil
}

// soundRefs resolves a list of names relative to the project fp. URI
// entries are taken as they are.
func soundRefs(fp assetpath.FilePath, v any) ([]assetpath.FilePath, error) {
	if v == nil {
		return nil, nil
	}
	a, ok := v.(datastore.Array)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	out := make([]assetpath.FilePath, 0, len(a))
	for i, e := range a {
		switch s := e.(type) {
		case string:
			dep, err := contentPathNear(fp, s)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, dep)
		case assetpath.FilePath:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("element %d is %T, not a string", i, e)
		}
	}
	return out, nil
}

func (w *Walker) scanUIMovie(fp assetpath.FilePath) error {
	data, err := w.readCompressed(fp)
	if err != nil {
		return err
	}
	refs, err := MovieDependencies(fp, data)
	if err != nil {
		return err
	}
	for _, dep := range refs {
		if err := w.Add(fp, dep); err != nil {
			return err
		}
	}
	return nil
}
