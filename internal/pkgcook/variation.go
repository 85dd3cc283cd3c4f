package pkgcook

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/datastore"
)

const appendDirective = "@@append_to"

// Variations maps each overridden config file to the command document
// text appended to it.
type Variations map[assetpath.Key]string

// Has reports whether fp is overridden.
func (v Variations) Has(fp assetpath.FilePath) bool {
	_, ok := v[fp.Key()]
	return ok
}

// ParseVariations reads a variation file. A line starting with
// @@append_to "<config path>" opens a block; the lines that follow are
// appended to that target's body until the next directive. Lines before
// the first directive are ignored. exists is consulted for every target.
func ParseVariations(r io.Reader, name string, exists func(assetpath.FilePath) bool) (Variations, error) {
	out := make(Variations)
	var (
		target assetpath.FilePath
		body   strings.Builder
	)
	finish := func() {
		if target.IsValid() && body.Len() > 0 {
			out[target.Key()] += body.String()
		}
		target = assetpath.FilePath{}
		body.Reset()
	}

	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("pkgcook: read variation %s: %w", name, err)
		}
		if line == "" && err != nil {
			break
		}

		if strings.HasPrefix(line, appendDirective) {
			finish()
			_, rest, ok := strings.Cut(line, `"`)
			if ok {
				rest, _, ok = strings.Cut(rest, `"`)
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s:%d: invalid append_to line", ErrVariation, name, lineNo)
			}
			fp, perr := assetpath.New(assetpath.DirConfig, rest)
			if perr != nil {
				return nil, fmt.Errorf("%w: %s:%d: invalid append_to target %q: %w", ErrVariation, name, lineNo, rest, perr)
			}
			if exists != nil && !exists(fp) {
				return nil, fmt.Errorf("%w: %s:%d: append_to target %s does not exist", ErrVariation, name, lineNo, fp)
			}
			target = fp
		} else {
			body.WriteString(line)
		}

		if err != nil {
			break
		}
	}
	finish()
	return out, nil
}

// gatherVariations loads a variation file, which is named relative to the
// base archive's directory.
func (b *builder) gatherVariations(baseArchive, file string) (Variations, error) {
	name := filepath.Join(filepath.Dir(baseArchive), filepath.FromSlash(file))
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVariation, err)
	}
	defer f.Close()
	return ParseVariations(f, file, func(fp assetpath.FilePath) bool {
		return assetpath.Exists(b.layout.Abs(fp))
	})
}

// decodeStored parses file content produced by readFileData.
func (b *builder) decodeStored(fp assetpath.FilePath, data []byte) (any, error) {
	if fp.Type == assetpath.JSON && b.pkg.CookJSON {
		return datastore.LoadCooked(data)
	}
	return datastore.Parse(data)
}

// applyVariation appends the variation commands in chunk to the document
// in data. Command documents gain the extra commands; plain documents
// have the commands resolved against them.
func (b *builder) applyVariation(variation int, fp assetpath.FilePath, data []byte, chunk string) ([]byte, error) {
	wrap := func(format string, args ...any) error {
		return fmt.Errorf("%w: variation %d: %s: %s", ErrVariation, variation, fp, fmt.Sprintf(format, args...))
	}
	base, err := b.decodeStored(fp, data)
	if err != nil {
		return nil, wrap("parse base data: %v", err)
	}
	cmds, err := datastore.Parse([]byte(chunk))
	if err != nil {
		return nil, wrap("parse variation data: %v", err)
	}
	if !datastore.IsCommandFile(cmds) {
		return nil, wrap("variation data is not a command file")
	}

	var out any
	if datastore.IsCommandFile(base) {
		out = append(base.(datastore.Array), cmds.(datastore.Array)...)
	} else {
		out, err = datastore.ResolveInPlace(b.resolveInclude, b.layout.Abs(fp), cmds, base)
		if err != nil {
			return nil, wrap("resolve: %v", err)
		}
	}

	switch {
	case fp.Type == assetpath.JSON && b.pkg.CookJSON:
		return b.encodeDocument(fp, out, true)
	case fp.Type == assetpath.JSON && b.pkg.MinifyJSON:
		return b.encodeDocument(fp, out, false)
	}
	pretty, err := datastore.Pretty(out)
	if err != nil {
		return nil, wrap("%v", err)
	}
	return pretty, nil
}

// resolveInclude loads documents named by $include commands.
func (b *builder) resolveInclude(name string, resolved bool) (any, error) {
	doc, err := datastore.ParseFile(name)
	if err != nil {
		return nil, err
	}
	if resolved && datastore.IsCommandFile(doc) {
		return datastore.ResolveCommandFile(b.resolveInclude, name, doc)
	}
	return doc, nil
}
