package deps

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/datastore"
)

// walkDocument visits every FilePath leaf of a parsed or cooked document.
func (w *Walker) walkDocument(from assetpath.FilePath, v any) error {
	switch t := v.(type) {
	case datastore.Table:
		for _, k := range datastore.SortedKeys(t) {
			if err := w.walkDocument(from, t[k]); err != nil {
				return err
			}
		}
	case datastore.Array:
		for _, e := range t {
			if err := w.walkDocument(from, e); err != nil {
				return err
			}
		}
	case assetpath.FilePath:
		return w.Add(from, t)
	}
	return nil
}

// walkLocale visits a locale document. Locale documents hold only tables
// and strings; strings may carry markup whose <img src> names a file.
func (w *Walker) walkLocale(from assetpath.FilePath, v any) error {
	switch t := v.(type) {
	case datastore.Table:
		for _, k := range datastore.SortedKeys(t) {
			if err := w.walkLocale(from, t[k]); err != nil {
				return err
			}
		}
		return nil
	case string:
		for _, src := range imageSources(t) {
			fp, err := assetpath.ParseURI(src)
			if err != nil {
				continue
			}
			if err := w.Add(from, fp); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s: unexpected %T in locale file", ErrScan, from, v)
	}
}

// imageSources returns the src attribute of every img tag in s, skipping
// sources with ${...} substitutions.
func imageSources(s string) []string {
	if !strings.Contains(s, "<") {
		return nil
	}
	var out []string
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				if string(key) == "src" && len(val) > 0 && !strings.Contains(string(val), "${") {
					out = append(out, string(val))
				}
			}
		}
	}
}
