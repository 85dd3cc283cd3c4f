package pkgconfig

import (
	"path"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
)

func cleanRoot(root string) string {
	return strings.Trim(strings.ReplaceAll(root, "\\", "/"), "/")
}

// relWithin reports whether fp lives under root (case-insensitive).
func relWithin(fp assetpath.FilePath, root string) bool {
	root = cleanRoot(root)
	if root == "" {
		return true
	}
	return HasPrefixFold(fp.Rel, root+"/")
}

// Contains reports whether fp lies under the package's Root.
func (p *Package) Contains(fp assetpath.FilePath) bool {
	return fp.Dir == p.dir && relWithin(fp, p.Root)
}

// EntryName returns the archive entry name for fp: the relative filename
// with the package Root removed and '\' separators.
func (p *Package) EntryName(fp assetpath.FilePath) string {
	rel := fp.RelativeFilename()
	root := cleanRoot(p.Root)
	if root != "" && HasPrefixFold(rel, root+"/") {
		rel = rel[len(root)+1:]
	}
	return strings.ReplaceAll(path.Clean(rel), "/", "\\")
}

// PathFromEntry maps an archive entry name back to a FilePath.
func (p *Package) PathFromEntry(name string) (assetpath.FilePath, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if root := cleanRoot(p.Root); root != "" {
		name = root + "/" + name
	}
	return assetpath.New(p.dir, name)
}
