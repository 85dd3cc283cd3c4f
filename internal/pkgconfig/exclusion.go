package pkgconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"github.com/tidwall/jsonc"

	"github.com/meigma/cook/internal/assetpath"
)

const generatedPC = "GeneratedPC"

type trainingEntry struct {
	Path string `json:"Path"`
}

// ExclusionSet holds files that must never be moved to an overflow archive.
type ExclusionSet map[assetpath.Key]struct{}

// Contains reports whether fp is excluded.
func (s ExclusionSet) Contains(fp assetpath.FilePath) bool {
	_, ok := s[fp.Key()]
	return ok
}

func (s ExclusionSet) add(fp assetpath.FilePath) {
	if fp.Type.IsTexture() {
		for t := assetpath.FirstTexture; t <= assetpath.LastTexture; t++ {
			s[fp.WithType(t).Key()] = struct{}{}
		}
		return
	}
	s[fp.Key()] = struct{}{}
}

// OverflowExclusionSet loads the package's overflow training data. The
// data is produced by a PC build; GeneratedPC paths are remapped to the
// layout's platform, textures by finding the platform's UI image with
// identical content. Texture entries exclude their whole mip family.
func (p *Package) OverflowExclusionSet(layout assetpath.Layout, local bool) (ExclusionSet, error) {
	set := ExclusionSet{}
	if !p.trainingData.IsValid() {
		return set, nil
	}

	name := layout.AbsSource(p.trainingData)
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("pkgconfig: %s: read overflow training data: %w", p.Name, err)
	}
	var entries []trainingEntry
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return nil, fmt.Errorf("pkgconfig: %s: decode overflow training data %s: %w", p.Name, name, err)
	}

	platform := layout.Platform()
	prefix := platform.GeneratedDirName()
	var ui uiTextures
	for _, e := range entries {
		fp, err := assetpath.ParseURI(e.Path)
		if err != nil {
			return nil, fmt.Errorf("pkgconfig: %s: overflow training data: %w", p.Name, err)
		}
		if platform != assetpath.PC && HasPrefixFold(fp.Rel, generatedPC) {
			if fp.Type.IsTexture() {
				if ui == nil {
					ui = uiTextures{}
					if err := ui.scan(layout, prefix); err != nil {
						return nil, fmt.Errorf("pkgconfig: %s: list UI textures: %w", p.Name, err)
					}
					if local {
						if err := ui.scan(layout, "GeneratedLocal"); err != nil {
							return nil, fmt.Errorf("pkgconfig: %s: list UI textures: %w", p.Name, err)
						}
					}
				}
				fp = ui.remap(layout, fp)
			} else {
				fp.Rel = prefix + fp.Rel[len(generatedPC):]
			}
		}
		set.add(fp)
	}
	return set, nil
}

// uiTextures indexes generated UI images by file size.
type uiTextures map[uint64][]assetpath.FilePath

func (u uiTextures) scan(layout assetpath.Layout, generated string) error {
	dir := filepath.Join(layout.SourceDir(), generated, "UIImages")
	files, err := assetpath.ListFiles(dir, ".png")
	if err != nil {
		return err
	}
	for _, f := range files {
		fp, err := layout.FromAbsSource(f)
		if err != nil {
			continue
		}
		size := assetpath.FileSize(f)
		u[size] = append(u[size], fp)
	}
	return nil
}

// remap returns the UI texture whose source content equals fp's source,
// or fp unchanged when nothing matches. A PC-only image that was never
// generated for this platform is indistinguishable from a missing one, so
// no match is not an error.
func (u uiTextures) remap(layout assetpath.Layout, fp assetpath.FilePath) assetpath.FilePath {
	src := layout.AbsSource(fp)
	size := assetpath.FileSize(src)
	if size == 0 {
		return fp
	}
	candidates := u[size]
	if len(candidates) == 0 {
		return fp
	}
	want, ok := fileDigest(src)
	if !ok {
		return fp
	}
	for _, c := range candidates {
		if got, ok := fileDigest(layout.AbsSource(c)); ok && got == want {
			return c.WithType(fp.Type)
		}
	}
	return fp
}

func fileDigest(name string) (digest.Digest, bool) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", false
	}
	return digest.FromBytes(data), true
}
