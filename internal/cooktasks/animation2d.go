package cooktasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/datastore"
	"github.com/meigma/cook/internal/obfuscate"
	"github.com/meigma/cook/internal/task"
)

// ExpectedSpineVersion is the only editor version whose exports are accepted.
const ExpectedSpineVersion = "3.8.79"

// ErrAnimation is returned for animation exports that cannot be cooked.
var ErrAnimation = errors.New("cooktasks: invalid animation")

// Attachment fields.
const (
	keyAttachments = "attachments"
	keyFilePath    = "FilePath"
	keyHash        = "hash"
	keyImages      = "images"
	keyName        = "name"
	keyPath        = "path"
	keySkeleton    = "skeleton"
	keySkins       = "skins"
	keySpine       = "spine"
	keyType        = "type"

	typeMesh   = "mesh"
	typeRegion = "region"
)

// Animation2D cooks skeletal animation exports into compressed, scrambled
// binary documents. Image references are rewritten to FilePaths.
type Animation2D struct{}

var _ task.Task = Animation2D{}

// Name implements task.Task.
func (Animation2D) Name() string { return "Animation2D" }

// Priority implements task.Task.
func (Animation2D) Priority() int { return task.PriorityAnimation2D }

// CanCook implements task.Task.
func (Animation2D) CanCook(fp assetpath.FilePath) bool {
	return fp.Type == assetpath.Animation2D
}

// CookAllOutOfDate implements task.Task.
func (a Animation2D) CookAllOutOfDate(ctx context.Context, c *task.Context) error {
	return task.CookOutOfDate(ctx, c, a, assetpath.Animation2D, true)
}

// Cook implements task.Task.
func (Animation2D) Cook(_ context.Context, c *task.Context, fp assetpath.FilePath) error {
	layout := c.Layout()
	src, err := os.ReadFile(layout.AbsSource(fp))
	if err != nil {
		return fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	doc, err := datastore.Parse(src)
	if err != nil {
		return fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	if err := postProcessAnimation(layout, fp, doc); err != nil {
		return err
	}
	out, err := EncodeAnimation2D(fp, doc)
	if err != nil {
		return err
	}
	return task.WriteFinalOutput(layout.Abs(fp), out)
}

// EncodeAnimation2D returns the cooked form of a post-processed document.
func EncodeAnimation2D(fp assetpath.FilePath, doc any) ([]byte, error) {
	raw, err := datastore.Cook(doc)
	if err != nil {
		return nil, fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	out, err := compress.ZstdCompress(raw, compress.LevelBest)
	if err != nil {
		return nil, fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	obfuscate.Apply(out, animationKey(fp), 0)
	return out, nil
}

// DecodeAnimation2D reverses [EncodeAnimation2D]. data is not modified.
func DecodeAnimation2D(fp assetpath.FilePath, data []byte) (any, error) {
	b := append([]byte(nil), data...)
	obfuscate.Apply(b, animationKey(fp), 0)
	raw, err := compress.ZstdDecompress(b)
	if err != nil {
		return nil, fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	doc, err := datastore.LoadCooked(raw)
	if err != nil {
		return nil, fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	return doc, nil
}

func animationKey(fp assetpath.FilePath) uint32 {
	return obfuscate.FileKey(obfuscate.AnimationSeed, fp.Rel)
}

// AnimationAttachments returns the image FilePath of every skin attachment
// of a cooked document, in skin, slot and attachment key order.
func AnimationAttachments(doc any) []assetpath.FilePath {
	var out []assetpath.FilePath
	_ = eachAttachment(doc, func(_ string, a datastore.Table) error { //nolint:errcheck // callback never fails
		if fp, ok := a[keyFilePath].(assetpath.FilePath); ok && fp.IsValid() {
			out = append(out, fp)
		}
		return nil
	})
	return out
}

// eachAttachment calls fn for every attachment table. Skins are either a
// table of skins (older exports) or an array of {"name", "attachments"}.
func eachAttachment(doc any, fn func(name string, a datastore.Table) error) error {
	root, ok := doc.(datastore.Table)
	if !ok {
		return nil
	}
	var skins []datastore.Table
	switch s := root[keySkins].(type) {
	case datastore.Table:
		for _, k := range datastore.SortedKeys(s) {
			if t, ok := s[k].(datastore.Table); ok {
				skins = append(skins, t)
			}
		}
	case datastore.Array:
		for _, e := range s {
			skin, ok := e.(datastore.Table)
			if !ok {
				continue
			}
			if t, ok := skin[keyAttachments].(datastore.Table); ok {
				skins = append(skins, t)
			}
		}
	}
	for _, slots := range skins {
		for _, sk := range datastore.SortedKeys(slots) {
			slot, ok := slots[sk].(datastore.Table)
			if !ok {
				continue
			}
			for _, ak := range datastore.SortedKeys(slot) {
				a, ok := slot[ak].(datastore.Table)
				if !ok {
					continue
				}
				if err := fn(ak, a); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func postProcessAnimation(layout assetpath.Layout, fp assetpath.FilePath, doc any) error {
	root, ok := doc.(datastore.Table)
	if !ok {
		return fmt.Errorf("%w: %s: root is not a table", ErrAnimation, fp)
	}
	meta, ok := root[keySkeleton].(datastore.Table)
	if !ok {
		return fmt.Errorf("%w: %s: missing skeleton metadata", ErrAnimation, fp)
	}
	if v, _ := meta[keySpine].(string); v != ExpectedSpineVersion {
		return fmt.Errorf("%w: %s: expected version %q, got %q", ErrAnimation, fp, ExpectedSpineVersion, v)
	}
	images, ok := meta[keyImages].(string)
	if !ok {
		images = "images"
	}

	dir := filepath.Dir(layout.AbsSource(fp))
	err := eachAttachment(root, func(name string, a datastore.Table) error {
		return resolveAttachment(layout, fp, dir, images, name, a)
	})
	if err != nil {
		return err
	}

	delete(meta, keyHash)
	delete(meta, keyImages)
	delete(meta, keySpine)
	return nil
}

// resolveAttachment replaces an attachment's path or name with a FilePath
// to its image. The image is <animation dir>/<images>/<name>.png, where the
// name comes from "path", then "name", then the attachment key.
func resolveAttachment(layout assetpath.Layout, fp assetpath.FilePath, dir, images, name string, a datastore.Table) error {
	kind, ok := a[keyType].(string)
	if !ok {
		kind = typeRegion
	}

	var s string
	implicit := false
	switch {
	case a[keyPath] != nil:
		if s, ok = a[keyPath].(string); !ok {
			return fmt.Errorf("%w: %s: attachment %q has a path that is not a string", ErrAnimation, fp, name)
		}
	case a[keyName] != nil:
		if s, ok = a[keyName].(string); !ok {
			return fmt.Errorf("%w: %s: attachment %q has a name that is not a string", ErrAnimation, fp, name)
		}
	default:
		s = name
		implicit = true
	}

	resource := filepath.Join(dir, filepath.FromSlash(images), filepath.FromSlash(s+".png"))
	img, err := layout.FromAbsSource(resource)
	if err != nil || img.Dir != assetpath.DirContent {
		return fmt.Errorf("%w: %s: attachment %q forms an invalid resource path %s", ErrAnimation, fp, name, resource)
	}
	if !assetpath.Exists(resource) {
		// Spine references are implied; only mesh and region attachments
		// must resolve.
		if implicit && kind != typeMesh && kind != typeRegion {
			return nil
		}
		return fmt.Errorf("%w: %s: %s attachment %q references %s, which does not exist",
			ErrAnimation, fp, kind, name, resource)
	}
	delete(a, keyName)
	delete(a, keyPath)
	a[keyFilePath] = img
	return nil
}
