package task

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
)

const generatedPrefix = "Generated"

// IsExcludedGenerated reports whether fp lives in a generated folder that
// belongs to another platform. "Generated<Platform>" and "GeneratedLocal"
// folders are kept.
func IsExcludedGenerated(fp assetpath.FilePath, platform assetpath.Platform) bool {
	rest, ok := strings.CutPrefix(fp.Rel, generatedPrefix)
	if !ok {
		return false
	}
	return !hasPrefixFold(rest, platform.String()) && !hasPrefixFold(rest, "Local")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// GatherOutOfDate returns the source files of type t that need cooking.
// Sources are listed under their source type; the result carries t.
func GatherOutOfDate(c *Context, t assetpath.FileType) []assetpath.FilePath {
	var out []assetpath.FilePath
	for _, fp := range c.SourcesOfType(t) {
		if IsExcludedGenerated(fp, c.Platform()) {
			continue
		}
		fp = fp.WithType(t)
		if c.DB().CheckUpToDate(fp) {
			continue
		}
		out = append(out, fp)
	}
	return out
}

// CookSingle cooks one file and refreshes its metadata. Source control
// is not involved.
func CookSingle(ctx context.Context, c *Context, t Task, fp assetpath.FilePath) error {
	if err := t.Cook(ctx, c, fp); err != nil {
		return err
	}
	return PostCookUpdateMetadata(c, t, []assetpath.FilePath{fp})
}

// PostCookUpdateMetadata stamps each cooked output with its source's
// modification time and records the output's sources in the database.
//
// Sound projects keep their cooked time: the source project is a stub
// that rarely changes while the cooked output carries the event data.
func PostCookUpdateMetadata(c *Context, t Task, fps []assetpath.FilePath) error {
	layout := c.Layout()
	db := c.DB()
	for _, fp := range fps {
		cooked := layout.Abs(fp)
		var stamp uint64
		if fp.Type != assetpath.SoundProject {
			stamp = assetpath.ModTime(layout.AbsSource(fp))
			if stamp == 0 {
				return fmt.Errorf("task: %s: no modification time for source", fp)
			}
			if err := assetpath.SetModTime(cooked, stamp); err != nil {
				return fmt.Errorf("task: %s: stamp cooked output: %w", fp, err)
			}
		} else {
			stamp = assetpath.ModTime(cooked)
			if stamp == 0 {
				return fmt.Errorf("task: %s: no modification time for cooked output", fp)
			}
		}

		db.Invalidate(fp)

		sources, err := Sources(c, t, fp)
		if err != nil {
			return fmt.Errorf("task: %s: sources: %w", fp, err)
		}
		for _, s := range sources {
			switch {
			case s.Directory:
			case s.Sibling:
				if assetpath.ModTime(layout.Abs(s.Path)) == 0 {
					return fmt.Errorf("%w: %s: sibling %s was not generated", ErrCookerBug, fp, s.Path)
				}
			default:
				if assetpath.ModTime(layout.AbsSource(s.Path)) == 0 {
					return fmt.Errorf("%w: %s: source %s does not exist", ErrCookerBug, fp, s.Path)
				}
			}
		}

		if err := db.UpdateMetadata(fp, stamp, sources); err != nil {
			return fmt.Errorf("task: %s: %w", fp, err)
		}
	}
	return nil
}

// CookOutOfDate cooks every out-of-date source of type ft with t and
// refreshes metadata for the batch.
func CookOutOfDate(ctx context.Context, c *Context, t Task, ft assetpath.FileType, parallel bool) error {
	fps := GatherOutOfDate(c, ft)
	if len(fps) == 0 {
		return nil
	}
	c.Log().Info("cooking out of date files", "task", t.Name(), "type", ft, "files", len(fps), "parallel", parallel)

	var err error
	if parallel {
		err = RunParallel(ctx, c, t, fps)
	} else {
		err = RunSequential(ctx, c, t, fps)
	}
	if err != nil {
		return err
	}
	return PostCookUpdateMetadata(c, t, fps)
}

// CookOutOfDateMulti cooks every out-of-date source of the types in
// [first, last]. Outputs that share a relative path are cooked together
// with a single CookMulti call.
func CookOutOfDateMulti(ctx context.Context, c *Context, t MultiTask, first, last assetpath.FileType) error {
	var fps []assetpath.FilePath
	for ft := first; ft <= last; ft++ {
		fps = append(fps, GatherOutOfDate(c, ft)...)
	}
	if len(fps) == 0 {
		return nil
	}
	slices.SortFunc(fps, assetpath.Compare)
	groups := GroupByName(fps)
	c.Log().Info("cooking out of date files", "task", t.Name(), "files", len(fps), "groups", len(groups))

	if err := RunParallelMulti(ctx, c, t, groups); err != nil {
		return err
	}
	return PostCookUpdateMetadata(c, t, fps)
}

// GroupByName splits sorted paths into runs that share a relative path.
func GroupByName(fps []assetpath.FilePath) [][]assetpath.FilePath {
	var groups [][]assetpath.FilePath
	for i := 0; i < len(fps); {
		j := i + 1
		for j < len(fps) && fps[j].Dir == fps[i].Dir && strings.EqualFold(fps[j].Rel, fps[i].Rel) {
			j++
		}
		groups = append(groups, fps[i:j:j])
		i = j
	}
	return groups
}
