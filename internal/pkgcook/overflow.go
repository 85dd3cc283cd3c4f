package pkgcook

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/meigma/cook/internal/assetpath"
)

// overflowEligible reports whether entries of type t may move to an
// overflow archive.
func overflowEligible(t assetpath.FileType) bool {
	switch t {
	case assetpath.Texture0, assetpath.Texture1, assetpath.Texture2, assetpath.Texture3, assetpath.SoundBank:
		return true
	}
	return false
}

type overflowCandidate struct {
	index int
	score int64
}

// SplitOverflow chooses the entries of list that move to the overflow
// archive so that total, the size of the base before the split, drops to
// at most target. It returns the remaining base entries and the overflow
// entries, each in their original list order.
//
// Candidates are scored by size and taken greedily, largest first. A mip
// 0 texture whose mip 1 sibling is also listed scores only the difference
// between the two, and a mip 1 texture is never taken once its mip 0 has
// been. Entries for which excluded returns true are never taken.
func SplitOverflow(list []FileEntry, total, target uint64, excluded func(assetpath.FilePath) bool) (base, overflow []FileEntry, err error) {
	if total <= target {
		return list, nil, nil
	}
	need := total - target

	sizes := make(map[assetpath.Key]uint64, len(list))
	for _, e := range list {
		sizes[e.Path.Key()] = e.Size
	}

	var candidates []overflowCandidate
	for i, e := range list {
		if !overflowEligible(e.Path.Type) {
			continue
		}
		score := int64(e.Size) //nolint:gosec // file sizes fit
		if e.Path.Type == assetpath.Texture0 {
			if mip1, ok := sizes[e.Path.WithType(assetpath.Texture1).Key()]; ok {
				score -= int64(mip1) //nolint:gosec // file sizes fit
			}
		}
		candidates = append(candidates, overflowCandidate{index: i, score: score})
	}
	slices.SortStableFunc(candidates, func(a, b overflowCandidate) int {
		return cmp.Compare(b.score, a.score)
	})

	taken := make([]bool, len(list))
	takenKeys := make(map[assetpath.Key]struct{})
	var got uint64
	for _, c := range candidates {
		if got >= need {
			break
		}
		e := list[c.index]
		if c.score <= 0 {
			continue
		}
		if excluded != nil && excluded(e.Path) {
			continue
		}
		if e.Path.Type == assetpath.Texture1 {
			if _, ok := takenKeys[e.Path.WithType(assetpath.Texture0).Key()]; ok {
				continue
			}
		}
		taken[c.index] = true
		takenKeys[e.Path.Key()] = struct{}{}
		got += uint64(c.score)
	}
	if got < need {
		return nil, nil, fmt.Errorf("%w: only %d bytes can move, need at least %d bytes to reach a base size of %d bytes",
			ErrOverflow, got, need, target)
	}

	for i, e := range list {
		if taken[i] {
			overflow = append(overflow, e)
		} else {
			base = append(base, e)
		}
	}
	return base, overflow, nil
}

// resolveOverflow splits list when the package has an overflow archive.
func (b *builder) resolveOverflow(list []FileEntry) (base, overflow []FileEntry, err error) {
	if b.pkg.Overflow == "" {
		return list, nil, nil
	}
	if b.pkg.OverflowTargetBytes == 0 {
		return nil, nil, fmt.Errorf("%w: archive %q has no OverflowTargetBytes", ErrOverflow, b.pkg.Overflow)
	}

	var total uint64
	for _, e := range list {
		total += e.Size
	}
	for _, name := range b.pkg.OverflowConsider {
		path := b.configArchive(name, ".sar")
		size := assetpath.FileSize(path)
		if size == 0 {
			return nil, nil, fmt.Errorf("%w: considered archive %s", ErrMissingFile, path)
		}
		total += size
	}

	exclusions, err := b.pkg.OverflowExclusionSet(b.layout, b.c.Local())
	if err != nil {
		return nil, nil, err
	}
	excluded := 0
	base, overflow, err = SplitOverflow(list, total, b.pkg.OverflowTargetBytes, func(fp assetpath.FilePath) bool {
		if exclusions.Contains(fp) {
			excluded++
			return true
		}
		return false
	})
	if err != nil {
		return nil, nil, fmt.Errorf("archive %q: %w", b.pkg.Overflow, err)
	}

	SortFiles(base, b.pkg.SortByModifiedTime)
	SortFiles(overflow, b.pkg.SortByModifiedTime)
	b.logDistribution(base, overflow, total, excluded)
	return base, overflow, nil
}

func (b *builder) logDistribution(base, overflow []FileEntry, total uint64, excluded int) {
	var moved uint64
	counts := make(map[assetpath.FileType]int)
	for _, e := range overflow {
		moved += e.Size
		counts[e.Path.Type]++
	}
	attrs := []any{
		"package", b.pkg.Name,
		"overflow", b.pkg.Overflow,
		"base_files", len(base),
		"overflow_files", len(overflow),
		"total_bytes", total,
		"moved_bytes", moved,
		"target_bytes", b.pkg.OverflowTargetBytes,
		"excluded", excluded,
	}
	for _, t := range assetpath.AllTypes() {
		if n := counts[t]; n > 0 {
			attrs = append(attrs, "overflow_"+t.String(), n)
		}
	}
	b.c.Log().Info("overflow resolved", attrs...)
}
