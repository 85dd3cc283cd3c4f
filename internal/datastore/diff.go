package datastore

// Diff returns a patch that turns base into target when applied with
// [ApplyDiff]. Both documents must be tables; other roots yield target.
// Keys present in base but absent from target map to nil in the patch.
// Differing nested tables are diffed recursively; any other differing
// value, arrays included, is replaced wholesale.
func Diff(base, target any) any {
	a, okA := base.(Table)
	b, okB := target.(Table)
	if !okA || !okB {
		return Clone(target)
	}
	out := Table{}
	diffTables(a, b, out)
	return out
}

func diffTables(a, b, out Table) {
	for k, bv := range b {
		av, ok := a[k]
		if !ok {
			out[k] = Clone(bv)
			continue
		}
		if Equal(av, bv) {
			continue
		}
		at, okA := av.(Table)
		bt, okB := bv.(Table)
		if okA && okB {
			sub := Table{}
			diffTables(at, bt, sub)
			out[k] = sub
			continue
		}
		out[k] = Clone(bv)
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = nil
		}
	}
}

// ApplyDiff applies a patch produced by [Diff] to base and returns the
// result. base is not modified.
func ApplyDiff(base, patch any) any {
	p, ok := patch.(Table)
	if !ok {
		if patch == nil {
			return Clone(base)
		}
		return Clone(patch)
	}
	b, ok := base.(Table)
	if !ok {
		b = Table{}
	}
	out, _ := Clone(b).(Table)
	applyTable(out, p)
	return out
}

func applyTable(dst, patch Table) {
	for k, pv := range patch {
		if pv == nil {
			delete(dst, k)
			continue
		}
		if pt, ok := pv.(Table); ok {
			if dt, ok := dst[k].(Table); ok {
				applyTable(dt, pt)
				continue
			}
			fresh := Table{}
			applyTable(fresh, pt)
			dst[k] = fresh
			continue
		}
		dst[k] = Clone(pv)
	}
}
