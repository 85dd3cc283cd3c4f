// Package datastore loads, transforms and serializes structured game
// data documents.
//
// Documents are plain Go trees: nil, bool, int64, float64, string,
// [assetpath.FilePath], []any and map[string]any. Strings holding a
// FilePath URI (for example "content://Authored/a.png") are converted to
// FilePath leaves on parse.
package datastore

import (
	"errors"
	"maps"
	"math"
	"slices"

	"github.com/meigma/cook/internal/assetpath"
)

// Errors returned by document operations.
var (
	ErrSyntax  = errors.New("datastore: syntax error")
	ErrCommand = errors.New("datastore: command error")
	ErrCooked  = errors.New("datastore: invalid cooked data")
)

// Table is a document object.
type Table = map[string]any

// Array is a document array.
type Array = []any

// Clone returns a deep copy of v.
func Clone(v any) any {
	switch t := v.(type) {
	case Table:
		out := make(Table, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether a and b are structurally equal. Integers and
// floats compare by value; FilePaths compare case-insensitively.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case Table:
		y, ok := b.(Table)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, e := range x {
			f, ok := y[k]
			if !ok || !Equal(e, f) {
				return false
			}
		}
		return true
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case assetpath.FilePath:
		y, ok := b.(assetpath.FilePath)
		return ok && x.Equal(y)
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y || (math.IsNaN(x) && math.IsNaN(y))
		case int64:
			return x == float64(y)
		}
		return false
	default:
		return a == b
	}
}

// SortedKeys returns the keys of t in lexical order.
func SortedKeys(t Table) []string {
	return slices.Sorted(maps.Keys(t))
}

// WalkFilePaths calls fn for every FilePath leaf in v, visiting tables in
// key order. Walking stops at the first error.
func WalkFilePaths(v any, fn func(assetpath.FilePath) error) error {
	switch t := v.(type) {
	case Table:
		for _, k := range SortedKeys(t) {
			if err := WalkFilePaths(t[k], fn); err != nil {
				return err
			}
		}
	case Array:
		for _, e := range t {
			if err := WalkFilePaths(e, fn); err != nil {
				return err
			}
		}
	case assetpath.FilePath:
		return fn(t)
	}
	return nil
}
