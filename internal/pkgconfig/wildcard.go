package pkgconfig

import (
	"strings"

	"golang.org/x/text/cases"
)

// fold returns the case-folded s. Casers carry state, so each call gets
// its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Wildcard is a case-insensitive glob. '*' matches any run of characters,
// path separators included; '?' matches one character. Both '/' and '\'
// are accepted as separators.
type Wildcard struct {
	pattern string
	folded  []rune
}

// NewWildcard compiles pattern.
func NewWildcard(pattern string) Wildcard {
	return Wildcard{pattern: pattern, folded: []rune(foldPath(pattern))}
}

// String returns the source pattern.
func (w Wildcard) String() string { return w.pattern }

// IsExactMatch reports whether the whole of s matches the pattern.
func (w Wildcard) IsExactMatch(s string) bool {
	return match(w.folded, []rune(foldPath(s)))
}

func foldPath(s string) string {
	return fold(strings.ReplaceAll(s, "\\", "/"))
}

// match is the classic two-pointer glob matcher with single-star backtracking.
func match(p, s []rune) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

func compile(patterns []string) []Wildcard {
	out := make([]Wildcard, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, NewWildcard(p))
	}
	return out
}

func matchesAny(ws []Wildcard, s string) bool {
	for _, w := range ws {
		if w.IsExactMatch(s) {
			return true
		}
	}
	return false
}

// HasPrefixFold reports whether s begins with prefix, ignoring case.
func HasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return fold(s[:len(prefix)]) == fold(prefix)
}
