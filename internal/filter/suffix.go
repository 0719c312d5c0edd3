package filter

import (
	"sort"
	"strings"
)

// SuffixWalk checks, in order, the full name and each trailing
// sub-sequence obtained by dropping the leftmost label — name,
// b.c.d, c.d, d — and returns the first one for which contains
// reports true. This is the one suffix-matching algorithm shared by
// every blocklist shape and by the allowlist overlay.
func SuffixWalk(name string, contains func(string) bool) (string, bool) {
	labels := strings.Split(name, ".")
	for i := 0; i < len(labels); i++ {
		candidate := strings.Join(labels[i:], ".")
		if contains(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// containsSorted reports whether s is present in sorted via binary
// search. sorted must already be sorted lexicographically.
func containsSorted(sorted []string, s string) bool {
	i := sort.SearchStrings(sorted, s)
	return i < len(sorted) && sorted[i] == s
}

// SuffixMatchSorted runs SuffixWalk against a sorted slice, used both
// by the vector blocklist shape and by the allowlist overlay (which
// the config layer maintains as its own sorted []string).
func SuffixMatchSorted(sorted []string, name string) (string, bool) {
	if len(sorted) == 0 {
		return "", false
	}
	return SuffixWalk(normalize(name), func(s string) bool {
		return containsSorted(sorted, s)
	})
}
