// Package lint checks lexicons for rows that are legal but probably wrong.
//
// Four kinds of finding are reported:
//
//   - duplicate: the same surface/normalized row appears more than once.
//   - conflict: one surface maps to different normalized forms. Deterministic
//     grammars keep only the first.
//   - case: surfaces differing only in letter case. They collapse to one input
//     under lower_cased matching.
//   - near-duplicate: distinct surfaces that sound alike (shared Double
//     Metaphone code) and are spelled alike (Jaro-Winkler at or above the
//     threshold) but normalize differently. Usually a typo in one of them.
package lint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/textnorm/pkg/lexicon"
)

const defaultThreshold = 0.92

// Kind classifies a [Finding].
type Kind string

const (
	KindDuplicate     Kind = "duplicate"
	KindConflict      Kind = "conflict"
	KindCase          Kind = "case"
	KindNearDuplicate Kind = "near-duplicate"
)

// Finding is one suspicious pair of lexicon rows. Indices are zero-based
// positions in the linted slice; First < Second.
type Finding struct {
	Kind   Kind
	First  int
	Second int
	// Score is the Jaro-Winkler similarity for near-duplicates, 1 otherwise.
	Score float64
	// Detail is a human-readable description.
	Detail string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: rows %d and %d: %s", f.Kind, f.First+1, f.Second+1, f.Detail)
}

// Option is a functional option for [Lint].
type Option func(*linter)

// WithThreshold sets the minimum Jaro-Winkler score for near-duplicates.
// Default: 0.92.
func WithThreshold(threshold float64) Option {
	return func(l *linter) {
		l.threshold = threshold
	}
}

// WithNearDuplicates toggles the quadratic near-duplicate pass. Default: on.
func WithNearDuplicates(enabled bool) Option {
	return func(l *linter) {
		l.near = enabled
	}
}

type linter struct {
	threshold float64
	near      bool
}

// Lint returns every finding for entries, ordered by first row, then second
// row, then kind.
func Lint(entries []lexicon.Entry, opts ...Option) []Finding {
	l := &linter{threshold: defaultThreshold, near: true}
	for _, o := range opts {
		o(l)
	}

	var out []Finding
	firstRow := map[lexicon.Entry]int{}
	firstSurface := map[string]int{}
	firstFolded := map[string]int{}

	for i, e := range entries {
		if j, ok := firstRow[e]; ok {
			out = append(out, Finding{Kind: KindDuplicate, First: j, Second: i, Score: 1,
				Detail: fmt.Sprintf("%q → %q repeated", e.Surface, e.Normalized)})
		} else {
			firstRow[e] = i
		}

		if j, ok := firstSurface[e.Surface]; ok {
			if prev := entries[j]; prev.Normalized != e.Normalized {
				out = append(out, Finding{Kind: KindConflict, First: j, Second: i, Score: 1,
					Detail: fmt.Sprintf("%q → %q shadows %q", e.Surface, prev.Normalized, e.Normalized)})
			}
		} else {
			firstSurface[e.Surface] = i
		}

		folded := lexicon.LowerCased.Fold(e.Surface)
		if j, ok := firstFolded[folded]; ok {
			if prev := entries[j]; prev.Surface != e.Surface {
				out = append(out, Finding{Kind: KindCase, First: j, Second: i, Score: 1,
					Detail: fmt.Sprintf("%q and %q collapse to %q", prev.Surface, e.Surface, folded)})
			}
		} else {
			firstFolded[folded] = i
		}
	}

	if l.near {
		out = append(out, l.nearDuplicates(entries)...)
	}

	slices.SortStableFunc(out, func(a, b Finding) int {
		if a.First != b.First {
			return a.First - b.First
		}
		if a.Second != b.Second {
			return a.Second - b.Second
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})
	return out
}

// nearDuplicates compares every pair of distinct surfaces once.
func (l *linter) nearDuplicates(entries []lexicon.Entry) []Finding {
	type surface struct {
		row   int
		lower string
		codes map[string]struct{}
	}
	var uniq []surface
	seen := map[string]struct{}{}
	for i, e := range entries {
		lower := lexicon.LowerCased.Fold(e.Surface)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		uniq = append(uniq, surface{row: i, lower: lower, codes: codes(lower)})
	}

	var out []Finding
	for a := 0; a < len(uniq); a++ {
		for b := a + 1; b < len(uniq); b++ {
			x, y := uniq[a], uniq[b]
			if entries[x.row].Normalized == entries[y.row].Normalized {
				continue
			}
			if !overlap(x.codes, y.codes) {
				continue
			}
			score := matchr.JaroWinkler(x.lower, y.lower, false)
			if score < l.threshold {
				continue
			}
			out = append(out, Finding{Kind: KindNearDuplicate, First: x.row, Second: y.row, Score: score,
				Detail: fmt.Sprintf("%q and %q are similar (%.2f) but normalize to %q and %q",
					entries[x.row].Surface, entries[y.row].Surface, score,
					entries[x.row].Normalized, entries[y.row].Normalized)})
		}
	}
	return out
}

// codes returns the Double Metaphone codes of every word in s.
func codes(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		p, alt := matchr.DoubleMetaphone(w)
		if p != "" {
			out[p] = struct{}{}
		}
		if alt != "" {
			out[alt] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
