// Package derive generates additional lexicon entries from seed mappings at
// grammar build time. Rules are pure functions; nothing they produce is
// persisted.
package derive

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// Rule maps one seed entry to the entries derived from it.
type Rule func(seed lexicon.Entry) []lexicon.Entry

// Expand applies every rule to every seed and returns the derived entries in
// seed order, then rule order. Seeds themselves are not included unless a
// rule emits them.
func Expand(seeds []lexicon.Entry, rules ...Rule) []lexicon.Entry {
	var out []lexicon.Entry
	for _, s := range seeds {
		for _, r := range rules {
			out = append(out, r(s)...)
		}
	}
	return out
}

// Dedupe drops repeated entries, keeping the first occurrence of each
// (surface, normalized) pair.
func Dedupe(entries []lexicon.Entry) []lexicon.Entry {
	seen := make(map[lexicon.Entry]struct{}, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// title upper-cases the first letter of s and lower-cases the rest.
func title(s string) string {
	return cases.Title(language.Und).String(s)
}

// splitFirst returns the first rune of s and the remainder.
func splitFirst(s string) (string, string) {
	_, n := utf8.DecodeRuneInString(s)
	return s[:n], s[n:]
}

// StateAbbreviation expands a seed (abbreviation, full name) into the
// spoken→written entries for the abbreviation and five spelling variants:
//
//	CA → C. A, C.A, Ca, C.a, C. a
//
// Every entry maps the full name to one abbreviation form. Callers invert the
// resulting transducer to read abbreviations and emit the full name.
func StateAbbreviation(seed lexicon.Entry) []lexicon.Entry {
	abbrev, full := seed.Surface, seed.Normalized
	if abbrev == "" {
		return nil
	}
	first, rest := splitFirst(abbrev)
	upper := strings.ToUpper(first)
	lower := strings.ToLower(rest)

	variants := []string{
		abbrev,
		first + ". " + rest,
		first + "." + rest,
		title(abbrev),
		upper + "." + lower,
		upper + ". " + lower,
	}
	out := make([]lexicon.Entry, 0, len(variants))
	for _, v := range variants {
		out = append(out, lexicon.Entry{Surface: full, Normalized: v})
	}
	return out
}

// SurfaceVariants produces casing and trailing-period variants of a
// single-word alphabetic surface form: lower, lower., Title, Title., UPPER,
// UPPER. (minus the surface itself).
// The normalized form is kept as is. Surfaces that contain anything but
// letters yield nothing.
func SurfaceVariants(seed lexicon.Entry) []lexicon.Entry {
	s := seed.Surface
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
		return nil
	}
	lower := strings.ToLower(s)
	t := title(s)
	upper := strings.ToUpper(s)

	forms := []string{lower, lower + ".", t, t + ".", upper, upper + "."}
	out := make([]lexicon.Entry, 0, len(forms))
	for _, f := range forms {
		if f == s {
			continue
		}
		out = append(out, lexicon.Entry{Surface: f, Normalized: seed.Normalized})
	}
	return out
}

// Folded wraps r so that the surface of every derived entry is folded with
// inputCase.
func Folded(r Rule, inputCase lexicon.InputCase) Rule {
	return func(seed lexicon.Entry) []lexicon.Entry {
		out := r(seed)
		for i := range out {
			out[i].Surface = inputCase.Fold(out[i].Surface)
		}
		return out
	}
}

// FoldedOutput wraps r so that the normalized side of every derived entry is
// folded with inputCase. Used for spoken→written rules whose normalized side
// becomes the surface after inversion.
func FoldedOutput(r Rule, inputCase lexicon.InputCase) Rule {
	return func(seed lexicon.Entry) []lexicon.Entry {
		out := r(seed)
		for i := range out {
			out[i].Normalized = inputCase.Fold(out[i].Normalized)
		}
		return out
	}
}
