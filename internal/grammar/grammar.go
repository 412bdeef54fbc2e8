// Package grammar defines the contract shared by every normalization grammar
// and the fragment decorators they all use: structured tagging and
// space-marker canonicalization.
//
// A grammar is anything that can build a single optimized [fst.Fragment].
// New behaviour comes from composing fragments, not from specialising a base
// type.
package grammar

import (
	"fmt"
	"strings"

	"github.com/MrWong99/textnorm/pkg/fst"
)

// SpaceMarker replaces literal spaces on the output tape so that multi-word
// outputs survive tokenization in neighbouring grammars.
const SpaceMarker = '\u00a0'

// Grammar builds a transducer. Implementations must be safe to call
// concurrently; the returned fragment is immutable.
type Grammar interface {
	// Name identifies the grammar in logs, metrics and cache keys.
	Name() string

	// Build constructs the grammar's optimized fragment. Any error aborts
	// initialization; no partial fragment is returned.
	Build() (*fst.Fragment, error)
}

// Tag surrounds f with the literal insertions `field: "` and `"`, producing a
// structured token. The result is optimized.
func Tag(f *fst.Fragment, field string) (*fst.Fragment, error) {
	if field == "" || strings.ContainsAny(field, "\" \t\n") {
		return nil, fmt.Errorf("%w: invalid tag field %q", fst.ErrBuild, field)
	}
	open, err := fst.Insert(field + `: "`)
	if err != nil {
		return nil, err
	}
	closeQuote, err := fst.Insert(`"`)
	if err != nil {
		return nil, err
	}
	tagged := fst.Concat(f, closeQuote)
	tagged = fst.Concat(open, tagged).WithMeta(f.Name(), f.Kind()).WithDeterministic(f.Deterministic())
	return fst.Optimize(tagged), nil
}

// spaceRewrite maps U+0020 to the marker and copies every other rune,
// including other Unicode whitespace.
var spaceRewrite = func() *fst.Fragment {
	toMarker := fst.MustFromPairs([]fst.Pair{{In: " ", Out: string(SpaceMarker)}})
	return fst.Optimize(fst.Closure(fst.Merge(fst.NotASCIISpace(), toMarker), 0))
}()

// ConvertSpace rewrites every U+0020 on f's output tape to [SpaceMarker].
// All other runes, other whitespace included, pass through unchanged. The
// input tape is left unchanged.
func ConvertSpace(f *fst.Fragment) *fst.Fragment {
	return fst.Compose(f, spaceRewrite)
}

// Untag strips a `field: "…"` wrapper and restores spaces. Strings without
// the wrapper are returned with only the marker replaced.
func Untag(s, field string) string {
	prefix := field + `: "`
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, `"`) && len(s) >= len(prefix)+1 {
		s = s[len(prefix) : len(s)-1]
	}
	return strings.ReplaceAll(s, string(SpaceMarker), " ")
}
