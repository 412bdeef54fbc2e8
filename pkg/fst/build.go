package fst

import (
	"fmt"
	"unicode/utf8"
)

// Pair is one (input, output) string mapping with an optional weight.
type Pair struct {
	In, Out string
	Weight  Weight
}

// FromPairs builds a fragment that accepts exactly the given relation. Input
// and output are aligned rune by rune; the shorter side is padded with
// epsilons.
//
// When the same input occurs more than once, the k-th occurrence (counting
// from zero) is given rank k, so the first-listed output wins under [Best].
func FromPairs(pairs []Pair) (*Fragment, error) {
	b := &builder{}
	start := b.addState()
	seen := make(map[string]int, len(pairs))

	for i, p := range pairs {
		in, err := encode(p.In)
		if err != nil {
			return nil, fmt.Errorf("%w: pair %d input %q: %v", ErrBuild, i, p.In, err)
		}
		out, err := encode(p.Out)
		if err != nil {
			return nil, fmt.Errorf("%w: pair %d output %q: %v", ErrBuild, i, p.Out, err)
		}

		w := p.Weight
		if w.Cost < 0 {
			return nil, fmt.Errorf("%w: pair %d has negative cost %g", ErrBuild, i, w.Cost)
		}
		w = w.Times(Weight{Rank: seen[p.In]})
		seen[p.In]++

		n := max(len(in), len(out))
		if n == 0 {
			// The empty pair makes the start state final; keep the best weight.
			if !b.states[start].final || w.Less(b.states[start].fw) {
				b.setFinal(start, w)
			}
			continue
		}
		cur := start
		for k := 0; k < n; k++ {
			il, ol := Epsilon, Epsilon
			if k < len(in) {
				il = in[k]
			}
			if k < len(out) {
				ol = out[k]
			}
			next := b.addState()
			b.addArc(cur, Arc{In: il, Out: ol, Next: next})
			cur = next
		}
		b.setFinal(cur, w)
	}
	return b.fragment(start), nil
}

// MustFromPairs is like [FromPairs] but panics on error. Intended for
// package-level literals.
func MustFromPairs(pairs []Pair) *Fragment {
	f, err := FromPairs(pairs)
	if err != nil {
		panic(err)
	}
	return f
}

// Cross maps in to out.
func Cross(in, out string) (*Fragment, error) {
	return FromPairs([]Pair{{In: in, Out: out}})
}

// Accept is the identity relation on s.
func Accept(s string) (*Fragment, error) {
	return FromPairs([]Pair{{In: s, Out: s}})
}

// Insert emits s while consuming nothing.
func Insert(s string) (*Fragment, error) {
	return FromPairs([]Pair{{Out: s}})
}

// Delete consumes s while emitting nothing.
func Delete(s string) (*Fragment, error) {
	return FromPairs([]Pair{{In: s}})
}

// Empty accepts nothing.
func Empty() *Fragment {
	b := &builder{}
	return b.fragment(b.addState())
}

// NotSpace accepts exactly one non-space rune and copies it to the output.
func NotSpace() *Fragment {
	return classIdentity(ClassNotSpace)
}

// NotASCIISpace accepts exactly one rune other than U+0020 and copies it to
// the output. Other Unicode whitespace is accepted.
func NotASCIISpace() *Fragment {
	return classIdentity(ClassNotASCIISpace)
}

func classIdentity(c Label) *Fragment {
	b := &builder{}
	s := b.addState()
	e := b.addState()
	b.addArc(s, Arc{In: c, Out: c, Next: e})
	b.setFinal(e, One)
	return b.fragment(s)
}

// encode converts s into labels, rejecting strings that cannot be
// represented in the alphabet.
func encode(s string) ([]Label, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("invalid UTF-8")
	}
	out := make([]Label, 0, len(s))
	for _, r := range s {
		if r == 0 {
			return nil, fmt.Errorf("NUL collides with the epsilon label")
		}
		out = append(out, Label(r))
	}
	return out, nil
}
