package fst

import (
	"fmt"
	"slices"
	"strings"
)

// Path is one output produced for an input together with its weight.
type Path struct {
	Output string
	Weight Weight
}

// Transduce returns every distinct output f produces for input, best first.
// Paths are ordered by weight, then by output string. Duplicate outputs keep
// their best weight. When limit is positive at most limit paths are
// returned. If no path accepts input, Transduce returns [ErrNoMatch].
//
// A cycle that emits output without consuming input makes the output set
// infinite when an accepting path passes through it; Transduce then returns
// [ErrInfinite]. Cycles that neither consume nor emit are followed once.
func Transduce(f *Fragment, input string, limit int) ([]Path, error) {
	runes := []rune(input)
	best := map[string]Weight{}

	type key struct{ s, pos int }
	// onChain maps each state of the current input-free chain to the output
	// length when it was entered.
	onChain := map[key]int{}
	pumping := map[key]bool{}
	infinite := false
	var out []rune

	// walk reports whether some accepting path continues from (s, pos).
	var walk func(s, pos int, w Weight) bool
	walk = func(s, pos int, w Weight) bool {
		k := key{s, pos}
		if n, ok := onChain[k]; ok {
			if len(out) > n {
				pumping[k] = true
			}
			return false
		}
		onChain[k] = len(out)
		defer delete(onChain, k)

		accepted := false
		st := &f.states[s]
		if pos == len(runes) && st.final {
			accepted = true
			fw := w.Times(st.fw)
			o := string(out)
			if old, ok := best[o]; !ok || fw.Less(old) {
				best[o] = fw
			}
		}
		for _, a := range st.arcs {
			if infinite {
				return accepted
			}
			var consumed rune
			next := pos
			if a.In != Epsilon {
				if pos >= len(runes) || !a.In.Matches(runes[pos]) {
					continue
				}
				consumed = runes[pos]
				next = pos + 1
			}
			n := len(out)
			switch {
			case a.Out == Epsilon:
			case a.Out.IsClass():
				out = append(out, consumed)
			default:
				out = append(out, rune(a.Out))
			}
			if next != pos {
				// Consuming input starts a fresh chain.
				saved := onChain
				onChain = map[key]int{}
				accepted = walk(a.Next, next, w.Times(a.Weight)) || accepted
				onChain = saved
			} else {
				accepted = walk(a.Next, next, w.Times(a.Weight)) || accepted
			}
			out = out[:n]
		}
		if accepted && pumping[k] {
			infinite = true
		}
		return accepted
	}
	walk(f.start, 0, One)

	if infinite {
		return nil, fmt.Errorf("%w: output-emitting cycle without input on %q", ErrInfinite, input)
	}
	if len(best) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, input)
	}
	paths := make([]Path, 0, len(best))
	for o, w := range best {
		paths = append(paths, Path{Output: o, Weight: w})
	}
	slices.SortFunc(paths, comparePath)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

func comparePath(x, y Path) int {
	switch {
	case x.Weight.Less(y.Weight):
		return -1
	case y.Weight.Less(x.Weight):
		return 1
	}
	return strings.Compare(x.Output, y.Output)
}

// Best returns the single best output for input.
func Best(f *Fragment, input string) (string, error) {
	paths, err := Transduce(f, input, 1)
	if err != nil {
		return "", err
	}
	return paths[0].Output, nil
}

// Accepts reports whether some path maps input to output.
func Accepts(f *Fragment, input, output string) bool {
	paths, err := Transduce(f, input, 0)
	if err != nil {
		return false
	}
	for _, p := range paths {
		if p.Output == output {
			return true
		}
	}
	return false
}

// Pairs enumerates the relation of an acyclic, class-free fragment, sorted by
// input, then weight, then output. It returns [ErrInfinite] otherwise.
func Pairs(f *Fragment) ([]Pair, error) {
	type rel struct{ in, out string }
	best := map[rel]Weight{}
	visiting := make([]bool, len(f.states))
	var in, out []rune

	var walk func(s int, w Weight) error
	walk = func(s int, w Weight) error {
		if visiting[s] {
			return fmt.Errorf("%w: cycle through state %d", ErrInfinite, s)
		}
		visiting[s] = true
		defer func() { visiting[s] = false }()

		st := &f.states[s]
		if st.final {
			r := rel{string(in), string(out)}
			fw := w.Times(st.fw)
			if old, ok := best[r]; !ok || fw.Less(old) {
				best[r] = fw
			}
		}
		for _, a := range st.arcs {
			if a.In.IsClass() || a.Out.IsClass() {
				return fmt.Errorf("%w: symbol class %s", ErrInfinite, a.In)
			}
			ni, no := len(in), len(out)
			if a.In != Epsilon {
				in = append(in, rune(a.In))
			}
			if a.Out != Epsilon {
				out = append(out, rune(a.Out))
			}
			if err := walk(a.Next, w.Times(a.Weight)); err != nil {
				return err
			}
			in, out = in[:ni], out[:no]
		}
		return nil
	}
	if err := walk(f.start, One); err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(best))
	for r, w := range best {
		pairs = append(pairs, Pair{In: r.in, Out: r.out, Weight: w})
	}
	slices.SortFunc(pairs, func(x, y Pair) int {
		if c := strings.Compare(x.In, y.In); c != 0 {
			return c
		}
		if c := comparePath(Path{x.Out, x.Weight}, Path{y.Out, y.Weight}); c != 0 {
			return c
		}
		return 0
	})
	return pairs, nil
}
