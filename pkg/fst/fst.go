// Package fst implements the weighted finite-state transducer algebra that
// every normalization grammar is built from.
//
// A [Fragment] relates an input tape to an output tape. Labels are Unicode
// code points; [Epsilon] marks an empty move and negative labels are reserved
// symbol classes such as [ClassNotSpace]. Class labels only ever appear as
// identity arcs (the same class on both tapes), so a class arc copies the
// consumed rune to the output.
//
// Fragments are immutable. Every operation ([Union], [Concat], [Closure],
// [Compose], [Invert], [Optimize], ...) returns a new value and never touches
// its operands, which makes a built fragment safe to share across goroutines
// without synchronisation.
//
// Paths are weighted with [Weight], a lexicographic pair of a tropical cost
// and a priority rank. [Union] shifts the ranks of later operands behind the
// earlier ones, so operand order is the tie-break when a single best output
// is extracted with [Best].
package fst

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrBuild is returned when a fragment cannot be constructed, e.g. because an
// input string cannot be encoded into the symbol alphabet.
var ErrBuild = errors.New("fst: build failed")

// ErrNoMatch is returned when an input string is accepted by no path.
var ErrNoMatch = errors.New("fst: no path accepts input")

// ErrInfinite is returned when a relation cannot be enumerated because it is
// cyclic or contains symbol classes.
var ErrInfinite = errors.New("fst: relation is not finite")

// Label is a transducer symbol.
type Label int32

const (
	// Epsilon consumes or emits nothing.
	Epsilon Label = 0

	// ClassNotSpace matches any single rune for which [unicode.IsSpace] is
	// false and copies it to the output.
	ClassNotSpace Label = -1

	// ClassNotASCIISpace matches any single rune except U+0020 and copies it
	// to the output. It is a superset of [ClassNotSpace].
	ClassNotASCIISpace Label = -2
)

// IsClass reports whether l is a reserved symbol class.
func (l Label) IsClass() bool { return l < 0 }

// Matches reports whether l consumes r.
func (l Label) Matches(r rune) bool {
	switch {
	case l == ClassNotSpace:
		return !unicode.IsSpace(r)
	case l == ClassNotASCIISpace:
		return r != ' '
	case l > 0:
		return rune(l) == r
	}
	return false
}

func (l Label) String() string {
	switch {
	case l == Epsilon:
		return "<eps>"
	case l == ClassNotSpace:
		return "<notspace>"
	case l == ClassNotASCIISpace:
		return "<not-ascii-space>"
	case l < 0:
		return fmt.Sprintf("<class%d>", -l)
	}
	return string(rune(l))
}

// Weight is a lexicographic path weight. Cost is tropical: it is added along
// a path and lower is better. Rank is a priority: the largest rank on a path
// is the path's rank and lower is better. Costs must be non-negative.
type Weight struct {
	Cost float64
	Rank int
}

// One is the identity weight.
var One = Weight{}

// Times extends a path weight with w.
func (w Weight) Times(o Weight) Weight {
	return Weight{Cost: w.Cost + o.Cost, Rank: max(w.Rank, o.Rank)}
}

// Less orders weights by cost, then rank.
func (w Weight) Less(o Weight) bool {
	if w.Cost != o.Cost {
		return w.Cost < o.Cost
	}
	return w.Rank < o.Rank
}

// Kind is the pipeline phase a fragment belongs to.
type Kind string

const (
	KindClassify  Kind = "classify"
	KindVerbalize Kind = "verbalize"
)

// Arc is a single transition.
type Arc struct {
	In, Out Label
	Weight  Weight
	Next    int
}

type state struct {
	arcs  []Arc
	final bool
	fw    Weight
}

// Fragment is an immutable weighted transducer.
type Fragment struct {
	name          string
	kind          Kind
	optimized     bool
	deterministic bool

	start  int
	states []state
}

// Name returns the fragment's name, if any.
func (f *Fragment) Name() string { return f.name }

// Kind returns the pipeline phase the fragment was tagged with.
func (f *Fragment) Kind() Kind { return f.kind }

// Optimized reports whether f is the output of [Optimize].
func (f *Fragment) Optimized() bool { return f.optimized }

// Deterministic reports whether f was built to expose a single output per
// accepted input.
func (f *Fragment) Deterministic() bool { return f.deterministic }

// NumStates returns the number of states.
func (f *Fragment) NumStates() int { return len(f.states) }

// NumArcs returns the total number of arcs.
func (f *Fragment) NumArcs() int {
	n := 0
	for i := range f.states {
		n += len(f.states[i].arcs)
	}
	return n
}

// WithMeta returns a copy of f carrying the given name and kind. The
// underlying graph is shared.
func (f *Fragment) WithMeta(name string, kind Kind) *Fragment {
	c := *f
	c.name = name
	c.kind = kind
	return &c
}

// WithDeterministic returns a copy of f flagged as deterministic or not.
func (f *Fragment) WithDeterministic(det bool) *Fragment {
	c := *f
	c.deterministic = det
	return &c
}

// maxRank returns the largest rank carried by any arc or final weight.
func (f *Fragment) maxRank() int {
	r := 0
	for i := range f.states {
		s := &f.states[i]
		if s.final {
			r = max(r, s.fw.Rank)
		}
		for _, a := range s.arcs {
			r = max(r, a.Weight.Rank)
		}
	}
	return r
}

// String renders f in an AT&T-like text format, one arc or final state per
// line.
func (f *Fragment) String() string {
	var b strings.Builder
	order := make([]int, 0, len(f.states))
	order = append(order, f.start)
	for i := range f.states {
		if i != f.start {
			order = append(order, i)
		}
	}
	for _, i := range order {
		s := &f.states[i]
		for _, a := range s.arcs {
			fmt.Fprintf(&b, "%d\t%d\t%s\t%s", i, a.Next, a.In, a.Out)
			if a.Weight != One {
				fmt.Fprintf(&b, "\t%g/%d", a.Weight.Cost, a.Weight.Rank)
			}
			b.WriteByte('\n')
		}
		if s.final {
			fmt.Fprintf(&b, "%d", i)
			if s.fw != One {
				fmt.Fprintf(&b, "\t%g/%d", s.fw.Cost, s.fw.Rank)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Equal reports whether a and b have identical structure. Two optimized
// fragments are Equal exactly when they encode the same weighted relation.
func Equal(a, b *Fragment) bool {
	if a.start != b.start || len(a.states) != len(b.states) {
		return false
	}
	for i := range a.states {
		sa, sb := &a.states[i], &b.states[i]
		if sa.final != sb.final || (sa.final && sa.fw != sb.fw) {
			return false
		}
		if len(sa.arcs) != len(sb.arcs) {
			return false
		}
		for j := range sa.arcs {
			if sa.arcs[j] != sb.arcs[j] {
				return false
			}
		}
	}
	return true
}

// builder accumulates states for a fragment under construction.
type builder struct {
	states []state
}

func (b *builder) addState() int {
	b.states = append(b.states, state{})
	return len(b.states) - 1
}

func (b *builder) addArc(from int, a Arc) {
	b.states[from].arcs = append(b.states[from].arcs, a)
}

func (b *builder) setFinal(s int, w Weight) {
	b.states[s].final = true
	b.states[s].fw = w
}

// copyFrom appends every state of f, shifting targets and ranks, and returns
// the new index of f's start state together with the index offset.
func (b *builder) copyFrom(f *Fragment, rankShift int) (start, offset int) {
	offset = len(b.states)
	for i := range f.states {
		src := &f.states[i]
		dst := state{final: src.final, fw: src.fw}
		if dst.final && rankShift > 0 {
			dst.fw.Rank += rankShift
		}
		if len(src.arcs) > 0 {
			dst.arcs = make([]Arc, len(src.arcs))
			for j, a := range src.arcs {
				a.Next += offset
				if rankShift > 0 {
					a.Weight.Rank += rankShift
				}
				dst.arcs[j] = a
			}
		}
		b.states = append(b.states, dst)
	}
	return f.start + offset, offset
}

func (b *builder) fragment(start int) *Fragment {
	return &Fragment{start: start, states: b.states}
}

// metaOf carries name, kind and determinism from the first operand.
func metaOf(dst *Fragment, src *Fragment) *Fragment {
	dst.name = src.name
	dst.kind = src.kind
	dst.deterministic = src.deterministic
	return dst
}
