package fst

// Union accepts the union of its operands' relations. Ranks of each operand
// are shifted behind every earlier operand, so on equal cost a path from an
// earlier operand is preferred.
func Union(first *Fragment, rest ...*Fragment) *Fragment {
	b := &builder{}
	start := b.addState()
	shift := 0
	for i, f := range append([]*Fragment{first}, rest...) {
		if i > 0 {
			shift++
		}
		s, _ := b.copyFrom(f, shift)
		b.addArc(start, Arc{In: Epsilon, Out: Epsilon, Weight: Weight{Rank: shift}, Next: s})
		shift += f.maxRank()
	}
	return metaOf(b.fragment(start), first)
}

// Merge accepts the union of its operands' relations without imposing any
// priority between them: ranks are kept as they are.
func Merge(first *Fragment, rest ...*Fragment) *Fragment {
	b := &builder{}
	start := b.addState()
	for _, f := range append([]*Fragment{first}, rest...) {
		s, _ := b.copyFrom(f, 0)
		b.addArc(start, Arc{In: Epsilon, Out: Epsilon, Next: s})
	}
	return metaOf(b.fragment(start), first)
}

// Concat accepts the concatenation of its operands' relations in order.
func Concat(first *Fragment, rest ...*Fragment) *Fragment {
	b := &builder{}
	parts := append([]*Fragment{first}, rest...)

	starts := make([]int, len(parts))
	finals := make([][]int, len(parts))
	for i, f := range parts {
		s, off := b.copyFrom(f, 0)
		starts[i] = s
		for j := range f.states {
			if f.states[j].final {
				finals[i] = append(finals[i], j+off)
			}
		}
	}
	for i := 0; i < len(parts)-1; i++ {
		for _, fs := range finals[i] {
			st := &b.states[fs]
			b.addArc(fs, Arc{In: Epsilon, Out: Epsilon, Weight: st.fw, Next: starts[i+1]})
			st.final = false
			st.fw = One
		}
	}
	return metaOf(b.fragment(starts[0]), first)
}

// Closure accepts min or more repetitions of f. Closure(f, 0) is the Kleene
// star and Closure(f, 1) the Kleene plus.
func Closure(f *Fragment, min int) *Fragment {
	b := &builder{}
	start := b.addState()
	b.setFinal(start, One)
	s, off := b.copyFrom(f, 0)
	b.addArc(start, Arc{In: Epsilon, Out: Epsilon, Next: s})
	for j := range f.states {
		if f.states[j].final {
			fs := j + off
			b.addArc(fs, Arc{In: Epsilon, Out: Epsilon, Weight: b.states[fs].fw, Next: s})
		}
	}
	star := metaOf(b.fragment(start), f)
	if min <= 0 {
		return star
	}
	parts := make([]*Fragment, 0, min)
	for i := 0; i < min; i++ {
		parts = append(parts, f)
	}
	return metaOf(Concat(parts[0], append(parts[1:], star)...), f)
}

// Optional accepts f or the empty pair.
func Optional(f *Fragment) *Fragment {
	b := &builder{}
	start := b.addState()
	b.setFinal(start, One)
	s, _ := b.copyFrom(f, 0)
	b.addArc(start, Arc{In: Epsilon, Out: Epsilon, Next: s})
	return metaOf(b.fragment(start), f)
}

// Invert swaps the input and output tapes.
func Invert(f *Fragment) *Fragment {
	b := &builder{}
	start, _ := b.copyFrom(f, 0)
	for i := range b.states {
		arcs := b.states[i].arcs
		for j := range arcs {
			arcs[j].In, arcs[j].Out = arcs[j].Out, arcs[j].In
		}
	}
	return metaOf(b.fragment(start), f)
}

// AddWeight multiplies w into every path of f.
func AddWeight(f *Fragment, w Weight) *Fragment {
	b := &builder{}
	start, _ := b.copyFrom(f, 0)
	for i := range b.states {
		if b.states[i].final {
			b.states[i].fw = b.states[i].fw.Times(w)
		}
	}
	return metaOf(b.fragment(start), f)
}

// Compose chains a's output tape into b's input tape. Symbol classes are
// resolved against literals, so an identity class on one side specialises to
// the literal rune it meets on the other.
func Compose(a, b *Fragment) *Fragment {
	type pair struct{ p, q int }

	bl := &builder{}
	index := map[pair]int{}
	var queue []pair
	lookup := func(k pair) int {
		if id, ok := index[k]; ok {
			return id
		}
		id := bl.addState()
		index[k] = id
		queue = append(queue, k)
		return id
	}

	start := lookup(pair{a.start, b.start})
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		id := index[cur]
		sa, sb := &a.states[cur.p], &b.states[cur.q]

		if sa.final && sb.final {
			bl.setFinal(id, sa.fw.Times(sb.fw))
		}
		for _, x := range sa.arcs {
			if x.Out == Epsilon {
				next := lookup(pair{x.Next, cur.q})
				bl.addArc(id, Arc{In: x.In, Out: Epsilon, Weight: x.Weight, Next: next})
			}
		}
		for _, y := range sb.arcs {
			if y.In == Epsilon {
				next := lookup(pair{cur.p, y.Next})
				bl.addArc(id, Arc{In: Epsilon, Out: y.Out, Weight: y.Weight, Next: next})
			}
		}
		for _, x := range sa.arcs {
			if x.Out == Epsilon {
				continue
			}
			for _, y := range sb.arcs {
				if y.In == Epsilon {
					continue
				}
				sym, ok := meet(x.Out, y.In)
				if !ok {
					continue
				}
				// Class arcs are identities, so a class side narrows to the
				// shared symbol.
				in, out := x.In, y.Out
				if x.In.IsClass() {
					in = sym
				}
				if y.Out.IsClass() {
					out = sym
				}
				next := lookup(pair{x.Next, y.Next})
				bl.addArc(id, Arc{In: in, Out: out, Weight: x.Weight.Times(y.Weight), Next: next})
			}
		}
	}

	f := metaOf(bl.fragment(start), a)
	return connect(f)
}

// meet returns the symbol shared by two non-epsilon labels. Two classes meet
// in the narrower one when one contains the other.
func meet(x, y Label) (Label, bool) {
	switch {
	case x == y:
		return x, true
	case x.IsClass() && !y.IsClass():
		return y, x.Matches(rune(y))
	case y.IsClass() && !x.IsClass():
		return x, y.Matches(rune(x))
	case contains(x, y):
		return y, true
	case contains(y, x):
		return x, true
	}
	return 0, false
}

// contains reports whether class outer accepts every rune class inner does.
func contains(outer, inner Label) bool {
	return outer == ClassNotASCIISpace && inner == ClassNotSpace
}
