package fst

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// Optimize returns a state-minimal fragment accepting the same weighted
// relation as f. Arcs are treated as encoded (input, output, weight) symbols:
// epsilon arcs are removed, useless states trimmed, the result determinized
// and minimized over the encoded alphabet, and finally renumbered in a
// canonical breadth-first order. Optimize is idempotent: for any f,
// Equal(Optimize(Optimize(f)), Optimize(f)) holds.
//
// When several paths share input, output and arc weights but differ in final
// weight, only the best final weight survives.
func Optimize(f *Fragment) *Fragment {
	g := rmEpsilon(f)
	g = connect(g)
	g = determinize(g)
	g = minimize(g)
	g = canonical(g)
	g = metaOf(g, f)
	g.optimized = true
	return g
}

// connect drops states that are unreachable from the start or cannot reach a
// final state. The start state is always kept.
func connect(f *Fragment) *Fragment {
	n := len(f.states)
	acc := make([]bool, n)
	stack := []int{f.start}
	acc[f.start] = true
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, a := range f.states[s].arcs {
			if !acc[a.Next] {
				acc[a.Next] = true
				stack = append(stack, a.Next)
			}
		}
	}

	rev := make([][]int, n)
	for s := range f.states {
		for _, a := range f.states[s].arcs {
			rev[a.Next] = append(rev[a.Next], s)
		}
	}
	coacc := make([]bool, n)
	for s := range f.states {
		if f.states[s].final {
			coacc[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range rev[s] {
			if !coacc[p] {
				coacc[p] = true
				stack = append(stack, p)
			}
		}
	}

	keep := make([]int, n)
	b := &builder{}
	for s := range f.states {
		keep[s] = -1
		if s == f.start || (acc[s] && coacc[s]) {
			keep[s] = b.addState()
		}
	}
	for s := range f.states {
		id := keep[s]
		if id < 0 {
			continue
		}
		src := &f.states[s]
		if src.final {
			b.setFinal(id, src.fw)
		}
		for _, a := range src.arcs {
			if keep[a.Next] < 0 || !coacc[a.Next] {
				continue
			}
			a.Next = keep[a.Next]
			b.addArc(id, a)
		}
	}
	return metaOf(b.fragment(keep[f.start]), f)
}

func isEpsilonArc(a Arc) bool { return a.In == Epsilon && a.Out == Epsilon }

// rmEpsilon removes arcs that are epsilon on both tapes, folding their
// weights into the following arcs and final weights.
func rmEpsilon(f *Fragment) *Fragment {
	b := &builder{}
	for range f.states {
		b.addState()
	}
	limit := len(f.states)*len(f.states) + 1

	for s := range f.states {
		dist := map[int]Weight{s: One}
		order := []int{s}
		work := []int{s}
		for steps := 0; len(work) > 0 && steps < limit; steps++ {
			u := work[0]
			work = work[1:]
			for _, a := range f.states[u].arcs {
				if !isEpsilonArc(a) {
					continue
				}
				nd := dist[u].Times(a.Weight)
				old, seen := dist[a.Next]
				if !seen {
					order = append(order, a.Next)
				}
				if !seen || nd.Less(old) {
					dist[a.Next] = nd
					work = append(work, a.Next)
				}
			}
		}

		for _, v := range order {
			d := dist[v]
			sv := &f.states[v]
			if sv.final {
				fw := d.Times(sv.fw)
				if !b.states[s].final || fw.Less(b.states[s].fw) {
					b.setFinal(s, fw)
				}
			}
			for _, a := range sv.arcs {
				if isEpsilonArc(a) {
					continue
				}
				a.Weight = d.Times(a.Weight)
				b.addArc(s, a)
			}
		}
	}
	return metaOf(b.fragment(f.start), f)
}

// symbol is an arc label encoded together with its weight.
type symbol struct {
	in, out Label
	w       Weight
}

func compareSymbol(x, y symbol) int {
	if c := cmp.Compare(x.in, y.in); c != 0 {
		return c
	}
	if c := cmp.Compare(x.out, y.out); c != 0 {
		return c
	}
	if c := cmp.Compare(x.w.Cost, y.w.Cost); c != 0 {
		return c
	}
	return cmp.Compare(x.w.Rank, y.w.Rank)
}

func setKey(set []int) string {
	var sb strings.Builder
	for i, s := range set {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(s))
	}
	return sb.String()
}

// determinize runs subset construction over encoded symbols. The input must
// be free of epsilon-epsilon arcs.
func determinize(f *Fragment) *Fragment {
	b := &builder{}
	index := map[string]int{}
	var sets [][]int

	add := func(set []int) int {
		k := setKey(set)
		if id, ok := index[k]; ok {
			return id
		}
		id := b.addState()
		index[k] = id
		sets = append(sets, set)
		return id
	}

	start := add([]int{f.start})
	for i := 0; i < len(sets); i++ {
		set := sets[i]
		moves := map[symbol][]int{}
		var syms []symbol
		for _, s := range set {
			st := &f.states[s]
			if st.final && (!b.states[i].final || st.fw.Less(b.states[i].fw)) {
				b.setFinal(i, st.fw)
			}
			for _, a := range st.arcs {
				k := symbol{a.In, a.Out, a.Weight}
				if _, ok := moves[k]; !ok {
					syms = append(syms, k)
				}
				moves[k] = append(moves[k], a.Next)
			}
		}
		slices.SortFunc(syms, compareSymbol)
		for _, k := range syms {
			target := slices.Compact(slices.Sorted(slices.Values(moves[k])))
			next := add(target)
			b.addArc(i, Arc{In: k.in, Out: k.out, Weight: k.w, Next: next})
		}
	}
	return metaOf(b.fragment(start), f)
}

// minimize merges equivalent states of a deterministic fragment by Moore
// partition refinement.
func minimize(f *Fragment) *Fragment {
	n := len(f.states)
	block := make([]int, n)

	// Initial partition: non-final states, then one block per final weight.
	finals := map[Weight]int{}
	for s := range f.states {
		st := &f.states[s]
		if !st.final {
			block[s] = 0
			continue
		}
		id, ok := finals[st.fw]
		if !ok {
			id = len(finals) + 1
			finals[st.fw] = id
		}
		block[s] = id
	}

	count := -1
	for {
		sigs := map[string]int{}
		next := make([]int, n)
		for s := range f.states {
			var sb strings.Builder
			sb.WriteString(strconv.Itoa(block[s]))
			for _, a := range f.states[s].arcs {
				sb.WriteByte('|')
				sb.WriteString(strconv.Itoa(int(a.In)))
				sb.WriteByte(':')
				sb.WriteString(strconv.Itoa(int(a.Out)))
				sb.WriteByte(':')
				sb.WriteString(strconv.FormatFloat(a.Weight.Cost, 'g', -1, 64))
				sb.WriteByte(':')
				sb.WriteString(strconv.Itoa(a.Weight.Rank))
				sb.WriteByte('>')
				sb.WriteString(strconv.Itoa(block[a.Next]))
			}
			k := sb.String()
			id, ok := sigs[k]
			if !ok {
				id = len(sigs)
				sigs[k] = id
			}
			next[s] = id
		}
		block = next
		if len(sigs) == count {
			break
		}
		count = len(sigs)
	}

	b := &builder{}
	for i := 0; i < count; i++ {
		b.addState()
	}
	done := make([]bool, count)
	for s := range f.states {
		id := block[s]
		if done[id] {
			continue
		}
		done[id] = true
		st := &f.states[s]
		if st.final {
			b.setFinal(id, st.fw)
		}
		for _, a := range st.arcs {
			a.Next = block[a.Next]
			b.addArc(id, a)
		}
	}
	return metaOf(b.fragment(block[f.start]), f)
}

// canonical renumbers states in breadth-first order from the start state,
// visiting arcs sorted by encoded symbol.
func canonical(f *Fragment) *Fragment {
	order := make([]int, len(f.states))
	for i := range order {
		order[i] = -1
	}
	queue := []int{f.start}
	order[f.start] = 0
	seq := []int{f.start}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		arcs := slices.Clone(f.states[s].arcs)
		slices.SortFunc(arcs, func(x, y Arc) int {
			return compareSymbol(symbol{x.In, x.Out, x.Weight}, symbol{y.In, y.Out, y.Weight})
		})
		for _, a := range arcs {
			if order[a.Next] < 0 {
				order[a.Next] = len(seq)
				seq = append(seq, a.Next)
				queue = append(queue, a.Next)
			}
		}
	}

	b := &builder{}
	for range seq {
		b.addState()
	}
	for id, s := range seq {
		st := &f.states[s]
		if st.final {
			b.setFinal(id, st.fw)
		}
		arcs := slices.Clone(st.arcs)
		slices.SortFunc(arcs, func(x, y Arc) int {
			return compareSymbol(symbol{x.In, x.Out, x.Weight}, symbol{y.In, y.Out, y.Weight})
		})
		for _, a := range arcs {
			a.Next = order[a.Next]
			b.addArc(id, a)
		}
	}
	return metaOf(b.fragment(0), f)
}
