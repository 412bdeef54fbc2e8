// Package whitelist implements the whitelist classifier grammar: a curated
// exception lexicon whose entries take precedence over every other
// normalization rule.
//
// The grammar is assembled from up to four sources, in priority order:
//
//  1. The base lexicon (whitelist.tsv), plus casing and trailing-period
//     variants of single-word alphabetic surfaces.
//  2. In non-deterministic mode, an alternatives lexicon
//     (whitelist_alternatives.tsv) offering extra outputs.
//  3. In non-deterministic mode, a state-abbreviation expansion read from
//     address/states.tsv. It only fires when the abbreviation is glued to a
//     comma boundary ("Angeles, CA" or "CA, Los"), so bare two-letter words
//     such as "IN" or "OK" are left alone.
//  4. An optional caller-supplied override lexicon. Non-deterministic
//     grammars add it as further candidates; deterministic grammars discard
//     everything built so far and use only the override.
//
// Outputs have their spaces replaced with [grammar.SpaceMarker] and are
// wrapped as `name: "…"`.
package whitelist

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/MrWong99/textnorm/internal/derive"
	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/pkg/fst"
	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// Conventional file names relative to the data directory.
const (
	BaseFile         = "whitelist.tsv"
	AlternativesFile = "whitelist_alternatives.tsv"
	StatesFile       = "address/states.tsv"
)

// TagField is the structured field emitted by the grammar.
const TagField = "name"

// Name is the grammar's identifier.
const Name = "whitelist"

// Option is a functional option for configuring a [Grammar].
type Option func(*Grammar)

// WithDeterministic selects single-output (true, the default) or
// multi-candidate (false) mode.
func WithDeterministic(det bool) Option {
	return func(g *Grammar) {
		g.deterministic = det
	}
}

// WithOverride adds a caller-supplied lexicon. An empty path disables it.
func WithOverride(path string) Option {
	return func(g *Grammar) {
		g.override = path
	}
}

// WithSurfaceVariants toggles the casing/period variants derived from
// single-word alphabetic surfaces. Default: enabled.
func WithSurfaceVariants(enabled bool) Option {
	return func(g *Grammar) {
		g.surfaceVariants = enabled
	}
}

// Grammar is the whitelist grammar. It is immutable after [New] and safe for
// concurrent use.
type Grammar struct {
	dataDir         string
	inputCase       lexicon.InputCase
	deterministic   bool
	override        string
	surfaceVariants bool
}

var _ grammar.Grammar = (*Grammar)(nil)

// New configures a whitelist grammar reading its lexicons from dataDir.
// Nothing is loaded until [Grammar.Build] is called.
func New(dataDir string, inputCase lexicon.InputCase, opts ...Option) (*Grammar, error) {
	if !inputCase.IsValid() {
		return nil, fmt.Errorf("%w: whitelist: input_case %q; valid values: lower_cased, cased", lexicon.ErrConfig, inputCase)
	}
	g := &Grammar{
		dataDir:         dataDir,
		inputCase:       inputCase,
		deterministic:   true,
		surfaceVariants: true,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Name implements [grammar.Grammar].
func (g *Grammar) Name() string { return Name }

// Key identifies the build inputs; grammars with equal keys build equal
// fragments.
func (g *Grammar) Key() string {
	return fmt.Sprintf("%s|%s|%s|det=%t|override=%s|variants=%t",
		Name, g.dataDir, g.inputCase, g.deterministic, g.override, g.surfaceVariants)
}

// Field returns the tag field outputs are wrapped in.
func (g *Grammar) Field() string { return TagField }

// InputCase returns the configured input case.
func (g *Grammar) InputCase() lexicon.InputCase { return g.inputCase }

// Deterministic reports whether the grammar exposes a single output per
// input.
func (g *Grammar) Deterministic() bool { return g.deterministic }

// Build implements [grammar.Grammar].
func (g *Grammar) Build() (*fst.Fragment, error) {
	graph, err := g.lexiconGraph(filepath.Join(g.dataDir, BaseFile))
	if err != nil {
		return nil, err
	}

	if !g.deterministic {
		alt, err := g.lexiconGraph(filepath.Join(g.dataDir, AlternativesFile))
		if err != nil {
			return nil, err
		}
		states, err := g.stateGraph(filepath.Join(g.dataDir, StatesFile))
		if err != nil {
			return nil, err
		}
		graph = fst.Union(graph, alt, states)
	}

	if g.override != "" {
		provided, err := g.lexiconGraph(g.override)
		if err != nil {
			return nil, err
		}
		if g.deterministic {
			graph = provided
		} else {
			graph = fst.Union(graph, provided)
		}
	}

	graph = fst.Optimize(grammar.ConvertSpace(graph)).
		WithMeta(Name, fst.KindClassify).
		WithDeterministic(g.deterministic)

	tagged, err := grammar.Tag(graph, TagField)
	if err != nil {
		return nil, fmt.Errorf("whitelist: tag: %w", err)
	}
	slog.Debug("whitelist grammar built",
		"input_case", g.inputCase,
		"deterministic", g.deterministic,
		"override", g.override,
		"states", tagged.NumStates(),
		"arcs", tagged.NumArcs(),
	)
	return tagged, nil
}

// entries loads path and appends derived surface variants after the
// explicit rows. Deterministic grammars keep only the first entry per
// surface.
func (g *Grammar) entries(path string) ([]lexicon.Entry, error) {
	explicit, err := lexicon.Load(path, g.inputCase)
	if err != nil {
		return nil, fmt.Errorf("whitelist: %w", err)
	}
	all := explicit
	if g.surfaceVariants {
		derived := derive.Expand(explicit, derive.Folded(derive.SurfaceVariants, g.inputCase))
		all = append(append([]lexicon.Entry{}, explicit...), derived...)
	}
	all = derive.Dedupe(all)
	if g.deterministic {
		all = firstPerSurface(all)
	}
	return all, nil
}

func (g *Grammar) lexiconGraph(path string) (*fst.Fragment, error) {
	entries, err := g.entries(path)
	if err != nil {
		return nil, err
	}
	f, err := fst.FromPairs(lexicon.Pairs(entries))
	if err != nil {
		return nil, fmt.Errorf("whitelist: %s: %w", path, err)
	}
	return f, nil
}

// stateGraph builds the comma-gated state-abbreviation expansion.
func (g *Grammar) stateGraph(path string) (*fst.Fragment, error) {
	seeds, err := lexicon.Load(path, lexicon.Cased)
	if err != nil {
		return nil, fmt.Errorf("whitelist: %w", err)
	}
	rule := derive.Rule(derive.StateAbbreviation)
	if g.inputCase == lexicon.LowerCased {
		rule = derive.FoldedOutput(rule, g.inputCase)
	}
	spoken, err := fst.FromPairs(lexicon.Pairs(derive.Dedupe(derive.Expand(seeds, rule))))
	if err != nil {
		return nil, fmt.Errorf("whitelist: %s: %w", path, err)
	}
	abbrev := fst.Optimize(fst.Invert(spoken))

	commaSpace, err := fst.Accept(", ")
	if err != nil {
		return nil, err
	}
	comma, err := fst.Accept(",")
	if err != nil {
		return nil, err
	}
	boundary := fst.Merge(commaSpace, comma)
	word := fst.Closure(fst.NotSpace(), 1)

	before := fst.Concat(word, boundary, abbrev)
	after := fst.Concat(abbrev, boundary, word)
	return fst.Optimize(fst.Merge(before, after)), nil
}

// firstPerSurface keeps the first entry for every surface form.
func firstPerSurface(entries []lexicon.Entry) []lexicon.Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]lexicon.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Surface]; ok {
			continue
		}
		seen[e.Surface] = struct{}{}
		out = append(out, e)
	}
	return out
}
