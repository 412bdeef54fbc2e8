package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/internal/observe"
	"github.com/MrWong99/textnorm/pkg/fst"
	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// DefaultField is the tag field assumed for grammars that do not declare one.
const DefaultField = "name"

// Tagger is one built grammar ready for classification.
type Tagger struct {
	// Name identifies the grammar.
	Name string

	// Field is the tag field the grammar wraps its outputs in.
	Field string

	// InputCase is applied to every span before transduction.
	InputCase lexicon.InputCase

	// Fragment is the built, optimized grammar.
	Fragment *fst.Fragment
}

// Tag transduces span and returns its tagged candidates, best first. A
// deterministic fragment yields exactly one candidate.
func (t Tagger) Tag(span string, limit int) ([]fst.Path, error) {
	if t.Fragment.Deterministic() {
		limit = 1
	}
	return fst.Transduce(t.Fragment, t.InputCase.Fold(span), limit)
}

// Match is a span accepted by one tagger of a [Chain].
type Match struct {
	Tagger string
	Field  string
	Paths  []fst.Path
}

// Chain holds taggers in priority order. Classification tries each in turn
// and falls through to the next when a tagger accepts no path for the span.
//
// Chain is immutable after construction and safe for concurrent use.
type Chain struct {
	entries []Tagger
	metrics *observe.Metrics
}

// NewChain creates a [Chain] with primary as the first tagger. Additional
// taggers are registered via [Chain.AddFallback].
func NewChain(primary Tagger, m *observe.Metrics) *Chain {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	if primary.Field == "" {
		primary.Field = DefaultField
	}
	return &Chain{entries: []Tagger{primary}, metrics: m}
}

// AddFallback appends a tagger. Fallbacks are tried in the order they are
// added, after the primary.
func (c *Chain) AddFallback(t Tagger) {
	if t.Field == "" {
		t.Field = DefaultField
	}
	c.entries = append(c.entries, t)
}

// Taggers returns the tagger names in priority order.
func (c *Chain) Taggers() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Classify runs span through the chain. It returns [fst.ErrNoMatch] when no
// tagger accepts the span; any other error stops the chain.
func (c *Chain) Classify(ctx context.Context, span string, limit int) (Match, error) {
	for _, t := range c.entries {
		paths, err := t.Tag(span, limit)
		if err == nil {
			c.metrics.RecordTransduction(ctx, t.Name)
			return Match{Tagger: t.Name, Field: t.Field, Paths: paths}, nil
		}
		if !errors.Is(err, fst.ErrNoMatch) {
			return Match{}, fmt.Errorf("normalize: tagger %s: %w", t.Name, err)
		}
		c.metrics.RecordTransductionFailure(ctx, t.Name)
		slog.Debug("tagger rejected span, trying next", "tagger", t.Name, "span", span)
	}
	return Match{}, fmt.Errorf("%w: no tagger accepts %q", fst.ErrNoMatch, span)
}

// fieldOf returns the tag field declared by g, if any.
func fieldOf(g grammar.Grammar) string {
	if f, ok := g.(interface{ Field() string }); ok {
		return f.Field()
	}
	return DefaultField
}

// inputCaseOf returns the input case declared by g, defaulting to cased.
func inputCaseOf(g grammar.Grammar) lexicon.InputCase {
	if ic, ok := g.(interface{ InputCase() lexicon.InputCase }); ok {
		return ic.InputCase()
	}
	return lexicon.Cased
}

// BuildChain builds every grammar through cache and chains them in the given
// order. Any build error aborts; no partial chain is returned.
func BuildChain(ctx context.Context, cache *Cache, m *observe.Metrics, grammars ...grammar.Grammar) (*Chain, error) {
	if len(grammars) == 0 {
		return nil, fmt.Errorf("%w: normalize: no grammars configured", lexicon.ErrConfig)
	}
	var chain *Chain
	for _, g := range grammars {
		f, err := cache.Get(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("normalize: build %s: %w", g.Name(), err)
		}
		t := Tagger{Name: g.Name(), Field: fieldOf(g), InputCase: inputCaseOf(g), Fragment: f}
		if chain == nil {
			chain = NewChain(t, m)
		} else {
			chain.AddFallback(t)
		}
	}
	return chain, nil
}
