// Package normalize runs text through a priority chain of built grammars.
//
// Input is split on whitespace. At every position the longest window of up to
// MaxSpan tokens that some grammar accepts is classified as one token; tokens
// no grammar accepts pass through unchanged. Verbalization strips the tag
// wrapper from the best candidate and restores spaces.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/internal/observe"
	"github.com/MrWong99/textnorm/pkg/fst"
)

// DefaultMaxSpan is the default number of whitespace tokens one grammar match
// may cover.
const DefaultMaxSpan = 4

// Token is one classified span of the input.
type Token struct {
	// Span is the surface text, tokens joined by single spaces.
	Span string `json:"span"`

	// Grammar names the tagger that accepted the span. Empty for
	// pass-through tokens.
	Grammar string `json:"grammar,omitempty"`

	// Field is the tag field of Candidates.
	Field string `json:"field"`

	// Candidates are the tagged outputs, best first. Deterministic grammars
	// produce exactly one.
	Candidates []string `json:"candidates"`
}

// Matched reports whether a grammar accepted the token.
func (t Token) Matched() bool { return t.Grammar != "" }

// Best returns the verbalized best candidate.
func (t Token) Best() string {
	if len(t.Candidates) == 0 {
		return t.Span
	}
	return grammar.Untag(t.Candidates[0], t.Field)
}

// Verbalized returns every candidate with the tag wrapper removed.
func (t Token) Verbalized() []string {
	out := make([]string, len(t.Candidates))
	for i, c := range t.Candidates {
		out[i] = grammar.Untag(c, t.Field)
	}
	return out
}

// Option is a functional option for configuring a [Normalizer].
type Option func(*Normalizer)

// WithMaxSpan sets the longest window, in tokens, tried per position.
// Values below 1 are ignored.
func WithMaxSpan(n int) Option {
	return func(nz *Normalizer) {
		if n >= 1 {
			nz.maxSpan = n
		}
	}
}

// WithCandidateLimit caps the candidates kept per token for
// non-deterministic grammars. Zero keeps all.
func WithCandidateLimit(n int) Option {
	return func(nz *Normalizer) {
		nz.limit = max(n, 0)
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(nz *Normalizer) {
		nz.metrics = m
	}
}

// Normalizer classifies and verbalizes text with a [Chain]. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	chain   *Chain
	maxSpan int
	limit   int
	metrics *observe.Metrics
}

// New creates a Normalizer over chain.
func New(chain *Chain, opts ...Option) *Normalizer {
	nz := &Normalizer{
		chain:   chain,
		maxSpan: DefaultMaxSpan,
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(nz)
	}
	return nz
}

// Classify splits text into tokens and tags each with the first grammar in
// the chain that accepts it.
func (nz *Normalizer) Classify(ctx context.Context, text string) (tokens []Token, err error) {
	ctx, span := observe.StartSpan(ctx, "normalize.Classify")
	start := time.Now()
	defer func() {
		nz.metrics.RecordNormalize(ctx, "classify", time.Since(start).Seconds())
		span.SetAttributes(observe.KeyTokens.Int(len(tokens)))
		observe.EndSpan(span, err)
	}()
	return nz.classify(ctx, text)
}

func (nz *Normalizer) classify(ctx context.Context, text string) ([]Token, error) {
	words := strings.Fields(text)
	tokens := make([]Token, 0, len(words))

	for i := 0; i < len(words); {
		matched := false
		for w := min(nz.maxSpan, len(words)-i); w >= 1; w-- {
			window := strings.Join(words[i:i+w], " ")
			m, err := nz.chain.Classify(ctx, window, nz.limit)
			if errors.Is(err, fst.ErrNoMatch) {
				continue
			}
			if err != nil {
				return nil, err
			}
			cands := make([]string, len(m.Paths))
			for k, p := range m.Paths {
				cands[k] = p.Output
			}
			tokens = append(tokens, Token{Span: window, Grammar: m.Tagger, Field: m.Field, Candidates: cands})
			i += w
			matched = true
			break
		}
		if !matched {
			tokens = append(tokens, passThrough(words[i]))
			i++
		}
	}
	return tokens, nil
}

func passThrough(word string) Token {
	return Token{
		Span:       word,
		Field:      DefaultField,
		Candidates: []string{fmt.Sprintf("%s: \"%s\"", DefaultField, word)},
	}
}

// Normalize rewrites text, replacing every accepted span with its best
// candidate. Whitespace between tokens is collapsed to single spaces.
func (nz *Normalizer) Normalize(ctx context.Context, text string) (out string, err error) {
	ctx, span := observe.StartSpan(ctx, "normalize.Normalize")
	start := time.Now()
	defer func() {
		nz.metrics.RecordNormalize(ctx, "normalize", time.Since(start).Seconds())
		observe.EndSpan(span, err)
	}()

	tokens, err := nz.classify(ctx, text)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Best()
	}
	return strings.Join(parts, " "), nil
}

// NormalizeList normalizes lines concurrently with at most workers goroutines
// (GOMAXPROCS when workers < 1). The output preserves input order. The first
// error cancels the remaining work.
func (nz *Normalizer) NormalizeList(ctx context.Context, lines []string, workers int) (_ []string, err error) {
	ctx, span := observe.StartSpan(ctx, "normalize.NormalizeList", observe.KeyLines.Int(len(lines)))
	defer func() { observe.EndSpan(span, err) }()

	out := make([]string, len(lines))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(workers))
	for i, line := range lines {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := nz.Normalize(ctx, line)
			if err != nil {
				return fmt.Errorf("normalize: line %d: %w", i+1, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// workerLimit bounds the NormalizeList pool.
func workerLimit(workers int) int {
	if workers > 0 {
		return workers
	}
	return runtime.GOMAXPROCS(0)
}
