package normalize

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/internal/observe"
	"github.com/MrWong99/textnorm/pkg/fst"
)

// Keyer is implemented by grammars whose build output depends on more than
// their name. Grammars without it are cached by [grammar.Grammar.Name].
type Keyer interface {
	Key() string
}

// Cache memoizes grammar builds for the lifetime of the process. Concurrent
// requests for the same key share one build; failed builds are not cached,
// so a later call retries.
//
// Cache is safe for concurrent use.
type Cache struct {
	metrics *observe.Metrics

	mu    sync.RWMutex
	built map[string]*fst.Fragment
	group singleflight.Group
}

// NewCache returns an empty cache recording build metrics to m. A nil m uses
// [observe.DefaultMetrics].
func NewCache(m *observe.Metrics) *Cache {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Cache{metrics: m, built: make(map[string]*fst.Fragment)}
}

func cacheKey(g grammar.Grammar) string {
	if k, ok := g.(Keyer); ok {
		return k.Key()
	}
	return g.Name()
}

// Get returns the built fragment for g, building it on first use.
func (c *Cache) Get(ctx context.Context, g grammar.Grammar) (*fst.Fragment, error) {
	key := cacheKey(g)

	c.mu.RLock()
	f, ok := c.built[key]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		f, ok := c.built[key]
		c.mu.RUnlock()
		if ok {
			return f, nil
		}
		return c.build(ctx, g, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		observe.Logger(ctx).Debug("grammar build shared", "grammar", g.Name())
	}
	return v.(*fst.Fragment), nil
}

func (c *Cache) build(ctx context.Context, g grammar.Grammar, key string) (*fst.Fragment, error) {
	ctx, span := observe.StartSpan(ctx, "grammar.Build", observe.KeyGrammar.String(g.Name()))
	start := time.Now()
	f, err := g.Build()
	elapsed := time.Since(start)

	states := 0
	if err == nil {
		states = f.NumStates()
		span.SetAttributes(
			observe.KeyStates.Int(f.NumStates()),
			observe.KeyArcs.Int(f.NumArcs()),
		)
	}
	c.metrics.RecordGrammarBuild(ctx, g.Name(), elapsed.Seconds(), states, err)
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Error("grammar build failed", "grammar", g.Name(), "err", err)
		return nil, err
	}

	c.mu.Lock()
	c.built[key] = f
	c.mu.Unlock()
	observe.Logger(ctx).Info("grammar built",
		"grammar", g.Name(),
		"states", f.NumStates(),
		"arcs", f.NumArcs(),
		"duration", elapsed,
	)
	return f, nil
}

// Len reports the number of cached fragments.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.built)
}
