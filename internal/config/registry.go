package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// ErrGrammarNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested grammar name.
var ErrGrammarNotRegistered = errors.New("config: grammar not registered")

// GrammarFactory constructs a grammar from the grammar section of the
// configuration. It must not build the grammar; building happens later
// through the normalize cache.
type GrammarFactory func(GrammarConfig) (grammar.Grammar, error)

// Registry maps grammar names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]GrammarFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]GrammarFactory)}
}

// Register registers a grammar factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory GrammarFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered grammar names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Create instantiates the grammar registered under name.
// Returns an error wrapping [ErrGrammarNotRegistered] and [lexicon.ErrConfig]
// if no factory has been registered for that name.
func (r *Registry) Create(name string, cfg GrammarConfig) (grammar.Grammar, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q (registered: %v)", lexicon.ErrConfig, ErrGrammarNotRegistered, name, r.Names())
	}
	g, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create grammar %q: %w", name, err)
	}
	return g, nil
}

// CreateChain checks the required capabilities and instantiates every grammar
// of cfg.Chain in order. All failures are reported together.
func (r *Registry) CreateChain(cfg GrammarConfig) ([]grammar.Grammar, error) {
	var errs []error
	if err := grammar.CheckCapabilities(cfg.RequiredCapabilities()...); err != nil {
		errs = append(errs, err)
	}
	out := make([]grammar.Grammar, 0, len(cfg.Chain))
	for _, name := range cfg.Chain {
		g, err := r.Create(name, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, g)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
