// Package app wires the textnorm subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds every configured grammar
// and the normalizer on top of them, Run serves the HTTP API, and Shutdown
// tears everything down in order.
//
// For testing, inject a registry, metrics or listener via functional options
// (WithRegistry, WithMetrics, etc.). When an option is not provided, New uses
// the built-in grammars and the global meter provider.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/textnorm/internal/config"
	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/internal/grammar/whitelist"
	"github.com/MrWong99/textnorm/internal/health"
	"github.com/MrWong99/textnorm/internal/normalize"
	"github.com/MrWong99/textnorm/internal/observe"
	"github.com/MrWong99/textnorm/internal/server"
)

// serverShutdownTimeout bounds the graceful HTTP shutdown at the end of Run.
const serverShutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics

	// Subsystems, initialised in New.
	cache      *normalize.Cache
	chain      *normalize.Chain
	normalizer *normalize.Normalizer
	ready      health.Flag
	api        *server.Server

	metricsHandler http.Handler
	listener       net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry replaces the built-in grammar registry.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics records to m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener makes Run serve on l instead of listening on
// cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithCloser registers fn to run during Shutdown, after the built-in closers.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// DefaultRegistry returns a registry holding every grammar shipped with
// textnorm.
func DefaultRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.Register(whitelist.Name, func(g config.GrammarConfig) (grammar.Grammar, error) {
		return whitelist.New(g.DataDir, g.InputCase,
			whitelist.WithDeterministic(g.IsDeterministic()),
			whitelist.WithOverride(g.OverrideFile),
			whitelist.WithSurfaceVariants(g.UseSurfaceVariants()),
		)
	})
	return reg
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by building every grammar of cfg.Grammar.Chain and the
// normalizer that drives them. Any build error aborts; no partially built
// App is returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. HTTP surface ──────────────────────────────────────────────────
	// API routes answer 503 and the grammars check fails until step 4.
	a.initServer()

	// ── 2. Grammars ──────────────────────────────────────────────────────
	grammars, err := a.registry.CreateChain(cfg.Grammar)
	if err != nil {
		return nil, fmt.Errorf("app: create grammars: %w", err)
	}

	// ── 3. Chain ─────────────────────────────────────────────────────────
	a.cache = normalize.NewCache(a.metrics)
	start := time.Now()
	a.chain, err = normalize.BuildChain(ctx, a.cache, a.metrics, grammars...)
	if err != nil {
		return nil, fmt.Errorf("app: build grammars: %w", err)
	}
	slog.Info("grammars built", "chain", a.chain.Taggers(), "elapsed", time.Since(start))

	// ── 4. Normalizer ────────────────────────────────────────────────────
	a.normalizer = normalize.New(a.chain,
		normalize.WithMaxSpan(cfg.Grammar.MaxSpan),
		normalize.WithCandidateLimit(cfg.Grammar.CandidateLimit),
		normalize.WithMetrics(a.metrics),
	)
	a.api.SetEngine(a.normalizer)
	a.ready.Mark(nil)

	return a, nil
}

// initServer creates the HTTP API. Readiness tracks the grammar build and,
// when the whitelist is chained, the presence of its lexicon files.
func (a *App) initServer() {
	checks := []health.Checker{a.ready.Checker("grammars")}
	if g := a.cfg.Grammar; slices.Contains(g.Chain, whitelist.Name) {
		files := []string{filepath.Join(g.DataDir, whitelist.BaseFile)}
		if g.OverrideFile != "" {
			files = append(files, g.OverrideFile)
		}
		checks = append(checks, health.FilesChecker("lexicons", files...))
	}
	h := health.New(checks...)
	var opts []server.Option
	if a.metricsHandler != nil {
		opts = append(opts, server.WithMetricsHandler(a.metricsHandler))
	}
	a.api = server.New(h, a.metrics, opts...)
}

// Normalizer returns the normalizer built by New.
func (a *App) Normalizer() *normalize.Normalizer {
	return a.normalizer
}

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. When ctx is done, Run drains in-flight requests and returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.Info("app running", "addr", ln.Addr().String(), "chain", a.chain.Taggers())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	<-errCh
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown runs the registered closers in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
