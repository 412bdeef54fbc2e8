// Command textnorm normalizes text with the configured grammar chain.
//
// Usage:
//
//	textnorm normalize [-config cfg.yaml] [-input in.txt] [-output out.txt] [-workers N]
//	textnorm serve     [-config cfg.yaml]
//	textnorm lint      [-config cfg.yaml] [-threshold 0.92] [-near=false]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/MrWong99/textnorm/internal/app"
	"github.com/MrWong99/textnorm/internal/config"
	"github.com/MrWong99/textnorm/internal/grammar/whitelist"
	"github.com/MrWong99/textnorm/internal/lint"
	"github.com/MrWong99/textnorm/internal/observe"
	"github.com/MrWong99/textnorm/pkg/lexicon"
)

const usage = `usage: textnorm <command> [flags]

commands:
  normalize  normalize lines from -input (default stdin) to -output (default stdout)
  serve      serve the HTTP normalization API
  lint       check the configured lexicons for suspicious rows
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	switch args[0] {
	case "normalize":
		return runNormalize(args[1:])
	case "serve":
		return runServe(args[1:])
	case "lint":
		return runLint(args[1:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "textnorm: unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

// ── normalize ─────────────────────────────────────────────────────────────────

func runNormalize(args []string) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	inputPath := fs.String("input", "", "input file, one sentence per line (default stdin)")
	outputPath := fs.String("output", "", "output file (default stdout)")
	workers := fs.Int("workers", runtime.GOMAXPROCS(0), "number of lines normalized in parallel")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to build grammars", "err", err)
		return 1
	}

	lines, err := readLines(*inputPath)
	if err != nil {
		slog.Error("failed to read input", "err", err)
		return 1
	}

	start := time.Now()
	out, err := application.Normalizer().NormalizeList(ctx, lines, *workers)
	if err != nil {
		slog.Error("normalization failed", "err", err)
		return 1
	}
	if err := writeLines(*outputPath, out); err != nil {
		slog.Error("failed to write output", "err", err)
		return 1
	}
	slog.Info("normalized", "lines", len(lines), "elapsed", time.Since(start))
	return 0
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func writeLines(path string, lines []string) (err error) {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := bw.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ── serve ─────────────────────────────────────────────────────────────────────

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	var opts []app.Option
	if cfg.Telemetry.Enabled {
		tel, err := observe.Setup(ctx, observe.ProviderConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		tel.Install()
		metrics, err := observe.NewMetrics(tel.MeterProvider)
		if err != nil {
			slog.Error("failed to create metrics", "err", err)
			return 1
		}
		opts = append(opts,
			app.WithMetrics(metrics),
			app.WithMetricsHandler(tel.Handler()),
			app.WithCloser(func() error {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return tel.Shutdown(sctx)
			}),
		)
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func printStartupSummary(cfg *config.Config) {
	g := cfg.Grammar
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        textnorm: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Chain           : %-19v ║\n", g.Chain)
	fmt.Printf("║  Data dir        : %-19s ║\n", g.DataDir)
	fmt.Printf("║  Input case      : %-19s ║\n", g.InputCase)
	fmt.Printf("║  Deterministic   : %-19t ║\n", g.IsDeterministic())
	if g.OverrideFile != "" {
		fmt.Printf("║  Override        : %-19s ║\n", g.OverrideFile)
	}
	fmt.Printf("║  Max span        : %-19d ║\n", g.MaxSpan)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Printf("║  Telemetry       : %-19t ║\n", cfg.Telemetry.Enabled)
	fmt.Println("╚═══════════════════════════════════════╝")
}

// ── lint ──────────────────────────────────────────────────────────────────────

func runLint(args []string) int {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	threshold := fs.Float64("threshold", 0.92, "minimum Jaro-Winkler similarity for near-duplicates")
	near := fs.Bool("near", true, "report near-duplicate surfaces")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	files := []string{
		filepath.Join(cfg.Grammar.DataDir, whitelist.BaseFile),
		filepath.Join(cfg.Grammar.DataDir, whitelist.AlternativesFile),
	}
	if cfg.Grammar.OverrideFile != "" {
		files = append(files, cfg.Grammar.OverrideFile)
	}

	total := 0
	for _, path := range files {
		entries, err := lexicon.Load(path, cfg.Grammar.InputCase)
		if err != nil {
			slog.Error("failed to load lexicon", "path", path, "err", err)
			return 1
		}
		findings := lint.Lint(entries, lint.WithThreshold(*threshold), lint.WithNearDuplicates(*near))
		for _, f := range findings {
			fmt.Printf("%s: %s\n", path, f)
		}
		total += len(findings)
		slog.Debug("linted lexicon", "path", path, "rows", len(entries), "findings", len(findings))
	}
	if total > 0 {
		slog.Warn("lint found suspicious rows", "findings", total)
		return 1
	}
	return 0
}

// ── Shared helpers ────────────────────────────────────────────────────────────

// loadConfig loads path (or the defaults when path is empty) and installs the
// configured logger as the slog default.
func loadConfig(path string) (*config.Config, bool) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "textnorm: config file %q not found; copy configs/example.yaml to get started\n", path)
			} else {
				fmt.Fprintf(os.Stderr, "textnorm: %v\n", err)
			}
			return nil, false
		}
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))
	return cfg, true
}

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
