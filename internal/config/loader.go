package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks that cfg contains a coherent set of values.
// It returns an error wrapping [lexicon.ErrConfig] and listing all validation
// failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Grammar
	g := cfg.Grammar
	if g.InputCase != "" && !g.InputCase.IsValid() {
		errs = append(errs, fmt.Errorf("grammar.input_case %q is invalid; valid values: lower_cased, cased", g.InputCase))
	}
	if g.MaxSpan < 0 {
		errs = append(errs, fmt.Errorf("grammar.max_span %d must not be negative", g.MaxSpan))
	}
	if g.CandidateLimit < 0 {
		errs = append(errs, fmt.Errorf("grammar.candidate_limit %d must not be negative", g.CandidateLimit))
	}
	seen := make(map[string]int, len(g.Chain))
	for i, name := range g.Chain {
		prefix := fmt.Sprintf("grammar.chain[%d]", i)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of grammar.chain[%d]", prefix, name, prev))
		}
		seen[name] = i
	}

	// Telemetry
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %v must be within [0, 1]", r))
	}

	// Availability warnings
	if g.DataDir != "" {
		if st, err := os.Stat(g.DataDir); err != nil || !st.IsDir() {
			slog.Warn("grammar.data_dir does not exist or is not a directory; grammar builds will fail", "data_dir", g.DataDir)
		}
	}
	if g.OverrideFile != "" && g.IsDeterministic() {
		slog.Warn("grammar.override_file replaces the whole whitelist in deterministic mode", "override_file", g.OverrideFile)
	}
	if g.CandidateLimit > 0 && g.IsDeterministic() {
		slog.Warn("grammar.candidate_limit has no effect in deterministic mode")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n%w", lexicon.ErrConfig, errors.Join(errs...))
}
