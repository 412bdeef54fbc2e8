// Package config provides the configuration schema, loader, and grammar
// registry for textnorm.
package config

import (
	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultListenAddr = ":8080"
	DefaultDataDir    = "data/en"
	DefaultMaxSpan    = 4
)

// Config is the root configuration structure for textnorm.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Grammar   GrammarConfig   `yaml:"grammar"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`
}

// GrammarConfig selects and parameterises the grammars of the pipeline.
type GrammarConfig struct {
	// Chain lists grammar names in priority order. Each must be registered
	// in the [Registry]. Default: [whitelist].
	Chain []string `yaml:"chain"`

	// DataDir is the directory holding the lexicon files.
	DataDir string `yaml:"data_dir"`

	// InputCase is lower_cased or cased.
	InputCase lexicon.InputCase `yaml:"input_case"`

	// Deterministic selects single-output mode. Default: true.
	Deterministic *bool `yaml:"deterministic"`

	// OverrideFile is an optional caller-supplied lexicon.
	OverrideFile string `yaml:"override_file"`

	// SurfaceVariants toggles derived casing/period variants. Default: true.
	SurfaceVariants *bool `yaml:"surface_variants"`

	// MaxSpan is the longest token window tried per match.
	MaxSpan int `yaml:"max_span"`

	// CandidateLimit caps candidates per token in non-deterministic mode.
	// Zero keeps all.
	CandidateLimit int `yaml:"candidate_limit"`

	// Capabilities the deployment depends on; startup fails when one is not
	// available.
	Capabilities []grammar.Capability `yaml:"capabilities"`
}

// IsDeterministic reports the effective deterministic setting.
func (g GrammarConfig) IsDeterministic() bool {
	return g.Deterministic == nil || *g.Deterministic
}

// UseSurfaceVariants reports the effective surface_variants setting.
func (g GrammarConfig) UseSurfaceVariants() bool {
	return g.SurfaceVariants == nil || *g.SurfaceVariants
}

// RequiredCapabilities returns the configured capabilities plus those implied
// by the other settings.
func (g GrammarConfig) RequiredCapabilities() []grammar.Capability {
	caps := []grammar.Capability{grammar.CapTransducer}
	if !g.IsDeterministic() {
		caps = append(caps, grammar.CapNonDeterministic)
	}
	if g.OverrideFile != "" {
		caps = append(caps, grammar.CapOverride)
	}
	return append(caps, g.Capabilities...)
}

// TelemetryConfig controls OpenTelemetry setup.
type TelemetryConfig struct {
	// Enabled installs the SDK providers and serves /metrics.
	Enabled bool `yaml:"enabled"`

	// ServiceName is reported as service.name. Default: "textnorm".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root traces sampled. Zero samples all.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// applyDefaults fills empty fields in place.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if len(cfg.Grammar.Chain) == 0 {
		cfg.Grammar.Chain = []string{"whitelist"}
	}
	if cfg.Grammar.DataDir == "" {
		cfg.Grammar.DataDir = DefaultDataDir
	}
	if cfg.Grammar.InputCase == "" {
		cfg.Grammar.InputCase = lexicon.Cased
	}
	if cfg.Grammar.MaxSpan == 0 {
		cfg.Grammar.MaxSpan = DefaultMaxSpan
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "textnorm"
	}
}
