// Package config defines the screening configuration and its defaults.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load layers a YAML file and SIEVE_ environment variables over them.
//   - Validate rejects configurations that cannot run before any dispatch.
package config

import (
	"strings"
	"time"
)

// Slot names.
const (
	SlotA = "A"
	SlotB = "B"
)

// Checkpoint backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Template placeholders in provider command tokens.
const (
	PromptToken = "{prompt}"
	ModelToken  = "{model}"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" yaml:"log_format"`

	// WorkerCount bounds how many items are judged at once.
	WorkerCount int `koanf:"worker_count" yaml:"worker_count"`

	// TimeoutSeconds is the per provider call deadline.
	TimeoutSeconds int `koanf:"timeout_seconds" yaml:"timeout_seconds"`

	// SaveEvery is the number of completions between checkpoint writes.
	SaveEvery int `koanf:"save_every" yaml:"save_every"`

	// ProgressEvery is the number of completions between progress logs.
	ProgressEvery int `koanf:"progress_every" yaml:"progress_every"`

	// LaunchRate caps provider launches per second. Zero disables the limit.
	LaunchRate float64 `koanf:"launch_rate" yaml:"launch_rate"`

	// StatusAddr enables the status HTTP server when non-empty, e.g. ":9090".
	StatusAddr string `koanf:"status_addr" yaml:"status_addr"`

	Checkpoint Checkpoint `koanf:"checkpoint" yaml:"checkpoint"`

	// SingleSlot is the slot used for T2 items.
	SingleSlot string `koanf:"single_slot" yaml:"single_slot"`

	// Slots maps slot names to provider names.
	Slots Slots `koanf:"slots" yaml:"slots"`

	// PromptFile optionally overrides the built-in prompt template.
	PromptFile string `koanf:"prompt_file" yaml:"prompt_file"`

	Providers map[string]Provider `koanf:"providers" yaml:"providers"`

	// Terms override the classifier's built-in term lists when non-empty.
	Terms Terms `koanf:"terms" yaml:"terms"`
}

// Checkpoint selects where results are persisted.
type Checkpoint struct {
	Backend string `koanf:"backend" yaml:"backend"`
	Path    string `koanf:"path" yaml:"path"`
}

// Slots binds the two judging slots to providers.
type Slots struct {
	A string `koanf:"a" yaml:"a"`
	B string `koanf:"b" yaml:"b"`
}

// Provider describes how to launch one judge CLI.
type Provider struct {
	// Command is the argv template. Tokens may contain {prompt} and {model}.
	Command []string `koanf:"command" yaml:"command"`

	// Model is used by the main screening pass.
	Model string `koanf:"model" yaml:"model"`

	// FallbackModels is the ordered ladder walked by retry passes.
	FallbackModels []string `koanf:"fallback_models" yaml:"fallback_models"`

	// QuotaMarkers are case-insensitive substrings that signal exhaustion.
	QuotaMarkers []string `koanf:"quota_markers" yaml:"quota_markers"`

	// Env holds extra KEY=VALUE entries added to the child environment.
	Env map[string]string `koanf:"env" yaml:"env,omitempty"`
}

// Terms are the classifier vocabularies.
type Terms struct {
	Domain  []string `koanf:"domain" yaml:"domain"`
	Context []string `koanf:"context" yaml:"context"`
	Outcome []string `koanf:"outcome" yaml:"outcome"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		WorkerCount:    8,
		TimeoutSeconds: 300,
		SaveEvery:      50,
		ProgressEvery:  100,
		Checkpoint: Checkpoint{
			Backend: BackendCSV,
			Path:    "screening_results.csv",
		},
		SingleSlot: SlotB,
		Slots:      Slots{A: "codex", B: "gemini"},
		Providers: map[string]Provider{
			"codex": {
				Command:        []string{"codex", "-m", ModelToken, "exec", PromptToken},
				Model:          "gpt-5.1-codex-mini",
				FallbackModels: []string{"gpt-5.1-codex-mini", "gpt-5.3-codex-spark"},
				QuotaMarkers:   []string{"usage limit"},
			},
			"gemini": {
				Command:        []string{"gemini", "-m", ModelToken, "-p", PromptToken},
				Model:          "gemini-2.5-pro",
				FallbackModels: []string{"gemini-2.5-flash"},
				QuotaMarkers:   []string{"quota exceeded", "resource_exhausted"},
			},
		},
	}
}

// Timeout returns the per call deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SlotProvider returns the provider name bound to slot.
func (c *Config) SlotProvider(slot string) string {
	switch strings.ToUpper(slot) {
	case SlotA:
		return c.Slots.A
	case SlotB:
		return c.Slots.B
	default:
		return ""
	}
}

// UsesModel reports whether the command template references {model}.
func (p Provider) UsesModel() bool {
	for _, tok := range p.Command {
		if strings.Contains(tok, ModelToken) {
			return true
		}
	}
	return false
}

// Ladder returns the fallback models in order. Without an explicit ladder
// the configured model is the only rung.
func (p Provider) Ladder() []string {
	if len(p.FallbackModels) > 0 {
		return append([]string(nil), p.FallbackModels...)
	}
	return []string{p.Model}
}
