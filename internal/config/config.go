// Package config resolves, loads, validates, and caches the policy file
// (hooks.yaml) that drives rule evaluation.
//
// Resolution precedence (first found wins, no merging):
//  1. an explicit command-line override path, when present.
//  2. <cwd>/.claude/hooks.yaml (project scope).
//  3. <user-home>/.claude/hooks.yaml (user scope).
//  4. a built-in empty default (every event allowed, no rules).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rulez-dev/rulez/internal/engine"
	"gopkg.in/yaml.v3"
)

// Config is the top-level hooks.yaml policy document.
type Config struct {
	Version  string        `yaml:"version"`
	Rules    []engine.Rule `yaml:"rules"`
	Settings Settings      `yaml:"settings"`
}

// Settings holds process-wide policy defaults.
type Settings struct {
	DebugLogs     bool   `yaml:"debug_logs"`
	LogLevel      string `yaml:"log_level"`
	FailOpen      *bool  `yaml:"fail_open"` // nil means default true
	ScriptTimeout int    `yaml:"script_timeout"`
}

// IsFailOpen reports the effective fail_open setting (default true).
func (s Settings) IsFailOpen() bool {
	return s.FailOpen == nil || *s.FailOpen
}

// EffectiveScriptTimeout returns the configured script_timeout, or the
// built-in default of 5 seconds when unset.
func (s Settings) EffectiveScriptTimeout() int {
	if s.ScriptTimeout <= 0 {
		return 5
	}
	return s.ScriptTimeout
}

// empty returns the built-in default configuration: no rules, default
// settings. Every event produces continue:true under this config
// (boundary behavior: empty configuration allows everything).
func empty() *Config {
	return &Config{
		Version:  "1",
		Rules:    nil,
		Settings: Settings{},
	}
}

// Resolve applies the resolution precedence and returns the path that
// would be loaded, without reading it. override, when non-empty, always
// wins. cwd is the event's canonical working directory.
func Resolve(override, cwd string) string {
	if override != "" {
		return override
	}
	if cwd != "" {
		if p := filepath.Join(cwd, ".claude", "hooks.yaml"); fileExists(p) {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if p := filepath.Join(home, ".claude", "hooks.yaml"); fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads, parses, and validates the policy file at path. An empty
// path (no file found at any precedence level) returns the built-in
// empty default, not an error.
//
// Validation compiles every rule's matchers, regexes, and expressions
// through engine.Rule.Compile — the same function the hot path would
// need were the rule accepted, so there is no gap between what the
// loader accepts and what evaluation can run.
func Load(path string) (*Config, error) {
	if path == "" {
		return empty(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := empty()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// WriteDefault writes a commented, empty hooks.yaml scaffold to path.
func WriteDefault(path string) error {
	cfg := empty()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# RuleZ policy file.
#
# version: schema version string.
# rules:
#   - name: unique rule name
#     description: human-readable summary
#     event_types: [PreToolUse]   # default if omitted
#     matchers: {...}             # all present predicates must hold
#     actions: {...}              # see README for precedence
#     metadata: {priority: 0, mode: enforce, enabled: true}
# settings:
#   fail_open: true
#   script_timeout: 5

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// validate checks structural invariants and compiles every rule.
func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Rules))
	for i := range cfg.Rules {
		r := &cfg.Rules[i]
		if r.Name == "" {
			return fmt.Errorf("rule at index %d has no name", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true

		if err := r.Compile(); err != nil {
			return err
		}
	}

	if cfg.Settings.ScriptTimeout < 0 {
		return fmt.Errorf("settings.script_timeout must be non-negative")
	}

	return nil
}
