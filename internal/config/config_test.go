package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_NonexistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load with nonexistent file should not error: %v", err)
	}
	if len(cfg.Rules) != 0 {
		t.Errorf("expected empty default rule set, got %d rules", len(cfg.Rules))
	}
	if !cfg.Settings.IsFailOpen() {
		t.Error("default fail_open: expected true")
	}
	if cfg.Settings.EffectiveScriptTimeout() != 5 {
		t.Errorf("default script_timeout: expected 5, got %d", cfg.Settings.EffectiveScriptTimeout())
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.yaml")
	data := `
version: "1"
rules:
  - name: block-force-push
    matchers:
      tools: [Bash]
      command_match: "git push.*--force"
    actions:
      block: true
settings:
  fail_open: true
  script_timeout: 10
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.Rules))
	}
	if cfg.Rules[0].Name != "block-force-push" {
		t.Errorf("rule name: got %q", cfg.Rules[0].Name)
	}
	if cfg.Settings.EffectiveScriptTimeout() != 10 {
		t.Errorf("script_timeout: expected 10, got %d", cfg.Settings.EffectiveScriptTimeout())
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.yaml")
	if err := os.WriteFile(path, []byte(`{{{invalid yaml`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_InvalidRegexFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.yaml")
	data := `
rules:
  - name: bad-rule
    matchers:
      command_match: "(unclosed"
    actions:
      block: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for invalid command_match regex")
	}
}

func TestLoad_DuplicateRuleNamesRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.yaml")
	data := `
rules:
  - name: dup
    actions: {block: true}
  - name: dup
    actions: {block: true}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for duplicate rule names")
	}
}

func TestResolvePrecedence(t *testing.T) {
	projectDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(projectDir, ".claude"), 0o755); err != nil {
		t.Fatal(err)
	}
	projectHooks := filepath.Join(projectDir, ".claude", "hooks.yaml")
	if err := os.WriteFile(projectHooks, []byte("version: \"1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := Resolve("", projectDir); got != projectHooks {
		t.Errorf("Resolve: got %q, want %q", got, projectHooks)
	}

	if got := Resolve("/explicit/path.yaml", projectDir); got != "/explicit/path.yaml" {
		t.Errorf("Resolve override: got %q", got)
	}
}

func TestCacheInvalidatesOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.yaml")
	write := func(rules string) {
		data := "rules:\n" + rules
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("  - name: r1\n    actions: {block: true}\n")

	c := NewCache()
	cfg1, err := c.Get(path, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(cfg1.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg1.Rules))
	}

	cfg2, err := c.Get(path, "")
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if cfg2 != cfg1 {
		t.Fatal("expected the same cached *Config on an unchanged file")
	}

	write("  - name: r1\n    actions: {block: true}\n  - name: r2\n    actions: {block: true}\n")
	// Force the mtime forward so filesystems with coarse mtime
	// resolution still observe a change within the test's lifetime.
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	cfg3, err := c.Get(path, "")
	if err != nil {
		t.Fatalf("Get (after change): %v", err)
	}
	if len(cfg3.Rules) != 2 {
		t.Fatalf("expected cache to reload after file change, got %d rules", len(cfg3.Rules))
	}
}
