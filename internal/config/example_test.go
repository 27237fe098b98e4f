package config

import "testing"

// TestExampleHooksLoads ensures the sample hooks.yaml shipped for new
// projects stays valid as the rule schema evolves.
func TestExampleHooksLoads(t *testing.T) {
	cfg, err := Load("testdata/example-hooks.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Rules) == 0 {
		t.Fatal("expected example config to declare rules")
	}

	var sawBlock, sawInject bool
	for _, r := range cfg.Rules {
		if r.Actions.Block {
			sawBlock = true
		}
		if r.Actions.InjectInline != "" {
			sawInject = true
		}
	}
	if !sawBlock || !sawInject {
		t.Fatal("expected example config to demonstrate both block and inject actions")
	}
}
