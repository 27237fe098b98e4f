package audit

import (
	"testing"

	"github.com/rulez-dev/rulez/internal/action"
	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

func TestAuditLog_LogAndTail(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ev := event.Event{Kind: event.PreToolUse, ToolName: "Bash", SessionID: "s1", ToolInput: map[string]any{"command": "rm -rf /"}}
	outcome := action.Outcome{
		Response: response.Deny("destructive command"),
		Traces:   []action.RuleTrace{{Name: "block-rm-rf", Mode: "enforce", Priority: 100, Outcome: "deny"}},
		ElapsedMs: 3,
	}

	a.Log(ev, outcome, 1)

	entries, err := a.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Decision != "deny" {
		t.Errorf("decision: got %q", e.Decision)
	}
	if e.Reason != "destructive command" {
		t.Errorf("reason: got %q", e.Reason)
	}
	if len(e.MatchedRules) != 1 || e.MatchedRules[0].Name != "block-rm-rf" {
		t.Errorf("matched_rules: got %+v", e.MatchedRules)
	}
	if e.Command != "rm -rf /" {
		t.Errorf("command: got %q", e.Command)
	}
}

func TestAuditLog_VerifyChainAcrossEntries(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	for i := 0; i < 3; i++ {
		ev := event.Event{Kind: event.PreToolUse, ToolName: "Read"}
		a.Log(ev, action.Outcome{Response: response.Allow("")}, 0)
	}

	result, err := a.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid chain, got broken at %d", result.BrokenAt)
	}
	if result.EntriesChecked != 3 {
		t.Errorf("entries checked: got %d", result.EntriesChecked)
	}
}

func TestAuditLog_QueryFiltersByDecision(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	a.Log(event.Event{Kind: event.PreToolUse, ToolName: "Read"}, action.Outcome{Response: response.Allow("")}, 0)
	a.Log(event.Event{Kind: event.PreToolUse, ToolName: "Bash"}, action.Outcome{Response: response.Deny("no")}, 1)

	entries, err := a.Query(QueryParams{Decision: "deny"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 deny entry, got %d", len(entries))
	}
	if entries[0].Tool != "Bash" {
		t.Errorf("tool: got %q", entries[0].Tool)
	}
}
