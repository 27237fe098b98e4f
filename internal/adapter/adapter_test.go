package adapter

import (
	"encoding/json"
	"testing"

	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"claude", "gemini", "copilot", "opencode"} {
		a, ok := ByName(name)
		if !ok {
			t.Fatalf("ByName(%q) not found", name)
		}
		if a.Name() != name {
			t.Fatalf("ByName(%q).Name() = %q", name, a.Name())
		}
	}
	if _, ok := ByName("nonexistent"); ok {
		t.Fatal("ByName(nonexistent) should not be found")
	}
}

func TestSniff(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"hook_event_name":"PreToolUse"}`, "claude"},
		{`{"toolCall":"Bash"}`, "gemini"},
		{`{"permissionDecision":"allow"}`, "copilot"},
		{`{"event":"tool.execute.before"}`, "opencode"},
	}
	for _, c := range cases {
		a, err := Sniff([]byte(c.raw))
		if err != nil {
			t.Fatalf("Sniff(%s): %v", c.raw, err)
		}
		if a.Name() != c.want {
			t.Errorf("Sniff(%s) = %s, want %s", c.raw, a.Name(), c.want)
		}
	}
}

func TestSniffMalformed(t *testing.T) {
	if _, err := Sniff([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := Sniff([]byte(`{"unrelated":true}`)); err == nil {
		t.Fatal("expected error for unrecognizable payload")
	}
}

func TestClaudeDecodeEncode(t *testing.T) {
	a := claudeAdapter{}
	raw := []byte(`{"hook_event_name":"PreToolUse","session_id":"s1","tool_name":"Bash","tool_input":{"command":"ls"},"cwd":"/tmp"}`)
	ev, ok, err := a.Decode(raw)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if ev.Kind != event.PreToolUse || ev.ToolName != "Bash" || ev.Command() != "ls" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	out, err := a.Encode(response.Deny("bad command"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal encoded: %v", err)
	}
	if decoded["continue"] != false || decoded["decision"] != "block" {
		t.Fatalf("unexpected encoded response: %v", decoded)
	}
}

func TestClaudeDecodeUnknownEventDegradesGracefully(t *testing.T) {
	a := claudeAdapter{}
	_, ok, err := a.Decode([]byte(`{"hook_event_name":"SomeFutureHook"}`))
	if err != nil {
		t.Fatalf("expected nil error for unknown event, got %v", err)
	}
	if ok {
		t.Fatal("expected recognized=false for unknown event")
	}
}

func TestCopilotEncode(t *testing.T) {
	a := copilotAdapter{}
	out, err := a.Encode(response.Allow(""))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded copilotResponse
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.PermissionDecision != "allow" {
		t.Fatalf("got %q, want allow", decoded.PermissionDecision)
	}
}

func TestGeminiEncodeCarriesSystemMessageAndToolInputOverride(t *testing.T) {
	a := geminiAdapter{}
	resp := response.Allow("some context")
	resp.SystemMessage = "heads up"
	resp.ToolInputOverride = map[string]any{"command": "echo safe"}

	out, err := a.Encode(resp)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded geminiResponse
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.SystemMessage != "heads up" {
		t.Errorf("systemMessage: got %q", decoded.SystemMessage)
	}
	if decoded.ToolInput["command"] != "echo safe" {
		t.Errorf("tool_input: got %v", decoded.ToolInput)
	}
}

func TestOpenCodeDecode(t *testing.T) {
	a := openCodeAdapter{}
	raw := []byte(`{"event":"tool.execute.before","sessionID":"s2","tool":"bash","args":{"command":"pwd"},"directory":"/tmp"}`)
	ev, ok, err := a.Decode(raw)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if ev.Kind != event.PreToolUse || ev.Command() != "pwd" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
