package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

// claudeAdapter handles Claude Code's hook JSON shape: a flat object
// keyed by hook_event_name, with event-specific fields alongside
// (prompt, source, file_path, command) and tool_input/tool_name for
// tool-use events.
//
// Input:
//
//	{ "hook_event_name": "PreToolUse", "session_id": "...", "tool_name": "...",
//	  "tool_input": {...}, "cwd": "...", "prompt": "...", "source": "..." }
//
// Output:
//
//	{ "continue": true|false, "reason": "..."?, "context": "..."?, "decision": "allow"|"block"? }
type claudeAdapter struct{}

func (claudeAdapter) Name() string { return "claude" }

// claudeHookEventNames maps Claude Code's hook_event_name values onto
// the internal Kind taxonomy.
var claudeHookEventNames = map[string]event.Kind{
	"PreToolUse":        event.PreToolUse,
	"PostToolUse":       event.PostToolUse,
	"SessionStart":      event.SessionStart,
	"SessionEnd":        event.SessionEnd,
	"UserPromptSubmit":  event.UserPromptSubmit,
	"PermissionRequest": event.PermissionRequest,
	"PreCompact":        event.PreCompact,
}

type claudeEvent struct {
	HookEventName string         `json:"hook_event_name"`
	SessionID     string         `json:"session_id"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	Cwd           string         `json:"cwd"`
	Prompt        string         `json:"prompt"`
	Source        string         `json:"source"`
	FilePath      string         `json:"file_path"`
	Command       string         `json:"command"`
}

func (claudeAdapter) Decode(raw []byte) (event.Event, bool, error) {
	var ce claudeEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		return event.Event{}, false, fmt.Errorf("%w: %v", event.ErrMalformed, err)
	}
	if ce.HookEventName == "" {
		return event.Event{}, false, fmt.Errorf("%w: missing hook_event_name", event.ErrMalformed)
	}

	kind, known := claudeHookEventNames[ce.HookEventName]
	if !known {
		// Unrecognized hook event name degrades to a benign allow
		// rather than an error.
		return event.Event{}, false, nil
	}

	input := ce.ToolInput
	if input == nil {
		input = map[string]any{}
	}
	if ce.FilePath != "" {
		if _, ok := input["file_path"]; !ok {
			input["file_path"] = ce.FilePath
		}
	}
	if ce.Command != "" {
		if _, ok := input["command"]; !ok {
			input["command"] = ce.Command
		}
	}
	if ce.Source != "" {
		if _, ok := input["source"]; !ok {
			input["source"] = ce.Source
		}
	}

	return event.Event{
		Kind:      kind,
		SessionID: ce.SessionID,
		Dir:       event.Canonicalize(ce.Cwd),
		ToolName:  ce.ToolName,
		ToolInput: input,
		Prompt:    ce.Prompt,
		Source:    ce.Source,
		Timestamp: time.Now().UTC(),
	}, true, nil
}

type claudeResponse struct {
	Continue bool   `json:"continue"`
	Reason   string `json:"reason,omitempty"`
	Context  string `json:"context,omitempty"`
	Decision string `json:"decision,omitempty"`
}

func (claudeAdapter) Encode(r response.Response) ([]byte, error) {
	out := claudeResponse{
		Continue: r.Continue,
		Reason:   r.Reason,
		Context:  r.Context,
	}
	if !r.Continue {
		out.Decision = "block"
	}
	return json.Marshal(out)
}
