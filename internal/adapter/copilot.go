package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

// copilotAdapter handles GitHub Copilot CLI's hook shape, which uses
// permissionDecision ∈ {allow, deny, ask} rather than a flat continue
// bool.
type copilotAdapter struct{}

func (copilotAdapter) Name() string { return "copilot" }

type copilotEvent struct {
	EventType string         `json:"eventType"`
	SessionID string         `json:"sessionId"`
	ToolCall  copilotToolCall `json:"tool_call"`
	Cwd       string         `json:"cwd"`
	Prompt    string         `json:"prompt"`
}

type copilotToolCall struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

var copilotEventNames = map[string]event.Kind{
	"pre_tool_use":  event.PreToolUse,
	"post_tool_use": event.PostToolUse,
	"session_start": event.SessionStart,
	"session_end":   event.SessionEnd,
	"user_prompt":   event.UserPromptSubmit,
}

func (copilotAdapter) Decode(raw []byte) (event.Event, bool, error) {
	var ce copilotEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		return event.Event{}, false, fmt.Errorf("%w: %v", event.ErrMalformed, err)
	}
	if ce.EventType == "" {
		return event.Event{}, false, fmt.Errorf("%w: missing eventType", event.ErrMalformed)
	}

	kind, known := copilotEventNames[ce.EventType]
	if !known {
		return event.Event{}, false, nil
	}

	input := ce.ToolCall.Input
	if input == nil {
		input = map[string]any{}
	}

	return event.Event{
		Kind:      kind,
		SessionID: ce.SessionID,
		Dir:       event.Canonicalize(ce.Cwd),
		ToolName:  ce.ToolCall.Name,
		ToolInput: input,
		Prompt:    ce.Prompt,
		Timestamp: time.Now().UTC(),
	}, true, nil
}

type copilotResponse struct {
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

func (copilotAdapter) Encode(r response.Response) ([]byte, error) {
	out := copilotResponse{PermissionDecisionReason: r.Reason}
	if r.Continue {
		out.PermissionDecision = "allow"
	} else {
		out.PermissionDecision = "deny"
	}
	return json.Marshal(out)
}
