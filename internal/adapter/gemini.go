package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

// geminiAdapter handles Gemini CLI's hook taxonomy (e.g. "BeforeTool",
// "AfterTool", "BeforeAgent", "AfterAgent") and its richer response
// shape, which can additionally carry a systemMessage and a tool_input
// override.
type geminiAdapter struct{}

func (geminiAdapter) Name() string { return "gemini" }

var geminiEventNames = map[string]event.Kind{
	"BeforeTool":        event.PreToolUse,
	"AfterTool":         event.PostToolUse,
	"SessionStart":      event.SessionStart,
	"SessionEnd":        event.SessionEnd,
	"BeforeAgent":       event.BeforeAgent,
	"AfterAgent":        event.AfterAgent,
	"UserPromptSubmit":  event.UserPromptSubmit,
}

type geminiEvent struct {
	EventName string         `json:"eventName"`
	SessionID string         `json:"sessionId"`
	ToolCall  string         `json:"toolCall"`
	ToolName  string         `json:"toolName"`
	ToolInput map[string]any `json:"toolInput"`
	Cwd       string         `json:"cwd"`
	Prompt    string         `json:"prompt"`
	Source    string         `json:"source"`
}

func (geminiAdapter) Decode(raw []byte) (event.Event, bool, error) {
	var ge geminiEvent
	if err := json.Unmarshal(raw, &ge); err != nil {
		return event.Event{}, false, fmt.Errorf("%w: %v", event.ErrMalformed, err)
	}

	name := ge.EventName
	if name == "" {
		// Gemini's BeforeTool/AfterTool payloads sometimes carry the
		// event name as the literal key of a nested object rather than
		// a value; toolCall presence implies BeforeTool in that case.
		if ge.ToolCall != "" {
			name = "BeforeTool"
		}
	}
	if name == "" {
		return event.Event{}, false, fmt.Errorf("%w: missing eventName", event.ErrMalformed)
	}

	kind, known := geminiEventNames[name]
	if !known {
		return event.Event{}, false, nil
	}

	toolName := ge.ToolName
	if toolName == "" {
		toolName = ge.ToolCall
	}

	input := ge.ToolInput
	if input == nil {
		input = map[string]any{}
	}
	if ge.Source != "" {
		if _, ok := input["source"]; !ok {
			input["source"] = ge.Source
		}
	}

	return event.Event{
		Kind:      kind,
		SessionID: ge.SessionID,
		Dir:       event.Canonicalize(ge.Cwd),
		ToolName:  toolName,
		ToolInput: input,
		Prompt:    ge.Prompt,
		Source:    ge.Source,
		Timestamp: time.Now().UTC(),
	}, true, nil
}

type geminiResponse struct {
	Continue      bool           `json:"continue"`
	Reason        string         `json:"reason,omitempty"`
	Context       string         `json:"context,omitempty"`
	SystemMessage string         `json:"systemMessage,omitempty"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
}

func (geminiAdapter) Encode(r response.Response) ([]byte, error) {
	out := geminiResponse{
		Continue:      r.Continue,
		Reason:        r.Reason,
		Context:       r.Context,
		SystemMessage: r.SystemMessage,
		ToolInput:     r.ToolInputOverride,
	}
	return json.Marshal(out)
}
