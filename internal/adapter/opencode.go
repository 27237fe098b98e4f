package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

// openCodeAdapter handles OpenCode's event-bus-style hook shape, keyed
// by a dotted "event" name such as "tool.execute.before" rather than a
// single PascalCase hook_event_name.
type openCodeAdapter struct{}

func (openCodeAdapter) Name() string { return "opencode" }

var openCodeEventNames = map[string]event.Kind{
	"tool.execute.before": event.PreToolUse,
	"tool.execute.after":  event.PostToolUse,
	"session.start":       event.SessionStart,
	"session.end":         event.SessionEnd,
	"prompt.submit":       event.UserPromptSubmit,
}

type openCodeEvent struct {
	Event     string         `json:"event"`
	SessionID string         `json:"sessionID"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Directory string         `json:"directory"`
	Prompt    string         `json:"prompt"`
}

func (openCodeAdapter) Decode(raw []byte) (event.Event, bool, error) {
	var oe openCodeEvent
	if err := json.Unmarshal(raw, &oe); err != nil {
		return event.Event{}, false, fmt.Errorf("%w: %v", event.ErrMalformed, err)
	}
	if oe.Event == "" {
		return event.Event{}, false, fmt.Errorf("%w: missing event", event.ErrMalformed)
	}

	kind, known := openCodeEventNames[oe.Event]
	if !known {
		return event.Event{}, false, nil
	}

	input := oe.Args
	if input == nil {
		input = map[string]any{}
	}

	return event.Event{
		Kind:      kind,
		SessionID: oe.SessionID,
		Dir:       event.Canonicalize(oe.Directory),
		ToolName:  oe.Tool,
		ToolInput: input,
		Prompt:    oe.Prompt,
		Timestamp: time.Now().UTC(),
	}, true, nil
}

type openCodeResponse struct {
	Continue bool   `json:"continue"`
	Reason   string `json:"reason,omitempty"`
	Context  string `json:"context,omitempty"`
}

func (openCodeAdapter) Encode(r response.Response) ([]byte, error) {
	out := openCodeResponse{
		Continue: r.Continue,
		Reason:   r.Reason,
		Context:  r.Context,
	}
	return json.Marshal(out)
}
