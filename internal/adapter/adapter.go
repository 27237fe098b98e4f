// Package adapter implements the per-host translation layer: event
// shape in, response shape out. The set of adapters is fixed at
// compile time — adding a host means adding a variant here, never a
// runtime plugin.
package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

// Adapter translates between one host agent's wire format and the
// internal Event/Response model. Adapters are stateless.
type Adapter interface {
	// Name identifies the adapter for the "rulez <adapter> hook" CLI
	// subcommand and audit provenance.
	Name() string

	// Decode maps a raw hook JSON payload onto the internal Event
	// model. Unknown host event-names degrade to a benign allow by
	// returning (event.Event{}, false, nil) rather than an error.
	Decode(raw []byte) (ev event.Event, recognized bool, err error)

	// Encode produces a host-native JSON response from an internal
	// Response.
	Encode(resp response.Response) ([]byte, error)
}

// registry is the fixed, compile-time set of supported adapters.
var registry = map[string]Adapter{
	claudeAdapter{}.Name():  claudeAdapter{},
	geminiAdapter{}.Name():  geminiAdapter{},
	copilotAdapter{}.Name(): copilotAdapter{},
	openCodeAdapter{}.Name(): openCodeAdapter{},
}

// ByName looks up an adapter by its explicit subcommand name
// ("rulez gemini hook"). Returns false if the name is unrecognized.
func ByName(name string) (Adapter, bool) {
	a, ok := registry[name]
	return a, ok
}

// Sniff inspects the raw JSON's key names to infer the host adapter
// when invoked as bare "rulez hook" (no explicit adapter subcommand).
// Order matters: more distinctive key names are checked first so that
// a Claude-like payload (the common case) is recognized cheaply.
func Sniff(raw []byte) (Adapter, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrMalformed, err)
	}

	switch {
	case hasAny(probe, "hook_event_name"):
		return claudeAdapter{}, nil
	case hasAny(probe, "toolCall", "BeforeTool", "AfterTool"):
		return geminiAdapter{}, nil
	case hasAny(probe, "permissionDecision", "tool_call"):
		return copilotAdapter{}, nil
	case hasAny(probe, "tool.execute.before", "event"):
		return openCodeAdapter{}, nil
	default:
		return nil, fmt.Errorf("%w: no recognizable event-kind field", event.ErrMalformed)
	}
}

func hasAny(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
