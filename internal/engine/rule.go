// Package engine implements the matcher algebra: the predicate portion
// of a rule, evaluated against a normalized event, plus the action
// specifiers a matched rule carries. Rule loading/validation is driven
// from internal/config; actual action execution lives in internal/action.
package engine

import (
	"fmt"

	"github.com/rulez-dev/rulez/internal/event"
	"gopkg.in/yaml.v3"
)

// Rule is a named unit of policy: a predicate over events plus a set of
// actions. Names are unique within a configuration.
type Rule struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	EventTypes  stringOrList `yaml:"event_types"`
	Matchers    Matchers     `yaml:"matchers"`
	Actions     Actions      `yaml:"actions"`
	Metadata    Metadata     `yaml:"metadata"`

	// compiled holds pre-compiled patterns (regex, glob, CEL programs).
	// Populated by Compile after loading; never serialized.
	compiled *compiledMatchers
}

// Matchers bundles a rule's predicates. All present fields must hold —
// conjunction. Within the tools, directories, extensions and operations
// lists, any entry matching is sufficient (disjunction); require_fields
// needs every listed path to be present.
type Matchers struct {
	Tools         stringOrList      `yaml:"tools"`
	Directories   stringOrList      `yaml:"directories"`
	Extensions    stringOrList      `yaml:"extensions"`
	Operations    stringOrList      `yaml:"operations"`
	CommandMatch  string            `yaml:"command_match"`
	PromptMatch   *PromptMatch      `yaml:"prompt_match"`
	RequireFields stringOrList      `yaml:"require_fields"`
	FieldTypes    map[string]string `yaml:"field_types"`
	EnabledWhen   string            `yaml:"enabled_when"`
}

// PromptMatch is a structured predicate over the event's prompt text.
type PromptMatch struct {
	Pattern         string `yaml:"pattern"`
	Mode            string `yaml:"mode"`   // substring, regex, glob
	Anchor          string `yaml:"anchor"` // any, start, end, full
	CaseInsensitive bool   `yaml:"case_insensitive"`
	Negate          bool   `yaml:"negate"`
}

// Actions is the set of action specifiers a matched rule carries. Zero or
// more may be set; the executor applies them in a fixed precedence
// (block, block_if_match, validate_expr, inject_inline, inject_command,
// inject, run/inline_script).
type Actions struct {
	Block         bool   `yaml:"block"`
	BlockIfMatch  string `yaml:"block_if_match"`
	ValidateExpr  string `yaml:"validate_expr"`
	InjectInline  string `yaml:"inject_inline"`
	InjectCommand string `yaml:"inject_command"`
	Inject        string `yaml:"inject"`
	Run           string `yaml:"run"`
	InlineScript  string `yaml:"inline_script"`

	// SystemMessage and ToolInputOverride populate host-specific
	// single-value response fields (Gemini's systemMessage/tool_input).
	// When more than one matched rule sets either, the rule processed
	// last in priority order (lowest priority among matches) wins — the
	// field is overwritten, not merged or concatenated like context.
	SystemMessage     string         `yaml:"system_message"`
	ToolInputOverride map[string]any `yaml:"tool_input_override"`
}

// Metadata carries a rule's provenance and behavioral overrides.
type Metadata struct {
	Author     string       `yaml:"author"`
	CreatedBy  string       `yaml:"created_by"`
	Reason     string       `yaml:"reason"`
	Confidence string       `yaml:"confidence"`
	Tags       stringOrList `yaml:"tags"`
	Priority   int          `yaml:"priority"`
	Enabled    *bool        `yaml:"enabled"` // nil means default true
	Mode       string       `yaml:"mode"`    // enforce, warn, audit; "" means action.Settings.DefaultMode, else enforce (config.Settings has no mode field)
	// TimeoutSeconds overrides settings.script_timeout for this rule's
	// subprocess actions. 0 means "use the config default".
	TimeoutSeconds int `yaml:"timeout"`
}

// IsEnabled reports whether the rule is active (default true).
func (m Metadata) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// stringOrList handles YAML fields that may be written as a single
// scalar or as a list, e.g. "tools: Bash" or "tools: [Bash, Write]".
type stringOrList []string

func (s *stringOrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	case 0:
		// Absent field — leave nil.
		*s = nil
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", value.Kind)
	}
}

// EffectiveEventTypes returns the rule's declared event kinds, defaulting
// to PreToolUse when none are declared.
func (r *Rule) EffectiveEventTypes() []event.Kind {
	if len(r.EventTypes) == 0 {
		return []event.Kind{event.PreToolUse}
	}
	kinds := make([]event.Kind, len(r.EventTypes))
	for i, s := range r.EventTypes {
		kinds[i] = event.Kind(s)
	}
	return kinds
}

// AppliesToKind reports whether the rule declares interest in the given
// event kind.
func (r *Rule) AppliesToKind(k event.Kind) bool {
	for _, ek := range r.EffectiveEventTypes() {
		if ek == k {
			return true
		}
	}
	return false
}
