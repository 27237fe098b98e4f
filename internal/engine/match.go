package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rulez-dev/rulez/internal/event"
)

// operationHints maps common tool names onto the semantic operation
// kinds rules can match against. Tools absent from this table carry no
// operation hint (an `operations` predicate on them is a non-match).
var operationHints = map[string]string{
	"Read":         "read",
	"Glob":         "read",
	"Grep":         "read",
	"NotebookRead": "read",
	"WebFetch":     "read",
	"Write":        "write",
	"Edit":         "write",
	"NotebookEdit":  "write",
	"MultiEdit":    "write",
	"Bash":         "exec",
	"BashOutput":   "exec",
	"KillShell":    "exec",
}

// Evaluate returns the rules (from the given set) that apply to ev: of
// the declared event kind, enabled, and with all matcher predicates
// satisfied. The result is sorted by descending priority, ties broken
// by source order (the original slice order) — the order in which
// actions are executed and injections are concatenated.
func Evaluate(rules []Rule, ev event.Event) []Rule {
	type indexed struct {
		rule Rule
		idx  int
	}
	var candidates []indexed
	for i, r := range rules {
		if !r.Metadata.IsEnabled() {
			continue
		}
		if !r.AppliesToKind(ev.Kind) {
			continue
		}
		candidates = append(candidates, indexed{rule: r, idx: i})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		pa, pb := candidates[a].rule.Metadata.Priority, candidates[b].rule.Metadata.Priority
		if pa != pb {
			return pa > pb
		}
		return candidates[a].idx < candidates[b].idx
	})

	matched := make([]Rule, 0, len(candidates))
	for _, c := range candidates {
		if Matches(&c.rule, ev) {
			matched = append(matched, c.rule)
		}
	}
	return matched
}

// Matches evaluates a single rule's matcher predicates against ev as a
// short-circuiting conjunction: every declared predicate must hold.
func Matches(r *Rule, ev event.Event) bool {
	m := r.Matchers

	if len(m.Tools) > 0 {
		if !stringInSet(ev.ToolName, m.Tools) {
			return false
		}
	}

	if len(m.Directories) > 0 {
		if r.compiled == nil || !matchesAnyGlob(r.compiled.directoryGlobs, canonicalEventPath(ev)) {
			return false
		}
	}

	if len(m.Extensions) > 0 {
		path := ev.PrimaryPath()
		if path == "" {
			return false
		}
		ext := filepath.Ext(path)
		if !stringInSet(ext, m.Extensions) {
			return false
		}
	}

	if len(m.Operations) > 0 {
		op, known := operationHints[ev.ToolName]
		if !known || !stringInSet(op, m.Operations) {
			return false
		}
	}

	if m.CommandMatch != "" {
		cmd := ev.Command()
		if cmd == "" || r.compiled == nil || !r.compiled.commandRegex.MatchString(cmd) {
			return false
		}
	}

	if m.PromptMatch != nil {
		if ev.Prompt == "" {
			return false
		}
		if r.compiled == nil || !r.compiled.promptMatcher.Matches(ev.Prompt) {
			return false
		}
	}

	for _, path := range m.RequireFields {
		v, ok := resolveFieldPath(ev.ToolInput, path)
		if !ok || v == nil {
			return false
		}
	}

	for path, typ := range m.FieldTypes {
		v, ok := resolveFieldPath(ev.ToolInput, path)
		if !ok {
			return false
		}
		if typ != "any" && jsonType(v) != typ {
			return false
		}
	}

	if m.EnabledWhen != "" {
		if r.compiled == nil || r.compiled.enabledWhen == nil {
			return false
		}
		ok, err := r.compiled.enabledWhen.Eval(exprContext(ev))
		if err != nil || !ok {
			return false
		}
	}

	return true
}

// canonicalEventPath resolves the path carried in tool-input to an
// absolute path under the event's canonical working directory, so
// directory globs are matched consistently regardless of whether the
// host sent a relative or absolute path.
func canonicalEventPath(ev event.Event) string {
	path := ev.PrimaryPath()
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ev.Dir, path)
}

func matchesAnyGlob(globs []glob.Glob, s string) bool {
	if s == "" {
		return false
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

func stringInSet(s string, set []string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// exprContext builds the CEL activation for enabled_when/validate_expr:
// the built-in tool_name/event_type/prompt variables, every environment
// variable as env_<NAME>, and every top-level tool_input field under
// its own key.
func exprContext(ev event.Event) map[string]any {
	vars := map[string]any{
		"tool_name":  ev.ToolName,
		"event_type": string(ev.Kind),
		"prompt":     ev.Prompt,
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		vars["env_"+parts[0]] = parts[1]
	}
	for k, v := range ev.ToolInput {
		vars[k] = v
	}
	return vars
}

// formatPriority renders a rule's priority as a decimal string. Nothing
// in the module calls it.
func formatPriority(p int) string {
	return strconv.Itoa(p)
}
