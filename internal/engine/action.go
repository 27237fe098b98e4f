package engine

import "github.com/rulez-dev/rulez/internal/event"

// MatchesBlockIfMatch reports whether a rule's block_if_match pattern
// matches ev's command. Non-command events (no "command" field) are a
// non-match rather than an error — block_if_match only ever applies to
// Bash-like tool calls.
func (r *Rule) MatchesBlockIfMatch(ev event.Event) bool {
	if r.compiled == nil || r.compiled.blockIfMatch == nil {
		return false
	}
	cmd := ev.Command()
	if cmd == "" {
		return false
	}
	return r.compiled.blockIfMatch.MatchString(cmd)
}

// EvalValidateExpr evaluates a rule's validate_expr CEL expression
// against ev. A rule with no validate_expr trivially validates.
func (r *Rule) EvalValidateExpr(ev event.Event) (bool, error) {
	if r.compiled == nil || r.compiled.validateExpr == nil {
		return true, nil
	}
	return r.compiled.validateExpr.Eval(exprContext(ev))
}
