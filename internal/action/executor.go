// Package action implements the action executor: given the ordered,
// priority-sorted list of matched rules for an event, it carries out
// their actions in the fixed precedence (block, block_if_match,
// validate_expr, inject_inline, inject_command, inject, run /
// inline_script) and produces a single aggregated Response.
package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rulez-dev/rulez/internal/clock"
	"github.com/rulez-dev/rulez/internal/engine"
	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

const contextSeparator = "\n\n"

// RuleTrace records, for a single matched rule, what the executor
// actually did with it — consumed by the audit sink.
type RuleTrace struct {
	Name         string
	Mode         string
	Priority     int
	Outcome      string // "deny", "warn", "audit", "inject", "allow"; failed actions are listed in ActionErrors
	ActionErrors []string
}

// Outcome is the executor's full result: the response to synthesize,
// plus a trace of every matched rule's contribution for audit.
type Outcome struct {
	Response response.Response
	Traces   []RuleTrace
	ElapsedMs int64
}

// Settings carries the executor's configurable defaults. The caller
// fills it from config.Settings; action imports engine but not config.
type Settings struct {
	DefaultMode   string // "" means "enforce"
	ScriptTimeout time.Duration
}

// Execute runs the action precedence over rules (already filtered and
// priority-sorted by engine.Evaluate) for ev, returning the aggregated
// outcome. ctx bounds the overall subprocess budget; individual
// subprocess actions additionally enforce their own per-rule timeout.
func Execute(ctx context.Context, rules []engine.Rule, ev event.Event, settings Settings) Outcome {
	phase := clock.Start("action")
	var (
		contextParts      []string
		traces            []RuleTrace
		systemMessage     string
		toolInputOverride map[string]any
	)

	for _, rule := range rules {
		mode := effectiveMode(rule.Metadata.Mode, settings.DefaultMode)
		trace := RuleTrace{Name: rule.Name, Mode: mode, Priority: rule.Metadata.Priority}

		if mode == "audit" {
			// Neither deny nor inject is surfaced; only the fact that
			// the rule matched is recorded.
			trace.Outcome = "audit"
			traces = append(traces, trace)
			continue
		}

		if reason, denied := evaluateDenyActions(rule, ev); denied {
			if mode == "enforce" {
				trace.Outcome = "deny"
				traces = append(traces, trace)
				return Outcome{
					Response:  response.Deny(reason),
					Traces:    traces,
					ElapsedMs: phase.ElapsedMillis(),
				}
			}
			// warn: the would-be deny becomes an injected warning; the
			// rest of this rule's actions are skipped (the rule already
			// expressed its one intended effect) but later rules still
			// run.
			contextParts = append(contextParts, "WARNING: "+reason)
			trace.Outcome = "warn"
			traces = append(traces, trace)
			continue
		}

		timeout := settings.ScriptTimeout
		if rule.Metadata.TimeoutSeconds > 0 {
			timeout = time.Duration(rule.Metadata.TimeoutSeconds) * time.Second
		}

		piece, errs := evaluateInjectionActions(ctx, rule, ev, timeout)
		if piece != "" {
			contextParts = append(contextParts, piece)
		}
		trace.ActionErrors = append(trace.ActionErrors, errs...)

		// Single-value override fields overwrite rather than accumulate:
		// the rule processed last here (the lowest-priority match, since
		// rules arrive in descending-priority order) wins.
		if rule.Actions.SystemMessage != "" {
			systemMessage = rule.Actions.SystemMessage
		}
		if rule.Actions.ToolInputOverride != nil {
			toolInputOverride = rule.Actions.ToolInputOverride
		}

		if rule.Actions.Run != "" || rule.Actions.InlineScript != "" {
			result, err := runValidator(ctx, rule, ev, timeout)
			if err != nil {
				trace.ActionErrors = append(trace.ActionErrors, err.Error())
			} else if !result.Continue {
				if mode == "enforce" {
					trace.Outcome = "deny"
					traces = append(traces, trace)
					return Outcome{
						Response:  response.Deny(result.Reason),
						Traces:    traces,
						ElapsedMs: phase.ElapsedMillis(),
					}
				}
				contextParts = append(contextParts, "WARNING: "+result.Reason)
			} else if result.Context != "" {
				contextParts = append(contextParts, result.Context)
			}
		}

		if trace.Outcome == "" {
			if piece != "" {
				trace.Outcome = "inject"
			} else {
				trace.Outcome = "allow"
			}
		}
		traces = append(traces, trace)
	}

	resp := response.Allow(strings.Join(contextParts, contextSeparator))
	resp.SystemMessage = systemMessage
	resp.ToolInputOverride = toolInputOverride

	return Outcome{
		Response:  resp,
		Traces:    traces,
		ElapsedMs: phase.ElapsedMillis(),
	}
}

// effectiveMode resolves a rule's mode override against the config
// default, itself defaulting to enforce.
func effectiveMode(ruleMode, configDefault string) string {
	if ruleMode != "" {
		return ruleMode
	}
	if configDefault != "" {
		return configDefault
	}
	return "enforce"
}

// evaluateDenyActions checks a rule's deny-type actions in precedence
// order (block, block_if_match, validate_expr) and returns the first
// one that fires along with its reason.
func evaluateDenyActions(rule engine.Rule, ev event.Event) (reason string, denied bool) {
	if rule.Actions.Block {
		return denyReason(rule), true
	}

	if rule.Actions.BlockIfMatch != "" {
		if rule.MatchesBlockIfMatch(ev) {
			return denyReason(rule), true
		}
	}

	if rule.Actions.ValidateExpr != "" {
		ok, err := rule.EvalValidateExpr(ev)
		if err != nil {
			// Runtime expression errors fail closed for this predicate,
			// not for the whole pipeline: the action is skipped, not
			// treated as a deny.
			return "", false
		}
		if !ok {
			return denyReason(rule), true
		}
	}

	return "", false
}

func denyReason(rule engine.Rule) string {
	if rule.Metadata.Reason != "" {
		return rule.Metadata.Reason
	}
	return fmt.Sprintf("denied by rule %q", rule.Name)
}
