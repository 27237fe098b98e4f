package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rulez-dev/rulez/internal/engine"
	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

// killGrace is how long a timed-out subprocess gets to exit after
// SIGTERM before it is sent SIGKILL.
const killGrace = 5 * time.Second

// runResult is the outcome of draining a subprocess to completion.
type runResult struct {
	stdout   []byte
	stderr   []byte
	timedOut bool
	err      error
}

// runCommand starts name/args, writes stdin to its standard input, and
// drains stdout/stderr concurrently with waiting on the process so
// neither pipe's buffer can fill and deadlock the child. If timeout
// elapses before the process exits, it is sent SIGTERM and, after
// killGrace, SIGKILL — the caller never blocks past timeout+killGrace.
func runCommand(ctx context.Context, name string, args []string, stdin []byte, dir string, timeout time.Duration) runResult {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return runResult{err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return runResult{err: err}
	}

	if err := cmd.Start(); err != nil {
		return runResult{err: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = stdoutBuf.ReadFrom(stdoutPipe) }()
	go func() { defer wg.Done(); _, _ = stderrBuf.ReadFrom(stderrPipe) }()

	waitDone := make(chan error, 1)
	go func() {
		wg.Wait()
		waitDone <- cmd.Wait()
	}()

	select {
	case err := <-waitDone:
		return runResult{stdout: stdoutBuf.Bytes(), stderr: stderrBuf.Bytes(), err: err}
	case <-runCtx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case err := <-waitDone:
			return runResult{stdout: stdoutBuf.Bytes(), stderr: stderrBuf.Bytes(), timedOut: true, err: err}
		case <-time.After(killGrace):
			_ = cmd.Process.Kill()
			<-waitDone
			return runResult{stdout: stdoutBuf.Bytes(), stderr: stderrBuf.Bytes(), timedOut: true, err: runCtx.Err()}
		}
	}
}

// eventJSON marshals ev into the stdin payload handed to run/
// inline_script/inject_command subprocesses.
func eventJSON(ev event.Event) []byte {
	b, err := json.Marshal(map[string]any{
		"session_id": ev.SessionID,
		"event_type": string(ev.Kind),
		"tool_name":  ev.ToolName,
		"tool_input": ev.ToolInput,
		"prompt":     ev.Prompt,
		"cwd":        ev.Dir,
	})
	if err != nil {
		return []byte("{}")
	}
	return b
}

// evaluateInjectionActions runs a rule's context-producing actions
// (inject_inline, inject_command, inject) in that fixed precedence and
// returns the output of the first one the rule sets (later ones are not
// tried, even when that output is empty), plus any non-fatal errors
// encountered along the way. These actions never deny: a failing
// inject_command or a missing inject file is dropped silently from the
// aggregated context rather than aborting the pipeline (fail-open).
func evaluateInjectionActions(ctx context.Context, rule engine.Rule, ev event.Event, timeout time.Duration) (string, []string) {
	var errs []string

	if rule.Actions.InjectInline != "" {
		return rule.Actions.InjectInline, errs
	}

	if rule.Actions.InjectCommand != "" {
		result := runCommand(ctx, "sh", []string{"-c", rule.Actions.InjectCommand}, eventJSON(ev), ev.Dir, timeout)
		if result.err != nil {
			errs = append(errs, fmt.Sprintf("inject_command: %v", result.err))
			return "", errs
		}
		return strings.TrimSpace(string(result.stdout)), errs
	}

	if rule.Actions.Inject != "" {
		path := rule.Actions.Inject
		if !os.IsPathSeparator(path[0]) {
			path = ev.Dir + string(os.PathSeparator) + path
		}
		data, err := os.ReadFile(path)
		if err != nil {
			// A missing or unreadable inject file is not a pipeline
			// error: the rule simply contributes no context.
			errs = append(errs, fmt.Sprintf("inject: %v", err))
			return "", errs
		}
		return string(data), errs
	}

	return "", errs
}

// validatorOutput is the JSON shape a run/inline_script subprocess must
// print to stdout to influence the decision.
type validatorOutput struct {
	Continue bool   `json:"continue"`
	Reason   string `json:"reason"`
	Context  string `json:"context"`
}

// runValidator executes a rule's run or inline_script action, feeding
// it the event as JSON on stdin and parsing a validatorOutput from its
// stdout. run is exec'd directly (so a script's shebang is honored);
// inline_script is exec'd through sh -c since it has no file of its
// own to carry a shebang.
func runValidator(ctx context.Context, rule engine.Rule, ev event.Event, timeout time.Duration) (response.Response, error) {
	var result runResult
	switch {
	case rule.Actions.Run != "":
		result = runCommand(ctx, rule.Actions.Run, nil, eventJSON(ev), ev.Dir, timeout)
	case rule.Actions.InlineScript != "":
		result = runCommand(ctx, "sh", []string{"-c", rule.Actions.InlineScript}, eventJSON(ev), ev.Dir, timeout)
	default:
		return response.Allow(""), nil
	}

	if result.timedOut {
		return response.Response{}, fmt.Errorf("rule %q: subprocess timed out after %s", rule.Name, timeout)
	}
	if result.err != nil {
		return response.Response{}, fmt.Errorf("rule %q: subprocess: %w (stderr: %s)", rule.Name, result.err, strings.TrimSpace(string(result.stderr)))
	}

	out := bytes.TrimSpace(result.stdout)
	if len(out) == 0 {
		return response.Allow(""), nil
	}

	var parsed validatorOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		// A validator that prints non-JSON is treated as a pass-through
		// allow with its output folded in as context, rather than a
		// pipeline error.
		return response.Allow(string(out)), nil
	}
	if !parsed.Continue {
		reason := parsed.Reason
		if reason == "" {
			reason = fmt.Sprintf("denied by rule %q", rule.Name)
		}
		return response.Deny(reason), nil
	}
	return response.Allow(parsed.Context), nil
}
