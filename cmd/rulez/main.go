// Package main is the CLI entry point for rulez — a local AI policy
// engine that sits on the hook path of AI coding agents (Claude Code,
// Gemini CLI, Copilot CLI, OpenCode). On each hook event it reads one
// JSON object from standard input, evaluates it against hooks.yaml,
// and writes one JSON response to standard output.
//
// Pipeline:
//
//	stdin --> Event Ingress --> Adapter.Decode --> Config Resolver
//	      --> Matcher Engine --> Action Executor --> Response Synthesizer
//	      --> stdout, with one Audit Sink entry appended at the end.
//
// CLI commands (cobra):
//
//	rulez <adapter> hook   - run the pipeline for one stdin event, explicit adapter
//	rulez hook             - same, adapter inferred by sniffing stdin's shape
//	rulez validate         - check hooks.yaml for load/validation errors
//	rulez explain          - dry-run an event against the current config
//	rulez watch            - watch hooks.yaml for changes (diagnostic surface)
//	rulez logs             - tail/query/verify/export the audit log
//	rulez debug            - print the resolved config path and effective settings
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rulez-dev/rulez/internal/action"
	"github.com/rulez-dev/rulez/internal/adapter"
	"github.com/rulez-dev/rulez/internal/audit"
	"github.com/rulez-dev/rulez/internal/config"
	"github.com/rulez-dev/rulez/internal/engine"
	"github.com/rulez-dev/rulez/internal/event"
	"github.com/rulez-dev/rulez/internal/response"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-07-30"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// defaultHomeDir returns <user-home>/.claude, where the default
// configuration and audit log live.
func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude"
	}
	return filepath.Join(home, ".claude")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error back to the exit codes reserved for the
// surrounding dispatch layer: 1 config load, 2 config validation, 3
// unrecoverable runtime. The hook path itself always exits 0 — a
// pipeline error there becomes a fail-open response, never a process
// error.
func exitCodeFor(err error) int {
	switch {
	case errIs(err, errConfigLoad):
		return 1
	case errIs(err, errConfigInvalid):
		return 2
	default:
		return 3
	}
}

func errIs(err, target error) bool {
	for e := err; e != nil; {
		if e == target {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

var errConfigLoad = fmt.Errorf("config load error")
var errConfigInvalid = fmt.Errorf("config validation error")

// ============================================================================
// Root command
// ============================================================================

// configOverride is the --config flag: an explicit hooks.yaml path that
// always wins over the project/user resolution precedence.
var configOverride string

// auditDir is the --audit-dir flag, defaulting to <user-home>/.claude/logs/audit.
var auditDir string

var rootCmd = &cobra.Command{
	Use:     "rulez",
	Short:   "rulez — a local policy engine for AI coding agent hooks",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	Long: `rulez sits on the hook path of AI coding agents (Claude Code, Gemini CLI,
Copilot CLI, OpenCode). On each hook event it reads one JSON object from
standard input, evaluates it against hooks.yaml, and writes one JSON
response to standard output: allow, deny, or allow-with-injected-context.

Run 'rulez hook' (or 'rulez <adapter> hook') as the command a host agent
invokes on its hook path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHook(cmd.Context(), "")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configOverride, "config", "", "Explicit path to hooks.yaml (overrides project/user resolution)")
	rootCmd.PersistentFlags().StringVar(&auditDir, "audit-dir", filepath.Join(defaultHomeDir(), "logs", "audit"), "Path to the audit log directory")

	for _, name := range []string{"claude", "gemini", "copilot", "opencode"} {
		rootCmd.AddCommand(newAdapterCmd(name))
	}
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(debugCmd)
}

// newAdapterCmd builds the `rulez <adapter>` parent command with its
// `hook` child subcommand — the explicit-adapter form of the hook path.
func newAdapterCmd(name string) *cobra.Command {
	adapterCmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("%s host adapter commands", name),
	}
	adapterCmd.AddCommand(&cobra.Command{
		Use:   "hook",
		Short: fmt.Sprintf("Run the hook pipeline for one %s event on stdin (explicit adapter)", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd.Context(), name)
		},
	})
	return adapterCmd
}

// hookCmd is the bare "rulez hook" form: the adapter is inferred by
// sniffing the stdin payload's shape.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run the hook pipeline for one event on stdin, inferring the host adapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHook(cmd.Context(), "")
	},
}

// ============================================================================
// The hook pipeline itself
// ============================================================================

// runHook is the core pipeline: stdin -> decode -> resolve config ->
// match -> execute -> encode -> stdout, with one audit entry appended.
// Every failure short of a deliberate rule deny must still produce a
// continue:true response — this function never returns an error that
// should change the process's exit code.
func runHook(ctx context.Context, adapterName string) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return writeFailOpenDefault(fmt.Errorf("reading stdin: %w", err))
	}

	ad, ev, recognized := decodeWithFailOpen(adapterName, raw)
	if !recognized {
		return writeResponse(ad, response.Allow(""))
	}
	ev.Dir = event.Canonicalize(ev.Dir)

	cfg, err := config.NewCache().Get(configOverride, ev.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rulez: config load failed, failing open: %v\n", err)
		return writeResponse(ad, response.Allow(""))
	}

	matched := engine.Evaluate(cfg.Rules, ev)

	actionCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Settings.EffectiveScriptTimeout()+2)*time.Second)
	defer cancel()

	outcome := action.Execute(actionCtx, matched, ev, action.Settings{
		ScriptTimeout: time.Duration(cfg.Settings.EffectiveScriptTimeout()) * time.Second,
	})

	logOutcome(ev, outcome, len(matched))

	return writeResponse(ad, outcome.Response)
}

// decodeWithFailOpen resolves the adapter (explicit name or sniffed)
// and decodes raw into an Event. When no adapter can be selected it
// returns fallbackAdapter; when the selected adapter fails to decode it
// returns that adapter. Either way recognized is false and the caller
// can still emit a response.
func decodeWithFailOpen(adapterName string, raw []byte) (adapter.Adapter, event.Event, bool) {
	var (
		ad  adapter.Adapter
		ok  bool
		err error
	)
	if adapterName != "" {
		ad, ok = adapter.ByName(adapterName)
		if !ok {
			fmt.Fprintf(os.Stderr, "rulez: unknown adapter %q\n", adapterName)
			return fallbackAdapter{}, event.Event{}, false
		}
	} else {
		ad, err = adapter.Sniff(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rulez: %v\n", err)
			return fallbackAdapter{}, event.Event{}, false
		}
	}

	ev, recognized, err := ad.Decode(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rulez: %v\n", err)
		return ad, event.Event{}, false
	}
	return ad, ev, recognized
}

// fallbackAdapter is used only when no real adapter could even be
// selected (empty/unparseable stdin) — it encodes the flat
// continue/reason/context shape of the Claude-like hosts.
type fallbackAdapter struct{}

func (fallbackAdapter) Name() string { return "unknown" }
func (fallbackAdapter) Decode(raw []byte) (event.Event, bool, error) {
	return event.Event{}, false, event.ErrMalformed
}
func (fallbackAdapter) Encode(resp response.Response) ([]byte, error) {
	return json.Marshal(map[string]any{"continue": resp.Continue, "reason": resp.Reason, "context": resp.Context})
}

func writeFailOpenDefault(err error) error {
	fmt.Fprintf(os.Stderr, "rulez: %v\n", err)
	return writeResponse(fallbackAdapter{}, response.Allow(""))
}

// writeResponse encodes resp through ad and writes it to stdout as a
// single JSON document followed by a newline — stdout carries only
// this document.
func writeResponse(ad adapter.Adapter, resp response.Response) error {
	out, err := ad.Encode(resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rulez: encoding response: %v\n", err)
		out = []byte(`{"continue":true}`)
	}
	var buf bytes.Buffer
	buf.Write(out)
	buf.WriteByte('\n')
	_, werr := os.Stdout.Write(buf.Bytes())
	return werr
}

// logOutcome appends one audit entry for ev's outcome. Audit failures
// are logged to standard error and never affect the response.
func logOutcome(ev event.Event, outcome action.Outcome, rulesEvaluated int) {
	a, err := audit.New(auditDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rulez: opening audit log: %v\n", err)
		return
	}
	defer a.Close()
	a.Log(ev, outcome, rulesEvaluated)
}

// ============================================================================
// rulez validate — check hooks.yaml for load/validation errors
// ============================================================================

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate hooks.yaml without evaluating any event",
	Long: `Loads hooks.yaml through the same resolution precedence and validation
the hot path uses, and reports any error with a path-accurate diagnostic.
Unlike the hook path, validation errors here are hard errors (exit 2),
since there is no live event to fail open for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("%w: %v", errConfigLoad, err)
		}
		path := config.Resolve(configOverride, cwd)
		if path == "" {
			fmt.Println("No hooks.yaml found on the resolution path; an empty (allow-all) configuration applies.")
			return nil
		}
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errConfigInvalid, path, err)
		}
		fmt.Printf("%s: OK (%d rule(s))\n", path, len(cfg.Rules))
		return nil
	},
}

// ============================================================================
// rulez explain — dry-run an event against the current config
// ============================================================================

var explainFile string

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Dry-run a JSON event (stdin or --file) through the evaluation pipeline",
	Long: `Reads an event the same way the hook path does (stdin, or --file),
prints the ordered list of matched rules with their mode and priority,
and the response that would be synthesized — sharing 100% of the hook
path's evaluation code. Writes nothing to the audit log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if explainFile != "" {
			raw, err = os.ReadFile(explainFile)
		} else {
			raw, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}

		ad, ev, recognized := decodeWithFailOpen("", raw)
		if !recognized {
			fmt.Println("event not recognized by any adapter; would fail open (continue: true)")
			return nil
		}
		ev.Dir = event.Canonicalize(ev.Dir)
		fmt.Printf("adapter: %s\nkind: %s\ntool: %s\ncwd: %s\n\n", ad.Name(), ev.Kind, ev.ToolName, ev.Dir)

		cwd, _ := os.Getwd()
		cfg, err := config.Load(config.Resolve(configOverride, cwd))
		if err != nil {
			return fmt.Errorf("%w: %v", errConfigInvalid, err)
		}

		matched := engine.Evaluate(cfg.Rules, ev)
		if len(matched) == 0 {
			fmt.Println("no rules matched")
		}
		for _, r := range matched {
			fmt.Printf("matched: %-30s priority=%-4d mode=%s\n", r.Name, r.Metadata.Priority, r.Metadata.Mode)
		}

		outcome := action.Execute(cmd.Context(), matched, ev, action.Settings{
			ScriptTimeout: time.Duration(cfg.Settings.EffectiveScriptTimeout()) * time.Second,
		})
		fmt.Printf("\nresponse: continue=%v reason=%q context=%q\n", outcome.Response.Continue, outcome.Response.Reason, outcome.Response.Context)
		return nil
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainFile, "file", "", "Read the event JSON from a file instead of stdin")
}

// ============================================================================
// rulez watch — watch hooks.yaml for changes (diagnostic surface)
// ============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch hooks.yaml for changes and print a line on each change",
	Long: `Starts a filesystem watch on the resolved hooks.yaml and prints a line
each time it changes. This is a diagnostic convenience only — the hook
path's own config cache already detects changes via mtime+size on every
invocation; this command does not speed up or replace that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path := config.Resolve(configOverride, cwd)
		if path == "" {
			return fmt.Errorf("no hooks.yaml found to watch (resolution precedence produced no path)")
		}

		fmt.Printf("watching %s (ctrl-c to stop)\n", path)
		w, err := config.NewWatcher(path, func(p string) {
			fmt.Printf("[%s] %s changed\n", time.Now().Format(time.RFC3339), p)
		})
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		defer w.Close()

		<-cmd.Context().Done()
		return nil
	},
}

// ============================================================================
// rulez logs — tail/query/verify/export the audit log
// ============================================================================

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail, query, verify, or export the audit log",
	Long: `The audit log records every evaluated hook event: the matched rules
(with mode and priority), the final decision, and timing. Entries are
hash-chained — each entry's hash depends on the previous entry's hash,
making tampering detectable.`,
}

var (
	logsFollow   bool
	logsLimit    int
	logsDecision string
	logsKind     string
	logsSince    string
	logsFormat   string
)

func init() {
	logsTailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := audit.New(auditDir)
			if err != nil {
				return fmt.Errorf("opening audit log: %w", err)
			}
			defer a.Close()

			entries, err := a.Tail(logsLimit)
			if err != nil {
				return fmt.Errorf("reading audit log: %w", err)
			}
			for _, e := range entries {
				printAuditEntry(e)
			}
			if logsFollow {
				return a.Follow(cmd.Context(), printAuditEntry)
			}
			return nil
		},
	}
	logsTailCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow new entries in real time")
	logsTailCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "Number of recent entries to show")

	logsQueryCmd := &cobra.Command{
		Use:   "query",
		Short: "Query audit entries with filters",
		Long: `Examples:
  rulez logs query --kind PreToolUse --decision deny --since 1h
  rulez logs query --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := audit.New(auditDir)
			if err != nil {
				return fmt.Errorf("opening audit log: %w", err)
			}
			defer a.Close()

			entries, err := a.Query(audit.QueryParams{
				EventKind: logsKind,
				Decision:  logsDecision,
				Since:     logsSince,
				Limit:     logsLimit,
			})
			if err != nil {
				return fmt.Errorf("audit query failed: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("no matching audit entries found")
				return nil
			}
			for _, e := range entries {
				printAuditEntry(e)
			}
			fmt.Printf("\n%d entries found.\n", len(entries))
			return nil
		},
	}
	logsQueryCmd.Flags().StringVar(&logsKind, "kind", "", "Filter by event kind")
	logsQueryCmd.Flags().StringVar(&logsDecision, "decision", "", "Filter by decision (allow/deny)")
	logsQueryCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since a duration (e.g. 1h, 30m)")
	logsQueryCmd.Flags().IntVar(&logsLimit, "limit", 50, "Maximum number of entries to return")

	logsVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify audit log hash chain integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := audit.New(auditDir)
			if err != nil {
				return fmt.Errorf("opening audit log: %w", err)
			}
			defer a.Close()

			result, err := a.VerifyChain()
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			if result.Valid {
				fmt.Printf("hash chain VALID (%d entries verified)\n", result.EntriesChecked)
				return nil
			}
			fmt.Printf("hash chain BROKEN at entry #%d\n  expected: %s\n  actual:   %s\n",
				result.BrokenAt, result.ExpectedHash, result.ActualHash)
			return fmt.Errorf("audit chain integrity violation detected")
		},
	}

	logsExportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit log to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := audit.New(auditDir)
			if err != nil {
				return fmt.Errorf("opening audit log: %w", err)
			}
			defer a.Close()
			return a.Export(os.Stdout, logsFormat)
		},
	}
	logsExportCmd.Flags().StringVar(&logsFormat, "format", "jsonl", "Export format: csv, json, jsonl")

	logsCmd.AddCommand(logsTailCmd, logsQueryCmd, logsVerifyCmd, logsExportCmd)
}

func printAuditEntry(e audit.Entry) {
	decision := e.Decision
	if decision == "deny" {
		decision = "DENY"
	}
	fmt.Printf("[%s] kind=%-18s tool=%-12s decision=%-6s rules=%d elapsed_ms=%d\n",
		e.Timestamp, e.EventKind, e.Tool, decision, e.RulesEvaluated, e.ElapsedMs)
}

// ============================================================================
// rulez debug — print the resolved config path and effective settings
// ============================================================================

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Print the resolved hooks.yaml path and effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path := config.Resolve(configOverride, cwd)
		if path == "" {
			fmt.Println("resolved config: <none> (empty default applies)")
			return nil
		}
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfigInvalid, err)
		}
		fmt.Printf("resolved config: %s\n", path)
		fmt.Printf("rules:           %d\n", len(cfg.Rules))
		fmt.Printf("fail_open:       %v\n", cfg.Settings.IsFailOpen())
		fmt.Printf("script_timeout:  %ds\n", cfg.Settings.EffectiveScriptTimeout())
		fmt.Printf("audit dir:       %s\n", auditDir)
		return nil
	},
}
