package audit

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rulez-dev/rulez/internal/action"
	"github.com/rulez-dev/rulez/internal/event"
)

// MatchedRule records one rule's contribution to a decision, in the
// order the action executor evaluated it.
type MatchedRule struct {
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	Priority int    `json:"priority"`
	Outcome  string `json:"outcome"`
}

// Entry is a single audit log record: one per evaluated event,
// appended atomically after the response has been decided. The hash
// chain links entries: each entry's Hash depends on the previous
// entry's Hash, making the log tamper-evident.
type Entry struct {
	Seq            uint64        `json:"seq"`
	Timestamp      string        `json:"ts"`
	EventKind      string        `json:"event_kind"`
	SessionID      string        `json:"session_id,omitempty"`
	Tool           string        `json:"tool,omitempty"`
	MatchedRules   []MatchedRule `json:"matched_rules,omitempty"`
	Decision       string        `json:"decision"` // "allow" or "deny"
	Reason         string        `json:"reason,omitempty"`
	RulesEvaluated int           `json:"rules_evaluated"`
	ElapsedMs      int64         `json:"elapsed_ms"`
	Command        string        `json:"command,omitempty"`
	Path           string        `json:"path,omitempty"`
	PrevHash       string        `json:"prev_hash"`
	Hash           string        `json:"hash"`
}

// QueryParams defines filters for querying the audit log. All fields
// are optional — empty/zero values mean "no filter".
type QueryParams struct {
	EventKind string // Filter by event kind (exact match).
	Decision  string // Filter by decision: "allow" or "deny".
	Since     string // ISO timestamp or duration string (e.g. "1h", "24h").
	Limit     int    // Maximum entries to return.
}

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid          bool   `json:"valid"`
	EntriesChecked int    `json:"entries_checked"`
	BrokenAt       int    `json:"broken_at,omitempty"`
	ExpectedHash   string `json:"expected_hash,omitempty"`
	ActualHash     string `json:"actual_hash,omitempty"`
}

// AuditLog manages the hash-chained, append-only audit log.
//
// Storage layout:
//
//	<audit-dir>/
//	├── genesis.json        # First entry, establishes the chain
//	├── 2026-07-30.jsonl    # Today's entries (append-only)
//	└── index.db            # SQLite index for fast queries
//
// Thread-safe — a single rulez process only ever logs once per
// invocation, but Tail/Query/Follow may run concurrently from a
// separate `rulez logs` invocation against the same directory.
type AuditLog struct {
	mu       sync.Mutex
	dir      string
	seq      uint64
	lastHash string
	index    *sqliteIndex
	file     *os.File
	fileDate string
}

// New opens or creates an audit log in the given directory. If the
// directory doesn't exist, it's created. If no genesis block exists,
// one is created to establish the hash chain.
func New(dir string) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory %s: %w", dir, err)
	}

	a := &AuditLog{
		dir:      dir,
		lastHash: "sha256:genesis",
	}

	idx, err := openIndex(filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("opening audit index: %w", err)
	}
	a.index = idx

	if err := a.loadGenesis(); err != nil {
		idx.close()
		return nil, err
	}

	if err := a.recoverState(); err != nil {
		idx.close()
		return nil, err
	}

	slog.Debug("audit log initialized", "dir", dir, "seq", a.seq)
	return a, nil
}

// Close flushes and closes the audit log and SQLite index.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.file != nil {
		if err := a.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.index != nil {
		if err := a.index.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing audit log: %v", errs)
	}
	return nil
}

// Log records one evaluated event's outcome. Called exactly once per
// hook invocation, after the action executor has produced its Outcome
// and before the response is written to stdout — a failure here must
// never block the response, so Log never returns an error; write
// failures are logged to stderr instead.
func (a *AuditLog) Log(ev event.Event, outcome action.Outcome, rulesEvaluated int) {
	decision := "allow"
	if !outcome.Response.Continue {
		decision = "deny"
	}

	matched := make([]MatchedRule, 0, len(outcome.Traces))
	for _, tr := range outcome.Traces {
		matched = append(matched, MatchedRule{
			Name:     tr.Name,
			Mode:     tr.Mode,
			Priority: tr.Priority,
			Outcome:  tr.Outcome,
		})
	}

	a.append(Entry{
		EventKind:      string(ev.Kind),
		SessionID:      ev.SessionID,
		Tool:           ev.ToolName,
		MatchedRules:   matched,
		Decision:       decision,
		Reason:         outcome.Response.Reason,
		RulesEvaluated: rulesEvaluated,
		ElapsedMs:      outcome.ElapsedMs,
		Command:        ev.Command(),
		Path:           ev.PrimaryPath(),
	})
}

// Tail returns the N most recent audit entries.
func (a *AuditLog) Tail(limit int) ([]Entry, error) {
	if a.index != nil {
		return a.index.tail(limit)
	}
	return a.readAllEntries(limit)
}

// Follow watches for new audit entries in real time, calling the
// callback for each new entry. Blocks until the context is cancelled.
func (a *AuditLog) Follow(ctx context.Context, callback func(Entry)) error {
	lastSeq := a.seq
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entries, err := a.readEntriesAfter(lastSeq)
			if err != nil {
				slog.Error("follow: error reading entries", "error", err)
				continue
			}
			for _, e := range entries {
				callback(e)
				if e.Seq > lastSeq {
					lastSeq = e.Seq
				}
			}
		}
	}
}

// Query retrieves entries matching the given filter parameters.
func (a *AuditLog) Query(params QueryParams) ([]Entry, error) {
	if params.Since != "" && !strings.Contains(params.Since, "T") {
		d, err := time.ParseDuration(params.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since duration %q: %w", params.Since, err)
		}
		params.Since = time.Now().UTC().Add(-d).Format(time.RFC3339Nano)
	}

	if a.index != nil {
		return a.index.query(params)
	}
	return a.readAllEntriesFiltered(params)
}

// VerifyChain reads all audit entries and verifies hash chain
// integrity: each entry's hash must match its contents, and each
// entry's PrevHash must match the previous entry's Hash.
func (a *AuditLog) VerifyChain() (VerifyResult, error) {
	entries, err := a.readAllEntries(0)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("reading entries for verification: %w", err)
	}
	if len(entries) == 0 {
		return VerifyResult{Valid: true, EntriesChecked: 0}, nil
	}

	for i, e := range entries {
		expected := computeHash(&e)
		if e.Hash != expected {
			return VerifyResult{
				Valid: false, EntriesChecked: i + 1, BrokenAt: i,
				ExpectedHash: expected, ActualHash: e.Hash,
			}, nil
		}
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			return VerifyResult{
				Valid: false, EntriesChecked: i + 1, BrokenAt: i,
				ExpectedHash: entries[i-1].Hash, ActualHash: e.PrevHash,
			}, nil
		}
	}
	return VerifyResult{Valid: true, EntriesChecked: len(entries)}, nil
}

// Export writes all audit entries to w in the given format: "jsonl"
// (default), "json", or "csv".
func (a *AuditLog) Export(w io.Writer, format string) error {
	entries, err := a.readAllEntries(0)
	if err != nil {
		return fmt.Errorf("reading entries for export: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)

	case "csv":
		cw := csv.NewWriter(w)
		defer cw.Flush()
		if err := cw.Write([]string{"seq", "ts", "event_kind", "session_id", "tool", "decision", "reason", "rules_evaluated", "elapsed_ms", "hash"}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := cw.Write([]string{
				fmt.Sprintf("%d", e.Seq), e.Timestamp, e.EventKind, e.SessionID,
				e.Tool, e.Decision, e.Reason,
				fmt.Sprintf("%d", e.RulesEvaluated), fmt.Sprintf("%d", e.ElapsedMs), e.Hash,
			}); err != nil {
				return err
			}
		}
		return nil

	case "jsonl", "":
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported export format: %s (use json, jsonl, or csv)", format)
	}
}

// append adds an entry to the audit log, computing its chain fields,
// writing it to the daily JSONL file, and updating the SQLite index.
func (a *AuditLog) append(e Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	e.Seq = a.seq
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	e.PrevHash = a.lastHash
	e.Hash = computeHash(&e)

	if err := a.writeToFile(&e); err != nil {
		slog.Error("audit write failed", "seq", e.Seq, "error", err)
		return
	}
	if a.index != nil {
		a.index.insert(&e)
	}
	a.lastHash = e.Hash
}

// writeToFile appends the entry as a single JSON line to today's JSONL
// file, rotating to a new file if the date has changed.
func (a *AuditLog) writeToFile(e *Entry) error {
	today := time.Now().UTC().Format("2006-01-02")

	if a.file == nil || a.fileDate != today {
		if a.file != nil {
			a.file.Close()
		}
		path := filepath.Join(a.dir, today+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening audit file %s: %w", path, err)
		}
		a.file = f
		a.fileDate = today
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return a.file.Sync()
}

// loadGenesis loads or creates the genesis block that establishes the
// chain. The genesis block has seq=0 and a fixed prev_hash.
func (a *AuditLog) loadGenesis() error {
	genesisPath := filepath.Join(a.dir, "genesis.json")

	data, err := os.ReadFile(genesisPath)
	if err != nil {
		if os.IsNotExist(err) {
			return a.createGenesis(genesisPath)
		}
		return fmt.Errorf("reading genesis: %w", err)
	}

	var genesis Entry
	if err := json.Unmarshal(data, &genesis); err != nil {
		return fmt.Errorf("parsing genesis: %w", err)
	}
	a.lastHash = genesis.Hash
	a.seq = genesis.Seq
	return nil
}

// createGenesis writes the genesis block that starts the hash chain.
func (a *AuditLog) createGenesis(path string) error {
	genesis := Entry{
		Seq:       0,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventKind: "genesis",
		Decision:  "info",
		PrevHash:  "sha256:genesis",
	}
	genesis.Hash = computeHash(&genesis)

	data, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing genesis: %w", err)
	}

	a.lastHash = genesis.Hash
	a.seq = 0
	slog.Debug("audit genesis created", "hash", genesis.Hash)
	return nil
}

// recoverState scans existing JSONL files to find the last seq and
// hash, so the chain continues correctly after a restart.
func (a *AuditLog) recoverState() error {
	files, err := filepath.Glob(filepath.Join(a.dir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("listing audit files: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	lastFile := files[len(files)-1]
	lastEntry, err := readLastEntry(lastFile)
	if err != nil {
		return fmt.Errorf("recovering audit state from %s: %w", lastFile, err)
	}

	if lastEntry != nil {
		a.seq = lastEntry.Seq
		a.lastHash = lastEntry.Hash
		if a.index != nil {
			a.reindex(files)
		}
	}
	return nil
}

// reindex scans JSONL files and inserts any entries missing from the
// SQLite index, recovering from an incomplete index after a crash.
func (a *AuditLog) reindex(files []string) {
	indexLastSeq := a.index.lastSeq()
	for _, file := range files {
		entries, err := readEntriesFromFile(file)
		if err != nil {
			slog.Error("reindex: error reading file", "file", file, "error", err)
			continue
		}
		for _, e := range entries {
			if e.Seq > indexLastSeq {
				a.index.insert(&e)
			}
		}
	}
}

// readLastEntry reads the last non-empty line from a JSONL file.
func readLastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			lastLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if lastLine == "" {
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(lastLine), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// readEntriesFromFile reads all entries from a single JSONL file.
func readEntriesFromFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			slog.Warn("skipping malformed audit entry", "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// readAllEntries reads entries from all JSONL files. If limit > 0,
// returns only the last N entries.
func (a *AuditLog) readAllEntries(limit int) ([]Entry, error) {
	files, err := filepath.Glob(filepath.Join(a.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing audit files: %w", err)
	}

	var all []Entry
	for _, file := range files {
		entries, err := readEntriesFromFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// readAllEntriesFiltered reads all entries and applies filters in
// memory — the fallback path when the SQLite index is unavailable.
func (a *AuditLog) readAllEntriesFiltered(params QueryParams) ([]Entry, error) {
	entries, err := a.readAllEntries(0)
	if err != nil {
		return nil, err
	}

	var filtered []Entry
	for _, e := range entries {
		if params.EventKind != "" && e.EventKind != params.EventKind {
			continue
		}
		if params.Decision != "" && e.Decision != params.Decision {
			continue
		}
		if params.Since != "" && e.Timestamp < params.Since {
			continue
		}
		filtered = append(filtered, e)
	}
	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[len(filtered)-params.Limit:]
	}
	return filtered, nil
}

// readEntriesAfter reads entries with seq > afterSeq from today's file.
func (a *AuditLog) readEntriesAfter(afterSeq uint64) ([]Entry, error) {
	today := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(a.dir, today+".jsonl")

	entries, err := readEntriesFromFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var result []Entry
	for _, e := range entries {
		if e.Seq > afterSeq {
			result = append(result, e)
		}
	}
	return result, nil
}
