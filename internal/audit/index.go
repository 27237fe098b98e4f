package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
)

// sqliteIndex provides fast queries over the audit log using SQLite.
// The JSONL files are the source of truth; the SQLite index is a
// queryable projection that can be rebuilt from them.
type sqliteIndex struct {
	db *sql.DB
}

// openIndex opens (or creates) the SQLite index database, creating the
// entries table and indexes if they don't exist.
func openIndex(path string) (*sqliteIndex, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			seq             INTEGER PRIMARY KEY,
			ts              TEXT NOT NULL,
			event_kind      TEXT NOT NULL DEFAULT '',
			session_id      TEXT NOT NULL DEFAULT '',
			tool            TEXT NOT NULL DEFAULT '',
			matched_rules   TEXT NOT NULL DEFAULT '',
			decision        TEXT NOT NULL DEFAULT '',
			reason          TEXT NOT NULL DEFAULT '',
			rules_evaluated INTEGER NOT NULL DEFAULT 0,
			elapsed_ms      INTEGER NOT NULL DEFAULT 0,
			command         TEXT NOT NULL DEFAULT '',
			path            TEXT NOT NULL DEFAULT '',
			hash            TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_event_kind ON entries(event_kind);
		CREATE INDEX IF NOT EXISTS idx_decision ON entries(decision);
		CREATE INDEX IF NOT EXISTS idx_ts ON entries(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	return &sqliteIndex{db: db}, nil
}

// insert adds an entry to the SQLite index. Non-blocking — errors are
// logged but don't affect the primary JSONL audit log.
func (idx *sqliteIndex) insert(e *Entry) {
	rulesJSON, _ := json.Marshal(e.MatchedRules)

	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO entries (seq, ts, event_kind, session_id, tool, matched_rules, decision, reason, rules_evaluated, elapsed_ms, command, path, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.Timestamp, e.EventKind, e.SessionID, e.Tool, string(rulesJSON),
		e.Decision, e.Reason, e.RulesEvaluated, e.ElapsedMs, e.Command, e.Path, e.Hash,
	)
	if err != nil {
		slog.Error("sqlite index insert failed", "seq", e.Seq, "error", err)
	}
}

// query retrieves entries from the SQLite index matching params.
func (idx *sqliteIndex) query(params QueryParams) ([]Entry, error) {
	query := "SELECT seq, ts, event_kind, session_id, tool, matched_rules, decision, reason, rules_evaluated, elapsed_ms, command, path, hash FROM entries WHERE 1=1"
	var args []any

	if params.EventKind != "" {
		query += " AND event_kind = ?"
		args = append(args, params.EventKind)
	}
	if params.Decision != "" {
		query += " AND decision = ?"
		args = append(args, params.Decision)
	}
	if params.Since != "" {
		query += " AND ts >= ?"
		args = append(args, params.Since)
	}

	query += " ORDER BY seq DESC"
	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var rulesJSON string
		err := rows.Scan(
			&e.Seq, &e.Timestamp, &e.EventKind, &e.SessionID, &e.Tool, &rulesJSON,
			&e.Decision, &e.Reason, &e.RulesEvaluated, &e.ElapsedMs, &e.Command, &e.Path, &e.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning sqlite row: %w", err)
		}
		if rulesJSON != "" && rulesJSON != "null" {
			_ = json.Unmarshal([]byte(rulesJSON), &e.MatchedRules)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// tail returns the N most recent entries from the index.
func (idx *sqliteIndex) tail(limit int) ([]Entry, error) {
	return idx.query(QueryParams{Limit: limit})
}

// lastSeq returns the highest sequence number in the index, or 0 if
// the index is empty.
func (idx *sqliteIndex) lastSeq() uint64 {
	var seq sql.NullInt64
	err := idx.db.QueryRow("SELECT MAX(seq) FROM entries").Scan(&seq)
	if err != nil || !seq.Valid {
		return 0
	}
	return uint64(seq.Int64)
}

// close closes the SQLite database connection.
func (idx *sqliteIndex) close() error {
	return idx.db.Close()
}
