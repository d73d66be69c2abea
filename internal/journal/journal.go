// Package journal persists a durable audit trail of operations and the
// decisions that shaped them. Rows carry the literal wire forms of the
// decision vocabulary, so scripts and tests can match on the exact
// strings the protocol defines.
package journal

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/task"
)

// Journal is a SQLite-backed operation journal. It implements
// policy.Recorder; decisions are written through immediately, they
// arrive at human pace.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) a journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS operations (
			id       TEXT PRIMARY KEY,
			job      TEXT NOT NULL,
			op       TEXT NOT NULL,
			sources  TEXT NOT NULL,
			dest     TEXT NOT NULL,
			started  INTEGER NOT NULL,
			finished INTEGER,
			outcome  TEXT
		);
		CREATE TABLE IF NOT EXISTS decisions (
			seq     INTEGER PRIMARY KEY AUTOINCREMENT,
			task    TEXT NOT NULL,
			at      INTEGER NOT NULL,
			kind    TEXT NOT NULL,
			tag     TEXT NOT NULL,
			for_all INTEGER NOT NULL,
			src     TEXT,
			dst     TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Begin records the start of an operation.
func (j *Journal) Begin(taskID string, req task.Request) error {
	_, err := j.db.Exec(
		"INSERT INTO operations (id, job, op, sources, dest, started) VALUES (?, ?, ?, ?, ?, ?)",
		taskID, JobID(req.Sources, req.Dest), req.Op.String(),
		strings.Join(req.Sources, "\n"), req.Dest, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	return nil
}

// Finish records the terminal state of an operation.
func (j *Journal) Finish(taskID string, outcome task.State) error {
	_, err := j.db.Exec(
		"UPDATE operations SET finished = ?, outcome = ? WHERE id = ?",
		time.Now().UnixNano(), outcome.String(), taskID,
	)
	if err != nil {
		return fmt.Errorf("journal finish: %w", err)
	}
	return nil
}

// Record writes one routed decision. Memoized blanket answers are
// recorded each time they are applied, so the journal replays the full
// sequence of questions the operation raised.
func (j *Journal) Record(taskID string, reason task.Reason, src, dst string, d decision.Decision) {
	forAll := 0
	if d.ForAll {
		forAll = 1
	}
	_, err := j.db.Exec(
		"INSERT INTO decisions (task, at, kind, tag, for_all, src, dst) VALUES (?, ?, ?, ?, ?, ?, ?)",
		taskID, time.Now().UnixNano(), reason.Kind().String(), d.Tag.String(), forAll, src, dst,
	)
	if err != nil {
		// The decision already took effect; a failed audit write must
		// not stall the operation.
		slog.Error("journal record failed", "task", taskID, "kind", reason.Kind(), "err", err)
	}
}

// DecisionRow is one journaled decision, in wire form.
type DecisionRow struct {
	Task   string
	Kind   string
	Tag    string
	ForAll bool
	Src    string
	Dst    string
}

// Decisions returns the journaled decisions for a task, oldest first.
func (j *Journal) Decisions(taskID string) ([]DecisionRow, error) {
	rows, err := j.db.Query(
		"SELECT task, kind, tag, for_all, src, dst FROM decisions WHERE task = ? ORDER BY seq",
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var (
			r      DecisionRow
			forAll int
		)
		if err := rows.Scan(&r.Task, &r.Kind, &r.Tag, &forAll, &r.Src, &r.Dst); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		r.ForAll = forAll != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// OperationRow is one journaled operation.
type OperationRow struct {
	ID       string
	Job      string
	Op       string
	Sources  []string
	Dest     string
	Outcome  string
	Finished bool
}

// Operations returns all journaled operations, oldest first.
func (j *Journal) Operations() ([]OperationRow, error) {
	rows, err := j.db.Query(
		"SELECT id, job, op, sources, dest, finished, outcome FROM operations ORDER BY started",
	)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var out []OperationRow
	for rows.Next() {
		var (
			r        OperationRow
			sources  string
			finished sql.NullInt64
			outcome  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Job, &r.Op, &sources, &r.Dest, &finished, &outcome); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		r.Sources = strings.Split(sources, "\n")
		r.Finished = finished.Valid
		r.Outcome = outcome.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the path to the journal database file.
func (j *Journal) Path() string {
	return j.path
}

// JobID computes a deterministic identifier for a source/destination
// pairing, used to correlate repeated runs of the same operation.
func JobID(sources []string, dest string) string {
	h := blake3.New()
	for _, src := range sources {
		h.Write([]byte(src))
		h.Write([]byte{0})
	}
	h.Write([]byte(dest))
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// DefaultPath returns the journal location for a job when none is
// configured: $XDG_RUNTIME_DIR/ferry/<job-id>.db or
// /tmp/ferry-<job-id>.db.
func DefaultPath(sources []string, dest string) string {
	jobID := JobID(sources, dest)
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "ferry", jobID+".db")
	}
	return filepath.Join(os.TempDir(), "ferry-"+jobID+".db")
}
