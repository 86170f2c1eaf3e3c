// Package store persists the audit trail of reconciliation runs: the breaks
// the matcher emitted and the safeguard decisions taken on them. It is a
// collaborator of the core; the match and safeguard packages never import it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/martegra/divrecon/internal/match"
	"github.com/martegra/divrecon/internal/safeguard"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	clean_matches INTEGER NOT NULL,
	load_errors INTEGER NOT NULL,
	auto_fixable INTEGER,
	human_required INTEGER,
	safeguard_overrides INTEGER
);

CREATE TABLE IF NOT EXISTS breaks (
	run_id TEXT NOT NULL,
	break_id INTEGER NOT NULL,
	isin TEXT NOT NULL,
	custodian TEXT,
	type TEXT NOT NULL,
	ex_date TEXT,
	pay_date TEXT,
	note TEXT,
	field_deltas TEXT,
	PRIMARY KEY (run_id, break_id),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	break_id INTEGER NOT NULL,
	auto_fixable INTEGER NOT NULL,
	overridden INTEGER NOT NULL,
	override_reason TEXT,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// Store wraps the sqlite database holding the audit trail.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite file and ensures the tables exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// InsertRun records a completed matching pass and its breaks in one
// transaction. Runs are write-once; decisions are attached later.
func (s *Store) InsertRun(ctx context.Context, runID string, createdAt time.Time, cleanMatches, loadErrors int, breaks []match.Break) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, clean_matches, load_errors) VALUES (?, ?, ?, ?)`,
		runID, createdAt.UTC().Format(time.RFC3339Nano), cleanMatches, loadErrors,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	for _, b := range breaks {
		deltas, err := json.Marshal(b.FieldDeltas)
		if err != nil {
			return fmt.Errorf("marshal field deltas for break %d: %w", b.BreakID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO breaks (run_id, break_id, isin, custodian, type, ex_date, pay_date, note, field_deltas)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, b.BreakID, b.ISIN, b.Custodian, string(b.Type), b.ExDate, b.PayDate, b.Note, string(deltas),
		); err != nil {
			return fmt.Errorf("insert break %d: %w", b.BreakID, err)
		}
	}
	return tx.Commit()
}

// InsertDecisions attaches the safeguard outcome to a run, preserving the
// decision order, and stamps the derived summary onto the run row.
func (s *Store) InsertDecisions(ctx context.Context, runID string, decisions []safeguard.Decision, summary safeguard.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, d := range decisions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO decisions (run_id, seq, break_id, auto_fixable, overridden, override_reason)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, d.BreakID, d.AutoFixable, d.Overridden, d.OverrideReason,
		); err != nil {
			return fmt.Errorf("insert decision %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET auto_fixable = ?, human_required = ?, safeguard_overrides = ? WHERE run_id = ?`,
		summary.AutoFixable, summary.HumanRequired, summary.SafeguardOverrides, runID,
	); err != nil {
		return fmt.Errorf("update run summary %s: %w", runID, err)
	}
	return tx.Commit()
}

// StoredRun is one run read back from the audit trail.
type StoredRun struct {
	RunID        string               `json:"run_id"`
	CreatedAt    time.Time            `json:"created_at"`
	CleanMatches int                  `json:"clean_matches"`
	LoadErrors   int                  `json:"load_errors"`
	Breaks       []match.Break        `json:"breaks"`
	Decisions    []safeguard.Decision `json:"decisions,omitempty"`
	Summary      *safeguard.Summary   `json:"summary,omitempty"`
}

// GetRun reads one run with its breaks and decisions.
// Returns sql.ErrNoRows when the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*StoredRun, error) {
	run := &StoredRun{RunID: runID}
	var createdAt string
	var autoFixable, humanRequired, overrides sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, clean_matches, load_errors, auto_fixable, human_required, safeguard_overrides
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&createdAt, &run.CleanMatches, &run.LoadErrors, &autoFixable, &humanRequired, &overrides)
	if err != nil {
		return nil, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if autoFixable.Valid {
		run.Summary = &safeguard.Summary{
			AutoFixable:        int(autoFixable.Int64),
			HumanRequired:      int(humanRequired.Int64),
			SafeguardOverrides: int(overrides.Int64),
		}
	}

	if run.Breaks, err = s.runBreaks(ctx, runID); err != nil {
		return nil, err
	}
	if run.Decisions, err = s.runDecisions(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) runBreaks(ctx context.Context, runID string) ([]match.Break, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT break_id, isin, custodian, type, ex_date, pay_date, note, field_deltas
		 FROM breaks WHERE run_id = ? ORDER BY break_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query breaks %s: %w", runID, err)
	}
	defer rows.Close()

	var breaks []match.Break
	for rows.Next() {
		var b match.Break
		var typ, deltas string
		if err := rows.Scan(&b.BreakID, &b.ISIN, &b.Custodian, &typ, &b.ExDate, &b.PayDate, &b.Note, &deltas); err != nil {
			return nil, fmt.Errorf("scan break: %w", err)
		}
		b.Type = match.BreakType(typ)
		if deltas != "" && deltas != "null" {
			if err := json.Unmarshal([]byte(deltas), &b.FieldDeltas); err != nil {
				return nil, fmt.Errorf("unmarshal field deltas for break %d: %w", b.BreakID, err)
			}
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

func (s *Store) runDecisions(ctx context.Context, runID string) ([]safeguard.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT break_id, auto_fixable, overridden, override_reason
		 FROM decisions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions %s: %w", runID, err)
	}
	defer rows.Close()

	var decisions []safeguard.Decision
	for rows.Next() {
		var d safeguard.Decision
		if err := rows.Scan(&d.BreakID, &d.AutoFixable, &d.Overridden, &d.OverrideReason); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
