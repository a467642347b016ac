// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RUN HISTORY - SQLITE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package provenance

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rtcompress/debug"
	"rtcompress/search"
	"rtcompress/utils"

	_ "github.com/mattn/go-sqlite3"
)

var ErrClosed = errors.New("provenance: recorder closed")

// Recorder appends runs to a SQLite history file.
type Recorder struct {
	db *sql.DB

	insertRunStmt    *sql.Stmt
	insertFilterStmt *sql.Stmt
}

// Run is one row of the history, newest first from Runs.
type Run struct {
	ID            int64
	UUID          string
	Label         string
	CreatedAt     time.Time
	Stats         Stats
	MergedFilters []search.FilterSummary
}

// Open creates or opens the history at path. ":memory:" is accepted.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("provenance db %s: %w", path, err)
	}
	// One connection keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := configureDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("provenance schema: %w", err)
	}

	r := &Recorder{db: db}
	if err := r.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	debug.DropMessage("provenance", "history open at "+path)
	return r, nil
}

func configureDatabase(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func initializeSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid              TEXT NOT NULL UNIQUE,
		label             TEXT NOT NULL,
		created_at        INTEGER NOT NULL,
		status            INTEGER NOT NULL,
		status_name       TEXT NOT NULL,
		state             TEXT NOT NULL,
		best_search_point INTEGER NOT NULL,
		filters           INTEGER NOT NULL,
		candidates        INTEGER NOT NULL,
		rounds            INTEGER NOT NULL,
		attempts          INTEGER NOT NULL,
		failed_attempts   INTEGER NOT NULL,
		timed_out         INTEGER NOT NULL,
		regenerated       INTEGER NOT NULL,
		original_entries  INTEGER NOT NULL,
		loaded_entries    INTEGER NOT NULL,
		merged_filters    INTEGER NOT NULL,
		redundant_packets INTEGER NOT NULL,
		arena_peak_words  INTEGER NOT NULL,
		fingerprint       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS merged_filters (
		run_id            INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq               INTEGER NOT NULL,
		processor_id      INTEGER NOT NULL,
		key               INTEGER NOT NULL,
		n_atoms           INTEGER NOT NULL,
		redundant_packets INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	) WITHOUT ROWID;

	CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
	`
	_, err := db.Exec(schema)
	return err
}

func (r *Recorder) prepareStatements() error {
	var err error
	r.insertRunStmt, err = r.db.Prepare(`
		INSERT INTO runs
		(uuid, label, created_at, status, status_name, state, best_search_point, filters, candidates,
		 rounds, attempts, failed_attempts, timed_out, regenerated, original_entries,
		 loaded_entries, merged_filters, redundant_packets, arena_peak_words, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert run statement: %w", err)
	}
	r.insertFilterStmt, err = r.db.Prepare(`
		INSERT INTO merged_filters
		(run_id, seq, processor_id, key, n_atoms, redundant_packets)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert filter statement: %w", err)
	}
	return nil
}

// Record stores s and its merged filters in one transaction under a fresh
// run UUID and returns the row id.
func (r *Recorder) Record(label string, s Stats) (int64, error) {
	if r.db == nil {
		return 0, ErrClosed
	}
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Stmt(r.insertRunStmt).Exec(
		uuid.New().String(), label, time.Now().Unix(), s.Status, s.StatusName, s.State, s.BestSearchPoint,
		s.Filters, s.Candidates, s.Rounds, s.Attempts, s.FailedAttempts, s.TimedOut,
		s.Regenerated, s.OriginalEntries, s.LoadedEntries, s.MergedFilters,
		int64(s.RedundantPackets), s.ArenaPeakWords, s.Fingerprint,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	ins := tx.Stmt(r.insertFilterStmt)
	for i, f := range s.Merged {
		if _, err := ins.Exec(id, i, f.ProcessorID, f.Key, f.NAtoms, f.RedundantPackets); err != nil {
			return 0, fmt.Errorf("insert merged filter %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	debug.DropMessage("provenance", "recorded run "+utils.Itoa(int(id))+" ("+s.StatusName+")")
	return id, nil
}

// Runs returns up to limit runs, newest first, with their merged filters.
func (r *Recorder) Runs(limit int) ([]Run, error) {
	if r.db == nil {
		return nil, ErrClosed
	}
	rows, err := r.db.Query(`
		SELECT id, uuid, label, created_at, status, status_name, state, best_search_point, filters,
		       candidates, rounds, attempts, failed_attempts, timed_out, regenerated,
		       original_entries, loaded_entries, merged_filters, redundant_packets,
		       arena_peak_words, fingerprint
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			created int64
			rp      int64
			s       = &run.Stats
		)
		if err := rows.Scan(&run.ID, &run.UUID, &run.Label, &created, &s.Status, &s.StatusName, &s.State,
			&s.BestSearchPoint, &s.Filters, &s.Candidates, &s.Rounds, &s.Attempts,
			&s.FailedAttempts, &s.TimedOut, &s.Regenerated, &s.OriginalEntries,
			&s.LoadedEntries, &s.MergedFilters, &rp, &s.ArenaPeakWords, &s.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.CreatedAt = time.Unix(created, 0)
		s.RedundantPackets = uint64(rp)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		if runs[i].MergedFilters, err = r.mergedFilters(runs[i].ID); err != nil {
			return nil, err
		}
		runs[i].Stats.Merged = runs[i].MergedFilters
	}
	return runs, nil
}

func (r *Recorder) mergedFilters(runID int64) ([]search.FilterSummary, error) {
	rows, err := r.db.Query(`
		SELECT processor_id, key, n_atoms, redundant_packets
		FROM merged_filters WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query merged filters: %w", err)
	}
	defer rows.Close()

	var out []search.FilterSummary
	for rows.Next() {
		var f search.FilterSummary
		if err := rows.Scan(&f.ProcessorID, &f.Key, &f.NAtoms, &f.RedundantPackets); err != nil {
			return nil, fmt.Errorf("scan merged filter: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close releases the statements and the database.
func (r *Recorder) Close() error {
	if r.db == nil {
		return nil
	}
	if r.insertRunStmt != nil {
		r.insertRunStmt.Close()
	}
	if r.insertFilterStmt != nil {
		r.insertFilterStmt.Close()
	}
	err := r.db.Close()
	r.db = nil
	return err
}
