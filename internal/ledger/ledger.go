// Package ledger keeps a durable history of merge runs in SQLite: one row per
// run, every engine event as it happens and every merge that was executed.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/hsmerge/internal/db"
	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/events"
)

// ErrRunNotFound is returned when a run reference matches nothing.
var ErrRunNotFound = errors.New("run not found")

// Artifact kinds
const (
	ArtifactMissing  = "missing"
	ArtifactSnapshot = "snapshot"
	ArtifactResults  = "results"
)

// Ledger wraps the run database.
type Ledger struct {
	db  *db.DB
	now func() time.Time
}

// Open opens (and migrates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return New(database), nil
}

// New wraps an already migrated database.
func New(database *db.DB) *Ledger {
	return &Ledger{db: database, now: time.Now}
}

// DB returns the underlying database connection.
func (l *Ledger) DB() *db.DB {
	return l.db
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// MigrationStatus reports applied and pending schema migrations.
func (l *Ledger) MigrationStatus() (applied, pending []string, err error) {
	return l.db.MigrationStatus()
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (l *Ledger) withTx(fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := l.writer()
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

func (l *Ledger) writer() *events.Writer {
	return events.NewWriter(l.db.DB)
}

// StartRun inserts a running run and returns it.
func (l *Ledger) StartRun(mode domain.RunMode, inputPath string) (*domain.Run, error) {
	run := &domain.Run{
		UUID:      uuid.New().String(),
		Mode:      mode,
		InputPath: inputPath,
		Status:    domain.RunStatusRunning,
		StartedAt: l.now().UTC(),
	}

	err := l.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		_, err := tx.Exec(`
			INSERT INTO runs (uuid, mode, input_path, status, started_at)
			VALUES (?, ?, ?, ?, ?)
		`, run.UUID, run.Mode, run.InputPath, run.Status, formatTime(run.StartedAt))
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		return ew.LogRunStarted(tx, run)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Summary carries the counters stored on a finished run.
type Summary struct {
	Groups  int
	Merged  int
	Missing int
}

// FinishRun marks a run completed.
func (l *Ledger) FinishRun(runUUID string, s Summary) (*domain.Run, error) {
	return l.closeRun(runUUID, domain.RunStatusCompleted, s, nil)
}

// FailRun marks a run failed with the error that aborted it.
func (l *Ledger) FailRun(runUUID string, s Summary, cause error) (*domain.Run, error) {
	var msg *string
	if cause != nil {
		m := cause.Error()
		msg = &m
	}
	return l.closeRun(runUUID, domain.RunStatusFailed, s, msg)
}

func (l *Ledger) closeRun(runUUID string, status domain.RunStatus, s Summary, errMsg *string) (*domain.Run, error) {
	finished := l.now().UTC()
	err := l.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(`
			UPDATE runs
			SET status = ?, groups_total = ?, merged = ?, missing = ?, error = ?, finished_at = ?
			WHERE uuid = ? AND status = 'running'
		`, status, s.Groups, s.Merged, s.Missing, errMsg, formatTime(finished), runUUID)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s is not running", runUUID)
		}

		run, err := getRun(tx, runUUID)
		if err != nil {
			return err
		}
		return ew.LogRunFinished(tx, run)
	})
	if err != nil {
		return nil, err
	}
	return l.GetRun(runUUID)
}

// RecordArtifacts stores the artifact paths written for a run.
func (l *Ledger) RecordArtifacts(runUUID string, paths map[string]string) error {
	return l.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		for kind, path := range paths {
			_, err := tx.Exec(`
				INSERT INTO run_artifacts (run_uuid, kind, path) VALUES (?, ?, ?)
				ON CONFLICT (run_uuid, kind) DO UPDATE SET path = excluded.path
			`, runUUID, kind, path)
			if err != nil {
				return fmt.Errorf("failed to record %s artifact: %w", kind, err)
			}
		}
		return nil
	})
}

// Artifacts returns the artifact paths of a run keyed by kind.
func (l *Ledger) Artifacts(runUUID string) (map[string]string, error) {
	rows, err := l.db.Query(`SELECT kind, path FROM run_artifacts WHERE run_uuid = ?`, runUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var kind, path string
		if err := rows.Scan(&kind, &path); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out[kind] = path
	}
	return out, rows.Err()
}

const runColumns = `uuid, mode, input_path, status, groups_total, merged, missing, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var startedAt string
	var finishedAt sql.NullString
	var errMsg sql.NullString
	if err := row.Scan(&run.UUID, &run.Mode, &run.InputPath, &run.Status, &run.Groups, &run.Merged,
		&run.Missing, &errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	run.StartedAt = t
	if finishedAt.Valid {
		f, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}
		run.FinishedAt = &f
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	return &run, nil
}

func getRun(q querier, runUUID string) (*domain.Run, error) {
	run, err := scanRun(q.QueryRow(`SELECT `+runColumns+` FROM runs WHERE uuid = ?`, runUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runUUID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// GetRun resolves a run by full UUID or unique UUID prefix.
func (l *Ledger) GetRun(ref string) (*domain.Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrRunNotFound)
	}

	rows, err := l.db.Query(`SELECT uuid FROM runs WHERE uuid = ? OR uuid LIKE ? ESCAPE '\' ORDER BY uuid LIMIT 2`,
		ref, escapeLike(ref)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run: %w", err)
	}
	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if id == ref {
			rows.Close()
			return getRun(l.db, id)
		}
		matches = append(matches, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, ref)
	case 1:
		return getRun(l.db, matches[0])
	default:
		return nil, fmt.Errorf("run reference %q is ambiguous", ref)
	}
}

// ListRuns returns the most recent runs first. A limit of zero returns all.
func (l *Ledger) ListRuns(limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, uuid`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RunEvents returns the events of a run in the order they were recorded.
func (l *Ledger) RunEvents(runUUID string) ([]domain.Event, error) {
	rows, err := l.db.Query(`
		SELECT id, run_uuid, event_type, group_key, record_id, target_id, message, created_at
		FROM run_events WHERE run_uuid = ? ORDER BY id
	`, runUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := []domain.Event{}
	for rows.Next() {
		var ev domain.Event
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.RunUUID, &ev.Type, &ev.Key, &ev.RecordID, &ev.TargetID, &ev.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MergeEntry is one executed merge.
type MergeEntry struct {
	Key              string `json:"key" yaml:"key"`
	domain.MergePair `yaml:",inline"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
}

// RunMerges returns the merges executed by a run in order.
func (l *Ledger) RunMerges(runUUID string) ([]MergeEntry, error) {
	rows, err := l.db.Query(`
		SELECT group_key, merged_company_id, into_company_id, created_at
		FROM merges WHERE run_uuid = ? ORDER BY id
	`, runUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merges: %w", err)
	}
	defer rows.Close()

	out := []MergeEntry{}
	for rows.Next() {
		var m MergeEntry
		var createdAt string
		if err := rows.Scan(&m.Key, &m.MergedID, &m.IntoID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan merge: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(db.TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(db.TimeLayout, s)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
