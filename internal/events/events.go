package events

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lherron/hsmerge/internal/db"
	"github.com/lherron/hsmerge/internal/domain"
)

// Writer handles writing events to the run event log
type Writer struct {
	db  *sql.DB
	now func() time.Time
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db, now: time.Now}
}

// LogEvent writes an event to the run event log. A nil tx writes directly.
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO run_events (run_uuid, event_type, group_key, record_id, target_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = w.now()
	}

	executor := w.getExecutor(tx)
	res, err := executor.Exec(query, event.RunUUID, event.Type, event.Key, event.RecordID, event.TargetID, event.Message,
		createdAt.UTC().Format(db.TimeLayout))
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	return nil
}

// LogMerge records a completed merge call.
func (w *Writer) LogMerge(tx *sql.Tx, runUUID, key string, pair domain.MergePair) error {
	_, err := w.getExecutor(tx).Exec(`
		INSERT INTO merges (run_uuid, group_key, merged_company_id, into_company_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, runUUID, key, string(pair.MergedID), string(pair.IntoID), w.now().UTC().Format(db.TimeLayout))
	if err != nil {
		return fmt.Errorf("failed to write merge: %w", err)
	}
	return nil
}

// LogRunStarted logs the start of a run
func (w *Writer) LogRunStarted(tx *sql.Tx, run *domain.Run) error {
	msg := fmt.Sprintf("%s run of %s", run.Mode, run.InputPath)
	return w.LogEvent(tx, &domain.Event{
		RunUUID: run.UUID,
		Type:    "run.started",
		Message: &msg,
	})
}

// LogRunFinished logs the terminal state of a run
func (w *Writer) LogRunFinished(tx *sql.Tx, run *domain.Run) error {
	msg := fmt.Sprintf("%d groups, %d merged, %d missing", run.Groups, run.Merged, run.Missing)
	if run.Error != nil {
		msg = *run.Error
	}
	return w.LogEvent(tx, &domain.Event{
		RunUUID: run.UUID,
		Type:    "run." + string(run.Status),
		Message: &msg,
	})
}

type executor interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (w *Writer) getExecutor(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return w.db
}
