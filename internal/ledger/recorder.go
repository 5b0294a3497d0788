package ledger

import (
	"sync"

	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/events"
	"github.com/lherron/hsmerge/internal/reconcile"
)

// Recorder persists engine events for one run as they are emitted. Writes are
// not batched, so a run that aborts still leaves every step before the abort.
type Recorder struct {
	runUUID string
	ew      *events.Writer

	mu  sync.Mutex
	err error
}

// Recorder returns an event sink bound to a run.
func (l *Ledger) Recorder(runUUID string) *Recorder {
	return &Recorder{runUUID: runUUID, ew: l.writer()}
}

func (r *Recorder) Emit(ev reconcile.Event) {
	row := &domain.Event{
		RunUUID:  r.runUUID,
		Type:     string(ev.Type),
		Key:      optional(ev.Key),
		RecordID: optional(string(ev.ID)),
		TargetID: optional(string(ev.Target)),
		Message:  optional(ev.Message),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ew.LogEvent(nil, row); err != nil {
		r.keep(err)
		return
	}
	if ev.Type == reconcile.EventCompanyMerged {
		pair := domain.MergePair{MergedID: ev.ID, IntoID: ev.Target}
		if err := r.ew.LogMerge(nil, r.runUUID, ev.Key, pair); err != nil {
			r.keep(err)
		}
	}
}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
