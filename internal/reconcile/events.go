package reconcile

import "github.com/lherron/hsmerge/internal/domain"

// EventType names a step of a reconciliation run.
type EventType string

const (
	EventValidated          EventType = "batch.validated"
	EventValidationFailed   EventType = "batch.validation_failed"
	EventGroupStarted       EventType = "group.started"
	EventGroupSkipped       EventType = "group.skipped"
	EventGroupEnriched      EventType = "group.enriched"
	EventAssociationDeleted EventType = "association.deleted"
	EventCompanyMerged      EventType = "company.merged"
	EventAssociationCreated EventType = "association.created"
	EventGroupCompleted     EventType = "group.completed"
	EventGroupAborted       EventType = "group.aborted"
)

// Event is a structured record of something the engine did.
type Event struct {
	Type      EventType
	Key       string
	ID        domain.RecordID
	Target    domain.RecordID
	Direction domain.Direction
	Message   string
	Err       error
}

// Sink receives engine events. Implementations decide format and destination.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) {
	f(ev)
}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}
