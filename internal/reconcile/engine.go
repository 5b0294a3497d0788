// Package reconcile merges duplicate CRM companies group by group while
// preserving their parent/child associations.
//
// A run is strictly sequential. For each group the engine checks that every
// record still exists, snapshots the records' associations, removes them,
// merges the merge-role record into the keep record and finally recreates the
// associations against the survivor. A group referencing a missing record is
// skipped and reported; any other remote failure aborts the run.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/lherron/hsmerge/internal/domain"
)

// RelationshipStore reads and edits company associations on the CRM.
type RelationshipStore interface {
	// Exists reports whether the record is present. A plain not-found is
	// (false, nil); an error means the CRM could not be asked.
	Exists(ctx context.Context, id domain.RecordID) (bool, error)
	ListAssociations(ctx context.Context, id domain.RecordID, dir domain.Direction) ([]domain.RecordID, error)
	DeleteAssociation(ctx context.Context, from, to domain.RecordID, dir domain.Direction) error
	CreateAssociation(ctx context.Context, from, to domain.RecordID, dir domain.Direction) error
}

// MergeExecutor merges one CRM record into another.
type MergeExecutor interface {
	Merge(ctx context.Context, source, target domain.RecordID) error
}

// Engine runs reconciliation batches. It holds no per-run state and may be
// reused for several runs, one at a time.
type Engine struct {
	store  RelationshipStore
	merger MergeExecutor
	sink   Sink
}

// New creates an engine. A nil sink discards events.
func New(store RelationshipStore, merger MergeExecutor, sink Sink) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{store: store, merger: merger, sink: sink}
}

// Plan is a validated, grouped batch ready to run.
type Plan struct {
	Instructions []domain.MergeInstruction
	Groups       []domain.Group
}

// RecordCount returns the number of instructions in the plan.
func (p *Plan) RecordCount() int {
	return len(p.Instructions)
}

// Outcome collects everything a run produced.
type Outcome struct {
	Missing   []domain.MissingRecord
	Snapshots [][]domain.EnrichedCompany
	Results   [][]domain.MergeResult
}

// MergeCount returns the number of merge calls that succeeded.
func (o *Outcome) MergeCount() int {
	n := 0
	for _, group := range o.Results {
		for _, r := range group {
			n += len(r.Merges)
		}
	}
	return n
}

// Prepare validates the batch and groups it by key. No remote call is made.
func (e *Engine) Prepare(batch []domain.MergeInstruction) (*Plan, error) {
	if err := domain.ValidateBatch(batch); err != nil {
		e.sink.Emit(Event{Type: EventValidationFailed, Message: err.Error(), Err: err})
		return nil, err
	}
	groups := domain.GroupByKey(batch)
	e.sink.Emit(Event{
		Type:    EventValidated,
		Message: fmt.Sprintf("%d records in %d groups", len(batch), len(groups)),
	})
	return &Plan{Instructions: batch, Groups: groups}, nil
}

// Run processes every group of the plan in order. On a fatal error the
// partial outcome is returned together with the error.
func (e *Engine) Run(ctx context.Context, plan *Plan) (*Outcome, error) {
	out := &Outcome{
		Missing:   []domain.MissingRecord{},
		Snapshots: [][]domain.EnrichedCompany{},
		Results:   [][]domain.MergeResult{},
	}
	processed := make(map[domain.RecordID]struct{})

	for _, group := range plan.Groups {
		e.sink.Emit(Event{Type: EventGroupStarted, Key: group.Key})

		if err := e.checkGroup(ctx, group, processed); err != nil {
			var missing *domain.MissingRecordError
			if errors.As(err, &missing) {
				out.Missing = append(out.Missing, missing.Record())
				e.sink.Emit(Event{Type: EventGroupSkipped, Key: group.Key, ID: missing.ID, Message: missing.Reason})
				continue
			}
			return out, e.fail(group.Key, err)
		}
		for _, in := range group.Instructions {
			processed[in.ID] = struct{}{}
		}

		snapshot, result, err := e.processGroup(ctx, group)
		if err != nil {
			return out, e.fail(group.Key, err)
		}
		out.Snapshots = append(out.Snapshots, snapshot)
		out.Results = append(out.Results, []domain.MergeResult{result})
		e.sink.Emit(Event{Type: EventGroupCompleted, Key: group.Key, ID: result.ID})
	}

	return out, nil
}

func (e *Engine) fail(key string, err error) error {
	e.sink.Emit(Event{Type: EventGroupAborted, Key: key, Message: err.Error(), Err: err})
	return fmt.Errorf("key %s: %w", key, err)
}

// checkGroup returns a *domain.MissingRecordError for the first record that was
// already processed in this run or no longer exists.
func (e *Engine) checkGroup(ctx context.Context, group domain.Group, processed map[domain.RecordID]struct{}) error {
	for _, in := range group.Instructions {
		if _, seen := processed[in.ID]; seen {
			return &domain.MissingRecordError{Key: group.Key, ID: in.ID, Reason: domain.ReasonAlreadyProcessed}
		}
		ok, err := e.store.Exists(ctx, in.ID)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.MissingRecordError{Key: group.Key, ID: in.ID, Reason: domain.ReasonNotFound}
		}
	}
	return nil
}

func (e *Engine) processGroup(ctx context.Context, group domain.Group) ([]domain.EnrichedCompany, domain.MergeResult, error) {
	companies, err := Enrich(ctx, e.store, group)
	if err != nil {
		return nil, domain.MergeResult{}, err
	}
	snapshot := make([]domain.EnrichedCompany, len(companies))
	for i, c := range companies {
		snapshot[i] = c.Clone()
	}
	e.sink.Emit(Event{Type: EventGroupEnriched, Key: group.Key, Message: fmt.Sprintf("%d companies", len(companies))})

	if err := e.unlink(ctx, group.Key, companies); err != nil {
		return snapshot, domain.MergeResult{}, err
	}

	result, err := absorb(group.Key, companies, func(source, target domain.RecordID) error {
		if err := e.merger.Merge(ctx, source, target); err != nil {
			return err
		}
		e.sink.Emit(Event{Type: EventCompanyMerged, Key: group.Key, ID: source, Target: target})
		return nil
	})
	if err != nil {
		return snapshot, result, err
	}

	if err := e.relink(ctx, group.Key, result); err != nil {
		return snapshot, result, err
	}
	return snapshot, result, nil
}

// Enrich fetches the current children and parents of every record in the
// group. It only reads from the store.
func Enrich(ctx context.Context, store RelationshipStore, group domain.Group) ([]domain.EnrichedCompany, error) {
	companies := make([]domain.EnrichedCompany, 0, len(group.Instructions))
	for _, in := range group.Instructions {
		children, err := store.ListAssociations(ctx, in.ID, domain.ChildrenOf)
		if err != nil {
			return nil, err
		}
		parents, err := store.ListAssociations(ctx, in.ID, domain.ParentsOf)
		if err != nil {
			return nil, err
		}
		companies = append(companies, domain.EnrichedCompany{
			ID:        in.ID,
			Name:      in.Name,
			Key:       in.Key,
			Action:    in.Action,
			ChildIDs:  nonNil(children),
			ParentIDs: nonNil(parents),
		})
	}
	return companies, nil
}

// unlink removes every association of every company in the group, the keep
// record included, so relinking starts from an empty state. A link between
// two members of the group is seen from both ends but deleted once.
func (e *Engine) unlink(ctx context.Context, key string, companies []domain.EnrichedCompany) error {
	deleted := make(map[[2]domain.RecordID]struct{})
	del := func(child, parent domain.RecordID) error {
		pair := [2]domain.RecordID{child, parent}
		if _, ok := deleted[pair]; ok {
			return nil
		}
		if err := e.store.DeleteAssociation(ctx, child, parent, domain.ParentsOf); err != nil {
			return err
		}
		deleted[pair] = struct{}{}
		e.sink.Emit(Event{Type: EventAssociationDeleted, Key: key, ID: child, Target: parent, Direction: domain.ParentsOf})
		return nil
	}
	for _, c := range companies {
		for _, child := range c.ChildIDs {
			if err := del(child, c.ID); err != nil {
				return err
			}
		}
		for _, parent := range c.ParentIDs {
			if err := del(c.ID, parent); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) relink(ctx context.Context, key string, survivor domain.MergeResult) error {
	if survivor.ID == "" || survivor.Action == domain.ActionMerge {
		return nil
	}
	for _, child := range survivor.ChildIDs {
		if err := e.store.CreateAssociation(ctx, child, survivor.ID, domain.ParentsOf); err != nil {
			return err
		}
		e.sink.Emit(Event{Type: EventAssociationCreated, Key: key, ID: child, Target: survivor.ID, Direction: domain.ParentsOf})
	}
	parent, ok := survivor.ParentValue()
	if !ok {
		return nil
	}
	if err := e.store.CreateAssociation(ctx, survivor.ID, parent, domain.ParentsOf); err != nil {
		return err
	}
	e.sink.Emit(Event{Type: EventAssociationCreated, Key: key, ID: survivor.ID, Target: parent, Direction: domain.ParentsOf})
	return nil
}

func nonNil(ids []domain.RecordID) []domain.RecordID {
	if ids == nil {
		return []domain.RecordID{}
	}
	return ids
}
