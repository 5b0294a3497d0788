// Package plan previews a merge batch against the live CRM without changing it.
package plan

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/reconcile"
)

// Reader is the read-only half of the relationship store.
type Reader interface {
	Exists(ctx context.Context, id domain.RecordID) (bool, error)
	ListAssociations(ctx context.Context, id domain.RecordID, dir domain.Direction) ([]domain.RecordID, error)
}

// Link is one child-to-parent association.
type Link struct {
	Child  domain.RecordID `json:"child" yaml:"child"`
	Parent domain.RecordID `json:"parent" yaml:"parent"`
}

func (l Link) String() string {
	return fmt.Sprintf("child %s -> parent %s", l.Child, l.Parent)
}

// GroupPreview describes what a run would do to one group.
type GroupPreview struct {
	Key      string                   `json:"key" yaml:"key"`
	Current  []domain.EnrichedCompany `json:"current" yaml:"current"`
	Survivor domain.MergeResult       `json:"survivor" yaml:"survivor"`
	Removed  []Link                   `json:"removed" yaml:"removed"`
	Created  []Link                   `json:"created" yaml:"created"`
	Diff     string                   `json:"diff" yaml:"diff"`
}

// Preview is the result of Build.
type Preview struct {
	Groups  []GroupPreview         `json:"groups" yaml:"groups"`
	Missing []domain.MissingRecord `json:"missing" yaml:"missing"`
}

// MergeCount returns the number of merge calls a run would make.
func (p *Preview) MergeCount() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Survivor.Merges)
	}
	return n
}

// Build checks and enriches every group the way a run would, then projects the
// survivor. Groups a run would skip end up in Missing.
func Build(ctx context.Context, r Reader, p *reconcile.Plan) (*Preview, error) {
	out := &Preview{
		Groups:  []GroupPreview{},
		Missing: []domain.MissingRecord{},
	}
	store := readOnly{r}
	processed := make(map[domain.RecordID]struct{})

	for _, group := range p.Groups {
		missing, err := check(ctx, r, group, processed)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", group.Key, err)
		}
		if missing != nil {
			out.Missing = append(out.Missing, *missing)
			continue
		}
		for _, in := range group.Instructions {
			processed[in.ID] = struct{}{}
		}

		companies, err := reconcile.Enrich(ctx, store, group)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", group.Key, err)
		}
		survivor, err := reconcile.Project(group.Key, companies)
		if err != nil {
			return nil, err
		}

		gp := GroupPreview{
			Key:      group.Key,
			Current:  companies,
			Survivor: survivor,
			Removed:  currentLinks(companies),
			Created:  projectedLinks(survivor),
		}
		gp.Diff = diff(group.Key, gp.Removed, gp.Created)
		out.Groups = append(out.Groups, gp)
	}
	return out, nil
}

func check(ctx context.Context, r Reader, group domain.Group, processed map[domain.RecordID]struct{}) (*domain.MissingRecord, error) {
	for _, in := range group.Instructions {
		if _, seen := processed[in.ID]; seen {
			return &domain.MissingRecord{Key: group.Key, ID: in.ID, Reason: domain.ReasonAlreadyProcessed}, nil
		}
		ok, err := r.Exists(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &domain.MissingRecord{Key: group.Key, ID: in.ID, Reason: domain.ReasonNotFound}, nil
		}
	}
	return nil, nil
}

func currentLinks(companies []domain.EnrichedCompany) []Link {
	links := []Link{}
	for _, c := range companies {
		for _, child := range c.ChildIDs {
			links = append(links, Link{Child: child, Parent: c.ID})
		}
		for _, parent := range c.ParentIDs {
			links = append(links, Link{Child: c.ID, Parent: parent})
		}
	}
	return links
}

func projectedLinks(survivor domain.MergeResult) []Link {
	links := []Link{}
	for _, child := range survivor.ChildIDs {
		links = append(links, Link{Child: child, Parent: survivor.ID})
	}
	if parent, ok := survivor.ParentValue(); ok {
		links = append(links, Link{Child: survivor.ID, Parent: parent})
	}
	return links
}

func diff(key string, before, after []Link) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(before),
		B:        lines(after),
		FromFile: key + " (current)",
		ToFile:   key + " (after merge)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}

func lines(links []Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.String()+"\n")
	}
	return out
}

// readOnly satisfies reconcile.RelationshipStore for Enrich, refusing writes.
type readOnly struct {
	Reader
}

func (readOnly) DeleteAssociation(context.Context, domain.RecordID, domain.RecordID, domain.Direction) error {
	return fmt.Errorf("plan is read-only")
}

func (readOnly) CreateAssociation(context.Context, domain.RecordID, domain.RecordID, domain.Direction) error {
	return fmt.Errorf("plan is read-only")
}
