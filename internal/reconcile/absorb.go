package reconcile

import (
	"fmt"

	"github.com/lherron/hsmerge/internal/domain"
)

// roles splits a group's companies into its single keep record and the
// records to be merged into it.
type roles struct {
	keep   domain.EnrichedCompany
	merges []domain.EnrichedCompany
}

func splitRoles(key string, companies []domain.EnrichedCompany) (roles, error) {
	var r roles
	keeps := 0
	for _, c := range companies {
		switch c.Action {
		case domain.ActionKeep:
			r.keep = c
			keeps++
		case domain.ActionMerge:
			r.merges = append(r.merges, c)
		default:
			return roles{}, fmt.Errorf("key %s: company %s has unknown action %q", key, c.ID, c.Action)
		}
	}
	if keeps != 1 {
		return roles{}, fmt.Errorf("key %s: expected exactly one keep record, found %d", key, keeps)
	}
	return r, nil
}

type mergeFunc func(source, target domain.RecordID) error

// absorb folds every merge-role company into the keep company. merge is
// invoked before each fold; a failure stops the fold and is returned as is.
// Associations between members of the group are dropped: after the fold the
// merged records are gone and the survivor cannot be its own parent.
func absorb(key string, companies []domain.EnrichedCompany, merge mergeFunc) (domain.MergeResult, error) {
	r, err := splitRoles(key, companies)
	if err != nil {
		return domain.MergeResult{}, err
	}
	members := make(map[domain.RecordID]struct{}, len(companies))
	for _, c := range companies {
		members[c.ID] = struct{}{}
	}

	result := domain.MergeResult{
		EnrichedCompany: r.keep.Clone(),
		OriginalParent:  outside(members, r.keep.ParentIDs),
		Merges:          []domain.MergePair{},
	}
	result.ChildIDs = outside(members, result.ChildIDs)
	result.ParentIDs = outside(members, result.ParentIDs)

	for _, source := range r.merges {
		if err := merge(source.ID, result.ID); err != nil {
			return result, err
		}
		result.ChildIDs = append(result.ChildIDs, outside(members, source.ChildIDs)...)
		// The keep record's own parent always takes precedence.
		if parents := outside(members, source.ParentIDs); len(parents) > 0 && len(result.OriginalParent) == 0 {
			result.ParentIDs = parents
		}
		result.Merges = append(result.Merges, domain.MergePair{MergedID: source.ID, IntoID: result.ID})
	}

	return result, nil
}

// outside returns the ids not in members, never nil.
func outside(members map[domain.RecordID]struct{}, ids []domain.RecordID) []domain.RecordID {
	out := make([]domain.RecordID, 0, len(ids))
	for _, id := range ids {
		if _, ok := members[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Project computes the survivor a group would produce without touching the
// CRM. It applies the same rules as Run.
func Project(key string, companies []domain.EnrichedCompany) (domain.MergeResult, error) {
	return absorb(key, companies, func(domain.RecordID, domain.RecordID) error { return nil })
}
