package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/hsmerge/internal/domain"
)

func TestProject(t *testing.T) {
	tests := []struct {
		name         string
		companies    []domain.EnrichedCompany
		wantChildren []domain.RecordID
		wantParents  []domain.RecordID
		wantParent   domain.RecordID
	}{
		{
			name: "keep parent wins over merged parent",
			companies: []domain.EnrichedCompany{
				{ID: "1", Action: domain.ActionKeep, ParentIDs: []domain.RecordID{"7"}},
				{ID: "2", Action: domain.ActionMerge, ParentIDs: []domain.RecordID{"9"}, ChildIDs: []domain.RecordID{"5"}},
			},
			wantChildren: []domain.RecordID{"5"},
			wantParents:  []domain.RecordID{"7"},
			wantParent:   "7",
		},
		{
			name: "adopts merged parent when keep has none",
			companies: []domain.EnrichedCompany{
				{ID: "1", Action: domain.ActionKeep},
				{ID: "2", Action: domain.ActionMerge, ParentIDs: []domain.RecordID{"9", "10"}},
			},
			wantParents: []domain.RecordID{"9", "10"},
			wantParent:  "9",
		},
		{
			name: "several merge records accumulate children",
			companies: []domain.EnrichedCompany{
				{ID: "2", Action: domain.ActionMerge, ChildIDs: []domain.RecordID{"20"}},
				{ID: "1", Action: domain.ActionKeep, ChildIDs: []domain.RecordID{"10"}},
				{ID: "3", Action: domain.ActionMerge, ChildIDs: []domain.RecordID{"30"}},
			},
			wantChildren: []domain.RecordID{"10", "20", "30"},
		},
		{
			name: "links between group members are dropped",
			companies: []domain.EnrichedCompany{
				{ID: "1", Action: domain.ActionKeep, ChildIDs: []domain.RecordID{"2", "5"}},
				{ID: "2", Action: domain.ActionMerge, ParentIDs: []domain.RecordID{"1"}},
			},
			wantChildren: []domain.RecordID{"5"},
		},
		{
			name: "keep parent inside the group yields to merged parent",
			companies: []domain.EnrichedCompany{
				{ID: "1", Action: domain.ActionKeep, ParentIDs: []domain.RecordID{"2"}},
				{ID: "2", Action: domain.ActionMerge, ChildIDs: []domain.RecordID{"1"}, ParentIDs: []domain.RecordID{"9"}},
			},
			wantParents: []domain.RecordID{"9"},
			wantParent:  "9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Project("k", tt.companies)
			require.NoError(t, err)
			assert.Equal(t, domain.RecordID("1"), r.ID)
			assert.ElementsMatch(t, tt.wantChildren, r.ChildIDs)
			assert.ElementsMatch(t, tt.wantParents, r.ParentIDs)
			parent, ok := r.ParentValue()
			assert.Equal(t, tt.wantParent != "", ok)
			assert.Equal(t, tt.wantParent, parent)
		})
	}
}

func TestProject_DoesNotMutateInput(t *testing.T) {
	keep := domain.EnrichedCompany{ID: "1", Action: domain.ActionKeep, ChildIDs: []domain.RecordID{"10"}}
	companies := []domain.EnrichedCompany{keep, {ID: "2", Action: domain.ActionMerge, ChildIDs: []domain.RecordID{"20"}}}

	_, err := Project("k", companies)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecordID{"10"}, companies[0].ChildIDs)
}

func TestProject_RequiresSingleKeep(t *testing.T) {
	_, err := Project("k", []domain.EnrichedCompany{
		{ID: "1", Action: domain.ActionMerge},
		{ID: "2", Action: domain.ActionMerge},
	})
	require.Error(t, err)

	_, err = Project("k", []domain.EnrichedCompany{
		{ID: "1", Action: domain.ActionKeep},
		{ID: "2", Action: domain.ActionKeep},
	})
	require.Error(t, err)
}
