package domain

import "time"

// RecordID identifies a company record on the CRM.
type RecordID string

func (id RecordID) String() string {
	return string(id)
}

// Action is the role a record plays inside its group
type Action string

const (
	ActionKeep  Action = "keep"
	ActionMerge Action = "merge"
)

// Valid reports whether the action is one of the recognized values.
func (a Action) Valid() bool {
	return a == ActionKeep || a == ActionMerge
}

// Direction selects one side of the company parent/child relationship.
type Direction string

const (
	// ChildrenOf lists or edits the children of a record (parent_to_child).
	ChildrenOf Direction = "parent_to_child"
	// ParentsOf lists or edits the parents of a record (child_to_parent).
	ParentsOf Direction = "child_to_parent"
)

// MergeInstruction is one row of the input batch.
type MergeInstruction struct {
	ID     RecordID `json:"id" yaml:"id"`
	Name   string   `json:"company_name" yaml:"company_name"`
	Key    string   `json:"key" yaml:"key"`
	Action Action   `json:"action" yaml:"action"`
}

// Group holds every instruction sharing a key, in input order.
type Group struct {
	Key          string
	Instructions []MergeInstruction
}

// EnrichedCompany is a merge instruction joined with its live associations.
type EnrichedCompany struct {
	ID        RecordID   `json:"id" yaml:"id"`
	Name      string     `json:"company_name" yaml:"company_name"`
	Key       string     `json:"key" yaml:"key"`
	Action    Action     `json:"action" yaml:"action"`
	ChildIDs  []RecordID `json:"child_companies" yaml:"child_companies"`
	ParentIDs []RecordID `json:"parent_companies" yaml:"parent_companies"`
}

// Clone returns a deep copy so later mutation does not leak into snapshots.
func (c EnrichedCompany) Clone() EnrichedCompany {
	out := c
	out.ChildIDs = append([]RecordID{}, c.ChildIDs...)
	out.ParentIDs = append([]RecordID{}, c.ParentIDs...)
	return out
}

// MergePair records one completed merge call.
type MergePair struct {
	MergedID RecordID `json:"merged_company_id" yaml:"merged_company_id"`
	IntoID   RecordID `json:"into_company_id" yaml:"into_company_id"`
}

// MergeResult is the surviving record of a group after reconciliation.
type MergeResult struct {
	EnrichedCompany `yaml:",inline"`
	OriginalParent  []RecordID  `json:"original_parent" yaml:"original_parent"`
	Merges          []MergePair `json:"merges" yaml:"merges"`
}

// ParentValue resolves the single parent the survivor is relinked to.
// originalParent wins over the current parent list; only the first entry of
// either list is used.
func (r MergeResult) ParentValue() (RecordID, bool) {
	if len(r.OriginalParent) > 0 {
		return r.OriginalParent[0], true
	}
	if len(r.ParentIDs) > 0 {
		return r.ParentIDs[0], true
	}
	return "", false
}

// MissingRecord is written for every group skipped before enrichment.
type MissingRecord struct {
	Key    string   `json:"key" yaml:"key"`
	ID     RecordID `json:"company_id" yaml:"company_id"`
	Reason string   `json:"error" yaml:"error"`
}

// Missing reasons
const (
	ReasonNotFound         = "Company not found"
	ReasonAlreadyProcessed = "Company already processed in this run"
)

// RunMode selects how the merge command gathers credentials and confirmation.
type RunMode string

const (
	RunModeInteractive RunMode = "interactive"
	RunModeTest        RunMode = "test"
)

// RunStatus is the lifecycle state of a ledger run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a ledger entry for one invocation of the merge command.
type Run struct {
	UUID       string     `json:"uuid" yaml:"uuid"`
	Mode       RunMode    `json:"mode" yaml:"mode"`
	InputPath  string     `json:"input_path" yaml:"input_path"`
	Status     RunStatus  `json:"status" yaml:"status"`
	Groups     int        `json:"groups" yaml:"groups"`
	Merged     int        `json:"merged" yaml:"merged"`
	Missing    int        `json:"missing" yaml:"missing"`
	Error      *string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Event is a ledger row describing one step of a run.
type Event struct {
	ID        int64     `json:"id" yaml:"id"`
	RunUUID   string    `json:"run_uuid" yaml:"run_uuid"`
	Type      string    `json:"event_type" yaml:"event_type"`
	Key       *string   `json:"key,omitempty" yaml:"key,omitempty"`
	RecordID  *string   `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	TargetID  *string   `json:"target_id,omitempty" yaml:"target_id,omitempty"`
	Message   *string   `json:"message,omitempty" yaml:"message,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
