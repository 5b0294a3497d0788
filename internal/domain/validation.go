package domain

import (
	"fmt"
	"strings"
)

// ValidationKind names the rule a batch violated.
type ValidationKind string

const (
	KindDuplicateRecord ValidationKind = "duplicate_record"
	KindRoleConflict    ValidationKind = "role_conflict"
	KindActionCount     ValidationKind = "action_count"
	KindRecordCount     ValidationKind = "record_count"
	KindActionSet       ValidationKind = "action_set"
	KindInvalidAction   ValidationKind = "invalid_action"
)

// ValidationError is returned when a batch fails a structural check.
type ValidationError struct {
	Kind    ValidationKind
	Key     string
	Record  *MergeInstruction
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s): %s", e.Kind, e.Message)
}

// Check is a single batch rule.
type Check func(batch []MergeInstruction) error

// Checks returns the batch rules in the order they are applied.
func Checks() []Check {
	return []Check{
		CheckNoDuplicateRecords,
		CheckNoKeepMergeOverlap,
		CheckOneMergeOneKeep,
		CheckTwoRecordsPerKey,
		CheckKeysHaveMergeAndKeep,
		CheckActionValues,
	}
}

// ValidateBatch runs every rule and returns the first violation.
func ValidateBatch(batch []MergeInstruction) error {
	for _, check := range Checks() {
		if err := check(batch); err != nil {
			return err
		}
	}
	return nil
}

// CheckNoDuplicateRecords rejects two identical rows.
func CheckNoDuplicateRecords(batch []MergeInstruction) error {
	seen := make(map[MergeInstruction]struct{}, len(batch))
	for i := range batch {
		record := batch[i]
		if _, ok := seen[record]; ok {
			return &ValidationError{
				Kind:    KindDuplicateRecord,
				Key:     record.Key,
				Record:  &record,
				Message: fmt.Sprintf("duplicate record found: %s", formatRecord(record)),
			}
		}
		seen[record] = struct{}{}
	}
	return nil
}

// CheckNoKeepMergeOverlap rejects an ID used as keep in one place and merge in
// another.
func CheckNoKeepMergeOverlap(batch []MergeInstruction) error {
	keepIDs := make(map[RecordID]struct{})
	mergeIDs := make(map[RecordID]struct{})

	for i := range batch {
		record := batch[i]
		switch record.Action {
		case ActionKeep:
			if _, ok := mergeIDs[record.ID]; ok {
				return &ValidationError{
					Kind:    KindRoleConflict,
					Key:     record.Key,
					Record:  &record,
					Message: fmt.Sprintf("ID %s is used as 'merge' in another key", record.ID),
				}
			}
			keepIDs[record.ID] = struct{}{}
		case ActionMerge:
			if _, ok := keepIDs[record.ID]; ok {
				return &ValidationError{
					Kind:    KindRoleConflict,
					Key:     record.Key,
					Record:  &record,
					Message: fmt.Sprintf("ID %s is used as 'keep' in another key", record.ID),
				}
			}
			mergeIDs[record.ID] = struct{}{}
		}
	}
	return nil
}

// CheckOneMergeOneKeep requires exactly one merge and one keep per key.
func CheckOneMergeOneKeep(batch []MergeInstruction) error {
	type counts struct{ keep, merge int }
	byKey := make(map[string]*counts)
	var order []string

	for _, record := range batch {
		c, ok := byKey[record.Key]
		if !ok {
			c = &counts{}
			byKey[record.Key] = c
			order = append(order, record.Key)
		}
		switch record.Action {
		case ActionKeep:
			c.keep++
		case ActionMerge:
			c.merge++
		}
	}

	for _, key := range order {
		c := byKey[key]
		if c.merge != 1 || c.keep != 1 {
			return &ValidationError{
				Kind: KindActionCount,
				Key:  key,
				Message: fmt.Sprintf("key %s does not map one 'merge' to exactly one 'keep' (found %d merge and %d keep)",
					key, c.merge, c.keep),
			}
		}
	}
	return nil
}

// CheckTwoRecordsPerKey requires exactly two rows per key.
func CheckTwoRecordsPerKey(batch []MergeInstruction) error {
	byKey := make(map[string]int)
	var order []string

	for _, record := range batch {
		if _, ok := byKey[record.Key]; !ok {
			order = append(order, record.Key)
		}
		byKey[record.Key]++
	}

	for _, key := range order {
		if n := byKey[key]; n != 2 {
			return &ValidationError{
				Kind:    KindRecordCount,
				Key:     key,
				Message: fmt.Sprintf("key %s does not have exactly two records (found %d)", key, n),
			}
		}
	}
	return nil
}

// CheckKeysHaveMergeAndKeep requires each key's action set to be exactly
// {merge, keep}.
func CheckKeysHaveMergeAndKeep(batch []MergeInstruction) error {
	byKey := make(map[string]map[Action]struct{})
	var order []string

	for _, record := range batch {
		set, ok := byKey[record.Key]
		if !ok {
			set = make(map[Action]struct{})
			byKey[record.Key] = set
			order = append(order, record.Key)
		}
		set[record.Action] = struct{}{}
	}

	for _, key := range order {
		set := byKey[key]
		_, hasKeep := set[ActionKeep]
		_, hasMerge := set[ActionMerge]
		if len(set) != 2 || !hasKeep || !hasMerge {
			return &ValidationError{
				Kind:    KindActionSet,
				Key:     key,
				Message: fmt.Sprintf("key %s does not have both 'merge' and 'keep' actions", key),
			}
		}
	}
	return nil
}

// CheckActionValues rejects any action other than keep or merge.
func CheckActionValues(batch []MergeInstruction) error {
	for i := range batch {
		record := batch[i]
		if !record.Action.Valid() {
			return &ValidationError{
				Kind:    KindInvalidAction,
				Key:     record.Key,
				Record:  &record,
				Message: fmt.Sprintf("invalid action '%s' in record: %s", record.Action, formatRecord(record)),
			}
		}
	}
	return nil
}

// GroupByKey partitions a batch by key, keeping first-seen key order and input
// order within each key.
func GroupByKey(batch []MergeInstruction) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, record := range batch {
		i, ok := index[record.Key]
		if !ok {
			i = len(groups)
			index[record.Key] = i
			groups = append(groups, Group{Key: record.Key})
		}
		groups[i].Instructions = append(groups[i].Instructions, record)
	}
	return groups
}

func formatRecord(r MergeInstruction) string {
	fields := []string{
		"id=" + string(r.ID),
		"company_name=" + r.Name,
		"key=" + r.Key,
		"action=" + string(r.Action),
	}
	return "{" + strings.Join(fields, ", ") + "}"
}
