package domain

import (
	"fmt"
	"strings"
)

// RemoteError is returned for any non-success response or transport failure
// from the CRM.
type RemoteError struct {
	Op      string
	FromID  RecordID
	ToID    RecordID
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.FromID != "" {
		fmt.Fprintf(&b, " %s", e.FromID)
	}
	if e.ToID != "" {
		fmt.Fprintf(&b, " -> %s", e.ToID)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " - %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// MissingRecordError marks a group that cannot be processed because one of its
// records is gone or was consumed earlier in the same run.
type MissingRecordError struct {
	Key    string
	ID     RecordID
	Reason string
}

func (e *MissingRecordError) Error() string {
	return fmt.Sprintf("key %s: company %s: %s", e.Key, e.ID, e.Reason)
}

// Record converts the error into its artifact form.
func (e *MissingRecordError) Record() MissingRecord {
	return MissingRecord{Key: e.Key, ID: e.ID, Reason: e.Reason}
}
