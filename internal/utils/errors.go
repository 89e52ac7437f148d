package utils

import "fmt"

// ValidationError reports an input contract violation: which field of which
// record (or config section) failed, and why. It carries enough context to
// diagnose the offending input without rerunning.
type ValidationError struct {
	Field    string
	RecordID string
	Msg      string
}

func (e *ValidationError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("record %s: invalid %s: %s", e.RecordID, e.Field, e.Msg)
}

// NewValidationError constructs a ValidationError. recordID may be empty for
// violations not tied to a single record.
func NewValidationError(field, recordID, msg string) error {
	return &ValidationError{Field: field, RecordID: recordID, Msg: msg}
}
