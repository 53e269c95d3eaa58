package engine

import "fmt"

// ValidationError reports bad caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidStateError reports an operation not allowed in the entity's current state.
type InvalidStateError struct {
	Entity string
	ID     string
	Reason string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

// MeetingError is returned when a meeting run fails and was reverted to scheduled.
type MeetingError struct {
	MeetingID           string
	Hint                string
	ProvidersConfigured bool
	Err                 error
}

func (e *MeetingError) Error() string {
	return fmt.Sprintf("meeting %s failed: %v", e.MeetingID, e.Err)
}

func (e *MeetingError) Unwrap() error { return e.Err }

// ExecutionError is returned when a confirmed draft's effect fails.
type ExecutionError struct {
	DraftID string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("draft %s execution failed: %v", e.DraftID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
