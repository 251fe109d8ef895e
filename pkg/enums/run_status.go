package enums

import "fmt"

// RunStatus tracks the lifecycle of a run instance.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusCanceled   RunStatus = "canceled"
)

var validRunStatuses = []RunStatus{
	RunStatusPending,
	RunStatusInProgress,
	RunStatusCompleted,
	RunStatusCanceled,
}

// String implements fmt.Stringer.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RunStatus.
func (s RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition may leave this status.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusCanceled
}

// ParseRunStatus converts raw input into a RunStatus.
func ParseRunStatus(value string) (RunStatus, error) {
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
