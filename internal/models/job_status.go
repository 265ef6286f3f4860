package models

import (
	"fmt"
	"strings"
)

/*
JobStatus is the closed set of remote batch job states as reported by the Batch API.
Centralizing them avoids magic strings in the coordinator's control flow.
*/
type JobStatus string

// Remote batch job states.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusValidating JobStatus = "validating"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusFinalizing JobStatus = "finalizing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusExpired    JobStatus = "expired"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCancelled  JobStatus = "cancelled"
)

// StatusClass groups job states by what the coordinator has to do with them.
type StatusClass int

const (
	StatusClassInFlight      StatusClass = iota // still running remotely, keep polling
	StatusClassSucceeded                        // terminal, output file available
	StatusClassFailed                           // terminal, no output to fetch
	StatusClassPendingCancel                    // cancel requested, nothing left to drive
)

func (c StatusClass) String() string {
	switch c {
	case StatusClassInFlight:
		return "in-flight"
	case StatusClassSucceeded:
		return "succeeded"
	case StatusClassFailed:
		return "failed"
	case StatusClassPendingCancel:
		return "pending-cancel"
	default:
		return fmt.Sprintf("StatusClass(%d)", int(c))
	}
}

// legacyStatuses maps the simplified pending/running/done/failed view onto the
// remote vocabulary. The simplified view is deprecated.
var legacyStatuses = map[string]JobStatus{
	"pending": JobStatusQueued,
	"running": JobStatusInProgress,
	"done":    JobStatusCompleted,
}

// ParseJobStatus converts a raw status string into a JobStatus.
// Unknown values are rejected with ErrUnknownStatus.
func ParseJobStatus(raw string) (JobStatus, error) {
	s := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s, nil
	}
	if legacy, ok := legacyStatuses[string(s)]; ok {
		return legacy, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Valid reports whether s belongs to the remote vocabulary.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusValidating, JobStatusInProgress, JobStatusFinalizing,
		JobStatusCompleted, JobStatusFailed, JobStatusExpired,
		JobStatusCancelling, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Class returns the status class. It panics on values outside the closed set;
// statuses entering the system go through ParseJobStatus first.
func (s JobStatus) Class() StatusClass {
	switch s {
	case JobStatusQueued, JobStatusValidating, JobStatusInProgress, JobStatusFinalizing:
		return StatusClassInFlight
	case JobStatusCompleted:
		return StatusClassSucceeded
	case JobStatusFailed, JobStatusExpired, JobStatusCancelled:
		return StatusClassFailed
	case JobStatusCancelling:
		return StatusClassPendingCancel
	default:
		panic(fmt.Sprintf("models: unclassified job status %q", string(s)))
	}
}

// IsTerminal reports whether polling stops at s.
func (s JobStatus) IsTerminal() bool {
	c := s.Class()
	return c == StatusClassSucceeded || c == StatusClassFailed
}

// StopsPolling reports whether a poll loop that reads s should end.
// cancelling is not terminal but nothing more will be driven for it.
func (s JobStatus) StopsPolling() bool {
	return s.IsTerminal() || s.Class() == StatusClassPendingCancel
}

// RequiresNoAction reports whether the coordinator must neither create a job
// nor enter the poll loop for a task in status s.
func (s JobStatus) RequiresNoAction() bool {
	switch s {
	case JobStatusValidating, JobStatusFinalizing, JobStatusCompleted,
		JobStatusCancelling, JobStatusCancelled:
		return true
	default:
		return false
	}
}

func (s JobStatus) String() string { return string(s) }

// UnmarshalText lets stored task lists written with the legacy vocabulary load.
func (s *JobStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseJobStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText rejects values outside the closed set.
func (s JobStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
	return []byte(s), nil
}
