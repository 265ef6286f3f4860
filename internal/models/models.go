package models

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task tracks one uploaded batch input file and the remote batch job linked to it.
// JSON names follow the task list artifacts written by earlier pipeline runs.
type Task struct {
	InputFileID  string    `json:"file_id"`
	SourcePath   string    `json:"path"`
	Status       JobStatus `json:"status"`
	ResultFileID string    `json:"result_file_id,omitempty"`
	BatchID      string    `json:"batch_id,omitempty"`
}

// UnmarshalJSON defaults a missing status to queued, the state of a freshly
// uploaded file.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = JobStatusQueued
	}
	*t = Task(p)
	return nil
}

// HasJob reports whether a create-or-discover step has linked a remote job.
func (t *Task) HasJob() bool { return t.BatchID != "" }

// Scope is the sequence scope of the task, the base name of its input file
// without extension (e.g. "batch_0").
func (t *Task) Scope() string {
	name := filepath.Base(t.SourcePath)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return t.InputFileID
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Validate checks the result-file invariant. A completed task may still lack a
// result file when every request in the batch failed.
func (t *Task) Validate() error {
	if t.InputFileID == "" {
		return fmt.Errorf("%w: task without file_id", ErrValidation)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: task %s: %q", ErrUnknownStatus, t.InputFileID, string(t.Status))
	}
	if t.Status != JobStatusCompleted && t.ResultFileID != "" {
		return fmt.Errorf("%w: task %s has result_file_id in status %s", ErrValidation, t.InputFileID, t.Status)
	}
	return nil
}

// TaskList is the ordered set of tasks handed between pipeline steps.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}

// Clone returns a deep copy so stages never share Task values.
func (l TaskList) Clone() TaskList {
	tasks := make([]Task, len(l.Tasks))
	copy(tasks, l.Tasks)
	return TaskList{Tasks: tasks}
}

// CountByStatus tallies tasks per status.
func (l TaskList) CountByStatus() map[JobStatus]int {
	counts := make(map[JobStatus]int)
	for _, t := range l.Tasks {
		counts[t.Status]++
	}
	return counts
}

// Completed returns the tasks whose output can be downloaded.
func (l TaskList) Completed() []Task {
	var done []Task
	for _, t := range l.Tasks {
		if t.Status == JobStatusCompleted && t.ResultFileID != "" {
			done = append(done, t)
		}
	}
	return done
}

// RowOutcome is one parsed line of a batch result file.
type RowOutcome struct {
	SequenceID int
	Success    bool
	Content    string
}

// CustomIDPrefix prefixes the row index in batch request custom ids.
const CustomIDPrefix = "row_"

// FormatCustomID renders the custom_id for a dataset row.
func FormatCustomID(row int) string {
	return CustomIDPrefix + strconv.Itoa(row)
}

// ParseCustomID extracts the row index from a custom_id like "row_12".
func ParseCustomID(customID string) (int, error) {
	raw, ok := strings.CutPrefix(customID, CustomIDPrefix)
	if !ok || !canonicalIndex(raw) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCustomID, customID)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCustomID, customID)
	}
	return n, nil
}

// canonicalIndex accepts exactly the strings FormatCustomID produces: ASCII
// digits without sign or leading zero.
func canonicalIndex(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// RunRecord is a task list persisted as the output of a pipeline step.
type RunRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Pipeline  string    `json:"pipeline" db:"pipeline"`
	Step      string    `json:"step" db:"step"`
	Tasks     TaskList  `json:"tasks" db:"tasks"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Pipeline and step names under which task lists are stored.
const (
	PipelineDataPreparation = "alt_text_data_preparation_pipeline"
	StepUploadFiles         = "upload_files_to_openai"

	PipelineBatchProcessing = "alt_text_batch_processing_pipeline"
	StepWaitAndUpdate       = "wait_and_update_batch"
)
