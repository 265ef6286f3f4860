package tasks

import (
	"encoding/json"
	"fmt"
)

// Defines constants for task types used in Asynq.

const (
	// TypeProcessRun is the task type for driving a stored task list to completion
	// and merging its results.
	TypeProcessRun = "batch:process"

	// QueueBatches is the queue process runs are enqueued on.
	QueueBatches = "batches"
)

// ProcessRunPayload describes one processing run executed by the worker.
type ProcessRunPayload struct {
	FromPipeline string `json:"from_pipeline"`
	FromStep     string `json:"from_step"`
	DatasetPath  string `json:"dataset_path"`
	OutputPath   string `json:"output_path,omitempty"`
	// TimeoutSeconds bounds the wait for batches; 0 waits without limit.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// NewProcessRunPayload encodes p for an asynq task.
func NewProcessRunPayload(p ProcessRunPayload) ([]byte, error) {
	if p.DatasetPath == "" {
		return nil, fmt.Errorf("process run payload: dataset path is required")
	}
	return json.Marshal(p)
}

// ParseProcessRunPayload decodes a payload produced by NewProcessRunPayload.
func ParseProcessRunPayload(data []byte) (ProcessRunPayload, error) {
	var p ProcessRunPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal process run payload: %w", err)
	}
	if p.DatasetPath == "" {
		return p, fmt.Errorf("process run payload: dataset path is required")
	}
	return p, nil
}
