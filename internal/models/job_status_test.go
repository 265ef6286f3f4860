package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want JobStatus
	}{
		{"queued", JobStatusQueued},
		{"IN_PROGRESS", JobStatusInProgress},
		{" completed ", JobStatusCompleted},
		{"pending", JobStatusQueued},
		{"running", JobStatusInProgress},
		{"done", JobStatusCompleted},
		{"failed", JobStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseJobStatus(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"", "paused", "cancel"} {
		_, err := ParseJobStatus(raw)
		assert.ErrorIs(t, err, ErrUnknownStatus, raw)
	}
}

func TestJobStatusClassification(t *testing.T) {
	tests := []struct {
		status       JobStatus
		class        StatusClass
		terminal     bool
		stopsPolling bool
		noAction     bool
	}{
		{JobStatusQueued, StatusClassInFlight, false, false, false},
		{JobStatusValidating, StatusClassInFlight, false, false, true},
		{JobStatusInProgress, StatusClassInFlight, false, false, false},
		{JobStatusFinalizing, StatusClassInFlight, false, false, true},
		{JobStatusCompleted, StatusClassSucceeded, true, true, true},
		{JobStatusFailed, StatusClassFailed, true, true, false},
		{JobStatusExpired, StatusClassFailed, true, true, false},
		{JobStatusCancelling, StatusClassPendingCancel, false, true, true},
		{JobStatusCancelled, StatusClassFailed, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.True(t, tt.status.Valid())
			assert.Equal(t, tt.class, tt.status.Class())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.stopsPolling, tt.status.StopsPolling())
			assert.Equal(t, tt.noAction, tt.status.RequiresNoAction())
		})
	}

	assert.Panics(t, func() { JobStatus("paused").Class() })
}

func TestJobStatusJSON(t *testing.T) {
	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{"file_id":"file-1","path":"batch_0.jsonl","status":"running"}`), &task))
	assert.Equal(t, JobStatusInProgress, task.Status)

	b, err := json.Marshal(task)
	require.NoError(t, err)
	assert.JSONEq(t, `{"file_id":"file-1","path":"batch_0.jsonl","status":"in_progress"}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"file_id":"file-1","status":"paused"}`), &task))
	_, err = json.Marshal(Task{InputFileID: "file-1", Status: "paused"})
	assert.Error(t, err)
}
