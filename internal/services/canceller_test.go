package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alttext/internal/models"
)

func TestCanceller_CancelInFlight(t *testing.T) {
	p := newFakeProvider()
	p.addBatch("batch_1", "file-1", "in_progress")
	p.addBatch("batch_2", "file-2", "completed")
	list := models.TaskList{Tasks: []models.Task{
		{InputFileID: "file-1", BatchID: "batch_1", Status: models.JobStatusInProgress},
		{InputFileID: "file-2", BatchID: "batch_2", Status: models.JobStatusCompleted, ResultFileID: outputID("file-2")},
		{InputFileID: "file-3", Status: models.JobStatusQueued},
	}}

	out, n, err := NewCanceller(p).CancelInFlight(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"batch_1"}, p.cancels)
	assert.Equal(t, models.JobStatusCancelling, out.Tasks[0].Status)
	assert.Equal(t, models.JobStatusCompleted, out.Tasks[1].Status)
	assert.Equal(t, models.JobStatusQueued, out.Tasks[2].Status)

	refreshed, err := newTestCoordinator(p, CoordinatorDeps{}).Refresh(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, refreshed.Tasks[0].Status)
}

func TestCanceller_CancelBatch(t *testing.T) {
	p := newFakeProvider()
	p.addBatch("batch_1", "file-1", "in_progress")

	status, err := NewCanceller(p).CancelBatch(context.Background(), "batch_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelling, status)

	_, err = NewCanceller(p).CancelBatch(context.Background(), "batch_missing")
	assert.Error(t, err)
}
