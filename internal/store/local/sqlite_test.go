package local

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alttext/internal/models"
	"alttext/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LatestRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LatestRun(context.Background(), models.PipelineDataPreparation, models.StepUploadFiles)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SaveAndLatestRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := models.TaskList{Tasks: []models.Task{{InputFileID: "file-1", SourcePath: "batch_0.jsonl", Status: models.JobStatusQueued}}}
	second := models.TaskList{Tasks: []models.Task{
		{InputFileID: "file-1", SourcePath: "batch_0.jsonl", Status: models.JobStatusCompleted, BatchID: "batch_a", ResultFileID: "out-1"},
	}}

	_, err := s.SaveRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate, first)
	require.NoError(t, err)
	saved, err := s.SaveRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate, second)
	require.NoError(t, err)

	latest, err := s.LatestRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, latest.ID)
	assert.Equal(t, second, latest.Tasks)
	assert.True(t, saved.CreatedAt.Equal(latest.CreatedAt))

	_, err = s.LatestRun(ctx, models.PipelineDataPreparation, models.StepUploadFiles)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SaveRunRejectsInvalidTasks(t *testing.T) {
	s := openTestStore(t)
	bad := models.TaskList{Tasks: []models.Task{{InputFileID: "", Status: models.JobStatusQueued}}}
	_, err := s.SaveRun(context.Background(), "p", "s", bad)
	assert.ErrorIs(t, err, store.ErrInvalidTaskSet)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	list := models.TaskList{Tasks: []models.Task{{InputFileID: "file-1", Status: models.JobStatusQueued}}}

	for _, step := range []string{"a", "b", "c"} {
		_, err := s.SaveRun(ctx, "p", step, list)
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].Step)
	assert.Equal(t, "b", runs[1].Step)

	runs, err = s.ListRuns(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].Step)
}

func TestStore_LatestRunDefaultsMissingStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, pipeline, step, tasks, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), models.PipelineDataPreparation, models.StepUploadFiles,
		`{"tasks":[{"file_id":"file-1","path":"batch_0.jsonl","batch_id":"batch_x"}]}`,
		time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, err)

	rec, err := s.LatestRun(ctx, models.PipelineDataPreparation, models.StepUploadFiles)
	require.NoError(t, err)
	require.Len(t, rec.Tasks.Tasks, 1)
	assert.Equal(t, models.JobStatusQueued, rec.Tasks.Tasks[0].Status)
	assert.Equal(t, "batch_x", rec.Tasks.Tasks[0].BatchID)
}
