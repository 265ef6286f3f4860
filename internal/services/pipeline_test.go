package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alttext/internal/dataset"
	"alttext/internal/models"
	"alttext/internal/store"
	"alttext/internal/store/local"
)

type pipelineFixture struct {
	provider *fakeProvider
	runs     store.RunStore
	pipeline *Pipeline
	dataset  string
	dir      string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name), 4, 4)
	}
	datasetPath := filepath.Join(dir, "images.jsonl")
	require.NoError(t, os.WriteFile(datasetPath, []byte(strings.Join([]string{
		`{"image":"a.png","title":"first"}`,
		`{"image":"b.png","title":"second"}`,
		`{"image":"c.png","title":"third"}`,
	}, "\n")+"\n"), 0600))

	runs, err := local.Open(context.Background(), filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })

	p := newFakeProvider()
	cfg := PipelineConfig{
		Encoder:     EncoderConfig{BatchSize: 2, OutputDir: filepath.Join(dir, "batches")},
		Coordinator: CoordinatorConfig{PollInterval: time.Millisecond, Concurrency: 2},
		ResultDir:   filepath.Join(dir, "results"),
	}
	return &pipelineFixture{
		provider: p,
		runs:     runs,
		pipeline: NewPipeline(p, runs, cfg, CoordinatorDeps{}),
		dataset:  datasetPath,
		dir:      dir,
	}
}

func TestPipeline_PrepareAndProcess(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()

	prep, err := fx.pipeline.Prepare(ctx, fx.dataset)
	require.NoError(t, err)
	require.Len(t, prep.Tasks.Tasks, 2)
	for _, task := range prep.Tasks.Tasks {
		assert.Equal(t, models.JobStatusQueued, task.Status)
		assert.False(t, task.HasJob(), "preparing never creates batches")
	}
	assert.Equal(t, 0, fx.provider.totalCreates())

	fx.provider.results["file-1"] = []byte(successLine(0, "A red square.") + "\n" + failedLine(1) + "\n")
	fx.provider.results["file-2"] = []byte(successLine(2, "A blue square.") + "\n")

	output := filepath.Join(fx.dir, "out.jsonl")
	report, err := fx.pipeline.Process(ctx, ProcessOptions{DatasetPath: fx.dataset, OutputPath: output})
	require.NoError(t, err)
	assert.False(t, report.TimedOut)
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.Merge.Merged)
	assert.Equal(t, 1, report.Merge.Dropped)

	ds, err := dataset.Load(output)
	require.NoError(t, err)
	for row, want := range []string{"A red square.", "", "A blue square."} {
		got, _ := ds.Get(row, DefaultOutputColumn)
		assert.Equal(t, want, got)
	}
	title, _ := ds.Get(1, "title")
	assert.Equal(t, "second", title, "other columns are preserved")

	saved, err := fx.runs.LatestRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate)
	require.NoError(t, err)
	assert.Equal(t, 2, len(saved.Tasks.Completed()))

	// Resuming from the processing run creates nothing new.
	creates := fx.provider.totalCreates()
	_, err = fx.pipeline.Process(ctx, ProcessOptions{
		FromPipeline: models.PipelineBatchProcessing,
		FromStep:     models.StepWaitAndUpdate,
		DatasetPath:  output,
	})
	require.NoError(t, err)
	assert.Equal(t, creates, fx.provider.totalCreates())
}

func TestPipeline_ProcessTimeoutCancelsInFlight(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	fx.provider.script = []string{"in_progress"}

	_, err := fx.pipeline.Prepare(ctx, fx.dataset)
	require.NoError(t, err)

	report, err := fx.pipeline.Process(ctx, ProcessOptions{DatasetPath: fx.dataset, Timeout: 30 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, report.TimedOut)
	assert.Equal(t, 2, report.Cancelled)
	assert.Empty(t, report.Results)

	saved, err := fx.runs.LatestRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate)
	require.NoError(t, err)
	for _, task := range saved.Tasks.Tasks {
		assert.Equal(t, models.JobStatusCancelled, task.Status)
	}
}

func TestPipeline_ProcessWithoutUploadRun(t *testing.T) {
	fx := newPipelineFixture(t)
	_, err := fx.pipeline.Process(context.Background(), ProcessOptions{DatasetPath: fx.dataset})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPipeline_PrepareWithoutImages(t *testing.T) {
	fx := newPipelineFixture(t)
	empty := filepath.Join(fx.dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, []byte(`{"title":"no image"}`+"\n"), 0600))

	_, err := fx.pipeline.Prepare(context.Background(), empty)
	assert.ErrorIs(t, err, models.ErrValidation)
}
