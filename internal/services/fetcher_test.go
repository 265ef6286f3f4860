package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alttext/internal/models"
)

func TestFetcher_DownloadsCompletedResults(t *testing.T) {
	p := newFakeProvider()
	p.results["file-1"] = []byte(`{"custom_id":"row_0"}` + "\n")
	dir := filepath.Join(t.TempDir(), "results")

	list := models.TaskList{Tasks: []models.Task{
		{InputFileID: "file-1", SourcePath: "batches/batch_0.jsonl", BatchID: "b1", Status: models.JobStatusCompleted, ResultFileID: outputID("file-1")},
		{InputFileID: "file-2", SourcePath: "batches/batch_1.jsonl", BatchID: "b2", Status: models.JobStatusFailed},
		{InputFileID: "file-3", SourcePath: "batches/batch_2.jsonl", BatchID: "b3", Status: models.JobStatusCompleted},
	}}

	f := NewFetcher(p, dir, nil)
	paths, err := f.Fetch(context.Background(), list)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "batch_0_result.jsonl")}, paths)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, p.results["file-1"], content)
}

func TestFetcher_DownloadErrorStops(t *testing.T) {
	p := newFakeProvider()
	list := models.TaskList{Tasks: []models.Task{
		{InputFileID: "file-1", SourcePath: "batch_0.jsonl", BatchID: "b1", Status: models.JobStatusCompleted, ResultFileID: "out-missing"},
	}}

	paths, err := NewFetcher(p, t.TempDir(), nil).Fetch(context.Background(), list)
	assert.Error(t, err)
	assert.Empty(t, paths)
}

func TestFetcher_ResultPathFallsBackToFileID(t *testing.T) {
	f := NewFetcher(nil, "out", nil)
	assert.Equal(t, filepath.Join("out", "file-9_result.jsonl"), f.ResultPath(models.Task{InputFileID: "file-9"}))
}

func TestFetcher_WarnsAboutCompletedBatchWithoutOutput(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	list := models.TaskList{Tasks: []models.Task{
		{InputFileID: "file-2", BatchID: "b2", Status: models.JobStatusFailed},
		{InputFileID: "file-3", BatchID: "b3", Status: models.JobStatusCompleted},
	}}
	paths, err := NewFetcher(newFakeProvider(), t.TempDir(), nil).Fetch(context.Background(), list)
	require.NoError(t, err)
	assert.Empty(t, paths)

	messages := make(map[string]string)
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			id, _ := e.Data["file_id"].(string)
			messages[id] = e.Message
		}
	}
	require.Contains(t, messages, "file-2")
	require.Contains(t, messages, "file-3")
	assert.NotEqual(t, messages["file-2"], messages["file-3"])
	assert.Contains(t, messages["file-3"], "no output file")
}

func TestFetcher_CollidingScopesKeepBothResults(t *testing.T) {
	p := newFakeProvider()
	p.results["file-1"] = []byte(`{"custom_id":"row_0"}` + "\n")
	p.results["file-2"] = []byte(`{"custom_id":"row_2000"}` + "\n")
	p.results["file-3"] = []byte(`{"custom_id":"row_4000"}` + "\n")
	dir := t.TempDir()

	list := models.TaskList{Tasks: []models.Task{
		{InputFileID: "file-1", SourcePath: "first/batch_0.jsonl", BatchID: "b1", Status: models.JobStatusCompleted, ResultFileID: outputID("file-1")},
		{InputFileID: "file-2", SourcePath: "second/batch_0.jsonl", BatchID: "b2", Status: models.JobStatusCompleted, ResultFileID: outputID("file-2")},
		{InputFileID: "file-3", SourcePath: "first/batch_1.jsonl", BatchID: "b3", Status: models.JobStatusCompleted, ResultFileID: outputID("file-3")},
	}}

	paths, err := NewFetcher(p, dir, nil).Fetch(context.Background(), list)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "batch_0_file-1_result.jsonl"),
		filepath.Join(dir, "batch_0_file-2_result.jsonl"),
		filepath.Join(dir, "batch_1_result.jsonl"),
	}, paths)

	for i, id := range []string{"file-1", "file-2", "file-3"} {
		content, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, p.results[id], content)
	}
}

func TestFetcher_SharedInputFileDownloadedOnce(t *testing.T) {
	p := newFakeProvider()
	p.results["file-1"] = []byte(`{"custom_id":"row_0"}` + "\n")
	dir := t.TempDir()

	task := models.Task{InputFileID: "file-1", SourcePath: "batch_0.jsonl", BatchID: "b1", Status: models.JobStatusCompleted, ResultFileID: outputID("file-1")}
	paths, err := NewFetcher(p, dir, nil).Fetch(context.Background(), models.TaskList{Tasks: []models.Task{task, task}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "batch_0_result.jsonl")}, paths)
}
