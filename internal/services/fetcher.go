package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
)

// ResultFileSuffix is appended to a task's scope to name its downloaded result.
const ResultFileSuffix = "_result.jsonl"

// Fetcher downloads the output files of completed batches.
type Fetcher struct {
	provider  BatchAPIProvider
	outputDir string
	metrics   MetricsRecorder
}

// NewFetcher creates a fetcher writing into outputDir.
func NewFetcher(provider BatchAPIProvider, outputDir string, metrics MetricsRecorder) *Fetcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Fetcher{provider: provider, outputDir: outputDir, metrics: metrics}
}

// ResultPath returns the local path the result of task is written to when no
// other task of the list shares its scope.
func (f *Fetcher) ResultPath(task models.Task) string {
	return filepath.Join(f.outputDir, task.Scope()+ResultFileSuffix)
}

// resultPaths names the result file of every downloadable task. Distinct input
// files whose scopes collide get their file id added to the name.
func (f *Fetcher) resultPaths(list models.TaskList) map[string]string {
	inputsByScope := make(map[string]map[string]bool)
	for _, task := range list.Tasks {
		if !downloadable(task) {
			continue
		}
		scope := task.Scope()
		if inputsByScope[scope] == nil {
			inputsByScope[scope] = make(map[string]bool)
		}
		inputsByScope[scope][task.InputFileID] = true
	}

	paths := make(map[string]string)
	for _, task := range list.Tasks {
		if !downloadable(task) {
			continue
		}
		if _, done := paths[task.InputFileID]; done {
			continue
		}
		scope := task.Scope()
		if len(inputsByScope[scope]) == 1 {
			paths[task.InputFileID] = f.ResultPath(task)
			continue
		}
		path := filepath.Join(f.outputDir, scope+"_"+task.InputFileID+ResultFileSuffix)
		log.WithFields(log.Fields{
			"scope":   scope,
			"file_id": task.InputFileID,
			"path":    path,
		}).Warn("Input files share a result scope, adding the file id to the result name")
		paths[task.InputFileID] = path
	}
	return paths
}

func downloadable(task models.Task) bool {
	return task.Status == models.JobStatusCompleted && task.ResultFileID != ""
}

// Fetch downloads the result file of every completed task and returns the
// paths it wrote. Tasks that did not complete, or completed without an output
// file, are skipped with a warning. Tasks sharing an input file are
// downloaded once.
func (f *Fetcher) Fetch(ctx context.Context, list models.TaskList) ([]string, error) {
	if err := os.MkdirAll(f.outputDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create result directory '%s': %w", f.outputDir, err)
	}

	targets := f.resultPaths(list)
	fetched := make(map[string]bool)
	var paths []string
	for _, task := range list.Tasks {
		logger := log.WithFields(log.Fields{
			"file_id":  task.InputFileID,
			"batch_id": task.BatchID,
			"status":   task.Status,
		})
		switch {
		case task.Status == models.JobStatusCompleted && task.ResultFileID == "":
			logger.Warn("Completed batch has no output file, every request in it failed")
			continue
		case !downloadable(task):
			logger.Warn("Task has no result file to download, skipping")
			continue
		case fetched[task.InputFileID]:
			continue
		}

		content, err := f.provider.GetFileContent(ctx, task.ResultFileID)
		if err != nil {
			return paths, fmt.Errorf("download result of task %s: %w", task.InputFileID, err)
		}

		path := targets[task.InputFileID]
		if err := os.WriteFile(path, content, 0640); err != nil {
			return paths, fmt.Errorf("failed to write result file '%s': %w", path, err)
		}
		fetched[task.InputFileID] = true
		f.metrics.RecordResultDownloaded(ctx, len(content))
		logger.WithField("path", path).Info("Downloaded batch result")
		paths = append(paths, path)
	}
	return paths, nil
}
