package services

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
)

// ResolveReport summarizes one idempotency resolution pass.
type ResolveReport struct {
	Trusted    int // tasks that already carried a batch id
	Adopted    int // tasks linked to a batch found in the listing
	Unlinked   int // tasks that still need a batch to be created
	Duplicates int // input files referenced by more than one task
}

// JobRegistry links tasks to existing remote batch jobs so that no input file
// gets a second batch after a restart.
type JobRegistry struct {
	provider BatchAPIProvider
	metrics  MetricsRecorder
}

// NewJobRegistry creates a registry backed by the given Batch API provider.
func NewJobRegistry(provider BatchAPIProvider, metrics MetricsRecorder) *JobRegistry {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &JobRegistry{provider: provider, metrics: metrics}
}

// Resolve links every task without a batch id to an existing remote batch for
// the same input file, if the listing has one. Tasks that already carry a
// batch id are trusted. The listing is only requested when at least one task
// is unlinked.
func (r *JobRegistry) Resolve(ctx context.Context, list *models.TaskList) (ResolveReport, error) {
	var report ResolveReport

	report.Duplicates = reconcileDuplicates(list)

	var unlinked []int
	for i := range list.Tasks {
		if list.Tasks[i].HasJob() {
			report.Trusted++
			continue
		}
		unlinked = append(unlinked, i)
	}
	if len(unlinked) == 0 {
		return report, nil
	}

	batches, err := r.provider.ListBatches(ctx)
	if err != nil {
		return report, fmt.Errorf("resolve task list: %w", err)
	}
	byInput := indexByInputFile(batches)

	for _, i := range unlinked {
		task := &list.Tasks[i]
		batch, ok := byInput[task.InputFileID]
		if !ok {
			report.Unlinked++
			continue
		}
		if err := adoptBatch(task, batch); err != nil {
			return report, err
		}
		report.Adopted++
		r.metrics.RecordBatchAdopted(ctx)
		log.WithFields(log.Fields{
			"file_id":  task.InputFileID,
			"batch_id": task.BatchID,
			"status":   task.Status,
		}).Info("Found existing OpenAI batch for task")
	}
	return report, nil
}

// indexByInputFile keeps the first batch per input file in listing order,
// which is newest first for the OpenAI listing.
func indexByInputFile(batches []openai.Batch) map[string]openai.Batch {
	byInput := make(map[string]openai.Batch, len(batches))
	for _, b := range batches {
		if b.InputFileID == "" {
			continue
		}
		if _, seen := byInput[b.InputFileID]; !seen {
			byInput[b.InputFileID] = b
		}
	}
	return byInput
}

// reconcileDuplicates makes every task sharing an input file carry the linkage
// of the last such task that has one. It returns the number of input files
// referenced more than once.
func reconcileDuplicates(list *models.TaskList) int {
	positions := make(map[string][]int)
	var order []string
	for i, t := range list.Tasks {
		if _, seen := positions[t.InputFileID]; !seen {
			order = append(order, t.InputFileID)
		}
		positions[t.InputFileID] = append(positions[t.InputFileID], i)
	}

	duplicates := 0
	for _, fileID := range order {
		idx := positions[fileID]
		if len(idx) < 2 {
			continue
		}
		duplicates++
		log.WithFields(log.Fields{
			"file_id": fileID,
			"tasks":   len(idx),
		}).Warn("Input file is referenced by more than one task; the later task wins")

		winner := -1
		for _, i := range idx {
			if list.Tasks[i].HasJob() {
				winner = i
			}
		}
		if winner < 0 {
			continue
		}
		w := list.Tasks[winner]
		for _, i := range idx {
			list.Tasks[i].BatchID = w.BatchID
			list.Tasks[i].Status = w.Status
			list.Tasks[i].ResultFileID = w.ResultFileID
		}
	}
	return duplicates
}

// adoptBatch copies the remote view of batch onto task without applying the
// terminal-regression guard; used when a task first gets linked.
func adoptBatch(task *models.Task, batch openai.Batch) error {
	status, err := models.ParseJobStatus(batch.Status)
	if err != nil {
		return fmt.Errorf("batch %s: %w", batch.ID, err)
	}
	task.BatchID = batch.ID
	setStatus(task, status, batch)
	return nil
}

// applyBatch overwrites the task's status with the freshly retrieved one.
// A terminal status is never replaced by a non-terminal one; such a read is
// reported and ignored. It returns whether the status changed.
func applyBatch(task *models.Task, batch openai.Batch) (bool, error) {
	status, err := models.ParseJobStatus(batch.Status)
	if err != nil {
		return false, fmt.Errorf("batch %s: %w", batch.ID, err)
	}
	if task.Status.Valid() && task.Status.IsTerminal() && !status.IsTerminal() {
		log.WithFields(log.Fields{
			"file_id":  task.InputFileID,
			"batch_id": task.BatchID,
			"current":  task.Status,
			"received": status,
		}).Warn("Ignoring non-terminal status read for a terminal task")
		return false, nil
	}
	changed := task.Status != status
	setStatus(task, status, batch)
	return changed, nil
}

func setStatus(task *models.Task, status models.JobStatus, batch openai.Batch) {
	task.Status = status
	task.ResultFileID = ""
	if status == models.JobStatusCompleted && batch.OutputFileID != nil {
		task.ResultFileID = *batch.OutputFileID
	}
}
