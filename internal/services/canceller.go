package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
)

// Canceller issues cancel requests for remote batch jobs. It is used by the
// wall-clock budget of a processing run and by the cancel commands.
type Canceller struct {
	provider BatchAPIProvider
}

// NewCanceller creates a canceller backed by provider.
func NewCanceller(provider BatchAPIProvider) *Canceller {
	return &Canceller{provider: provider}
}

// CancelBatch cancels a single batch job and returns its reported status.
func (c *Canceller) CancelBatch(ctx context.Context, batchID string) (models.JobStatus, error) {
	batch, err := c.provider.CancelBatch(ctx, batchID)
	if err != nil {
		return "", err
	}
	status, err := models.ParseJobStatus(batch.Status)
	if err != nil {
		return "", fmt.Errorf("batch %s: %w", batchID, err)
	}
	log.WithFields(log.Fields{"batch_id": batchID, "status": status}).Info("Canceled OpenAI batch")
	return status, nil
}

// CancelInFlight cancels every linked task that is still in flight and
// records the status returned by the cancel call. Tasks without a batch or in
// a status that already stops polling are left alone.
func (c *Canceller) CancelInFlight(ctx context.Context, list models.TaskList) (models.TaskList, int, error) {
	out := list.Clone()
	if err := checkStatuses(out); err != nil {
		return out, 0, err
	}
	cancelled := 0
	for i := range out.Tasks {
		task := &out.Tasks[i]
		if !task.HasJob() || task.Status.StopsPolling() {
			continue
		}
		batch, err := c.provider.CancelBatch(ctx, task.BatchID)
		if err != nil {
			return out, cancelled, fmt.Errorf("cancel task %s: %w", task.InputFileID, err)
		}
		if _, err := applyBatch(task, batch); err != nil {
			return out, cancelled, err
		}
		cancelled++
		log.WithFields(log.Fields{
			"file_id":  task.InputFileID,
			"batch_id": task.BatchID,
			"status":   task.Status,
		}).Info("Canceled OpenAI batch for task")
	}
	return out, cancelled, nil
}
