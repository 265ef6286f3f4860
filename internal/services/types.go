package services

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"alttext/internal/models"
)

// --- Batch API Interface ---

// BatchAPIProvider defines methods for interacting with a Batch API (like OpenAI's).
type BatchAPIProvider interface {
	UploadFile(ctx context.Context, fileName string, fileContent []byte) (string, error)
	CreateBatch(ctx context.Context, inputFileID, endpoint, completionWindow string) (openai.Batch, error)
	ListBatches(ctx context.Context) ([]openai.Batch, error)
	RetrieveBatch(ctx context.Context, batchID string) (openai.Batch, error)
	CancelBatch(ctx context.Context, batchID string) (openai.Batch, error)
	GetFileContent(ctx context.Context, fileID string) ([]byte, error)
}

// Dataset is the row-indexed table the merger writes generated text into.
type Dataset interface {
	Len() int
	Get(row int, column string) (string, bool)
	Set(row int, column, value string) error
	EnsureColumn(column, defaultValue string)
}

// MetricsRecorder is an optional sink for coordinator, fetcher and merger counters.
type MetricsRecorder interface {
	RecordBatchCreated(ctx context.Context)
	RecordBatchAdopted(ctx context.Context)
	RecordPoll(ctx context.Context, status models.JobStatus)
	RecordTerminal(ctx context.Context, status models.JobStatus)
	RecordResultDownloaded(ctx context.Context, bytes int)
	RecordRowsMerged(ctx context.Context, merged, dropped int)
}

// StatusEvent describes one observed status change of a task.
type StatusEvent struct {
	InputFileID string           `json:"file_id"`
	BatchID     string           `json:"batch_id"`
	From        models.JobStatus `json:"from,omitempty"`
	To          models.JobStatus `json:"to"`
}

// EventPublisher receives task status changes. Publishing is best effort.
type EventPublisher interface {
	PublishStatus(ctx context.Context, event StatusEvent) error
}

type noopMetrics struct{}

func (noopMetrics) RecordBatchCreated(context.Context) {}
func (noopMetrics) RecordBatchAdopted(context.Context) {}
func (noopMetrics) RecordPoll(context.Context, models.JobStatus) {}
func (noopMetrics) RecordTerminal(context.Context, models.JobStatus) {}
func (noopMetrics) RecordResultDownloaded(context.Context, int) {}
func (noopMetrics) RecordRowsMerged(context.Context, int, int) {}

type noopPublisher struct{}

func (noopPublisher) PublishStatus(context.Context, StatusEvent) error { return nil }
