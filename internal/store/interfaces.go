package store

import (
	"context"

	"github.com/hibiken/asynq"

	"alttext/internal/models"
	"alttext/internal/tasks"
)

// --- Job Client ---

type JobClient interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	EnqueueProcessRun(ctx context.Context, payload tasks.ProcessRunPayload) (*asynq.TaskInfo, error)
	Close() error
}

// --- Run Store ---

// RunStore persists task lists as the output of a pipeline step, so a later
// step can load the last successful run's output by pipeline and step name.
type RunStore interface {
	SaveRun(ctx context.Context, pipeline, step string, list models.TaskList) (*models.RunRecord, error)
	LatestRun(ctx context.Context, pipeline, step string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.RunRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
