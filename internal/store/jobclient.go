package store

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"alttext/internal/tasks"
)

// AsynqJobClient is a concrete JobClient backed by Redis through asynq.
type AsynqJobClient struct {
	client   *asynq.Client
	maxRetry int
}

// NewAsynqJobClient creates a job client for the given Redis connection.
func NewAsynqJobClient(redis asynq.RedisClientOpt, maxRetry int) *AsynqJobClient {
	return &AsynqJobClient{client: asynq.NewClient(redis), maxRetry: maxRetry}
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

// Enqueue enqueues a task.
func (jc *AsynqJobClient) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if jc.client == nil {
		return nil, fmt.Errorf("AsynqJobClient internal client is not initialized")
	}
	info, err := jc.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue task %s: %w", task.Type(), err)
	}
	log.WithFields(log.Fields{"task_id": info.ID, "type": task.Type(), "queue": info.Queue}).Debug("Enqueued task")
	return info, nil
}

// EnqueueProcessRun enqueues a processing run on the batches queue.
func (jc *AsynqJobClient) EnqueueProcessRun(ctx context.Context, p tasks.ProcessRunPayload) (*asynq.TaskInfo, error) {
	payload, err := tasks.NewProcessRunPayload(p)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(tasks.TypeProcessRun, payload)
	info, err := jc.Enqueue(ctx, task, asynq.Queue(tasks.QueueBatches), asynq.MaxRetry(jc.maxRetry))
	if err != nil {
		return nil, fmt.Errorf("enqueue process run for %s: %w", p.DatasetPath, err)
	}
	return info, nil
}

// Ensure AsynqJobClient satisfies JobClient interface
var _ JobClient = (*AsynqJobClient)(nil)
