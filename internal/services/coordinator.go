package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"alttext/internal/models"
)

// Defaults for the OpenAI chat completions batch endpoint.
const (
	DefaultEndpoint         = "/v1/chat/completions"
	DefaultCompletionWindow = "24h"
	DefaultPollInterval     = 60 * time.Second
)

// CoordinatorConfig controls how batch jobs are created and polled.
type CoordinatorConfig struct {
	PollInterval     time.Duration
	Concurrency      int
	Endpoint         string
	CompletionWindow string
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.CompletionWindow == "" {
		c.CompletionWindow = DefaultCompletionWindow
	}
	return c
}

// Coordinator drives every task of a task list to a terminal batch status.
type Coordinator struct {
	provider BatchAPIProvider
	registry *JobRegistry
	cfg      CoordinatorConfig
	metrics  MetricsRecorder
	events   EventPublisher
}

// CoordinatorDeps holds the optional collaborators of a Coordinator.
type CoordinatorDeps struct {
	Metrics MetricsRecorder
	Events  EventPublisher
}

// NewCoordinator creates a coordinator using the given provider.
func NewCoordinator(provider BatchAPIProvider, cfg CoordinatorConfig, deps CoordinatorDeps) *Coordinator {
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Events == nil {
		deps.Events = noopPublisher{}
	}
	return &Coordinator{
		provider: provider,
		registry: NewJobRegistry(provider, deps.Metrics),
		cfg:      cfg.withDefaults(),
		metrics:  deps.Metrics,
		events:   deps.Events,
	}
}

// Run links, creates and polls the batch jobs of list until every task is in
// a status that needs no further action. The returned list reflects all
// progress made, also when an API error aborts the run.
func (c *Coordinator) Run(ctx context.Context, list models.TaskList) (models.TaskList, error) {
	out := list.Clone()
	if err := checkStatuses(out); err != nil {
		return out, err
	}

	report, err := c.registry.Resolve(ctx, &out)
	if err != nil {
		return out, err
	}
	log.WithFields(log.Fields{
		"tasks":      len(out.Tasks),
		"trusted":    report.Trusted,
		"adopted":    report.Adopted,
		"unlinked":   report.Unlinked,
		"duplicates": report.Duplicates,
	}).Info("Resolved task list against existing OpenAI batches")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, partition := range partitionByInputFile(out) {
		partition := partition
		g.Go(func() error {
			return c.drivePartition(gctx, &out, partition)
		})
	}
	err = g.Wait()

	for _, t := range out.Tasks {
		log.WithFields(log.Fields{
			"file_id":        t.InputFileID,
			"batch_id":       t.BatchID,
			"status":         t.Status,
			"result_file_id": t.ResultFileID,
		}).Info("Task state")
	}
	return out, err
}

// partitionByInputFile groups task indexes by input file in first-seen order.
// Each partition is owned by one worker, so no two workers touch the same
// remote job.
func partitionByInputFile(list models.TaskList) [][]int {
	pos := make(map[string]int)
	var parts [][]int
	for i, t := range list.Tasks {
		p, ok := pos[t.InputFileID]
		if !ok {
			p = len(parts)
			pos[t.InputFileID] = p
			parts = append(parts, nil)
		}
		parts[p] = append(parts[p], i)
	}
	return parts
}

func (c *Coordinator) drivePartition(ctx context.Context, list *models.TaskList, partition []int) error {
	var linked *models.Task
	for _, i := range partition {
		task := &list.Tasks[i]
		if linked != nil && !task.HasJob() {
			task.BatchID = linked.BatchID
			task.Status = linked.Status
			task.ResultFileID = linked.ResultFileID
		}
		if err := c.drive(ctx, task); err != nil {
			return err
		}
		if task.HasJob() {
			linked = task
		}
	}
	return nil
}

// drive runs the per-task state machine.
func (c *Coordinator) drive(ctx context.Context, task *models.Task) error {
	logger := log.WithField("file_id", task.InputFileID)

	if task.Status.RequiresNoAction() {
		if !task.HasJob() {
			logger.WithField("status", task.Status).Warn("Task needs no action but has no batch; cannot read its status")
			return nil
		}
		if !task.Status.IsTerminal() || (task.Status == models.JobStatusCompleted && task.ResultFileID == "") {
			if err := c.refresh(ctx, task); err != nil {
				return err
			}
		}
		logger.WithField("status", task.Status).Info("Task is in a status that needs no action, ignoring")
		return nil
	}

	if !task.HasJob() {
		if err := c.create(ctx, task); err != nil {
			return err
		}
	}

	for !task.Status.StopsPolling() {
		if err := sleepContext(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
		if err := c.refresh(ctx, task); err != nil {
			return err
		}
	}

	if task.Status.IsTerminal() {
		c.metrics.RecordTerminal(ctx, task.Status)
	}
	return nil
}

// Refresh performs one status read for every linked task that has not reached
// a terminal status. It does not create jobs.
func (c *Coordinator) Refresh(ctx context.Context, list models.TaskList) (models.TaskList, error) {
	out := list.Clone()
	if err := checkStatuses(out); err != nil {
		return out, err
	}
	for i := range out.Tasks {
		task := &out.Tasks[i]
		if !task.HasJob() || task.Status.IsTerminal() {
			continue
		}
		if err := c.refresh(ctx, task); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c *Coordinator) create(ctx context.Context, task *models.Task) error {
	log.WithField("file_id", task.InputFileID).Info("Starting OpenAI batch for task")
	batch, err := c.provider.CreateBatch(ctx, task.InputFileID, c.cfg.Endpoint, c.cfg.CompletionWindow)
	if err != nil {
		return fmt.Errorf("create batch for task %s: %w", task.InputFileID, err)
	}
	from := task.Status
	if err := adoptBatch(task, batch); err != nil {
		return err
	}
	c.metrics.RecordBatchCreated(ctx)
	c.publish(ctx, task, from)
	log.WithFields(log.Fields{
		"file_id":  task.InputFileID,
		"batch_id": task.BatchID,
		"status":   task.Status,
	}).Info("Created OpenAI batch for task")
	return nil
}

// refresh performs one status read and applies it to task.
func (c *Coordinator) refresh(ctx context.Context, task *models.Task) error {
	batch, err := c.provider.RetrieveBatch(ctx, task.BatchID)
	if err != nil {
		return fmt.Errorf("poll batch %s for task %s: %w", task.BatchID, task.InputFileID, err)
	}
	from := task.Status
	changed, err := applyBatch(task, batch)
	if err != nil {
		return err
	}
	c.metrics.RecordPoll(ctx, task.Status)
	if changed {
		c.publish(ctx, task, from)
	}
	log.WithFields(log.Fields{
		"file_id":  task.InputFileID,
		"batch_id": task.BatchID,
		"status":   task.Status,
	}).Info("Updated task status")
	return nil
}

func (c *Coordinator) publish(ctx context.Context, task *models.Task, from models.JobStatus) {
	event := StatusEvent{InputFileID: task.InputFileID, BatchID: task.BatchID, From: from, To: task.Status}
	if err := c.events.PublishStatus(ctx, event); err != nil {
		log.WithError(err).WithField("batch_id", task.BatchID).Warn("Failed to publish task status event")
	}
}

// checkStatuses rejects lists holding a status outside the closed set before
// any classification of it is attempted.
func checkStatuses(list models.TaskList) error {
	for _, t := range list.Tasks {
		if !t.Status.Valid() {
			return fmt.Errorf("%w: task %s: %q", models.ErrUnknownStatus, t.InputFileID, string(t.Status))
		}
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
