package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
	"alttext/internal/services"
	"alttext/internal/store"
	"alttext/internal/tasks"
)

// ProcessRunner executes a processing run.
type ProcessRunner interface {
	Process(ctx context.Context, opts services.ProcessOptions) (services.ProcessReport, error)
}

// RegisterHandlers registers the batch task handlers on mux.
func RegisterHandlers(mux *asynq.ServeMux, runner ProcessRunner) {
	log.Infof("Registering ProcessRun handler (%s)", tasks.TypeProcessRun)
	mux.HandleFunc(tasks.TypeProcessRun, HandleProcessRun(runner))
}

// HandleProcessRun returns the asynq handler for TypeProcessRun tasks. Errors
// that a retry cannot fix skip the retry queue.
func HandleProcessRun(runner ProcessRunner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		p, err := tasks.ParseProcessRunPayload(t.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger := log.WithFields(log.Fields{
			"pipeline": p.FromPipeline,
			"step":     p.FromStep,
			"dataset":  p.DatasetPath,
		})
		logger.Info("Processing batch run")

		report, err := runner.Process(ctx, services.ProcessOptions{
			FromPipeline: p.FromPipeline,
			FromStep:     p.FromStep,
			DatasetPath:  p.DatasetPath,
			OutputPath:   p.OutputPath,
			Timeout:      time.Duration(p.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, models.ErrProviderDisabled) {
				return fmt.Errorf("process run: %v: %w", err, asynq.SkipRetry)
			}
			return fmt.Errorf("process run: %w", err)
		}

		logger.WithFields(log.Fields{
			"merged":    report.Merge.Merged,
			"results":   len(report.Results),
			"timed_out": report.TimedOut,
			"output":    report.Output,
		}).Info("Batch run processed")
		return nil
	}
}
