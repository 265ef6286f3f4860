package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"alttext/internal/dataset"
	"alttext/internal/models"
	"alttext/internal/store"
)

// PipelineConfig bundles the settings of both pipeline stages.
type PipelineConfig struct {
	Encoder      EncoderConfig
	Coordinator  CoordinatorConfig
	ResultDir    string
	OutputColumn string
	// MaxWait bounds the wait for batches when a run sets no timeout itself.
	MaxWait time.Duration
}

// Pipeline runs the two stages of alt text generation: preparing and
// uploading batch input files, then processing the uploaded batches and
// merging their results back into the dataset. Each stage stores its task
// list as a run so the next stage, or a retry, resumes from it.
type Pipeline struct {
	runs        store.RunStore
	encoder     *Encoder
	submitter   *Submitter
	coordinator *Coordinator
	canceller   *Canceller
	fetcher     *Fetcher
	merger      *Merger
	maxWait     time.Duration
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(provider BatchAPIProvider, runs store.RunStore, cfg PipelineConfig, deps CoordinatorDeps) *Pipeline {
	return &Pipeline{
		runs:        runs,
		encoder:     NewEncoder(cfg.Encoder),
		submitter:   NewSubmitter(provider),
		coordinator: NewCoordinator(provider, cfg.Coordinator, deps),
		canceller:   NewCanceller(provider),
		fetcher:     NewFetcher(provider, cfg.ResultDir, deps.Metrics),
		merger:      NewMerger(cfg.OutputColumn, deps.Metrics),
		maxWait:     cfg.MaxWait,
	}
}

// Canceller exposes the pipeline's canceller for the cancel commands.
func (p *Pipeline) Canceller() *Canceller { return p.canceller }

// Prepare encodes the dataset at datasetPath into batch input files, uploads
// them and stores the resulting task list as the data preparation run.
func (p *Pipeline) Prepare(ctx context.Context, datasetPath string) (*models.RunRecord, error) {
	ds, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, err
	}
	paths, err := p.encoder.Encode(ctx, ds, ds.Dir())
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: dataset '%s' has no rows with an encodable image", models.ErrValidation, datasetPath)
	}

	list, err := p.submitter.Submit(ctx, paths)
	if err != nil {
		return nil, err
	}
	rec, err := p.runs.SaveRun(ctx, models.PipelineDataPreparation, models.StepUploadFiles, list)
	if err != nil {
		return nil, fmt.Errorf("save upload run: %w", err)
	}
	log.WithFields(log.Fields{"run_id": rec.ID, "tasks": len(list.Tasks)}).Info("Data preparation run saved")
	return rec, nil
}

// ProcessOptions selects the run to process and where its results go.
type ProcessOptions struct {
	FromPipeline string
	FromStep     string
	DatasetPath  string
	// OutputPath defaults to DatasetPath.
	OutputPath string
	// Timeout overrides the configured maximum wait; 0 keeps it.
	Timeout time.Duration
}

// ProcessReport summarizes one processing run.
type ProcessReport struct {
	Run       *models.RunRecord
	Results   []string
	Merge     MergeReport
	TimedOut  bool
	Cancelled int
	Output    string
}

// Process loads the latest task list of the requested pipeline step, drives
// its batches to a final status, stores the updated list, downloads the
// results of completed batches and merges them into the dataset.
//
// When the wait budget runs out, in-flight batches are cancelled, their status
// is read once more and whatever completed is still merged.
func (p *Pipeline) Process(ctx context.Context, opts ProcessOptions) (ProcessReport, error) {
	var report ProcessReport
	if opts.FromPipeline == "" {
		opts.FromPipeline = models.PipelineDataPreparation
	}
	if opts.FromStep == "" {
		opts.FromStep = models.StepUploadFiles
	}
	if opts.OutputPath == "" {
		opts.OutputPath = opts.DatasetPath
	}
	report.Output = opts.OutputPath

	source, err := p.runs.LatestRun(ctx, opts.FromPipeline, opts.FromStep)
	if err != nil {
		return report, fmt.Errorf("load task list from %s/%s: %w", opts.FromPipeline, opts.FromStep, err)
	}
	log.WithFields(log.Fields{
		"run_id":   source.ID,
		"pipeline": opts.FromPipeline,
		"step":     opts.FromStep,
		"tasks":    len(source.Tasks.Tasks),
	}).Info("Loaded task list")

	list, err := p.waitForBatches(ctx, source.Tasks, opts.Timeout, &report)
	if err != nil {
		if _, saveErr := p.runs.SaveRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate, list); saveErr != nil {
			log.WithError(saveErr).Error("Failed to save partial task list")
		}
		return report, err
	}

	report.Run, err = p.runs.SaveRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate, list)
	if err != nil {
		return report, fmt.Errorf("save processing run: %w", err)
	}

	report.Results, err = p.fetcher.Fetch(ctx, list)
	if err != nil {
		return report, err
	}

	ds, err := dataset.Load(opts.DatasetPath)
	if err != nil {
		return report, err
	}
	report.Merge, err = p.merger.Merge(ctx, report.Results, ds)
	if err != nil {
		return report, err
	}
	if err := ds.Save(opts.OutputPath); err != nil {
		return report, fmt.Errorf("save dataset: %w", err)
	}
	log.WithFields(log.Fields{
		"output":    opts.OutputPath,
		"column":    p.merger.Column(),
		"merged":    report.Merge.Merged,
		"timed_out": report.TimedOut,
	}).Info("Dataset updated with batch results")
	return report, nil
}

func (p *Pipeline) waitForBatches(ctx context.Context, list models.TaskList, timeout time.Duration, report *ProcessReport) (models.TaskList, error) {
	if timeout <= 0 {
		timeout = p.maxWait
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := p.coordinator.Run(runCtx, list)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return out, err
	}

	report.TimedOut = true
	log.WithField("timeout", timeout).Warn("Batches did not finish in time, cancelling in-flight batches")
	out, report.Cancelled, err = p.canceller.CancelInFlight(ctx, out)
	if err != nil {
		return out, err
	}
	return p.coordinator.Refresh(ctx, out)
}
