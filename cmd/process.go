package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"alttext/internal/models"
	"alttext/internal/services"
	"alttext/internal/tasks"
)

var (
	processFromPipeline string
	processFromStep     string
	processResume       bool
	processOutput       string
	processTimeout      time.Duration
	processAsync        bool
)

var processCmd = &cobra.Command{
	Use:   "process <dataset.jsonl>",
	Short: "Run the uploaded batches to completion and merge their alt text",
	Long: `Loads the latest task list of a pipeline step, creates any missing batch jobs,
polls them until they stop, stores the updated task list, downloads the results
of completed batches and merges the generated text into the dataset.

Use --resume to continue from the last processing run instead of the upload
step. With --async the run is enqueued for the worker instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		fromPipeline, fromStep := processFromPipeline, processFromStep
		if processResume {
			fromPipeline, fromStep = models.PipelineBatchProcessing, models.StepWaitAndUpdate
		}

		if processAsync {
			info, err := appInstance.JobClient.EnqueueProcessRun(cmd.Context(), tasks.ProcessRunPayload{
				FromPipeline:   fromPipeline,
				FromStep:       fromStep,
				DatasetPath:    args[0],
				OutputPath:     processOutput,
				TimeoutSeconds: int(processTimeout / time.Second),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued process run %s on queue %s\n", info.ID, info.Queue)
			return nil
		}

		report, err := appInstance.Pipeline.Process(cmd.Context(), services.ProcessOptions{
			FromPipeline: fromPipeline,
			FromStep:     fromStep,
			DatasetPath:  args[0],
			OutputPath:   processOutput,
			Timeout:      processTimeout,
		})
		if err != nil {
			return fmt.Errorf("process failed: %w", err)
		}

		if report.TimedOut {
			fmt.Printf("%s wait budget exhausted, cancelled %d batches\n", color.YellowString("WARN"), report.Cancelled)
		}
		fmt.Printf("%s merged %d rows from %d result files into %s (dropped %d, anomalies %d)\n",
			color.GreenString("OK"), report.Merge.Merged, len(report.Results), report.Output,
			report.Merge.Dropped, report.Merge.Anomalies)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processFromPipeline, "from-pipeline", models.PipelineDataPreparation, "Pipeline whose latest run supplies the task list")
	processCmd.Flags().StringVar(&processFromStep, "from-step", models.StepUploadFiles, "Step whose latest run supplies the task list")
	processCmd.Flags().BoolVar(&processResume, "resume", false, "Continue from the latest processing run")
	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "Where to write the updated dataset (defaults to the input)")
	processCmd.Flags().DurationVar(&processTimeout, "timeout", 0, "Cancel batches still running after this long (0 uses coordinator.max_wait)")
	processCmd.Flags().BoolVar(&processAsync, "async", false, "Enqueue the run for the worker instead of running it here")
}
