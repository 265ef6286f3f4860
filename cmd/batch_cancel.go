package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"alttext/internal/models"
	"alttext/internal/store"
)

var batchCancelAll bool

var batchCancelCmd = &cobra.Command{
	Use:   "cancel [batch-id]",
	Short: "Cancel an OpenAI batch job",
	Long: `Cancels the given batch job. With --all, cancels every in-flight batch of the
latest processing run (or, if none exists, of the latest upload run) and stores
the updated task list as a new processing run.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if batchCancelAll && len(args) > 0 {
			return fmt.Errorf("--all does not take a batch id")
		}
		if !batchCancelAll && len(args) != 1 {
			return fmt.Errorf("expected exactly one batch id, or --all")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if !batchCancelAll {
			status, err := appInstance.Canceller.CancelBatch(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to cancel batch %s: %w", args[0], err)
			}
			fmt.Printf("Batch %s is now %s\n", args[0], colorStatus(status))
			return nil
		}

		rec, err := appInstance.RunStore.LatestRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate)
		if errors.Is(err, store.ErrNotFound) {
			rec, err = appInstance.RunStore.LatestRun(ctx, models.PipelineDataPreparation, models.StepUploadFiles)
		}
		if err != nil {
			return fmt.Errorf("failed to load task list: %w", err)
		}

		list, cancelled, err := appInstance.Canceller.CancelInFlight(ctx, rec.Tasks)
		if cancelled > 0 {
			if _, saveErr := appInstance.RunStore.SaveRun(ctx, models.PipelineBatchProcessing, models.StepWaitAndUpdate, list); saveErr != nil {
				fmt.Printf("%s failed to save task list: %v\n", color.RedString("ERROR"), saveErr)
			}
		}
		if err != nil {
			return err
		}
		fmt.Printf("Cancelled %d in-flight batches of run %s\n", cancelled, rec.ID)
		return nil
	},
}

func init() {
	batchCmd.AddCommand(batchCancelCmd)
	batchCancelCmd.Flags().BoolVar(&batchCancelAll, "all", false, "Cancel every in-flight batch of the latest run")
}
