package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"alttext/internal/clix"
	"alttext/internal/models"
	"alttext/internal/store"
)

var (
	batchTasksPipeline string
	batchTasksStep     string
)

var batchTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show the latest stored task list",
	Long: `Prints the task list of the latest run of a pipeline step, one row per uploaded
input file. Defaults to the output of the last processing run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		filter, err := clix.ParseStatusFilter(cmd.Flags())
		if err != nil {
			return err
		}

		rec, err := appInstance.RunStore.LatestRun(cmd.Context(), batchTasksPipeline, batchTasksStep)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("No run stored for %s/%s.\n", batchTasksPipeline, batchTasksStep)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load task list: %w", err)
		}

		fmt.Printf("Run %s (%s/%s), %s\n", rec.ID, rec.Pipeline, rec.Step, rec.CreatedAt.Local().Format(time.DateTime))
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Input File", "Source", "Batch ID", "Status", "Result File"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		shown := 0
		for _, t := range rec.Tasks.Tasks {
			if len(filter) > 0 && !filter[t.Status] {
				continue
			}
			table.Append([]string{
				t.InputFileID,
				t.SourcePath,
				orDash(t.BatchID),
				colorStatus(t.Status),
				orDash(t.ResultFileID),
			})
			shown++
		}
		table.Render()
		fmt.Printf("%d of %d tasks shown.\n", shown, len(rec.Tasks.Tasks))
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	batchCmd.AddCommand(batchTasksCmd)

	batchTasksCmd.Flags().StringVar(&batchTasksPipeline, "pipeline", models.PipelineBatchProcessing, "Pipeline whose latest run is shown")
	batchTasksCmd.Flags().StringVar(&batchTasksStep, "step", models.StepWaitAndUpdate, "Step whose latest run is shown")
	batchTasksCmd.Flags().String("status", "", "Comma separated statuses to show, e.g. completed,failed")
}
