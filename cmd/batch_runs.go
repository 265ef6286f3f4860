package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"alttext/internal/clix"
	"alttext/internal/models"
)

var batchRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored pipeline runs",
	Long:  `Lists the task lists stored by prepare and process runs, newest first, with per status task counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		pagination, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}

		runs, err := appInstance.RunStore.ListRuns(cmd.Context(), pagination.Limit, pagination.Offset)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Run ID", "Pipeline", "Step", "Tasks", "Queued", "In Flight", "Completed", "Failed", "Created At"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, rec := range runs {
			counts := rec.Tasks.CountByStatus()
			inFlight := counts[models.JobStatusValidating] + counts[models.JobStatusInProgress] + counts[models.JobStatusFinalizing]
			failed := counts[models.JobStatusFailed] + counts[models.JobStatusExpired] + counts[models.JobStatusCancelled]
			table.Append([]string{
				rec.ID.String(),
				rec.Pipeline,
				rec.Step,
				fmt.Sprint(len(rec.Tasks.Tasks)),
				formatCount(counts, models.JobStatusQueued),
				fmt.Sprint(inFlight),
				formatCount(counts, models.JobStatusCompleted),
				fmt.Sprint(failed),
				rec.CreatedAt.Local().Format(time.DateTime),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	batchCmd.AddCommand(batchRunsCmd)

	batchRunsCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list")
	batchRunsCmd.Flags().IntP("offset", "o", 0, "Number of runs to skip")
}
