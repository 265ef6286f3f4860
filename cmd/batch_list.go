package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"alttext/internal/clix"
	"alttext/internal/models"
)

var batchListLimit int

// batchListCmd represents the list command for batches
var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List OpenAI Batch API jobs",
	Long:  `Lists the batch jobs visible to the configured OpenAI account, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		filter, err := clix.ParseStatusFilter(cmd.Flags())
		if err != nil {
			return err
		}

		batches, err := appInstance.BatchAPIProvider.ListBatches(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list batch jobs: %w", err)
		}
		batches = filterBatches(batches, filter, batchListLimit)

		if len(batches) == 0 {
			fmt.Println("No batch jobs found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Batch ID", "Status", "Input File", "Output File", "Done/Failed/Total", "Created At"})
		table.SetBorder(true)
		table.SetRowLine(true)

		for _, b := range batches {
			status, err := models.ParseJobStatus(b.Status)
			if err != nil {
				status = models.JobStatus(b.Status)
			}
			row := []string{
				b.ID,
				colorStatus(status),
				b.InputFileID,
				getStringPtrValue(b.OutputFileID, "N/A"),
				fmt.Sprintf("%d/%d/%d", b.RequestCounts.Completed, b.RequestCounts.Failed, b.RequestCounts.Total),
				time.Unix(int64(b.CreatedAt), 0).UTC().Format(time.RFC3339),
			}
			table.Append(row)
		}
		table.Render()
		return nil
	},
}

func init() {
	batchCmd.AddCommand(batchListCmd)

	batchListCmd.Flags().IntVarP(&batchListLimit, "limit", "n", 20, "Maximum number of batch jobs to list (0 lists all)")
	batchListCmd.Flags().String("status", "", "Comma separated statuses to show, e.g. in_progress,completed")
}

// filterBatches keeps the batches whose status is in filter, up to limit.
// Unknown statuses only pass an empty filter.
func filterBatches(batches []openai.Batch, filter map[models.JobStatus]bool, limit int) []openai.Batch {
	var out []openai.Batch
	for _, b := range batches {
		if limit > 0 && len(out) == limit {
			break
		}
		if len(filter) > 0 {
			status, err := models.ParseJobStatus(b.Status)
			if err != nil {
				log.WithField("batch_id", b.ID).Debug("Skipping batch with unknown status")
				continue
			}
			if !filter[status] {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// Helper function to safely get string from pointer or return default
func getStringPtrValue(ptr *string, def string) string {
	if ptr != nil && *ptr != "" {
		return *ptr
	}
	return def
}

func formatCount(counts map[models.JobStatus]int, s models.JobStatus) string {
	return strconv.Itoa(counts[s])
}
