package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"alttext/internal/models"
)

// batchCmd represents the base command for batch operations.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage OpenAI Batch API jobs",
	Long:  `Provides commands to list, inspect and cancel OpenAI Batch API jobs and the stored task lists that track them.`,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

// colorStatus renders a status by its class.
func colorStatus(s models.JobStatus) string {
	if !s.Valid() {
		return color.RedString(string(s))
	}
	switch s.Class() {
	case models.StatusClassSucceeded:
		return color.GreenString(s.String())
	case models.StatusClassFailed:
		return color.RedString(s.String())
	case models.StatusClassPendingCancel:
		return color.YellowString(s.String())
	default:
		return color.CyanString(s.String())
	}
}
