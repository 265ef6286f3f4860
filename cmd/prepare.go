package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <dataset.jsonl>",
	Short: "Encode a dataset into batch files and upload them to OpenAI",
	Long: `Reads a JSON lines dataset, writes one chat completion request per row with an
image into batch input files, uploads them and stores the resulting task list
as the upload step of the data preparation pipeline. No batch job is created.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		rec, err := appInstance.Pipeline.Prepare(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("prepare failed: %w", err)
		}

		fmt.Printf("%s uploaded %d batch files (run %s)\n",
			color.GreenString("OK"), len(rec.Tasks.Tasks), rec.ID)
		for _, t := range rec.Tasks.Tasks {
			fmt.Printf("  - %s -> %s\n", t.SourcePath, t.InputFileID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}
