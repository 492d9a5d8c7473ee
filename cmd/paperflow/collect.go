package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// summaryPrecision rounds elapsed times in CLI output.
const summaryPrecision = 100 * time.Millisecond

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Search, rank and file records into the library",
	Long: `Collect runs the full pipeline: it searches the enabled preprint
services, ranks the results, and ingests them into the bibliography library
with duplicate detection, collection filing and PDF attachment upload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		params, err := searchParamsFromFlags(cmd)
		if err != nil {
			return err
		}

		records, err := discover(cmd.Context(), a, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no records found")
			return nil
		}

		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && limit < len(records) {
			records = records[:limit]
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printRecords(records)
			fmt.Printf("dry run: %d records would be ingested\n", len(records))
			return nil
		}

		summary := a.Orchestrator.Run(cmd.Context(), records)
		fmt.Printf("batch %s: %d succeeded (%d duplicates), %d failed in %s\n",
			summary.BatchID, summary.Succeeded, summary.Duplicates, summary.Failed, summary.Elapsed.Round(summaryPrecision))
		if summary.Failed > 0 {
			return fmt.Errorf("%d records failed to ingest", summary.Failed)
		}
		return nil
	},
}

func init() {
	addSearchFlags(collectCmd)
	collectCmd.Flags().Int("limit", 0, "ingest only the top N ranked records (0 = all)")
	collectCmd.Flags().Bool("dry-run", false, "rank and print without writing to the library")
	rootCmd.AddCommand(collectCmd)
}
