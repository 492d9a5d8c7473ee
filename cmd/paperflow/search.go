package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GhUserLiu/paperflow/internal/app"
	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/rank"
	"github.com/GhUserLiu/paperflow/internal/sources"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search preprint services and rank the results",
	Long: `Search queries the enabled preprint services for records matching the
query, ranks them by journal quality indicators, and prints them without
touching the bibliography library.`,
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

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(records)
		}
		printRecords(records)
		return nil
	},
}

func init() {
	addSearchFlags(searchCmd)
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

// addSearchFlags registers the flags shared by search and collect.
func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().String("query", "", "search query")
	cmd.Flags().String("categories", "", "subject categories (comma-separated)")
	cmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	cmd.Flags().Int("max-results", 0, "maximum results per source (0 = source default)")
	_ = cmd.MarkFlagRequired("query")
}

// searchParamsFromFlags builds SearchParams from the shared flags.
func searchParamsFromFlags(cmd *cobra.Command) (sources.SearchParams, error) {
	params := sources.SearchParams{}
	params.Query, _ = cmd.Flags().GetString("query")
	params.MaxResults, _ = cmd.Flags().GetInt("max-results")

	if cats, _ := cmd.Flags().GetString("categories"); cats != "" {
		for _, c := range strings.Split(cats, ",") {
			if c = strings.TrimSpace(c); c != "" {
				params.Categories = append(params.Categories, c)
			}
		}
	}

	for flag, dst := range map[string]**time.Time{"from": &params.DateFrom, "to": &params.DateTo} {
		raw, _ := cmd.Flags().GetString(flag)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return params, fmt.Errorf("invalid --%s date %q: expected YYYY-MM-DD", flag, raw)
		}
		*dst = &t
	}
	return params, nil
}

// discover fans the search out across enabled sources and returns the
// results ranked best-first.
func discover(ctx context.Context, a *app.App, params sources.SearchParams) ([]*domain.Record, error) {
	records := a.Registry.CollectAll(ctx, params)
	if len(records) == 0 {
		return nil, nil
	}

	var metricsByID map[string]rank.MetricSet
	if a.ScholarMetrics != nil {
		byID, err := a.ScholarMetrics.LookupAll(ctx, records)
		if err != nil {
			return nil, err
		}
		metricsByID = byID
	}

	return a.Ranker.Rank(records, metricsByID), nil
}

func printRecords(records []*domain.Record) {
	if len(records) == 0 {
		fmt.Println("no records found")
		return
	}
	for i, rec := range records {
		date := ""
		if rec.Published != nil {
			date = rec.Published.Format("2006-01-02")
		}
		fmt.Printf("%3d. [%s] %s\n", i+1, rec.Key().Value, rec.Title)
		fmt.Printf("     source=%s date=%s venue=%s\n", rec.Source, date, rec.Venue)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
