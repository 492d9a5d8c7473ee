package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the library's collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		collections, err := a.Store.ListCollections(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(collections)
		}
		if len(collections) == 0 {
			fmt.Println("no collections")
			return nil
		}
		for _, c := range collections {
			fmt.Printf("%s  %s\n", c.Key, c.Name)
		}
		return nil
	},
}

func init() {
	collectionsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(collectionsCmd)
}
