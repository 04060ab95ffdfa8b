package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [extension-id] [query]",
	Short: "Search for manga through an installed extension",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		extID := args[0]
		query := strings.Join(args[1:], " ")

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		result := c.bridge.Search(cmd.Context(), extID, query, nil)
		if len(result.Results) == 0 {
			fmt.Println("No results found.")
			return
		}

		t := newTable("#", "Title", "ID")
		for i, manga := range result.Results {
			t.Row(fmt.Sprintf("%d", i+1), truncateString(manga.Title, 58), manga.ID)
		}
		fmt.Println(t)

		if result.Metadata != nil {
			fmt.Println("💡 More results available.")
		}
	},
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
