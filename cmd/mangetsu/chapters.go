package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var chaptersCmd = &cobra.Command{
	Use:   "chapters [extension-id] [manga-id]",
	Short: "List a manga's chapters, newest first",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		extID, mangaID := args[0], args[1]

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		details := c.bridge.GetMangaDetails(cmd.Context(), extID, mangaID)
		if details != nil && details.Title != "" {
			fmt.Printf("📚 %s\n", details.Title)
		}

		chapters := c.bridge.GetChapters(cmd.Context(), extID, mangaID)
		if len(chapters) == 0 {
			fmt.Println("No chapters found.")
			return
		}

		t := newTable("Chapter", "Name", "Language", "ID")
		for _, ch := range chapters {
			t.Row(fmt.Sprintf("%g", ch.ChapNum), truncateString(ch.Name, 40), ch.LangCode, ch.ID)
		}
		fmt.Println(t)
	},
}

func init() {
	rootCmd.AddCommand(chaptersCmd)
}
