package cmd

import (
	"fmt"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/reader"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read [extension-id] [manga-id] [chapter-id]",
	Short: "Preload a chapter's pages and print their resolved URLs",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		extID, mangaID, chapterID := args[0], args[1], args[2]

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		pages := c.bridge.GetChapterPages(cmd.Context(), extID, mangaID, chapterID)
		if len(pages) == 0 {
			fmt.Println("No pages found.")
			return
		}

		fmt.Printf("📖 Preloading %d pages...\n", len(pages))

		session := c.preloader.NewSession(pages)
		result := c.preloader.Preload(cmd.Context(), session, reader.Options{
			OnPage: func(index int, page data.PreloadedPage) {
				mark := "✅"
				if !page.Preloaded {
					mark = "❌"
				}
				fmt.Printf("%s page %d: %s\n", mark, page.PageNumber, page.ResolvedURL)
			},
		})

		failed := 0
		for _, page := range result {
			if !page.Preloaded {
				failed++
			}
		}
		if failed > 0 {
			fmt.Printf("⚠️  %d of %d pages failed to preload\n", failed, len(result))
			return
		}
		fmt.Println("🎉 Chapter ready.")
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}
