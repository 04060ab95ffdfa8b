package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerbaras/mangetsu/pkg/services"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List downloaded chapters",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		chapters, err := c.library.ListAll()
		cobra.CheckErr(err)
		if len(chapters) == 0 {
			fmt.Println("No downloaded chapters.")
			return
		}

		t := newTable("Manga", "Chapter", "Pages", "Size", "Downloaded")
		for _, ch := range chapters {
			t.Row(ch.MangaID, ch.ChapterID, fmt.Sprintf("%d", len(ch.Pages)), formatSize(ch.Size), ch.DownloadedAt.Format("2006-01-02 15:04"))
		}
		fmt.Println(t)
	},
}

var deleteChapterFlag string
var deleteMangaFlag string

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete downloaded chapters and their files",
	Run: func(cmd *cobra.Command, args []string) {
		if deleteChapterFlag == "" && deleteMangaFlag == "" {
			cobra.CheckErr(fmt.Errorf("one of --chapter or --manga is required"))
		}

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		if deleteChapterFlag != "" {
			cobra.CheckErr(services.DeleteChapter(c.library, c.downloadDir, deleteChapterFlag))
			fmt.Printf("🗑️  Chapter %s deleted.\n", deleteChapterFlag)
		}
		if deleteMangaFlag != "" {
			cobra.CheckErr(services.DeleteManga(c.library, c.downloadDir, deleteMangaFlag))
			fmt.Printf("🗑️  All chapters of %s deleted.\n", deleteMangaFlag)
		}
	},
}

func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func init() {
	deleteCmd.Flags().StringVar(&deleteChapterFlag, "chapter", "", "chapter id to delete")
	deleteCmd.Flags().StringVar(&deleteMangaFlag, "manga", "", "manga id whose chapters to delete")

	libraryCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(libraryCmd)
}
