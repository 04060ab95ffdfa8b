package cmd

import (
	"errors"
	"fmt"

	"github.com/kerbaras/mangetsu/pkg/services"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download [extension-id] [manga-id] [chapter-id...]",
	Short: "Queue chapters for offline download and run the queue",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		extID, mangaID := args[0], args[1]
		chapterIDs := args[2:]

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		details := c.bridge.GetMangaDetails(cmd.Context(), extID, mangaID)
		title, cover := mangaID, ""
		if details != nil {
			title, cover = details.Title, details.Image
		}

		for _, chapterID := range chapterIDs {
			job, err := c.queue.Enqueue(extID, mangaID, chapterID, title, cover)
			if errors.Is(err, services.ErrAlreadyDownloaded) {
				fmt.Printf("ℹ️  Chapter %s is already downloaded\n", chapterID)
				continue
			}
			cobra.CheckErr(err)
			fmt.Printf("➕ Queued %s (job %s)\n", chapterID, job.ID)
		}

		if len(c.queue.Jobs()) == 0 {
			return
		}

		fmt.Println("⬇️  Downloading...")
		cobra.CheckErr(c.queue.RunPending(cmd.Context()))

		for _, job := range c.queue.Jobs() {
			fmt.Printf("❌ %s: %s\n", job.ChapterID, job.Error)
		}
		fmt.Println("✅ Queue drained.")
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}
