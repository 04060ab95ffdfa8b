package cmd

import (
	"fmt"

	"github.com/kerbaras/mangetsu/pkg/app"
	"github.com/spf13/cobra"
)

var watchDownloads bool

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Show the download queue",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		if watchDownloads {
			ctx, cancel := stopOnSignal(cmd.Context())
			defer cancel()
			go func() { _ = c.queue.Run(ctx) }()
			cobra.CheckErr(app.NewApp(c.queue).Run())
			return
		}

		jobs := c.queue.Jobs()
		if len(jobs) == 0 {
			fmt.Println("Download queue is empty.")
			return
		}

		t := newTable("Manga", "Chapter", "Status", "Progress", "Job ID")
		for _, job := range jobs {
			progress := fmt.Sprintf("%d/%d", job.Progress, job.Total)
			if job.Total == 0 {
				progress = "-"
			}
			t.Row(truncateString(job.MangaTitle, 30), job.ChapterID, string(job.Status), progress, job.ID)
		}
		fmt.Println(t)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [job-id]",
	Short: "Pause a download job, or all jobs with --all",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		if allJobs {
			cobra.CheckErr(c.queue.PauseAll())
			fmt.Println("⏸️  All jobs paused.")
			return
		}
		if len(args) == 0 {
			cobra.CheckErr(fmt.Errorf("job id required without --all"))
		}
		cobra.CheckErr(c.queue.Pause(args[0]))
		fmt.Println("⏸️  Job paused.")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a paused job, or all paused jobs with --all",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		if allJobs {
			cobra.CheckErr(c.queue.ResumeAll())
			fmt.Println("▶️  All paused jobs resumed.")
			return
		}
		if len(args) == 0 {
			cobra.CheckErr(fmt.Errorf("job id required without --all"))
		}
		cobra.CheckErr(c.queue.Resume(args[0]))
		fmt.Println("▶️  Job resumed.")
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a download job and discard its partial files",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		cobra.CheckErr(c.queue.Cancel(args[0]))
		fmt.Println("🗑️  Job cancelled.")
	},
}

var allJobs bool

func init() {
	downloadsCmd.Flags().BoolVarP(&watchDownloads, "watch", "w", false, "run the queue and watch progress interactively")
	pauseCmd.Flags().BoolVar(&allJobs, "all", false, "apply to every job")
	resumeCmd.Flags().BoolVar(&allJobs, "all", false, "apply to every paused job")

	downloadsCmd.AddCommand(pauseCmd, resumeCmd, cancelCmd)
	rootCmd.AddCommand(downloadsCmd)
}
