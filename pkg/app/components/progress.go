package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/kerbaras/mangetsu/pkg/app/styles"
	"github.com/kerbaras/mangetsu/pkg/data"
)

// JobList renders the download queue with a progress bar per active job.
type JobList struct {
	jobs  []data.DownloadJob
	bar   progress.Model
	Width int
}

// NewJobList returns a JobList rendering bars at the given width.
func NewJobList(width int) *JobList {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = width - 4
	return &JobList{bar: bar, Width: width}
}

// SetJobs replaces the displayed jobs.
func (l *JobList) SetJobs(jobs []data.DownloadJob) {
	l.jobs = jobs
}

// SetWidth resizes the rendered bars.
func (l *JobList) SetWidth(width int) {
	l.Width = width
	l.bar.Width = width - 4
}

// HasActive reports whether any job is queued or downloading.
func (l *JobList) HasActive() bool {
	for _, j := range l.jobs {
		if j.Status == data.JobQueued || j.Status == data.JobDownloading {
			return true
		}
	}
	return false
}

// View renders the job list.
func (l *JobList) View() string {
	if len(l.jobs) == 0 {
		return styles.MutedStyle.Render("No downloads queued.")
	}

	var b strings.Builder
	for _, job := range l.jobs {
		title := job.MangaTitle
		if title == "" {
			title = job.MangaID
		}
		b.WriteString(styles.TextStyle.Render(fmt.Sprintf("%s — chapter %s", title, job.ChapterID)))
		b.WriteString("\n")

		status := string(job.Status)
		if job.Total > 0 {
			status = fmt.Sprintf("%s (%d/%d pages)", job.Status, job.Progress, job.Total)
			b.WriteString(l.bar.ViewAs(float64(job.Progress) / float64(job.Total)))
			b.WriteString("\n")
		}
		b.WriteString(styles.StatusStyle(job.Status).Render(status))
		b.WriteString("\n")

		if job.Error != "" {
			b.WriteString(styles.StatusError.Render("Error: " + job.Error))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
